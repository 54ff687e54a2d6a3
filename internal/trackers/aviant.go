// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// AviantFleetName is the roster name of the Aviant drone fleet.
const AviantFleetName = "aviant"

// ufoCurve polls vehicles that flew recently every minute.
var ufoCurve = Curve{
	Steps: []Step{
		{MaxAge: 3 * time.Hour, Delay: time.Minute},
		{MaxAge: 24 * time.Hour, Delay: 5 * time.Minute},
	},
	Idle: 10 * time.Minute,
}

// AviantStrategy lists the vehicles of an Aviant operator. The API key is
// passed as a query parameter.
type AviantStrategy struct {
	baseURL string
	key     string
	client  *Client
}

// NewAviantStrategy creates the Aviant fleet strategy.
func NewAviantStrategy(cfg *config.VendorConfig, client *Client) *AviantStrategy {
	return &AviantStrategy{baseURL: cfg.URL, key: cfg.Token, client: client}
}

func (s *AviantStrategy) Name() string  { return AviantFleetName }
func (s *AviantStrategy) Curve() Curve { return ufoCurve }

type aviantVehicle struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	Alt       float64   `json:"altitude"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *AviantStrategy) Fetch(ctx context.Context, account string, result *FleetCycleResult) error {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("key", s.key)
	q.Set("operator", account)
	u.RawQuery = q.Encode()

	var vehicles []aviantVehicle
	if err := s.client.GetJSON(ctx, u.String(), nil, &vehicles); err != nil {
		var he *HTTPError
		switch {
		case ctx.Err() != nil:
			return ErrFetchTimeout
		case errors.As(err, &he) && he.StatusCode == http.StatusNotFound:
			return ErrInvalidAccount
		default:
			return err
		}
	}

	for _, v := range vehicles {
		if v.ID == "" || v.Timestamp.IsZero() {
			continue
		}
		name := v.Name
		if name == "" {
			name = v.ID
		}
		// UFO tracks ignore the device bits of the flags.
		result.AddFixes(v.ID, name, []livetrack.Fix{{
			Lat:     v.Lat,
			Lon:     v.Lon,
			Alt:     v.Alt,
			TimeSec: v.Timestamp.Unix(),
			Device:  models.Inreach,
			Valid:   true,
			Speed:   v.Speed,
		}})
	}
	return nil
}
