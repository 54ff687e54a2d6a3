// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"net/url"
	"strings"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// FlymeStrategy reads the positions feed XCGlobe publishes for flyxc. One
// authenticated request returns the latest positions of every FlyMe user.
type FlymeStrategy struct {
	feedURL string
	token   string
	client  *Client
}

// NewFlymeStrategy creates the FlyMe strategy.
func NewFlymeStrategy(cfg *config.VendorConfig, client *Client) *FlymeStrategy {
	return &FlymeStrategy{feedURL: cfg.URL, token: cfg.Token, client: client}
}

func (s *FlymeStrategy) Kind() models.TrackerKind { return models.Flyme }
func (s *FlymeStrategy) FetchAll() bool           { return true }
func (s *FlymeStrategy) Curve() Curve             { return everyTickCurve }

type flymePosition struct {
	ID      string   `json:"id"`
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Alt     float64  `json:"alt"`
	TimeSec int64    `json:"ts"`
	Speed   *float64 `json:"speed,omitempty"`
}

func (s *FlymeStrategy) Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error {
	byAccount := make(map[string]int64, len(devices))
	for _, d := range devices {
		byAccount[strings.TrimSpace(d.Account)] = d.PilotID
	}

	u, err := url.Parse(s.feedURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()

	var positions []flymePosition
	if err := s.client.GetJSON(ctx, u.String(), nil, &positions); err != nil {
		if ctx.Err() != nil {
			return ErrFetchTimeout
		}
		return err
	}

	fixes := make(map[int64][]livetrack.Fix)
	for _, p := range positions {
		pilotID, ok := byAccount[p.ID]
		if !ok {
			continue
		}
		fixes[pilotID] = append(fixes[pilotID], livetrack.Fix{
			Lat:     p.Lat,
			Lon:     p.Lon,
			Alt:     p.Alt,
			TimeSec: p.TimeSec,
			Device:  models.Flyme,
			Valid:   true,
			Speed:   p.Speed,
		})
	}
	for _, pilotID := range byAccount {
		result.AddFixes(pilotID, fixes[pilotID])
	}
	return nil
}
