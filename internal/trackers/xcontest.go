// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// xcontestWindow is the history requested on each refresh.
const xcontestWindow = 2 * time.Hour

// XContestStrategy queries the XContest live API for all users at once.
type XContestStrategy struct {
	baseURL string
	token   string
	client  *Client
	clock   func() time.Time
}

// NewXContestStrategy creates the XContest strategy.
func NewXContestStrategy(cfg *config.VendorConfig, client *Client, clock func() time.Time) *XContestStrategy {
	return &XContestStrategy{baseURL: cfg.URL, token: cfg.Token, client: client, clock: clock}
}

func (s *XContestStrategy) Kind() models.TrackerKind { return models.XContest }
func (s *XContestStrategy) FetchAll() bool           { return true }
func (s *XContestStrategy) Curve() Curve             { return everyTickCurve }

type xcontestResponse struct {
	Users map[string]xcontestUser `json:"users"`
}

type xcontestUser struct {
	Track struct {
		Geometry struct {
			// Coordinates are [lon, lat, alt, unix seconds].
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"track"`
}

func (s *XContestStrategy) Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error {
	byAccount := make(map[string]int64, len(devices))
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		account := strings.TrimSpace(d.Account)
		if account == "" || strings.ContainsAny(account, ", ") {
			result.DeviceError(d.PilotID, ErrInvalidAccount)
			continue
		}
		byAccount[account] = d.PilotID
		ids = append(ids, account)
	}
	if len(ids) == 0 {
		return nil
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("users", strings.Join(ids, ","))
	q.Set("from", s.clock().Add(-xcontestWindow).UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	var resp xcontestResponse
	if err := s.client.GetJSON(ctx, u.String(), header, &resp); err != nil {
		if ctx.Err() != nil {
			return ErrFetchTimeout
		}
		return err
	}

	for account, pilotID := range byAccount {
		user, ok := resp.Users[account]
		if !ok {
			result.Contact(pilotID)
			continue
		}
		fixes := make([]livetrack.Fix, 0, len(user.Track.Geometry.Coordinates))
		for _, c := range user.Track.Geometry.Coordinates {
			if len(c) < 4 {
				continue
			}
			fixes = append(fixes, livetrack.Fix{
				Lat:     c[1],
				Lon:     c[0],
				Alt:     c[2],
				TimeSec: int64(c[3]),
				Device:  models.XContest,
				Valid:   true,
			})
		}
		result.AddFixes(pilotID, fixes)
	}
	return nil
}
