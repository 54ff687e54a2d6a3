// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

const secondsPerDay = 24 * 60 * 60

// SkylinesStrategy requests the live flights of every pilot at once.
type SkylinesStrategy struct {
	baseURL string
	client  *Client
	clock   func() time.Time
}

// NewSkylinesStrategy creates the SkyLines strategy.
func NewSkylinesStrategy(cfg *config.VendorConfig, client *Client, clock func() time.Time) *SkylinesStrategy {
	return &SkylinesStrategy{baseURL: cfg.URL, client: client, clock: clock}
}

func (s *SkylinesStrategy) Kind() models.TrackerKind { return models.Skylines }
func (s *SkylinesStrategy) FetchAll() bool           { return true }
func (s *SkylinesStrategy) Curve() Curve             { return everyTickCurve }

type skylinesResponse struct {
	Flights []skylinesFlight `json:"flights"`
}

type skylinesFlight struct {
	Pilot struct {
		ID int64 `json:"id"`
	} `json:"pilot"`
	// Points is a polyline encoded list of lat, lon pairs.
	Points string `json:"points"`
	// BarogramT holds the delta encoded seconds of the UTC day.
	BarogramT string `json:"barogram_t"`
	// BarogramH holds the delta encoded altitudes above the geoid.
	BarogramH string  `json:"barogram_h"`
	Geoid     float64 `json:"geoid"`
}

func (s *SkylinesStrategy) Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error {
	byAccount := make(map[string]int64, len(devices))
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		account := strings.TrimSpace(d.Account)
		if _, err := strconv.ParseInt(account, 10, 64); err != nil {
			result.DeviceError(d.PilotID, ErrInvalidAccount)
			continue
		}
		byAccount[account] = d.PilotID
		ids = append(ids, account)
	}
	if len(ids) == 0 {
		return nil
	}

	var resp skylinesResponse
	if err := s.client.GetJSON(ctx, s.baseURL+strings.Join(ids, ","), nil, &resp); err != nil {
		if ctx.Err() != nil {
			return ErrFetchTimeout
		}
		return err
	}

	now := s.clock()
	for _, id := range ids {
		result.Contact(byAccount[id])
	}
	for _, f := range resp.Flights {
		pilotID, ok := byAccount[strconv.FormatInt(f.Pilot.ID, 10)]
		if !ok {
			continue
		}
		fixes, err := decodeSkylinesFlight(f, now)
		if err != nil {
			result.DeviceError(pilotID, err)
			continue
		}
		result.AddFixes(pilotID, fixes)
	}
	return nil
}

func decodeSkylinesFlight(f skylinesFlight, now time.Time) ([]livetrack.Fix, error) {
	coords, err := decodeDeltas(f.Points, 2)
	if err != nil {
		return nil, err
	}
	times, err := decodeDeltas(f.BarogramT, 1)
	if err != nil {
		return nil, err
	}
	alts, err := decodeDeltas(f.BarogramH, 1)
	if err != nil {
		return nil, err
	}
	if len(coords) != 2*len(times) || len(alts) != len(times) {
		return nil, &ParseError{Err: errors.New("skylines: inconsistent flight arrays")}
	}

	nowSec := now.Unix()
	midnight := nowSec - nowSec%secondsPerDay
	fixes := make([]livetrack.Fix, 0, len(times))
	for i, t := range times {
		lat, lon := coords[2*i], coords[2*i+1]
		ts := midnight + t
		if ts > nowSec+60 {
			ts -= secondsPerDay
		}
		fixes = append(fixes, livetrack.Fix{
			Lat:     float64(lat) / 1e5,
			Lon:     float64(lon) / 1e5,
			Alt:     math.Round(float64(alts[i]) + f.Geoid),
			TimeSec: ts,
			Device:  models.Skylines,
			Valid:   true,
		})
	}
	return fixes, nil
}

// decodeDeltas decodes a polyline style list of delta encoded signed
// values. dim interleaved series are summed independently, so points use
// dim 2 for lat, lon pairs.
func decodeDeltas(s string, dim int) ([]int64, error) {
	var values []int64
	sums := make([]int64, dim)
	var value, shift int64
	for i := 0; i < len(s); i++ {
		b := int64(s[i]) - 63
		if b < 0 {
			return nil, &ParseError{Err: errors.New("skylines: invalid encoded value")}
		}
		value |= (b & 0x1f) << shift
		if b < 0x20 {
			if value&1 != 0 {
				value = ^(value >> 1)
			} else {
				value >>= 1
			}
			k := len(values) % dim
			sums[k] += value
			values = append(values, sums[k])
			value, shift = 0, 0
			continue
		}
		shift += 5
	}
	if shift != 0 {
		return nil, &ParseError{Err: errors.New("skylines: truncated encoded value")}
	}
	return values, nil
}
