// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// flymasterScale converts Flymaster coordinates (minutes / 1000) to degrees.
const flymasterScale = 60000

const defaultFlymasterBatch = 10

// FlymasterStrategy requests devices in batches, each request listing the
// ids with the time of their last known fix.
type FlymasterStrategy struct {
	baseURL   string
	batchSize int
	client    *Client
}

// NewFlymasterStrategy creates the Flymaster strategy.
func NewFlymasterStrategy(cfg *config.VendorConfig, client *Client) *FlymasterStrategy {
	size := cfg.BatchSize
	if size <= 0 {
		size = defaultFlymasterBatch
	}
	return &FlymasterStrategy{baseURL: cfg.URL, batchSize: size, client: client}
}

func (s *FlymasterStrategy) Kind() models.TrackerKind { return models.Flymaster }
func (s *FlymasterStrategy) FetchAll() bool           { return false }
func (s *FlymasterStrategy) Curve() Curve             { return flymasterCurve }

type flymasterFix struct {
	// Alt in meters, Lat and Lon in thousandths of minutes, speed in km/h.
	Alt   float64 `json:"ai"`
	Lat   int64   `json:"la"`
	Lon   int64   `json:"lo"`
	Time  int64   `json:"d"`
	Speed float64 `json:"v"`
}

func (s *FlymasterStrategy) Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error {
	var valid []Device
	for _, d := range devices {
		if _, err := strconv.ParseInt(strings.TrimSpace(d.Account), 10, 64); err != nil {
			result.DeviceError(d.PilotID, ErrInvalidAccount)
			continue
		}
		valid = append(valid, d)
	}
	return batched(ctx, valid, s.batchSize, func(ctx context.Context, batch []Device) error {
		return s.fetchBatch(ctx, batch, result)
	})
}

func (s *FlymasterStrategy) fetchBatch(ctx context.Context, batch []Device, result *FetchCycleResult) error {
	query := make(map[string]int64, len(batch))
	byAccount := make(map[string]int64, len(batch))
	for _, d := range batch {
		account := strings.TrimSpace(d.Account)
		query[account] = d.LastFixSec
		byAccount[account] = d.PilotID
	}
	trackers, err := json.Marshal(query)
	if err != nil {
		return err
	}

	var resp map[string][]flymasterFix
	err = s.client.GetJSON(ctx, s.baseURL+"?trackers="+url.QueryEscape(string(trackers)), nil, &resp)
	if err != nil {
		if isRateLimit(err) {
			return err
		}
		for _, d := range batch {
			result.DeviceError(d.PilotID, err)
		}
		return nil
	}

	for account, pilotID := range byAccount {
		var fixes []livetrack.Fix
		for _, f := range resp[account] {
			speed := f.Speed
			fixes = append(fixes, livetrack.Fix{
				Lat:     float64(f.Lat) / flymasterScale,
				Lon:     float64(f.Lon) / flymasterScale,
				Alt:     f.Alt,
				TimeSec: f.Time,
				Device:  models.Flymaster,
				Valid:   true,
				Speed:   &speed,
			})
		}
		result.AddFixes(pilotID, fixes)
	}
	return nil
}
