// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/metrics"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

// FleetCycleResult collects the outcome of one fleet refresh. Deltas are
// keyed by vehicle id.
type FleetCycleResult struct {
	mu sync.Mutex

	Fleet     string
	Deltas    map[string]*livetrack.LiveTrack
	Errors    []error
	Contacted bool

	StartSec int64
	EndSec   int64
	NumFixes int
}

// AddFixes records fixes for one vehicle.
func (r *FleetCycleResult) AddFixes(ufoID, name string, fixes []livetrack.Fix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(fixes) == 0 {
		return
	}
	track := livetrack.MakeTrack(fixes)
	track.Name = name
	if prev, ok := r.Deltas[ufoID]; ok {
		track = livetrack.Merge(prev, track)
	}
	r.Deltas[ufoID] = track
	r.NumFixes += len(fixes)
}

// AddError records a fleet level error.
func (r *FleetCycleResult) AddError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// FleetStrategy is the source specific part of a fleet fetcher.
type FleetStrategy interface {
	Name() string
	Curve() Curve
	// Fetch queries every vehicle of the fleet account.
	Fetch(ctx context.Context, account string, result *FleetCycleResult) error
}

// FleetFetcher schedules the requests of one fleet. It is the single
// device variant of Fetcher: the fleet as a whole carries the fetch state.
type FleetFetcher struct {
	strategy        FleetStrategy
	roster          *roster.Roster
	refreshInterval time.Duration
	clock           func() time.Time
	rng             *rand.Rand
}

// NewFleetFetcher creates the fetcher of a fleet.
func NewFleetFetcher(strategy FleetStrategy, r *roster.Roster, refreshInterval time.Duration, opts ...FetcherOption) *FleetFetcher {
	// Reuse the Fetcher options for the clock and random source.
	base := &Fetcher{clock: time.Now}
	for _, opt := range opts {
		opt(base)
	}
	if base.rng == nil {
		//nolint:gosec // jitter does not need a cryptographic source
		base.rng = rand.New(rand.NewSource(base.clock().UnixNano()))
	}
	return &FleetFetcher{
		strategy:        strategy,
		roster:          r,
		refreshInterval: refreshInterval,
		clock:           base.clock,
		rng:             base.rng,
	}
}

// Name returns the fleet name.
func (f *FleetFetcher) Name() string {
	return f.strategy.Name()
}

// Refresh fetches the fleet when it is due and updates its fetch state.
func (f *FleetFetcher) Refresh(ctx context.Context, timeout time.Duration) *FleetCycleResult {
	start := f.clock()
	startSec := start.Unix()
	name := f.strategy.Name()
	result := &FleetCycleResult{
		Fleet:    name,
		Deltas:   make(map[string]*livetrack.LiveTrack),
		StartSec: startSec,
	}

	fleet, ok := f.roster.Fleets[name]
	if !ok || !fleet.Enabled || fleet.InvalidAccount || fleet.Account == "" || fleet.NextFetchSec > startSec {
		result.EndSec = startSec
		return result
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	err := f.strategy.Fetch(fetchCtx, fleet.Account, result)
	cancel()

	result.Contacted = true
	if err != nil {
		result.AddError(err)
		metrics.RecordVendorError(name, errorKind(err))
		if errors.Is(err, ErrInvalidAccount) {
			fleet.InvalidAccount = true
		}
	}
	recordRequest(&fleet.Tracker, err != nil)

	for _, delta := range result.Deltas {
		delta.Simplify(deltaMinIntervalSec, livetrack.AllTime)
		if last, ok := delta.LastTimeSec(); ok && last > fleet.LastFixSec {
			fleet.LastFixSec = last
		}
	}
	fleet.LastFetchSec = startSec
	backoff := Backoff(&fleet.Tracker, startSec, f.strategy.Curve(), f.rng)
	fleet.NextFetchSec = startSec + int64((backoff-f.refreshInterval/2)/time.Second)

	result.EndSec = f.clock().Unix()
	vendorErrors := 0
	if err != nil {
		vendorErrors = 1
	}
	metrics.RecordVendorRefresh(name, len(result.Deltas), result.NumFixes, 0, vendorErrors, f.clock().Sub(start))

	logging.Ctx(ctx).Debug().
		Str("fleet", name).
		Int("ufos", len(result.Deltas)).
		Int("fixes", result.NumFixes).
		Err(err).
		Msg("Fleet refresh complete")
	return result
}
