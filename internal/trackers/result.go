// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"sync"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
)

// FetchCycleResult collects the outcome of one vendor refresh. It is safe
// for concurrent use by the workers of a strategy.
type FetchCycleResult struct {
	mu sync.Mutex

	// Deltas holds the new fixes per pilot id.
	Deltas map[int64]*livetrack.LiveTrack
	// DeviceErrors holds the error of each failed device, by pilot id.
	DeviceErrors map[int64]error
	// Errors are vendor level errors.
	Errors []error
	// Contacted is the set of pilot ids for which the vendor was queried.
	Contacted map[int64]struct{}

	StartSec int64
	EndSec   int64
	NumFixes int
}

func newFetchCycleResult(startSec int64) *FetchCycleResult {
	return &FetchCycleResult{
		Deltas:       make(map[int64]*livetrack.LiveTrack),
		DeviceErrors: make(map[int64]error),
		Contacted:    make(map[int64]struct{}),
		StartSec:     startSec,
	}
}

// Contact records that the vendor was queried for pilotID.
func (r *FetchCycleResult) Contact(pilotID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Contacted[pilotID] = struct{}{}
}

// AddFixes records fixes for a contacted pilot. Fixes are merged with any
// fixes already recorded for the pilot in this cycle.
func (r *FetchCycleResult) AddFixes(pilotID int64, fixes []livetrack.Fix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Contacted[pilotID] = struct{}{}
	if len(fixes) == 0 {
		return
	}
	track := livetrack.MakeTrack(fixes)
	track.ID = pilotID
	if prev, ok := r.Deltas[pilotID]; ok {
		track = livetrack.Merge(prev, track)
	}
	r.Deltas[pilotID] = track
	r.NumFixes += len(fixes)
}

// DeviceError records a per-device error for a contacted pilot.
func (r *FetchCycleResult) DeviceError(pilotID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Contacted[pilotID] = struct{}{}
	r.DeviceErrors[pilotID] = err
}

// AddError records a vendor level error.
func (r *FetchCycleResult) AddError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// HasErrors reports whether any device or vendor error was recorded.
func (r *FetchCycleResult) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors) > 0 || len(r.DeviceErrors) > 0
}
