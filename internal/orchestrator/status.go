// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package orchestrator

import (
	"time"

	"github.com/vicb/flyXC-sub000/internal/roster"
)

// Status is a point in time summary of the roster, safe to read while a
// tick is running.
type Status struct {
	Hostname    string    `json:"hostname"`
	StartedAt   time.Time `json:"startedAt"`
	NumTicks    int64     `json:"numTicks"`
	NumStarts   int64     `json:"numStarts"`
	LastTickSec int64     `json:"lastTickSec"`

	Pilots       int `json:"pilots"`
	ActivePilots int `json:"activePilots"`
	Fleets       int `json:"fleets"`
	Ufos         int `json:"ufos"`

	NextFullSyncSec    int64 `json:"nextFullSyncSec"`
	NextPartialSyncSec int64 `json:"nextPartialSyncSec"`
	NextExportSec      int64 `json:"nextExportSec"`

	Memory     roster.MemoryStats `json:"memory"`
	Supporters int                `json:"supporters"`

	LastTick *TickSummary `json:"lastTick,omitempty"`
}

// TickSummary is the serializable part of a TickReport.
type TickSummary struct {
	DurationMs int64 `json:"durationMs"`
	FetchMs    int64 `json:"fetchMs"`
	Tracks     int   `json:"tracks"`
	Fixes      int   `json:"fixes"`
	Errors     int   `json:"errors"`
}

// Status returns the summary computed at the end of the last tick.
func (o *Orchestrator) Status() Status {
	return *o.status.Load()
}

// storeStatus must be called with tickMu held, or before the first tick.
func (o *Orchestrator) storeStatus(last *TickReport) {
	r := o.roster
	s := &Status{
		Hostname:           o.hostname,
		StartedAt:          o.startedAt,
		NumTicks:           r.NumTicks,
		NumStarts:          r.NumStarts,
		LastTickSec:        r.LastTickSec,
		Pilots:             len(r.Pilots),
		Fleets:             len(r.Fleets),
		NextFullSyncSec:    r.NextFullSyncSec,
		NextPartialSyncSec: r.NextPartialSyncSec,
		NextExportSec:      r.NextExportSec,
		Memory:             r.Memory,
		Supporters:         r.Supporters.Count,
	}
	for _, p := range r.Pilots {
		if p.Track != nil && p.Track.Len() > 0 {
			s.ActivePilots++
		}
	}
	for _, f := range r.Fleets {
		s.Ufos += len(f.Ufos)
	}
	if last != nil {
		s.LastTick = &TickSummary{
			DurationMs: last.Duration.Milliseconds(),
			FetchMs:    last.FetchDuration.Milliseconds(),
			Tracks:     last.Tracks,
			Fixes:      last.Fixes,
			Errors:     len(last.Errors),
		}
	}
	o.status.Store(s)
}
