// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package roster holds the fetcher's in-memory state: every pilot with its
// tracker accounts and live track, every UFO fleet, and the scheduling
// timestamps of the tick loop.
//
// The roster is mutated only from inside a tick. Nothing in this package
// locks; serialization is the tick orchestrator's reentrancy guard.
package roster

import (
	"sort"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// Tracker is the per-pilot, per-vendor fetch state.
type Tracker struct {
	Account string `json:"account"`
	Enabled bool   `json:"enabled"`
	// InvalidAccount excludes the tracker from selection until the account changes.
	InvalidAccount bool `json:"invalidAccount,omitempty"`

	LastFetchSec int64 `json:"lastFetchSec"`
	LastFixSec   int64 `json:"lastFixSec"`
	NextFetchSec int64 `json:"nextFetchSec"`

	NumRequests          int64 `json:"numRequests"`
	NumErrors            int64 `json:"numErrors"`
	NumConsecutiveErrors int64 `json:"numConsecutiveErrors"`
}

// Pilot is one tracked person.
type Pilot struct {
	ID       int64                           `json:"id"`
	Name     string                          `json:"name"`
	Enabled  bool                            `json:"enabled"`
	Share    bool                            `json:"share"`
	Trackers map[models.TrackerKind]*Tracker `json:"trackers"`
	Track    *livetrack.LiveTrack            `json:"track"`
}

// Fleet is a group of vehicles reported by one remote source. The embedded
// Tracker holds the fetch state of the source as a whole.
type Fleet struct {
	Name string `json:"name"`
	Tracker
	Ufos map[string]*livetrack.LiveTrack `json:"ufos"`
}

// MemoryStats is a copy of the runtime memory counters taken at each tick.
type MemoryStats struct {
	HeapAllocMB  float64 `json:"heapAllocMB"`
	SysMB        float64 `json:"sysMB"`
	NumGC        uint32  `json:"numGC"`
	NumGoroutine int     `json:"numGoroutine"`
}

// Supporters summarizes the supporter list.
type Supporters struct {
	Count       int      `json:"count"`
	TotalAmount float64  `json:"totalAmount"`
	Names       []string `json:"names"`
}

// Roster is the process-wide fetcher state.
type Roster struct {
	Pilots map[int64]*Pilot  `json:"pilots"`
	Fleets map[string]*Fleet `json:"fleets"`

	NextFullSyncSec      int64 `json:"nextFullSyncSec"`
	NextPartialSyncSec   int64 `json:"nextPartialSyncSec"`
	NextExportSec        int64 `json:"nextExportSec"`
	NextArchiveSec       int64 `json:"nextArchiveSec"`
	NextSupporterSyncSec int64 `json:"nextSupporterSyncSec"`
	// LastUpdatedMs is the newest record update seen in the roster store.
	LastUpdatedMs int64 `json:"lastUpdatedMs"`

	NumTicks    int64 `json:"numTicks"`
	NumStarts   int64 `json:"numStarts"`
	LastTickSec int64 `json:"lastTickSec"`

	Memory     MemoryStats `json:"memory"`
	Supporters Supporters  `json:"supporters"`
}

// New returns an empty roster. A zero NextFullSyncSec forces a full sync on the first tick.
func New() *Roster {
	return &Roster{
		Pilots: make(map[int64]*Pilot),
		Fleets: make(map[string]*Fleet),
	}
}

// PilotIDs returns the pilot ids in ascending order.
func (r *Roster) PilotIDs() []int64 {
	ids := make([]int64, 0, len(r.Pilots))
	for id := range r.Pilots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumTrackers counts the enabled trackers of enabled pilots, per vendor.
func (r *Roster) NumTrackers() map[models.TrackerKind]int {
	counts := make(map[models.TrackerKind]int)
	for _, p := range r.Pilots {
		if !p.Enabled {
			continue
		}
		for kind, t := range p.Trackers {
			if t.Enabled {
				counts[kind]++
			}
		}
	}
	return counts
}

// normalize restores invariants after decoding a snapshot.
func (r *Roster) normalize() {
	if r.Pilots == nil {
		r.Pilots = make(map[int64]*Pilot)
	}
	if r.Fleets == nil {
		r.Fleets = make(map[string]*Fleet)
	}
	for id, p := range r.Pilots {
		p.ID = id
		if p.Trackers == nil {
			p.Trackers = make(map[models.TrackerKind]*Tracker)
		}
		if p.Track == nil {
			p.Track = livetrack.New(id, p.Name)
		}
	}
	for name, f := range r.Fleets {
		f.Name = name
		if f.Ufos == nil {
			f.Ufos = make(map[string]*livetrack.LiveTrack)
		}
	}
}
