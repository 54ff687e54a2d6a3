// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package orchestrator

import (
	"context"

	"github.com/vicb/flyXC-sub000/internal/elevation"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/trackers"
)

// touchedTracks is the set of tracks updated during a tick.
type touchedTracks struct {
	pilots map[int64]struct{}
	ufos   map[string]map[string]struct{}
}

func (t touchedTracks) len() int {
	n := len(t.pilots)
	for _, ufos := range t.ufos {
		n += len(ufos)
	}
	return n
}

// mergeResults merges every delta into the roster and applies retention to
// the updated tracks.
func (o *Orchestrator) mergeResults(nowSec int64, results []*trackers.FetchCycleResult, fleetResults []*trackers.FleetCycleResult, report *TickReport) touchedTracks {
	r := o.roster
	touched := touchedTracks{
		pilots: make(map[int64]struct{}),
		ufos:   make(map[string]map[string]struct{}),
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		report.Errors = append(report.Errors, res.Errors...)
		for id, delta := range res.Deltas {
			p, ok := r.Pilots[id]
			if !ok || delta.IsEmpty() {
				continue
			}
			merged := livetrack.Merge(p.Track, delta)
			merged.ID = id
			merged.Name = p.Name
			merged.ApplyRetention(nowSec, o.cfg.Retention)
			p.Track = merged
			touched.pilots[id] = struct{}{}
			report.Fixes += delta.Len()
		}
	}

	for _, res := range fleetResults {
		if res == nil {
			continue
		}
		report.Errors = append(report.Errors, res.Errors...)
		f, ok := r.Fleets[res.Fleet]
		if !ok {
			continue
		}
		for ufoID, delta := range res.Deltas {
			if delta.IsEmpty() {
				continue
			}
			merged := livetrack.Merge(f.Ufos[ufoID], delta)
			if delta.Name != "" {
				merged.Name = delta.Name
			}
			merged.ApplyRetention(nowSec, o.cfg.Retention)
			f.Ufos[ufoID] = merged
			if touched.ufos[f.Name] == nil {
				touched.ufos[f.Name] = make(map[string]struct{})
			}
			touched.ufos[f.Name][ufoID] = struct{}{}
			report.Fixes += delta.Len()
		}
	}

	report.Tracks = touched.len()
	return touched
}

// expireStale empties the tracks not updated during the tick once their
// newest fix is past the retention age, and drops empty vehicle tracks.
func (o *Orchestrator) expireStale(nowSec int64, touched touchedTracks) {
	maxAge := o.cfg.Retention.MaxAgeSec
	if maxAge <= 0 {
		return
	}
	cutoff := nowSec - maxAge
	for id, p := range o.roster.Pilots {
		if _, ok := touched.pilots[id]; ok {
			continue
		}
		if last, ok := p.Track.LastTimeSec(); ok && last < cutoff {
			p.Track = livetrack.New(id, p.Name)
		}
	}
	for _, f := range o.roster.Fleets {
		for ufoID, track := range f.Ufos {
			if last, ok := track.LastTimeSec(); !ok || last < cutoff {
				delete(f.Ufos, ufoID)
			}
		}
	}
}

// backfillElevation looks up the ground altitude of the newest fix of every
// track missing it, in one batched call. Failures leave the altitude unknown
// and the fix is retried on the next tick.
func (o *Orchestrator) backfillElevation(ctx context.Context) {
	if o.deps.Elevation == nil {
		return
	}

	var tracks []*livetrack.LiveTrack
	var points []elevation.Point
	collect := func(t *livetrack.LiveTrack) {
		if t.IsEmpty() {
			return
		}
		last := t.Len() - 1
		if e, ok := t.ExtraAt(last); ok && e.GndAlt != nil {
			return
		}
		tracks = append(tracks, t)
		points = append(points, elevation.Point{Lat: t.Lat[last], Lon: t.Lon[last]})
	}
	for _, id := range o.roster.PilotIDs() {
		collect(o.roster.Pilots[id].Track)
	}
	for _, f := range o.roster.Fleets {
		for _, track := range f.Ufos {
			collect(track)
		}
	}
	if len(points) == 0 {
		return
	}

	timeout := o.cfg.Fetcher.ElevationTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	elevations, err := o.deps.Elevation.Lookup(ctx, points)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("points", len(points)).Msg("Ground altitude lookup failed")
		return
	}
	for i, t := range tracks {
		if i < len(elevations) {
			t.SetGndAlt(t.Len()-1, elevations[i])
		}
	}
}
