// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package orchestrator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/aprs"
	"github.com/vicb/flyXC-sub000/internal/kv"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/publish"
)

const (
	hostStatsMax = 100
	aprsLogsMax  = 100
)

// hostStats is one entry of the per-host telemetry list.
type hostStats struct {
	TimeSec     int64   `json:"timeSec"`
	TickMs      int64   `json:"tickMs"`
	FetchMs     int64   `json:"fetchMs"`
	Tracks      int     `json:"tracks"`
	Fixes       int     `json:"fixes"`
	Errors      int     `json:"errors"`
	Pilots      int     `json:"pilots"`
	HeapAllocMB float64 `json:"heapAllocMB"`
	NumStarts   int64   `json:"numStarts"`
}

// buildSnapshot encodes the shared tracks. With touched set, only those
// tracks are included, cut to the trailing window.
func (o *Orchestrator) buildSnapshot(now time.Time, kind string, touched *touchedTracks) *publish.Snapshot {
	snap := &publish.Snapshot{Kind: kind, TimeSec: now.Unix(), Tracks: []*livetrack.DiffTrack{}}
	sinceSec := now.Add(-o.cfg.Fetcher.IncrementalWindow).Unix()

	for _, id := range o.roster.PilotIDs() {
		p := o.roster.Pilots[id]
		if !p.Enabled || !p.Share || p.Track.IsEmpty() {
			continue
		}
		track := p.Track
		if touched != nil {
			if _, ok := touched.pilots[id]; !ok {
				continue
			}
			track = track.Since(sinceSec)
			if track.IsEmpty() {
				continue
			}
		}
		snap.Tracks = append(snap.Tracks, livetrack.DifferentialEncode(track, id, p.Name))
	}

	for name, f := range o.roster.Fleets {
		for ufoID, track := range f.Ufos {
			if track.IsEmpty() {
				continue
			}
			if touched != nil {
				if _, ok := touched.ufos[name][ufoID]; !ok {
					continue
				}
				track = track.Since(sinceSec)
				if track.IsEmpty() {
					continue
				}
			}
			if snap.Ufos == nil {
				snap.Ufos = make(map[string]*livetrack.DiffTrack)
			}
			snap.Ufos[name+"/"+ufoID] = livetrack.DifferentialEncode(track, 0, track.Name)
		}
	}
	return snap
}

// publish sends the full and incremental snapshots downstream, stores them
// in the KV store and bridges fixes to the APRS network. Every failure is
// logged and the next tick publishes fresh data.
func (o *Orchestrator) publish(ctx context.Context, now time.Time, touched touchedTracks) {
	log := logging.Ctx(ctx)

	for _, s := range []struct {
		snap *publish.Snapshot
		key  string
	}{
		{o.buildSnapshot(now, publish.KindFull, nil), kv.KeyTracksFull},
		{o.buildSnapshot(now, publish.KindIncremental, &touched), kv.KeyTracksInc},
	} {
		payload, err := publish.Marshal(s.snap)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode track snapshot")
			continue
		}
		if err := o.deps.KV.Set(ctx, s.key, payload, 0); err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("Failed to store track snapshot")
		}
		if o.deps.Publisher != nil {
			if err := o.deps.Publisher.Publish(ctx, s.snap.Kind, payload); err != nil {
				log.Warn().Err(err).Str("kind", s.snap.Kind).Msg("Failed to publish track snapshot")
			}
		}
	}

	if o.deps.Pusher != nil {
		if n, err := o.deps.Pusher.Push(now, o.pushCandidates()); err != nil {
			log.Warn().Err(err).Int("sent", n).Msg("APRS push failed")
		} else if n > 0 {
			log.Debug().Int("sent", n).Msg("Positions pushed to APRS")
		}
	}

	if o.deps.APRSLogs != nil {
		if logs := o.deps.APRSLogs.DrainLogs(); len(logs) > 0 {
			if err := o.deps.KV.PushCappedAll(ctx, kv.KeyAPRSLogs, logs, aprsLogsMax); err != nil {
				log.Warn().Err(err).Msg("Failed to store APRS logs")
			}
		}
	}
}

// pushCandidates lists the shared pilots whose newest fix does not come
// from the APRS network itself.
func (o *Orchestrator) pushCandidates() []aprs.Candidate {
	var out []aprs.Candidate
	for _, id := range o.roster.PilotIDs() {
		p := o.roster.Pilots[id]
		if !p.Enabled || !p.Share || p.Track.IsEmpty() {
			continue
		}
		last := p.Track.Len() - 1
		if livetrack.DeviceOf(p.Track.Flags[last]) == models.Ogn {
			continue
		}
		c := aprs.Candidate{PilotID: id, Track: p.Track}
		if t, ok := p.Trackers[models.Ogn]; ok && t.Enabled {
			c.OgnID = strings.ToUpper(t.Account)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PilotID < out[j].PilotID })
	return out
}

// recordHost appends the tick statistics to the host telemetry list.
func (o *Orchestrator) recordHost(ctx context.Context, start time.Time, report TickReport) {
	r := o.roster
	stats := hostStats{
		TimeSec:     start.Unix(),
		TickMs:      o.clock().Sub(start).Milliseconds(),
		FetchMs:     report.FetchDuration.Milliseconds(),
		Tracks:      report.Tracks,
		Fixes:       report.Fixes,
		Errors:      len(report.Errors),
		Pilots:      len(r.Pilots),
		HeapAllocMB: r.Memory.HeapAllocMB,
		NumStarts:   r.NumStarts,
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := o.deps.KV.PushCapped(ctx, kv.HostKey(o.hostname), string(data), hostStatsMax); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record host stats")
	}
}
