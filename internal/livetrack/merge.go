// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package livetrack

// Merge returns a new chronologically sorted track holding the fixes of
// base and delta. Both inputs must be sorted by time.
//
// A timestamp is never stored twice. When base and delta both carry a fix
// for the same second, the delta fix wins: it is the more recent report.
func Merge(base, delta *LiveTrack) *LiveTrack {
	if delta.IsEmpty() {
		if base == nil {
			return delta.Clone()
		}
		return base.Clone()
	}
	if base.IsEmpty() {
		out := delta.Clone()
		if base != nil {
			out.ID = base.ID
			if out.Name == "" {
				out.Name = base.Name
			}
		}
		return dedupe(out)
	}

	n := base.Len() + delta.Len()
	out := &LiveTrack{
		ID:      base.ID,
		Name:    base.Name,
		Lat:     make([]float64, 0, n),
		Lon:     make([]float64, 0, n),
		Alt:     make([]int32, 0, n),
		TimeSec: make([]int64, 0, n),
		Flags:   make([]uint32, 0, n),
	}
	if delta.Name != "" {
		out.Name = delta.Name
	}

	push := func(src *LiveTrack, i int) {
		if last, ok := out.LastTimeSec(); ok && last == src.TimeSec[i] {
			out.replaceLast(src, i)
			return
		}
		out.appendFix(src, i)
	}

	i, j := 0, 0
	for i < base.Len() && j < delta.Len() {
		// On equal timestamps base goes first so that delta overwrites it.
		if base.TimeSec[i] <= delta.TimeSec[j] {
			push(base, i)
			i++
		} else {
			push(delta, j)
			j++
		}
	}
	for ; i < base.Len(); i++ {
		push(base, i)
	}
	for ; j < delta.Len(); j++ {
		push(delta, j)
	}
	return out
}

// dedupe collapses fixes sharing a timestamp, keeping the later one.
func dedupe(t *LiveTrack) *LiveTrack {
	out := &LiveTrack{ID: t.ID, Name: t.Name}
	for i := 0; i < t.Len(); i++ {
		if last, ok := out.LastTimeSec(); ok && last == t.TimeSec[i] {
			out.replaceLast(t, i)
			continue
		}
		out.appendFix(t, i)
	}
	return out
}

// RemoveBefore drops every fix older than cutoffSec.
func (t *LiveTrack) RemoveBefore(cutoffSec int64) {
	if t.IsEmpty() {
		return
	}
	keep := make([]bool, t.Len())
	dropped := false
	for i, ts := range t.TimeSec {
		keep[i] = ts >= cutoffSec
		dropped = dropped || !keep[i]
	}
	if dropped {
		t.compact(keep)
	}
}
