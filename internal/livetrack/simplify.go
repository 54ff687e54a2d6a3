// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package livetrack

import "math"

// Window is a half-open time range [FromSec, ToSec).
type Window struct {
	FromSec int64
	ToSec   int64
}

// AllTime is the window covering every timestamp.
var AllTime = Window{FromSec: math.MinInt64, ToSec: math.MaxInt64}

func (w Window) contains(ts int64) bool {
	return ts >= w.FromSec && ts < w.ToSec
}

// Simplify drops fixes inside w that are less than minIntervalSec after the
// previously kept fix.
//
// The first and last fixes are always kept, as are fixes carrying a message,
// an emergency or a low battery flag. Running Simplify again with the same
// arguments removes nothing.
func (t *LiveTrack) Simplify(minIntervalSec int64, w Window) {
	n := t.Len()
	if n < 3 || minIntervalSec <= 0 {
		return
	}

	keep := make([]bool, n)
	dropped := false
	var lastKept int64
	for i, ts := range t.TimeSec {
		switch {
		case i == 0, i == n-1, !w.contains(ts), t.isHighValue(i):
			keep[i] = true
		default:
			keep[i] = ts-lastKept >= minIntervalSec
		}
		if keep[i] {
			lastKept = ts
		} else {
			dropped = true
		}
	}
	if dropped {
		t.compact(keep)
	}
}

func (t *LiveTrack) isHighValue(i int) bool {
	flags := t.Flags[i]
	if IsEmergencyFix(flags) || IsLowBatFix(flags) {
		return true
	}
	e, ok := t.ExtraAt(i)
	return ok && e.Message != ""
}

// Tier simplifies fixes older than MinAgeSec (and younger than the next
// tier) down to one fix every IntervalSec.
type Tier struct {
	MinAgeSec   int64 `koanf:"min_age_sec" json:"minAgeSec"`
	IntervalSec int64 `koanf:"interval_sec" json:"intervalSec"`
}

// Retention is the level-of-detail policy applied after each merge.
type Retention struct {
	// MaxAgeSec is the age past which fixes are dropped.
	MaxAgeSec int64 `koanf:"max_age_sec" json:"maxAgeSec"`
	// Tiers must be sorted by MinAgeSec ascending.
	Tiers []Tier `koanf:"tiers" json:"tiers"`
}

// DefaultRetention keeps 48h: native resolution for 6h, then one fix
// every 30s up to 12h, 60s up to 24h and 3min beyond.
func DefaultRetention() Retention {
	return Retention{
		MaxAgeSec: 48 * 3600,
		Tiers: []Tier{
			{MinAgeSec: 0, IntervalSec: 0},
			{MinAgeSec: 6 * 3600, IntervalSec: 30},
			{MinAgeSec: 12 * 3600, IntervalSec: 60},
			{MinAgeSec: 24 * 3600, IntervalSec: 3 * 60},
		},
	}
}

// ApplyRetention drops fixes older than the max age and simplifies each age band.
func (t *LiveTrack) ApplyRetention(nowSec int64, r Retention) {
	if r.MaxAgeSec > 0 {
		t.RemoveBefore(nowSec - r.MaxAgeSec)
	}
	for i, tier := range r.Tiers {
		w := Window{FromSec: math.MinInt64, ToSec: nowSec - tier.MinAgeSec}
		if i+1 < len(r.Tiers) {
			w.FromSec = nowSec - r.Tiers[i+1].MinAgeSec
		}
		t.Simplify(tier.IntervalSec, w)
	}
}
