// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package livetrack

import (
	"math"
	"sort"

	"github.com/vicb/flyXC-sub000/internal/models"
)

// maxSpeedGapSec bounds the time delta used to derive a speed for the last fix.
const maxSpeedGapSec = 2 * 60

const earthRadiusMeters = 6371e3

// Fix is a single position as decoded from a vendor payload.
type Fix struct {
	Lat     float64
	Lon     float64
	Alt     float64
	TimeSec int64
	Device  models.TrackerKind

	Valid      bool
	Emergency  bool
	LowBattery bool

	// Speed in km/h, nil when the vendor does not report it.
	Speed   *float64
	Message string
	GndAlt  *int32
}

// MakeTrack builds a track from unordered fixes.
//
// Coordinates are rounded to 5 decimals and altitudes to the meter. When the
// newest fix carries no speed it is derived from the distance to the previous
// fix, provided both are less than two minutes apart.
func MakeTrack(fixes []Fix) *LiveTrack {
	sorted := make([]Fix, len(fixes))
	copy(sorted, fixes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimeSec < sorted[j].TimeSec })

	t := &LiveTrack{
		Lat:     make([]float64, 0, len(sorted)),
		Lon:     make([]float64, 0, len(sorted)),
		Alt:     make([]int32, 0, len(sorted)),
		TimeSec: make([]int64, 0, len(sorted)),
		Flags:   make([]uint32, 0, len(sorted)),
	}

	for i, f := range sorted {
		t.Lat = append(t.Lat, round5(f.Lat))
		t.Lon = append(t.Lon, round5(f.Lon))
		t.Alt = append(t.Alt, int32(math.Round(f.Alt)))
		t.TimeSec = append(t.TimeSec, f.TimeSec)
		t.Flags = append(t.Flags, PackFlags(FlagOptions{
			Device:     f.Device,
			Valid:      f.Valid,
			Emergency:  f.Emergency,
			LowBattery: f.LowBattery,
		}))

		extra := LiveExtra{Speed: f.Speed, Message: f.Message, GndAlt: f.GndAlt}
		if !extra.isEmpty() {
			if t.Extra == nil {
				t.Extra = make(map[int]LiveExtra)
			}
			t.Extra[i] = extra
		}
	}

	deriveLastSpeed(t)
	return t
}

func deriveLastSpeed(t *LiveTrack) {
	n := t.Len()
	if n < 2 {
		return
	}
	last := n - 1
	if e, ok := t.ExtraAt(last); ok && e.Speed != nil {
		return
	}
	dt := t.TimeSec[last] - t.TimeSec[last-1]
	if dt <= 0 || dt >= maxSpeedGapSec {
		return
	}
	meters := Distance(t.Lat[last-1], t.Lon[last-1], t.Lat[last], t.Lon[last])
	speed := math.Round(meters/float64(dt)*3.6*10) / 10
	if t.Extra == nil {
		t.Extra = make(map[int]LiveExtra)
	}
	e := t.Extra[last]
	e.Speed = &speed
	t.Extra[last] = e
}

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
