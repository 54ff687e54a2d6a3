// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package livetrack

import "math"

// coordScale turns 5-decimal degrees into integers.
const coordScale = 1e5

// DiffTrack is the differential wire form of a LiveTrack: the first
// element of Lat, Lon, Alt and TimeSec is absolute, every following element
// is the delta to the previous one. Lat and Lon are in 1e-5 degrees.
type DiffTrack struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name,omitempty"`
	Lat     []int64           `json:"lat"`
	Lon     []int64           `json:"lon"`
	Alt     []int32           `json:"alt"`
	TimeSec []int64           `json:"timeSec"`
	Flags   []uint32          `json:"flags"`
	Extra   map[int]LiveExtra `json:"extra,omitempty"`
}

// DifferentialEncode converts t to its differential form.
func DifferentialEncode(t *LiveTrack, id int64, name string) *DiffTrack {
	n := t.Len()
	d := &DiffTrack{
		ID:      id,
		Name:    name,
		Lat:     make([]int64, n),
		Lon:     make([]int64, n),
		Alt:     make([]int32, n),
		TimeSec: make([]int64, n),
		Flags:   make([]uint32, n),
	}
	if n == 0 {
		return d
	}
	copy(d.Flags, t.Flags)
	if len(t.Extra) > 0 {
		d.Extra = make(map[int]LiveExtra, len(t.Extra))
		for i, e := range t.Extra {
			d.Extra[i] = e
		}
	}

	var prevLat, prevLon, prevTime int64
	var prevAlt int32
	for i := 0; i < n; i++ {
		lat := int64(math.Round(t.Lat[i] * coordScale))
		lon := int64(math.Round(t.Lon[i] * coordScale))
		d.Lat[i] = lat - prevLat
		d.Lon[i] = lon - prevLon
		d.Alt[i] = t.Alt[i] - prevAlt
		d.TimeSec[i] = t.TimeSec[i] - prevTime
		prevLat, prevLon, prevAlt, prevTime = lat, lon, t.Alt[i], t.TimeSec[i]
	}
	return d
}

// DifferentialDecode is the inverse of DifferentialEncode.
func DifferentialDecode(d *DiffTrack) *LiveTrack {
	n := len(d.TimeSec)
	t := &LiveTrack{
		ID:      d.ID,
		Name:    d.Name,
		Lat:     make([]float64, n),
		Lon:     make([]float64, n),
		Alt:     make([]int32, n),
		TimeSec: make([]int64, n),
		Flags:   make([]uint32, n),
	}
	copy(t.Flags, d.Flags)
	if len(d.Extra) > 0 {
		t.Extra = make(map[int]LiveExtra, len(d.Extra))
		for i, e := range d.Extra {
			t.Extra[i] = e
		}
	}

	var lat, lon, ts int64
	var alt int32
	for i := 0; i < n; i++ {
		lat += d.Lat[i]
		lon += d.Lon[i]
		alt += d.Alt[i]
		ts += d.TimeSec[i]
		t.Lat[i] = float64(lat) / coordScale
		t.Lon[i] = float64(lon) / coordScale
		t.Alt[i] = alt
		t.TimeSec[i] = ts
	}
	return t
}
