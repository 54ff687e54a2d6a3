// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package livetrack implements the columnar live track used for every pilot
// and fleet vehicle, and the algorithms applied to it on each tick: building
// a track from vendor fixes, merging a fetch delta into the stored track,
// time-based eviction, level-of-detail simplification, and the differential
// wire encoding.
//
// A LiveTrack stores one fix per index across parallel slices. Optional
// per-fix data lives in the sparse Extra map keyed by index; every operation
// that moves fixes re-indexes Extra itself.
package livetrack

// LiveTrack is a time-ordered sequence of fixes stored column-wise.
type LiveTrack struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	Lat     []float64 `json:"lat"`
	Lon     []float64 `json:"lon"`
	Alt     []int32   `json:"alt"`
	TimeSec []int64   `json:"timeSec"`
	Flags   []uint32  `json:"flags"`

	Extra map[int]LiveExtra `json:"extra,omitempty"`
}

// LiveExtra holds optional data for a single fix.
type LiveExtra struct {
	// Speed in km/h.
	Speed   *float64 `json:"speed,omitempty"`
	Message string   `json:"message,omitempty"`
	// GndAlt is the ground elevation in meters below the fix.
	GndAlt *int32 `json:"gndAlt,omitempty"`
}

func (e LiveExtra) isEmpty() bool {
	return e.Speed == nil && e.Message == "" && e.GndAlt == nil
}

// New returns an empty track.
func New(id int64, name string) *LiveTrack {
	return &LiveTrack{ID: id, Name: name}
}

// Len returns the number of fixes.
func (t *LiveTrack) Len() int {
	if t == nil {
		return 0
	}
	return len(t.TimeSec)
}

// IsEmpty reports whether the track has no fixes.
func (t *LiveTrack) IsEmpty() bool {
	return t.Len() == 0
}

// LastTimeSec returns the timestamp of the newest fix.
func (t *LiveTrack) LastTimeSec() (int64, bool) {
	if t.IsEmpty() {
		return 0, false
	}
	return t.TimeSec[len(t.TimeSec)-1], true
}

// ExtraAt returns the extra data at index i, if any.
func (t *LiveTrack) ExtraAt(i int) (LiveExtra, bool) {
	if t.Extra == nil {
		return LiveExtra{}, false
	}
	e, ok := t.Extra[i]
	return e, ok
}

// SetGndAlt records the ground elevation for fix i.
func (t *LiveTrack) SetGndAlt(i int, gndAlt int32) {
	if i < 0 || i >= t.Len() {
		return
	}
	if t.Extra == nil {
		t.Extra = make(map[int]LiveExtra)
	}
	e := t.Extra[i]
	e.GndAlt = &gndAlt
	t.Extra[i] = e
}

// Clone returns a deep copy of t.
func (t *LiveTrack) Clone() *LiveTrack {
	if t == nil {
		return nil
	}
	c := &LiveTrack{
		ID:      t.ID,
		Name:    t.Name,
		Lat:     append([]float64(nil), t.Lat...),
		Lon:     append([]float64(nil), t.Lon...),
		Alt:     append([]int32(nil), t.Alt...),
		TimeSec: append([]int64(nil), t.TimeSec...),
		Flags:   append([]uint32(nil), t.Flags...),
	}
	if len(t.Extra) > 0 {
		c.Extra = make(map[int]LiveExtra, len(t.Extra))
		for i, e := range t.Extra {
			c.Extra[i] = e
		}
	}
	return c
}

// Since returns a copy holding only the fixes at or after sinceSec.
func (t *LiveTrack) Since(sinceSec int64) *LiveTrack {
	c := t.Clone()
	if c == nil {
		return nil
	}
	c.RemoveBefore(sinceSec)
	return c
}

// appendFix copies fix i of src to the end of t.
func (t *LiveTrack) appendFix(src *LiveTrack, i int) {
	t.Lat = append(t.Lat, src.Lat[i])
	t.Lon = append(t.Lon, src.Lon[i])
	t.Alt = append(t.Alt, src.Alt[i])
	t.TimeSec = append(t.TimeSec, src.TimeSec[i])
	t.Flags = append(t.Flags, src.Flags[i])
	if e, ok := src.ExtraAt(i); ok {
		if t.Extra == nil {
			t.Extra = make(map[int]LiveExtra)
		}
		t.Extra[len(t.TimeSec)-1] = e
	}
}

// replaceLast overwrites the newest fix of t with fix i of src.
func (t *LiveTrack) replaceLast(src *LiveTrack, i int) {
	last := len(t.TimeSec) - 1
	t.Lat[last] = src.Lat[i]
	t.Lon[last] = src.Lon[i]
	t.Alt[last] = src.Alt[i]
	t.TimeSec[last] = src.TimeSec[i]
	t.Flags[last] = src.Flags[i]
	if e, ok := src.ExtraAt(i); ok {
		if t.Extra == nil {
			t.Extra = make(map[int]LiveExtra)
		}
		t.Extra[last] = e
	} else if t.Extra != nil {
		delete(t.Extra, last)
	}
}

// compact keeps the fixes for which keep[i] is true, in order, and
// re-indexes Extra to the new positions.
func (t *LiveTrack) compact(keep []bool) {
	var extra map[int]LiveExtra
	if len(t.Extra) > 0 {
		extra = make(map[int]LiveExtra, len(t.Extra))
	}
	j := 0
	for i := range t.TimeSec {
		if !keep[i] {
			continue
		}
		t.Lat[j] = t.Lat[i]
		t.Lon[j] = t.Lon[i]
		t.Alt[j] = t.Alt[i]
		t.TimeSec[j] = t.TimeSec[i]
		t.Flags[j] = t.Flags[i]
		if e, ok := t.ExtraAt(i); ok {
			extra[j] = e
		}
		j++
	}
	t.Lat = t.Lat[:j]
	t.Lon = t.Lon[:j]
	t.Alt = t.Alt[:j]
	t.TimeSec = t.TimeSec[:j]
	t.Flags = t.Flags[:j]
	if len(extra) == 0 {
		extra = nil
	}
	t.Extra = extra
}
