// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package models

import (
	"fmt"
	"strings"
)

// TrackerKind identifies a live-tracking vendor.
type TrackerKind uint8

// Vendor ordinals. Append only.
const (
	Inreach TrackerKind = iota
	Spot
	Skylines
	Flyme
	Flymaster
	Ogn
	Zoleo
	XContest
	Meshbir

	numTrackerKinds
)

// NumTrackerKinds is the number of known vendors.
const NumTrackerKinds = int(numTrackerKinds)

var trackerNames = [NumTrackerKinds]string{
	Inreach:   "inreach",
	Spot:      "spot",
	Skylines:  "skylines",
	Flyme:     "flyme",
	Flymaster: "flymaster",
	Ogn:       "ogn",
	Zoleo:     "zoleo",
	XContest:  "xcontest",
	Meshbir:   "meshbir",
}

// String returns the lower-case vendor name used in config keys, KV keys and metrics labels.
func (k TrackerKind) String() string {
	if int(k) < NumTrackerKinds {
		return trackerNames[k]
	}
	return fmt.Sprintf("tracker(%d)", uint8(k))
}

// Valid reports whether k is a known vendor.
func (k TrackerKind) Valid() bool {
	return int(k) < NumTrackerKinds
}

// ParseTrackerKind maps a vendor name to its TrackerKind.
func ParseTrackerKind(name string) (TrackerKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range trackerNames {
		if n == name {
			return TrackerKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tracker kind %q", name)
}

// AllTrackerKinds returns every vendor in ordinal order.
func AllTrackerKinds() []TrackerKind {
	kinds := make([]TrackerKind, NumTrackerKinds)
	for i := range kinds {
		kinds[i] = TrackerKind(i)
	}
	return kinds
}

// MarshalText implements encoding.TextMarshaler so TrackerKind works as a map key in JSON.
func (k TrackerKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid tracker kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TrackerKind) UnmarshalText(text []byte) error {
	parsed, err := ParseTrackerKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
