// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package models

// Position is one APRS position report of a glider network device.
type Position struct {
	// ID is the 6 hex digit device address, upper case.
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	// Alt in meters.
	Alt     float64 `json:"alt"`
	TimeSec int64   `json:"timeSec"`
	// Course in degrees, Speed in km/h.
	Course int     `json:"course"`
	Speed  float64 `json:"speed"`
}
