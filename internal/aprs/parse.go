// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package aprs

import (
	"regexp"
	"strconv"
	"time"

	"github.com/vicb/flyXC-sub000/internal/models"
)

const (
	feetToMeters = 0.3048
	knotsToKmh   = 1.852
)

// idPattern is the cheap first pass: it only extracts the device id.
var idPattern = regexp.MustCompile(`^(?:FLR|ICA|OGN|SKY|PAW|FNT|RND)([0-9A-F]{6})>`)

// positionPattern matches a full position report:
//
//	ICA3C6742>OGADSB,qAS,AVX1100:/181728h5022.93N/00925.77E^223/318/A=011197 !W42! ...
var positionPattern = regexp.MustCompile(
	`^(?:FLR|ICA|OGN|SKY|PAW|FNT|RND)([0-9A-F]{6})>[^:]*:[/@](\d{2})(\d{2})(\d{2})h` +
		`(\d{2})(\d{2}\.\d{2})([NS]).(\d{3})(\d{2}\.\d{2})([EW]).` +
		`(?:(\d{3})/(\d{3}))?/A=(-?\d{5,6})` +
		`(?:\s!W(\d)(\d)!)?`)

// deviceID returns the id of a device line, or "" when the line is not
// from a known device type.
func deviceID(line string) string {
	m := idPattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// parsePosition decodes a position line. The report only carries the time
// of day; it is resolved to the most recent matching instant at or before
// now (allowing a few minutes of clock skew).
func parsePosition(line string, now time.Time) (models.Position, bool) {
	m := positionPattern.FindStringSubmatch(line)
	if m == nil {
		return models.Position{}, false
	}

	hh, _ := strconv.Atoi(m[2])
	mm, _ := strconv.Atoi(m[3])
	ss, _ := strconv.Atoi(m[4])
	if hh > 23 || mm > 59 || ss > 59 {
		return models.Position{}, false
	}

	latDeg, _ := strconv.ParseFloat(m[5], 64)
	latMin, _ := strconv.ParseFloat(m[6], 64)
	lonDeg, _ := strconv.ParseFloat(m[8], 64)
	lonMin, _ := strconv.ParseFloat(m[9], 64)
	// The precision enhancement adds a third decimal to the minutes.
	if m[14] != "" {
		latExtra, _ := strconv.ParseFloat(m[14], 64)
		lonExtra, _ := strconv.ParseFloat(m[15], 64)
		latMin += latExtra / 1000
		lonMin += lonExtra / 1000
	}
	lat := latDeg + latMin/60
	if m[7] == "S" {
		lat = -lat
	}
	lon := lonDeg + lonMin/60
	if m[10] == "W" {
		lon = -lon
	}

	var course int
	var speed float64
	if m[11] != "" {
		course, _ = strconv.Atoi(m[11])
		knots, _ := strconv.Atoi(m[12])
		speed = float64(knots) * knotsToKmh
	}
	altFeet, _ := strconv.Atoi(m[13])

	return models.Position{
		ID:      m[1],
		Lat:     lat,
		Lon:     lon,
		Alt:     float64(altFeet) * feetToMeters,
		TimeSec: resolveTimeOfDay(now, hh, mm, ss),
		Course:  course,
		Speed:   speed,
	}, true
}

// maxClockSkew tolerates reports slightly ahead of the local clock.
const maxClockSkew = 5 * time.Minute

func resolveTimeOfDay(now time.Time, hh, mm, ss int) int64 {
	now = now.UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, ss, 0, time.UTC)
	if t.After(now.Add(maxClockSkew)) {
		t = t.AddDate(0, 0, -1)
	}
	return t.Unix()
}
