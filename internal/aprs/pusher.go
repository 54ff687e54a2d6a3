// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package aprs

import (
	"fmt"
	"math"
	"time"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
)

const (
	// pushMaxFixAge is the oldest fix pushed to the network.
	pushMaxFixAge = 5 * time.Minute
	// pushNetworkQuiet is how long the network must have been silent about
	// a device before we push its position.
	pushNetworkQuiet = 5 * time.Minute
	pushMinInterval  = time.Minute
)

// Candidate is a pilot whose position may be pushed to the network.
type Candidate struct {
	PilotID int64
	// OgnID is the FLARM/OGN id of the pilot, if any. The position is not
	// pushed while the network reports this id.
	OgnID string
	Track *livetrack.LiveTrack
}

// LineWriter sends lines to the network.
type LineWriter interface {
	Write(line string) error
	LastSeen(id string) (int64, bool)
}

// Pusher bridges the fixes of other vendors onto the APRS network so that
// gliders and collision avoidance displays see flyxc pilots.
type Pusher struct {
	client LineWriter
	// lastPush is the time of the last line sent per pilot.
	lastPush map[int64]int64
}

// NewPusher creates a pusher writing through client.
func NewPusher(client LineWriter) *Pusher {
	return &Pusher{client: client, lastPush: make(map[int64]int64)}
}

// Push sends one line per eligible candidate and returns the number of lines sent.
func (p *Pusher) Push(now time.Time, candidates []Candidate) (int, error) {
	nowSec := now.Unix()
	sent := 0
	seen := make(map[int64]struct{}, len(candidates))
	for _, c := range candidates {
		seen[c.PilotID] = struct{}{}
		if c.Track.IsEmpty() {
			continue
		}
		last := c.Track.Len() - 1
		fixSec := c.Track.TimeSec[last]
		if nowSec-fixSec > int64(pushMaxFixAge/time.Second) {
			continue
		}
		if prev, ok := p.lastPush[c.PilotID]; ok && nowSec-prev < int64(pushMinInterval/time.Second) {
			continue
		}
		if c.OgnID != "" {
			if seenSec, ok := p.client.LastSeen(c.OgnID); ok && nowSec-seenSec < int64(pushNetworkQuiet/time.Second) {
				continue
			}
		}

		if err := p.client.Write(formatPosition(c.PilotID, c.Track, last)); err != nil {
			return sent, err
		}
		p.lastPush[c.PilotID] = nowSec
		sent++
	}

	for id := range p.lastPush {
		if _, ok := seen[id]; !ok {
			delete(p.lastPush, id)
		}
	}
	return sent, nil
}

// formatPosition renders fix i of track as an APRS position report.
func formatPosition(pilotID int64, track *livetrack.LiveTrack, i int) string {
	ts := time.Unix(track.TimeSec[i], 0).UTC()
	lat := track.Lat[i]
	lon := track.Lon[i]

	var course, speedKnots float64
	if extra, ok := track.ExtraAt(i); ok && extra.Speed != nil {
		speedKnots = *extra.Speed / knotsToKmh
	}
	if i > 0 {
		course = bearing(track.Lat[i-1], track.Lon[i-1], lat, lon)
		if speedKnots == 0 {
			if dt := track.TimeSec[i] - track.TimeSec[i-1]; dt > 0 {
				meters := livetrack.Distance(track.Lat[i-1], track.Lon[i-1], lat, lon)
				speedKnots = meters / float64(dt) * 3.6 / knotsToKmh
			}
		}
	}
	altFeet := math.Max(0, float64(track.Alt[i])/feetToMeters)

	return fmt.Sprintf("FXC%06X>OGFLYM,qAS,FLYXC:/%sh%s/%s'%03d/%03d/A=%06d",
		pilotID&0xFFFFFF,
		ts.Format("150405"),
		formatCoord(lat, 2, "N", "S"),
		formatCoord(lon, 3, "E", "W"),
		int(math.Round(course))%360,
		min(int(math.Round(speedKnots)), 999),
		int(math.Round(altFeet)),
	)
}

// formatCoord renders a coordinate as DDMM.mm or DDDMM.mm with its hemisphere.
func formatCoord(v float64, degDigits int, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	// Round to hundredths of minutes first so 59.999 carries into the degrees.
	hundredths := int64(math.Round(v * 60 * 100))
	deg := hundredths / 6000
	minutes := float64(hundredths%6000) / 100
	return fmt.Sprintf("%0*d%05.2f%s", degDigits, deg, minutes, hemi)
}

// bearing returns the initial great circle bearing in degrees [0, 360).
func bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
