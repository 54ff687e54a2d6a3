// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"regexp"
	"strings"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

var ognDeviceID = regexp.MustCompile(`^[0-9A-F]{6}$`)

// PositionSource buffers the positions received from the glider network.
type PositionSource interface {
	// RegisterTrackedIDs replaces the set of device ids to buffer.
	RegisterTrackedIDs(ids map[string]struct{})
	// DrainPositions returns and clears the buffered positions by device id.
	DrainPositions() map[string][]models.Position
}

// OgnStrategy drains the APRS client. The client is fed continuously, each
// refresh only registers the tracked ids and collects what was buffered.
type OgnStrategy struct {
	source PositionSource
}

// NewOgnStrategy creates the OGN strategy.
func NewOgnStrategy(source PositionSource) *OgnStrategy {
	return &OgnStrategy{source: source}
}

func (s *OgnStrategy) Kind() models.TrackerKind { return models.Ogn }
func (s *OgnStrategy) FetchAll() bool           { return true }
func (s *OgnStrategy) Curve() Curve             { return everyTickCurve }

func (s *OgnStrategy) Fetch(_ context.Context, devices []Device, result *FetchCycleResult) error {
	byID := make(map[string]int64, len(devices))
	ids := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		id := strings.ToUpper(strings.TrimSpace(d.Account))
		if !ognDeviceID.MatchString(id) {
			result.DeviceError(d.PilotID, ErrInvalidAccount)
			continue
		}
		byID[id] = d.PilotID
		ids[id] = struct{}{}
	}

	positions := s.source.DrainPositions()
	s.source.RegisterTrackedIDs(ids)

	for id, pilotID := range byID {
		var fixes []livetrack.Fix
		for _, p := range positions[id] {
			speed := p.Speed
			fixes = append(fixes, livetrack.Fix{
				Lat:     p.Lat,
				Lon:     p.Lon,
				Alt:     p.Alt,
				TimeSec: p.TimeSec,
				Device:  models.Ogn,
				Valid:   true,
				Speed:   &speed,
			})
		}
		result.AddFixes(pilotID, fixes)
	}
	return nil
}
