// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

// Deps are the collaborators of the fetchers.
type Deps struct {
	Roster     *roster.Roster
	RelayState *RelayState

	// Relay is the proxy used by vendors that rate limit the primary address.
	Relay     Relay
	APRS      PositionSource
	Queue     Queue
	Telemetry Telemetry
	Clock     func() time.Time
}

// NewFetchers creates the fetchers of every enabled vendor, in ordinal order.
func NewFetchers(cfg *config.Config, deps Deps) []*Fetcher {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var fetchers []*Fetcher
	for _, kind := range models.AllTrackerKinds() {
		vc := cfg.Vendors.For(kind)
		if vc == nil || !vc.Enabled {
			continue
		}
		strategy := newStrategy(kind, vc, deps, clock)
		if strategy == nil {
			logging.Warn().Str("vendor", kind.String()).Msg("Vendor enabled without its dependencies, skipping")
			continue
		}
		fetchers = append(fetchers, NewFetcher(strategy, deps.Roster, deps.RelayState, cfg.Fetcher.RefreshInterval,
			WithTelemetry(deps.Telemetry),
			WithRelayDuration(cfg.Proxy.RelayDuration),
			WithFetcherClock(clock),
		))
	}
	return fetchers
}

func newStrategy(kind models.TrackerKind, vc *config.VendorConfig, deps Deps, clock func() time.Time) Strategy {
	client := func(opts ...ClientOption) *Client {
		return NewClient(kind.String(), vc, append(opts, WithClock(clock))...)
	}

	switch kind {
	case models.Inreach:
		var opts []ClientOption
		if deps.RelayState != nil && deps.Relay != nil {
			opts = append(opts, WithRelay(deps.RelayState, deps.Relay))
		}
		return NewInreachStrategy(vc, client(opts...), clock)
	case models.Spot:
		return NewSpotStrategy(vc, client(), clock)
	case models.Skylines:
		return NewSkylinesStrategy(vc, client(), clock)
	case models.Flyme:
		return NewFlymeStrategy(vc, client())
	case models.Flymaster:
		return NewFlymasterStrategy(vc, client())
	case models.Ogn:
		if deps.APRS == nil {
			return nil
		}
		return NewOgnStrategy(deps.APRS)
	case models.Zoleo:
		if deps.Queue == nil {
			return nil
		}
		return NewZoleoStrategy(deps.Queue)
	case models.XContest:
		return NewXContestStrategy(vc, client(), clock)
	case models.Meshbir:
		if deps.Queue == nil {
			return nil
		}
		return NewMeshbirStrategy(deps.Queue)
	default:
		return nil
	}
}

// NewFleetFetchers creates the fetchers of the enabled UFO fleets.
func NewFleetFetchers(cfg *config.Config, deps Deps) []*FleetFetcher {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var fetchers []*FleetFetcher
	if vc := &cfg.Fleets.Aviant; vc.Enabled {
		strategy := NewAviantStrategy(vc, NewClient(AviantFleetName, vc, WithClock(clock)))
		fetchers = append(fetchers, NewFleetFetcher(strategy, deps.Roster, cfg.Fetcher.RefreshInterval, WithFetcherClock(clock)))
	}
	return fetchers
}
