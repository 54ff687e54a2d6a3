// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package orchestrator

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/kv"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

type syncMode int

const (
	// syncAuto runs whichever sync is due.
	syncAuto syncMode = iota
	syncFull
	syncPartial
)

// syncRoster refreshes the roster from the roster store. A full sync
// replaces the whole roster and deletes pilots and fleets missing from the
// store; a partial sync only applies the records updated since the last
// known update and never deletes. Failed syncs are retried on the next tick.
func (o *Orchestrator) syncRoster(ctx context.Context, nowSec int64, mode syncMode) {
	if o.deps.Store == nil {
		return
	}
	r := o.roster
	if mode == syncAuto {
		switch {
		case nowSec >= r.NextFullSyncSec:
			mode = syncFull
		case nowSec >= r.NextPartialSyncSec:
			mode = syncPartial
		default:
			return
		}
	}

	log := logging.Ctx(ctx)
	if mode == syncFull {
		stats, err := o.fullSync(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Full roster sync failed")
			return
		}
		r.NextFullSyncSec = nowSec + int64(o.cfg.Fetcher.FullSyncInterval.Seconds())
		r.NextPartialSyncSec = nowSec + int64(o.cfg.Fetcher.PartialSyncInterval.Seconds())
		log.Info().
			Int("added", stats.Added).
			Int("updated", stats.Updated).
			Int("removed", stats.Removed).
			Int("pilots", len(r.Pilots)).
			Msg("Full roster sync")
		return
	}

	stats, err := o.partialSync(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Partial roster sync failed")
		return
	}
	r.NextPartialSyncSec = nowSec + int64(o.cfg.Fetcher.PartialSyncInterval.Seconds())
	if stats.Added+stats.Updated > 0 {
		log.Info().
			Int("added", stats.Added).
			Int("updated", stats.Updated).
			Msg("Partial roster sync")
	}
}

func (o *Orchestrator) fullSync(ctx context.Context) (roster.SyncStats, error) {
	pilots, err := o.deps.Store.ListPilots(ctx)
	if err != nil {
		return roster.SyncStats{}, fmt.Errorf("list pilots: %w", err)
	}
	fleets, err := o.deps.Store.ListFleets(ctx)
	if err != nil {
		return roster.SyncStats{}, fmt.Errorf("list fleets: %w", err)
	}

	r := o.roster
	stats := r.ApplyPilots(pilots)
	presentPilots := make(map[int64]struct{}, len(pilots))
	for _, rec := range pilots {
		presentPilots[rec.ID] = struct{}{}
	}
	stats.Removed = r.RemoveMissingPilots(presentPilots)

	fleetStats := r.ApplyFleets(fleets)
	presentFleets := make(map[string]struct{}, len(fleets))
	for _, rec := range fleets {
		presentFleets[rec.Name] = struct{}{}
	}
	stats.Added += fleetStats.Added
	stats.Updated += fleetStats.Updated
	stats.Removed += r.RemoveMissingFleets(presentFleets)
	return stats, nil
}

func (o *Orchestrator) partialSync(ctx context.Context) (roster.SyncStats, error) {
	r := o.roster
	// Both queries use the high-water mark from before this sync.
	since := r.LastUpdatedMs
	pilots, err := o.deps.Store.ListPilotsUpdatedSince(ctx, since)
	if err != nil {
		return roster.SyncStats{}, fmt.Errorf("list updated pilots: %w", err)
	}
	fleets, err := o.deps.Store.ListFleetsUpdatedSince(ctx, since)
	if err != nil {
		return roster.SyncStats{}, fmt.Errorf("list updated fleets: %w", err)
	}
	stats := r.ApplyPilots(pilots)
	fleetStats := r.ApplyFleets(fleets)
	stats.Added += fleetStats.Added
	stats.Updated += fleetStats.Updated
	return stats, nil
}

// syncSupporters refreshes the supporter summary and mirrors it to the KV store.
func (o *Orchestrator) syncSupporters(ctx context.Context, nowSec int64) {
	r := o.roster
	if o.deps.Store == nil || nowSec < r.NextSupporterSyncSec {
		return
	}
	log := logging.Ctx(ctx)
	supporters, err := o.deps.Store.Supporters(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Supporter sync failed")
		return
	}
	r.Supporters = supporters
	r.NextSupporterSyncSec = nowSec + int64(o.cfg.Fetcher.SupporterSyncInterval.Seconds())

	data, err := json.Marshal(supporters)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode supporters")
		return
	}
	if err := o.deps.KV.Set(ctx, kv.KeySupporters, data, 0); err != nil {
		log.Warn().Err(err).Msg("Failed to store supporters")
	}
}
