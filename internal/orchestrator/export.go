// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/vicb/flyXC-sub000/internal/blob"
	"github.com/vicb/flyXC-sub000/internal/kv"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

// Blob paths.
const (
	StateSnapshotPath    = "fetcher/state.cbor.zst"
	ShutdownSnapshotPath = "fetcher/shutdown.cbor.zst"
	ArchivePrefix        = "fetcher/archives/"

	archiveDateLayout = "2006-01-02"
	snapshotExt       = ".cbor.zst"
)

// ArchivePath returns the dated archive path of day t.
func ArchivePath(t time.Time) string {
	return ArchivePrefix + t.UTC().Format(archiveDateLayout) + snapshotExt
}

// Restore loads the most recent of the periodic and shutdown snapshots,
// judged by the tick time they record. Without a usable snapshot it returns
// a fresh roster, which forces a full sync on the first tick. NumStarts is
// incremented either way.
func Restore(ctx context.Context, blobs BlobStore) *roster.Roster {
	var best *roster.Roster
	var bestPath string
	for _, p := range []string{StateSnapshotPath, ShutdownSnapshotPath} {
		data, err := blobs.Get(ctx, p)
		if err != nil {
			if !errors.Is(err, blob.ErrNotFound) {
				logging.Warn().Err(err).Str("path", p).Msg("Failed to read snapshot")
			}
			continue
		}
		r, err := roster.DecodeSnapshot(data)
		if err != nil {
			logging.Warn().Err(err).Str("path", p).Msg("Discarding unreadable snapshot")
			continue
		}
		if best == nil || r.LastTickSec > best.LastTickSec {
			best, bestPath = r, p
		}
	}

	if best == nil {
		logging.Info().Msg("No snapshot to restore, starting from an empty roster")
		best = roster.New()
	} else {
		logging.Info().
			Str("path", bestPath).
			Int("pilots", len(best.Pilots)).
			Int64("last_tick_sec", best.LastTickSec).
			Msg("Roster restored")
	}
	best.NumStarts++
	return best
}

// Shutdown waits for a running tick and persists the shutdown snapshot.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()
	if err := o.exportTo(ctx, ShutdownSnapshotPath); err != nil {
		return err
	}
	logging.Info().Int("pilots", len(o.roster.Pilots)).Msg("Shutdown snapshot written")
	return nil
}

func (o *Orchestrator) exportTo(ctx context.Context, name string) error {
	data, err := roster.EncodeSnapshot(o.roster)
	if err != nil {
		return err
	}
	if err := o.deps.Blobs.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// exportPeriodic writes the periodic snapshot and the daily archive when
// due. Failures are retried on the next tick.
func (o *Orchestrator) exportPeriodic(ctx context.Context, now time.Time) {
	r := o.roster
	nowSec := now.Unix()
	log := logging.Ctx(ctx)

	if nowSec >= r.NextExportSec {
		prev := r.NextExportSec
		// Advanced before encoding so that the snapshot records it.
		r.NextExportSec = nowSec + int64(o.cfg.Fetcher.ExportInterval.Seconds())
		if err := o.exportTo(ctx, StateSnapshotPath); err != nil {
			r.NextExportSec = prev
			log.Error().Err(err).Msg("Periodic snapshot failed")
		}
	}

	if nowSec >= r.NextArchiveSec {
		prev := r.NextArchiveSec
		r.NextArchiveSec = nextMidnight(now).Unix()
		if err := o.exportTo(ctx, ArchivePath(now)); err != nil {
			r.NextArchiveSec = prev
			log.Error().Err(err).Msg("Daily archive failed")
			return
		}
		if n, err := o.pruneArchives(ctx, now); err != nil {
			log.Warn().Err(err).Msg("Archive pruning failed")
		} else if n > 0 {
			log.Info().Int("deleted", n).Msg("Old archives pruned")
		}
	}
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// pruneArchives deletes the archives older than the retention. The date is
// taken from the file name; objects with another name are left alone.
func (o *Orchestrator) pruneArchives(ctx context.Context, now time.Time) (int, error) {
	objects, err := o.deps.Blobs.List(ctx, ArchivePrefix)
	if err != nil {
		return 0, fmt.Errorf("list archives: %w", err)
	}
	cutoff := now.UTC().AddDate(0, 0, -o.cfg.Fetcher.ArchiveRetentionDays)

	deleted := 0
	var errs []error
	for _, obj := range objects {
		name := strings.TrimSuffix(path.Base(obj.Path), snapshotExt)
		day, err := time.Parse(archiveDateLayout, name)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := o.deps.Blobs.Delete(ctx, obj.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// runCommands executes the commands posted to the KV store since the last tick.
func (o *Orchestrator) runCommands(ctx context.Context, nowSec int64) {
	log := logging.Ctx(ctx)

	if o.takeCommand(ctx, kv.KeyCmdCapture) {
		name := fmt.Sprintf("fetcher/capture-%d%s", nowSec, snapshotExt)
		if err := o.exportTo(ctx, name); err != nil {
			log.Error().Err(err).Msg("State capture failed")
		} else {
			log.Info().Str("path", name).Msg("State captured")
		}
	}

	if o.takeCommand(ctx, kv.KeyCmdExport) {
		if err := o.exportTo(ctx, StateSnapshotPath); err != nil {
			log.Error().Err(err).Msg("Forced export failed")
		} else {
			log.Info().Msg("Forced export done")
		}
	}

	if o.takeCommand(ctx, kv.KeyCmdSyncFull) {
		log.Info().Msg("Forced full sync")
		o.syncRoster(ctx, nowSec, syncFull)
	}

	decremented, err := o.deps.KV.DecrPositive(ctx, kv.KeyCmdSyncCount)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read sync count command")
	} else if decremented {
		log.Info().Msg("Forced partial sync")
		o.syncRoster(ctx, nowSec, syncPartial)
	}
}

// takeCommand consumes key and reports whether it was set.
func (o *Orchestrator) takeCommand(ctx context.Context, key string) bool {
	_, err := o.deps.KV.Take(ctx, key)
	if err == nil {
		return true
	}
	if !errors.Is(err, kv.ErrNotFound) {
		logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to read command")
	}
	return false
}
