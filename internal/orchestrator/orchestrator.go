// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package orchestrator runs the fetcher tick: every vendor fetcher in
// parallel, merge and retention of the returned deltas, ground altitude
// backfill, then the periodic housekeeping (roster sync, snapshots,
// archives, supporters, commands) and the downstream publication.
//
// Ticks never overlap. A tick that fires while the previous one is still
// running is dropped without touching any state. The roster is only
// mutated from inside a tick.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vicb/flyXC-sub000/internal/aprs"
	"github.com/vicb/flyXC-sub000/internal/blob"
	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/elevation"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/metrics"
	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/roster"
	"github.com/vicb/flyXC-sub000/internal/trackers"
)

// ErrShutdown is returned by Tick once the configured run time is over and
// the shutdown snapshot has been written.
var ErrShutdown = errors.New("fetcher shutdown requested")

// TrackerFetcher refreshes the devices of one vendor.
type TrackerFetcher interface {
	Kind() models.TrackerKind
	Refresh(ctx context.Context, timeout time.Duration) *trackers.FetchCycleResult
}

// FleetFetcher refreshes one UFO fleet.
type FleetFetcher interface {
	Name() string
	Refresh(ctx context.Context, timeout time.Duration) *trackers.FleetCycleResult
}

// RosterStore is the source of pilot, fleet and supporter records.
type RosterStore interface {
	ListPilots(ctx context.Context) ([]roster.PilotRecord, error)
	ListPilotsUpdatedSince(ctx context.Context, sinceMs int64) ([]roster.PilotRecord, error)
	ListFleets(ctx context.Context) ([]roster.FleetRecord, error)
	ListFleetsUpdatedSince(ctx context.Context, sinceMs int64) ([]roster.FleetRecord, error)
	Supporters(ctx context.Context) (roster.Supporters, error)
}

// BlobStore persists snapshots and archives.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]blob.Object, error)
	Delete(ctx context.Context, name string) error
}

// KV is the key-value store used for commands, telemetry and published data.
type KV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Take(ctx context.Context, key string) ([]byte, error)
	DecrPositive(ctx context.Context, key string) (bool, error)
	PushCapped(ctx context.Context, key, value string, max int) error
	PushCappedAll(ctx context.Context, key string, values []string, max int) error
}

// Elevation looks up ground altitudes.
type Elevation interface {
	Lookup(ctx context.Context, points []elevation.Point) ([]int32, error)
}

// Publisher sends encoded track snapshots downstream.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload []byte) error
}

// Pusher bridges fixes onto the APRS network.
type Pusher interface {
	Push(now time.Time, candidates []aprs.Candidate) (int, error)
}

// LogSource provides the lifecycle log lines of the APRS client.
type LogSource interface {
	DrainLogs() []string
}

// Deps are the collaborators of the orchestrator. Only Blobs and KV are
// required.
type Deps struct {
	Fetchers      []TrackerFetcher
	FleetFetchers []FleetFetcher

	Store     RosterStore
	Blobs     BlobStore
	KV        KV
	Elevation Elevation
	Publisher Publisher
	Pusher    Pusher
	APRSLogs  LogSource
}

// TickReport describes one tick.
type TickReport struct {
	// Ran is false when the tick was dropped because another one was running.
	Ran           bool
	Duration      time.Duration
	FetchDuration time.Duration
	// Tracks is the number of pilot and vehicle tracks updated.
	Tracks int
	Fixes  int
	Errors []error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// Orchestrator owns the roster and runs the ticks.
type Orchestrator struct {
	cfg    *config.Config
	roster *roster.Roster
	deps   Deps
	clock  func() time.Time

	startedAt time.Time
	hostname  string

	ticking atomic.Bool
	// tickMu serializes Tick and Shutdown on the roster.
	tickMu sync.Mutex
	status atomic.Pointer[Status]
}

// New creates an orchestrator for r, which is usually the output of Restore.
func New(cfg *config.Config, r *roster.Roster, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		roster: r,
		deps:   deps,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.startedAt = o.clock()
	o.hostname = cfg.Fetcher.Hostname
	if o.hostname == "" {
		if h, err := os.Hostname(); err == nil {
			o.hostname = h
		} else {
			o.hostname = "unknown"
		}
	}
	o.storeStatus(nil)
	return o
}

// Roster returns the roster. It must not be mutated outside of a tick.
func (o *Orchestrator) Roster() *roster.Roster {
	return o.roster
}

// Ticking reports whether a tick is in progress.
func (o *Orchestrator) Ticking() bool {
	return o.ticking.Load()
}

// Tick runs one tick. It returns ErrShutdown when the process should exit.
func (o *Orchestrator) Tick(ctx context.Context) (report TickReport, err error) {
	if !o.ticking.CompareAndSwap(false, true) {
		logging.Debug().Msg("Tick dropped, previous tick still running")
		metrics.RecordTick("skipped", 0)
		return TickReport{}, nil
	}
	defer o.ticking.Store(false)

	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	start := o.clock()
	report.Ran = true

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Tick aborted by panic")
			report.Errors = append(report.Errors, fmt.Errorf("tick panic: %v", rec))
			err = nil
		}
		report.Duration = o.clock().Sub(start)
		result := "success"
		switch {
		case errors.Is(err, ErrShutdown):
			result = "shutdown"
		case len(report.Errors) > 0:
			result = "error"
		}
		metrics.RecordTick(result, report.Duration)
		o.storeStatus(&report)
	}()

	r := o.roster
	nowSec := start.Unix()
	r.NumTicks++
	r.LastTickSec = nowSec
	o.recordMemory()

	fetchStart := o.clock()
	results, fleetResults := o.fetchAll(ctx)
	report.FetchDuration = o.clock().Sub(fetchStart)

	touched := o.mergeResults(nowSec, results, fleetResults, &report)
	o.expireStale(nowSec, touched)
	o.backfillElevation(ctx)
	metrics.Pilots.Set(float64(len(r.Pilots)))

	o.publish(ctx, start, touched)

	if o.shutdownDue(start) {
		if err := o.exportTo(ctx, ShutdownSnapshotPath); err != nil {
			log.Error().Err(err).Msg("Failed to persist shutdown snapshot")
			report.Errors = append(report.Errors, err)
		}
		log.Info().Dur("uptime", start.Sub(o.startedAt)).Msg("Shutdown deadline reached")
		return report, ErrShutdown
	}

	o.syncRoster(ctx, nowSec, syncAuto)
	o.exportPeriodic(ctx, start)
	o.syncSupporters(ctx, nowSec)
	o.runCommands(ctx, nowSec)
	o.recordHost(ctx, start, report)

	log.Info().
		Int64("tick", r.NumTicks).
		Int("tracks", report.Tracks).
		Int("fixes", report.Fixes).
		Dur("fetch", report.FetchDuration).
		Dur("duration", o.clock().Sub(start)).
		Msg("Tick complete")
	return report, nil
}

func (o *Orchestrator) shutdownDue(now time.Time) bool {
	after := o.cfg.Fetcher.ShutdownAfter
	return after > 0 && !now.Before(o.startedAt.Add(after))
}

func (o *Orchestrator) recordMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	o.roster.Memory = roster.MemoryStats{
		HeapAllocMB:  float64(m.HeapAlloc) / (1 << 20),
		SysMB:        float64(m.Sys) / (1 << 20),
		NumGC:        m.NumGC,
		NumGoroutine: runtime.NumGoroutine(),
	}
}

// fetchAll runs every fetcher concurrently and waits for all of them. A
// fetcher that panics yields no result; the others are unaffected.
func (o *Orchestrator) fetchAll(ctx context.Context) ([]*trackers.FetchCycleResult, []*trackers.FleetCycleResult) {
	timeout := o.cfg.Fetcher.FetchTimeout
	results := make([]*trackers.FetchCycleResult, len(o.deps.Fetchers))
	fleetResults := make([]*trackers.FleetCycleResult, len(o.deps.FleetFetchers))

	var wg sync.WaitGroup
	for i, f := range o.deps.Fetchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverFetcher(ctx, f.Kind().String())
			results[i] = f.Refresh(ctx, timeout)
		}()
	}
	for i, f := range o.deps.FleetFetchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer recoverFetcher(ctx, f.Name())
			fleetResults[i] = f.Refresh(ctx, timeout)
		}()
	}
	wg.Wait()
	return results, fleetResults
}

func recoverFetcher(ctx context.Context, name string) {
	if rec := recover(); rec != nil {
		logging.Ctx(ctx).Error().
			Str("vendor", name).
			Interface("panic", rec).
			Str("stack", string(debug.Stack())).
			Msg("Fetcher panicked")
		metrics.RecordVendorError(name, "panic")
	}
}
