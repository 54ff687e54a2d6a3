// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package main is the entry point of the live tracking fetcher.
//
// The fetcher polls the tracker vendors every refresh interval, merges the
// new fixes into the in-memory roster and publishes track snapshots.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, config.yaml, environment)
//  2. Local stores: BadgerDB key-value store, blob directory, DuckDB roster store
//  3. Optional components: elevation, NATS publisher, APRS client, relay proxy
//  4. Roster restore from the newest of the periodic and shutdown snapshots
//  5. Vendor fetchers and the orchestrator, built on the restored roster
//  6. Supervisor tree: tick loop, APRS keeper, proxy janitor, ops HTTP server
//
// SIGINT and SIGTERM stop the tree; the tick service then writes the
// shutdown snapshot. With SHUTDOWN_AFTER set the process exits on its own
// after that duration, which lets a scheduler restart it on fresh memory.
// SIGHUP reloads the configuration and applies its log level.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/vicb/flyXC-sub000/internal/api"
	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/orchestrator"
	"github.com/vicb/flyXC-sub000/internal/supervisor"
	"github.com/vicb/flyXC-sub000/internal/supervisor/services"
	"github.com/vicb/flyXC-sub000/internal/trackers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("hostname", cfg.Fetcher.Hostname).
		Dur("refresh_interval", cfg.Fetcher.RefreshInterval).
		Dur("shutdown_after", cfg.Fetcher.ShutdownAfter).
		Msg("Starting fetcher")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := initComponents(ctx, cfg)
	if err != nil {
		c.close()
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer c.close()

	// Fetchers keep a pointer to the roster: restore it first.
	r := orchestrator.Restore(ctx, c.blobs)

	tdeps := trackers.Deps{
		Roster:     r,
		RelayState: trackers.NewRelayState(),
		Queue:      c.kv,
		Telemetry:  c.kv,
	}
	if c.proxy != nil {
		tdeps.Relay = c.proxy
	}
	if c.aprs != nil {
		tdeps.APRS = c.aprs
	}

	odeps := orchestrator.Deps{
		Store: c.db,
		Blobs: c.blobs,
		KV:    c.kv,
	}
	for _, f := range trackers.NewFetchers(cfg, tdeps) {
		odeps.Fetchers = append(odeps.Fetchers, f)
	}
	for _, f := range trackers.NewFleetFetchers(cfg, tdeps) {
		odeps.FleetFetchers = append(odeps.FleetFetchers, f)
	}
	if c.elevation != nil {
		odeps.Elevation = c.elevation
	}
	if c.publisher != nil {
		odeps.Publisher = c.publisher
	}
	if c.aprs != nil {
		odeps.APRSLogs = c.aprs
		if c.pusher != nil {
			odeps.Pusher = c.pusher
		}
	}

	orch := orchestrator.New(cfg, r, odeps)
	logging.Info().
		Int("vendors", len(odeps.Fetchers)).
		Int("fleets", len(odeps.FleetFetchers)).
		Int("pilots", len(r.Pilots)).
		Msg("Orchestrator ready")

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Fetcher.FetchTimeout + cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewTickService(orch, cfg.Fetcher.RefreshInterval, cfg.Server.ShutdownTimeout))
	if c.aprs != nil {
		tree.AddNetworkService(services.NewAPRSService(c.aprs, cfg.APRS.ServerKeepAlive))
	}
	if c.proxy != nil {
		tree.AddNetworkService(services.NewJanitorService(c.proxy, cfg.Proxy.JanitorInterval))
	}
	tree.AddAPIService(services.NewHTTPServerService(api.NewServer(&cfg.Server, newOpsHandler(cfg, orch, c)), cfg.Server.ShutdownTimeout))

	go reloadOnHangup(ctx)

	logging.Info().Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Info().Err(err).Msg("Supervisor tree stopped")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	if c.proxy != nil {
		c.proxy.Wait()
	}

	logging.Info().Msg("Fetcher stopped")
	if len(unstopped) > 0 {
		c.close()
		os.Exit(1)
	}
}

// reloadOnHangup re-reads the configuration on SIGHUP and applies its log
// level. Other settings need a restart.
func reloadOnHangup(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load()
			if err != nil {
				logging.Warn().Err(err).Msg("Configuration reload failed, keeping the log level")
				continue
			}
			if err := logging.SetLevel(cfg.Logging.Level); err != nil {
				logging.Warn().Err(err).Msg("Invalid log level in the reloaded configuration")
				continue
			}
			logging.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
		}
	}
}
