// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vicb/flyXC-sub000/internal/api"
	"github.com/vicb/flyXC-sub000/internal/aprs"
	"github.com/vicb/flyXC-sub000/internal/blob"
	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/database"
	"github.com/vicb/flyXC-sub000/internal/elevation"
	"github.com/vicb/flyXC-sub000/internal/kv"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/orchestrator"
	"github.com/vicb/flyXC-sub000/internal/proxy"
	"github.com/vicb/flyXC-sub000/internal/publish"
)

// components are the long lived dependencies of the orchestrator. Optional
// ones are nil when disabled.
type components struct {
	kv    *kv.Store
	blobs *blob.FS
	db    *database.DB

	elevation *elevation.Client
	natsd     *publish.EmbeddedServer
	publisher *publish.Publisher
	aprs      *aprs.Client
	pusher    *aprs.Pusher
	gce       *proxy.GCE
	proxy     *proxy.Manager

	closeOnce sync.Once
}

// initComponents opens every component. On error the components opened so
// far are returned so that the caller can close them.
func initComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}
	var err error

	c.kv, err = kv.Open(kv.Config{
		Path:     cfg.Storage.BadgerPath,
		InMemory: cfg.Storage.BadgerInMemory,
	})
	if err != nil {
		return c, fmt.Errorf("open kv store: %w", err)
	}

	c.blobs, err = blob.NewFS(cfg.Storage.BlobDir)
	if err != nil {
		return c, fmt.Errorf("open blob store: %w", err)
	}

	c.db, err = database.New(&cfg.Database)
	if err != nil {
		return c, fmt.Errorf("open roster database: %w", err)
	}
	logging.Info().Str("path", cfg.Database.Path).Msg("Roster database opened")

	if cfg.Elevation.Enabled {
		c.elevation = elevation.New(&cfg.Elevation, nil)
	}

	if cfg.NATS.Enabled {
		if cfg.NATS.EmbeddedServer {
			host, port, err := publish.HostPort(cfg.NATS.URL)
			if err != nil {
				return c, err
			}
			c.natsd, err = publish.StartEmbedded(host, port)
			if err != nil {
				return c, fmt.Errorf("start embedded NATS: %w", err)
			}
			logging.Info().Str("url", c.natsd.ClientURL()).Msg("Embedded NATS server started")
		}
		c.publisher, err = publish.New(&cfg.NATS)
		if err != nil {
			return c, fmt.Errorf("create publisher: %w", err)
		}
	}

	if cfg.APRS.Enabled {
		c.aprs = aprs.New(&cfg.APRS)
		if cfg.APRS.PushEnabled {
			c.pusher = aprs.NewPusher(c.aprs)
		}
	}

	if cfg.Proxy.Enabled {
		c.gce, err = proxy.NewGCE(ctx, &cfg.Proxy)
		if err != nil {
			return c, fmt.Errorf("create compute client: %w", err)
		}
		c.proxy = proxy.NewManager(&cfg.Proxy, c.gce)
	}

	return c, nil
}

// close releases the components in reverse order of creation.
func (c *components) close() {
	c.closeOnce.Do(func() {
		closeLogged := func(name string, fn func() error) {
			if err := fn(); err != nil {
				logging.Error().Err(err).Str("component", name).Msg("Close failed")
			}
		}
		if c.gce != nil {
			closeLogged("gce", c.gce.Close)
		}
		if c.publisher != nil {
			closeLogged("publisher", c.publisher.Close)
		}
		if c.natsd != nil {
			c.natsd.Shutdown()
		}
		if c.db != nil {
			closeLogged("database", c.db.Close)
		}
		if c.kv != nil {
			closeLogged("kv", c.kv.Close)
		}
	})
}

// newOpsHandler wires the readiness checks and component states of the ops
// endpoints.
func newOpsHandler(cfg *config.Config, orch *orchestrator.Orchestrator, c *components) *api.Handler {
	h := api.NewHandler(orch, api.ReadyConfig{
		MaxTickAge: 3 * cfg.Fetcher.RefreshInterval,
	})
	h.AddCheck("database", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return c.db.Ping(ctx)
	})
	if c.aprs != nil {
		h.AddComponent("aprs", func() string { return c.aprs.State().String() })
	}
	if c.proxy != nil {
		h.AddComponent("proxy", func() string { return c.proxy.State().String() })
	}
	return h
}
