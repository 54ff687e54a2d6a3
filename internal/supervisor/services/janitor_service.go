// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package services

import (
	"context"
	"time"

	"github.com/vicb/flyXC-sub000/internal/logging"
)

// ZombieKiller is implemented by *proxy.Manager.
type ZombieKiller interface {
	KillZombies(ctx context.Context) error
}

// JanitorService deletes orphaned relay proxy instances every interval,
// starting with a pass at startup to clean up after a previous process.
type JanitorService struct {
	killer   ZombieKiller
	interval time.Duration
	name     string
}

// NewJanitorService creates the relay proxy janitor.
func NewJanitorService(killer ZombieKiller, interval time.Duration) *JanitorService {
	return &JanitorService{
		killer:   killer,
		interval: interval,
		name:     "proxy-janitor",
	}
}

// Serve implements suture.Service.
func (s *JanitorService) Serve(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		if err := s.killer.KillZombies(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Msg("Relay proxy cleanup failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *JanitorService) String() string {
	return s.name
}
