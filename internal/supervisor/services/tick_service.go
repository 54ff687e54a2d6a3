// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/orchestrator"
)

// Ticker is implemented by *orchestrator.Orchestrator.
type Ticker interface {
	Tick(ctx context.Context) (orchestrator.TickReport, error)
	Shutdown(ctx context.Context) error
}

// TickService fires a tick every interval, the first one right away.
//
// Each tick runs in its own goroutine so a slow tick does not delay the
// schedule; the orchestrator drops ticks that overlap a running one. When
// the orchestrator reports the end of the run time the whole tree is
// terminated. On cancellation the service waits for the running tick and
// writes the shutdown snapshot.
type TickService struct {
	ticker          Ticker
	interval        time.Duration
	shutdownTimeout time.Duration
	name            string
}

// NewTickService creates the tick loop. A non-positive shutdownTimeout
// defaults to 30s.
func NewTickService(t Ticker, interval, shutdownTimeout time.Duration) *TickService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &TickService{
		ticker:          t,
		interval:        interval,
		shutdownTimeout: shutdownTimeout,
		name:            "tick-loop",
	}
}

// Serve implements suture.Service.
func (s *TickService) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	done := make(chan struct{}, 1)

	fire := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ticker.Tick(ctx); errors.Is(err, orchestrator.ErrShutdown) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		}()
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()

	fire()
	for {
		select {
		case <-t.C:
			fire()

		case <-done:
			// The tick already wrote the shutdown snapshot.
			wg.Wait()
			logging.Info().Msg("Run time over, stopping the fetcher")
			return suture.ErrTerminateSupervisorTree

		case <-ctx.Done():
			wg.Wait()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.ticker.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("Failed to write shutdown snapshot")
			}
			return ctx.Err()
		}
	}
}

func (s *TickService) String() string {
	return s.name
}
