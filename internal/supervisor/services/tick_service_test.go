// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/vicb/flyXC-sub000/internal/orchestrator"
)

var (
	_ suture.Service = (*TickService)(nil)
	_ suture.Service = (*APRSService)(nil)
	_ suture.Service = (*JanitorService)(nil)
)

type fakeTicker struct {
	ticks      atomic.Int32
	shutdowns  atomic.Int32
	stopAfter  int32
	inFlight   atomic.Int32
	overlapped atomic.Bool
	tickDelay  time.Duration
}

func (f *fakeTicker) Tick(ctx context.Context) (orchestrator.TickReport, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	defer f.inFlight.Add(-1)
	n := f.ticks.Add(1)
	if f.tickDelay > 0 {
		time.Sleep(f.tickDelay)
	}
	if f.stopAfter > 0 && n >= f.stopAfter {
		return orchestrator.TickReport{Ran: true}, orchestrator.ErrShutdown
	}
	return orchestrator.TickReport{Ran: true}, nil
}

func (f *fakeTicker) Shutdown(context.Context) error {
	if f.inFlight.Load() != 0 {
		return errors.New("shutdown while a tick is running")
	}
	f.shutdowns.Add(1)
	return nil
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTickServiceTicksImmediately(t *testing.T) {
	t.Parallel()

	ticker := &fakeTicker{}
	svc := NewTickService(ticker, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	waitUntil(t, func() bool { return ticker.ticks.Load() == 1 })
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if got := ticker.shutdowns.Load(); got != 1 {
		t.Errorf("Shutdown calls = %d, want 1", got)
	}
}

func TestTickServiceWaitsForRunningTick(t *testing.T) {
	t.Parallel()

	ticker := &fakeTicker{tickDelay: 100 * time.Millisecond}
	svc := NewTickService(ticker, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	waitUntil(t, func() bool { return ticker.inFlight.Load() == 1 })
	cancel()
	<-errCh

	// The fake refuses Shutdown while a tick is in flight.
	if got := ticker.shutdowns.Load(); got != 1 {
		t.Errorf("Shutdown calls = %d, want 1", got)
	}
}

func TestTickServiceTerminatesOnShutdownDeadline(t *testing.T) {
	t.Parallel()

	ticker := &fakeTicker{stopAfter: 3}
	svc := NewTickService(ticker, 5*time.Millisecond, time.Second)

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(context.Background()) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
			t.Errorf("Serve() = %v, want ErrTerminateSupervisorTree", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if got := ticker.shutdowns.Load(); got != 0 {
		t.Errorf("Shutdown calls = %d, want 0", got)
	}
}

func TestTickServiceDefaults(t *testing.T) {
	t.Parallel()

	svc := NewTickService(&fakeTicker{}, time.Minute, 0)
	if svc.shutdownTimeout != 30*time.Second {
		t.Errorf("shutdownTimeout = %v, want 30s", svc.shutdownTimeout)
	}
	if svc.String() != "tick-loop" {
		t.Errorf("String() = %q", svc.String())
	}
}

type fakeConnector struct {
	connects    atomic.Int32
	disconnects atomic.Int32
	err         error
}

func (f *fakeConnector) MaybeConnect(context.Context) error {
	f.connects.Add(1)
	return f.err
}

func (f *fakeConnector) Disconnect() {
	f.disconnects.Add(1)
}

func TestAPRSService(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"connected", nil},
		{"failing", errors.New("connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := &fakeConnector{err: tt.err}
			svc := NewAPRSService(client, 5*time.Millisecond)

			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- svc.Serve(ctx) }()

			waitUntil(t, func() bool { return client.connects.Load() >= 3 })
			cancel()

			if err := <-errCh; !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
			if got := client.disconnects.Load(); got != 1 {
				t.Errorf("Disconnect calls = %d, want 1", got)
			}
		})
	}
}

type fakeKiller struct {
	passes atomic.Int32
}

func (f *fakeKiller) KillZombies(context.Context) error {
	f.passes.Add(1)
	return errors.New("list failed")
}

func TestJanitorService(t *testing.T) {
	t.Parallel()

	killer := &fakeKiller{}
	svc := NewJanitorService(killer, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	// The first pass runs at startup, not after the first interval.
	waitUntil(t, func() bool { return killer.passes.Load() == 1 })
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if svc.String() != "proxy-janitor" {
		t.Errorf("String() = %q", svc.String())
	}
}
