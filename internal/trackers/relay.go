// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"sync"
	"time"

	"github.com/vicb/flyXC-sub000/internal/metrics"
)

// Relay is the egress proxy used while a vendor rate limits the primary address.
type Relay interface {
	// IsReadyOrStart returns true when Address is usable, otherwise it
	// starts provisioning if needed and returns false.
	IsReadyOrStart(ctx context.Context) bool
	Address() string
	// DetachCurrent releases the current proxy without deleting it.
	DetachCurrent()
}

// RelayState holds the process-wide "use relay until" deadline.
type RelayState struct {
	mu    sync.Mutex
	until time.Time
}

// NewRelayState returns an inactive relay state.
func NewRelayState() *RelayState {
	return &RelayState{}
}

// UseUntil routes requests through the relay until t. An earlier deadline
// never shortens the current one.
func (s *RelayState) UseUntil(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.until) {
		s.until = t
	}
	metrics.RelayActive.Set(1)
}

// Until returns the current deadline.
func (s *RelayState) Until() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.until
}

// Active reports whether requests go through the relay at now.
func (s *RelayState) Active(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := now.Before(s.until)
	metrics.SetBool(metrics.RelayActive, active)
	return active
}
