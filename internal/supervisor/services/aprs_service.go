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

// APRSConnector is implemented by *aprs.Client.
type APRSConnector interface {
	MaybeConnect(ctx context.Context) error
	Disconnect()
}

// APRSService keeps the glider network connection alive. Every interval it
// connects when disconnected or when the server keep-alives went stale.
// Connection failures are logged and retried on the next interval.
type APRSService struct {
	client   APRSConnector
	interval time.Duration
	name     string
}

// NewAPRSService creates the connection keeper.
func NewAPRSService(client APRSConnector, interval time.Duration) *APRSService {
	return &APRSService{
		client:   client,
		interval: interval,
		name:     "aprs-keeper",
	}
}

// Serve implements suture.Service.
func (s *APRSService) Serve(ctx context.Context) error {
	defer s.client.Disconnect()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		if err := s.client.MaybeConnect(ctx); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Msg("APRS connection failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *APRSService) String() string {
	return s.name
}
