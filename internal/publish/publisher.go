// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package publish sends live track snapshots to downstream consumers over
// NATS. Delivery is best effort: a snapshot that cannot be published is
// dropped and the next tick publishes a fresh one.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/metrics"
)

// Snapshot kinds.
const (
	KindFull        = "full"
	KindIncremental = "inc"
)

const breakerName = "publish"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher is closed")

// Snapshot is the downstream payload: differential encoded tracks.
// Pilot tracks carry the pilot id, vehicle tracks are keyed "<fleet>/<id>".
type Snapshot struct {
	Kind    string                          `json:"kind"`
	TimeSec int64                           `json:"timeSec"`
	Tracks  []*livetrack.DiffTrack          `json:"tracks"`
	Ufos    map[string]*livetrack.DiffTrack `json:"ufos,omitempty"`
}

// Marshal encodes s as JSON.
func Marshal(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", s.Kind, err)
	}
	return data, nil
}

// Publisher publishes snapshots on "<prefix>.<kind>" subjects through a
// circuit breaker.
type Publisher struct {
	publisher message.Publisher
	prefix    string
	cb        *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// New connects a core NATS publisher. The connection is retried in the
// background when the server is not reachable yet.
func New(cfg *config.NATSConfig) (*Publisher, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "publish"))

	natsOpts := []natsgo.Option{
		natsgo.Name("flyxc-fetcher"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return NewWithPublisher(pub, cfg.SubjectPrefix), nil
}

// NewWithPublisher wraps an existing watermill publisher.
func NewWithPublisher(pub message.Publisher, prefix string) *Publisher {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.BreakerStateChange(name, from, to)
		},
	})
	return &Publisher{publisher: pub, prefix: prefix, cb: cb}
}

// Subject returns the subject used for kind.
func (p *Publisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

// Publish sends payload on the subject of kind.
func (p *Publisher) Publish(ctx context.Context, kind string, payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", kind)
	msg.SetContext(ctx)

	_, err := p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.publisher.Publish(p.Subject(kind), msg)
	})
	metrics.RecordPublish(kind, err)
	if err != nil {
		return fmt.Errorf("publish %s snapshot: %w", kind, err)
	}
	return nil
}

// Close flushes and closes the underlying publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
