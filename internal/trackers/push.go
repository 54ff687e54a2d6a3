// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"strings"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// Queue is the inbound message queue filled by the webhooks of push vendors.
type Queue interface {
	DrainQueue(ctx context.Context, queue string) ([][]byte, error)
}

// pushMessage is a decoded queue message.
type pushMessage struct {
	account string
	fix     livetrack.Fix
}

// pushStrategy drains the queue of a push vendor. Only devices with queued
// messages are contacted. Messages of unknown devices are dropped.
type pushStrategy struct {
	kind   models.TrackerKind
	queue  Queue
	decode func([]byte) (pushMessage, error)
}

func (s *pushStrategy) Kind() models.TrackerKind { return s.kind }
func (s *pushStrategy) FetchAll() bool           { return true }
func (s *pushStrategy) Curve() Curve             { return everyTickCurve }

func (s *pushStrategy) Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error {
	msgs, err := s.queue.DrainQueue(ctx, s.kind.String())
	if err != nil {
		if ctx.Err() != nil {
			return ErrFetchTimeout
		}
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	byAccount := make(map[string]int64, len(devices))
	for _, d := range devices {
		byAccount[strings.ToLower(strings.TrimSpace(d.Account))] = d.PilotID
	}

	fixes := make(map[int64][]livetrack.Fix)
	dropped := 0
	for _, raw := range msgs {
		msg, err := s.decode(raw)
		if err != nil {
			dropped++
			continue
		}
		pilotID, ok := byAccount[strings.ToLower(msg.account)]
		if !ok {
			dropped++
			continue
		}
		fixes[pilotID] = append(fixes[pilotID], msg.fix)
	}
	for pilotID, f := range fixes {
		result.AddFixes(pilotID, f)
	}

	if dropped > 0 {
		logging.Ctx(ctx).Debug().
			Str("vendor", s.kind.String()).
			Int("dropped", dropped).
			Msg("Dropped queued messages")
	}
	return nil
}
