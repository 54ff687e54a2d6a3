// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testDevices(n int) []Device {
	devices := make([]Device, n)
	for i := range devices {
		devices[i] = Device{PilotID: int64(i + 1)}
	}
	return devices
}

func TestPooled(t *testing.T) {
	t.Parallel()

	t.Run("serves every device", func(t *testing.T) {
		t.Parallel()
		var served atomic.Int32
		err := pooled(context.Background(), testDevices(20), 4, func(context.Context, Device) error {
			served.Add(1)
			return nil
		})
		if err != nil || served.Load() != 20 {
			t.Errorf("pooled() = %v after %d devices, want nil after 20", err, served.Load())
		}
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		t.Parallel()
		var running, peak atomic.Int32
		err := pooled(context.Background(), testDevices(12), 3, func(context.Context, Device) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatalf("pooled() = %v", err)
		}
		if peak.Load() > 3 {
			t.Errorf("expected at most 3 concurrent workers, got %d", peak.Load())
		}
	})

	t.Run("device errors do not stop the pool", func(t *testing.T) {
		t.Parallel()
		var served atomic.Int32
		err := pooled(context.Background(), testDevices(5), 2, func(context.Context, Device) error {
			served.Add(1)
			return errors.New("boom")
		})
		if err != nil || served.Load() != 5 {
			t.Errorf("pooled() = %v after %d devices", err, served.Load())
		}
	})

	t.Run("rate limit short circuits", func(t *testing.T) {
		t.Parallel()
		var served atomic.Int32
		err := pooled(context.Background(), testDevices(50), 1, func(context.Context, Device) error {
			served.Add(1)
			return &RateLimitError{Vendor: "test", RetryAfter: time.Minute}
		})
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			t.Fatalf("pooled() = %v, want a RateLimitError", err)
		}
		if served.Load() != 1 {
			t.Errorf("expected a single request, got %d", served.Load())
		}
	})

	t.Run("deadline reports a single timeout", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := pooled(ctx, testDevices(100), 2, func(ctx context.Context, _ Device) error {
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Millisecond):
			}
			return nil
		})
		if !errors.Is(err, ErrFetchTimeout) {
			t.Errorf("pooled() = %v, want ErrFetchTimeout", err)
		}
	})
}

func TestSequentialAndBatched(t *testing.T) {
	t.Parallel()

	t.Run("sequential stops on rate limit", func(t *testing.T) {
		t.Parallel()
		var order []int64
		err := sequential(context.Background(), testDevices(4), func(_ context.Context, d Device) error {
			order = append(order, d.PilotID)
			if d.PilotID == 2 {
				return &RateLimitError{RetryAfter: time.Minute}
			}
			return nil
		})
		if !isRateLimit(err) || len(order) != 2 {
			t.Errorf("sequential() = %v after %v", err, order)
		}
	})

	t.Run("sequential times out", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := sequential(ctx, testDevices(2), func(context.Context, Device) error { return nil })
		if !errors.Is(err, ErrFetchTimeout) {
			t.Errorf("sequential() = %v, want ErrFetchTimeout", err)
		}
	})

	t.Run("batched splits devices", func(t *testing.T) {
		t.Parallel()
		var sizes []int
		err := batched(context.Background(), testDevices(23), 10, func(_ context.Context, batch []Device) error {
			sizes = append(sizes, len(batch))
			return nil
		})
		if err != nil || len(sizes) != 3 || sizes[0] != 10 || sizes[2] != 3 {
			t.Errorf("batched() = %v with batch sizes %v", err, sizes)
		}
	})
}
