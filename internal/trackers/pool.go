// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Execution helpers shared by the strategies. All of them stop at the
// context deadline and then return ErrFetchTimeout once for the vendor.
// They stop early with the RateLimitError when fn returns one.

// sequential calls fn for each device in order.
func sequential(ctx context.Context, devices []Device, fn func(context.Context, Device) error) error {
	for _, d := range devices {
		if ctx.Err() != nil {
			return ErrFetchTimeout
		}
		if err := fn(ctx, d); err != nil {
			if isRateLimit(err) {
				return err
			}
		}
	}
	return nil
}

// batched calls fn with consecutive batches of at most size devices.
func batched(ctx context.Context, devices []Device, size int, fn func(context.Context, []Device) error) error {
	if size <= 0 {
		size = len(devices)
	}
	for start := 0; start < len(devices); start += size {
		if ctx.Err() != nil {
			return ErrFetchTimeout
		}
		end := min(start+size, len(devices))
		if err := fn(ctx, devices[start:end]); err != nil {
			if isRateLimit(err) {
				return err
			}
		}
	}
	return nil
}

// pooled calls fn for each device from a bounded number of workers sharing
// one deadline. The first rate limit response stops the remaining work.
func pooled(ctx context.Context, devices []Device, workers int, fn func(context.Context, Device) error) error {
	if workers <= 0 {
		workers = 1
	}

	var (
		limited   atomic.Bool
		timedOut  atomic.Bool
		limitOnce sync.Once
		limitErr  error
		wg        sync.WaitGroup
	)
	sem := make(chan struct{}, workers)

	for _, d := range devices {
		if limited.Load() {
			break
		}
		if ctx.Err() != nil {
			timedOut.Store(true)
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(d Device) {
			defer wg.Done()
			defer func() { <-sem }()
			if limited.Load() {
				return
			}
			if ctx.Err() != nil {
				timedOut.Store(true)
				return
			}
			if err := fn(ctx, d); err != nil && isRateLimit(err) {
				limitOnce.Do(func() { limitErr = err })
				limited.Store(true)
			}
		}(d)
	}
	wg.Wait()

	switch {
	case limitErr != nil:
		return limitErr
	case timedOut.Load():
		return ErrFetchTimeout
	default:
		return nil
	}
}

func isRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
