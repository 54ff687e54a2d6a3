// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"math"
	"math/rand"
	"time"

	"github.com/vicb/flyXC-sub000/internal/roster"
)

// Step is one segment of a fix-age backoff curve: devices whose last fix is
// at most MaxAge old are polled every Delay.
type Step struct {
	MaxAge time.Duration
	Delay  time.Duration
}

// Curve maps the age of a device's last fix to a polling delay. Steps are
// sorted by MaxAge; ages past the last step use Idle.
type Curve struct {
	Steps []Step
	Idle  time.Duration
}

// Delay returns the polling delay for a last fix age.
func (c Curve) Delay(age time.Duration) time.Duration {
	for _, s := range c.Steps {
		if age <= s.MaxAge {
			return s.Delay
		}
	}
	return c.Idle
}

// DefaultCurve polls live devices every minute and devices silent for
// months every half hour.
var DefaultCurve = Curve{
	Steps: []Step{
		{MaxAge: 30 * time.Minute, Delay: time.Minute},
		{MaxAge: 3 * time.Hour, Delay: 3 * time.Minute},
		{MaxAge: 24 * time.Hour, Delay: 5 * time.Minute},
		{MaxAge: 7 * 24 * time.Hour, Delay: 10 * time.Minute},
		{MaxAge: 30 * 24 * time.Hour, Delay: 20 * time.Minute},
	},
	Idle: 30 * time.Minute,
}

// inreachCurve follows the Garmin feed: devices log every 2 to 10 minutes
// and the feed is rate limited per account, so idle devices are left alone
// for an hour.
var inreachCurve = Curve{
	Steps: []Step{
		{MaxAge: 20 * time.Minute, Delay: 2 * time.Minute},
		{MaxAge: 3 * time.Hour, Delay: 5 * time.Minute},
		{MaxAge: 24 * time.Hour, Delay: 10 * time.Minute},
		{MaxAge: 7 * 24 * time.Hour, Delay: 20 * time.Minute},
		{MaxAge: 30 * 24 * time.Hour, Delay: 30 * time.Minute},
	},
	Idle: time.Hour,
}

// spotCurve respects the 2.5 minute minimum between two requests of the
// same SPOT feed.
var spotCurve = Curve{
	Steps: []Step{
		{MaxAge: 30 * time.Minute, Delay: 3 * time.Minute},
		{MaxAge: 3 * time.Hour, Delay: 5 * time.Minute},
		{MaxAge: 24 * time.Hour, Delay: 10 * time.Minute},
		{MaxAge: 7 * 24 * time.Hour, Delay: 30 * time.Minute},
	},
	Idle: time.Hour,
}

// flymasterCurve polls flying instruments every tick. Instruments are
// off between flights so the idle tiers come quickly.
var flymasterCurve = Curve{
	Steps: []Step{
		{MaxAge: 10 * time.Minute, Delay: time.Minute},
		{MaxAge: time.Hour, Delay: 2 * time.Minute},
		{MaxAge: 24 * time.Hour, Delay: 10 * time.Minute},
	},
	Idle: 20 * time.Minute,
}

// everyTickCurve is used by vendors answering for all their devices in one
// request: there is nothing to save by skipping a device.
var everyTickCurve = Curve{Idle: time.Minute}

// Error tiers.
const (
	retryFast      = time.Minute
	retryTier10    = 10 * time.Minute
	retryTier10Max = 5 * time.Minute
	retryTier20    = time.Hour
	retryTier30    = 24 * time.Hour
)

// Backoff returns the delay before the next fetch of t.
//
// Large consecutive error counts map to coarse tiers (>30: 24h, >20: 1h,
// >10: 10min plus jitter) and one or two errors retry after a minute.
// Otherwise the delay follows the vendor curve by age of the last fix. A
// tier never returns less than the curve so the delay is monotonic in the
// error count. Curves must not exceed one hour.
func Backoff(t *roster.Tracker, nowSec int64, curve Curve, rng *rand.Rand) time.Duration {
	age := time.Duration(nowSec-t.LastFixSec) * time.Second
	if t.LastFixSec <= 0 {
		age = time.Duration(math.MaxInt64)
	}
	byAge := curve.Delay(age)

	switch n := t.NumConsecutiveErrors; {
	case n > 30:
		return retryTier30
	case n > 20:
		return max(retryTier20, byAge)
	case n > 10:
		jitter := time.Duration(0)
		if rng != nil {
			jitter = time.Duration(rng.Int63n(int64(retryTier10Max)))
		}
		return max(retryTier10+jitter, byAge)
	case n >= 1 && n <= 2:
		return retryFast
	default:
		return byAge
	}
}

// maxCounter is the value above which request and error counters are halved.
const maxCounter = 1000

// recordRequest updates the counters of a contacted tracker.
func recordRequest(t *roster.Tracker, failed bool) {
	t.NumRequests++
	if failed {
		t.NumErrors++
		t.NumConsecutiveErrors++
	} else {
		t.NumConsecutiveErrors = 0
	}
	if t.NumRequests > maxCounter || t.NumErrors > maxCounter {
		t.NumRequests /= 2
		t.NumErrors /= 2
	}
}
