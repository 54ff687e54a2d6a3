// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package trackers fetches live fixes from the tracker vendors.
//
// A Fetcher owns the scheduling of one vendor: it selects the devices due
// for a request, hands them to the vendor Strategy, and updates the fetch
// state of every contacted device (request and error counters, last fix,
// next fetch time). Strategies only talk to the vendor and record fixes
// and errors in a FetchCycleResult.
//
// Fetchers of different vendors run concurrently inside a tick. Each one
// only writes the Tracker of its own vendor, so they share the roster
// without locking.
package trackers

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/vicb/flyXC-sub000/internal/kv"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/metrics"
	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

// deltaMinIntervalSec is the spacing applied to fetched deltas.
const deltaMinIntervalSec = 5

// telemetryLength caps the per vendor telemetry lists.
const telemetryLength = 20

// defaultRelayDuration applies when a 429 response has no Retry-After.
const defaultRelayDuration = 10 * time.Minute

// Device is one tracker selected for a fetch.
type Device struct {
	PilotID    int64
	Account    string
	LastFixSec int64
}

// Strategy is the vendor specific part of a fetcher.
type Strategy interface {
	Kind() models.TrackerKind
	// FetchAll selects every device on each refresh, for vendors that
	// serve all devices with a single request.
	FetchAll() bool
	// Curve is the backoff curve by age of the last fix.
	Curve() Curve
	// Fetch queries the vendor for devices until ctx expires. Fixes and
	// device errors are recorded in result. The returned error is a
	// vendor level error.
	Fetch(ctx context.Context, devices []Device, result *FetchCycleResult) error
}

// Telemetry receives the per vendor telemetry lists.
type Telemetry interface {
	PushCappedAll(ctx context.Context, key string, values []string, max int) error
}

// Fetcher schedules the requests of one vendor.
type Fetcher struct {
	strategy        Strategy
	roster          *roster.Roster
	relay           *RelayState
	telemetry       Telemetry
	refreshInterval time.Duration
	relayDuration   time.Duration
	clock           func() time.Time
	rng             *rand.Rand
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTelemetry pushes vendor telemetry after each refresh.
func WithTelemetry(t Telemetry) FetcherOption {
	return func(f *Fetcher) {
		f.telemetry = t
	}
}

// WithRelayDuration sets how long requests go through the relay after a 429
// response without Retry-After.
func WithRelayDuration(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.relayDuration = d
		}
	}
}

// WithFetcherClock injects the time source.
func WithFetcherClock(clock func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.clock = clock
	}
}

// WithRand injects the random source used for backoff jitter.
func WithRand(rng *rand.Rand) FetcherOption {
	return func(f *Fetcher) {
		f.rng = rng
	}
}

// NewFetcher creates the fetcher of a vendor. relay receives the relay
// deadline when the vendor rate limits requests.
func NewFetcher(strategy Strategy, r *roster.Roster, relay *RelayState, refreshInterval time.Duration, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		strategy:        strategy,
		roster:          r,
		relay:           relay,
		refreshInterval: refreshInterval,
		relayDuration:   defaultRelayDuration,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rng == nil {
		//nolint:gosec // jitter does not need a cryptographic source
		f.rng = rand.New(rand.NewSource(f.clock().UnixNano()))
	}
	return f
}

// Kind returns the vendor of the fetcher.
func (f *Fetcher) Kind() models.TrackerKind {
	return f.strategy.Kind()
}

type selected struct {
	device  Device
	tracker *roster.Tracker
}

// Refresh fetches the due devices within timeout and updates their fetch state.
func (f *Fetcher) Refresh(ctx context.Context, timeout time.Duration) *FetchCycleResult {
	start := f.clock()
	startSec := start.Unix()
	kind := f.strategy.Kind()
	result := newFetchCycleResult(startSec)

	due := f.selectDevices(startSec)
	if len(due) > 0 {
		devices := make([]Device, len(due))
		for i, s := range due {
			devices[i] = s.device
		}

		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		err := f.strategy.Fetch(fetchCtx, devices, result)
		cancel()
		if err != nil {
			f.handleVendorError(result, start, err)
		}
	}

	numFixes := 0
	deviceErrors := 0
	for _, s := range due {
		id := s.device.PilotID
		if _, ok := result.Contacted[id]; !ok {
			continue
		}
		devErr := result.DeviceErrors[id]
		if devErr != nil {
			deviceErrors++
			metrics.RecordVendorError(kind.String(), errorKind(devErr))
		}
		s.tracker.LastFetchSec = startSec
		if errors.Is(devErr, ErrInvalidAccount) {
			// Excluded from selection until the account changes.
			s.tracker.InvalidAccount = true
			continue
		}
		recordRequest(s.tracker, devErr != nil)

		if delta, ok := result.Deltas[id]; ok {
			delta.Simplify(deltaMinIntervalSec, livetrack.AllTime)
			if last, ok := delta.LastTimeSec(); ok && last > s.tracker.LastFixSec {
				s.tracker.LastFixSec = last
			}
			numFixes += delta.Len()
		}

		backoff := Backoff(s.tracker, startSec, f.strategy.Curve(), f.rng)
		s.tracker.NextFetchSec = startSec + int64((backoff-f.refreshInterval/2)/time.Second)
	}
	result.NumFixes = numFixes
	result.EndSec = f.clock().Unix()

	for _, err := range result.Errors {
		metrics.RecordVendorError(kind.String(), errorKind(err))
	}
	metrics.RecordVendorRefresh(kind.String(), len(result.Contacted), numFixes, deviceErrors, len(result.Errors), f.clock().Sub(start))

	f.pushTelemetry(ctx, result, len(due))

	logging.Ctx(ctx).Debug().
		Str("vendor", kind.String()).
		Int("selected", len(due)).
		Int("contacted", len(result.Contacted)).
		Int("fixes", numFixes).
		Int("device_errors", deviceErrors).
		Int("vendor_errors", len(result.Errors)).
		Msg("Vendor refresh complete")

	return result
}

// selectDevices returns the trackers due for a fetch, oldest due first.
func (f *Fetcher) selectDevices(nowSec int64) []selected {
	kind := f.strategy.Kind()
	fetchAll := f.strategy.FetchAll()

	var due []selected
	for _, p := range f.roster.Pilots {
		if !p.Enabled {
			continue
		}
		t, ok := p.Trackers[kind]
		if !ok || !t.Enabled || t.InvalidAccount || t.Account == "" {
			continue
		}
		if !fetchAll && t.NextFetchSec > nowSec {
			continue
		}
		due = append(due, selected{
			device:  Device{PilotID: p.ID, Account: t.Account, LastFixSec: t.LastFixSec},
			tracker: t,
		})
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].tracker.NextFetchSec != due[j].tracker.NextFetchSec {
			return due[i].tracker.NextFetchSec < due[j].tracker.NextFetchSec
		}
		return due[i].device.PilotID < due[j].device.PilotID
	})
	return due
}

// handleVendorError records a vendor level error. A rate limit response
// switches requests to the relay for the advertised duration.
func (f *Fetcher) handleVendorError(result *FetchCycleResult, start time.Time, err error) {
	var rl *RateLimitError
	if errors.As(err, &rl) && f.relay != nil {
		d := rl.RetryAfter
		if d <= 0 {
			d = f.relayDuration
		}
		f.relay.UseUntil(start.Add(d))
		logging.Warn().
			Str("vendor", f.strategy.Kind().String()).
			Dur("retry_after", d).
			Msg("Vendor rate limited, switching to relay")
	}
	result.AddError(err)
}

func (f *Fetcher) pushTelemetry(ctx context.Context, result *FetchCycleResult, selectedCount int) {
	if f.telemetry == nil {
		return
	}
	vendor := f.strategy.Kind().String()

	if len(result.Errors) > 0 || len(result.DeviceErrors) > 0 {
		errs := make([]string, 0, len(result.Errors)+len(result.DeviceErrors))
		for _, err := range result.Errors {
			errs = append(errs, err.Error())
		}
		ids := make([]int64, 0, len(result.DeviceErrors))
		for id := range result.DeviceErrors {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			errs = append(errs, "pilot "+strconv.FormatInt(id, 10)+": "+result.DeviceErrors[id].Error())
		}
		if err := f.telemetry.PushCappedAll(ctx, kv.VendorKey(vendor, "errors"), errs, telemetryLength); err != nil {
			logging.Warn().Err(err).Str("vendor", vendor).Msg("Failed to push vendor errors")
		}
	}

	devices := strconv.Itoa(selectedCount)
	if err := f.telemetry.PushCappedAll(ctx, kv.VendorKey(vendor, "devices"), []string{devices}, telemetryLength); err != nil {
		logging.Warn().Err(err).Str("vendor", vendor).Msg("Failed to push vendor device count")
	}
}
