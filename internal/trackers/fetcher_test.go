// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

var testStart = time.Unix(testNowSec, 0)

func fixedClock() time.Time { return testStart }

// fakeStrategy records the devices it is asked for and replies with canned data.
type fakeStrategy struct {
	kind     models.TrackerKind
	fetchAll bool
	fixes    map[int64][]livetrack.Fix
	errs     map[int64]error
	vendor   error

	mu   sync.Mutex
	seen []Device
}

func (s *fakeStrategy) Kind() models.TrackerKind { return s.kind }
func (s *fakeStrategy) FetchAll() bool           { return s.fetchAll }
func (s *fakeStrategy) Curve() Curve             { return DefaultCurve }

func (s *fakeStrategy) Fetch(_ context.Context, devices []Device, result *FetchCycleResult) error {
	s.mu.Lock()
	s.seen = append(s.seen, devices...)
	s.mu.Unlock()
	for _, d := range devices {
		if err, ok := s.errs[d.PilotID]; ok {
			result.DeviceError(d.PilotID, err)
			continue
		}
		result.AddFixes(d.PilotID, s.fixes[d.PilotID])
	}
	return s.vendor
}

type fakeTelemetry struct {
	mu    sync.Mutex
	lists map[string][]string
}

func (f *fakeTelemetry) PushCappedAll(_ context.Context, key string, values []string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lists == nil {
		f.lists = make(map[string][]string)
	}
	f.lists[key] = append(f.lists[key], values...)
	return nil
}

func newTestRoster(kind models.TrackerKind, trackers map[int64]*roster.Tracker) *roster.Roster {
	r := roster.New()
	for id, t := range trackers {
		r.Pilots[id] = &roster.Pilot{
			ID:       id,
			Enabled:  true,
			Trackers: map[models.TrackerKind]*roster.Tracker{kind: t},
			Track:    livetrack.New(id, ""),
		}
	}
	return r
}

func newTestFetcher(s Strategy, r *roster.Roster, relay *RelayState, opts ...FetcherOption) *Fetcher {
	opts = append([]FetcherOption{WithFetcherClock(fixedClock), WithRand(rand.New(rand.NewSource(1)))}, opts...)
	return NewFetcher(s, r, relay, time.Minute, opts...)
}

func TestRefreshUpdatesFetchState(t *testing.T) {
	t.Parallel()

	tracker := &roster.Tracker{Account: "pilot", Enabled: true, NumConsecutiveErrors: 2}
	r := newTestRoster(models.Spot, map[int64]*roster.Tracker{1: tracker})
	strategy := &fakeStrategy{
		kind: models.Spot,
		fixes: map[int64][]livetrack.Fix{1: {
			{Lat: 45, Lon: 6, TimeSec: testNowSec - 90, Device: models.Spot, Valid: true},
			{Lat: 45.001, Lon: 6.001, TimeSec: testNowSec - 60, Device: models.Spot, Valid: true},
			{Lat: 45.002, Lon: 6.002, TimeSec: testNowSec - 30, Device: models.Spot, Valid: true},
		}},
	}

	result := newTestFetcher(strategy, r, NewRelayState()).Refresh(context.Background(), 10*time.Second)

	if tracker.LastFixSec != testNowSec-30 {
		t.Errorf("LastFixSec = %d, want %d", tracker.LastFixSec, testNowSec-30)
	}
	if tracker.NextFetchSec <= testNowSec {
		t.Errorf("NextFetchSec = %d, want > %d", tracker.NextFetchSec, testNowSec)
	}
	if tracker.NumConsecutiveErrors != 0 {
		t.Errorf("NumConsecutiveErrors = %d, want 0", tracker.NumConsecutiveErrors)
	}
	if tracker.NumRequests != 1 || tracker.LastFetchSec != testNowSec {
		t.Errorf("unexpected bookkeeping %+v", tracker)
	}
	if got := result.Deltas[1].Len(); got != 3 {
		t.Errorf("expected a 3 fix delta, got %d", got)
	}
	if result.NumFixes != 3 || result.StartSec != testNowSec {
		t.Errorf("unexpected result totals: fixes %d start %d", result.NumFixes, result.StartSec)
	}
}

func TestRefreshNextFetchFormula(t *testing.T) {
	t.Parallel()

	tracker := &roster.Tracker{Account: "pilot", Enabled: true, LastFixSec: testNowSec - 2*3600}
	r := newTestRoster(models.Spot, map[int64]*roster.Tracker{1: tracker})

	newTestFetcher(&fakeStrategy{kind: models.Spot}, r, nil).Refresh(context.Background(), time.Second)

	// 3 minutes for a two hour old fix, minus half the one minute refresh interval.
	if want := int64(testNowSec + 180 - 30); tracker.NextFetchSec != want {
		t.Errorf("NextFetchSec = %d, want %d", tracker.NextFetchSec, want)
	}
}

func TestRefreshSelection(t *testing.T) {
	t.Parallel()

	trackers := map[int64]*roster.Tracker{
		1: {Account: "due-late", Enabled: true, NextFetchSec: testNowSec - 10},
		2: {Account: "due-early", Enabled: true, NextFetchSec: testNowSec - 500},
		3: {Account: "not-due", Enabled: true, NextFetchSec: testNowSec + 60},
		4: {Account: "disabled", Enabled: false},
		5: {Account: "", Enabled: true},
		6: {Account: "invalid", Enabled: true, InvalidAccount: true},
		7: {Account: "pilot-disabled", Enabled: true},
	}
	r := newTestRoster(models.Spot, trackers)
	r.Pilots[7].Enabled = false

	t.Run("due devices oldest first", func(t *testing.T) {
		strategy := &fakeStrategy{kind: models.Spot}
		newTestFetcher(strategy, r, nil).Refresh(context.Background(), time.Second)

		if len(strategy.seen) != 2 {
			t.Fatalf("expected 2 selected devices, got %+v", strategy.seen)
		}
		if strategy.seen[0].PilotID != 2 || strategy.seen[1].PilotID != 1 {
			t.Errorf("expected pilots [2 1], got [%d %d]", strategy.seen[0].PilotID, strategy.seen[1].PilotID)
		}
	})

	t.Run("fetch all ignores next fetch time", func(t *testing.T) {
		for _, tr := range trackers {
			tr.NextFetchSec = testNowSec + 3600
		}
		strategy := &fakeStrategy{kind: models.Spot, fetchAll: true}
		newTestFetcher(strategy, r, nil).Refresh(context.Background(), time.Second)

		if len(strategy.seen) != 3 {
			t.Errorf("expected the 3 enabled devices, got %+v", strategy.seen)
		}
	})
}

func TestRefreshDeviceErrors(t *testing.T) {
	t.Parallel()

	bad := &roster.Tracker{Account: "bad", Enabled: true}
	failing := &roster.Tracker{Account: "failing", Enabled: true, NumConsecutiveErrors: 4}
	r := newTestRoster(models.Spot, map[int64]*roster.Tracker{1: bad, 2: failing})
	strategy := &fakeStrategy{
		kind: models.Spot,
		errs: map[int64]error{1: ErrInvalidAccount, 2: &HTTPError{StatusCode: 500}},
	}
	telemetry := &fakeTelemetry{}

	result := newTestFetcher(strategy, r, nil, WithTelemetry(telemetry)).Refresh(context.Background(), time.Second)

	if !bad.InvalidAccount {
		t.Error("expected the tracker to be marked as invalid")
	}
	if bad.NumRequests != 0 || bad.NumErrors != 0 || bad.NumConsecutiveErrors != 0 || bad.NextFetchSec != 0 {
		t.Errorf("an invalid account gets no error counters nor backoff, got %+v", bad)
	}
	if bad.LastFetchSec != testNowSec {
		t.Errorf("LastFetchSec = %d, want %d", bad.LastFetchSec, testNowSec)
	}
	if failing.NumConsecutiveErrors != 5 || failing.NumErrors != 1 {
		t.Errorf("unexpected counters %+v", failing)
	}
	if len(result.DeviceErrors) != 2 || len(result.Errors) != 0 {
		t.Errorf("expected 2 device errors and no vendor error, got %d/%d", len(result.DeviceErrors), len(result.Errors))
	}
	if got := telemetry.lists["fetcher:spot:errors"]; len(got) != 2 {
		t.Errorf("expected 2 telemetry errors, got %v", got)
	}
	if got := telemetry.lists["fetcher:spot:devices"]; len(got) != 1 || got[0] != "2" {
		t.Errorf("expected device count telemetry [2], got %v", got)
	}

	// The invalid account is not selected anymore.
	strategy.seen = nil
	bad.NextFetchSec, failing.NextFetchSec = 0, 0
	newTestFetcher(strategy, r, nil).Refresh(context.Background(), time.Second)
	if len(strategy.seen) != 1 || strategy.seen[0].PilotID != 2 {
		t.Errorf("expected only pilot 2 to be selected, got %+v", strategy.seen)
	}
}

func TestRefreshRateLimitSwitchesToRelay(t *testing.T) {
	t.Parallel()

	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Header().Set("Retry-After", "600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := &config.VendorConfig{URL: server.URL + "/", Concurrency: 1, Timeout: 5 * time.Second}
	strategy := NewInreachStrategy(cfg, NewClient("inreach", cfg, WithClock(fixedClock)), fixedClock)

	trackers := map[int64]*roster.Tracker{
		1: {Account: "first", Enabled: true},
		2: {Account: "second", Enabled: true, NextFetchSec: 1},
	}
	r := newTestRoster(models.Inreach, trackers)
	relay := NewRelayState()

	result := newTestFetcher(strategy, r, relay).Refresh(context.Background(), 10*time.Second)

	if want := testStart.Add(600 * time.Second); !relay.Until().Equal(want) {
		t.Errorf("relay deadline = %v, want %v", relay.Until(), want)
	}
	if len(result.Deltas) != 0 {
		t.Errorf("expected no delta, got %d", len(result.Deltas))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one vendor error, got %v", result.Errors)
	}
	var rl *RateLimitError
	if !errors.As(result.Errors[0], &rl) || rl.RetryAfter != 600*time.Second {
		t.Errorf("expected a 600s RateLimitError, got %v", result.Errors[0])
	}
	mu.Lock()
	if calls != 1 {
		t.Errorf("expected the pool to stop after the first 429, got %d calls", calls)
	}
	mu.Unlock()
	for id, tr := range trackers {
		if tr.NumRequests != 0 || tr.LastFetchSec != 0 {
			t.Errorf("pilot %d: rate limited device must not be counted as contacted: %+v", id, tr)
		}
	}
}

func TestRefreshVendorError(t *testing.T) {
	t.Parallel()

	tracker := &roster.Tracker{Account: "a", Enabled: true}
	r := newTestRoster(models.Skylines, map[int64]*roster.Tracker{1: tracker})
	strategy := &fakeStrategy{kind: models.Skylines, vendor: ErrFetchTimeout}

	result := newTestFetcher(strategy, r, NewRelayState()).Refresh(context.Background(), time.Second)

	if len(result.Errors) != 1 || !errors.Is(result.Errors[0], ErrFetchTimeout) {
		t.Errorf("expected a fetch timeout vendor error, got %v", result.Errors)
	}
	// The fake still served the device, it is bookkept as a success.
	if tracker.NumRequests != 1 || tracker.NumErrors != 0 {
		t.Errorf("unexpected counters %+v", tracker)
	}
}
