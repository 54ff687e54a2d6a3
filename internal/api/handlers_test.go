// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/orchestrator"
)

var testNow = time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)

type staticStatus struct {
	s orchestrator.Status
}

func (s staticStatus) Status() orchestrator.Status { return s.s }

func newTestHandler(s orchestrator.Status, maxAge time.Duration) *Handler {
	h := NewHandler(staticStatus{s}, ReadyConfig{MaxTickAge: maxAge})
	h.clock = func() time.Time { return testNow }
	return h
}

func get(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec, resp
}

func TestLive(t *testing.T) {
	t.Parallel()

	h := newTestHandler(orchestrator.Status{StartedAt: testNow.Add(-time.Minute)}, time.Minute)
	rec, resp := get(t, h, "/healthz/live")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("live = %d %+v", rec.Code, resp)
	}
	if resp.Meta.RequestID == "" {
		t.Error("request id missing from meta")
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status orchestrator.Status
		check  error
		want   int
	}{
		{
			name:   "recent tick",
			status: orchestrator.Status{StartedAt: testNow.Add(-time.Hour), NumTicks: 10, LastTickSec: testNow.Add(-30 * time.Second).Unix()},
			want:   http.StatusOK,
		},
		{
			name:   "stalled ticks",
			status: orchestrator.Status{StartedAt: testNow.Add(-time.Hour), NumTicks: 10, LastTickSec: testNow.Add(-10 * time.Minute).Unix()},
			want:   http.StatusServiceUnavailable,
		},
		{
			name:   "starting up",
			status: orchestrator.Status{StartedAt: testNow.Add(-time.Minute)},
			want:   http.StatusOK,
		},
		{
			name:   "never ticked",
			status: orchestrator.Status{StartedAt: testNow.Add(-time.Hour)},
			want:   http.StatusServiceUnavailable,
		},
		{
			name:   "failing check",
			status: orchestrator.Status{StartedAt: testNow.Add(-time.Hour), NumTicks: 10, LastTickSec: testNow.Unix()},
			check:  errors.New("kv closed"),
			want:   http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestHandler(tt.status, 3*time.Minute)
			h.AddCheck("kv", func(context.Context) error { return tt.check })

			rec, resp := get(t, h, "/healthz/ready")
			if rec.Code != tt.want {
				t.Fatalf("ready = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if (tt.want == http.StatusOK) != resp.Success {
				t.Errorf("success = %v", resp.Success)
			}
			if tt.want != http.StatusOK && (resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable) {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestHandler(orchestrator.Status{
		Hostname: "fetcher-1",
		NumTicks: 42,
		Pilots:   3,
		LastTick: &orchestrator.TickSummary{Fixes: 7},
	}, 0)
	h.AddComponent("proxy", func() string { return "idle" })
	h.AddComponent("aprs", func() string { return "connected" })

	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Data statusBody `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Hostname != "fetcher-1" || resp.Data.NumTicks != 42 || resp.Data.Pilots != 3 {
		t.Errorf("status = %+v", resp.Data.Status)
	}
	if resp.Data.LastTick == nil || resp.Data.LastTick.Fixes != 7 {
		t.Errorf("last tick = %+v", resp.Data.LastTick)
	}
	if len(resp.Data.Components) != 2 || resp.Data.Components[0].Name != "aprs" || resp.Data.Components[1].State != "idle" {
		t.Errorf("components = %+v", resp.Data.Components)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestHandler(orchestrator.Status{}, 0)
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output is missing the Go collector")
	}
}

func TestRequestMetrics(t *testing.T) {
	t.Parallel()

	h := newTestHandler(orchestrator.Status{StartedAt: testNow}, 0)
	router := NewRouter(h)
	for _, path := range []string{"/healthz/live", "/no/such/path"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`fetcher_http_requests_total{route="/healthz/live",status="200"}`,
		`fetcher_http_requests_total{route="unmatched",status="404"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output is missing %s", want)
		}
	}
}

func TestStatusCORS(t *testing.T) {
	t.Parallel()

	h := newTestHandler(orchestrator.Status{StartedAt: testNow}, 0)
	router := NewRouter(h, WithCORS([]string{"https://flyxc.app"}))

	tests := []struct {
		origin string
		want   string
	}{
		{"https://flyxc.app", "https://flyxc.app"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("allow origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusRateLimit(t *testing.T) {
	t.Parallel()

	h := newTestHandler(orchestrator.Status{StartedAt: testNow}, 0)
	router := NewRouter(h, WithRateLimit(2, time.Minute))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}

	// Health checks are never limited.
	rec, _ := get(t, h, "/healthz/live")
	if rec.Code != http.StatusOK {
		t.Errorf("live = %d", rec.Code)
	}
}
