// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
)

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "seconds", value: "600", want: 10 * time.Minute},
		{name: "zero", value: "0", want: 0},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second},
		{name: "past date", value: now.Add(-time.Hour).Format(http.TimeFormat), want: 0},
		{name: "missing", value: "", want: 0},
		{name: "garbage", value: "soon", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.Error(w, "no such feed", http.StatusNotFound)
		case "/json":
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer server.Close()

	client := NewClient("test", &config.VendorConfig{Timeout: 5 * time.Second})
	ctx := context.Background()

	_, err := client.Get(ctx, server.URL+"/missing", nil)
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusNotFound || !strings.Contains(he.Body, "no such feed") {
		t.Errorf("Get() = %v, want an HTTP 404 error with body", err)
	}

	var ok struct {
		OK bool `json:"ok"`
	}
	if err := client.GetJSON(ctx, server.URL+"/json", nil, &ok); err != nil || !ok.OK {
		t.Errorf("GetJSON() = %v, %+v", err, ok)
	}

	var pe *ParseError
	if err := client.GetJSON(ctx, server.URL+"/text", nil, &ok); !errors.As(err, &pe) {
		t.Errorf("GetJSON() = %v, want a ParseError", err)
	}
}

type fakeRelay struct {
	ready    bool
	addr     string
	detached int
}

func (r *fakeRelay) IsReadyOrStart(context.Context) bool { return r.ready }
func (r *fakeRelay) Address() string                     { return r.addr }
func (r *fakeRelay) DetachCurrent()                      { r.detached++ }

func TestClientReady(t *testing.T) {
	t.Parallel()

	now := testStart
	state := NewRelayState()
	relay := &fakeRelay{}
	client := NewClient("inreach", &config.VendorConfig{}, WithRelay(state, relay), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := client.Ready(ctx); err != nil {
		t.Errorf("Ready() without relay deadline = %v", err)
	}

	state.UseUntil(now.Add(time.Minute))
	if err := client.Ready(ctx); !errors.Is(err, ErrRelayStarting) {
		t.Errorf("Ready() with a starting relay = %v, want ErrRelayStarting", err)
	}

	relay.ready, relay.addr = true, "10.0.0.1:3128"
	if err := client.Ready(ctx); err != nil {
		t.Errorf("Ready() with a ready relay = %v", err)
	}
	if hc := client.httpClient(); hc == client.direct {
		t.Error("expected requests to go through the relay")
	}

	now = now.Add(2 * time.Minute)
	if err := client.Ready(ctx); err != nil {
		t.Errorf("Ready() after the relay deadline = %v", err)
	}
	if relay.detached != 1 {
		t.Errorf("expected the relay to be detached once, got %d", relay.detached)
	}
	if hc := client.httpClient(); hc != client.direct {
		t.Error("expected direct requests after the relay deadline")
	}
}
