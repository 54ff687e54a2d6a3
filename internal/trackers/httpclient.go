// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vicb/flyXC-sub000/internal/config"
)

// maxErrorBodySize limits the response body read for error reporting.
const maxErrorBodySize = 64 * 1024

// maxBodySize limits vendor payloads.
const maxBodySize = 16 << 20

// Client performs vendor HTTP requests. Requests are paced by a token bucket
// and, while the relay state is active, sent through the relay proxy.
type Client struct {
	vendor  string
	timeout time.Duration
	direct  *http.Client
	limiter *rate.Limiter

	relayState *RelayState
	relay      Relay
	clock      func() time.Time

	mu        sync.Mutex
	proxyAddr string
	proxied   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRelay routes requests through relay while state is active.
func WithRelay(state *RelayState, relay Relay) ClientOption {
	return func(c *Client) {
		c.relayState = state
		c.relay = relay
	}
}

// WithHTTPClient replaces the direct HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.direct = hc
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient creates the HTTP client of a vendor.
func NewClient(vendor string, cfg *config.VendorConfig, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		vendor:  vendor,
		timeout: timeout,
		direct:  &http.Client{Timeout: timeout},
		clock:   time.Now,
	}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready checks that a request can be sent now. While the relay state is
// active it requires a ready relay and returns ErrRelayStarting otherwise.
// Once the relay state expires the current proxy is detached.
func (c *Client) Ready(ctx context.Context) error {
	if c.relayState == nil {
		return nil
	}
	if !c.relayState.Active(c.clock()) {
		c.mu.Lock()
		wasProxied := c.proxyAddr != ""
		c.proxyAddr = ""
		c.proxied = nil
		c.mu.Unlock()
		if wasProxied && c.relay != nil {
			c.relay.DetachCurrent()
		}
		return nil
	}
	if c.relay == nil {
		return nil
	}
	if !c.relay.IsReadyOrStart(ctx) {
		return ErrRelayStarting
	}
	return nil
}

// httpClient returns the client to use for the next request.
func (c *Client) httpClient() *http.Client {
	if c.relayState == nil || c.relay == nil || !c.relayState.Active(c.clock()) {
		return c.direct
	}
	addr := c.relay.Address()
	if addr == "" {
		return c.direct
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proxyAddr != addr || c.proxied == nil {
		proxyURL := &url.URL{Scheme: "http", Host: addr}
		c.proxied = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyURL(proxyURL),
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		}
		c.proxyAddr = addr
	}
	return c.proxied
}

// Get fetches rawURL and returns the body.
//
// A 429 response returns a *RateLimitError, other non-2xx responses an *HTTPError.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ErrFetchTimeout
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "flyxc-fetcher/1.0")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			Vendor:     c.vendor,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.clock()),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(readBodyForError(resp.Body)))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// GetJSON fetches rawURL and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, v interface{}) error {
	body, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}

// readBodyForError reads the response body for error reporting (max 64KB).
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

// parseRetryAfter accepts both forms of RFC 9110 Retry-After: delay seconds
// and HTTP date. It returns 0 when the header is missing or malformed.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
