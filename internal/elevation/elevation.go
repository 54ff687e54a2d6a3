// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package elevation looks up ground altitudes for fixes.
//
// The service speaks the open-elevation JSON protocol:
//
//	POST /api/v1/lookup {"locations":[{"latitude":45.1,"longitude":6.2}]}
//	=> {"results":[{"latitude":45.1,"longitude":6.2,"elevation":1532}]}
//
// Calls go through a circuit breaker so that a dead elevation service does
// not eat the tick budget on every tick. Results are cached per grid cell of
// about 11m when ElevationConfig.CacheSize is set.
package elevation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/vicb/flyXC-sub000/internal/cache"
	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/metrics"
)

const breakerName = "elevation"

// maxErrorBody bounds the error body read from the service.
const maxErrorBody = 64 * 1024

// Point is a location to look up.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

type lookupRequest struct {
	Locations []Point `json:"locations"`
}

type lookupResponse struct {
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// cellScale is the number of grid cells per degree.
const cellScale = 1e4

type cell struct {
	lat int32
	lon int32
}

func cellOf(p Point) cell {
	return cell{lat: int32(math.Round(p.Lat * cellScale)), lon: int32(math.Round(p.Lon * cellScale))}
}

// Client is a batched elevation lookup client.
type Client struct {
	url        string
	batchSize  int
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]int32]
	// cache is nil when caching is disabled.
	cache *cache.LRU[cell, int32]
}

// New creates a client.
func New(cfg *config.ElevationConfig, httpClient *http.Client) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 5 * time.Minute
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]int32](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.BreakerStateChange(name, from, to)
		},
	})

	c := &Client{url: cfg.URL, batchSize: batchSize, httpClient: httpClient, cb: cb}
	if cfg.CacheSize > 0 {
		c.cache = cache.NewLRU[cell, int32](cfg.CacheSize, cfg.CacheTTL)
	}
	return c
}

// Lookup returns the ground elevation in meters for each point, in order.
// Only the points missing from the cache are sent to the service.
func (c *Client) Lookup(ctx context.Context, points []Point) ([]int32, error) {
	if len(points) == 0 {
		return nil, nil
	}
	if c.cache == nil {
		return c.lookupAll(ctx, points)
	}

	defer c.publishCacheStats()

	out := make([]int32, len(points))
	var missing []int
	var misses []Point
	for i, p := range points {
		if v, ok := c.cache.Get(cellOf(p)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
		misses = append(misses, p)
	}
	if len(misses) == 0 {
		return out, nil
	}

	elevations, err := c.lookupAll(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		out[i] = elevations[j]
		c.cache.Add(cellOf(points[i]), elevations[j])
	}
	return out, nil
}

func (c *Client) publishCacheStats() {
	hits, misses := c.cache.Stats()
	metrics.SetElevationCache(hits, misses, c.cache.Len())
}

func (c *Client) lookupAll(ctx context.Context, points []Point) ([]int32, error) {
	out := make([]int32, 0, len(points))
	for start := 0; start < len(points); start += c.batchSize {
		end := min(start+c.batchSize, len(points))
		batch := points[start:end]
		elevations, err := c.cb.Execute(func() ([]int32, error) {
			return c.lookupBatch(ctx, batch)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, fmt.Errorf("elevation service unavailable: %w", err)
			}
			return nil, err
		}
		out = append(out, elevations...)
	}
	return out, nil
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}

func (c *Client) lookupBatch(ctx context.Context, points []Point) ([]int32, error) {
	body, err := json.Marshal(lookupRequest{Locations: points})
	if err != nil {
		return nil, fmt.Errorf("encode elevation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("elevation service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode elevation response: %w", err)
	}
	if len(decoded.Results) != len(points) {
		return nil, fmt.Errorf("elevation service returned %d results for %d points", len(decoded.Results), len(points))
	}

	elevations := make([]int32, len(points))
	for i, r := range decoded.Results {
		elevations[i] = int32(math.Round(r.Elevation))
	}
	return elevations, nil
}
