// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

/*
Package metrics provides the Prometheus collectors of the fetcher.

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8090/metrics

Ticks:

  - fetcher_ticks_total{result}: ticks by result (ok, skipped, error, shutdown)
  - fetcher_tick_duration_seconds: tick wall time
  - fetcher_pilots: pilots in the roster

Vendors:

  - fetcher_vendor_requests_total{vendor}: devices contacted
  - fetcher_vendor_errors_total{vendor,kind}: errors by kind (device, vendor, rate_limited, panic)
  - fetcher_vendor_fixes_total{vendor}: fixes received
  - fetcher_vendor_fetch_duration_seconds{vendor}: refresh wall time

Relay and APRS:

  - fetcher_relay_active: 1 while vendor requests go through the relay proxy
  - fetcher_proxy_state: proxy manager state (0=idle, 1=starting, 2=ready, 3=detached)
  - fetcher_aprs_connected: 1 while the APRS socket is connected
  - fetcher_aprs_positions_total: positions accepted from APRS

Ops HTTP server:

  - fetcher_http_requests_total{route,status}: requests by route pattern
  - fetcher_http_request_duration_seconds{route}: request latency

Elevation cache:

  - fetcher_elevation_cache_lookups{result}: cumulative cache hits and misses (hit, miss)
  - fetcher_elevation_cache_entries: cells held in the cache

Circuit breakers (elevation lookups, NATS publishing):

  - fetcher_circuit_breaker_state{name}: 0=closed, 1=half-open, 2=open
  - fetcher_circuit_breaker_transitions_total{name,from_state,to_state}
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// Tick Metrics
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_ticks_total",
			Help: "Total number of ticks by result",
		},
		[]string{"result"}, // ok, skipped, error, shutdown
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fetcher_tick_duration_seconds",
			Help:    "Duration of a tick in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		},
	)

	Pilots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_pilots",
			Help: "Number of pilots in the roster",
		},
	)

	// Vendor Metrics
	VendorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_vendor_requests_total",
			Help: "Total number of devices contacted per vendor",
		},
		[]string{"vendor"},
	)

	VendorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_vendor_errors_total",
			Help: "Total number of vendor errors by kind",
		},
		[]string{"vendor", "kind"},
	)

	VendorFixes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_vendor_fixes_total",
			Help: "Total number of fixes received per vendor",
		},
		[]string{"vendor"},
	)

	VendorFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetcher_vendor_fetch_duration_seconds",
			Help:    "Duration of a vendor refresh in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vendor"},
	)

	// Relay / APRS Metrics
	RelayActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_relay_active",
			Help: "1 while vendor requests are routed through the relay proxy",
		},
	)

	ProxyState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_proxy_state",
			Help: "Relay proxy state (0=idle, 1=starting, 2=ready, 3=detached)",
		},
	)

	APRSConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_aprs_connected",
			Help: "1 while the APRS socket is connected",
		},
	)

	APRSPositions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetcher_aprs_positions_total",
			Help: "Total number of positions accepted from the APRS feed",
		},
	)

	SnapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_snapshots_published_total",
			Help: "Track snapshots published downstream by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Ops HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_http_requests_total",
			Help: "Ops HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetcher_http_request_duration_seconds",
			Help:    "Ops HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Elevation Cache Metrics
	ElevationCacheLookups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetcher_elevation_cache_lookups",
			Help: "Cumulative elevation cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	ElevationCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_elevation_cache_entries",
			Help: "Number of cells held in the elevation cache",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetcher_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordTick records the result and duration of a tick.
func RecordTick(result string, duration time.Duration) {
	TicksTotal.WithLabelValues(result).Inc()
	if duration > 0 {
		TickDuration.Observe(duration.Seconds())
	}
}

// RecordVendorRefresh records the outcome of one vendor refresh.
func RecordVendorRefresh(vendor string, devices, fixes, deviceErrors, vendorErrors int, duration time.Duration) {
	VendorRequests.WithLabelValues(vendor).Add(float64(devices))
	VendorFixes.WithLabelValues(vendor).Add(float64(fixes))
	if deviceErrors > 0 {
		VendorErrors.WithLabelValues(vendor, "device").Add(float64(deviceErrors))
	}
	if vendorErrors > 0 {
		VendorErrors.WithLabelValues(vendor, "vendor").Add(float64(vendorErrors))
	}
	VendorFetchDuration.WithLabelValues(vendor).Observe(duration.Seconds())
}

// RecordVendorError counts a single error of the given kind.
func RecordVendorError(vendor, kind string) {
	VendorErrors.WithLabelValues(vendor, kind).Inc()
}

// RecordPublish counts a downstream snapshot publication.
func RecordPublish(kind string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	SnapshotsPublished.WithLabelValues(kind, result).Inc()
}

// RecordHTTPRequest records one ops HTTP request.
func RecordHTTPRequest(route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// SetElevationCache publishes the elevation cache counters.
func SetElevationCache(hits, misses int64, entries int) {
	ElevationCacheLookups.WithLabelValues("hit").Set(float64(hits))
	ElevationCacheLookups.WithLabelValues("miss").Set(float64(misses))
	ElevationCacheEntries.Set(float64(entries))
}

// SetBool sets g to 1 when v is true, 0 otherwise.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}

// BreakerStateChange is a gobreaker OnStateChange callback that logs nothing
// and keeps the circuit breaker metrics current.
func BreakerStateChange(name string, from, to gobreaker.State) {
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
	CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
