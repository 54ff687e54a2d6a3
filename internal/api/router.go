// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vicb/flyXC-sub000/internal/config"
)

// RouterOption customizes NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	corsOrigins []string
	rateLimit   int
	rateWindow  time.Duration
}

// WithCORS allows browser dashboards served from origins to read /status.
func WithCORS(origins []string) RouterOption {
	return func(o *routerOptions) { o.corsOrigins = origins }
}

// WithRateLimit limits /status to requests per window and per client IP.
// A non-positive limit disables rate limiting.
func WithRateLimit(requests int, window time.Duration) RouterOption {
	return func(o *routerOptions) {
		o.rateLimit = requests
		o.rateWindow = window
	}
}

// NewRouter builds the ops router.
func NewRouter(h *Handler, opts ...RouterOption) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(withCorrelationID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(withMetrics)

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", h.Live)
		r.Get("/ready", h.Ready)
	})

	r.Group(func(r chi.Router) {
		if len(o.corsOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: o.corsOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "X-Request-ID"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         300,
			}))
		}
		if o.rateLimit > 0 {
			r.Use(httprate.LimitByRealIP(o.rateLimit, o.rateWindow))
		}
		r.Get("/status", h.Status)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewServer returns the *http.Server serving the ops router.
func NewServer(cfg *config.ServerConfig, h *Handler) *http.Server {
	return &http.Server{
		Addr: cfg.Addr,
		Handler: NewRouter(h,
			WithCORS(cfg.CORSOrigins),
			WithRateLimit(cfg.StatusRateLimit, time.Minute),
		),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
