// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/orchestrator"
)

// StatusSource is implemented by *orchestrator.Orchestrator.
type StatusSource interface {
	Status() orchestrator.Status
}

// Check reports the health of a component. A nil error is healthy.
type Check func(ctx context.Context) error

// Component reports a component state for /status, e.g. "connected".
type Component func() string

// ReadyConfig tunes readiness.
type ReadyConfig struct {
	// MaxTickAge is how old the last tick may be. A process that has not
	// ticked yet is ready during its first MaxTickAge.
	MaxTickAge time.Duration
}

// Handler serves the ops endpoints.
type Handler struct {
	status     StatusSource
	ready      ReadyConfig
	checks     map[string]Check
	components map[string]Component
	clock      func() time.Time
}

// NewHandler creates a handler reading from status.
func NewHandler(status StatusSource, ready ReadyConfig) *Handler {
	return &Handler{
		status:     status,
		ready:      ready,
		checks:     make(map[string]Check),
		components: make(map[string]Component),
		clock:      time.Now,
	}
}

// AddCheck registers a readiness check. Not safe once serving.
func (h *Handler) AddCheck(name string, c Check) {
	h.checks[name] = c
}

// AddComponent registers a component state shown by /status. Not safe once
// serving.
func (h *Handler) AddComponent(name string, c Component) {
	h.components[name] = c
}

// Live always answers 200 while the process runs.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	s := h.status.Status()
	respondOK(w, r, map[string]any{
		"alive":  true,
		"uptime": h.clock().Sub(s.StartedAt).Seconds(),
	})
}

type readiness struct {
	Ready       bool              `json:"ready"`
	LastTickSec int64             `json:"lastTickSec"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Ready answers 503 when ticks stalled or a check fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	s := h.status.Status()
	now := h.clock()
	res := readiness{Ready: true, LastTickSec: s.LastTickSec}

	if h.ready.MaxTickAge > 0 {
		last := s.StartedAt
		if s.NumTicks > 0 && s.LastTickSec > 0 {
			last = time.Unix(s.LastTickSec, 0)
		}
		if now.Sub(last) > h.ready.MaxTickAge {
			res.Ready = false
		}
	}

	if len(h.checks) > 0 {
		res.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(r.Context()); err != nil {
				logging.Ctx(r.Context()).Warn().Err(err).Str("check", name).Msg("Readiness check failed")
				res.Checks[name] = err.Error()
				res.Ready = false
			} else {
				res.Checks[name] = "ok"
			}
		}
	}

	if !res.Ready {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "fetcher is not ready", res)
		return
	}
	respondOK(w, r, res)
}

type componentState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type statusBody struct {
	orchestrator.Status
	Components []componentState `json:"components,omitempty"`
}

// Status returns the roster summary and the component states.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	body := statusBody{Status: h.status.Status()}
	for name, c := range h.components {
		body.Components = append(body.Components, componentState{Name: name, State: c()})
	}
	sort.Slice(body.Components, func(i, j int) bool {
		return body.Components[i].Name < body.Components[j].Name
	})
	respondOK(w, r, body)
}
