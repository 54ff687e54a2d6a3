// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidAccount marks an account the vendor does not know. The
	// tracker is excluded from selection until its account changes.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrFetchTimeout is reported once per vendor when the refresh deadline
	// expires before every selected device was served.
	ErrFetchTimeout = errors.New("fetch timeout")

	// ErrRelayStarting is reported while requests should go through the relay
	// but the relay proxy has no address yet.
	ErrRelayStarting = errors.New("relay proxy starting")
)

// RateLimitError is returned when a vendor answers 429 Too Many Requests.
type RateLimitError struct {
	Vendor     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Vendor, e.RetryAfter)
}

// HTTPError is a non-2xx vendor response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ParseError wraps a payload that could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// errorKind classifies an error for metrics labels.
func errorKind(err error) string {
	var rl *RateLimitError
	var he *HTTPError
	var pe *ParseError
	switch {
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.As(err, &he):
		return "http"
	case errors.As(err, &pe):
		return "parse"
	default:
		return "other"
	}
}
