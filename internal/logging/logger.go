// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package logging provides the process-wide zerolog logger for the fetcher.
//
// All components log through this package so that every line carries the
// same field names and, inside a tick, the tick correlation id:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("vendor", "inreach").Int("devices", n).Msg("Fetched")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Elevation lookup failed")
//
// The level can be changed at runtime with SetLevel; the binary does so on
// SIGHUP after reloading its configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic.
	Level string
	// Format is json or console.
	Format    string
	Caller    bool
	Timestamp bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // components log before main calls Init
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"
	Init(Config{Timestamp: true})
}

// Init replaces the global logger. An unknown level falls back to info; the
// config package rejects those before Init is reached.
func Init(cfg Config) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()
	current.Store(&logger)
}

// parseLevel accepts the zerolog level names, case insensitive, plus
// "warning". An empty level is info.
func parseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || level != l.String() {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// SetLevel changes the minimum level of every logger.
func SetLevel(level string) error {
	l, err := parseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(l)
	return nil
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

func Debug() *zerolog.Event { return current.Load().Debug() }
func Info() *zerolog.Event  { return current.Load().Info() }
func Warn() *zerolog.Event  { return current.Load().Warn() }
func Error() *zerolog.Event { return current.Load().Error() }

// Fatal logs at fatal level; os.Exit(1) follows the write.
func Fatal() *zerolog.Event { return current.Load().Fatal() }
