// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// newBufferLogger returns a JSON logger writing to w.
func newBufferLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"trace", zerolog.TraceLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{" error ", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, false},
		{"bogus", zerolog.InfoLevel, true},
		{"1", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := parseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestInitAndSetLevel changes the global logger and level: it must not run
// in parallel with the other tests of the package.
func TestInitAndSetLevel(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() {
		current.Store(&prev)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})

	Info().Msg("hidden")
	Warn().Str("vendor", "spot").Msg("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, `"vendor":"spot"`) {
		t.Errorf("unexpected output at warn level: %s", out)
	}

	buf.Reset()
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() = %v", err)
	}
	Debug().Msg("reloaded")
	if !strings.Contains(buf.String(), `"message":"reloaded"`) {
		t.Errorf("expected the debug line after SetLevel, got: %s", buf.String())
	}

	if err := SetLevel("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Errorf("an invalid level changed the global level to %v", got)
	}
}

func TestCorrelationIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if id := CorrelationIDFromContext(ctx); id != "" {
		t.Errorf("expected empty correlation ID, got %s", id)
	}

	ctx = ContextWithNewCorrelationID(ctx)
	id := CorrelationIDFromContext(ctx)
	if len(id) != 8 {
		t.Errorf("expected 8-character correlation ID, got %q", id)
	}
}

func TestCtxAddsCorrelationID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), newBufferLogger(&buf))
	ctx = ContextWithCorrelationID(ctx, "tick0001")

	Ctx(ctx).Info().Msg("tick")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"tick0001"`) {
		t.Errorf("expected correlation id in output, got: %s", out)
	}
}

func TestSlogHandler_Handle(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	handler := &SlogHandler{logger: newBufferLogger(&buf)}
	logger := slog.New(handler).WithGroup("supervisor").With("service", "tick")

	logger.Warn("restarting", "attempt", 3)

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"message":"restarting"`, `"supervisor.attempt":3`, `"supervisor.service":"tick"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
