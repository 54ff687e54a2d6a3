// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package validation

import (
	"strings"
	"testing"
	"time"
)

func TestInstanceShared(t *testing.T) {
	v1 := instance()
	v2 := instance()

	if v1 != v2 {
		t.Error("instance() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("instance() should not return nil")
	}
}

type innerStruct struct {
	Timeout time.Duration `validate:"min=1s"`
	Format  string        `validate:"oneof=json console"`
}

type outerStruct struct {
	Name    string `validate:"required"`
	Workers int    `validate:"min=1,max=32"`
	Inner   innerStruct
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	valid := outerStruct{Name: "x", Workers: 4, Inner: innerStruct{Timeout: time.Second, Format: "json"}}

	tests := []struct {
		name      string
		mutate    func(*outerStruct)
		wantField string
		wantMsg   string
	}{
		{"valid", func(*outerStruct) {}, "", ""},
		{"missing name", func(s *outerStruct) { s.Name = "" }, "Name", "Name is required"},
		{"too many workers", func(s *outerStruct) { s.Workers = 64 }, "Workers", "Workers must be at most 32"},
		{"short timeout", func(s *outerStruct) { s.Inner.Timeout = time.Millisecond }, "Inner.Timeout", "Inner.Timeout must be at least 1s"},
		{"bad format", func(s *outerStruct) { s.Inner.Format = "xml" }, "Inner.Format", "Inner.Format must be one of: json console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := valid
			tt.mutate(&s)
			verr := ValidateStruct(&s)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("expected no error, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			fields := verr.Fields()
			if len(fields) != 1 {
				t.Fatalf("expected 1 field error, got %d: %v", len(fields), verr)
			}
			if fields[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", fields[0].Field(), tt.wantField)
			}
			if !strings.Contains(verr.Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want it to contain %q", verr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestErrorsJoinMessages(t *testing.T) {
	t.Parallel()

	verr := ValidateStruct(&outerStruct{Inner: innerStruct{Timeout: time.Second, Format: "json"}})
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if got := len(verr.Fields()); got != 2 {
		t.Fatalf("expected 2 field errors, got %d", got)
	}
	if !strings.Contains(verr.Error(), "; ") {
		t.Errorf("expected joined messages, got %q", verr.Error())
	}
}
