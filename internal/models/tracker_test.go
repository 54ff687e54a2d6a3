// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package models

import "testing"

func TestTrackerKindNames(t *testing.T) {
	t.Parallel()

	for _, kind := range AllTrackerKinds() {
		parsed, err := ParseTrackerKind(kind.String())
		if err != nil {
			t.Fatalf("ParseTrackerKind(%q) error: %v", kind.String(), err)
		}
		if parsed != kind {
			t.Errorf("ParseTrackerKind(%q) = %v, want %v", kind.String(), parsed, kind)
		}
	}
}

func TestTrackerKindOrdinalsAreStable(t *testing.T) {
	t.Parallel()

	// Ordinals are persisted in fix flags.
	if Inreach != 0 || Ogn != 5 || Meshbir != 8 {
		t.Errorf("vendor ordinals changed: inreach=%d ogn=%d meshbir=%d", Inreach, Ogn, Meshbir)
	}
}

func TestParseTrackerKindUnknown(t *testing.T) {
	t.Parallel()

	if _, err := ParseTrackerKind("carrier-pigeon"); err == nil {
		t.Error("expected error for unknown vendor")
	}
	if TrackerKind(200).Valid() {
		t.Error("expected ordinal 200 to be invalid")
	}
}

func TestTrackerKindText(t *testing.T) {
	t.Parallel()

	text, err := XContest.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText error: %v", err)
	}
	var k TrackerKind
	if err := k.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText error: %v", err)
	}
	if k != XContest {
		t.Errorf("got %v, want %v", k, XContest)
	}
}
