// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package kv

// Command channel keys.
const (
	KeyCmdCapture   = "fetcher:cmd:capture"
	KeyCmdExport    = "fetcher:cmd:export"
	KeyCmdSyncFull  = "fetcher:cmd:sync_full"
	KeyCmdSyncCount = "fetcher:cmd:sync_count"
)

// Published data.
const (
	KeyTracksFull = "fetcher:tracks:full"
	KeyTracksInc  = "fetcher:tracks:inc"
	KeySupporters = "fetcher:supporters"
	KeyAPRSLogs   = "fetcher:aprs:logs"
	KeyState      = "fetcher:state"
)

// VendorKey returns the telemetry key of a vendor, e.g. "fetcher:inreach:errors".
func VendorKey(vendor, suffix string) string {
	return "fetcher:" + vendor + ":" + suffix
}

// HostKey returns the telemetry list of a host.
func HostKey(host string) string {
	return "fetcher:host:" + host
}
