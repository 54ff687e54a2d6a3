// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package services adapts the fetcher components to suture.Service.
//
// Each wrapper blocks in Serve until its context is canceled and names
// itself through fmt.Stringer for the supervisor logs.
package services
