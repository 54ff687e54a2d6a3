// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

/*
Package api serves the ops endpoints of the fetcher on a chi router:

	GET /healthz/live    process is up
	GET /healthz/ready   ticks are running and components are healthy
	GET /status          roster and last tick summary
	GET /metrics         Prometheus exposition

Every JSON body uses the Response envelope. Readiness fails when no tick
completed within ReadyConfig.MaxTickAge, or when a registered check fails.
*/
package api
