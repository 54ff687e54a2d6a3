// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

/*
Package supervisor runs the fetcher services under a suture v4 tree.

	Root ("fetcher")
	├── data-layer
	│   └── TickService
	├── network-layer
	│   ├── APRSService (if APRS is enabled)
	│   └── JanitorService (if the relay proxy is enabled)
	└── api-layer
	    └── HTTPServerService

Services that return an error are restarted with suture's backoff. The tick
service returns suture.ErrTerminateSupervisorTree once the configured run
time is over, which stops the whole process.

Supervisor events are logged through sutureslog on top of the zerolog
logger (logging.NewSlogLogger).
*/
package supervisor
