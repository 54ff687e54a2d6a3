// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

/*
Package models defines the small set of identifiers shared by every layer of
the fetcher.

TrackerKind enumerates the live-tracking vendors. Its ordinal is packed into
every fix's flags word, so the order of the constants is part of the stored
snapshot format and of the downstream wire format: new vendors are appended,
never inserted.
*/
package models
