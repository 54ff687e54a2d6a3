// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package roster

import (
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// AccountRecord is one vendor account as stored in the roster store.
type AccountRecord struct {
	Account string `json:"account"`
	Enabled bool   `json:"enabled"`
}

// PilotRecord is one pilot as stored in the roster store.
type PilotRecord struct {
	ID        int64                                 `json:"id"`
	Name      string                                `json:"name"`
	Enabled   bool                                  `json:"enabled"`
	Share     bool                                  `json:"share"`
	UpdatedMs int64                                 `json:"updatedMs"`
	Accounts  map[models.TrackerKind]AccountRecord `json:"accounts"`
}

// FleetRecord is one UFO fleet as stored in the roster store.
type FleetRecord struct {
	Name      string `json:"name"`
	Account   string `json:"account"`
	Enabled   bool   `json:"enabled"`
	UpdatedMs int64  `json:"updatedMs"`
}

// SyncStats reports what a sync changed.
type SyncStats struct {
	Added   int
	Updated int
	Removed int
}

// ApplyPilots upserts pilot records. The live track and fetch state of an
// existing tracker survive unless its account changed.
func (r *Roster) ApplyPilots(records []PilotRecord) SyncStats {
	var stats SyncStats
	for _, rec := range records {
		if rec.UpdatedMs > r.LastUpdatedMs {
			r.LastUpdatedMs = rec.UpdatedMs
		}

		p, ok := r.Pilots[rec.ID]
		if !ok {
			p = &Pilot{
				ID:       rec.ID,
				Trackers: make(map[models.TrackerKind]*Tracker),
				Track:    livetrack.New(rec.ID, rec.Name),
			}
			r.Pilots[rec.ID] = p
			stats.Added++
		} else {
			stats.Updated++
		}

		p.Name = rec.Name
		p.Enabled = rec.Enabled
		p.Share = rec.Share
		if p.Track != nil {
			p.Track.Name = rec.Name
		}

		for kind := range p.Trackers {
			if _, keep := rec.Accounts[kind]; !keep {
				delete(p.Trackers, kind)
			}
		}
		for kind, acc := range rec.Accounts {
			if !kind.Valid() {
				continue
			}
			t, exists := p.Trackers[kind]
			if !exists || t.Account != acc.Account {
				t = &Tracker{Account: acc.Account}
				p.Trackers[kind] = t
			}
			t.Enabled = acc.Enabled && acc.Account != ""
		}
	}
	return stats
}

// RemoveMissingPilots deletes every pilot whose id is not in present.
// Only a full sync knows the complete id set, so only a full sync calls it.
func (r *Roster) RemoveMissingPilots(present map[int64]struct{}) int {
	removed := 0
	for id := range r.Pilots {
		if _, ok := present[id]; !ok {
			delete(r.Pilots, id)
			removed++
		}
	}
	return removed
}

// ApplyFleets upserts fleet records.
func (r *Roster) ApplyFleets(records []FleetRecord) SyncStats {
	var stats SyncStats
	for _, rec := range records {
		if rec.UpdatedMs > r.LastUpdatedMs {
			r.LastUpdatedMs = rec.UpdatedMs
		}
		f, ok := r.Fleets[rec.Name]
		if !ok {
			f = &Fleet{Name: rec.Name, Ufos: make(map[string]*livetrack.LiveTrack)}
			r.Fleets[rec.Name] = f
			stats.Added++
		} else {
			stats.Updated++
		}
		if f.Account != rec.Account {
			f.Tracker = Tracker{Account: rec.Account}
		}
		f.Enabled = rec.Enabled && rec.Account != ""
	}
	return stats
}

// RemoveMissingFleets deletes every fleet whose name is not in present.
func (r *Roster) RemoveMissingFleets(present map[string]struct{}) int {
	removed := 0
	for name := range r.Fleets {
		if _, ok := present[name]; !ok {
			delete(r.Fleets, name)
			removed++
		}
	}
	return removed
}
