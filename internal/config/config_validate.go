// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package config

import (
	"fmt"

	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/validation"
)

// Validate checks struct tags first, then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateFetcher(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateVendors(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateElevation()
}

func (c *Config) validateFetcher() error {
	if c.Fetcher.FetchTimeout >= c.Fetcher.RefreshInterval {
		return fmt.Errorf("FETCH_TIMEOUT (%s) must be shorter than REFRESH_INTERVAL (%s)",
			c.Fetcher.FetchTimeout, c.Fetcher.RefreshInterval)
	}
	if c.Fetcher.PartialSyncInterval > c.Fetcher.FullSyncInterval {
		return fmt.Errorf("PARTIAL_SYNC_INTERVAL (%s) must not exceed FULL_SYNC_INTERVAL (%s)",
			c.Fetcher.PartialSyncInterval, c.Fetcher.FullSyncInterval)
	}
	if c.Storage.BadgerPath == "" && !c.Storage.BadgerInMemory {
		return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY=true")
	}
	return nil
}

// validateRetention requires tiers sorted by age with non-decreasing intervals.
func (c *Config) validateRetention() error {
	r := c.Retention
	if r.MaxAgeSec <= 0 {
		return fmt.Errorf("retention.max_age_sec must be positive")
	}
	for i := 1; i < len(r.Tiers); i++ {
		prev, cur := r.Tiers[i-1], r.Tiers[i]
		if cur.MinAgeSec <= prev.MinAgeSec {
			return fmt.Errorf("retention tiers must be sorted by min_age_sec (tier %d)", i)
		}
		if cur.IntervalSec < prev.IntervalSec {
			return fmt.Errorf("retention tier %d interval must not be finer than tier %d", i, i-1)
		}
	}
	return nil
}

func (c *Config) validateVendors() error {
	for _, kind := range models.AllTrackerKinds() {
		v := c.Vendors.For(kind)
		if !v.Enabled || v.URL == "" {
			continue
		}
		if err := validateHTTPURL(v.URL, kind.String()+" url"); err != nil {
			return err
		}
	}
	if c.Fleets.Aviant.Enabled {
		if err := validateHTTPURL(c.Fleets.Aviant.URL, "aviant url"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateElevation() error {
	if !c.Elevation.Enabled {
		return nil
	}
	if err := validateHTTPURL(c.Elevation.URL, "ELEVATION_URL"); err != nil {
		return fmt.Errorf("ELEVATION_URL is invalid: %w", err)
	}
	return nil
}
