// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/logging"
	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

const pilotColumns = `id, name, enabled, share, updated_ms, accounts`

// ListPilots returns every pilot record.
func (db *DB) ListPilots(ctx context.Context) ([]roster.PilotRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+pilotColumns+` FROM pilots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pilots: %w", err)
	}
	return scanPilots(rows)
}

// ListPilotsUpdatedSince returns the pilots updated at or after sinceMs.
func (db *DB) ListPilotsUpdatedSince(ctx context.Context, sinceMs int64) ([]roster.PilotRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+pilotColumns+` FROM pilots WHERE updated_ms >= ? ORDER BY updated_ms`, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("list updated pilots: %w", err)
	}
	return scanPilots(rows)
}

func scanPilots(rows *sql.Rows) ([]roster.PilotRecord, error) {
	defer rows.Close()

	var records []roster.PilotRecord
	for rows.Next() {
		var rec roster.PilotRecord
		var accounts string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Enabled, &rec.Share, &rec.UpdatedMs, &accounts); err != nil {
			return nil, fmt.Errorf("scan pilot: %w", err)
		}
		rec.Accounts = decodeAccounts(rec.ID, accounts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pilots: %w", err)
	}
	return records, nil
}

// decodeAccounts parses the accounts column. Unknown vendors are skipped so
// that an older fetcher keeps working when a vendor is added.
func decodeAccounts(pilotID int64, raw string) map[models.TrackerKind]roster.AccountRecord {
	var byName map[string]roster.AccountRecord
	if err := json.Unmarshal([]byte(raw), &byName); err != nil {
		logging.Warn().Err(err).Int64("pilot_id", pilotID).Msg("Invalid accounts column")
		return nil
	}
	accounts := make(map[models.TrackerKind]roster.AccountRecord, len(byName))
	for name, acc := range byName {
		kind, err := models.ParseTrackerKind(name)
		if err != nil {
			continue
		}
		accounts[kind] = acc
	}
	return accounts
}

// UpsertPilot inserts or replaces a pilot record.
func (db *DB) UpsertPilot(ctx context.Context, rec roster.PilotRecord) error {
	byName := make(map[string]roster.AccountRecord, len(rec.Accounts))
	for kind, acc := range rec.Accounts {
		byName[kind.String()] = acc
	}
	accounts, err := json.Marshal(byName)
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO pilots (`+pilotColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Enabled, rec.Share, rec.UpdatedMs, string(accounts))
	if err != nil {
		return fmt.Errorf("upsert pilot %d: %w", rec.ID, err)
	}
	return nil
}

// DeletePilot removes a pilot record.
func (db *DB) DeletePilot(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM pilots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pilot %d: %w", id, err)
	}
	return nil
}

// ListFleets returns every fleet record.
func (db *DB) ListFleets(ctx context.Context) ([]roster.FleetRecord, error) {
	return db.queryFleets(ctx, `SELECT name, account, enabled, updated_ms FROM fleets ORDER BY name`)
}

// ListFleetsUpdatedSince returns the fleets updated at or after sinceMs.
func (db *DB) ListFleetsUpdatedSince(ctx context.Context, sinceMs int64) ([]roster.FleetRecord, error) {
	return db.queryFleets(ctx, `SELECT name, account, enabled, updated_ms FROM fleets WHERE updated_ms >= ? ORDER BY name`, sinceMs)
}

func (db *DB) queryFleets(ctx context.Context, query string, args ...interface{}) ([]roster.FleetRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fleets: %w", err)
	}
	defer rows.Close()

	var records []roster.FleetRecord
	for rows.Next() {
		var rec roster.FleetRecord
		if err := rows.Scan(&rec.Name, &rec.Account, &rec.Enabled, &rec.UpdatedMs); err != nil {
			return nil, fmt.Errorf("scan fleet: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fleets: %w", err)
	}
	return records, nil
}

// UpsertFleet inserts or replaces a fleet record.
func (db *DB) UpsertFleet(ctx context.Context, rec roster.FleetRecord) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO fleets (name, account, enabled, updated_ms) VALUES (?, ?, ?, ?)`,
		rec.Name, rec.Account, rec.Enabled, rec.UpdatedMs)
	if err != nil {
		return fmt.Errorf("upsert fleet %s: %w", rec.Name, err)
	}
	return nil
}
