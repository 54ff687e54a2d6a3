// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package database

import (
	"context"
	"fmt"

	"github.com/vicb/flyXC-sub000/internal/roster"
)

// maxSupporterNames bounds the names returned with the summary.
const maxSupporterNames = 50

// Supporters summarizes the supporters table, most recent names first.
func (db *DB) Supporters(ctx context.Context) (roster.Supporters, error) {
	var s roster.Supporters
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM supporters`).Scan(&s.Count, &s.TotalAmount)
	if err != nil {
		return s, fmt.Errorf("count supporters: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT name FROM supporters ORDER BY created_ms DESC LIMIT ?`, maxSupporterNames)
	if err != nil {
		return s, fmt.Errorf("list supporters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return s, fmt.Errorf("scan supporter: %w", err)
		}
		s.Names = append(s.Names, name)
	}
	return s, rows.Err()
}

// AddSupporter records a supporter.
func (db *DB) AddSupporter(ctx context.Context, name string, amount float64, createdMs int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO supporters (name, amount, created_ms) VALUES (?, ?, ?)`, name, amount, createdMs)
	if err != nil {
		return fmt.Errorf("add supporter: %w", err)
	}
	return nil
}
