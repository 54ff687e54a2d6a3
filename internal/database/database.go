// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package database is the roster store: the source of truth for pilots,
// their tracker accounts, UFO fleets and supporters, kept in DuckDB.
//
// The fetcher only reads from it (full scans for the daily full sync,
// updated-since queries for the partial sync). Writes come from the edit
// flows of the web application and, here, from seeding and tests.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/logging"
)

// DB wraps the DuckDB connection.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the database and creates the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" && cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", cfg.Path, threads, maxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Roster store opened")
	return db, nil
}

// Conn exposes the underlying connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing database")
	}
}

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS pilots (
			id BIGINT PRIMARY KEY,
			name VARCHAR NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			share BOOLEAN NOT NULL DEFAULT TRUE,
			updated_ms BIGINT NOT NULL,
			accounts VARCHAR NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pilots_updated ON pilots(updated_ms)`,
		`CREATE TABLE IF NOT EXISTS fleets (
			name VARCHAR PRIMARY KEY,
			account VARCHAR NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			updated_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS supporters (
			name VARCHAR NOT NULL,
			amount DOUBLE NOT NULL,
			created_ms BIGINT NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
