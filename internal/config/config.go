// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package config loads the fetcher configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config File: optional YAML file (CONFIG_PATH, config.yaml, /etc/flyxc/fetcher.yaml)
//  3. Environment Variables: override any mapped setting
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
//	db, err := database.New(&cfg.Database)
package config

import (
	"time"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
)

// Config holds all fetcher configuration.
type Config struct {
	Fetcher   FetcherConfig       `koanf:"fetcher"`
	Retention livetrack.Retention `koanf:"retention"`
	Vendors   VendorsConfig       `koanf:"vendors"`
	Fleets    FleetsConfig        `koanf:"fleets"`
	APRS      APRSConfig          `koanf:"aprs"`
	Proxy     ProxyConfig         `koanf:"proxy"`
	Storage   StorageConfig       `koanf:"storage"`
	Database  DatabaseConfig      `koanf:"database"`
	NATS      NATSConfig          `koanf:"nats"`
	Elevation ElevationConfig     `koanf:"elevation"`
	Server    ServerConfig        `koanf:"server"`
	Logging   LoggingConfig       `koanf:"logging"`
}

// FetcherConfig drives the tick loop.
type FetcherConfig struct {
	// RefreshInterval is the tick period.
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"min=1s"`
	// FetchTimeout bounds each vendor refresh. Must be shorter than RefreshInterval.
	FetchTimeout     time.Duration `koanf:"fetch_timeout" validate:"min=1s"`
	ElevationTimeout time.Duration `koanf:"elevation_timeout" validate:"min=0"`
	// ShutdownAfter exits the process this long after start. 0 disables.
	ShutdownAfter time.Duration `koanf:"shutdown_after" validate:"min=0"`

	FullSyncInterval      time.Duration `koanf:"full_sync_interval" validate:"min=1m"`
	PartialSyncInterval   time.Duration `koanf:"partial_sync_interval" validate:"min=1s"`
	ExportInterval        time.Duration `koanf:"export_interval" validate:"min=1s"`
	SupporterSyncInterval time.Duration `koanf:"supporter_sync_interval" validate:"min=1m"`
	ArchiveRetentionDays  int           `koanf:"archive_retention_days" validate:"min=1"`

	// IncrementalWindow is the trailing window of the incremental track snapshot.
	IncrementalWindow time.Duration `koanf:"incremental_window" validate:"min=1s"`

	// Hostname labels the host telemetry list. Defaults to os.Hostname().
	Hostname string `koanf:"hostname"`
}

// VendorConfig configures one tracker vendor.
type VendorConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// Token is the vendor credential: bearer token, query key or password
	// depending on the vendor.
	Token string `koanf:"token"`

	// RateLimit is the maximum number of requests per second. 0 disables pacing.
	RateLimit   float64       `koanf:"rate_limit" validate:"min=0"`
	Burst       int           `koanf:"burst" validate:"min=0"`
	Concurrency int           `koanf:"concurrency" validate:"min=0,max=32"`
	BatchSize   int           `koanf:"batch_size" validate:"min=0"`
	Timeout     time.Duration `koanf:"timeout" validate:"min=0"`
}

// VendorsConfig lists every tracker vendor.
type VendorsConfig struct {
	Inreach   VendorConfig `koanf:"inreach"`
	Spot      VendorConfig `koanf:"spot"`
	Skylines  VendorConfig `koanf:"skylines"`
	Flyme     VendorConfig `koanf:"flyme"`
	Flymaster VendorConfig `koanf:"flymaster"`
	Ogn       VendorConfig `koanf:"ogn"`
	Zoleo     VendorConfig `koanf:"zoleo"`
	XContest  VendorConfig `koanf:"xcontest"`
	Meshbir   VendorConfig `koanf:"meshbir"`
}

// For returns the configuration of a vendor.
func (v *VendorsConfig) For(kind models.TrackerKind) *VendorConfig {
	switch kind {
	case models.Inreach:
		return &v.Inreach
	case models.Spot:
		return &v.Spot
	case models.Skylines:
		return &v.Skylines
	case models.Flyme:
		return &v.Flyme
	case models.Flymaster:
		return &v.Flymaster
	case models.Ogn:
		return &v.Ogn
	case models.Zoleo:
		return &v.Zoleo
	case models.XContest:
		return &v.XContest
	case models.Meshbir:
		return &v.Meshbir
	default:
		return nil
	}
}

// FleetsConfig lists the UFO fleet sources.
type FleetsConfig struct {
	Aviant VendorConfig `koanf:"aviant"`
}

// APRSConfig configures the glider network client.
type APRSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Address  string `koanf:"address" validate:"required_if=Enabled true"`
	Callsign string `koanf:"callsign"`
	Passcode string `koanf:"passcode"`
	Filter   string `koanf:"filter"`

	DialTimeout       time.Duration `koanf:"dial_timeout" validate:"min=0"`
	KeepAliveInterval time.Duration `koanf:"keepalive_interval" validate:"min=1s"`
	// ServerKeepAlive is the expected period of inbound "#" lines.
	ServerKeepAlive time.Duration `koanf:"server_keepalive" validate:"min=1s"`
	// StaleFactor multiplies ServerKeepAlive to get the stale threshold.
	StaleFactor float64 `koanf:"stale_factor" validate:"min=1"`

	MaxDevices            int           `koanf:"max_devices" validate:"min=1"`
	MaxPositionsPerDevice int           `koanf:"max_positions_per_device" validate:"min=1"`
	MinPositionSpacing    time.Duration `koanf:"min_position_spacing" validate:"min=0"`
	MaxLogs               int           `koanf:"max_logs" validate:"min=1"`

	// PushEnabled bridges fixes of other vendors onto the network.
	PushEnabled bool `koanf:"push_enabled"`
}

// ProxyConfig configures the relay proxy used when a vendor rate limits us.
type ProxyConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Project     string   `koanf:"project" validate:"required_if=Enabled true"`
	Zones       []string `koanf:"zones" validate:"required_if=Enabled true"`
	MachineType string   `koanf:"machine_type"`
	Image       string   `koanf:"image"`
	Label       string   `koanf:"label" validate:"required"`
	Port        int      `koanf:"port" validate:"min=1,max=65535"`
	// RelayDuration is how long requests keep going through the relay after a 429.
	RelayDuration time.Duration `koanf:"relay_duration" validate:"min=0"`
	// JanitorInterval is the zombie cleanup period.
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"min=1s"`
}

// StorageConfig configures the local key-value and blob stores.
type StorageConfig struct {
	BadgerPath     string `koanf:"badger_path"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`
	BlobDir        string `koanf:"blob_dir" validate:"required"`
}

// DatabaseConfig configures the DuckDB roster store.
type DatabaseConfig struct {
	// Path of the database file, ":memory:" for an in-memory database.
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// NATSConfig configures the downstream snapshot publisher.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// Subject prefix; snapshots go to "<prefix>.full" and "<prefix>.inc".
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`
	// EmbeddedServer starts an in-process NATS server on URL's port.
	EmbeddedServer bool `koanf:"embedded_server"`
}

// ElevationConfig configures the ground altitude lookup.
type ElevationConfig struct {
	Enabled   bool          `koanf:"enabled"`
	URL       string        `koanf:"url"`
	Timeout   time.Duration `koanf:"timeout" validate:"min=0"`
	BatchSize int           `koanf:"batch_size" validate:"min=1"`
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout" validate:"min=0"`
	// CacheSize is the number of cached grid cells. 0 disables the cache.
	CacheSize int           `koanf:"cache_size" validate:"min=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// CORSOrigins may read /status from a browser. Empty disables CORS.
	CORSOrigins []string `koanf:"cors_origins"`
	// StatusRateLimit is the number of /status requests per minute and per IP. 0 disables.
	StatusRateLimit int `koanf:"status_rate_limit" validate:"min=0"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Load is the entry point used by the binary.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
