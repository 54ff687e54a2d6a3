// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/vicb/flyXC-sub000/internal/livetrack"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/flyxc/fetcher.yaml",
	"/etc/flyxc/fetcher.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns the built-in configuration, without file or environment
// overrides.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			RefreshInterval:       time.Minute,
			FetchTimeout:          40 * time.Second,
			ElevationTimeout:      10 * time.Second,
			ShutdownAfter:         0,
			FullSyncInterval:      24 * time.Hour,
			PartialSyncInterval:   10 * time.Minute,
			ExportInterval:        10 * time.Minute,
			SupporterSyncInterval: 6 * time.Hour,
			ArchiveRetentionDays:  30,
			IncrementalWindow:     5 * time.Minute,
		},
		Retention: livetrack.DefaultRetention(),
		Vendors: VendorsConfig{
			Inreach: VendorConfig{
				Enabled:     true,
				URL:         "https://share.garmin.com/Feed/Share/",
				RateLimit:   5,
				Burst:       5,
				Concurrency: 4,
				Timeout:     10 * time.Second,
			},
			Spot: VendorConfig{
				Enabled:   true,
				URL:       "https://api.findmespot.com/spot-main-web/consumer/rest-api/2.0/public/feed/",
				RateLimit: 2,
				Burst:     1,
				Timeout:   10 * time.Second,
			},
			Skylines: VendorConfig{
				Enabled: true,
				URL:     "https://skylines.aero/api/live/",
				Timeout: 10 * time.Second,
			},
			Flyme: VendorConfig{
				Enabled: true,
				URL:     "https://xcglobe.com/livetrack/flyxcPositions",
				Timeout: 10 * time.Second,
			},
			Flymaster: VendorConfig{
				Enabled:   true,
				URL:       "https://lt.flymaster.net/wlb/getLiveData.php",
				BatchSize: 10,
				Timeout:   10 * time.Second,
			},
			Ogn:   VendorConfig{Enabled: true},
			Zoleo: VendorConfig{Enabled: true},
			XContest: VendorConfig{
				Enabled: true,
				URL:     "https://api.xcontest.org/livedata/users",
				Timeout: 10 * time.Second,
			},
			Meshbir: VendorConfig{Enabled: true},
		},
		Fleets: FleetsConfig{
			Aviant: VendorConfig{
				Enabled: false,
				URL:     "https://api.aviant.no/v1/tracking/vehicles",
				Timeout: 10 * time.Second,
			},
		},
		APRS: APRSConfig{
			Enabled:               true,
			Address:               "aprs.glidernet.org:14580",
			Callsign:              "FLYXC",
			Passcode:              "-1",
			Filter:                "r/46/8/1500",
			DialTimeout:           10 * time.Second,
			KeepAliveInterval:     10 * time.Minute,
			ServerKeepAlive:       20 * time.Second,
			StaleFactor:           3,
			MaxDevices:            5000,
			MaxPositionsPerDevice: 100,
			MinPositionSpacing:    5 * time.Second,
			MaxLogs:               50,
			PushEnabled:           false,
		},
		Proxy: ProxyConfig{
			Enabled:         false,
			Zones:           []string{"us-central1-a", "us-central1-b", "us-central1-c", "us-central1-f"},
			MachineType:     "e2-micro",
			Image:           "projects/debian-cloud/global/images/family/debian-12",
			Label:           "flyxc-relay",
			Port:            3128,
			RelayDuration:   30 * time.Minute,
			JanitorInterval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			BadgerPath: "/data/kv",
			BlobDir:    "/data/blobs",
		},
		Database: DatabaseConfig{
			Path:      "/data/roster.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			SubjectPrefix:  "flyxc.tracks",
			EmbeddedServer: false,
		},
		Elevation: ElevationConfig{
			Enabled:          false,
			URL:              "https://api.open-elevation.com/api/v1/lookup",
			Timeout:          10 * time.Second,
			BatchSize:        100,
			FailureThreshold: 3,
			OpenTimeout:      5 * time.Minute,
			CacheSize:        50000,
			CacheTTL:         24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StatusRateLimit: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config File: optional YAML config file (if exists)
//  3. Environment Variables: override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Fetcher.Hostname == "" {
		cfg.Fetcher.Hostname, _ = os.Hostname()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"proxy.zones",
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lower case) to koanf paths.
var envMappings = map[string]string{
	// Fetcher
	"refresh_interval":        "fetcher.refresh_interval",
	"fetch_timeout":           "fetcher.fetch_timeout",
	"elevation_timeout":       "fetcher.elevation_timeout",
	"shutdown_after":          "fetcher.shutdown_after",
	"full_sync_interval":      "fetcher.full_sync_interval",
	"partial_sync_interval":   "fetcher.partial_sync_interval",
	"export_interval":         "fetcher.export_interval",
	"supporter_sync_interval": "fetcher.supporter_sync_interval",
	"archive_retention_days":  "fetcher.archive_retention_days",
	"fetcher_hostname":        "fetcher.hostname",

	// Vendor credentials
	"inreach_enabled":   "vendors.inreach.enabled",
	"spot_enabled":      "vendors.spot.enabled",
	"skylines_enabled":  "vendors.skylines.enabled",
	"flyme_enabled":     "vendors.flyme.enabled",
	"flyme_token":       "vendors.flyme.token",
	"flymaster_enabled": "vendors.flymaster.enabled",
	"flymaster_token":   "vendors.flymaster.token",
	"ogn_enabled":       "vendors.ogn.enabled",
	"zoleo_enabled":     "vendors.zoleo.enabled",
	"xcontest_enabled":  "vendors.xcontest.enabled",
	"xcontest_token":    "vendors.xcontest.token",
	"meshbir_enabled":   "vendors.meshbir.enabled",
	"aviant_enabled":    "fleets.aviant.enabled",
	"aviant_url":        "fleets.aviant.url",
	"aviant_key":        "fleets.aviant.token",

	// APRS
	"aprs_enabled":  "aprs.enabled",
	"aprs_address":  "aprs.address",
	"aprs_callsign": "aprs.callsign",
	"aprs_passcode": "aprs.passcode",
	"aprs_filter":   "aprs.filter",
	"aprs_push":     "aprs.push_enabled",

	// Proxy
	"proxy_enabled":      "proxy.enabled",
	"proxy_project":      "proxy.project",
	"proxy_zones":        "proxy.zones",
	"proxy_machine_type": "proxy.machine_type",
	"proxy_label":        "proxy.label",
	"proxy_port":         "proxy.port",

	// Storage
	"badger_path":       "storage.badger_path",
	"badger_in_memory":  "storage.badger_in_memory",
	"blob_dir":          "storage.blob_dir",
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// NATS
	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_subject_prefix": "nats.subject_prefix",
	"nats_embedded":       "nats.embedded_server",

	// Elevation
	"elevation_enabled": "elevation.enabled",
	"elevation_url":     "elevation.url",
	"elevation_cache":   "elevation.cache_size",

	// Server
	"http_addr":         "server.addr",
	"http_cors_origins": "server.cors_origins",
	"status_rate_limit": "server.status_rate_limit",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - LOG_LEVEL -> logging.level
//   - XCONTEST_TOKEN -> vendors.xcontest.token
//   - DUCKDB_PATH -> database.path
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// Unmapped variables are skipped so that the environment cannot pollute the config.
	return ""
}
