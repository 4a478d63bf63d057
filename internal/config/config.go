// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package config holds application configuration, loaded in layers:
// built-in defaults, an optional YAML file, then environment variables.
// Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Geo         GeoConfig         `koanf:"geo"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Engagement  EngagementConfig  `koanf:"engagement"`
	API         APIConfig         `koanf:"api"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development or production

	// CORSOrigins lists allowed browser origins for the tracking endpoints.
	// The tracker script runs on customer listing sites, so this usually
	// carries their domains rather than ours.
	CORSOrigins []string `koanf:"cors_origins"`

	// GlobalRateLimit caps requests per IP per minute across all endpoints.
	GlobalRateLimit int `koanf:"global_rate_limit"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads: 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// GeoConfig holds geolocation settings. The local MMDB database is optional;
// without it resolution goes straight to the remote provider (if enabled)
// or degrades to empty results.
type GeoConfig struct {
	MMDBPath      string        `koanf:"mmdb_path"`
	RemoteEnabled bool          `koanf:"remote_enabled"`
	RemoteTimeout time.Duration `koanf:"remote_timeout"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	LRUSize       int           `koanf:"lru_size"`
	LRUTTL        time.Duration `koanf:"lru_ttl"`
}

// IngestConfig holds ingestion boundary settings.
type IngestConfig struct {
	// MaxBatchSize caps events per track call; overflow is truncated, not
	// rejected.
	MaxBatchSize int `koanf:"max_batch_size"`

	// SessionRateLimit / SessionRateWindow bound track+heartbeat calls per
	// session id.
	SessionRateLimit  int           `koanf:"session_rate_limit"`
	SessionRateWindow time.Duration `koanf:"session_rate_window"`

	// MaxStringLength clamps free-form string fields before storage.
	MaxStringLength int `koanf:"max_string_length"`

	// MaxPayloadBytes clamps the serialized event payload.
	MaxPayloadBytes int `koanf:"max_payload_bytes"`
}

// AggregationConfig holds scheduled job settings.
type AggregationConfig struct {
	HourlyInterval time.Duration `koanf:"hourly_interval"`
	DailyInterval  time.Duration `koanf:"daily_interval"`

	PresenceSweepInterval  time.Duration `koanf:"presence_sweep_interval"`
	PresenceStaleThreshold time.Duration `koanf:"presence_stale_threshold"`

	RetentionDays       int           `koanf:"retention_days"`
	RetentionBatchSize  int           `koanf:"retention_batch_size"`
	RetentionRetryDelay time.Duration `koanf:"retention_retry_delay"`
}

// EngagementConfig holds scoring settings.
type EngagementConfig struct {
	// DebounceWindow batches recompute triggers per user.
	DebounceWindow time.Duration `koanf:"debounce_window"`

	// DailyDecay multiplies the base score once per day since last activity.
	DailyDecay float64 `koanf:"daily_decay"`

	// TrendBand is the score-change magnitude treated as stable.
	TrendBand float64 `koanf:"trend_band"`

	// RecentWindowDays is the lookback for the visit-frequency component.
	RecentWindowDays int `koanf:"recent_window_days"`
}

// APIConfig holds read-path pagination limits.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}
