// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

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
)

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/propertypulse/config.yaml",
	"/etc/propertypulse/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults populated. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8787,
			Timeout:         30 * time.Second,
			Environment:     "development",
			CORSOrigins:     []string{"*"},
			GlobalRateLimit: 300,
		},
		Database: DatabaseConfig{
			Path:      "/data/propertypulse.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Geo: GeoConfig{
			MMDBPath:      "",
			RemoteEnabled: true,
			RemoteTimeout: 5 * time.Second,
			CacheTTL:      time.Hour,
			LRUSize:       10000,
			LRUTTL:        10 * time.Minute,
		},
		Ingest: IngestConfig{
			MaxBatchSize:      50,
			SessionRateLimit:  60,
			SessionRateWindow: time.Minute,
			MaxStringLength:   512,
			MaxPayloadBytes:   4096,
		},
		Aggregation: AggregationConfig{
			HourlyInterval:         time.Hour,
			DailyInterval:          24 * time.Hour,
			PresenceSweepInterval:  5 * time.Minute,
			PresenceStaleThreshold: 120 * time.Second,
			RetentionDays:          30,
			RetentionBatchSize:     10000,
			RetentionRetryDelay:    time.Minute,
		},
		Engagement: EngagementConfig{
			DebounceWindow:   60 * time.Second,
			DailyDecay:       0.95,
			TrendBand:        2.0,
			RecentWindowDays: 7,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources, precedence
// ENV > file > defaults, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
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

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// supplied via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env var strings to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice when it came from YAML.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, so stray environment noise
// never pollutes configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":         "server.host",
		"http_port":         "server.port",
		"http_timeout":      "server.timeout",
		"environment":       "server.environment",
		"cors_origins":      "server.cors_origins",
		"global_rate_limit": "server.global_rate_limit",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Geolocation
		"geo_mmdb_path":      "geo.mmdb_path",
		"geo_remote_enabled": "geo.remote_enabled",
		"geo_remote_timeout": "geo.remote_timeout",
		"geo_cache_ttl":      "geo.cache_ttl",
		"geo_lru_size":       "geo.lru_size",
		"geo_lru_ttl":        "geo.lru_ttl",

		// Ingestion
		"ingest_max_batch_size":      "ingest.max_batch_size",
		"ingest_session_rate_limit":  "ingest.session_rate_limit",
		"ingest_session_rate_window": "ingest.session_rate_window",
		"ingest_max_string_length":   "ingest.max_string_length",
		"ingest_max_payload_bytes":   "ingest.max_payload_bytes",

		// Aggregation
		"aggregation_hourly_interval": "aggregation.hourly_interval",
		"aggregation_daily_interval":  "aggregation.daily_interval",
		"presence_sweep_interval":     "aggregation.presence_sweep_interval",
		"presence_stale_threshold":    "aggregation.presence_stale_threshold",
		"retention_days":              "aggregation.retention_days",
		"retention_batch_size":        "aggregation.retention_batch_size",
		"retention_retry_delay":       "aggregation.retention_retry_delay",

		// Engagement
		"engagement_debounce_window":    "engagement.debounce_window",
		"engagement_daily_decay":        "engagement.daily_decay",
		"engagement_trend_band":         "engagement.trend_band",
		"engagement_recent_window_days": "engagement.recent_window_days",

		// API
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
