// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks that configuration is internally consistent. Validation
// errors name the environment variable that controls the offending value.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateGeo(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateAggregation(); err != nil {
		return err
	}
	if err := c.validateEngagement(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	if c.Server.GlobalRateLimit <= 0 {
		return fmt.Errorf("GLOBAL_RATE_LIMIT must be positive")
	}
	if c.Server.Environment == "production" {
		for _, origin := range c.Server.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain * in production")
			}
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be non-negative")
	}
	return nil
}

func (c *Config) validateGeo() error {
	if c.Geo.MMDBPath != "" {
		if _, err := os.Stat(c.Geo.MMDBPath); err != nil {
			return fmt.Errorf("GEO_MMDB_PATH %s is not readable: %w", c.Geo.MMDBPath, err)
		}
	}
	if c.Geo.RemoteTimeout <= 0 {
		return fmt.Errorf("GEO_REMOTE_TIMEOUT must be positive")
	}
	if c.Geo.LRUSize <= 0 {
		return fmt.Errorf("GEO_LRU_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxBatchSize <= 0 {
		return fmt.Errorf("INGEST_MAX_BATCH_SIZE must be positive")
	}
	if c.Ingest.SessionRateLimit <= 0 || c.Ingest.SessionRateWindow <= 0 {
		return fmt.Errorf("INGEST_SESSION_RATE_LIMIT and INGEST_SESSION_RATE_WINDOW must be positive")
	}
	if c.Ingest.MaxStringLength <= 0 {
		return fmt.Errorf("INGEST_MAX_STRING_LENGTH must be positive")
	}
	if c.Ingest.MaxPayloadBytes <= 0 {
		return fmt.Errorf("INGEST_MAX_PAYLOAD_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateAggregation() error {
	a := c.Aggregation
	if a.HourlyInterval <= 0 || a.DailyInterval <= 0 {
		return fmt.Errorf("aggregation intervals must be positive")
	}
	if a.PresenceSweepInterval <= 0 {
		return fmt.Errorf("PRESENCE_SWEEP_INTERVAL must be positive")
	}
	if a.PresenceStaleThreshold <= 0 {
		return fmt.Errorf("PRESENCE_STALE_THRESHOLD must be positive")
	}
	if a.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}
	if a.RetentionBatchSize <= 0 {
		return fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateEngagement() error {
	e := c.Engagement
	if e.DebounceWindow <= 0 {
		return fmt.Errorf("ENGAGEMENT_DEBOUNCE_WINDOW must be positive")
	}
	if e.DailyDecay <= 0 || e.DailyDecay > 1 {
		return fmt.Errorf("ENGAGEMENT_DAILY_DECAY must be in (0, 1], got %g", e.DailyDecay)
	}
	if e.TrendBand < 0 {
		return fmt.Errorf("ENGAGEMENT_TREND_BAND must be non-negative")
	}
	if e.RecentWindowDays <= 0 {
		return fmt.Errorf("ENGAGEMENT_RECENT_WINDOW_DAYS must be positive")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize <= 0 {
		return fmt.Errorf("API_DEFAULT_PAGE_SIZE must be positive")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("API_MAX_PAGE_SIZE must be >= API_DEFAULT_PAGE_SIZE")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
