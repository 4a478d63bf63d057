// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp moves the working directory to an empty temp dir so stray
// config.yaml files on the machine never leak into tests.
func chdirTemp(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8787 {
		t.Errorf("expected default port 8787, got %d", cfg.Server.Port)
	}
	if cfg.Ingest.MaxBatchSize != 50 {
		t.Errorf("expected batch cap 50, got %d", cfg.Ingest.MaxBatchSize)
	}
	if cfg.Aggregation.RetentionDays != 30 {
		t.Errorf("expected retention 30 days, got %d", cfg.Aggregation.RetentionDays)
	}
	if cfg.Aggregation.PresenceStaleThreshold != 120*time.Second {
		t.Errorf("expected stale threshold 120s, got %v", cfg.Aggregation.PresenceStaleThreshold)
	}
	if cfg.Engagement.DailyDecay != 0.95 {
		t.Errorf("expected decay 0.95, got %g", cfg.Engagement.DailyDecay)
	}
	if cfg.Engagement.DebounceWindow != 60*time.Second {
		t.Errorf("expected debounce 60s, got %v", cfg.Engagement.DebounceWindow)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("ENGAGEMENT_DEBOUNCE_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Aggregation.RetentionDays != 7 {
		t.Errorf("expected retention 7, got %d", cfg.Aggregation.RetentionDays)
	}
	if cfg.Engagement.DebounceWindow != 30*time.Second {
		t.Errorf("expected 30s debounce, got %v", cfg.Engagement.DebounceWindow)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	chdirTemp(t)

	yaml := `
server:
  port: 9100
ingest:
  max_batch_size: 25
aggregation:
  retention_days: 14
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100 from file, got %d", cfg.Server.Port)
	}
	if cfg.Ingest.MaxBatchSize != 25 {
		t.Errorf("expected batch cap 25 from file, got %d", cfg.Ingest.MaxBatchSize)
	}
	if cfg.Aggregation.RetentionDays != 14 {
		t.Errorf("expected retention 14 from file, got %d", cfg.Aggregation.RetentionDays)
	}
	// Untouched values keep their defaults.
	if cfg.API.DefaultPageSize != 20 {
		t.Errorf("expected default page size 20, got %d", cfg.API.DefaultPageSize)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	chdirTemp(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("expected env to beat file, got %d", cfg.Server.Port)
	}
}

func TestLoad_CORSOriginsFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("expected trimmed origin, got %q", cfg.Server.CORSOrigins[1])
	}
}

func TestLoad_UnmappedEnvIgnored(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SERVER_SOMETHING_UNRELATED", "boom")

	if _, err := Load(); err != nil {
		t.Fatalf("unrelated env var broke loading: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad environment", func(c *Config) { c.Server.Environment = "staging" }, "ENVIRONMENT"},
		{"wildcard cors in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Server.CORSOrigins = []string{"*"}
		}, "CORS_ORIGINS"},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "DUCKDB_PATH"},
		{"missing mmdb", func(c *Config) { c.Geo.MMDBPath = "/nonexistent/geo.mmdb" }, "GEO_MMDB_PATH"},
		{"zero batch", func(c *Config) { c.Ingest.MaxBatchSize = 0 }, "INGEST_MAX_BATCH_SIZE"},
		{"zero retention", func(c *Config) { c.Aggregation.RetentionDays = 0 }, "RETENTION_DAYS"},
		{"decay above one", func(c *Config) { c.Engagement.DailyDecay = 1.5 }, "ENGAGEMENT_DAILY_DECAY"},
		{"page size inversion", func(c *Config) { c.API.MaxPageSize = 5 }, "API_MAX_PAGE_SIZE"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("expected error naming %s, got %v", tt.wantSub, err)
			}
		})
	}
}

func TestValidate_DefaultsPass(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}
