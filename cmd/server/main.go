// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package main is the entry point for the PropertyPulse server.
//
// PropertyPulse collects visitor telemetry from real estate listing sites
// and turns it into live presence, traffic aggregates, and per-client
// engagement scores for agents.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered load (defaults, yaml file, env)
//  2. Database: DuckDB storage for events, sessions, and aggregates
//  3. Geolocation: optional local MMDB reader, optional remote provider
//  4. Core services: device classifier, engagement scorer, ingest service
//  5. Background jobs: hourly/daily aggregation, presence sweep, retention
//  6. HTTP server: Chi router under a suture supervisor tree
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests (10s timeout), jobs stop at their next tick check,
// and the database closes last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/propertypulse/internal/aggregate"
	"github.com/tomtom215/propertypulse/internal/api"
	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/database"
	"github.com/tomtom215/propertypulse/internal/device"
	"github.com/tomtom215/propertypulse/internal/engagement"
	"github.com/tomtom215/propertypulse/internal/geoip"
	"github.com/tomtom215/propertypulse/internal/ingest"
	"github.com/tomtom215/propertypulse/internal/listing"
	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet; the default logger has to do.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("environment", cfg.Server.Environment).
		Msg("Starting PropertyPulse")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	geoResolver := buildGeoResolver(cfg, db)
	classifier := device.New(device.Config{})

	scorer := engagement.New(db, &cfg.Engagement, nil)
	defer scorer.Stop()

	ingestService := ingest.New(&cfg.Ingest, db, geoResolver, classifier, scorer,
		cfg.Aggregation.PresenceStaleThreshold)

	listings := listing.New(db)
	handler := api.NewHandler(cfg, ingestService, scorer, db, listings)
	router := api.NewRouter(cfg, handler)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	aggregator := aggregate.New(db, &cfg.Aggregation, nil)
	tree.AddJobService(aggregator.HourlyService())
	tree.AddJobService(aggregator.DailyService())
	tree.AddJobService(aggregator.PresenceSweepService())
	tree.AddJobService(aggregator.RetentionService())

	tree.AddAPIService(supervisor.NewHTTPServerService(server, shutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// buildGeoResolver assembles the geolocation chain from what is
// configured: local MMDB reader, remote provider, DB-backed cache. Any
// absent piece is skipped; a missing MMDB file is a warning, not a
// startup failure.
func buildGeoResolver(cfg *config.Config, db *database.DB) *geoip.Resolver {
	var reader *geoip.Reader
	if cfg.Geo.MMDBPath != "" {
		r, err := geoip.Open(cfg.Geo.MMDBPath)
		if err != nil {
			logging.Warn().Err(err).Str("path", cfg.Geo.MMDBPath).
				Msg("Failed to open MMDB database, continuing without local geolocation")
		} else {
			reader = r
			meta := r.Metadata()
			logging.Info().
				Str("database_type", meta.DatabaseType).
				Uint64("build_epoch", meta.BuildEpoch).
				Msg("MMDB database loaded")
		}
	}

	var remote geoip.RemoteProvider
	if cfg.Geo.RemoteEnabled {
		remote = geoip.NewIPAPIProvider(cfg.Geo.RemoteTimeout)
		logging.Info().Msg("Remote geolocation provider enabled")
	}

	return geoip.NewResolver(reader, remote, db, geoip.ResolverConfig{
		LRUSize:  cfg.Geo.LRUSize,
		LRUTTL:   cfg.Geo.LRUTTL,
		CacheTTL: cfg.Geo.CacheTTL,
	})
}
