// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext bounds schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables. All columns are defined in the
// initial CREATE TABLE statements; incremental changes go through
// migrations.go once real deployments exist.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

func tableCreationQueries() []string {
	return []string{
		// One row per visitor session, merge-updated in place. Counters
		// only grow; user_id is set once and never overwritten.
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			visitor_hash TEXT,
			user_id TEXT,
			platform TEXT NOT NULL,
			country TEXT,
			region TEXT,
			city TEXT,
			latitude DOUBLE,
			longitude DOUBLE,
			referrer TEXT,
			utm_source TEXT,
			utm_medium TEXT,
			utm_campaign TEXT,
			device_type TEXT NOT NULL DEFAULT 'desktop',
			browser TEXT,
			browser_version TEXT,
			os TEXT,
			os_version TEXT,
			is_bot BOOLEAN NOT NULL DEFAULT false,
			is_bounce BOOLEAN NOT NULL DEFAULT true,
			page_views INTEGER NOT NULL DEFAULT 0,
			property_views INTEGER NOT NULL DEFAULT 0,
			searches INTEGER NOT NULL DEFAULT 0,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,

		// Immutable event log. occurred_at is the client clock (journey
		// ordering only); created_at is the server clock (retention).
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_category TEXT,
			platform TEXT NOT NULL,
			page_path TEXT,
			property_id TEXT,
			search_query TEXT,
			scroll_depth DOUBLE,
			payload TEXT,
			occurred_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// TTL cache of active sessions; replace-on-heartbeat.
		`CREATE TABLE IF NOT EXISTS presence (
			session_id TEXT PRIMARY KEY,
			last_heartbeat TIMESTAMP NOT NULL,
			page_path TEXT,
			property_id TEXT
		)`,

		// One row per clock hour; the primary key is the concurrency guard
		// for the skip-if-exists idempotence rule.
		`CREATE TABLE IF NOT EXISTS hourly_aggregates (
			bucket_start TIMESTAMP PRIMARY KEY,
			unique_sessions INTEGER NOT NULL,
			new_sessions INTEGER NOT NULL,
			returning_sessions INTEGER NOT NULL,
			page_views INTEGER NOT NULL,
			property_views INTEGER NOT NULL,
			searches INTEGER NOT NULL,
			bounce_count INTEGER NOT NULL,
			avg_session_secs DOUBLE NOT NULL,
			avg_pages_per_sess DOUBLE NOT NULL,
			avg_scroll_depth DOUBLE NOT NULL,
			platform_counts TEXT NOT NULL,
			device_counts TEXT NOT NULL,
			country_counts TEXT NOT NULL,
			referrer_counts TEXT NOT NULL,
			top_cities TEXT NOT NULL,
			top_pages TEXT NOT NULL,
			top_properties TEXT NOT NULL,
			top_searches TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS daily_aggregates (
			bucket_date DATE PRIMARY KEY,
			unique_sessions INTEGER NOT NULL,
			new_sessions INTEGER NOT NULL,
			returning_sessions INTEGER NOT NULL,
			page_views INTEGER NOT NULL,
			property_views INTEGER NOT NULL,
			searches INTEGER NOT NULL,
			bounce_count INTEGER NOT NULL,
			avg_session_secs DOUBLE NOT NULL,
			avg_pages_per_sess DOUBLE NOT NULL,
			avg_scroll_depth DOUBLE NOT NULL,
			platform_counts TEXT NOT NULL,
			device_counts TEXT NOT NULL,
			country_counts TEXT NOT NULL,
			referrer_counts TEXT NOT NULL,
			top_cities TEXT NOT NULL,
			top_pages TEXT NOT NULL,
			top_properties TEXT NOT NULL,
			top_searches TEXT NOT NULL,
			sessions_change_pct DOUBLE,
			page_views_change_pct DOUBLE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Wholesale-replaced on every recompute.
		`CREATE TABLE IF NOT EXISTS engagement_scores (
			user_id TEXT PRIMARY KEY,
			time_score DOUBLE NOT NULL,
			view_score DOUBLE NOT NULL,
			search_score DOUBLE NOT NULL,
			intent_score DOUBLE NOT NULL,
			frequency_score DOUBLE NOT NULL,
			base_score DOUBLE NOT NULL,
			final_score DOUBLE NOT NULL,
			days_since_activity INTEGER NOT NULL,
			last_activity TIMESTAMP,
			trend TEXT NOT NULL,
			score_change DOUBLE NOT NULL,
			computed_at TIMESTAMP NOT NULL
		)`,

		// Agent-client relationships; scoring is scoped to active clients.
		`CREATE TABLE IF NOT EXISTS clients (
			user_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// External geolocation cache keyed by IP hash (raw addresses are
		// never stored).
		`CREATE TABLE IF NOT EXISTS geolocation_cache (
			ip_hash TEXT PRIMARY KEY,
			country TEXT,
			region TEXT,
			city TEXT,
			latitude DOUBLE,
			longitude DOUBLE,
			timezone TEXT,
			source TEXT NOT NULL,
			cached_at TIMESTAMP NOT NULL
		)`,

		// Read-only collaborator table maintained by the listing platform;
		// used here only to label top-property breakdowns.
		`CREATE TABLE IF NOT EXISTS listings (
			listing_key TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			price BIGINT
		)`,
	}
}

// createIndexes creates secondary indexes for the hot query paths.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_created ON events(event_type, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_property ON events(property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_presence_heartbeat ON presence(last_heartbeat)`,
		`CREATE INDEX IF NOT EXISTS idx_clients_agent ON clients(agent_id)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
