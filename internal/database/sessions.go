// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/propertypulse/internal/metrics"
	"github.com/tomtom215/propertypulse/internal/models"
)

// UpsertSession inserts a session row or merges deltas into the existing
// one. Merge rules:
//   - counter deltas are added to stored values
//   - is_bounce clears once cumulative page_views exceeds 1
//   - user_id is set only if previously unset, never overwritten
//   - nullable enrichment fields only fill gaps
//   - last_seen advances, first_seen never moves
//
// A per-session mutex serializes concurrent upserts on the same session id;
// transaction conflicts between different keys retry with backoff.
func (db *DB) UpsertSession(ctx context.Context, up *models.SessionUpsert) error {
	if up.SessionID == "" {
		return fmt.Errorf("database: empty session id")
	}

	mu := acquireLock(&db.sessionLocks, up.SessionID)
	defer mu.Unlock()

	ctx, cancel := writeContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.retryWrite(ctx, func() error {
		return db.doUpsertSession(ctx, up)
	})
	metrics.DBQueryDuration.WithLabelValues("upsert", "sessions").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("upsert", "sessions").Inc()
	}
	return err
}

func (db *DB) doUpsertSession(ctx context.Context, up *models.SessionUpsert) error {
	seenAt := up.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	query := `INSERT INTO sessions (
		session_id, visitor_hash, user_id, platform,
		country, region, city, latitude, longitude,
		referrer, utm_source, utm_medium, utm_campaign,
		device_type, browser, browser_version, os, os_version,
		is_bot, is_bounce, page_views, property_views, searches,
		first_seen, last_seen
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (session_id) DO UPDATE SET
		visitor_hash = COALESCE(sessions.visitor_hash, EXCLUDED.visitor_hash),
		user_id = COALESCE(sessions.user_id, EXCLUDED.user_id),
		country = COALESCE(sessions.country, EXCLUDED.country),
		region = COALESCE(sessions.region, EXCLUDED.region),
		city = COALESCE(sessions.city, EXCLUDED.city),
		latitude = COALESCE(sessions.latitude, EXCLUDED.latitude),
		longitude = COALESCE(sessions.longitude, EXCLUDED.longitude),
		referrer = COALESCE(sessions.referrer, EXCLUDED.referrer),
		utm_source = COALESCE(sessions.utm_source, EXCLUDED.utm_source),
		utm_medium = COALESCE(sessions.utm_medium, EXCLUDED.utm_medium),
		utm_campaign = COALESCE(sessions.utm_campaign, EXCLUDED.utm_campaign),
		browser = COALESCE(sessions.browser, EXCLUDED.browser),
		browser_version = COALESCE(sessions.browser_version, EXCLUDED.browser_version),
		os = COALESCE(sessions.os, EXCLUDED.os),
		os_version = COALESCE(sessions.os_version, EXCLUDED.os_version),
		page_views = sessions.page_views + EXCLUDED.page_views,
		property_views = sessions.property_views + EXCLUDED.property_views,
		searches = sessions.searches + EXCLUDED.searches,
		is_bounce = (sessions.page_views + EXCLUDED.page_views) <= 1,
		last_seen = GREATEST(sessions.last_seen, EXCLUDED.last_seen)`

	initialBounce := up.PageViewDelta <= 1

	_, err := db.conn.ExecContext(ctx, query,
		up.SessionID, up.VisitorHash, up.UserID, string(up.Platform),
		up.Country, up.Region, up.City, up.Latitude, up.Longitude,
		up.Referrer, up.UtmSource, up.UtmMedium, up.UtmCampaign,
		up.DeviceType, up.Browser, up.BrowserVersion, up.OS, up.OSVersion,
		initialBounce, up.PageViewDelta, up.PropertyViewDelta, up.SearchDelta,
		seenAt, seenAt,
	)
	return err
}

// TouchSession advances last_seen for an existing session without changing
// counters. Heartbeats use this; a heartbeat for an unknown session is not
// an error (the session row may arrive later under at-least-once delivery).
func (db *DB) TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error {
	mu := acquireLock(&db.sessionLocks, sessionID)
	defer mu.Unlock()

	ctx, cancel := writeContext(ctx)
	defer cancel()

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE sessions SET last_seen = GREATEST(last_seen, ?) WHERE session_id = ?`,
			seenAt, sessionID,
		)
		return err
	})
}

// GetSession returns one session row, or ErrNotFound.
func (db *DB) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT
		session_id, visitor_hash, user_id, platform,
		country, region, city, latitude, longitude,
		referrer, utm_source, utm_medium, utm_campaign,
		device_type, browser, browser_version, os, os_version,
		is_bot, is_bounce, page_views, property_views, searches,
		first_seen, last_seen
	FROM sessions WHERE session_id = ?`, sessionID)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return s, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var platform string
	if err := row.Scan(
		&s.SessionID, &s.VisitorHash, &s.UserID, &platform,
		&s.Country, &s.Region, &s.City, &s.Latitude, &s.Longitude,
		&s.Referrer, &s.UtmSource, &s.UtmMedium, &s.UtmCampaign,
		&s.DeviceType, &s.Browser, &s.BrowserVersion, &s.OS, &s.OSVersion,
		&s.IsBot, &s.IsBounce, &s.PageViews, &s.PropertyViews, &s.Searches,
		&s.FirstSeen, &s.LastSeen,
	); err != nil {
		return nil, err
	}
	s.Platform = models.Platform(platform)
	return &s, nil
}

// retryWrite runs fn, retrying transaction conflicts with exponential
// backoff. Internal errors fail immediately: with per-key locking they
// indicate an engine bug that retries would only mask.
func (db *DB) retryWrite(ctx context.Context, fn func() error) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("operation timed out or canceled: %w", ctx.Err())
		}
		if isInternalError(err) {
			return fmt.Errorf("duckdb internal error: %w", err)
		}
		if !isTransactionConflict(err) {
			return err
		}

		if attempt < maxRetries-1 {
			backoff := time.Millisecond * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
