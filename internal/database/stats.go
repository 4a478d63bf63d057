// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/propertypulse/internal/models"
)

// GetStatsSummary computes the dashboard stats view over [from, to),
// optionally narrowed to one platform.
func (db *DB) GetStatsSummary(ctx context.Context, from, to time.Time, platform string) (*models.StatsSummary, error) {
	var s models.StatsSummary

	eventQuery := `SELECT
		COUNT(DISTINCT session_id),
		COALESCE(SUM(CASE WHEN event_type = 'page_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN event_type = 'property_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN event_type = 'search' THEN 1 ELSE 0 END), 0)
	FROM events WHERE created_at >= ? AND created_at < ?`
	eventArgs := []interface{}{from, to}
	if platform != "" {
		eventQuery += ` AND platform = ?`
		eventArgs = append(eventArgs, platform)
	}
	err := db.conn.QueryRowContext(ctx, eventQuery, eventArgs...).Scan(
		&s.UniqueSessions, &s.PageViews, &s.PropertyViews, &s.Searches,
	)
	if err != nil {
		return nil, fmt.Errorf("stats event scalars: %w", err)
	}

	sessionQuery := `SELECT
		COUNT(*),
		COALESCE(AVG(CASE WHEN is_bounce THEN 1.0 ELSE 0.0 END), 0),
		COALESCE(AVG(date_diff('second', first_seen, last_seen)), 0)
	FROM sessions WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot`
	sessionArgs := []interface{}{from, to}
	if platform != "" {
		sessionQuery += ` AND platform = ?`
		sessionArgs = append(sessionArgs, platform)
	}
	err = db.conn.QueryRowContext(ctx, sessionQuery, sessionArgs...).Scan(
		&s.NewSessions, &s.BounceRate, &s.AvgSessionSecs,
	)
	if err != nil {
		return nil, fmt.Errorf("stats session scalars: %w", err)
	}

	s.ReturningSessions = s.UniqueSessions - s.NewSessions
	if s.ReturningSessions < 0 {
		s.ReturningSessions = 0
	}

	platformQuery := `SELECT platform, COUNT(*) FROM events
		WHERE created_at >= ? AND created_at < ?`
	if platform != "" {
		platformQuery += ` AND platform = ?`
	}
	platformQuery += ` GROUP BY platform`
	rows, err := db.conn.QueryContext(ctx, platformQuery, eventArgs...)
	if err != nil {
		return nil, fmt.Errorf("stats platform breakdown: %w", err)
	}
	defer closeQuietly(rows)

	s.PlatformCounts = make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan platform breakdown: %w", err)
		}
		s.PlatformCounts[key] = n
	}
	return &s, rows.Err()
}

// GetTrendPoints returns a time series over [from, to) bucketed by the given
// granularity ("hour" or anything else meaning day), computed from raw
// events so the current incomplete bucket is included.
func (db *DB) GetTrendPoints(ctx context.Context, from, to time.Time, granularity string) ([]models.TrendPoint, error) {
	trunc := "day"
	if granularity == "hour" {
		trunc = "hour"
	}

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`SELECT
		date_trunc('%s', created_at) AS bucket,
		COUNT(DISTINCT session_id),
		COALESCE(SUM(CASE WHEN event_type = 'page_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN event_type = 'property_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN event_type = 'search' THEN 1 ELSE 0 END), 0)
	FROM events WHERE created_at >= ? AND created_at < ?
	GROUP BY bucket ORDER BY bucket ASC`, trunc), from, to)
	if err != nil {
		return nil, fmt.Errorf("query trend points: %w", err)
	}
	defer closeQuietly(rows)

	var points []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Bucket, &p.Sessions, &p.PageViews, &p.PropertyViews, &p.Searches); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetTopContent returns the most-viewed pages or properties over [from, to)
// by raw key. contentType is "properties" or "pages". Display labels are
// the listing catalog's concern, not this query's.
func (db *DB) GetTopContent(ctx context.Context, from, to time.Time, contentType string, limit int) ([]models.TopItem, error) {
	eventType, column := "page_view", "page_path"
	if contentType == "properties" {
		eventType, column = "property_view", "property_id"
	}

	return db.topItems(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) AS n FROM events
		WHERE created_at >= ? AND created_at < ? AND event_type = '%s' AND %s IS NOT NULL
		GROUP BY %s ORDER BY n DESC, %s ASC LIMIT ?`,
		column, eventType, column, column, column), from, to, limit)
}

// GetTrafficSources returns referrer counts over [from, to), busiest first.
// Sessions with no referrer are reported under "(direct)".
func (db *DB) GetTrafficSources(ctx context.Context, from, to time.Time, limit int) ([]models.TopItem, error) {
	return db.topItems(ctx, `SELECT COALESCE(referrer, '(direct)') AS src, COUNT(*) AS n
		FROM sessions
		WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot
		GROUP BY src ORDER BY n DESC, src ASC LIMIT ?`, from, to, limit)
}

// GetGeographic returns session counts grouped by country, region, or city
// over [from, to). Sessions whose geo enrichment degraded are excluded.
func (db *DB) GetGeographic(ctx context.Context, from, to time.Time, level string, limit int) ([]models.TopItem, error) {
	column := "country"
	switch level {
	case "region":
		column = "region"
	case "city":
		column = "city"
	}

	return db.topItems(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) AS n FROM sessions
		WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot AND %s IS NOT NULL
		GROUP BY %s ORDER BY n DESC, %s ASC LIMIT ?`,
		column, column, column, column), from, to, limit)
}
