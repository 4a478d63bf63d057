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

// WindowScalars are the raw scalar metrics for one time window, computed
// from sessions and events. Aggregation jobs call these reads, then attach
// breakdowns and top-N lists before inserting the bucket row.
type WindowScalars struct {
	UniqueSessions    int
	NewSessions       int
	ReturningSessions int
	PageViews         int
	PropertyViews     int
	Searches          int
	BounceCount       int
	AvgSessionSecs    float64
	AvgPagesPerSess   float64
	AvgScrollDepth    float64
}

// GetWindowScalars computes the scalar metrics for [from, to). Session-based
// figures (new sessions, bounces, averages) attribute a session to the
// window its first_seen falls in; event counts use the server-side
// created_at clock.
func (db *DB) GetWindowScalars(ctx context.Context, from, to time.Time) (*WindowScalars, error) {
	var s WindowScalars

	err := db.conn.QueryRowContext(ctx, `SELECT
		COUNT(DISTINCT session_id),
		COALESCE(SUM(CASE WHEN event_type = 'page_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN event_type = 'property_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN event_type = 'search' THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(scroll_depth), 0)
	FROM events WHERE created_at >= ? AND created_at < ?`, from, to).Scan(
		&s.UniqueSessions, &s.PageViews, &s.PropertyViews, &s.Searches, &s.AvgScrollDepth,
	)
	if err != nil {
		return nil, fmt.Errorf("window event scalars: %w", err)
	}

	err = db.conn.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN is_bounce THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(date_diff('second', first_seen, last_seen)), 0),
		COALESCE(AVG(page_views), 0)
	FROM sessions
	WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot`, from, to).Scan(
		&s.NewSessions, &s.BounceCount, &s.AvgSessionSecs, &s.AvgPagesPerSess,
	)
	if err != nil {
		return nil, fmt.Errorf("window session scalars: %w", err)
	}

	s.ReturningSessions = s.UniqueSessions - s.NewSessions
	if s.ReturningSessions < 0 {
		s.ReturningSessions = 0
	}
	return &s, nil
}

// GetWindowBreakdowns computes the four categorical count maps for
// [from, to): platform from events, device/country/referrer from sessions
// first seen in the window.
func (db *DB) GetWindowBreakdowns(ctx context.Context, from, to time.Time) (platforms, devices, countries, referrers map[string]int, err error) {
	platforms, err = db.countGroup(ctx,
		`SELECT platform, COUNT(*) FROM events
		 WHERE created_at >= ? AND created_at < ?
		 GROUP BY platform`, from, to)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	devices, err = db.countGroup(ctx,
		`SELECT device_type, COUNT(*) FROM sessions
		 WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot
		 GROUP BY device_type`, from, to)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	countries, err = db.countGroup(ctx,
		`SELECT country, COUNT(*) FROM sessions
		 WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot AND country IS NOT NULL
		 GROUP BY country`, from, to)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	referrers, err = db.countGroup(ctx,
		`SELECT referrer, COUNT(*) FROM sessions
		 WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot AND referrer IS NOT NULL
		 GROUP BY referrer`, from, to)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return platforms, devices, countries, referrers, nil
}

// GetWindowTopN computes the four top-N lists for [from, to), each capped
// at limit and sorted descending by count.
func (db *DB) GetWindowTopN(ctx context.Context, from, to time.Time, limit int) (cities, pages, properties, searches []models.TopItem, err error) {
	cities, err = db.topItems(ctx,
		`SELECT city, COUNT(*) AS n FROM sessions
		 WHERE first_seen >= ? AND first_seen < ? AND NOT is_bot AND city IS NOT NULL
		 GROUP BY city ORDER BY n DESC, city ASC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	pages, err = db.topItems(ctx,
		`SELECT page_path, COUNT(*) AS n FROM events
		 WHERE created_at >= ? AND created_at < ? AND event_type = 'page_view' AND page_path IS NOT NULL
		 GROUP BY page_path ORDER BY n DESC, page_path ASC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	properties, err = db.topItems(ctx,
		`SELECT property_id, COUNT(*) AS n FROM events
		 WHERE created_at >= ? AND created_at < ? AND event_type = 'property_view' AND property_id IS NOT NULL
		 GROUP BY property_id ORDER BY n DESC, property_id ASC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	searches, err = db.topItems(ctx,
		`SELECT search_query, COUNT(*) AS n FROM events
		 WHERE created_at >= ? AND created_at < ? AND event_type = 'search' AND search_query IS NOT NULL
		 GROUP BY search_query ORDER BY n DESC, search_query ASC LIMIT ?`, from, to, limit)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return cities, pages, properties, searches, nil
}

func (db *DB) countGroup(ctx context.Context, query string, from, to time.Time) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("breakdown query: %w", err)
	}
	defer closeQuietly(rows)

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan breakdown row: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (db *DB) topItems(ctx context.Context, query string, from, to time.Time, limit int) ([]models.TopItem, error) {
	rows, err := db.conn.QueryContext(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("top-n query: %w", err)
	}
	defer closeQuietly(rows)

	items := make([]models.TopItem, 0, limit)
	for rows.Next() {
		var item models.TopItem
		if err := rows.Scan(&item.Key, &item.Count); err != nil {
			return nil, fmt.Errorf("scan top-n row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
