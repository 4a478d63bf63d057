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

	json "github.com/goccy/go-json"

	"github.com/tomtom215/propertypulse/internal/models"
)

// HourlyAggregateExists reports whether a row for the given bucket is
// already stored. Aggregation jobs use this to skip completed buckets.
func (db *DB) HourlyAggregateExists(ctx context.Context, bucketStart time.Time) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM hourly_aggregates WHERE bucket_start = ?`, bucketStart).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check hourly bucket: %w", err)
	}
	return true, nil
}

// DailyAggregateExists reports whether a row for the given date is stored.
func (db *DB) DailyAggregateExists(ctx context.Context, bucketDate time.Time) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM daily_aggregates WHERE bucket_date = ?`, dateOnly(bucketDate)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check daily bucket: %w", err)
	}
	return true, nil
}

// InsertHourlyAggregate stores one hourly row. The primary key enforces the
// write-once rule: a concurrent duplicate insert fails rather than
// overwriting a completed bucket.
func (db *DB) InsertHourlyAggregate(ctx context.Context, agg *models.HourlyAggregate) error {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	cols, err := marshalBreakdowns(
		agg.PlatformCounts, agg.DeviceCounts, agg.CountryCounts, agg.ReferrerCounts,
		agg.TopCities, agg.TopPages, agg.TopProperties, agg.TopSearches,
	)
	if err != nil {
		return err
	}

	if agg.CreatedAt.IsZero() {
		agg.CreatedAt = time.Now().UTC()
	}

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT INTO hourly_aggregates (
			bucket_start, unique_sessions, new_sessions, returning_sessions,
			page_views, property_views, searches, bounce_count,
			avg_session_secs, avg_pages_per_sess, avg_scroll_depth,
			platform_counts, device_counts, country_counts, referrer_counts,
			top_cities, top_pages, top_properties, top_searches, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			agg.BucketStart, agg.UniqueSessions, agg.NewSessions, agg.ReturningSessions,
			agg.PageViews, agg.PropertyViews, agg.Searches, agg.BounceCount,
			agg.AvgSessionSecs, agg.AvgPagesPerSess, agg.AvgScrollDepth,
			cols[0], cols[1], cols[2], cols[3],
			cols[4], cols[5], cols[6], cols[7], agg.CreatedAt,
		)
		return err
	})
}

// InsertDailyAggregate stores one daily row.
func (db *DB) InsertDailyAggregate(ctx context.Context, agg *models.DailyAggregate) error {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	cols, err := marshalBreakdowns(
		agg.PlatformCounts, agg.DeviceCounts, agg.CountryCounts, agg.ReferrerCounts,
		agg.TopCities, agg.TopPages, agg.TopProperties, agg.TopSearches,
	)
	if err != nil {
		return err
	}

	if agg.CreatedAt.IsZero() {
		agg.CreatedAt = time.Now().UTC()
	}

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT INTO daily_aggregates (
			bucket_date, unique_sessions, new_sessions, returning_sessions,
			page_views, property_views, searches, bounce_count,
			avg_session_secs, avg_pages_per_sess, avg_scroll_depth,
			platform_counts, device_counts, country_counts, referrer_counts,
			top_cities, top_pages, top_properties, top_searches,
			sessions_change_pct, page_views_change_pct, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			dateOnly(agg.BucketDate), agg.UniqueSessions, agg.NewSessions, agg.ReturningSessions,
			agg.PageViews, agg.PropertyViews, agg.Searches, agg.BounceCount,
			agg.AvgSessionSecs, agg.AvgPagesPerSess, agg.AvgScrollDepth,
			cols[0], cols[1], cols[2], cols[3],
			cols[4], cols[5], cols[6], cols[7],
			agg.SessionsChangePct, agg.PageViewsChangePct, agg.CreatedAt,
		)
		return err
	})
}

// GetHourlyAggregates returns hourly rows with bucket_start in [from, to),
// oldest first.
func (db *DB) GetHourlyAggregates(ctx context.Context, from, to time.Time) ([]*models.HourlyAggregate, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		bucket_start, unique_sessions, new_sessions, returning_sessions,
		page_views, property_views, searches, bounce_count,
		avg_session_secs, avg_pages_per_sess, avg_scroll_depth,
		platform_counts, device_counts, country_counts, referrer_counts,
		top_cities, top_pages, top_properties, top_searches, created_at
	FROM hourly_aggregates
	WHERE bucket_start >= ? AND bucket_start < ?
	ORDER BY bucket_start ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query hourly aggregates: %w", err)
	}
	defer closeQuietly(rows)

	var aggs []*models.HourlyAggregate
	for rows.Next() {
		var agg models.HourlyAggregate
		var raw [8]string
		if err := rows.Scan(
			&agg.BucketStart, &agg.UniqueSessions, &agg.NewSessions, &agg.ReturningSessions,
			&agg.PageViews, &agg.PropertyViews, &agg.Searches, &agg.BounceCount,
			&agg.AvgSessionSecs, &agg.AvgPagesPerSess, &agg.AvgScrollDepth,
			&raw[0], &raw[1], &raw[2], &raw[3],
			&raw[4], &raw[5], &raw[6], &raw[7], &agg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan hourly aggregate: %w", err)
		}
		if err := unmarshalBreakdowns(raw,
			&agg.PlatformCounts, &agg.DeviceCounts, &agg.CountryCounts, &agg.ReferrerCounts,
			&agg.TopCities, &agg.TopPages, &agg.TopProperties, &agg.TopSearches,
		); err != nil {
			return nil, err
		}
		aggs = append(aggs, &agg)
	}
	return aggs, rows.Err()
}

// GetDailyAggregates returns daily rows with bucket_date in [from, to),
// oldest first.
func (db *DB) GetDailyAggregates(ctx context.Context, from, to time.Time) ([]*models.DailyAggregate, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		bucket_date, unique_sessions, new_sessions, returning_sessions,
		page_views, property_views, searches, bounce_count,
		avg_session_secs, avg_pages_per_sess, avg_scroll_depth,
		platform_counts, device_counts, country_counts, referrer_counts,
		top_cities, top_pages, top_properties, top_searches,
		sessions_change_pct, page_views_change_pct, created_at
	FROM daily_aggregates
	WHERE bucket_date >= ? AND bucket_date < ?
	ORDER BY bucket_date ASC`, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("query daily aggregates: %w", err)
	}
	defer closeQuietly(rows)

	var aggs []*models.DailyAggregate
	for rows.Next() {
		agg, err := scanDailyAggregate(rows)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}
	return aggs, rows.Err()
}

// GetDailyAggregate returns the stored row for one date, or ErrNotFound.
func (db *DB) GetDailyAggregate(ctx context.Context, bucketDate time.Time) (*models.DailyAggregate, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		bucket_date, unique_sessions, new_sessions, returning_sessions,
		page_views, property_views, searches, bounce_count,
		avg_session_secs, avg_pages_per_sess, avg_scroll_depth,
		platform_counts, device_counts, country_counts, referrer_counts,
		top_cities, top_pages, top_properties, top_searches,
		sessions_change_pct, page_views_change_pct, created_at
	FROM daily_aggregates WHERE bucket_date = ?`, dateOnly(bucketDate))
	if err != nil {
		return nil, fmt.Errorf("query daily aggregate: %w", err)
	}
	defer closeQuietly(rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: daily aggregate %s", ErrNotFound, bucketDate.Format("2006-01-02"))
	}
	return scanDailyAggregate(rows)
}

func scanDailyAggregate(rows rowsScanner) (*models.DailyAggregate, error) {
	var agg models.DailyAggregate
	var raw [8]string
	if err := rows.Scan(
		&agg.BucketDate, &agg.UniqueSessions, &agg.NewSessions, &agg.ReturningSessions,
		&agg.PageViews, &agg.PropertyViews, &agg.Searches, &agg.BounceCount,
		&agg.AvgSessionSecs, &agg.AvgPagesPerSess, &agg.AvgScrollDepth,
		&raw[0], &raw[1], &raw[2], &raw[3],
		&raw[4], &raw[5], &raw[6], &raw[7],
		&agg.SessionsChangePct, &agg.PageViewsChangePct, &agg.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan daily aggregate: %w", err)
	}
	if err := unmarshalBreakdowns(raw,
		&agg.PlatformCounts, &agg.DeviceCounts, &agg.CountryCounts, &agg.ReferrerCounts,
		&agg.TopCities, &agg.TopPages, &agg.TopProperties, &agg.TopSearches,
	); err != nil {
		return nil, err
	}
	return &agg, nil
}

// marshalBreakdowns serializes the four count maps and four top-N lists to
// JSON text in column order. Nil maps and slices serialize as empty
// containers so the NOT NULL columns always hold valid JSON.
func marshalBreakdowns(
	platforms, devices, countries, referrers map[string]int,
	cities, pages, properties, searches []models.TopItem,
) ([8]string, error) {
	var out [8]string
	values := []interface{}{
		nonNilMap(platforms), nonNilMap(devices), nonNilMap(countries), nonNilMap(referrers),
		nonNilItems(cities), nonNilItems(pages), nonNilItems(properties), nonNilItems(searches),
	}
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("marshal breakdown column %d: %w", i, err)
		}
		out[i] = string(raw)
	}
	return out, nil
}

func unmarshalBreakdowns(
	raw [8]string,
	platforms, devices, countries, referrers *map[string]int,
	cities, pages, properties, searches *[]models.TopItem,
) error {
	targets := []interface{}{
		platforms, devices, countries, referrers,
		cities, pages, properties, searches,
	}
	for i, target := range targets {
		if err := json.Unmarshal([]byte(raw[i]), target); err != nil {
			return fmt.Errorf("unmarshal breakdown column %d: %w", i, err)
		}
	}
	return nil
}

func nonNilMap(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func nonNilItems(s []models.TopItem) []models.TopItem {
	if s == nil {
		return []models.TopItem{}
	}
	return s
}

// dateOnly truncates a timestamp to its UTC calendar date.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
