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

	"github.com/tomtom215/propertypulse/internal/models"
)

// GetGeolocation returns the cached geolocation for an IP hash if one exists
// and is no older than maxAge. A missing or expired entry returns (nil, nil)
// so the resolver falls through to the next source; expired rows are left in
// place to be overwritten by the next upsert.
//
// Satisfies geoip.GeoCache.
func (db *DB) GetGeolocation(ctx context.Context, ipHash string, maxAge time.Duration) (*models.Geolocation, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT
		country, region, city, latitude, longitude, timezone, source, cached_at
	FROM geolocation_cache WHERE ip_hash = ?`, ipHash)

	var geo models.Geolocation
	var cachedAt time.Time
	err := row.Scan(&geo.Country, &geo.Region, &geo.City,
		&geo.Latitude, &geo.Longitude, &geo.Timezone, &geo.Source, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query geolocation cache: %w", err)
	}

	if time.Since(cachedAt) > maxAge {
		return nil, nil
	}
	geo.Source = models.GeoSourceCache
	return &geo, nil
}

// UpsertGeolocation stores a resolved geolocation under its IP hash,
// replacing any prior entry. Empty results are stored too; a miss that keeps
// missing should not retrigger the remote provider on every request.
func (db *DB) UpsertGeolocation(ctx context.Context, ipHash string, geo *models.Geolocation) error {
	mu := acquireLock(&db.geoLocks, ipHash)
	defer mu.Unlock()

	ctx, cancel := writeContext(ctx)
	defer cancel()

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO geolocation_cache (
			ip_hash, country, region, city, latitude, longitude, timezone, source, cached_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ipHash, geo.Country, geo.Region, geo.City,
			geo.Latitude, geo.Longitude, geo.Timezone, geo.Source, time.Now().UTC(),
		)
		return err
	})
}
