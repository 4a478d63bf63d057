// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"context"
	"fmt"
	"strings"
)

// UpsertListing stores or refreshes one listing row from the listing
// platform sync.
func (db *DB) UpsertListing(ctx context.Context, key, address string, price *int64) error {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT INTO listings (listing_key, address, price)
			VALUES (?, ?, ?)
			ON CONFLICT (listing_key) DO UPDATE SET
				address = EXCLUDED.address,
				price = EXCLUDED.price`,
			key, address, price,
		)
		return err
	})
}

// GetListingLabels returns address labels for the given listing keys.
// Unknown keys are simply absent from the result; breakdowns then fall back
// to the raw key.
func (db *DB) GetListingLabels(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT listing_key, address FROM listings WHERE listing_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query listing labels: %w", err)
	}
	defer closeQuietly(rows)

	labels := make(map[string]string, len(keys))
	for rows.Next() {
		var key, address string
		if err := rows.Scan(&key, &address); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		labels[key] = address
	}
	return labels, rows.Err()
}
