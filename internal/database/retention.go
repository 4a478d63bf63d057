// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/propertypulse/internal/metrics"
)

// DeleteEventsBefore removes up to limit events created before the cutoff
// and returns how many were removed. The retention job compares the returned
// count against its batch size to decide whether a follow-up pass is needed.
// DuckDB has no DELETE ... LIMIT, so the batch is selected by id first.
func (db *DB) DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	var deleted int64
	err := db.retryWrite(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`DELETE FROM events WHERE id IN (
				SELECT id FROM events WHERE created_at < ? LIMIT ?
			)`, cutoff, limit)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	metrics.RetentionDeleted.WithLabelValues("events").Add(float64(deleted))
	return deleted, nil
}

// DeleteSessionsBefore removes up to limit sessions whose last_seen is
// before the cutoff. Sessions are deleted after their events so a partial
// run never orphans events ahead of the window.
func (db *DB) DeleteSessionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	var deleted int64
	err := db.retryWrite(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`DELETE FROM sessions WHERE session_id IN (
				SELECT session_id FROM sessions WHERE last_seen < ? LIMIT ?
			)`, cutoff, limit)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	metrics.RetentionDeleted.WithLabelValues("sessions").Add(float64(deleted))
	return deleted, nil
}
