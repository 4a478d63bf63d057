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
	"github.com/tomtom215/propertypulse/internal/models"
)

// UpdatePresence records a heartbeat for a session, replacing any earlier
// presence row for the same session id.
func (db *DB) UpdatePresence(ctx context.Context, p *models.PresenceRecord) error {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`INSERT OR REPLACE INTO presence (session_id, last_heartbeat, page_path, property_id)
			 VALUES (?, ?, ?, ?)`,
			p.SessionID, p.LastHeartbeat, p.PagePath, p.PropertyID,
		)
		return err
	})
}

// RemovePresence drops the presence row for a session. Used when the client
// signals session end; removing an absent row is not an error.
func (db *DB) RemovePresence(ctx context.Context, sessionID string) error {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`DELETE FROM presence WHERE session_id = ?`, sessionID)
		return err
	})
}

// GetActiveCount returns the number of sessions with a heartbeat within the
// given window.
func (db *DB) GetActiveCount(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM presence WHERE last_heartbeat >= ?`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active presence: %w", err)
	}
	return count, nil
}

// GetActivePresence returns current presence rows, newest heartbeat first.
func (db *DB) GetActivePresence(ctx context.Context, window time.Duration) ([]*models.PresenceRecord, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT session_id, last_heartbeat, page_path, property_id
		 FROM presence WHERE last_heartbeat >= ?
		 ORDER BY last_heartbeat DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query active presence: %w", err)
	}
	defer closeQuietly(rows)

	var records []*models.PresenceRecord
	for rows.Next() {
		var p models.PresenceRecord
		if err := rows.Scan(&p.SessionID, &p.LastHeartbeat, &p.PagePath, &p.PropertyID); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		records = append(records, &p)
	}
	return records, rows.Err()
}

// SweepStalePresence deletes presence rows whose last heartbeat is older
// than the stale threshold and returns how many were removed.
func (db *DB) SweepStalePresence(ctx context.Context, staleAfter time.Duration) (int64, error) {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	cutoff := time.Now().UTC().Add(-staleAfter)
	var swept int64
	err := db.retryWrite(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`DELETE FROM presence WHERE last_heartbeat < ?`, cutoff)
		if err != nil {
			return err
		}
		swept, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sweep stale presence: %w", err)
	}
	metrics.PresenceSwept.Add(float64(swept))
	return swept, nil
}
