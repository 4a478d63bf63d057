// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/propertypulse/internal/metrics"
	"github.com/tomtom215/propertypulse/internal/models"
)

// InsertEvents writes a batch of events in one transaction. Events are
// append-only; IDs are assigned here when missing. The whole batch commits
// or none of it does.
func (db *DB) InsertEvents(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := writeContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.retryWrite(ctx, func() error {
		return db.doInsertEvents(ctx, events)
	})
	metrics.DBQueryDuration.WithLabelValues("insert", "events").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("insert", "events").Inc()
	}
	return err
}

func (db *DB) doInsertEvents(ctx context.Context, events []*models.Event) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (
		id, session_id, event_type, event_category, platform,
		page_path, property_id, search_query, scroll_depth, payload,
		occurred_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	now := time.Now().UTC()
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = ev.CreatedAt
		}

		var payload *string
		if len(ev.Payload) > 0 {
			raw, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload for event %s: %w", ev.ID, err)
			}
			s := string(raw)
			payload = &s
		}

		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.SessionID, ev.EventType, ev.EventCategory, string(ev.Platform),
			ev.PagePath, ev.PropertyID, ev.SearchQuery, ev.ScrollDepth, payload,
			ev.OccurredAt, ev.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	for _, ev := range events {
		metrics.EventsIngested.WithLabelValues(ev.EventType).Inc()
	}
	return nil
}

// GetSessionJourney returns every event for one session in client-clock
// order, so the caller sees pages and property views in the sequence the
// visitor experienced them.
func (db *DB) GetSessionJourney(ctx context.Context, sessionID string) ([]*models.Event, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		id, session_id, event_type, event_category, platform,
		page_path, property_id, search_query, scroll_depth, payload,
		occurred_at, created_at
	FROM events WHERE session_id = ? ORDER BY occurred_at ASC, created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session journey: %w", err)
	}
	defer closeQuietly(rows)

	return scanEvents(rows)
}

// GetActivityStream returns recent events, newest first, filtered and
// paginated for the dashboard activity view.
func (db *DB) GetActivityStream(ctx context.Context, f *models.ActivityFilters, p *models.Pagination) ([]*models.Event, error) {
	var where []string
	var args []interface{}

	if f != nil {
		if f.EventType != "" {
			where = append(where, "event_type = ?")
			args = append(args, f.EventType)
		}
		if f.Platform != "" {
			where = append(where, "platform = ?")
			args = append(args, f.Platform)
		}
		if f.PropertyID != "" {
			where = append(where, "property_id = ?")
			args = append(args, f.PropertyID)
		}
		if f.Since != nil {
			where = append(where, "created_at >= ?")
			args = append(args, *f.Since)
		}
		if f.Until != nil {
			where = append(where, "created_at < ?")
			args = append(args, *f.Until)
		}
	}

	query := `SELECT
		id, session_id, event_type, event_category, platform,
		page_path, property_id, search_query, scroll_depth, payload,
		occurred_at, created_at
	FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity stream: %w", err)
	}
	defer closeQuietly(rows)

	return scanEvents(rows)
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows rowsScanner) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		var platform string
		var payload *string
		if err := rows.Scan(
			&ev.ID, &ev.SessionID, &ev.EventType, &ev.EventCategory, &platform,
			&ev.PagePath, &ev.PropertyID, &ev.SearchQuery, &ev.ScrollDepth, &payload,
			&ev.OccurredAt, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Platform = models.Platform(platform)
		if payload != nil && *payload != "" {
			if err := json.Unmarshal([]byte(*payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for event %s: %w", ev.ID, err)
			}
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
