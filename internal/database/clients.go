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

// UpsertClient records or updates an agent-client relationship. The CRM
// integration writes these; the engagement pipeline only reads them.
func (db *DB) UpsertClient(ctx context.Context, c *models.Client) error {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT INTO clients (user_id, agent_id, active, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				agent_id = EXCLUDED.agent_id,
				active = EXCLUDED.active`,
			c.UserID, c.AgentID, c.Active, createdAt,
		)
		return err
	})
}

// IsActiveClient reports whether the user has an active agent relationship.
// Only active clients enter the engagement scoring pipeline.
func (db *DB) IsActiveClient(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT active FROM clients WHERE user_id = ?`, userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query client: %w", err)
	}
	return active, nil
}
