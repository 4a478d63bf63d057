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

// Dwell on a property detail page is measured to the next event in the same
// session, capped so an abandoned tab does not count as engagement.
const maxDetailDwellSecs = 600

// UpsertEngagementScore replaces the stored score row for a user wholesale.
func (db *DB) UpsertEngagementScore(ctx context.Context, score *models.EngagementScore) error {
	mu := acquireLock(&db.userLocks, score.UserID)
	defer mu.Unlock()

	ctx, cancel := writeContext(ctx)
	defer cancel()

	return db.retryWrite(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `INSERT OR REPLACE INTO engagement_scores (
			user_id, time_score, view_score, search_score, intent_score, frequency_score,
			base_score, final_score, days_since_activity, last_activity,
			trend, score_change, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			score.UserID, score.TimeScore, score.ViewScore, score.SearchScore,
			score.IntentScore, score.FrequencyScore,
			score.BaseScore, score.FinalScore, score.DaysSinceActivity, score.LastActivity,
			score.Trend, score.ScoreChange, score.ComputedAt,
		)
		return err
	})
}

// GetEngagementScore returns the stored score for a user, or ErrNotFound.
func (db *DB) GetEngagementScore(ctx context.Context, userID string) (*models.EngagementScore, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT
		user_id, time_score, view_score, search_score, intent_score, frequency_score,
		base_score, final_score, days_since_activity, last_activity,
		trend, score_change, computed_at
	FROM engagement_scores WHERE user_id = ?`, userID)

	var s models.EngagementScore
	err := row.Scan(
		&s.UserID, &s.TimeScore, &s.ViewScore, &s.SearchScore, &s.IntentScore, &s.FrequencyScore,
		&s.BaseScore, &s.FinalScore, &s.DaysSinceActivity, &s.LastActivity,
		&s.Trend, &s.ScoreChange, &s.ComputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: engagement score for user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query engagement score: %w", err)
	}
	return &s, nil
}

// Sortable columns for agent client listings. Anything else falls back to
// final_score.
var clientSortColumns = map[string]string{
	"final_score":         "final_score",
	"score_change":        "score_change",
	"days_since_activity": "days_since_activity",
	"computed_at":         "computed_at",
}

// GetAgentClientScores returns the stored scores for every active client of
// one agent. Clients never scored yet are omitted; they have no engagement
// signal to rank.
func (db *DB) GetAgentClientScores(ctx context.Context, agentID, sortBy, order string) ([]*models.EngagementScore, error) {
	col, ok := clientSortColumns[sortBy]
	if !ok {
		col = "final_score"
	}
	dir := "DESC"
	if order == "asc" {
		dir = "ASC"
	}

	query := fmt.Sprintf(`SELECT
		es.user_id, es.time_score, es.view_score, es.search_score, es.intent_score,
		es.frequency_score, es.base_score, es.final_score, es.days_since_activity,
		es.last_activity, es.trend, es.score_change, es.computed_at
	FROM engagement_scores es
	JOIN clients c ON c.user_id = es.user_id
	WHERE c.agent_id = ? AND c.active
	ORDER BY es.%s %s, es.user_id ASC`, col, dir)

	rows, err := db.conn.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("query agent client scores: %w", err)
	}
	defer closeQuietly(rows)

	var scores []*models.EngagementScore
	for rows.Next() {
		var s models.EngagementScore
		if err := rows.Scan(
			&s.UserID, &s.TimeScore, &s.ViewScore, &s.SearchScore, &s.IntentScore,
			&s.FrequencyScore, &s.BaseScore, &s.FinalScore, &s.DaysSinceActivity,
			&s.LastActivity, &s.Trend, &s.ScoreChange, &s.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan client score: %w", err)
		}
		scores = append(scores, &s)
	}
	return scores, rows.Err()
}

// GetActivitySummary rolls up one user's raw activity over the trailing
// window the scorer consumes. last_activity and days-since are computed over
// all of the user's sessions, not only the window, so a long-dormant client
// decays instead of resetting.
func (db *DB) GetActivitySummary(ctx context.Context, userID string, window time.Duration, recentDays int) (*models.ActivitySummary, error) {
	now := time.Now().UTC()
	windowStart := now.Add(-window)
	recentStart := now.AddDate(0, 0, -recentDays)

	summary := &models.ActivitySummary{UserID: userID}

	var lastActivity sql.NullTime
	err := db.conn.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN last_seen >= ? THEN date_diff('second', first_seen, last_seen) ELSE 0 END) / 60.0, 0),
		COALESCE(SUM(CASE WHEN last_seen >= ? THEN 1 ELSE 0 END), 0),
		MAX(last_seen)
	FROM sessions WHERE user_id = ?`, windowStart, recentStart, userID).Scan(
		&summary.SessionMinutes, &summary.RecentSessions7d, &lastActivity,
	)
	if err != nil {
		return nil, fmt.Errorf("activity session rollup: %w", err)
	}
	if lastActivity.Valid {
		t := lastActivity.Time
		summary.LastActivity = &t
		summary.DaysSinceActivity = int(now.Sub(t).Hours() / 24)
	}

	var calcUses, schoolViews, showings int
	err = db.conn.QueryRowContext(ctx, `SELECT
		COUNT(DISTINCT CASE WHEN e.event_type = 'property_view' THEN e.property_id END),
		COALESCE(SUM(CASE WHEN e.event_type = 'photo_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'calculator_use' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'school_info_view' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'search' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'filter_apply' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'saved_search' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'favorite' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'contact_click' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN e.event_type = 'showing_request' THEN 1 ELSE 0 END), 0)
	FROM events e
	JOIN sessions s ON s.session_id = e.session_id
	WHERE s.user_id = ? AND e.created_at >= ?`, userID, windowStart).Scan(
		&summary.UniqueProperties, &summary.PhotoViews, &calcUses, &schoolViews,
		&summary.Searches, &summary.FiltersApplied, &summary.SavedSearches,
		&summary.Favorites, &summary.ContactClicks, &showings,
	)
	if err != nil {
		return nil, fmt.Errorf("activity event rollup: %w", err)
	}
	summary.CalculatorUse = calcUses > 0
	summary.SchoolInfoViews = schoolViews > 0
	summary.ShowingRequests = showings > 0

	err = db.conn.QueryRowContext(ctx, `WITH ordered AS (
		SELECT e.event_type, e.occurred_at,
		       LEAD(e.occurred_at) OVER (PARTITION BY e.session_id ORDER BY e.occurred_at) AS next_at
		FROM events e
		JOIN sessions s ON s.session_id = e.session_id
		WHERE s.user_id = ? AND e.created_at >= ?
	)
	SELECT COALESCE(SUM(
		CASE WHEN event_type = 'property_view' AND next_at IS NOT NULL
		THEN LEAST(date_diff('second', occurred_at, next_at), ?)
		ELSE 0 END
	) / 60.0, 0) FROM ordered`, userID, windowStart, maxDetailDwellSecs).Scan(&summary.DetailMinutes)
	if err != nil {
		return nil, fmt.Errorf("activity dwell rollup: %w", err)
	}

	return summary, nil
}
