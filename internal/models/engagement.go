// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package models

import "time"

// Trend values for engagement score movement versus the previously stored
// score. Rising when the delta exceeds +2, falling below -2, stable between.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// EngagementScore is the derived 0-100 engagement value for one client user
// (a user with an active agent relationship). Each recomputation replaces
// the stored row wholesale; partial updates never occur.
type EngagementScore struct {
	UserID string `json:"user_id"`

	// Component scores, each independently capped; caps sum to 100.
	TimeScore      float64 `json:"time_score"`      // cap 25
	ViewScore      float64 `json:"view_score"`      // cap 25
	SearchScore    float64 `json:"search_score"`    // cap 20
	IntentScore    float64 `json:"intent_score"`    // cap 20
	FrequencyScore float64 `json:"frequency_score"` // cap 10

	// BaseScore is the component sum; FinalScore applies recency decay and
	// is what dashboards display.
	BaseScore  float64 `json:"base_score"`
	FinalScore float64 `json:"final_score"`

	DaysSinceActivity int        `json:"days_since_activity"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`

	Trend       string  `json:"trend"`
	ScoreChange float64 `json:"score_change"`

	ComputedAt time.Time `json:"computed_at"`
}

// Client links a known user to the agent they work with. Only users with an
// active client row are scored; anonymous visitors never enter the
// engagement pipeline.
type Client struct {
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivitySummary is the raw per-user activity rollup the scorer pulls from
// the event store over its trailing window.
type ActivitySummary struct {
	UserID string

	SessionMinutes    float64
	DetailMinutes     float64
	UniqueProperties  int
	PhotoViews        int
	CalculatorUse     bool
	SchoolInfoViews   bool
	Searches          int
	FiltersApplied    int
	SavedSearches     int
	Favorites         int
	ContactClicks     int
	ShowingRequests   bool
	RecentSessions7d  int
	DaysSinceActivity int
	LastActivity      *time.Time
}
