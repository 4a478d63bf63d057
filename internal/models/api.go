// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package models

import "time"

// APIResponse is the standard response envelope for all API endpoints.
type APIResponse struct {
	Status   string      `json:"status"` // "success" or "error"
	Data     interface{} `json:"data,omitempty"`
	Error    *APIError   `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// APIError carries a machine-readable code plus a human-readable message.
// RATE_LIMITED is distinct from VALIDATION_ERROR so clients can back off.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Metadata is attached to every API response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
}

// IncomingEvent is one client-supplied event inside a track batch, before
// sanitization and enrichment.
type IncomingEvent struct {
	EventType     string                 `json:"event_type"`
	EventCategory string                 `json:"event_category,omitempty"`
	PagePath      string                 `json:"page_path,omitempty"`
	PropertyID    string                 `json:"property_id,omitempty"`
	SearchQuery   string                 `json:"search_query,omitempty"`
	ScrollDepth   *float64               `json:"scroll_depth,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// SessionMeta is the client-supplied session metadata accompanying a track
// batch.
type SessionMeta struct {
	VisitorHash string `json:"visitor_hash,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	UtmSource   string `json:"utm_source,omitempty"`
	UtmMedium   string `json:"utm_medium,omitempty"`
	UtmCampaign string `json:"utm_campaign,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// TrackRequest is the ingestion entry point payload.
type TrackRequest struct {
	SessionID string          `json:"session_id"`
	Events    []IncomingEvent `json:"events"`
	Meta      SessionMeta     `json:"session_meta"`

	// RemoteIP and UserAgent are filled by the transport adapter, not the
	// client body.
	RemoteIP  string `json:"-"`
	UserAgent string `json:"-"`
}

// TrackResult reports how a track batch was handled.
type TrackResult struct {
	Success      bool `json:"success"`
	TrackedCount int  `json:"trackedCount"`
}

// HeartbeatRequest is the presence entry point payload.
type HeartbeatRequest struct {
	SessionID  string `json:"session_id"`
	PagePath   string `json:"page_path,omitempty"`
	PropertyID string `json:"property_id,omitempty"`
	SessionEnd bool   `json:"session_end,omitempty"`
}

// HeartbeatResult reports presence state after a heartbeat.
type HeartbeatResult struct {
	Success        bool `json:"success"`
	ActiveVisitors int  `json:"activeVisitors"`
}

// ActivityFilters narrows the activity stream read.
type ActivityFilters struct {
	EventType  string
	Platform   string
	PropertyID string
	Since      *time.Time
	Until      *time.Time
}

// Pagination is offset pagination for dashboard reads.
type Pagination struct {
	Page     int
	PageSize int
}

// RealtimeSnapshot is the "who is online now" dashboard view.
type RealtimeSnapshot struct {
	ActiveVisitors int               `json:"active_visitors"`
	ActivePages    []TopItem         `json:"active_pages"`
	Records        []*PresenceRecord `json:"records"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// TrendPoint is one point in a trends series.
type TrendPoint struct {
	Bucket        time.Time `json:"bucket"`
	Sessions      int       `json:"sessions"`
	PageViews     int       `json:"page_views"`
	PropertyViews int       `json:"property_views"`
	Searches      int       `json:"searches"`
}

// StatsSummary is the dashboard stats view over a range.
type StatsSummary struct {
	Range             string         `json:"range"`
	UniqueSessions    int            `json:"unique_sessions"`
	NewSessions       int            `json:"new_sessions"`
	ReturningSessions int            `json:"returning_sessions"`
	PageViews         int            `json:"page_views"`
	PropertyViews     int            `json:"property_views"`
	Searches          int            `json:"searches"`
	BounceRate        float64        `json:"bounce_rate"`
	AvgSessionSecs    float64        `json:"avg_session_seconds"`
	PlatformCounts    map[string]int `json:"platform_counts"`
}
