// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package models

import "time"

// Event types tracked by the pipeline. The ingest sanitizer normalizes
// unknown types to EventTypeCustom rather than rejecting them, since client
// SDKs may ship new event types before the server learns about them.
const (
	EventTypePageView       = "page_view"
	EventTypePropertyView   = "property_view"
	EventTypeSearch         = "search"
	EventTypePhotoView      = "photo_view"
	EventTypeCalculatorUse  = "calculator_use"
	EventTypeSchoolInfoView = "school_info_view"
	EventTypeFilterApply    = "filter_apply"
	EventTypeSavedSearch    = "saved_search"
	EventTypeFavorite       = "favorite"
	EventTypeContactClick   = "contact_click"
	EventTypeShowingRequest = "showing_request"
	EventTypeSessionEnd     = "session_end"
	EventTypeCustom         = "custom"
)

// Event is one tracked user action. Events are immutable once written.
//
// OccurredAt is the client-supplied timestamp and is used only for ordering
// within a session journey. CreatedAt is assigned by the server on write and
// is the sole clock used for retention, so client clock skew cannot extend a
// row's lifetime.
type Event struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	EventType     string   `json:"event_type"`
	EventCategory string   `json:"event_category,omitempty"`
	Platform      Platform `json:"platform"`

	PagePath    *string  `json:"page_path,omitempty"`
	PropertyID  *string  `json:"property_id,omitempty"`
	SearchQuery *string  `json:"search_query,omitempty"`
	ScrollDepth *float64 `json:"scroll_depth,omitempty"`

	// Payload holds free-form structured client data, serialized to JSON at
	// the persistence boundary.
	Payload map[string]interface{} `json:"payload,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// PresenceRecord is one currently-active session. The presence table is a
// TTL cache, not a log: heartbeats overwrite the row wholesale and the
// stale sweep removes rows whose last heartbeat is older than the staleness
// threshold. It does not need to survive a process restart.
type PresenceRecord struct {
	SessionID     string    `json:"session_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	PagePath      *string   `json:"page_path,omitempty"`
	PropertyID    *string   `json:"property_id,omitempty"`
}
