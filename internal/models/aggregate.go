// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package models

import "time"

// Top-N list caps per aggregate granularity.
const (
	HourlyTopN = 10
	DailyTopN  = 20
)

// TopItem is one entry in a top-N breakdown list, sorted descending by count.
// Label is optional display enrichment (e.g. listing address from the
// read-only listing store); Key always carries the raw identifier.
type TopItem struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Count int    `json:"count"`
}

// HourlyAggregate is one row per clock hour. At most one row exists per
// bucket; once written a bucket is never recomputed.
type HourlyAggregate struct {
	BucketStart time.Time `json:"bucket_start"`

	UniqueSessions    int     `json:"unique_sessions"`
	NewSessions       int     `json:"new_sessions"`
	ReturningSessions int     `json:"returning_sessions"`
	PageViews         int     `json:"page_views"`
	PropertyViews     int     `json:"property_views"`
	Searches          int     `json:"searches"`
	BounceCount       int     `json:"bounce_count"`
	AvgSessionSecs    float64 `json:"avg_session_seconds"`
	AvgPagesPerSess   float64 `json:"avg_pages_per_session"`
	AvgScrollDepth    float64 `json:"avg_scroll_depth"`

	// Breakdown maps: categorical key -> count. Stored as JSON text,
	// merged additively when rolled into daily rows.
	PlatformCounts map[string]int `json:"platform_counts"`
	DeviceCounts   map[string]int `json:"device_counts"`
	CountryCounts  map[string]int `json:"country_counts"`
	ReferrerCounts map[string]int `json:"referrer_counts"`

	// Top-N lists, capped at HourlyTopN.
	TopCities     []TopItem `json:"top_cities"`
	TopPages      []TopItem `json:"top_pages"`
	TopProperties []TopItem `json:"top_properties"`
	TopSearches   []TopItem `json:"top_searches"`

	CreatedAt time.Time `json:"created_at"`
}

// DailyAggregate is one row per calendar day. Scalars are summed from the
// day's hourly rows; top-N lists are recomputed from raw data (hourly lists
// are already truncated and would under-count if merged); breakdown maps are
// merged additively across hourly rows and truncated to DailyTopN keys.
type DailyAggregate struct {
	BucketDate time.Time `json:"bucket_date"`

	UniqueSessions    int     `json:"unique_sessions"`
	NewSessions       int     `json:"new_sessions"`
	ReturningSessions int     `json:"returning_sessions"`
	PageViews         int     `json:"page_views"`
	PropertyViews     int     `json:"property_views"`
	Searches          int     `json:"searches"`
	BounceCount       int     `json:"bounce_count"`
	AvgSessionSecs    float64 `json:"avg_session_seconds"`
	AvgPagesPerSess   float64 `json:"avg_pages_per_session"`
	AvgScrollDepth    float64 `json:"avg_scroll_depth"`

	PlatformCounts map[string]int `json:"platform_counts"`
	DeviceCounts   map[string]int `json:"device_counts"`
	CountryCounts  map[string]int `json:"country_counts"`
	ReferrerCounts map[string]int `json:"referrer_counts"`

	TopCities     []TopItem `json:"top_cities"`
	TopPages      []TopItem `json:"top_pages"`
	TopProperties []TopItem `json:"top_properties"`
	TopSearches   []TopItem `json:"top_searches"`

	// Day-over-day percentage change versus the prior stored daily row.
	// A value of exactly 100 when the prior value was zero is a sentinel
	// for "no prior baseline", not a literal growth claim. Nil when not
	// computable (no prior row).
	SessionsChangePct  *float64 `json:"sessions_change_pct,omitempty"`
	PageViewsChangePct *float64 `json:"page_views_change_pct,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
