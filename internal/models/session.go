// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package models defines the core data types shared across PropertyPulse:
// visitor sessions, tracked events, presence records, time-bucket aggregates,
// engagement scores, and the API response envelope.
package models

import "time"

// Platform identifies the client platform a session originated from.
type Platform string

// Recognized platforms. Anything else is normalized to PlatformWebDesktop.
const (
	PlatformWebDesktop Platform = "web-desktop"
	PlatformWebMobile  Platform = "web-mobile"
	PlatformWebTablet  Platform = "web-tablet"
	PlatformNativeApp  Platform = "native-app"
)

// ValidPlatform reports whether p is one of the recognized platform values.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformWebDesktop, PlatformWebMobile, PlatformWebTablet, PlatformNativeApp:
		return true
	}
	return false
}

// Session represents one continuous visit by one client, identified by a
// client-generated session ID. A session row is created on the first event
// for an unseen ID and merge-updated in place on every subsequent event or
// heartbeat; it is never replaced and never deleted except by retention
// cleanup.
//
// Invariants maintained by the store:
//   - SessionID is globally unique.
//   - Counters are monotonically non-decreasing.
//   - LastSeen >= FirstSeen.
//   - UserID is set once and never overwritten.
type Session struct {
	SessionID   string   `json:"session_id"`
	VisitorHash *string  `json:"visitor_hash,omitempty"`
	UserID      *string  `json:"user_id,omitempty"`
	Platform    Platform `json:"platform"`

	// Geo enrichment (nullable when lookup degraded)
	Country   *string  `json:"country,omitempty"`
	Region    *string  `json:"region,omitempty"`
	City      *string  `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Acquisition
	Referrer    *string `json:"referrer,omitempty"`
	UtmSource   *string `json:"utm_source,omitempty"`
	UtmMedium   *string `json:"utm_medium,omitempty"`
	UtmCampaign *string `json:"utm_campaign,omitempty"`

	// Device enrichment
	DeviceType     string  `json:"device_type"`
	Browser        *string `json:"browser,omitempty"`
	BrowserVersion *string `json:"browser_version,omitempty"`
	OS             *string `json:"os,omitempty"`
	OSVersion      *string `json:"os_version,omitempty"`

	IsBot    bool `json:"is_bot"`
	IsBounce bool `json:"is_bounce"`

	PageViews     int `json:"page_views"`
	PropertyViews int `json:"property_views"`
	Searches      int `json:"searches"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// SessionUpsert carries the per-request deltas and metadata merged into a
// session row. Counter fields are deltas, added to stored values; identity
// and enrichment fields only fill gaps (user ID is never overwritten once
// known).
type SessionUpsert struct {
	SessionID   string
	VisitorHash *string
	UserID      *string
	Platform    Platform

	Country   *string
	Region    *string
	City      *string
	Latitude  *float64
	Longitude *float64

	Referrer    *string
	UtmSource   *string
	UtmMedium   *string
	UtmCampaign *string

	DeviceType     string
	Browser        *string
	BrowserVersion *string
	OS             *string
	OSVersion      *string

	PageViewDelta     int
	PropertyViewDelta int
	SearchDelta       int

	SeenAt time.Time
}
