// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package models

import "time"

// Geolocation sources, recorded for observability and cache accounting.
const (
	GeoSourceLocal   = "local"   // private/loopback/link-local short-circuit
	GeoSourceMMDB    = "mmdb"    // local binary database
	GeoSourceRemote  = "remote"  // remote geolocation API fallback
	GeoSourceCache   = "cache"   // served from the DB-backed cache
	GeoSourceUnknown = "unknown" // all lookups failed; empty result cached
)

// Geolocation is the result of resolving an IP address. All location fields
// are nullable: private IPs and failed lookups yield an all-null result with
// only Source populated.
type Geolocation struct {
	Country   *string  `json:"country,omitempty"`
	Region    *string  `json:"region,omitempty"`
	City      *string  `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timezone  *string  `json:"timezone,omitempty"`
	Source    string   `json:"source"`
}

// Empty reports whether the geolocation carries no location data.
func (g *Geolocation) Empty() bool {
	return g.Country == nil && g.Region == nil && g.City == nil &&
		g.Latitude == nil && g.Longitude == nil
}

// CachedGeolocation is a Geolocation plus cache bookkeeping, as stored in
// the DB-backed cache keyed by IP hash.
type CachedGeolocation struct {
	IPHash   string      `json:"ip_hash"`
	Geo      Geolocation `json:"geo"`
	CachedAt time.Time   `json:"cached_at"`
}

// DeviceInfo is the result of classifying a user-agent string.
type DeviceInfo struct {
	IsBot          bool   `json:"is_bot"`
	DeviceType     string `json:"device_type"` // desktop, mobile, tablet
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
}
