// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package geoip

import "errors"

// Structural errors from the MMDB reader. All of them mean the local
// database cannot be trusted; the resolver maps every one of them to
// "database unavailable" and falls back to the remote provider. None of
// them ever reach ingestion callers.
var (
	// ErrInvalidDatabase indicates the file is not a structurally valid
	// MMDB database (missing metadata marker, bad node count, unsupported
	// record size).
	ErrInvalidDatabase = errors.New("geoip: invalid mmdb database")

	// ErrTruncatedRead indicates a read past the end of the buffer while
	// decoding, i.e. the file is corrupt or truncated.
	ErrTruncatedRead = errors.New("geoip: truncated mmdb read")

	// ErrUnknownType indicates an unrecognized data-section type tag.
	ErrUnknownType = errors.New("geoip: unknown mmdb data type")

	// ErrNotFound indicates the search tree has no entry for the address.
	// This is a lookup miss, not a structural failure.
	ErrNotFound = errors.New("geoip: address not found")

	// ErrUnavailable indicates no local database is configured or open.
	ErrUnavailable = errors.New("geoip: local database unavailable")
)
