// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package ingest

import "errors"

// Rejection sentinels. The transport adapter maps ErrMalformed to a 400
// VALIDATION_ERROR and ErrRateLimited to a 429 RATE_LIMITED; the distinct
// codes let clients tell a bad payload from a back-off signal.
var (
	ErrMalformed   = errors.New("ingest: malformed request")
	ErrRateLimited = errors.New("ingest: session rate limit exceeded")
)
