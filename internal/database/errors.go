// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package database

import (
	"errors"
	"strings"
)

// Sentinel errors for the store's read paths.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("database: not found")
)

// isTransactionConflict reports whether err is a DuckDB write-write
// conflict, which is expected under concurrency and safe to retry.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "transaction conflict") ||
		strings.Contains(msg, "conflict on") ||
		strings.Contains(msg, "could not serialize")
}

// isInternalError reports whether err is a DuckDB INTERNAL error. These are
// engine bugs, not transient conditions; retrying would mask them.
func isInternalError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "INTERNAL")
}
