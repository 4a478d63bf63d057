// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package api

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tomtom215/propertypulse/internal/ingest"
	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/models"
)

// Track handles POST /api/v1/track: a batch of telemetry events for one
// session.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.TrackRequest
	if err := decodeBody(r, &req, maxTrackBodyBytes); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "invalid request body", nil)
		return
	}

	// The transport owns network facts; the client body cannot claim them.
	req.RemoteIP = clientIP(r)
	req.UserAgent = r.UserAgent()

	result, err := h.tracker.Track(r.Context(), &req)
	if err != nil {
		h.respondIngestError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, result, start)
}

// Heartbeat handles POST /api/v1/heartbeat: presence keep-alive and
// session-end signals.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.HeartbeatRequest
	if err := decodeBody(r, &req, maxTrackBodyBytes); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "invalid request body", nil)
		return
	}

	result, err := h.tracker.Heartbeat(r.Context(), &req)
	if err != nil {
		h.respondIngestError(w, r, err)
		return
	}

	respondSuccess(w, r, http.StatusOK, result, start)
}

// respondIngestError maps ingest sentinel errors to API error codes.
// Malformed and rate-limited get distinct codes so tracker scripts can
// tell "fix the payload" from "back off".
func (h *Handler) respondIngestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ingest.ErrMalformed):
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
	case errors.Is(err, ingest.ErrRateLimited):
		respondError(w, r, http.StatusTooManyRequests, ErrCodeRateLimited, "session rate limit exceeded", nil)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("ingest request failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "internal error", nil)
	}
}

// clientIP extracts the client IP from RemoteAddr. The RealIP middleware
// has already folded X-Forwarded-For / X-Real-IP into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
