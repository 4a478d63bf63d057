// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/propertypulse/internal/database"
	"github.com/tomtom215/propertypulse/internal/logging"
)

// EngagementScore handles GET /api/v1/engagement/{userID}.
func (h *Handler) EngagementScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "user ID is required", nil)
		return
	}

	score, err := h.engagement.GetScore(r.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "no engagement score for user", nil)
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("engagement score read failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "internal error", nil)
		return
	}

	respondSuccess(w, r, http.StatusOK, score, start)
}

// AgentClients handles GET /api/v1/engagement/agents/{agentID}/clients:
// an agent's active clients ranked by engagement.
func (h *Handler) AgentClients(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	agentID := chi.URLParam(r, "agentID")
	if agentID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "agent ID is required", nil)
		return
	}

	q := r.URL.Query()
	scores, err := h.engagement.GetAgentClientScores(r.Context(), agentID, q.Get("sort_by"), q.Get("order"))
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("agent client scores read failed")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "internal error", nil)
		return
	}

	respondSuccess(w, r, http.StatusOK, scores, start)
}
