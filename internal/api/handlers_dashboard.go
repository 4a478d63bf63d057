// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/models"
)

// Realtime handles GET /api/v1/dashboard/realtime: who is on the site
// right now, derived from the presence table.
func (h *Handler) Realtime(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	records, err := h.store.GetActivePresence(ctx, h.presenceWindow)
	if err != nil {
		h.respondStoreError(w, r, err, "load active presence")
		return
	}

	snapshot := &models.RealtimeSnapshot{
		ActiveVisitors: len(records),
		ActivePages:    activePages(records),
		Records:        records,
		GeneratedAt:    time.Now().UTC(),
	}

	respondSuccess(w, r, http.StatusOK, snapshot, start)
}

// activePages counts presence records per page path, busiest first.
func activePages(records []*models.PresenceRecord) []models.TopItem {
	counts := make(map[string]int)
	for _, rec := range records {
		if rec.PagePath != nil && *rec.PagePath != "" {
			counts[*rec.PagePath]++
		}
	}

	items := make([]models.TopItem, 0, len(counts))
	for key, n := range counts {
		items = append(items, models.TopItem{Key: key, Count: n})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Key < items[j].Key
	})
	return items
}

// Stats handles GET /api/v1/dashboard/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	from, to, label, ok := timeRange(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "range must be one of: 24h 7d 30d 90d", nil)
		return
	}

	lq, verr := parseListQuery(r, 10)
	if verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	summary, err := h.store.GetStatsSummary(r.Context(), from, to, lq.Platform)
	if err != nil {
		h.respondStoreError(w, r, err, "load stats summary")
		return
	}
	summary.Range = label

	respondSuccess(w, r, http.StatusOK, summary, start)
}

// Trends handles GET /api/v1/dashboard/trends.
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	from, to, _, ok := timeRange(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "range must be one of: 24h 7d 30d 90d", nil)
		return
	}

	lq, verr := parseListQuery(r, 10)
	if verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	granularity := lq.Granularity
	if granularity == "" {
		// Hourly points over 30d+ are too dense to chart.
		granularity = "day"
		if to.Sub(from) <= 7*24*time.Hour {
			granularity = "hour"
		}
	}

	points, err := h.store.GetTrendPoints(r.Context(), from, to, granularity)
	if err != nil {
		h.respondStoreError(w, r, err, "load trend points")
		return
	}

	respondSuccess(w, r, http.StatusOK, points, start)
}

// Activity handles GET /api/v1/dashboard/activity: the filtered event
// stream, newest first.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	events, err := h.store.GetActivityStream(r.Context(), parseActivityFilters(r), h.parsePagination(r))
	if err != nil {
		h.respondStoreError(w, r, err, "load activity stream")
		return
	}

	respondSuccess(w, r, http.StatusOK, events, start)
}

// SessionJourney handles GET /api/v1/dashboard/sessions/{sessionID}/journey.
func (h *Handler) SessionJourney(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "session ID is required", nil)
		return
	}

	events, err := h.store.GetSessionJourney(r.Context(), sessionID)
	if err != nil {
		h.respondStoreError(w, r, err, "load session journey")
		return
	}

	// An unknown session is an empty journey, not an error; session rows
	// can outlive their events under retention.
	respondSuccess(w, r, http.StatusOK, events, start)
}

// TopContent handles GET /api/v1/dashboard/top-content.
func (h *Handler) TopContent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	from, to, _, ok := timeRange(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "range must be one of: 24h 7d 30d 90d", nil)
		return
	}

	lq, verr := parseListQuery(r, 10)
	if verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	contentType := lq.ContentType
	if contentType == "" {
		contentType = "properties"
	}

	items, err := h.store.GetTopContent(r.Context(), from, to, contentType, lq.Limit)
	if err != nil {
		h.respondStoreError(w, r, err, "load top content")
		return
	}

	if contentType == "properties" && h.listings != nil {
		h.listings.Annotate(r.Context(), items)
	}

	respondSuccess(w, r, http.StatusOK, items, start)
}

// TrafficSources handles GET /api/v1/dashboard/traffic-sources.
func (h *Handler) TrafficSources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	from, to, _, ok := timeRange(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "range must be one of: 24h 7d 30d 90d", nil)
		return
	}

	lq, verr := parseListQuery(r, 10)
	if verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	items, err := h.store.GetTrafficSources(r.Context(), from, to, lq.Limit)
	if err != nil {
		h.respondStoreError(w, r, err, "load traffic sources")
		return
	}

	respondSuccess(w, r, http.StatusOK, items, start)
}

// Geographic handles GET /api/v1/dashboard/geographic.
func (h *Handler) Geographic(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	from, to, _, ok := timeRange(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "range must be one of: 24h 7d 30d 90d", nil)
		return
	}

	lq, verr := parseListQuery(r, 10)
	if verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	level := lq.Level
	if level == "" {
		level = "country"
	}

	items, err := h.store.GetGeographic(r.Context(), from, to, level, lq.Limit)
	if err != nil {
		h.respondStoreError(w, r, err, "load geographic breakdown")
		return
	}

	respondSuccess(w, r, http.StatusOK, items, start)
}

// respondStoreError logs a read failure and returns a 500. Store reads
// carry no client-correctable cause, so details stay out of the body.
func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error, action string) {
	logging.Ctx(r.Context()).Error().Err(err).Str("action", action).Msg("dashboard read failed")
	respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "internal error", nil)
}
