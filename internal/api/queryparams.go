// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/propertypulse/internal/models"
	"github.com/tomtom215/propertypulse/internal/validation"
)

// rangeDurations maps the range query values to lookback windows.
var rangeDurations = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

const defaultRange = "7d"

// timeRange resolves the range query parameter to [from, to). An absent
// parameter defaults to 7d; an unknown one is a validation error.
func timeRange(r *http.Request) (from, to time.Time, label string, ok bool) {
	label = r.URL.Query().Get("range")
	if label == "" {
		label = defaultRange
	}

	window, found := rangeDurations[label]
	if !found {
		return time.Time{}, time.Time{}, label, false
	}

	to = time.Now().UTC()
	return to.Add(-window), to, label, true
}

// listQuery is the validated shape of dashboard list parameters.
type listQuery struct {
	Platform    string `validate:"omitempty,oneof=web-desktop web-mobile web-tablet native-app"`
	Granularity string `validate:"omitempty,oneof=hour day"`
	Level       string `validate:"omitempty,oneof=country region city"`
	ContentType string `validate:"omitempty,oneof=properties pages"`
	Limit       int    `validate:"min=1,max=100"`
}

func parseListQuery(r *http.Request, defaultLimit int) (*listQuery, *validation.RequestValidationError) {
	q := r.URL.Query()

	limit := defaultLimit
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	lq := &listQuery{
		Platform:    q.Get("platform"),
		Granularity: q.Get("granularity"),
		Level:       q.Get("level"),
		ContentType: q.Get("type"),
		Limit:       limit,
	}

	if verr := validation.ValidateStruct(lq); verr != nil {
		return nil, verr
	}
	return lq, nil
}

// parsePagination reads page/page_size with configured defaults and caps.
func (h *Handler) parsePagination(r *http.Request) *models.Pagination {
	q := r.URL.Query()

	page := 1
	if raw := q.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}

	size := h.cfg.API.DefaultPageSize
	if raw := q.Get("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
		}
	}
	if size > h.cfg.API.MaxPageSize {
		size = h.cfg.API.MaxPageSize
	}

	return &models.Pagination{Page: page, PageSize: size}
}

// parseActivityFilters reads the optional activity stream filters.
func parseActivityFilters(r *http.Request) *models.ActivityFilters {
	q := r.URL.Query()

	f := &models.ActivityFilters{
		EventType:  q.Get("event_type"),
		Platform:   q.Get("platform"),
		PropertyID: q.Get("property_id"),
	}

	if raw := q.Get("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Since = &ts
		}
	}
	if raw := q.Get("until"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			f.Until = &ts
		}
	}

	return f
}
