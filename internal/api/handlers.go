// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package api

import (
	"context"
	"time"

	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/models"
)

// maxTrackBodyBytes bounds a track request body. Batches are capped by
// count in the ingest layer; this guards the decoder itself.
const maxTrackBodyBytes = 1 << 20 // 1 MiB

// Tracker is the ingestion service surface the handlers call.
type Tracker interface {
	Track(ctx context.Context, req *models.TrackRequest) (*models.TrackResult, error)
	Heartbeat(ctx context.Context, req *models.HeartbeatRequest) (*models.HeartbeatResult, error)
}

// EngagementReader serves client engagement reads.
type EngagementReader interface {
	GetScore(ctx context.Context, userID string) (*models.EngagementScore, error)
	GetAgentClientScores(ctx context.Context, agentID, sortBy, order string) ([]*models.EngagementScore, error)
}

// ListingCatalog enriches property top items with display labels.
type ListingCatalog interface {
	Annotate(ctx context.Context, items []models.TopItem)
}

// DashboardStore is the read side of the store used by dashboard handlers.
type DashboardStore interface {
	GetActiveCount(ctx context.Context, window time.Duration) (int, error)
	GetActivePresence(ctx context.Context, window time.Duration) ([]*models.PresenceRecord, error)
	GetStatsSummary(ctx context.Context, from, to time.Time, platform string) (*models.StatsSummary, error)
	GetTrendPoints(ctx context.Context, from, to time.Time, granularity string) ([]models.TrendPoint, error)
	GetActivityStream(ctx context.Context, f *models.ActivityFilters, p *models.Pagination) ([]*models.Event, error)
	GetSessionJourney(ctx context.Context, sessionID string) ([]*models.Event, error)
	GetTopContent(ctx context.Context, from, to time.Time, contentType string, limit int) ([]models.TopItem, error)
	GetTrafficSources(ctx context.Context, from, to time.Time, limit int) ([]models.TopItem, error)
	GetGeographic(ctx context.Context, from, to time.Time, level string, limit int) ([]models.TopItem, error)
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	cfg        *config.Config
	tracker    Tracker
	engagement EngagementReader
	store      DashboardStore
	listings   ListingCatalog

	// presenceWindow is how far back a heartbeat still counts as active.
	presenceWindow time.Duration
}

// NewHandler creates the handler set. presenceWindow <= 0 falls back to
// the aggregation stale threshold.
func NewHandler(cfg *config.Config, tracker Tracker, engagement EngagementReader, store DashboardStore, listings ListingCatalog) *Handler {
	window := cfg.Aggregation.PresenceStaleThreshold
	if window <= 0 {
		window = 2 * time.Minute
	}

	return &Handler{
		cfg:            cfg,
		tracker:        tracker,
		engagement:     engagement,
		store:          store,
		listings:       listings,
		presenceWindow: window,
	}
}
