// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package ingest validates, sanitizes, and enriches incoming event batches
// and heartbeats, then writes them through the event store. It owns the
// per-session rate limit and the bot discard policy; enrichment failures
// (geo, device) degrade to empty fields and never reject a batch.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/propertypulse/internal/cache"
	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/metrics"
	"github.com/tomtom215/propertypulse/internal/models"
)

// EventStore is the storage surface ingestion writes through. Implemented
// by the database package.
type EventStore interface {
	UpsertSession(ctx context.Context, up *models.SessionUpsert) error
	InsertEvents(ctx context.Context, events []*models.Event) error
	TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error
	UpdatePresence(ctx context.Context, p *models.PresenceRecord) error
	RemovePresence(ctx context.Context, sessionID string) error
	GetActiveCount(ctx context.Context, window time.Duration) (int, error)
	IsActiveClient(ctx context.Context, userID string) (bool, error)
}

// GeoResolver resolves a client IP to a geolocation, degrading to an empty
// result rather than failing.
type GeoResolver interface {
	Resolve(ctx context.Context, ipStr string) *models.Geolocation
}

// DeviceClassifier classifies a user-agent string.
type DeviceClassifier interface {
	Classify(userAgent string) models.DeviceInfo
}

// EngagementTrigger schedules a debounced score recompute for a user.
type EngagementTrigger interface {
	TriggerRecompute(userID string)
}

// Service is the ingestion entry point.
type Service struct {
	cfg        *config.IngestConfig
	store      EventStore
	geo        GeoResolver
	devices    DeviceClassifier
	engagement EngagementTrigger // nil when scoring is disabled
	limiter    *cache.SessionRateLimiter

	presenceWindow time.Duration
}

// New constructs the ingestion service. engagement may be nil.
func New(cfg *config.IngestConfig, store EventStore, geo GeoResolver, devices DeviceClassifier, engagement EngagementTrigger, presenceWindow time.Duration) *Service {
	if presenceWindow <= 0 {
		presenceWindow = 120 * time.Second
	}
	return &Service{
		cfg:            cfg,
		store:          store,
		geo:            geo,
		devices:        devices,
		engagement:     engagement,
		limiter:        cache.NewSessionRateLimiter(cfg.SessionRateLimit, cfg.SessionRateWindow),
		presenceWindow: presenceWindow,
	}
}

// Track ingests one event batch. Batches beyond the size cap are truncated
// silently; bot traffic is accepted but discarded so the client SDK never
// learns it was detected.
func (s *Service) Track(ctx context.Context, req *models.TrackRequest) (*models.TrackResult, error) {
	if req.SessionID == "" {
		metrics.BatchesRejected.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: missing session id", ErrMalformed)
	}
	if len(req.Events) == 0 {
		metrics.BatchesRejected.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: empty event batch", ErrMalformed)
	}

	if !s.limiter.Allow(req.SessionID) {
		metrics.BatchesRejected.WithLabelValues("rate_limited").Inc()
		return nil, fmt.Errorf("%w: session %s", ErrRateLimited, req.SessionID)
	}

	if max := s.cfg.MaxBatchSize; max > 0 && len(req.Events) > max {
		req.Events = req.Events[:max]
	}

	device := s.devices.Classify(req.UserAgent)
	if device.IsBot {
		metrics.BotBatchesDiscarded.Inc()
		logging.Ctx(ctx).Debug().
			Str("session_id", req.SessionID).
			Msg("Discarded bot batch")
		return &models.TrackResult{Success: true, TrackedCount: 0}, nil
	}

	s.sanitizeMeta(&req.Meta)
	now := time.Now().UTC()

	var geo *models.Geolocation
	if s.geo != nil {
		geo = s.geo.Resolve(ctx, req.RemoteIP)
	}

	up := s.buildUpsert(req, device, geo, now)
	events := make([]*models.Event, 0, len(req.Events))
	for i := range req.Events {
		in := &req.Events[i]
		s.sanitizeEvent(in)

		switch in.EventType {
		case models.EventTypePageView:
			up.PageViewDelta++
		case models.EventTypePropertyView:
			up.PropertyViewDelta++
		case models.EventTypeSearch:
			up.SearchDelta++
		}

		events = append(events, &models.Event{
			SessionID:     req.SessionID,
			EventType:     in.EventType,
			EventCategory: in.EventCategory,
			Platform:      up.Platform,
			PagePath:      optional(in.PagePath),
			PropertyID:    optional(in.PropertyID),
			SearchQuery:   optional(in.SearchQuery),
			ScrollDepth:   in.ScrollDepth,
			Payload:       in.Payload,
			OccurredAt:    clampOccurredAt(in.OccurredAt, now),
			CreatedAt:     now,
		})
	}

	if err := s.store.UpsertSession(ctx, up); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	if err := s.store.InsertEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("insert events: %w", err)
	}

	s.maybeTriggerEngagement(ctx, req.Meta.UserID)

	return &models.TrackResult{Success: true, TrackedCount: len(events)}, nil
}

// Heartbeat records presence for a session and returns the current active
// visitor count. A session-end heartbeat removes the presence row instead.
func (s *Service) Heartbeat(ctx context.Context, req *models.HeartbeatRequest) (*models.HeartbeatResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrMalformed)
	}
	metrics.Heartbeats.Inc()

	now := time.Now().UTC()
	if req.SessionEnd {
		if err := s.store.RemovePresence(ctx, req.SessionID); err != nil {
			return nil, fmt.Errorf("remove presence: %w", err)
		}
	} else {
		if err := s.store.UpdatePresence(ctx, &models.PresenceRecord{
			SessionID:     req.SessionID,
			LastHeartbeat: now,
			PagePath:      optional(s.clampString(req.PagePath)),
			PropertyID:    optional(s.clampString(req.PropertyID)),
		}); err != nil {
			return nil, fmt.Errorf("update presence: %w", err)
		}
	}

	// A heartbeat also keeps the session row's last_seen honest; the row
	// may not exist yet under at-least-once delivery, which is fine.
	if err := s.store.TouchSession(ctx, req.SessionID, now); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("session_id", req.SessionID).
			Msg("Heartbeat session touch failed")
	}

	count, err := s.store.GetActiveCount(ctx, s.presenceWindow)
	if err != nil {
		return nil, fmt.Errorf("count active visitors: %w", err)
	}
	return &models.HeartbeatResult{Success: true, ActiveVisitors: count}, nil
}

func (s *Service) buildUpsert(req *models.TrackRequest, device models.DeviceInfo, geo *models.Geolocation, now time.Time) *models.SessionUpsert {
	up := &models.SessionUpsert{
		SessionID:      req.SessionID,
		VisitorHash:    optional(req.Meta.VisitorHash),
		UserID:         optional(req.Meta.UserID),
		Platform:       resolvePlatform(req.Meta.Platform, device.DeviceType),
		Referrer:       optional(req.Meta.Referrer),
		UtmSource:      optional(req.Meta.UtmSource),
		UtmMedium:      optional(req.Meta.UtmMedium),
		UtmCampaign:    optional(req.Meta.UtmCampaign),
		DeviceType:     device.DeviceType,
		Browser:        optional(device.Browser),
		BrowserVersion: optional(device.BrowserVersion),
		OS:             optional(device.OS),
		OSVersion:      optional(device.OSVersion),
		SeenAt:         now,
	}
	if geo != nil {
		up.Country = geo.Country
		up.Region = geo.Region
		up.City = geo.City
		up.Latitude = geo.Latitude
		up.Longitude = geo.Longitude
	}
	return up
}

// maybeTriggerEngagement schedules a debounced recompute when the batch
// belongs to a known active client. Lookup failures only suppress the
// trigger; the batch itself already succeeded.
func (s *Service) maybeTriggerEngagement(ctx context.Context, userID string) {
	if s.engagement == nil || userID == "" {
		return
	}
	active, err := s.store.IsActiveClient(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("user_id", userID).
			Msg("Client lookup failed; skipping engagement trigger")
		return
	}
	if active {
		s.engagement.TriggerRecompute(userID)
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
