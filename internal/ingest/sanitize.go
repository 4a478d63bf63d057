// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package ingest

import (
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/propertypulse/internal/models"
)

// knownEventTypes is the closed set the sanitizer recognizes. Anything else
// normalizes to custom rather than being rejected, so new client SDK event
// types degrade gracefully.
var knownEventTypes = map[string]bool{
	models.EventTypePageView:       true,
	models.EventTypePropertyView:   true,
	models.EventTypeSearch:         true,
	models.EventTypePhotoView:      true,
	models.EventTypeCalculatorUse:  true,
	models.EventTypeSchoolInfoView: true,
	models.EventTypeFilterApply:    true,
	models.EventTypeSavedSearch:    true,
	models.EventTypeFavorite:       true,
	models.EventTypeContactClick:   true,
	models.EventTypeShowingRequest: true,
	models.EventTypeSessionEnd:     true,
	models.EventTypeCustom:         true,
}

// sanitizeEvent normalizes one incoming event in place: unknown types map
// to custom, strings are truncated to the configured cap, scroll depth is
// clamped to [0,100], and oversized payloads are dropped entirely (a partial
// payload would be worse than none).
func (s *Service) sanitizeEvent(ev *models.IncomingEvent) {
	ev.EventType = strings.TrimSpace(ev.EventType)
	if !knownEventTypes[ev.EventType] {
		ev.EventType = models.EventTypeCustom
	}

	ev.EventCategory = s.clampString(ev.EventCategory)
	ev.PagePath = s.clampString(ev.PagePath)
	ev.PropertyID = s.clampString(ev.PropertyID)
	ev.SearchQuery = s.clampString(ev.SearchQuery)

	if ev.ScrollDepth != nil {
		d := *ev.ScrollDepth
		if d < 0 {
			d = 0
		}
		if d > 100 {
			d = 100
		}
		ev.ScrollDepth = &d
	}

	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil || len(raw) > s.cfg.MaxPayloadBytes {
			ev.Payload = nil
		}
	}
}

// sanitizeMeta normalizes the session metadata: strings are truncated and
// unrecognized platforms resolve later against the classified device type.
func (s *Service) sanitizeMeta(meta *models.SessionMeta) {
	meta.VisitorHash = s.clampString(meta.VisitorHash)
	meta.UserID = s.clampString(meta.UserID)
	meta.Referrer = s.clampString(meta.Referrer)
	meta.UtmSource = s.clampString(meta.UtmSource)
	meta.UtmMedium = s.clampString(meta.UtmMedium)
	meta.UtmCampaign = s.clampString(meta.UtmCampaign)
}

// clampString trims whitespace and truncates to the configured byte cap on
// a rune boundary.
func (s *Service) clampString(v string) string {
	v = strings.TrimSpace(v)
	max := s.cfg.MaxStringLength
	if max <= 0 || len(v) <= max {
		return v
	}
	for max > 0 && !utf8.RuneStart(v[max]) {
		max--
	}
	return v[:max]
}

// resolvePlatform picks the session platform: a valid client-supplied value
// wins, otherwise the classified device type decides.
func resolvePlatform(claimed string, deviceType string) models.Platform {
	p := models.Platform(claimed)
	if models.ValidPlatform(p) {
		return p
	}
	switch deviceType {
	case "mobile":
		return models.PlatformWebMobile
	case "tablet":
		return models.PlatformWebTablet
	default:
		return models.PlatformWebDesktop
	}
}

// clampOccurredAt bounds the client clock: timestamps in the future or
// absurdly far in the past collapse to now so journey ordering stays sane.
func clampOccurredAt(t, now time.Time) time.Time {
	if t.IsZero() || t.After(now.Add(5*time.Minute)) || t.Before(now.AddDate(0, 0, -7)) {
		return now
	}
	return t
}
