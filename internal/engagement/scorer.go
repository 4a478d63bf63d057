// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package engagement computes the decaying 0-100 engagement score for
// client users from their trailing activity, with debounced recomputation
// under bursty triggers.
package engagement

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/database"
	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/metrics"
	"github.com/tomtom215/propertypulse/internal/models"
)

// Component caps. They sum to 100, so the base score needs no final clamp.
const (
	timeCap      = 25
	viewCap      = 25
	searchCap    = 20
	intentCap    = 20
	frequencyCap = 10
)

// activityWindow is the trailing lookback feeding the component formulas.
const activityWindow = 30 * 24 * time.Hour

// ScoreStore is the storage surface the scorer reads and writes.
// Implemented by the database package.
type ScoreStore interface {
	GetActivitySummary(ctx context.Context, userID string, window time.Duration, recentDays int) (*models.ActivitySummary, error)
	GetEngagementScore(ctx context.Context, userID string) (*models.EngagementScore, error)
	UpsertEngagementScore(ctx context.Context, score *models.EngagementScore) error
	GetAgentClientScores(ctx context.Context, agentID, sortBy, order string) ([]*models.EngagementScore, error)
}

// Scorer computes and stores engagement scores.
type Scorer struct {
	store ScoreStore
	cfg   *config.EngagementConfig
	clock clockwork.Clock

	// markers holds one entry per user with a recompute pending. The
	// GetOrSet below is the atomic check-and-set that collapses a burst of
	// triggers into one deferred recompute. Entries carry no TTL: the timer
	// callback deletes them, so the marker lifetime follows the injected
	// clock rather than the wall clock.
	markers *ttlcache.Cache[string, struct{}]
}

// New constructs a Scorer. A nil clock uses the real one.
func New(store ScoreStore, cfg *config.EngagementConfig, clock clockwork.Clock) *Scorer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scorer{
		store: store,
		cfg:   cfg,
		clock: clock,
		markers: ttlcache.New[string, struct{}](),
	}
}

// TriggerRecompute schedules a debounced recompute for the user. The first
// trigger in a window arms a timer for the end of the window; every further
// trigger inside it is a no-op. Safe for concurrent use.
func (s *Scorer) TriggerRecompute(userID string) {
	_, existed := s.markers.GetOrSet(userID, struct{}{})
	if existed {
		metrics.EngagementDebounced.Inc()
		return
	}

	s.clock.AfterFunc(s.cfg.DebounceWindow, func() {
		s.markers.Delete(userID)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.Recompute(ctx, userID); err != nil {
			logging.Warn().Err(err).
				Str("user_id", userID).
				Msg("Deferred engagement recompute failed")
			return
		}
		metrics.EngagementRecomputes.WithLabelValues("debounced").Inc()
	})
}

// Recompute pulls the user's trailing activity, applies the component
// formulas and recency decay, derives the trend against the previously
// stored score, and replaces the stored row.
func (s *Scorer) Recompute(ctx context.Context, userID string) (*models.EngagementScore, error) {
	summary, err := s.store.GetActivitySummary(ctx, userID, activityWindow, s.cfg.RecentWindowDays)
	if err != nil {
		return nil, err
	}

	score := s.computeScore(summary)
	score.UserID = userID
	score.ComputedAt = s.clock.Now().UTC()

	// Trend compares against the stored score, not the previous base. A
	// first-time score has no baseline and reads as stable.
	prev, err := s.store.GetEngagementScore(ctx, userID)
	switch {
	case err == nil:
		score.ScoreChange = score.FinalScore - prev.FinalScore
		score.Trend = s.trendFor(score.ScoreChange)
	case errors.Is(err, database.ErrNotFound):
		score.Trend = models.TrendStable
	default:
		return nil, err
	}

	if err := s.store.UpsertEngagementScore(ctx, score); err != nil {
		return nil, err
	}
	return score, nil
}

// GetScore returns the stored score for a user.
func (s *Scorer) GetScore(ctx context.Context, userID string) (*models.EngagementScore, error) {
	return s.store.GetEngagementScore(ctx, userID)
}

// GetAgentClientScores returns the stored scores for an agent's active
// clients.
func (s *Scorer) GetAgentClientScores(ctx context.Context, agentID, sortBy, order string) ([]*models.EngagementScore, error) {
	return s.store.GetAgentClientScores(ctx, agentID, sortBy, order)
}

// Stop releases the debounce cache. Pending timers still fire; their
// recomputes run against whatever the store allows.
func (s *Scorer) Stop() {
	s.markers.Stop()
}

func (s *Scorer) computeScore(a *models.ActivitySummary) *models.EngagementScore {
	score := &models.EngagementScore{
		TimeScore:         timeScore(a),
		ViewScore:         viewScore(a),
		SearchScore:       searchScore(a),
		IntentScore:       intentScore(a),
		FrequencyScore:    frequencyScore(a),
		DaysSinceActivity: a.DaysSinceActivity,
		LastActivity:      a.LastActivity,
	}
	score.BaseScore = score.TimeScore + score.ViewScore + score.SearchScore +
		score.IntentScore + score.FrequencyScore
	score.FinalScore = score.BaseScore * math.Pow(s.cfg.DailyDecay, float64(a.DaysSinceActivity))
	return score
}

func (s *Scorer) trendFor(change float64) string {
	switch {
	case change > s.cfg.TrendBand:
		return models.TrendRising
	case change < -s.cfg.TrendBand:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

func timeScore(a *models.ActivitySummary) float64 {
	return capAt(capAt(a.SessionMinutes*0.5, 15)+capAt(a.DetailMinutes, 10), timeCap)
}

func viewScore(a *models.ActivitySummary) float64 {
	v := capAt(float64(a.UniqueProperties)*2, 20) + capAt(float64(a.PhotoViews)*0.1, 5)
	if a.CalculatorUse {
		v += 3
	}
	if a.SchoolInfoViews {
		v += 2
	}
	return capAt(v, viewCap)
}

func searchScore(a *models.ActivitySummary) float64 {
	v := capAt(float64(a.Searches)*3, 15) +
		capAt(float64(a.FiltersApplied)*0.5, 5) +
		capAt(float64(a.SavedSearches)*5, 10)
	return capAt(v, searchCap)
}

func intentScore(a *models.ActivitySummary) float64 {
	v := capAt(float64(a.Favorites)*4, 16) + capAt(float64(a.ContactClicks)*5, 15)
	if a.ShowingRequests {
		v += 10
	}
	return capAt(v, intentCap)
}

func frequencyScore(a *models.ActivitySummary) float64 {
	v := capAt(float64(a.RecentSessions7d)*2, frequencyCap)
	if a.DaysSinceActivity > 7 {
		v /= 2
	}
	return v
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
