// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package aggregate runs the scheduled rollup and housekeeping jobs: hourly
// and daily bucket aggregation, the stale presence sweep, and retention
// cleanup. Each job is a suture-supervised service; failures are logged at
// the job boundary and the bucket is left unwritten for a natural retry on
// the next tick.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/database"
	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/metrics"
	"github.com/tomtom215/propertypulse/internal/models"
)

// Store is the storage surface the jobs read and write. Implemented by the
// database package.
type Store interface {
	HourlyAggregateExists(ctx context.Context, bucketStart time.Time) (bool, error)
	InsertHourlyAggregate(ctx context.Context, agg *models.HourlyAggregate) error
	GetHourlyAggregates(ctx context.Context, from, to time.Time) ([]*models.HourlyAggregate, error)
	DailyAggregateExists(ctx context.Context, bucketDate time.Time) (bool, error)
	InsertDailyAggregate(ctx context.Context, agg *models.DailyAggregate) error
	GetDailyAggregate(ctx context.Context, bucketDate time.Time) (*models.DailyAggregate, error)

	GetWindowScalars(ctx context.Context, from, to time.Time) (*database.WindowScalars, error)
	GetWindowBreakdowns(ctx context.Context, from, to time.Time) (platforms, devices, countries, referrers map[string]int, err error)
	GetWindowTopN(ctx context.Context, from, to time.Time, limit int) (cities, pages, properties, searches []models.TopItem, err error)

	SweepStalePresence(ctx context.Context, staleAfter time.Duration) (int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Aggregator owns the scheduled jobs. The individual services returned by
// the *Service methods share its store and clock.
type Aggregator struct {
	store Store
	cfg   *config.AggregationConfig
	clock clockwork.Clock
}

// New constructs an Aggregator. A nil clock uses the real one.
func New(store Store, cfg *config.AggregationConfig, clock clockwork.Clock) *Aggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Aggregator{store: store, cfg: cfg, clock: clock}
}

// jobTimeout bounds one run of any job.
const jobTimeout = 5 * time.Minute

// tickerService is the common tick loop. An initial run fires immediately
// so a restarted process catches up without waiting a full interval.
type tickerService struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	run      func(ctx context.Context)
}

// Serve implements suture.Service.
func (t *tickerService) Serve(ctx context.Context) error {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	t.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			t.runOnce(ctx)
		}
	}
}

func (t *tickerService) String() string { return t.name }

func (t *tickerService) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := t.clock.Now()
	t.run(runCtx)
	metrics.AggregationDuration.WithLabelValues(t.name).Observe(t.clock.Since(start).Seconds())
}

// HourlyService returns the hourly aggregation service.
func (a *Aggregator) HourlyService() *tickerService {
	return &tickerService{
		name:     "hourly-aggregation",
		interval: a.cfg.HourlyInterval,
		clock:    a.clock,
		run: func(ctx context.Context) {
			bucket := a.clock.Now().UTC().Truncate(time.Hour).Add(-time.Hour)
			a.runBucketJob(ctx, "hourly", bucket, func() error {
				return a.AggregateHour(ctx, bucket)
			})
		},
	}
}

// DailyService returns the daily aggregation service.
func (a *Aggregator) DailyService() *tickerService {
	return &tickerService{
		name:     "daily-aggregation",
		interval: a.cfg.DailyInterval,
		clock:    a.clock,
		run: func(ctx context.Context) {
			now := a.clock.Now().UTC()
			day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
			a.runBucketJob(ctx, "daily", day, func() error {
				return a.AggregateDay(ctx, day)
			})
		},
	}
}

// errBucketExists marks the idempotent skip path.
var errBucketExists = errors.New("aggregate: bucket already written")

func (a *Aggregator) runBucketJob(ctx context.Context, job string, bucket time.Time, fn func() error) {
	log := logging.Ctx(ctx)
	start := a.clock.Now()

	err := fn()
	switch {
	case errors.Is(err, errBucketExists):
		metrics.AggregationRuns.WithLabelValues(job, "skipped").Inc()
		log.Debug().Str("job", job).Time("bucket", bucket).Msg("Aggregation bucket already written")
	case err != nil:
		metrics.AggregationRuns.WithLabelValues(job, "failed").Inc()
		log.Error().Err(err).
			Str("job", job).
			Time("bucket", bucket).
			Dur("duration", a.clock.Since(start)).
			Msg("Aggregation run failed")
	default:
		metrics.AggregationRuns.WithLabelValues(job, "written").Inc()
		log.Info().
			Str("job", job).
			Time("bucket", bucket).
			Dur("duration", a.clock.Since(start)).
			Msg("Aggregation bucket written")
	}
}

// AggregateHour computes and writes the hourly row for the bucket starting
// at bucketStart. Returns errBucketExists when the bucket was already
// written; the insert is last so a failed run leaves nothing behind.
func (a *Aggregator) AggregateHour(ctx context.Context, bucketStart time.Time) error {
	exists, err := a.store.HourlyAggregateExists(ctx, bucketStart)
	if err != nil {
		return fmt.Errorf("bucket check: %w", err)
	}
	if exists {
		return errBucketExists
	}

	from, to := bucketStart, bucketStart.Add(time.Hour)

	scalars, err := a.store.GetWindowScalars(ctx, from, to)
	if err != nil {
		return fmt.Errorf("window scalars: %w", err)
	}
	platforms, devices, countries, referrers, err := a.store.GetWindowBreakdowns(ctx, from, to)
	if err != nil {
		return fmt.Errorf("window breakdowns: %w", err)
	}
	cities, pages, properties, searches, err := a.store.GetWindowTopN(ctx, from, to, models.HourlyTopN)
	if err != nil {
		return fmt.Errorf("window top-n: %w", err)
	}

	return a.store.InsertHourlyAggregate(ctx, &models.HourlyAggregate{
		BucketStart:       bucketStart,
		UniqueSessions:    scalars.UniqueSessions,
		NewSessions:       scalars.NewSessions,
		ReturningSessions: scalars.ReturningSessions,
		PageViews:         scalars.PageViews,
		PropertyViews:     scalars.PropertyViews,
		Searches:          scalars.Searches,
		BounceCount:       scalars.BounceCount,
		AvgSessionSecs:    scalars.AvgSessionSecs,
		AvgPagesPerSess:   scalars.AvgPagesPerSess,
		AvgScrollDepth:    scalars.AvgScrollDepth,
		PlatformCounts:    platforms,
		DeviceCounts:      devices,
		CountryCounts:     countries,
		ReferrerCounts:    referrers,
		TopCities:         cities,
		TopPages:          pages,
		TopProperties:     properties,
		TopSearches:       searches,
	})
}

// AggregateDay computes and writes the daily row for the given calendar
// day. Scalars are summed from the day's hourly rows; average columns take
// the mean of the hourly averages; top-N lists are recomputed from raw data
// (hourly lists are already truncated and would under-count if merged);
// breakdown maps merge additively across the hourly rows and truncate to
// the daily cap.
func (a *Aggregator) AggregateDay(ctx context.Context, day time.Time) error {
	exists, err := a.store.DailyAggregateExists(ctx, day)
	if err != nil {
		return fmt.Errorf("bucket check: %w", err)
	}
	if exists {
		return errBucketExists
	}

	from, to := day, day.AddDate(0, 0, 1)

	hourly, err := a.store.GetHourlyAggregates(ctx, from, to)
	if err != nil {
		return fmt.Errorf("read hourly rows: %w", err)
	}

	agg := &models.DailyAggregate{BucketDate: day}
	var sessionSecs, pagesPerSess, scrollDepths []float64
	for _, h := range hourly {
		agg.UniqueSessions += h.UniqueSessions
		agg.NewSessions += h.NewSessions
		agg.ReturningSessions += h.ReturningSessions
		agg.PageViews += h.PageViews
		agg.PropertyViews += h.PropertyViews
		agg.Searches += h.Searches
		agg.BounceCount += h.BounceCount
		sessionSecs = append(sessionSecs, h.AvgSessionSecs)
		pagesPerSess = append(pagesPerSess, h.AvgPagesPerSess)
		scrollDepths = append(scrollDepths, h.AvgScrollDepth)

		agg.PlatformCounts = mergeCounts(agg.PlatformCounts, h.PlatformCounts)
		agg.DeviceCounts = mergeCounts(agg.DeviceCounts, h.DeviceCounts)
		agg.CountryCounts = mergeCounts(agg.CountryCounts, h.CountryCounts)
		agg.ReferrerCounts = mergeCounts(agg.ReferrerCounts, h.ReferrerCounts)
	}
	agg.AvgSessionSecs = meanOf(sessionSecs)
	agg.AvgPagesPerSess = meanOf(pagesPerSess)
	agg.AvgScrollDepth = meanOf(scrollDepths)

	agg.PlatformCounts = truncateCounts(agg.PlatformCounts, models.DailyTopN)
	agg.DeviceCounts = truncateCounts(agg.DeviceCounts, models.DailyTopN)
	agg.CountryCounts = truncateCounts(agg.CountryCounts, models.DailyTopN)
	agg.ReferrerCounts = truncateCounts(agg.ReferrerCounts, models.DailyTopN)

	cities, pages, properties, searches, err := a.store.GetWindowTopN(ctx, from, to, models.DailyTopN)
	if err != nil {
		return fmt.Errorf("window top-n: %w", err)
	}
	agg.TopCities = cities
	agg.TopPages = pages
	agg.TopProperties = properties
	agg.TopSearches = searches

	prior, err := a.store.GetDailyAggregate(ctx, day.AddDate(0, 0, -1))
	switch {
	case err == nil:
		agg.SessionsChangePct = changePct(agg.UniqueSessions, prior.UniqueSessions)
		agg.PageViewsChangePct = changePct(agg.PageViews, prior.PageViews)
	case errors.Is(err, database.ErrNotFound):
		// No prior row: change is not computable and stays null.
	default:
		return fmt.Errorf("read prior day: %w", err)
	}

	return a.store.InsertDailyAggregate(ctx, agg)
}

// PresenceSweepService returns the stale presence sweeper.
func (a *Aggregator) PresenceSweepService() *tickerService {
	return &tickerService{
		name:     "presence-sweep",
		interval: a.cfg.PresenceSweepInterval,
		clock:    a.clock,
		run: func(ctx context.Context) {
			swept, err := a.store.SweepStalePresence(ctx, a.cfg.PresenceStaleThreshold)
			if err != nil {
				logging.Ctx(ctx).Error().Err(err).Msg("Presence sweep failed")
				return
			}
			if swept > 0 {
				logging.Ctx(ctx).Debug().Int64("swept", swept).Msg("Swept stale presence records")
			}
		},
	}
}
