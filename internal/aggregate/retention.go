// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package aggregate

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/propertypulse/internal/logging"
)

// retentionService prunes raw history beyond the retention window in
// bounded batches. When a pass hits its batch cap it schedules a follow-up
// pass after a short delay instead of looping synchronously, so one heavy
// backlog cannot monopolize the writer.
type retentionService struct {
	agg *Aggregator
}

// RetentionService returns the retention cleanup service.
func (a *Aggregator) RetentionService() *retentionService {
	return &retentionService{agg: a}
}

func (r *retentionService) String() string { return "retention-cleanup" }

// Serve implements suture.Service.
func (r *retentionService) Serve(ctx context.Context) error {
	a := r.agg
	ticker := a.clock.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	var retry clockwork.Timer
	retryChan := func() <-chan time.Time {
		if retry == nil {
			return nil
		}
		return retry.Chan()
	}

	if r.pass(ctx) {
		retry = a.clock.NewTimer(a.cfg.RetentionRetryDelay)
	}

	for {
		select {
		case <-ctx.Done():
			if retry != nil {
				retry.Stop()
			}
			return ctx.Err()
		case <-ticker.Chan():
		case <-retryChan():
			retry = nil
		}

		if r.pass(ctx) && retry == nil {
			retry = a.clock.NewTimer(a.cfg.RetentionRetryDelay)
		}
	}
}

// pass runs one bounded cleanup pass and reports whether more work remains.
func (r *retentionService) pass(ctx context.Context) bool {
	a := r.agg
	runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	cutoff := a.clock.Now().UTC().AddDate(0, 0, -a.cfg.RetentionDays)
	limit := a.cfg.RetentionBatchSize
	log := logging.Ctx(runCtx)

	events, err := a.store.DeleteEventsBefore(runCtx, cutoff, limit)
	if err != nil {
		log.Error().Err(err).Msg("Retention event cleanup failed")
		return false
	}
	sessions, err := a.store.DeleteSessionsBefore(runCtx, cutoff, limit)
	if err != nil {
		log.Error().Err(err).Msg("Retention session cleanup failed")
		return false
	}

	if events > 0 || sessions > 0 {
		log.Info().
			Int64("events", events).
			Int64("sessions", sessions).
			Time("cutoff", cutoff).
			Msg("Retention cleanup pass complete")
	}

	return events >= int64(limit) || sessions >= int64(limit)
}
