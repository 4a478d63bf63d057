// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package metrics defines the Prometheus instrumentation for PropertyPulse:
// ingestion throughput, geolocation source mix, aggregation job outcomes,
// engagement recomputation, and HTTP latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_events_ingested_total",
			Help: "Total events accepted per event type",
		},
		[]string{"event_type"},
	)

	BatchesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_batches_rejected_total",
			Help: "Track batches rejected, by reason (malformed, rate_limited)",
		},
		[]string{"reason"},
	)

	BotBatchesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propertypulse_bot_batches_discarded_total",
			Help: "Batches accepted but discarded as bot traffic",
		},
	)

	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propertypulse_heartbeats_total",
			Help: "Presence heartbeats processed",
		},
	)

	// Geolocation

	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_geo_lookups_total",
			Help: "Geolocation resolutions by source (local, mmdb, remote, unknown)",
		},
		[]string{"source"},
	)

	GeoCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_geo_cache_hits_total",
			Help: "Geolocation cache hits by layer (lru, store)",
		},
		[]string{"layer"},
	)

	GeoDatabaseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propertypulse_geo_database_errors_total",
			Help: "Structural MMDB failures treated as database-unavailable",
		},
	)

	// Aggregation jobs

	AggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_aggregation_runs_total",
			Help: "Aggregation job runs by job and outcome (written, skipped, failed)",
		},
		[]string{"job", "outcome"},
	)

	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "propertypulse_aggregation_duration_seconds",
			Help:    "Aggregation job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	PresenceSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propertypulse_presence_swept_total",
			Help: "Stale presence records removed by the sweep",
		},
	)

	RetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_retention_deleted_total",
			Help: "Rows deleted by retention cleanup, by table",
		},
		[]string{"table"},
	)

	// Engagement

	EngagementRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_engagement_recomputes_total",
			Help: "Engagement recomputations by trigger (debounced, direct)",
		},
		[]string{"trigger"},
	)

	EngagementDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "propertypulse_engagement_debounced_total",
			Help: "Recompute triggers absorbed by an in-flight debounce window",
		},
	)

	// HTTP

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "propertypulse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	// Database

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "propertypulse_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propertypulse_db_query_errors_total",
			Help: "Total DuckDB query errors",
		},
		[]string{"operation", "table"},
	)
)
