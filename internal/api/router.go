// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/propertypulse/internal/config"
	"github.com/tomtom215/propertypulse/internal/middleware"
)

// Router builds the HTTP handler tree.
type Router struct {
	cfg     *config.Config
	handler *Handler
}

// NewRouter creates a router over the given handler set.
func NewRouter(cfg *config.Config, handler *Handler) *Router {
	return &Router{cfg: cfg, handler: handler}
}

// Setup wires all routes and middleware.
//
// Rate limits are per client IP and differ by route group: tracking
// endpoints take the configured global limit (tracker scripts retry on
// 429), dashboards get a generous read budget, health probes are capped
// high enough for aggressive orchestrator polling.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	globalLimit := rt.cfg.Server.GlobalRateLimit
	if globalLimit <= 0 {
		globalLimit = 600
	}

	r.Route("/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", rt.handler.HealthLive)
		r.Get("/ready", rt.handler.HealthReady)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.PrometheusMetrics)

		// Ingestion: high-volume writes from tracker scripts.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(globalLimit, time.Minute))
			r.Post("/track", rt.handler.Track)
			r.Post("/heartbeat", rt.handler.Heartbeat)
		})

		// Dashboard reads.
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(httprate.LimitByIP(300, time.Minute))
			r.Get("/realtime", rt.handler.Realtime)
			r.Get("/stats", rt.handler.Stats)
			r.Get("/trends", rt.handler.Trends)
			r.Get("/activity", rt.handler.Activity)
			r.Get("/sessions/{sessionID}/journey", rt.handler.SessionJourney)
			r.Get("/top-content", rt.handler.TopContent)
			r.Get("/traffic-sources", rt.handler.TrafficSources)
			r.Get("/geographic", rt.handler.Geographic)
		})

		// Engagement reads.
		r.Route("/engagement", func(r chi.Router) {
			r.Use(httprate.LimitByIP(300, time.Minute))
			r.Get("/agents/{agentID}/clients", rt.handler.AgentClients)
			r.Get("/{userID}", rt.handler.EngagementScore)
		})
	})

	return r
}
