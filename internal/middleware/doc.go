// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

/*
Package middleware provides HTTP middleware shared by all routes.

Key Components:

  - Request ID: UUID-based request tracking carried through the logging
    context and echoed back in the X-Request-ID response header
  - Prometheus Metrics: per-route request duration instrumentation using
    the Chi route pattern to keep label cardinality bounded
  - Security Headers: standard hardening headers for API responses

CORS, rate limiting, compression, and panic recovery come from the Chi
ecosystem (go-chi/cors, go-chi/httprate, chi/middleware) and are wired
in the api package's router setup.

Thread Safety:

All middleware here is stateless or uses context.Context, and is safe
for concurrent use.

See Also:

  - internal/api: HTTP handlers wrapped by this middleware
  - internal/metrics: Prometheus metric definitions
*/
package middleware
