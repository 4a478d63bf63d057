// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package geoip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/models"
)

// RemoteProvider is the fallback geolocation source, queried when the local
// MMDB database is unavailable or has no record for an address.
type RemoteProvider interface {
	// Lookup returns geolocation data for the given IP address.
	Lookup(ctx context.Context, ip string) (*models.Geolocation, error)

	// Name returns the provider name for logging and metrics.
	Name() string
}

// IPAPIProvider implements RemoteProvider using the free ip-api.com service.
// Free tier allows 45 requests/minute; the resolver's caching keeps usage
// far below that in practice. All calls go through a circuit breaker so a
// degraded upstream cannot stall the ingestion path.
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
	cb      *gobreaker.CircuitBreaker[*models.Geolocation]
}

// ipAPIResponse is the JSON response from ip-api.com.
type ipAPIResponse struct {
	Status     string  `json:"status"` // "success" or "fail"
	Message    string  `json:"message,omitempty"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Timezone   string  `json:"timezone"`
}

// NewIPAPIProvider creates an ip-api.com provider with the given request
// timeout. The circuit opens after a 60% failure rate over at least 10
// requests and recovers after one minute.
func NewIPAPIProvider(timeout time.Duration) *IPAPIProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[*models.Geolocation](gobreaker.Settings{
		Name:        "geoip-remote",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Remote geolocation circuit state changed")
		},
	})

	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: "http://ip-api.com/json",
		cb:      cb,
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// Lookup queries ip-api.com through the circuit breaker.
func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (*models.Geolocation, error) {
	return p.cb.Execute(func() (*models.Geolocation, error) {
		return p.query(ctx, ip)
	})
}

func (p *IPAPIProvider) query(ctx context.Context, ip string) (*models.Geolocation, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city,lat,lon,timezone", p.baseURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("geoip: building remote request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip: remote lookup for %s: %w", ip, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip: remote lookup returned status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geoip: decoding remote response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("geoip: remote lookup failed for %s: %s", ip, body.Message)
	}

	geo := &models.Geolocation{Source: models.GeoSourceRemote}
	if body.Country != "" {
		geo.Country = &body.Country
	}
	if body.RegionName != "" {
		geo.Region = &body.RegionName
	}
	if body.City != "" {
		geo.City = &body.City
	}
	if body.Timezone != "" {
		geo.Timezone = &body.Timezone
	}
	if body.Lat != 0 || body.Lon != 0 {
		lat, lon := body.Lat, body.Lon
		geo.Latitude = &lat
		geo.Longitude = &lon
	}

	return geo, nil
}

// SetBaseURL overrides the service URL. Test hook.
func (p *IPAPIProvider) SetBaseURL(url string) {
	p.baseURL = url
}
