// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package geoip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"time"

	"github.com/tomtom215/propertypulse/internal/cache"
	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/metrics"
	"github.com/tomtom215/propertypulse/internal/models"
)

// GeoCache is the longer-lived external cache behind the in-process LRU,
// keyed by IP hash. Implemented by the database package.
type GeoCache interface {
	GetGeolocation(ctx context.Context, ipHash string, maxAge time.Duration) (*models.Geolocation, error)
	UpsertGeolocation(ctx context.Context, ipHash string, geo *models.Geolocation) error
}

// ResolverConfig holds resolver tuning.
type ResolverConfig struct {
	// LRUSize bounds the in-process cache. Default 10000.
	LRUSize int

	// LRUTTL is the in-process cache TTL. Default 10m.
	LRUTTL time.Duration

	// CacheTTL is the external cache TTL. Default 1h.
	CacheTTL time.Duration
}

// Resolver resolves IPs through, in order: private-IP short-circuit,
// in-process LRU, external cache, local MMDB database, remote provider.
// Whatever is obtained is cached, including empty results, so repeated
// misses for the same IP never pay the fallback cost twice within a TTL.
//
// Resolve never fails: every error degrades to an empty Geolocation. Geo
// enrichment is best-effort by contract and must not block ingestion.
type Resolver struct {
	reader   *Reader // nil when no local database is configured
	remote   RemoteProvider
	store    GeoCache
	lru      *cache.LRU[models.Geolocation]
	cacheTTL time.Duration
}

// NewResolver constructs a Resolver. reader, remote, and store may each be
// nil; resolution skips whatever is absent.
func NewResolver(reader *Reader, remote RemoteProvider, store GeoCache, cfg ResolverConfig) *Resolver {
	if cfg.LRUSize <= 0 {
		cfg.LRUSize = 10000
	}
	if cfg.LRUTTL <= 0 {
		cfg.LRUTTL = 10 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	return &Resolver{
		reader:   reader,
		remote:   remote,
		store:    store,
		lru:      cache.NewLRU[models.Geolocation](cfg.LRUSize, cfg.LRUTTL),
		cacheTTL: cfg.CacheTTL,
	}
}

// Resolve resolves an IP address to a geolocation. The returned value is
// never nil.
func (r *Resolver) Resolve(ctx context.Context, ipStr string) *models.Geolocation {
	ip := net.ParseIP(ipStr)
	if ip == nil || isNonRoutable(ip) {
		metrics.GeoLookups.WithLabelValues(models.GeoSourceLocal).Inc()
		return &models.Geolocation{Source: models.GeoSourceLocal}
	}

	if geo, ok := r.lru.Get(ipStr); ok {
		metrics.GeoCacheHits.WithLabelValues("lru").Inc()
		return &geo
	}

	ipHash := hashIP(ipStr)
	if r.store != nil {
		if geo, err := r.store.GetGeolocation(ctx, ipHash, r.cacheTTL); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Geolocation cache read failed")
		} else if geo != nil {
			metrics.GeoCacheHits.WithLabelValues("store").Inc()
			r.lru.Add(ipStr, *geo)
			return geo
		}
	}

	geo := r.fetch(ctx, ip, ipStr)

	// Cache whatever was obtained, empty results included, to bound the
	// cost of repeated misses.
	r.lru.Add(ipStr, *geo)
	if r.store != nil {
		if err := r.store.UpsertGeolocation(ctx, ipHash, geo); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Geolocation cache write failed")
		}
	}

	metrics.GeoLookups.WithLabelValues(geo.Source).Inc()
	return geo
}

// fetch tries the local database then the remote provider. Structural
// database errors are logged and treated as "database unavailable".
func (r *Resolver) fetch(ctx context.Context, ip net.IP, ipStr string) *models.Geolocation {
	if r.reader != nil {
		record, err := r.reader.Lookup(ip)
		if err == nil {
			if geo := recordToGeolocation(record); geo.Country != nil {
				return geo
			}
			// A record without a country code is treated the same as a
			// miss; the remote provider may know better.
		} else if !errors.Is(err, ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Msg("Local geolocation database unavailable")
			metrics.GeoDatabaseErrors.Inc()
		}
	}

	if r.remote != nil {
		geo, err := r.remote.Lookup(ctx, ipStr)
		if err == nil {
			return geo
		}
		logging.Ctx(ctx).Warn().Err(err).Str("ip", ipStr).Msg("Remote geolocation lookup failed")
	}

	return &models.Geolocation{Source: models.GeoSourceUnknown}
}

// recordToGeolocation extracts the fields PropertyPulse uses from a decoded
// GeoIP2 City record.
func recordToGeolocation(record map[string]interface{}) *models.Geolocation {
	geo := &models.Geolocation{Source: models.GeoSourceMMDB}

	if country, ok := record["country"].(map[string]interface{}); ok {
		if iso, ok := country["iso_code"].(string); ok && iso != "" {
			geo.Country = &iso
		}
	}
	if subs, ok := record["subdivisions"].([]interface{}); ok && len(subs) > 0 {
		if sub, ok := subs[0].(map[string]interface{}); ok {
			if iso, ok := sub["iso_code"].(string); ok && iso != "" {
				geo.Region = &iso
			} else if name := englishName(sub); name != "" {
				geo.Region = &name
			}
		}
	}
	if city, ok := record["city"].(map[string]interface{}); ok {
		if name := englishName(city); name != "" {
			geo.City = &name
		}
	}
	if loc, ok := record["location"].(map[string]interface{}); ok {
		if lat, ok := loc["latitude"].(float64); ok {
			if lon, ok := loc["longitude"].(float64); ok {
				geo.Latitude = &lat
				geo.Longitude = &lon
			}
		}
		if tz, ok := loc["time_zone"].(string); ok && tz != "" {
			geo.Timezone = &tz
		}
	}

	return geo
}

// englishName pulls names.en out of a GeoIP2 named entity.
func englishName(entity map[string]interface{}) string {
	names, ok := entity["names"].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := names["en"].(string)
	return name
}

// isNonRoutable reports whether lookups for ip should short-circuit to an
// all-null result: private, loopback, link-local, and unspecified addresses
// carry no useful location.
func isNonRoutable(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// hashIP returns the cache key for an IP. Raw addresses are not stored as
// cache keys.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:16])
}
