// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

// Package listing is the read-only collaborator over the property listing
// store. The listing data itself is owned elsewhere; this package only
// looks up display labels to enrich analytics output.
package listing

import (
	"context"

	"github.com/tomtom215/propertypulse/internal/logging"
	"github.com/tomtom215/propertypulse/internal/models"
)

// Store is the persistence surface the catalog reads from. Implemented
// by the database package.
type Store interface {
	GetListingLabels(ctx context.Context, keys []string) (map[string]string, error)
}

// Catalog resolves listing keys to display labels.
type Catalog struct {
	store Store
}

// New creates a catalog over the given store.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Labels returns address labels for the given listing keys. Empty and
// duplicate keys are dropped before the lookup. Unknown keys are simply
// absent from the result.
func (c *Catalog) Labels(ctx context.Context, keys []string) (map[string]string, error) {
	seen := make(map[string]struct{}, len(keys))
	unique := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	if len(unique) == 0 {
		return map[string]string{}, nil
	}
	return c.store.GetListingLabels(ctx, unique)
}

// Annotate fills the Label field of property top items in place. Lookup
// failure leaves the raw keys; labels are display sugar, never required.
func (c *Catalog) Annotate(ctx context.Context, items []models.TopItem) {
	if len(items) == 0 {
		return
	}

	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Key
	}

	labels, err := c.Labels(ctx, keys)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("listing label lookup failed")
		return
	}

	for i := range items {
		items[i].Label = labels[items[i].Key]
	}
}
