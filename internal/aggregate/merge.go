// PropertyPulse - Real Estate Visitor Telemetry and Engagement Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/propertypulse

package aggregate

import (
	"sort"

	"github.com/tomtom215/propertypulse/internal/models"
)

// mergeCounts sums per-key counts from src into dst and returns dst.
func mergeCounts(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// truncateCounts keeps only the top-n keys of a count map by descending
// count, ties broken by key for determinism.
func truncateCounts(m map[string]int, n int) map[string]int {
	if len(m) <= n {
		return m
	}
	items := countsToItems(m)
	out := make(map[string]int, n)
	for _, item := range items[:n] {
		out[item.Key] = item.Count
	}
	return out
}

// countsToItems converts a count map to a descending-sorted top list.
func countsToItems(m map[string]int) []models.TopItem {
	items := make([]models.TopItem, 0, len(m))
	for k, v := range m {
		items = append(items, models.TopItem{Key: k, Count: v})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Key < items[j].Key
	})
	return items
}

// changePct computes the day-over-day percentage change. A zero prior with
// activity today reports the 100% sentinel (no baseline, not literal
// doubling); zero on both sides is not computable.
func changePct(current, prior int) *float64 {
	if prior == 0 {
		if current == 0 {
			return nil
		}
		v := 100.0
		return &v
	}
	v := float64(current-prior) / float64(prior) * 100
	return &v
}

// meanOf averages the given values, zero for an empty input. Daily average
// columns are the mean of the hourly averages, which weights quiet hours
// equally with busy ones; the dashboards have always read it that way.
func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
