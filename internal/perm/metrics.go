// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glyph Contributors

package perm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for permission checks and cache behavior.
var (
	// checkDuration tracks the latency of Check() calls.
	checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glyph_permission_check_duration_seconds",
		Help:    "Histogram of permission check latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// checksTotal counts checks by outcome.
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glyph_permission_checks_total",
		Help: "Total number of permission checks",
	}, []string{"outcome"})

	// cacheOps counts cache lookups by result (hit, miss, error).
	cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glyph_permission_cache_lookups_total",
		Help: "Total number of permission cache lookups",
	}, []string{"result"})

	// invalidationsTotal counts cache invalidations by trigger.
	invalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glyph_permission_invalidations_total",
		Help: "Total number of permission cache invalidations",
	}, []string{"trigger"})
)

// Check outcomes for the checksTotal counter.
const (
	outcomeAllow         = "allow"
	outcomeDeny          = "deny"
	outcomeCreatorBypass = "creator_bypass"
	outcomeAdminBypass   = "admin_bypass"
)

// recordCheck records metrics for a completed permission check.
func recordCheck(duration time.Duration, outcome string) {
	checkDuration.Observe(duration.Seconds())
	checksTotal.WithLabelValues(outcome).Inc()
}

// Cache lookup results for the cacheOps counter.
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

// recordCacheLookup records the result of a cache Get.
func recordCacheLookup(result string) {
	cacheOps.WithLabelValues(result).Inc()
}

// Invalidation triggers for the invalidationsTotal counter.
const (
	triggerRole       = "role"
	triggerOverride   = "override"
	triggerAssignment = "assignment"
	triggerManual     = "manual"
)

// recordInvalidation records a cache invalidation event.
func recordInvalidation(trigger string) {
	invalidationsTotal.WithLabelValues(trigger).Inc()
}
