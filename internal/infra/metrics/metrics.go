// Package metrics provides Prometheus metrics for mindcamp.
// Counters and histograms for recomputes, entry ingestion, grace spends,
// debug tooling and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Progress ───────────────────────────────────────────────────────────────

// RecomputesTotal counts progress recomputes by trigger (read, entry, grace, debug).
var RecomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mindcamp",
	Name:      "recomputes_total",
	Help:      "Total progress recomputes.",
}, []string{"trigger"})

// RecomputeDuration tracks how long a recompute takes end to end.
var RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "mindcamp",
	Name:      "recompute_duration_seconds",
	Help:      "Progress recompute duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
})

// RankReached counts snapshots persisted per resulting rank.
var RankReached = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mindcamp",
	Name:      "rank_snapshots_total",
	Help:      "Persisted snapshots by resulting rank.",
}, []string{"rank"})

// ─── Entries ────────────────────────────────────────────────────────────────

// EntriesRecorded counts ingested entries by outcome
// (first_of_day, same_day, below_minimum).
var EntriesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mindcamp",
	Name:      "entries_recorded_total",
	Help:      "Total entries seen by the ingestion path.",
}, []string{"outcome"})

// ─── Grace ──────────────────────────────────────────────────────────────────

// GraceSpends counts grace spend attempts by outcome
// (spent, already_qualifying, already_graced, exhausted, invalid).
var GraceSpends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mindcamp",
	Name:      "grace_spends_total",
	Help:      "Grace spend attempts by outcome.",
}, []string{"outcome"})

// GraceRefills counts monthly grace refills.
var GraceRefills = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "mindcamp",
	Name:      "grace_refills_total",
	Help:      "Total monthly grace token refills.",
})

// ─── Cache ──────────────────────────────────────────────────────────────────

// SnapshotCacheLookups counts snapshot cache lookups by result (hit, miss, error).
var SnapshotCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mindcamp",
	Name:      "snapshot_cache_lookups_total",
	Help:      "Snapshot cache lookups by result.",
}, []string{"result"})

// ─── Debug Tooling ──────────────────────────────────────────────────────────

// DebugActions counts admin debug actions by action and outcome
// (ok, denied, rate_limited, error).
var DebugActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mindcamp",
	Name:      "debug_actions_total",
	Help:      "Admin debug actions by action and outcome.",
}, []string{"action", "outcome"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestDuration tracks API latency by route pattern and status class.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "mindcamp",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "code"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthStatus tracks the result of the last health check per component (1=ok, 0=failing).
var HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "mindcamp",
	Name:      "health_status",
	Help:      "Last health check result per component (1=ok, 0=failing).",
}, []string{"component"})
