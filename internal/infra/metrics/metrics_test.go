package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestProgressMetrics(t *testing.T) {
	RecomputesTotal.WithLabelValues("read").Inc()
	RecomputeDuration.Observe(0.002)
	RankReached.WithLabelValues("member").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"mindcamp_recomputes_total",
		"mindcamp_recompute_duration_seconds",
		"mindcamp_rank_snapshots_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestLedgerMetrics(t *testing.T) {
	EntriesRecorded.WithLabelValues("first_of_day").Inc()
	GraceSpends.WithLabelValues("spent").Inc()
	GraceSpends.WithLabelValues("exhausted").Inc()
	GraceRefills.Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"mindcamp_entries_recorded_total",
		"mindcamp_grace_spends_total",
		"mindcamp_grace_refills_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestSurfaceMetrics(t *testing.T) {
	SnapshotCacheLookups.WithLabelValues("hit").Inc()
	DebugActions.WithLabelValues("reset-user", "ok").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/progress", "2xx").Observe(0.01)
	HealthStatus.WithLabelValues("sqlite").Set(1)

	names := gatheredNames(t)
	for _, name := range []string{
		"mindcamp_snapshot_cache_lookups_total",
		"mindcamp_debug_actions_total",
		"mindcamp_http_request_duration_seconds",
		"mindcamp_health_status",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}
