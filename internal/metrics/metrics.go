// Package metrics exposes Prometheus collectors for the triage engine.
// Collectors register against the default registry; the server serves
// them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tabtriage/tabtriage/internal/types"
)

const namespace = "tabtriage"

var (
	// LifecycleEvents counts host lifecycle notifications by type
	// (created, navigated, removed, title).
	LifecycleEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Tab lifecycle events processed by type",
		},
		[]string{"type"},
	)

	// Verdicts counts category assignments by provenance.
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Category assignments by provenance",
		},
		[]string{"provenance"},
	)

	// RunsTotal counts full classification runs.
	RunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_runs_total",
			Help:      "Full classification runs started",
		},
	)

	// ProviderFailures counts remote provider degradations by reason.
	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Remote provider failures by reason",
		},
		[]string{"reason"},
	)

	// PushesDropped counts state events dropped because no sync client
	// was connected or its send queue was full.
	PushesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_dropped_total",
			Help:      "State push events dropped",
		},
	)

	// UnitsPerTier tracks the number of units currently in each tier.
	UnitsPerTier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units",
			Help:      "Units currently tracked per tier",
		},
		[]string{"tier"},
	)

	// ConnectedRoles tracks connected websocket roles (host, sync).
	ConnectedRoles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "Connected clients per role (0 or 1)",
		},
		[]string{"role"},
	)
)

// SetUnitCounts updates the per-tier gauge from a counts map.
func SetUnitCounts(counts map[types.Category]int) {
	for _, tier := range types.Categories() {
		UnitsPerTier.WithLabelValues(tier.String()).Set(float64(counts[tier]))
	}
}
