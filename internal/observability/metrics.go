// Package observability collects prometheus metrics for the core
// operations: ingestion, inference and review.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	IngestionsTotal   *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	ReviewsTotal      *prometheus.CounterVec
	OverridesTotal    prometheus.Counter
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radreview_ingestions_total",
			Help: "Total ingestion attempts by outcome.",
		}, []string{"status"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radreview_inference_duration_seconds",
			Help:    "Duration of inference gateway calls.",
			Buckets: prometheus.DefBuckets,
		}),
		ReviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radreview_reviews_total",
			Help: "Total reconciliation operations by action.",
		}, []string{"action"}),
		OverridesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radreview_overrides_total",
			Help: "Total reviewer labels that disagreed with the machine decision.",
		}),
	}

	collectors := []prometheus.Collector{
		m.IngestionsTotal,
		m.InferenceDuration,
		m.ReviewsTotal,
		m.OverridesTotal,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
