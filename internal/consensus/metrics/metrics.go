package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the consensus module.
type Metrics struct {
	// Status transitions by previous and next status
	Transitions *prometheus.CounterVec

	// Aggregate recompute latency
	RecomputeLatency prometheus.Histogram
}

// New creates and registers all consensus metrics.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "covercheck_consensus_transitions_total",
			Help: "Total pair status transitions by previous and next status",
		}, []string{"from", "to"}),

		RecomputeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "covercheck_consensus_recompute_duration_seconds",
			Help:    "Duration of aggregate recomputation per pair",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveTransition records a status change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

// ObserveRecomputeLatency records the duration of one pair recompute.
func (m *Metrics) ObserveRecomputeLatency(d time.Duration) {
	if m != nil {
		m.RecomputeLatency.Observe(d.Seconds())
	}
}
