package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the admission counter.
type Metrics struct {
	// Admission decisions by tier and outcome (allowed, denied)
	Decisions *prometheus.CounterVec

	// Checks served by the degraded local fallback, by tier
	Degraded *prometheus.CounterVec

	// Shared store call latency in milliseconds
	StoreLatencyMs prometheus.Histogram
}

// New creates and registers all admission metrics.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "covercheck_admission_decisions_total",
			Help: "Total admission decisions by tier and outcome",
		}, []string{"tier", "outcome"}),

		Degraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "covercheck_admission_degraded_total",
			Help: "Admission checks answered by the local fallback after a shared store failure",
		}, []string{"tier"}),

		StoreLatencyMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "covercheck_admission_store_duration_ms",
			Help:    "Latency of shared admission store calls in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}),
	}
}

// ObserveDecision records one admission decision.
func (m *Metrics) ObserveDecision(tier string, allowed bool) {
	if m != nil {
		outcome := "allowed"
		if !allowed {
			outcome = "denied"
		}
		m.Decisions.WithLabelValues(tier, outcome).Inc()
	}
}

// ObserveDegraded records a check served by the fallback store.
func (m *Metrics) ObserveDegraded(tier string) {
	if m != nil {
		m.Degraded.WithLabelValues(tier).Inc()
	}
}

// ObserveStoreLatency records one shared store round trip.
func (m *Metrics) ObserveStoreLatency(d time.Duration) {
	if m != nil {
		m.StoreLatencyMs.Observe(float64(d.Microseconds()) / 1000.0)
	}
}
