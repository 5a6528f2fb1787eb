package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the submission pipeline.
type Metrics struct {
	// Submissions by outcome: accepted, rate_limited, abuse_rejected,
	// duplicate, honeypot
	Outcomes *prometheus.CounterVec
}

// NewMetrics creates and registers all submission metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "covercheck_submissions_total",
			Help: "Total claim submissions by pipeline outcome",
		}, []string{"outcome"}),
	}
}

// ObserveOutcome records one submission outcome.
func (m *Metrics) ObserveOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}
