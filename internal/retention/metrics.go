package retention

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the retention job.
type Metrics struct {
	Sweeps        prometheus.Counter
	ClaimsDeleted prometheus.Counter
	VotesDeleted  prometheus.Counter
}

// NewMetrics creates and registers all retention metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Sweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covercheck_retention_sweeps_total",
			Help: "Total retention sweeps executed",
		}),
		ClaimsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covercheck_retention_claims_deleted_total",
			Help: "Total expired claims deleted by the retention job",
		}),
		VotesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "covercheck_retention_votes_deleted_total",
			Help: "Total dependent votes deleted by the retention job",
		}),
	}
}

// ObserveSweep records one completed sweep.
func (m *Metrics) ObserveSweep(claimsDeleted, votesDeleted int) {
	if m != nil {
		m.Sweeps.Inc()
		m.ClaimsDeleted.Add(float64(claimsDeleted))
		m.VotesDeleted.Add(float64(votesDeleted))
	}
}
