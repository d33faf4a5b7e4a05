// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the optimization service updates.
type Metrics struct {
	// LoopsActive tracks live loop sessions.
	LoopsActive prometheus.Gauge
	// SuggestionsTotal counts candidate batches served.
	SuggestionsTotal prometheus.Counter
	// ObservationsTotal counts externally submitted results.
	ObservationsTotal prometheus.Counter
	// ProtocolViolationsTotal counts out-of-order caller requests.
	ProtocolViolationsTotal prometheus.Counter
	// SuggestDuration observes the model refit plus acquisition
	// optimization time per proposal.
	SuggestDuration prometheus.Histogram
}

// New registers the service collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoopsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "optloop",
			Name:      "loops_active",
			Help:      "Number of live optimization loop sessions.",
		}),
		SuggestionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "optloop",
			Name:      "suggestions_total",
			Help:      "Candidate batches proposed across all loops.",
		}),
		ObservationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "optloop",
			Name:      "observations_total",
			Help:      "Externally evaluated results recorded across all loops.",
		}),
		ProtocolViolationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "optloop",
			Name:      "protocol_violations_total",
			Help:      "Requests rejected for violating the loop state machine.",
		}),
		SuggestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "optloop",
			Name:      "suggest_duration_seconds",
			Help:      "Model refit plus acquisition optimization time per proposal.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}
