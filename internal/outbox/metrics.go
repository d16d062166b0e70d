package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbox relay throughput and lag.
type Metrics struct {
	Relayed  prometheus.Counter
	Failures prometheus.Counter
	Lag      prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Relayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "apb_outbox_relayed_total",
			Help: "Total outbox entries produced to Kafka",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "apb_outbox_relay_failures_total",
			Help: "Total outbox batches that failed to produce",
		}),
		Lag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "apb_outbox_lag_seconds",
			Help:    "Age of the oldest entry in each relayed batch",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

func (m *Metrics) observeBatch(n int, lag time.Duration) {
	if m != nil {
		m.Relayed.Add(float64(n))
		m.Lag.Observe(lag.Seconds())
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.Failures.Inc()
	}
}
