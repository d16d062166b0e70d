package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the bulletin module.
type Metrics struct {
	// Write outcomes by operation ("create", "update") and outcome code
	Writes *prometheus.CounterVec

	// Write latency including the transaction and publish
	WriteLatency *prometheus.HistogramVec

	// Number of records returned by proximity queries
	NearbyResults prometheus.Histogram

	// Events handed to the publisher after commit
	EventsPublished *prometheus.CounterVec
}

// New registers the bulletin metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Writes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apb_bulletin_writes_total",
			Help: "Total bulletin writes by operation and outcome",
		}, []string{"op", "outcome"}),

		WriteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apb_bulletin_write_duration_seconds",
			Help:    "Duration of bulletin writes from validation to publish",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),

		NearbyResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "apb_bulletin_nearby_results",
			Help:    "Number of bulletins returned by proximity queries",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apb_bulletin_events_published_total",
			Help: "Total lifecycle events handed to live delivery by event type",
		}, []string{"event_type"}),
	}
}

// ObserveWrite records one write and its duration.
func (m *Metrics) ObserveWrite(op, outcome string, d time.Duration) {
	if m != nil {
		m.Writes.WithLabelValues(op, outcome).Inc()
		m.WriteLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// ObserveNearby records the size of a proximity result.
func (m *Metrics) ObserveNearby(n int) {
	if m != nil {
		m.NearbyResults.Observe(float64(n))
	}
}

// IncrementPublished records an event handed to the publisher.
func (m *Metrics) IncrementPublished(eventType string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(eventType).Inc()
	}
}
