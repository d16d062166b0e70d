package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for live delivery.
type Metrics struct {
	// Connections currently admitted
	Connections prometheus.Gauge

	// Admission attempts by outcome ("admitted", "rejected", "timeout")
	Admissions *prometheus.CounterVec

	// Frames queued for delivery
	Deliveries prometheus.Counter

	// Connections force-closed because their queue overflowed
	SlowConsumers prometheus.Counter

	// Events received from or sent to peer instances
	RelayEvents *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "apb_live_connections",
			Help: "Number of admitted live connections",
		}),
		Admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apb_live_admissions_total",
			Help: "Live connection admission attempts by outcome",
		}, []string{"outcome"}),
		Deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "apb_live_deliveries_total",
			Help: "Total event frames queued to live connections",
		}),
		SlowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Name: "apb_live_slow_consumer_disconnects_total",
			Help: "Live connections closed because they could not keep up",
		}),
		RelayEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apb_live_relay_events_total",
			Help: "Events exchanged with peer instances by direction",
		}, []string{"direction"}),
	}
}

func (m *Metrics) admission(outcome string) {
	if m != nil {
		m.Admissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) delivered(n int) {
	if m != nil {
		m.Deliveries.Add(float64(n))
	}
}

func (m *Metrics) slowConsumer() {
	if m != nil {
		m.SlowConsumers.Inc()
	}
}

func (m *Metrics) relayed(direction string) {
	if m != nil {
		m.RelayEvents.WithLabelValues(direction).Inc()
	}
}
