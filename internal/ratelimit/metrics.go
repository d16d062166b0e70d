package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections *prometheus.CounterVec
	Failures   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "apb_ratelimit_rejections_total",
			Help: "Requests rejected by a rate limit rule",
		}, []string{"rule"}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "apb_ratelimit_check_failures_total",
			Help: "Rate limit checks that failed and let the request through",
		}),
	}
}

func (m *Metrics) rejected(rule string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(rule).Inc()
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.Failures.Inc()
}
