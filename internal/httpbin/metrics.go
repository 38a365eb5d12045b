package httpbin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Calls    *prometheus.CounterVec
	Duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_upstream_calls_total",
			Help: "Calls made to the upstream delay service by outcome",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vt_upstream_call_duration_seconds",
			Help:    "Upstream delay call latency",
			Buckets: []float64{.01, .1, .5, 1, 2, 5, 10, 30, 60},
		}),
	}
	reg.MustRegister(m.Calls, m.Duration)
	return m
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(outcome).Inc()
	if outcome != outcomeRejected {
		m.Duration.Observe(d.Seconds())
	}
}
