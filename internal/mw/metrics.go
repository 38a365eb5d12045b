package mw

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unajo/vt/internal/httpx"
)

type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	InFlight *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vt_http_requests_total",
			Help: "Total HTTP requests handled",
		}, []string{"endpoint", "method", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "vt_http_request_duration_seconds",
			Help: "HTTP request latency",
			// Delay calls routinely take whole seconds.
			Buckets: []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"endpoint", "method"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vt_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}, []string{"endpoint"}),
	}
	reg.MustRegister(m.Requests, m.Latency, m.InFlight)
	return m
}

type endpointKeyType string

const endpointKey endpointKeyType = "endpoint"

func WithEndpoint(next http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(context.WithValue(r.Context(), endpointKey, name))
		next.ServeHTTP(w, r)
	})
}

func EndpointName(ctx context.Context) string {
	if v, ok := ctx.Value(endpointKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

func Instrument(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := EndpointName(r.Context())
		inflight := m.InFlight.WithLabelValues(endpoint)
		inflight.Inc()
		defer inflight.Dec()

		sw := &httpx.StatusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		m.Requests.WithLabelValues(endpoint, r.Method, strconv.Itoa(sw.Code())).Inc()
		m.Latency.WithLabelValues(endpoint, r.Method).Observe(time.Since(start).Seconds())
	})
}
