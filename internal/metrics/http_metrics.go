package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics — метрики HTTP API по маршрутам.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics регистрирует HTTP-метрики в переданном registerer.
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &HTTPMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_http_requests_total",
			Help: "HTTP requests grouped by method, route pattern and status code",
		}, []string{"method", "route", "code"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_http_request_duration_seconds",
			Help:    "HTTP request latency grouped by method and route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Observe фиксирует один обработанный запрос.
func (m *HTTPMetrics) Observe(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}
