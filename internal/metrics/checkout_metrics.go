package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы оформления заказа.
const (
	CheckoutCommitted = "committed"
	CheckoutRejected  = "rejected"
	CheckoutReplayed  = "replayed"
)

// CheckoutMetrics содержит метрики корзины, платёжных сессий и оформления заказов.
// Методы безопасны для nil-получателя: сервисы в тестах работают без метрик.
type CheckoutMetrics struct {
	// Оформление заказа
	checkoutTotal    *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec
	rejections       *prometheus.CounterVec
	inFlight         prometheus.Gauge

	// Платёжные сессии
	sessionOps *prometheus.CounterVec

	// Корзина
	cartCache *prometheus.CounterVec

	statusUpdates  *prometheus.CounterVec
	timelineEvents prometheus.Counter
}

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_orders_total",
			Help: "Total number of checkout attempts grouped by outcome",
		}, []string{"outcome"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Duration of order finalization in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		rejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_rejections_total",
			Help: "Total number of rejected checkouts grouped by step",
		}, []string{"step"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_in_flight",
			Help: "Number of order finalizations currently running",
		}),
		sessionOps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_payment_session_operations_total",
			Help: "Payment session operations grouped by operation and result",
		}, []string{"operation", "result"}),
		cartCache: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_cart_cache_requests_total",
			Help: "Cart cache lookups grouped by result",
		}, []string{"result"}),
		statusUpdates: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_order_status_updates_total",
			Help: "Order status updates grouped by target status",
		}, []string{"status"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
	}
}

// CheckoutStarted отмечает начало оформления заказа.
func (m *CheckoutMetrics) CheckoutStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// CheckoutFinished фиксирует исход и длительность оформления.
func (m *CheckoutMetrics) CheckoutFinished(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.checkoutTotal.WithLabelValues(outcome).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordRejection увеличивает счётчик отказов на шаге.
func (m *CheckoutMetrics) RecordRejection(step string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(step).Inc()
}

// RecordStepDuration записывает время выполнения шага.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordSessionOperation считает операции над платёжными сессиями.
func (m *CheckoutMetrics) RecordSessionOperation(operation, result string) {
	if m == nil {
		return
	}
	m.sessionOps.WithLabelValues(operation, result).Inc()
}

// RecordCartCache считает обращения к кэшу корзин: hit, miss или error.
func (m *CheckoutMetrics) RecordCartCache(result string) {
	if m == nil {
		return
	}
	m.cartCache.WithLabelValues(result).Inc()
}

// RecordStatusUpdate считает смены статуса заказа.
func (m *CheckoutMetrics) RecordStatusUpdate(status string) {
	if m == nil {
		return
	}
	m.statusUpdates.WithLabelValues(status).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}
