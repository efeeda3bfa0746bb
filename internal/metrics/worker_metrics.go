package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты доставки уведомления из outbox.
const (
	DeliverySent       = "sent"
	DeliveryRetry      = "retry"
	DeliveryFailed     = "failed"
	DeadLetterAccepted = "accepted"
	DeadLetterRejected = "rejected"
)

// WorkerMetrics — метрики фоновых воркеров: доставки уведомлений и очистки idempotency ключей.
// Методы безопасны для nil-получателя.
type WorkerMetrics struct {
	deliveries  *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
	backlog     prometheus.Gauge
	oldestAge   prometheus.Gauge

	purged    prometheus.Counter
	purgeRuns *prometheus.CounterVec
}

// NewWorkerMetrics регистрирует метрики воркеров в registerer.
func NewWorkerMetrics(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		deliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_deliveries_total",
			Help: "Outbox publish attempts grouped by event type and result",
		}, []string{"event_type", "result"}),
		deadLetters: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_outbox_dead_letters_total",
			Help: "Undeliverable notifications handed to the dead letter topic",
		}, []string{"event_type", "result"}),
		backlog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "checkout_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		purged: registerCounter(registerer, prometheus.CounterOpts{
			Name: "checkout_idempotency_keys_purged_total",
			Help: "Expired idempotency keys removed by the cleanup worker",
		}),
		purgeRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "checkout_idempotency_cleanup_runs_total",
			Help: "Idempotency cleanup runs grouped by result",
		}, []string{"result"}),
	}
}

// RecordDelivery учитывает одну попытку публикации.
func (m *WorkerMetrics) RecordDelivery(eventType, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(eventType, result).Inc()
}

// RecordDeadLetter учитывает передачу сообщения в DLQ.
func (m *WorkerMetrics) RecordDeadLetter(eventType string, accepted bool) {
	if m == nil {
		return
	}
	result := DeadLetterAccepted
	if !accepted {
		result = DeadLetterRejected
	}
	m.deadLetters.WithLabelValues(eventType, result).Inc()
}

// SetBacklog выставляет размер очереди и возраст самого старого сообщения.
func (m *WorkerMetrics) SetBacklog(pending int, oldest time.Duration) {
	if m == nil {
		return
	}
	m.backlog.Set(float64(pending))
	m.oldestAge.Set(max(oldest, 0).Seconds())
}

// RecordPurge учитывает проход очистки idempotency ключей.
func (m *WorkerMetrics) RecordPurge(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.purgeRuns.WithLabelValues("error").Inc()
		return
	}
	m.purgeRuns.WithLabelValues("ok").Inc()
	m.purged.Add(float64(deleted))
}
