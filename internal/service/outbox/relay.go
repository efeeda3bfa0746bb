// Package outbox доставляет уведомления из transactional outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 50 * time.Millisecond
	maxRetryDelay       = 5 * time.Second
)

// Config — параметры доставки. Нулевые значения заменяются значениями по умолчанию,
// RetryDelay < 0 отключает паузу между попытками.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// Option настраивает Relay.
type Option func(*Relay)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDeadLetters задаёт publisher для сообщений, исчерпавших попытки.
func WithDeadLetters(publisher domain.OutboxPublisher) Option {
	return func(r *Relay) {
		r.deadLetters = publisher
	}
}

// WithMetrics подключает метрики воркеров.
func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// BatchResult — итог одного прохода по outbox.
type BatchResult struct {
	Sent         int
	DeadLettered int
	Failed       int
}

// Relay публикует pending-уведомления из outbox. Сообщение, не доставленное за MaxAttempts
// попыток, уходит в DLQ и помечается failed, чтобы не блокировать очередь.
type Relay struct {
	repo        domain.OutboxRepository
	publisher   domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	cfg         Config
	logger      *log.Entry
	metrics     *metrics.WorkerMetrics
	now         func() time.Time
}

// NewRelay создаёт relay поверх outbox репозитория.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config, opts ...Option) *Relay {
	r := &Relay{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    log.WithField("component", "outbox-relay"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run опрашивает outbox каждые PollInterval до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("outbox relay is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Warn("outbox flush failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush доставляет одну пачку pending-сообщений в порядке создания.
func (r *Relay) Flush(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	if err := ctx.Err(); err != nil {
		return result, err
	}

	batch, err := r.repo.PullPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("pull pending: %w", err)
	}
	defer r.reportBacklog(ctx)

	for _, msg := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		fields := log.Fields{"outbox_id": msg.ID, "event_type": msg.EventType}
		deliverErr := r.deliver(ctx, msg)
		if deliverErr == nil {
			result.Sent++
			if err := r.repo.MarkSent(ctx, msg.ID); err != nil {
				r.logger.WithError(err).WithFields(fields).Warn("mark outbox message sent")
			}
			continue
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		r.logger.WithError(deliverErr).WithFields(fields).Error("notification undeliverable")
		if r.bury(msg, deliverErr) {
			result.DeadLettered++
		}
		result.Failed++
		if err := r.repo.MarkFailed(ctx, msg.ID); err != nil {
			r.logger.WithError(err).WithFields(fields).Warn("mark outbox message failed")
		}
	}

	if len(batch) > 0 {
		r.logger.WithFields(log.Fields{
			"sent":          result.Sent,
			"failed":        result.Failed,
			"dead_lettered": result.DeadLettered,
		}).Debug("outbox batch flushed")
	}
	return result, nil
}

// deliver публикует сообщение с экспоненциальной паузой между попытками.
func (r *Relay) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		lastErr = r.publisher.Publish(msg)
		if lastErr == nil {
			r.metrics.RecordDelivery(msg.EventType, metrics.DeliverySent)
			return nil
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}
		r.metrics.RecordDelivery(msg.EventType, metrics.DeliveryRetry)

		if delay := r.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	r.metrics.RecordDelivery(msg.EventType, metrics.DeliveryFailed)
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// backoff возвращает паузу после attempt-й неудачи: RetryDelay * 2^(attempt-1), не больше maxRetryDelay.
func (r *Relay) backoff(attempt int) time.Duration {
	if r.cfg.RetryDelay <= 0 {
		return 0
	}
	delay := r.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		if delay >= maxRetryDelay/2 {
			return maxRetryDelay
		}
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// bury отправляет сообщение в DLQ; false, если DLQ не настроен или не принял запись.
func (r *Relay) bury(msg domain.OutboxMessage, cause error) bool {
	if r.deadLetters == nil {
		return false
	}

	envelope, err := NewDeadLetter(msg, cause, r.cfg.MaxAttempts, r.now()).Envelope()
	if err == nil {
		err = r.deadLetters.Publish(envelope)
	}
	r.metrics.RecordDeadLetter(msg.EventType, err == nil)
	if err != nil {
		r.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("dead letter publish failed")
		return false
	}
	return true
}

func (r *Relay) reportBacklog(ctx context.Context) {
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Debug("collect outbox backlog stats")
		return
	}
	r.metrics.SetBacklog(stats.PendingCount, stats.Age(r.now()))
}
