package payment

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// ErrCircuitOpen — вызов отклонён без обращения к провайдеру.
var ErrCircuitOpen = errors.New("payment processor circuit is open")

// RetryConfig задаёт повторы чтения статуса у провайдера.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// policy строит экспоненциальную задержку без джиттера и без общего лимита времени:
// длительность ограничивают MaxAttempts и ctx.
func (c RetryConfig) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = max(c.BackoffFactor, 1)
	exp.MaxInterval = c.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = max(c.InitialDelay, time.Second)
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := uint64(max(c.MaxAttempts, 1) - 1)
	return backoff.WithContext(backoff.WithMaxRetries(exp, retries), ctx)
}

// retry повторяет fn, пока ошибка временная. Отмена ctx прерывает ожидание.
func retry(ctx context.Context, cfg RetryConfig, logger *log.Entry, operation string, fn func(context.Context) error) error {
	var (
		attempt int
		lastErr error
	)
	err := backoff.RetryNotify(func() error {
		attempt++
		lastErr = fn(ctx)
		if lastErr != nil && !shouldRetry(ctx, lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, cfg.policy(ctx), func(err error, delay time.Duration) {
		logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("processor call failed, retrying")
	})

	switch {
	case err == nil:
		if attempt > 1 {
			logger.WithFields(log.Fields{"operation": operation, "attempt": attempt}).Info("processor call succeeded after retry")
		}
		return nil
	case ctx.Err() != nil && lastErr != nil && !errors.Is(lastErr, ctx.Err()):
		return errors.Join(lastErr, ctx.Err())
	default:
		if shouldRetry(ctx, err) {
			logger.WithError(err).WithFields(log.Fields{"operation": operation, "attempts": attempt}).Error("processor call failed after all retries")
		}
		return err
	}
}

// shouldRetry отсекает ошибки, которые повтор не исправит.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, ErrCircuitOpen) &&
		!errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, domain.ErrInvalidArgument)
}

// CircuitState — состояние breaker: closed, half-open или open.
type CircuitState = gobreaker.State

const (
	CircuitClosed   = gobreaker.StateClosed
	CircuitHalfOpen = gobreaker.StateHalfOpen
	CircuitOpen     = gobreaker.StateOpen
)

// CircuitBreaker размыкает цепь после maxFailures ошибок подряд и через resetTimeout
// пропускает один пробный вызов.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker[struct{}]
	logger *log.Entry
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	threshold := uint32(maxFailures)

	return &CircuitBreaker{
		logger: logger,
		cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "payment-processor",
			MaxRequests: 1,
			Timeout:     resetTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= threshold },
			// Отмена на стороне клиента не говорит о здоровье провайдера.
			IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, context.Canceled) },
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(log.Fields{"breaker": name, "from": from.String()}).Warnf("circuit breaker %s", to)
			},
		}),
	}
}

func (b *CircuitBreaker) State() CircuitState {
	return b.cb.State()
}

// Execute вызывает fn, если цепь замкнута или идёт пробный вызов.
func (b *CircuitBreaker) Execute(operation string, fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.WithField("operation", operation).Debug("call rejected by open circuit")
		return ErrCircuitOpen
	}
	return err
}
