package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultVerifyTimeout       = 10 * time.Second
	defaultBreakerMaxFailures  = 5
	defaultBreakerResetTimeout = 30 * time.Second
)

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт logger менеджера.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics задаёт метрики операций над сессиями.
func WithMetrics(cm *metrics.CheckoutMetrics) Option {
	return func(m *Manager) {
		m.metrics = cm
	}
}

// WithVerifyTimeout ограничивает проверку оплаты у провайдера в Complete.
func WithVerifyTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.verifyTimeout = timeout
		}
	}
}

// WithRetryConfig задаёт повторы чтения статуса у провайдера.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(m *Manager) {
		m.retry = cfg
	}
}

// WithCircuitBreaker подменяет circuit breaker вызовов провайдера.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(m *Manager) {
		if cb != nil {
			m.breaker = cb
		}
	}
}

// Manager ведёт локальные зеркала платёжных сессий и сверяет их с провайдером.
//
// Локальный статус меняется только через compare-and-set в репозитории и только по
// разрешённым переходам, поэтому повторные и параллельные вызовы безопасны.
type Manager struct {
	sessions      domain.PaymentSessionRepository
	processor     domain.PaymentProcessor
	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	breaker       *CircuitBreaker
	retry         RetryConfig
	verifyTimeout time.Duration
	now           func() time.Time
}

// NewManager создаёт менеджер платёжных сессий.
func NewManager(sessions domain.PaymentSessionRepository, processor domain.PaymentProcessor, opts ...Option) *Manager {
	m := &Manager{
		sessions:      sessions,
		processor:     processor,
		retry:         DefaultRetryConfig(),
		verifyTimeout: defaultVerifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "payment-manager")
	}
	if m.breaker == nil {
		m.breaker = NewCircuitBreaker(defaultBreakerMaxFailures, defaultBreakerResetTimeout, m.logger)
	}
	return m
}

// CreateSession открывает сессию у провайдера и сохраняет её в статусе pending.
// Сбой провайдера не повторяется автоматически: повтор мог бы открыть вторую сессию.
func (m *Manager) CreateSession(ctx context.Context, userID string, amountMinor int64) (domain.PaymentSession, error) {
	if amountMinor <= 0 {
		return domain.PaymentSession{}, domain.ErrSessionAmountInvalid
	}
	if userID == "" {
		return domain.PaymentSession{}, domain.ErrUserRequired
	}

	var sessionID string
	err := m.breaker.Execute("create_session", func() error {
		var err error
		sessionID, err = m.processor.CreateCheckoutSession(ctx, domain.CheckoutSessionRequest{
			UserID:      userID,
			AmountMinor: amountMinor,
		})
		return err
	})
	if err != nil {
		m.metrics.RecordSessionOperation("create", "upstream_error")
		m.logger.WithError(err).WithField("user_id", userID).Warn("payment processor failed to create session")
		return domain.PaymentSession{}, fmt.Errorf("%w: %v", domain.ErrProcessorUnavailable, err)
	}
	if sessionID == "" {
		m.metrics.RecordSessionOperation("create", "upstream_error")
		return domain.PaymentSession{}, fmt.Errorf("%w: empty session id", domain.ErrProcessorUnavailable)
	}

	now := m.now().UTC()
	session := domain.PaymentSession{
		ID:          sessionID,
		UserID:      userID,
		AmountMinor: amountMinor,
		Status:      domain.SessionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		m.metrics.RecordSessionOperation("create", "store_error")
		return domain.PaymentSession{}, fmt.Errorf("store payment session: %w", err)
	}

	m.metrics.RecordSessionOperation("create", "ok")
	m.logger.WithFields(log.Fields{
		"session_id":   session.ID,
		"user_id":      userID,
		"amount_minor": amountMinor,
	}).Info("payment session created")
	return session, nil
}

// GetStatus сверяет локальную запись с провайдером и возвращает итоговую запись.
// Недопустимый переход, сообщённый провайдером, логируется, локальный статус сохраняется.
func (m *Manager) GetStatus(ctx context.Context, sessionID string) (domain.PaymentSession, error) {
	local, err := m.local(ctx, sessionID)
	if err != nil {
		return domain.PaymentSession{}, err
	}

	upstream, err := m.queryProcessor(ctx, sessionID)
	if err != nil {
		m.metrics.RecordSessionOperation("status", "upstream_error")
		return domain.PaymentSession{}, fmt.Errorf("%w: %v", domain.ErrProcessorUnavailable, err)
	}

	session, err := m.mirror(ctx, local, upstream)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	m.metrics.RecordSessionOperation("status", "ok")
	return session, nil
}

// Sync повторно запрашивает статус у провайдера по сигналу извне (событие из брокера).
// Содержимое сигнала не используется: источник истины только провайдер.
func (m *Manager) Sync(ctx context.Context, sessionID string) (domain.PaymentSession, error) {
	return m.GetStatus(ctx, sessionID)
}

// Complete — идемпотентная точка подтверждения оплаты.
// Уже завершённая сессия возвращается без обращения к провайдеру.
func (m *Manager) Complete(ctx context.Context, sessionID string) (domain.PaymentSession, error) {
	local, err := m.local(ctx, sessionID)
	if err != nil {
		return domain.PaymentSession{}, err
	}

	logger := m.logger.WithField("session_id", sessionID)

	switch local.Status {
	case domain.SessionStatusComplete:
		m.metrics.RecordSessionOperation("complete", "already_complete")
		return local, nil
	case domain.SessionStatusCancelled, domain.SessionStatusRefunded:
		m.metrics.RecordSessionOperation("complete", "conflict")
		return domain.PaymentSession{}, fmt.Errorf("%w: session is %s", domain.ErrSessionTransition, local.Status)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
	upstream, err := m.queryProcessor(verifyCtx, sessionID)
	cancel()
	if err != nil {
		m.metrics.RecordSessionOperation("complete", "upstream_error")
		logger.WithError(err).Warn("payment verification failed")
		return domain.PaymentSession{}, fmt.Errorf("%w: verify session: %v", domain.ErrProcessorUnavailable, err)
	}

	if upstream != domain.SessionStatusComplete {
		if _, mirrorErr := m.mirror(ctx, local, upstream); mirrorErr != nil {
			logger.WithError(mirrorErr).Warn("failed to mirror upstream session status")
		}
		m.metrics.RecordSessionOperation("complete", "not_complete")
		return domain.PaymentSession{}, fmt.Errorf("%w: processor reports %s", domain.ErrSessionNotComplete, upstream)
	}

	updated, err := m.sessions.UpdateStatus(ctx, sessionID, domain.SessionStatusPending, domain.SessionStatusComplete)
	if err != nil {
		// Параллельный Complete успел первым: результат тот же.
		if errors.Is(err, domain.ErrSessionTransition) && updated.Status == domain.SessionStatusComplete {
			m.metrics.RecordSessionOperation("complete", "already_complete")
			return updated, nil
		}
		m.metrics.RecordSessionOperation("complete", "store_error")
		return domain.PaymentSession{}, fmt.Errorf("complete payment session: %w", err)
	}

	m.metrics.RecordSessionOperation("complete", "ok")
	logger.Info("payment session completed")
	return updated, nil
}

// Owned возвращает локальную запись, если сессия создана userID.
// Чужая сессия неотличима от отсутствующей.
func (m *Manager) Owned(ctx context.Context, sessionID, userID string) (domain.PaymentSession, error) {
	session, err := m.local(ctx, sessionID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if session.UserID != userID {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// RequireCompleted проверяет по локальной записи, что сессия оплачена.
// Отсутствующая или незавершённая сессия даёт ErrPaymentRequired.
func (m *Manager) RequireCompleted(ctx context.Context, sessionID string) (domain.PaymentSession, error) {
	if sessionID == "" {
		return domain.PaymentSession{}, domain.ErrPaymentRequired
	}

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.PaymentSession{}, fmt.Errorf("%w: session %s not found", domain.ErrPaymentRequired, sessionID)
		}
		return domain.PaymentSession{}, fmt.Errorf("get payment session: %w", err)
	}
	if session.Status != domain.SessionStatusComplete {
		return domain.PaymentSession{}, fmt.Errorf("%w: session %s is %s", domain.ErrPaymentRequired, sessionID, session.Status)
	}
	return session, nil
}

func (m *Manager) local(ctx context.Context, sessionID string) (domain.PaymentSession, error) {
	if sessionID == "" {
		return domain.PaymentSession{}, domain.ErrSessionIDRequired
	}
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.PaymentSession{}, err
		}
		return domain.PaymentSession{}, fmt.Errorf("get payment session: %w", err)
	}
	return session, nil
}

func (m *Manager) queryProcessor(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	var status domain.SessionStatus
	err := retry(ctx, m.retry, m.logger.WithField("session_id", sessionID), "get_session_status", func(ctx context.Context) error {
		return m.breaker.Execute("get_session_status", func() error {
			s, err := m.processor.GetSessionStatus(ctx, sessionID)
			if err != nil {
				return err
			}
			if !s.Valid() {
				return fmt.Errorf("unknown session status %q", s)
			}
			status = s
			return nil
		})
	})
	return status, err
}

// mirror переносит статус провайдера в локальную запись, если переход разрешён.
func (m *Manager) mirror(ctx context.Context, local domain.PaymentSession, upstream domain.SessionStatus) (domain.PaymentSession, error) {
	if local.Status == upstream {
		return local, nil
	}
	if !domain.CanTransitionSession(local.Status, upstream) {
		m.logger.WithFields(log.Fields{
			"session_id": local.ID,
			"local":      local.Status,
			"upstream":   upstream,
		}).Warn("ignoring illegal payment session transition reported by processor")
		return local, nil
	}

	updated, err := m.sessions.UpdateStatus(ctx, local.ID, local.Status, upstream)
	if err != nil {
		// Запись уже изменил параллельный вызов: возвращаем актуальное состояние.
		if errors.Is(err, domain.ErrSessionTransition) && updated.ID != "" {
			return updated, nil
		}
		return domain.PaymentSession{}, fmt.Errorf("mirror payment session status: %w", err)
	}

	m.logger.WithFields(log.Fields{
		"session_id": local.ID,
		"from":       local.Status,
		"to":         upstream,
	}).Info("payment session status mirrored")
	return updated, nil
}
