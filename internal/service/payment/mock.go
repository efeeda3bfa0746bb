package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockProcessor — конфигурируемый in-process провайдер для разработки и тестов.
// Оплату подтверждает вызов Confirm, как если бы покупатель прошёл страницу провайдера.
type MockProcessor struct {
	mu       sync.Mutex
	sessions map[string]mockSession

	// CreateErr и StatusErr, если заданы, возвращаются вместо ответа.
	CreateErr error
	StatusErr error
	// StatusDelay задерживает ответ о статусе; ожидание прерывается ctx.
	StatusDelay time.Duration

	CreateCalls int
	StatusCalls int
}

type mockSession struct {
	request domain.CheckoutSessionRequest
	status  domain.SessionStatus
}

// NewMockProcessor возвращает mock с успешным сценарием по умолчанию.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{sessions: make(map[string]mockSession)}
}

// CreateCheckoutSession открывает сессию в статусе pending.
func (m *MockProcessor) CreateCheckoutSession(_ context.Context, req domain.CheckoutSessionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return "", m.CreateErr
	}

	id := "cs_mock_" + uuid.NewString()
	m.sessions[id] = mockSession{request: req, status: domain.SessionStatusPending}
	return id, nil
}

// GetSessionStatus возвращает статус сессии или ошибку для неизвестного идентификатора.
func (m *MockProcessor) GetSessionStatus(ctx context.Context, sessionID string) (domain.SessionStatus, error) {
	m.mu.Lock()
	m.StatusCalls++
	delay := m.StatusDelay
	statusErr := m.StatusErr
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	if statusErr != nil {
		return "", statusErr
	}
	if !ok {
		return "", fmt.Errorf("mock processor: no such session %q", sessionID)
	}
	return session.status, nil
}

// Confirm отмечает сессию оплаченной.
func (m *MockProcessor) Confirm(sessionID string) error {
	return m.SetStatus(sessionID, domain.SessionStatusComplete)
}

// Cancel отмечает сессию отменённой.
func (m *MockProcessor) Cancel(sessionID string) error {
	return m.SetStatus(sessionID, domain.SessionStatusCancelled)
}

// SetStatus задаёт произвольный статус, в том числе недопустимый переход.
func (m *MockProcessor) SetStatus(sessionID string, status domain.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("mock processor: no such session %q", sessionID)
	}
	session.status = status
	m.sessions[sessionID] = session
	return nil
}

// Request возвращает параметры, с которыми была открыта сессия.
func (m *MockProcessor) Request(sessionID string) (domain.CheckoutSessionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	return session.request, ok
}

// Calls возвращает число вызовов создания и чтения статуса.
func (m *MockProcessor) Calls() (create, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls, m.StatusCalls
}

// SetStatusErr включает или выключает ошибку чтения статуса.
func (m *MockProcessor) SetStatusErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusErr = err
}

var _ domain.PaymentProcessor = (*MockProcessor)(nil)
