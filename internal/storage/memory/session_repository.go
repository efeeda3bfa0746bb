package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type sessionRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.PaymentSession
}

// NewPaymentSessionRepository создаёт in-memory хранилище платёжных сессий.
func NewPaymentSessionRepository() domain.PaymentSessionRepository {
	return &sessionRepositoryInMemory{items: make(map[string]domain.PaymentSession)}
}

func (r *sessionRepositoryInMemory) Create(_ context.Context, session domain.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[session.ID]; exists {
		return domain.ErrSessionAlreadyExists
	}
	r.items[session.ID] = session
	return nil
}

func (r *sessionRepositoryInMemory) Get(_ context.Context, id string) (domain.PaymentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.items[id]
	if !ok {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *sessionRepositoryInMemory) UpdateStatus(_ context.Context, id string, from, to domain.SessionStatus) (domain.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.items[id]
	if !ok {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	if session.Status != from || !domain.CanTransitionSession(from, to) {
		return session, domain.ErrSessionTransition
	}
	session.Status = to
	session.UpdatedAt = time.Now().UTC()
	r.items[id] = session
	return session, nil
}

var _ domain.PaymentSessionRepository = (*sessionRepositoryInMemory)(nil)
