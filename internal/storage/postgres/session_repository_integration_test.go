package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestPaymentSessionRepository_PostgresFlow(t *testing.T) {
	store := openMigratedStore(t)
	repo := NewPaymentSessionRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	session := domain.PaymentSession{
		ID:          "cs_int_1",
		UserID:      "user-1",
		AmountMinor: 1000,
		Status:      domain.SessionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := repo.Create(ctx, session); !errors.Is(err, domain.ErrSessionAlreadyExists) {
		t.Fatalf("expected ErrSessionAlreadyExists, got %v", err)
	}

	got, err := repo.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.AmountMinor != 1000 || got.Status != domain.SessionStatusPending {
		t.Fatalf("unexpected session: %+v", got)
	}

	completed, err := repo.UpdateStatus(ctx, session.ID, domain.SessionStatusPending, domain.SessionStatusComplete)
	if err != nil {
		t.Fatalf("complete session: %v", err)
	}
	if completed.Status != domain.SessionStatusComplete {
		t.Fatalf("unexpected status: %s", completed.Status)
	}

	current, err := repo.UpdateStatus(ctx, session.ID, domain.SessionStatusPending, domain.SessionStatusCancelled)
	if !errors.Is(err, domain.ErrSessionTransition) {
		t.Fatalf("expected ErrSessionTransition on stale CAS, got %v", err)
	}
	if current.Status != domain.SessionStatusComplete {
		t.Fatalf("expected current status complete, got %s", current.Status)
	}

	if _, err := repo.UpdateStatus(ctx, session.ID, domain.SessionStatusComplete, domain.SessionStatusPending); !errors.Is(err, domain.ErrSessionTransition) {
		t.Fatalf("expected ErrSessionTransition on illegal transition, got %v", err)
	}

	if _, err := repo.Get(ctx, "cs_missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, "cs_missing", domain.SessionStatusPending, domain.SessionStatusComplete); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on update, got %v", err)
	}
}
