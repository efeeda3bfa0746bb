package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestPaymentSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPaymentSessionRepository()
	now := time.Now().UTC()

	session := domain.PaymentSession{ID: "cs_1", UserID: "u1", AmountMinor: 1000, Status: domain.SessionStatusPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(ctx, session))
	require.ErrorIs(t, repo.Create(ctx, session), domain.ErrSessionAlreadyExists)

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	updated, err := repo.UpdateStatus(ctx, "cs_1", domain.SessionStatusPending, domain.SessionStatusComplete)
	require.NoError(t, err)
	require.Equal(t, domain.SessionStatusComplete, updated.Status)

	// CAS с устаревшим from возвращает актуальную запись.
	current, err := repo.UpdateStatus(ctx, "cs_1", domain.SessionStatusPending, domain.SessionStatusCancelled)
	require.ErrorIs(t, err, domain.ErrSessionTransition)
	require.Equal(t, domain.SessionStatusComplete, current.Status)

	// Обратный переход запрещён.
	_, err = repo.UpdateStatus(ctx, "cs_1", domain.SessionStatusComplete, domain.SessionStatusPending)
	require.ErrorIs(t, err, domain.ErrSessionTransition)

	refunded, err := repo.UpdateStatus(ctx, "cs_1", domain.SessionStatusComplete, domain.SessionStatusRefunded)
	require.NoError(t, err)
	require.Equal(t, domain.SessionStatusRefunded, refunded.Status)

	_, err = repo.UpdateStatus(ctx, "missing", domain.SessionStatusPending, domain.SessionStatusComplete)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}
