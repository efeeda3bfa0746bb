package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestOutboxRepository_EnqueueAssignsIdentity(t *testing.T) {
	repo := NewOutboxRepository()
	fixed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	saved, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.confirmation",
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, fixed, saved.CreatedAt)

	status, attempts, ok := repo.Status(saved.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OutboxPending, status)
	assert.Zero(t, attempts)
}

func TestOutboxRepository_PullOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	base := time.Now().UTC()

	for _, msg := range []domain.OutboxMessage{
		{ID: "late", CreatedAt: base},
		{ID: "tie-1", CreatedAt: base.Add(-time.Minute)},
		{ID: "tie-2", CreatedAt: base.Add(-time.Minute)},
		{ID: "oldest", CreatedAt: base.Add(-time.Hour)},
	} {
		_, err := repo.Enqueue(ctx, msg)
		require.NoError(t, err)
	}

	pending, err := repo.PullPending(ctx, 3)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, msg := range pending {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"oldest", "tie-1", "tie-2"}, ids)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.Equal(base.Add(-time.Hour)))
	assert.Equal(t, time.Hour, stats.Age(base))
}

func TestOutboxRepository_Settle(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	sent, err := repo.Enqueue(ctx, domain.OutboxMessage{EventType: "order.confirmation"})
	require.NoError(t, err)
	failed, err := repo.Enqueue(ctx, domain.OutboxMessage{EventType: "order.status_updated"})
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, sent.ID))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID))
	assert.Empty(t, repo.AllPending())

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.Zero(t, stats.Age(time.Now()))

	status, attempts, _ := repo.Status(failed.ID)
	assert.Equal(t, domain.OutboxFailed, status)
	assert.Equal(t, 1, attempts)

	err = repo.MarkSent(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOutboxMessageNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
