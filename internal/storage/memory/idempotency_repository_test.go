package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, " order-key ", "hash-1", ttl)
	require.NoError(t, err)
	assert.Equal(t, "order-key", created.Key)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	got, err := repo.Get(ctx, "order-key")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.RequestHash)
	assert.True(t, got.TTLAt.Equal(ttl))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "session-key", "hash-a", ttl)
	require.NoError(t, err)

	existing, err := repo.CreateProcessing(ctx, "session-key", "hash-a", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	assert.Equal(t, domain.IdempotencyStatusProcessing, existing.Status)

	_, err = repo.CreateProcessing(ctx, "session-key", "hash-b", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_ExpiredKeyIsReclaimed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "stale", "hash-old", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, "stale", []byte(`{"id":"o-1"}`), 201))

	reclaimed, err := repo.CreateProcessing(ctx, "stale", "hash-new", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "hash-new", reclaimed.RequestHash)
	assert.Equal(t, domain.IdempotencyStatusProcessing, reclaimed.Status)
	assert.Empty(t, reclaimed.ResponseBody)
}

func TestIdempotencyRepository_ReleaseOnlyProcessing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "pending", "h", ttl)
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "settled", "h", ttl)
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, "settled", []byte(`{}`), 201))

	require.NoError(t, repo.Release(ctx, "pending"))
	require.NoError(t, repo.Release(ctx, "settled"))
	require.NoError(t, repo.Release(ctx, "ghost"))
	assert.ErrorIs(t, repo.Release(ctx, " "), domain.ErrIdempotencyKeyRequired)

	_, err = repo.Get(ctx, "pending")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	settled, err := repo.Get(ctx, "settled")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, settled.Status)

	_, err = repo.CreateProcessing(ctx, "pending", "h", ttl)
	assert.NoError(t, err, "released key can be claimed again")
}

func TestIdempotencyRepository_MarkAndDeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for i, ttl := range []time.Time{now.Add(-3 * time.Minute), now.Add(-2 * time.Minute), now.Add(-time.Minute)} {
		_, err := repo.CreateProcessing(ctx, []string{"oldest", "older", "old"}[i], "h", ttl)
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "active", "h", now.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.MarkDone(ctx, "active", []byte(`{"ok":true}`), 200))
	require.NoError(t, repo.MarkFailed(ctx, "old", []byte(`{"error":"x"}`), 502))
	assert.ErrorIs(t, repo.MarkDone(ctx, "ghost", nil, 200), domain.ErrIdempotencyKeyNotFound)
	assert.ErrorIs(t, repo.MarkDone(ctx, " ", nil, 200), domain.ErrIdempotencyKeyRequired)

	active, err := repo.Get(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, active.Status)
	assert.Equal(t, 200, active.HTTPStatus)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.Get(ctx, "oldest")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	failed, err := repo.Get(ctx, "old")
	require.NoError(t, err, "newest expired key survives a limited batch")
	assert.Equal(t, domain.IdempotencyStatusFailed, failed.Status)

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = repo.Get(ctx, "active")
	assert.NoError(t, err)
}
