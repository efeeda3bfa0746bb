package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultOutboxBatch = 100

// OutboxRepository хранит уведомления в outbox_messages; запись делается в той же базе, что и заказ.
type OutboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{db: store.DB(), now: time.Now}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		string(domain.OutboxPending), msg.CreatedAt, now); err != nil {
		if isUniqueViolation(err) {
			return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already enqueued: %w", msg.ID, err)
		}
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}
	return msg, nil
}

// PullPending читает самые старые ожидающие записи по частичному индексу idx_outbox_pending.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2
	`, string(domain.OutboxPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, msg)
	}
	return batch, rows.Err()
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		pending int
		oldest  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*), min(created_at) FROM outbox_messages WHERE status = $1
	`, string(domain.OutboxPending)).Scan(&pending, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}

	stats := domain.OutboxStats{PendingCount: pending}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.settle(ctx, id, domain.OutboxSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.settle(ctx, id, domain.OutboxFailed)
}

func (r *OutboxRepository) settle(ctx context.Context, id string, status domain.OutboxStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1
		RETURNING attempt_count
	`, id, string(status), r.now().UTC()).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOutboxMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("mark outbox %s as %s: %w", id, status, err)
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
