package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultPullLimit = 100

type outboxEntry struct {
	msg      domain.OutboxMessage
	status   domain.OutboxStatus
	attempts int
	seq      uint64
}

// OutboxRepository — outbox в памяти. Порядок выдачи: created_at, затем порядок вставки.
type OutboxRepository struct {
	mu      sync.Mutex
	entries map[string]*outboxEntry
	seq     uint64
	now     func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{entries: make(map[string]*outboxEntry), now: time.Now}
}

// Enqueue сохраняет сообщение как pending, присваивая ID и CreatedAt, если их нет.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now().UTC()
	}
	r.seq++
	r.entries[msg.ID] = &outboxEntry{msg: msg, status: domain.OutboxPending, seq: r.seq}
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}
	pending := r.AllPending()
	return pending[:min(limit, len(pending))], nil
}

func (r *OutboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	pending := r.AllPending()
	if len(pending) == 0 {
		return domain.OutboxStats{}, nil
	}
	return domain.OutboxStats{PendingCount: len(pending), OldestPendingAt: pending[0].CreatedAt}, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxFailed)
}

// Status возвращает состояние записи и число отметок по ней.
func (r *OutboxRepository) Status(id string) (domain.OutboxStatus, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return "", 0, false
	}
	return entry.status, entry.attempts, true
}

// AllPending возвращает копию всех ожидающих сообщений в порядке выдачи.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.Lock()
	pending := make([]*outboxEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.status == domain.OutboxPending {
			pending = append(pending, entry)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(pending, func(a, b *outboxEntry) int {
		if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]domain.OutboxMessage, len(pending))
	for i, entry := range pending {
		out[i] = entry.msg
	}
	return out
}

func (r *OutboxRepository) settle(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	entry.status = status
	entry.attempts++
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
