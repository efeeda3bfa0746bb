package domain

import "time"

// OutboxStatus — состояние записи transactional outbox.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	// OutboxFailed — попытки исчерпаны, запись передана в DLQ или брошена.
	OutboxFailed OutboxStatus = "failed"
)

// OutboxMessage — уведомление, сохранённое вместе с бизнес-изменением и ожидающее публикации.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats — размер backlog и возраст самой старой ожидающей записи.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// Age возвращает возраст самой старой записи на момент now; для пустого backlog ноль.
func (s OutboxStats) Age(now time.Time) time.Duration {
	if s.PendingCount == 0 || s.OldestPendingAt.IsZero() {
		return 0
	}
	return max(now.Sub(s.OldestPendingAt), 0)
}
