package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// TimelineRepository пишет историю заказов в timeline_events. Порядок равных по времени событий
// держит BIGSERIAL id.
type TimelineRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTimelineRepository(store *Store) *TimelineRepository {
	return &TimelineRepository{db: store.DB(), now: time.Now}
}

// Append сохраняет событие; без Occurred берётся текущее время.
func (r *TimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`,
		event.OrderID, event.Type, event.Reason, event.Occurred.UTC())
	if err != nil {
		return fmt.Errorf("append %s to timeline of %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (r *TimelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT type, reason, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("query timeline of %s: %w", orderID, err)
	}
	defer rows.Close()

	feed := []domain.TimelineEvent{}
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		if err := rows.Scan(&event.Type, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		feed = append(feed, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of %s: %w", orderID, err)
	}
	return feed, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
