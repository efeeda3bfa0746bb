package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// TimelineRepository хранит историю заказов в памяти, каждая лента уже отсортирована.
type TimelineRepository struct {
	mu    sync.RWMutex
	feeds map[string][]domain.TimelineEvent
}

func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{feeds: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	feed := r.feeds[event.OrderID]
	at, _ := slices.BinarySearchFunc(feed, event, func(existing, target domain.TimelineEvent) int {
		if existing.Occurred.After(target.Occurred) {
			return 1
		}
		return -1
	})
	r.feeds[event.OrderID] = slices.Insert(feed, at, event)
	return nil
}

func (r *TimelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.feeds[orderID]), nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
