package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// OrderRepository держит заказы в памяти процесса. Наружу отдаются только копии.
type OrderRepository struct {
	mu        sync.RWMutex
	orders    map[string]domain.Order
	bySession map[string]string
}

// NewOrderRepository создаёт пустой репозиторий.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:    make(map[string]domain.Order),
		bySession: make(map[string]string),
	}
}

// Create отклоняет заказ, если заняты его ID или платёжная сессия.
func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, idTaken := r.orders[order.ID]
	_, sessionTaken := r.bySession[order.PaymentSessionID]
	if idTaken || (order.PaymentSessionID != "" && sessionTaken) {
		return domain.ErrOrderAlreadyExists
	}

	r.orders[order.ID] = domain.CloneOrder(order)
	if order.PaymentSessionID != "" {
		r.bySession[order.PaymentSessionID] = order.ID
	}
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *OrderRepository) GetByPaymentSession(_ context.Context, sessionID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.bySession[sessionID])
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.filter(limit, func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (r *OrderRepository) ListBySeller(_ context.Context, sellerID string, limit int) ([]domain.Order, error) {
	return r.filter(limit, func(o domain.Order) bool { return o.ContainsSeller(sellerID) }), nil
}

func (r *OrderRepository) TotalSales(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum int64
	for _, o := range r.orders {
		sum += o.AmountMinor
	}
	return sum, nil
}

// Save принимает заказ только с текущей версией и увеличивает её на единицу.
// Позиции и сумма остаются такими, какими были при создании.
func (r *OrderRepository) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}

	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.ShippingAddress = order.ShippingAddress
	stored.UpdatedAt = order.UpdatedAt
	stored.Version++
	r.orders[order.ID] = stored
	return nil
}

func (r *OrderRepository) lookup(id string) (domain.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return domain.CloneOrder(o), nil
}

// filter отбирает заказы, новые первыми; при равном времени больший ID идёт раньше.
func (r *OrderRepository) filter(limit int, keep func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	out := make([]domain.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, domain.CloneOrder(o))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
