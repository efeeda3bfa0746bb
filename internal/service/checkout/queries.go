package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// OrderDetails — заказ вместе с историей.
type OrderDetails struct {
	Order    domain.Order
	Timeline []domain.TimelineEvent
}

// Queries отвечает на чтения заказов.
type Queries struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
}

// NewQueries создаёт сервис чтения. timeline может быть nil.
func NewQueries(orders domain.OrderRepository, timeline domain.TimelineRepository) *Queries {
	return &Queries{orders: orders, timeline: timeline}
}

// GetOrder возвращает заказ и его историю.
func (q *Queries) GetOrder(ctx context.Context, orderID string) (OrderDetails, error) {
	order, err := q.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return OrderDetails{}, err
		}
		return OrderDetails{}, fmt.Errorf("get order: %w", err)
	}

	details := OrderDetails{Order: order}
	if q.timeline != nil {
		events, err := q.timeline.List(ctx, orderID)
		if err != nil {
			return OrderDetails{}, fmt.Errorf("list timeline: %w", err)
		}
		details.Timeline = events
	}
	return details, nil
}

// ListUserOrders возвращает заказы покупателя, новые первыми.
func (q *Queries) ListUserOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	orders, err := q.orders.ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return orders, nil
}

// ListSellerOrders возвращает заказы, где есть хотя бы один товар продавца.
func (q *Queries) ListSellerOrders(ctx context.Context, sellerID string, limit int) ([]domain.Order, error) {
	if sellerID == "" {
		return nil, domain.ErrUserRequired
	}
	orders, err := q.orders.ListBySeller(ctx, sellerID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list seller orders: %w", err)
	}
	return orders, nil
}

// TotalSales суммирует итоговые суммы всех заказов.
func (q *Queries) TotalSales(ctx context.Context) (int64, error) {
	total, err := q.orders.TotalSales(ctx)
	if err != nil {
		return 0, fmt.Errorf("total sales: %w", err)
	}
	return total, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
