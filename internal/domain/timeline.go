package domain

import (
	"fmt"
	"time"
)

// Типы событий в истории заказа.
const (
	TimelineOrderCreated  = "OrderCreated"
	TimelineStatusChanged = "OrderStatusChanged"
)

// TimelineEvent — запись в истории заказа. События одного заказа упорядочены по Occurred,
// при равном времени сохраняется порядок добавления.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// OrderCreatedEvent фиксирует оформление заказа; в Reason пишется способ оплаты.
func OrderCreatedEvent(order Order, at time.Time) TimelineEvent {
	return TimelineEvent{
		OrderID:  order.ID,
		Type:     TimelineOrderCreated,
		Reason:   string(order.PaymentMethod),
		Occurred: at,
	}
}

// StatusChangedEvent фиксирует смену статуса в виде "Pending -> Shipped".
func StatusChangedEvent(orderID string, from, to OrderStatus, at time.Time) TimelineEvent {
	return TimelineEvent{
		OrderID:  orderID,
		Type:     TimelineStatusChanged,
		Reason:   fmt.Sprintf("%s -> %s", from, to),
		Occurred: at,
	}
}
