// Package notify передаёт уведомления покупателю через transactional outbox.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Типы уведомлений в outbox.
const (
	EventOrderConfirmation = "order.confirmation"
	EventStatusUpdated     = "order.status_updated"

	aggregateOrder = "order"
)

// Envelope — формат уведомления в outbox и в Kafka.
type Envelope struct {
	Type       string          `json:"type"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// OutboxNotifier реализует domain.Notifier поверх outbox.
// Доставка асинхронная: за неё отвечает outbox worker.
type OutboxNotifier struct {
	outbox domain.OutboxRepository
	now    func() time.Time
}

var _ domain.Notifier = (*OutboxNotifier)(nil)

// NewOutboxNotifier создаёт notifier.
func NewOutboxNotifier(outbox domain.OutboxRepository) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox, now: time.Now}
}

// SendOrderConfirmation ставит в очередь письмо о принятом заказе.
func (n *OutboxNotifier) SendOrderConfirmation(ctx context.Context, msg domain.OrderConfirmation) error {
	return n.enqueue(ctx, EventOrderConfirmation, msg.OrderID, msg.UserID, msg)
}

// SendStatusUpdate ставит в очередь письмо о смене статуса.
func (n *OutboxNotifier) SendStatusUpdate(ctx context.Context, msg domain.StatusUpdate) error {
	return n.enqueue(ctx, EventStatusUpdated, msg.OrderID, msg.UserID, msg)
}

func (n *OutboxNotifier) enqueue(ctx context.Context, eventType, orderID, userID string, data any) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrInvalidArgument)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	occurred := n.now().UTC()
	payload, err := json.Marshal(Envelope{
		Type:       eventType,
		OrderID:    orderID,
		UserID:     userID,
		OccurredAt: occurred,
		Data:       raw,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = n.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     occurred,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}
