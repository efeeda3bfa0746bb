package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestOutboxNotifier_SendOrderConfirmation(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	notifier := NewOutboxNotifier(repo)

	err := notifier.SendOrderConfirmation(ctx, domain.OrderConfirmation{
		OrderID:       "order-1",
		UserID:        "user-1",
		Email:         "ann@example.com",
		AmountMinor:   1500,
		PaymentMethod: domain.PaymentMethodCard,
		Items:         []domain.OrderItem{{ProductID: "p1", ProductName: "Lamp", Quantity: 1, PriceMinor: 1500}},
	})
	require.NoError(t, err)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	msg := pending[0]
	assert.Equal(t, "order", msg.AggregateType)
	assert.Equal(t, "order-1", msg.AggregateID)
	assert.Equal(t, EventOrderConfirmation, msg.EventType)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
	assert.Equal(t, EventOrderConfirmation, envelope.Type)
	assert.Equal(t, "user-1", envelope.UserID)

	var data domain.OrderConfirmation
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, int64(1500), data.AmountMinor)
	assert.Equal(t, "ann@example.com", data.Email)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "Lamp", data.Items[0].ProductName)
}

func TestOutboxNotifier_SendStatusUpdate(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	notifier := NewOutboxNotifier(repo)

	require.NoError(t, notifier.SendStatusUpdate(ctx, domain.StatusUpdate{
		OrderID: "order-2",
		UserID:  "user-2",
		Status:  domain.OrderStatusShipped,
	}))

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, EventStatusUpdated, pending[0].EventType)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(pending[0].Payload, &envelope))
	var data domain.StatusUpdate
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, domain.OrderStatusShipped, data.Status)
}

func TestOutboxNotifier_RequiresOrderID(t *testing.T) {
	notifier := NewOutboxNotifier(memory.NewOutboxRepository())

	err := notifier.SendStatusUpdate(context.Background(), domain.StatusUpdate{UserID: "u"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("db down")
}

func TestOutboxNotifier_EnqueueError(t *testing.T) {
	notifier := NewOutboxNotifier(failingOutbox{})

	err := notifier.SendOrderConfirmation(context.Background(), domain.OrderConfirmation{OrderID: "o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
