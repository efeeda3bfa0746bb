package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const defaultSaveAttempts = 3

// StatusMutator меняет статус исполнения заказа.
// Граф переходов не ограничен: любой статус может смениться любым другим.
type StatusMutator struct {
	orders     domain.OrderRepository
	users      domain.UserDirectory
	notifier   domain.Notifier
	timeline   domain.TimelineRepository
	background *Background
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics
	attempts   int
	now        func() time.Time
}

// NewStatusMutator создаёт мутатор.
func NewStatusMutator(orders domain.OrderRepository, users domain.UserDirectory, notifier domain.Notifier, opts ...Option) *StatusMutator {
	o := buildOptions("order-status", opts)
	return &StatusMutator{
		orders:     orders,
		users:      users,
		notifier:   notifier,
		timeline:   o.timeline,
		background: o.background,
		logger:     o.logger,
		metrics:    o.metrics,
		attempts:   defaultSaveAttempts,
		now:        time.Now,
	}
}

// UpdateStatus применяет новый статус. При конфликте версий заказ перечитывается,
// после исчерпания попыток возвращается ErrOrderVersionConflict.
func (m *StatusMutator) UpdateStatus(ctx context.Context, orderID, rawStatus string) (domain.Order, error) {
	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %q", err, rawStatus)
	}

	logger := m.logger.WithFields(log.Fields{"order_id": orderID, "status": status})

	for attempt := 1; ; attempt++ {
		order, err := m.orders.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				return domain.Order{}, err
			}
			return domain.Order{}, fmt.Errorf("get order: %w", err)
		}
		if order.Status == status {
			return order, nil
		}

		previous := order.Status
		order.Status = status
		order.UpdatedAt = m.now().UTC()

		err = m.orders.Save(ctx, order)
		if err == nil {
			order.Version++
			m.afterUpdate(ctx, order, previous)
			logger.WithField("previous", previous).Info("order status updated")
			return order, nil
		}
		if !domain.IsVersionConflict(err) || attempt >= m.attempts {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
		logger.WithField("attempt", attempt).Debug("order version conflict, retrying")
	}
}

// Shutdown дожидается фоновых уведомлений.
func (m *StatusMutator) Shutdown(ctx context.Context) error {
	return m.background.Shutdown(ctx)
}

func (m *StatusMutator) afterUpdate(ctx context.Context, order domain.Order, previous domain.OrderStatus) {
	m.metrics.RecordStatusUpdate(string(order.Status))

	if m.timeline != nil {
		event := domain.StatusChangedEvent(order.ID, previous, order.Status, order.UpdatedAt)
		if err := m.timeline.Append(ctx, event); err != nil {
			m.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
		} else {
			m.metrics.RecordTimelineEvent()
		}
	}

	if m.notifier == nil {
		return
	}
	fields := log.Fields{"order_id": order.ID, "user_id": order.UserID}
	m.background.Go(ctx, "status-update", fields, func(ctx context.Context) error {
		msg := domain.StatusUpdate{
			OrderID: order.ID,
			UserID:  order.UserID,
			Status:  order.Status,
		}
		if m.users != nil {
			if user, err := m.users.GetUser(ctx, order.UserID); err == nil {
				msg.Email = user.Email
				msg.DisplayName = user.DisplayName
			}
		}
		return m.notifier.SendStatusUpdate(ctx, msg)
	})
}
