package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// SessionSyncer перечитывает статус сессии у провайдера.
type SessionSyncer interface {
	Sync(ctx context.Context, sessionID string) (domain.PaymentSession, error)
}

// NewPaymentEventHandler обрабатывает события провайдера из TopicPaymentEvents.
// Битые сообщения и неизвестные сессии пропускаются: повтор их не исправит.
func NewPaymentEventHandler(syncer SessionSyncer, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-events")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParsePaymentEvent(message)
		if err != nil {
			logger.WithError(err).WithField("offset", message.Offset).Warn("skip malformed payment event")
			return nil
		}

		session, err := syncer.Sync(ctx, event.SessionID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				logger.WithField("session_id", event.SessionID).Warn("payment event for unknown session")
				return nil
			}
			return err
		}

		logger.WithFields(log.Fields{
			"session_id": session.ID,
			"status":     session.Status,
			"event_type": event.Type,
		}).Info("payment session synced")
		return nil
	}
}
