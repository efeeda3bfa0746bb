package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// messaging объединяет producer, издателей outbox и consumer событий провайдера.
type messaging struct {
	producer  *kafka.Producer
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	consumer  *kafka.Consumer
}

// initKafkaProducer создаёт producer, если брокеры заданы.
// Без брокеров outbox публикуется в лог: уведомления не теряются из базы и видны при отладке.
func initKafkaProducer(cfg Config, logger *log.Entry) (*messaging, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("kafka brokers are not configured, outbox events go to the log")
		return &messaging{publisher: newLogPublisher(logger)}, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		return nil, err
	}
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")

	return &messaging{
		producer:  producer,
		publisher: kafka.NewOutboxPublisher(producer, kafka.TopicNotifications),
		dlq:       kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
	}, nil
}

// startPaymentEvents подписывается на события провайдера; сбойные сообщения уходят в DLQ.
func (m *messaging) startPaymentEvents(ctx context.Context, cfg Config, syncer kafka.SessionSyncer, logger *log.Entry) error {
	if m.producer == nil {
		return nil
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		GroupID:    cfg.KafkaConsumerGroup,
		Topics:     []string{kafka.TopicPaymentEvents},
		MaxRetries: cfg.KafkaMaxRetries,
	},
		kafka.NewPaymentEventHandler(syncer, logger.WithField("component", "payment-events")),
		kafka.WithDeadLetterProducer(m.producer),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
	)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return err
	}
	m.consumer = consumer
	return nil
}

// close останавливает consumer раньше producer: consumer пишет в DLQ через него.
func (m *messaging) close(logger *log.Entry) {
	if m == nil {
		return
	}
	if m.consumer != nil {
		if err := m.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	if m.producer == nil {
		return
	}
	if err := m.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher пишет события outbox в лог, когда брокер не настроен.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) *logPublisher {
	return &logPublisher{logger: logger.WithField("component", "outbox-log-publisher")}
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
		"payload":      string(event.Payload),
	}).Info("outbox event")
	return nil
}
