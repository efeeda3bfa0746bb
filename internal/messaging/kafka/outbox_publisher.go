package kafka

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

var errPublisherNotReady = errors.New("kafka outbox publisher has no producer")

// OutboxPublisher отправляет сообщения outbox в один topic.
type OutboxPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт издателя; пустой topic означает TopicNotifications.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicNotifications
	}
	return &OutboxPublisher{producer: producer, topic: topic, now: time.Now}
}

// Topic возвращает topic назначения.
func (p *OutboxPublisher) Topic() string { return p.topic }

func (p *OutboxPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotReady
	}
	envelope := NewOutboxEnvelope(event, p.now())
	return p.producer.PublishJSON(p.topic, envelope.PartitionKey(), envelope)
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
