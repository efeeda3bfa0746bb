package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	TopicNotifications   = "checkout.notifications"
	TopicPaymentEvents   = "payments.processor.events"
	TopicDeadLetterQueue = "checkout.dlq"
)

// Заголовки, которыми consumer помечает сообщение перед отправкой в DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OutboxEnvelope — запись outbox в том виде, в каком она лежит в Kafka.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOutboxEnvelope заворачивает сообщение outbox для публикации в момент at.
func NewOutboxEnvelope(msg domain.OutboxMessage, at time.Time) OutboxEnvelope {
	return OutboxEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   at.UTC(),
	}
}

// PartitionKey — ключ партиции: события одного заказа читаются по порядку.
func (e OutboxEnvelope) PartitionKey() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// Message восстанавливает сообщение outbox из конверта.
func (e OutboxEnvelope) Message() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            e.ID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
		Payload:       []byte(e.Payload),
	}
}

// PaymentEvent — уведомление платёжного провайдера о сессии.
// Содержимое кроме session_id не используется: статус всегда перечитывается у провайдера.
type PaymentEvent struct {
	SessionID  string    `json:"session_id"`
	Type       string    `json:"type,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

func ParsePaymentEvent(message *sarama.ConsumerMessage) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("decode payment event: %w", err)
	}
	event.SessionID = strings.TrimSpace(event.SessionID)
	if event.SessionID == "" {
		return nil, fmt.Errorf("payment event without session_id")
	}
	return &event, nil
}

// ParseOutboxEnvelope декодирует конверт; id и event_type обязательны.
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (*OutboxEnvelope, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("decode outbox envelope: %w", err)
	}
	if envelope.ID == "" || envelope.EventType == "" {
		return nil, fmt.Errorf("outbox envelope without id or event_type")
	}
	return &envelope, nil
}

// Header возвращает значение заголовка без пробелов по краям или пустую строку.
func Header(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return strings.TrimSpace(string(header.Value))
		}
	}
	return ""
}

// retryCount — число попыток, сделанных до переотправки; битый заголовок считается нулём.
func retryCount(message *sarama.ConsumerMessage) int {
	count, err := strconv.Atoi(Header(message, HeaderRetryCount))
	if err != nil || count < 0 {
		return 0
	}
	return count
}
