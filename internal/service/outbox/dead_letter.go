package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// DeadLetter — уведомление, которое не удалось доставить за все попытки.
// Публикуется в DLQ topic как payload outbox-конверта и читается cmd/dlq-reprocess.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"publish_error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewDeadLetter описывает недоставленное сообщение.
func NewDeadLetter(msg domain.OutboxMessage, cause error, attempts int, at time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		Attempts:      attempts,
		FailedAt:      at.UTC(),
	}
	if cause != nil {
		letter.Error = cause.Error()
	}
	return letter
}

// Envelope упаковывает запись в outbox-сообщение для DLQ publisher.
// Идентификатор и агрегат сохраняются, чтобы DLQ партиционировался так же, как основной topic.
func (d DeadLetter) Envelope() (domain.OutboxMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dead letter: %w", err)
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       raw,
		CreatedAt:     d.FailedAt,
	}, nil
}

// Original восстанавливает исходное уведомление для повторной публикации.
func (d DeadLetter) Original() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}

// DecodeDeadLetter разбирает запись DLQ и проверяет, что её можно переиграть.
func DecodeDeadLetter(raw []byte) (DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(raw, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}

	switch {
	case strings.TrimSpace(letter.OutboxID) == "":
		return DeadLetter{}, errors.New("dead letter without outbox_id")
	case strings.TrimSpace(letter.EventType) == "":
		return DeadLetter{}, errors.New("dead letter without event_type")
	case len(letter.Payload) == 0 || string(letter.Payload) == "null":
		return DeadLetter{}, errors.New("dead letter without payload")
	}
	return letter, nil
}
