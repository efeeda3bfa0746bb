package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
)

var errNotDeadLetter = errors.New("message is not a checkout dead letter")

type replayTarget struct {
	topic string
	key   []byte
	value []byte
}

// resolveReplay понимает два вида записей DLQ.
// Consumer кладёт исходное тело и topic в заголовке x-original-topic: тело уходит обратно как есть.
// Relay outbox кладёт конверт с outbox.DeadLetter: исходное уведомление заворачивается заново и уходит в fallbackTopic.
func resolveReplay(msg *sarama.ConsumerMessage, fallbackTopic string, now time.Time) (replayTarget, error) {
	if topic := kafka.Header(msg, kafka.HeaderOriginalTopic); topic != "" {
		if len(msg.Value) == 0 {
			return replayTarget{}, fmt.Errorf("dead letter from %s has empty body", topic)
		}
		return replayTarget{topic: topic, key: msg.Key, value: msg.Value}, nil
	}

	envelope, err := kafka.ParseOutboxEnvelope(msg)
	if err != nil {
		return replayTarget{}, errNotDeadLetter
	}
	letter, err := outbox.DecodeDeadLetter(envelope.Payload)
	if err != nil {
		return replayTarget{}, err
	}

	replay := kafka.NewOutboxEnvelope(letter.Original(), now)
	value, err := json.Marshal(replay)
	if err != nil {
		return replayTarget{}, fmt.Errorf("encode replay envelope: %w", err)
	}
	return replayTarget{topic: fallbackTopic, key: []byte(replay.PartitionKey()), value: value}, nil
}
