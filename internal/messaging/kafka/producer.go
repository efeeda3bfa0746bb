package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// SyncProducerConfig — настройки идемпотентного синхронного producer.
// Idempotent требует подтверждения всех реплик и одного запроса в полёте.
func SyncProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// Producer публикует сообщения в Kafka и пишет результат в лог.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, clientID string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, SyncProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFromSync(producer, nil), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer, например из sarama/mocks.
func NewProducerFromSync(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: producer, logger: logger, now: time.Now}
}

// PublishJSON сериализует value и отправляет его в topic.
func (p *Producer) PublishJSON(topic, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	return p.PublishRaw(topic, []byte(key), body, nil)
}

// PublishRaw отправляет готовое тело с заголовками.
func (p *Producer) PublishRaw(topic string, key, value []byte, headers []sarama.RecordHeader) error {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: p.now(),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", topic).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("kafka message sent")
	return nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
