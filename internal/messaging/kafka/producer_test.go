package kafka

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestSyncProducerConfig(t *testing.T) {
	config := SyncProducerConfig("checkout-test")
	require.NoError(t, config.Validate())
	assert.Equal(t, "checkout-test", config.ClientID)
	assert.True(t, config.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, config.Producer.RequiredAcks)
}

func TestProducer_PublishJSON(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(mocks.ValueChecker(func(val []byte) error {
		event, err := ParsePaymentEvent(&sarama.ConsumerMessage{Value: val})
		if err != nil {
			return err
		}
		if event.SessionID != "cs_1" {
			return fmt.Errorf("unexpected session id %q", event.SessionID)
		}
		return nil
	}))

	producer := NewProducerFromSync(mockProducer, quietEntry())
	require.NoError(t, producer.PublishJSON(TopicPaymentEvents, "cs_1", PaymentEvent{SessionID: "cs_1", Type: "checkout.session.completed"}))
	require.NoError(t, mockProducer.Close())
}

func TestProducer_Errors(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := NewProducerFromSync(mockProducer, quietEntry())

	err := producer.PublishRaw(TopicNotifications, nil, []byte("{}"), nil)
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	err = producer.PublishJSON(TopicNotifications, "k", map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "encode")

	require.NoError(t, producer.Close())
}

func TestNewProducer_InvalidBroker(t *testing.T) {
	_, err := NewProducer([]string{"invalid-broker:9092"}, "checkout-test")
	require.Error(t, err)
}

func TestParsePaymentEvent(t *testing.T) {
	_, err := ParsePaymentEvent(&sarama.ConsumerMessage{Value: []byte(`{"session_id":"  "}`)})
	require.Error(t, err)
	_, err = ParsePaymentEvent(&sarama.ConsumerMessage{Value: []byte("{")})
	require.Error(t, err)

	event, err := ParsePaymentEvent(&sarama.ConsumerMessage{Value: []byte(`{"session_id":" cs_9 ","type":"checkout.session.expired"}`)})
	require.NoError(t, err)
	assert.Equal(t, "cs_9", event.SessionID)
}

func TestOutboxEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	msg := domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "order.confirmation",
		Payload:       []byte(`{"order_id":"order-1"}`),
	}

	envelope := NewOutboxEnvelope(msg, at)
	assert.Equal(t, "order-1", envelope.PartitionKey())
	assert.Equal(t, time.UTC, envelope.PublishedAt.Location())

	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	parsed, err := ParseOutboxEnvelope(&sarama.ConsumerMessage{Value: raw})
	require.NoError(t, err)
	assert.Equal(t, msg, parsed.Message())

	envelope.AggregateID = ""
	assert.Equal(t, "outbox-1", envelope.PartitionKey())

	_, err = ParseOutboxEnvelope(&sarama.ConsumerMessage{Value: []byte(`{"payload":{}}`)})
	require.Error(t, err)
	_, err = ParseOutboxEnvelope(&sarama.ConsumerMessage{Value: []byte("{")})
	require.Error(t, err)
}

func TestHeader(t *testing.T) {
	msg := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{
		nil,
		{Key: []byte(HeaderOriginalTopic), Value: []byte(" payments.processor.events ")},
	}}
	assert.Equal(t, TopicPaymentEvents, Header(msg, HeaderOriginalTopic))
	assert.Empty(t, Header(msg, HeaderErrorMessage))
}
