package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestInitKafkaProducer_WithoutBrokers(t *testing.T) {
	bus, err := initKafkaProducer(testConfig(t), quietLogger())
	require.NoError(t, err)

	assert.Nil(t, bus.producer)
	assert.Nil(t, bus.dlq)
	assert.IsType(t, &logPublisher{}, bus.publisher)

	// без producer consumer не поднимается
	require.NoError(t, bus.startPaymentEvents(t.Context(), testConfig(t), nil, quietLogger()))
	assert.Nil(t, bus.consumer)
	bus.close(quietLogger())
}

func TestInitKafkaProducer_InvalidBroker(t *testing.T) {
	cfg := testConfig(t)
	cfg.KafkaBrokers = []string{"127.0.0.1:1"}

	_, err := initKafkaProducer(cfg, quietLogger())
	require.Error(t, err)
}

func TestLogPublisher_Publish(t *testing.T) {
	publisher := newLogPublisher(quietLogger())
	err := publisher.Publish(domain.OutboxMessage{ID: "evt-1", EventType: "order.confirmation", Payload: []byte(`{}`)})
	assert.NoError(t, err)
}

func TestMessaging_CloseNil(t *testing.T) {
	var bus *messaging
	assert.NotPanics(t, func() { bus.close(quietLogger()) })
}
