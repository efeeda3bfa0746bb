package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type stubSyncer struct {
	calls []string
	err   error
}

func (s *stubSyncer) Sync(_ context.Context, sessionID string) (domain.PaymentSession, error) {
	s.calls = append(s.calls, sessionID)
	if s.err != nil {
		return domain.PaymentSession{}, s.err
	}
	return domain.PaymentSession{ID: sessionID, Status: domain.SessionStatusComplete}, nil
}

func TestPaymentEventHandler_SyncsSession(t *testing.T) {
	syncer := &stubSyncer{}
	handler := NewPaymentEventHandler(syncer, nil)

	err := handler(context.Background(), &sarama.ConsumerMessage{
		Topic: TopicPaymentEvents,
		Value: []byte(`{"session_id":"cs_1","type":"checkout.session.completed","status":"complete"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_1"}, syncer.calls)
}

func TestPaymentEventHandler_SkipsUnrecoverable(t *testing.T) {
	syncer := &stubSyncer{err: domain.ErrSessionNotFound}
	handler := NewPaymentEventHandler(syncer, nil)

	require.NoError(t, handler(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")}))
	assert.Empty(t, syncer.calls)

	require.NoError(t, handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"session_id":"cs_missing"}`)}))
	assert.Equal(t, []string{"cs_missing"}, syncer.calls)
}

func TestPaymentEventHandler_PropagatesUpstreamErrors(t *testing.T) {
	upstream := errors.Join(domain.ErrProcessorUnavailable, errors.New("timeout"))
	handler := NewPaymentEventHandler(&stubSyncer{err: upstream}, nil)

	err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"session_id":"cs_1"}`)})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestPaymentEventHandler_RetriedByConsumer(t *testing.T) {
	syncer := &stubSyncer{err: domain.ErrProcessorUnavailable}
	consumer := newConsumer(nil, ConsumerConfig{MaxRetries: 3, RetryDelay: -1}, NewPaymentEventHandler(syncer, quietEntry()), WithConsumerLogger(quietEntry()))

	err := consumer.process(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"session_id":"cs_1"}`)}, quietEntry())
	assert.Error(t, err)
	assert.Len(t, syncer.calls, 3)
}
