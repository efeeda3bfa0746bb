package main

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// parseArgs прогоняет аргументы через CLI и возвращает разобранную конфигурацию.
func parseArgs(t *testing.T, args ...string) (config, error) {
	t.Helper()

	var (
		cfg     config
		readErr error
	)
	app := newApp()
	app.Action = func(c *cli.Context) error {
		cfg, readErr = readConfig(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"dlq-reprocess"}, args...)))
	return cfg, readErr
}

func TestReadConfig_Flags(t *testing.T) {
	cfg, err := parseArgs(t,
		"--brokers= broker-1:9092, ,broker-2:9092 ",
		"--limit=10",
		"--execute",
		"--from-newest",
		"--idle-timeout=3s",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.Equal(t, kafka.TopicNotifications, cfg.targetTopic)
	assert.Equal(t, 10, cfg.limit)
	assert.True(t, cfg.execute)
	assert.True(t, cfg.fromNewest)
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv("CHECKOUT_KAFKA_BROKERS", "env-broker:9092")

	cfg, err := parseArgs(t)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
	assert.False(t, cfg.execute)
}

func TestReadConfig_Validation(t *testing.T) {
	t.Setenv("CHECKOUT_KAFKA_BROKERS", "")

	cases := map[string][]string{
		"kafka brokers are required": nil,
		"source-topic is required":   {"--brokers=b:9092", "--source-topic= "},
		"target-topic is required":   {"--brokers=b:9092", "--target-topic="},
		"limit must be > 0":          {"--brokers=b:9092", "--limit=0"},
		"idle-timeout must be > 0":   {"--brokers=b:9092", "--idle-timeout=0s"},
	}
	for want, args := range cases {
		_, err := parseArgs(t, args...)
		assert.ErrorContains(t, err, want, "args %v", args)
	}
}

func TestApp_RejectsUnknownLogLevel(t *testing.T) {
	err := newApp().Run([]string{"dlq-reprocess", "--brokers=b:9092", "--log-level=loud"})
	require.Error(t, err)
}

func TestApp_RunsWithInjectedDeps(t *testing.T) {
	original := openReplayDeps
	t.Cleanup(func() { openReplayDeps = original })

	openReplayDeps = func(config) (replayDeps, error) {
		return replayDeps{}, errors.New("brokers unreachable")
	}
	err := newApp().Run([]string{"dlq-reprocess", "--brokers=broker:9092"})
	require.ErrorContains(t, err, "brokers unreachable")

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()
	offsets := &fakeOffsets{partitions: []int32{0}, ranges: map[int32][2]int64{0: {0, 2}}}
	reader := &fakeReader{streams: map[int32]*fakeStream{0: finishedStream(consumerDeadLetter(0, 0, "cs_1"))}}
	closed := false

	var seen config
	openReplayDeps = func(cfg config) (replayDeps, error) {
		seen = cfg
		return replayDeps{
			offsets:  offsets,
			reader:   reader,
			producer: kafka.NewProducerFromSync(mockProducer, quietEntry()),
			close:    func() { closed = true },
		}, nil
	}

	require.NoError(t, newApp().Run([]string{"dlq-reprocess", "--brokers=broker:9092", "--execute", "--limit=1"}))
	assert.True(t, seen.execute)
	assert.True(t, closed, "connections are closed after the run")
	require.NoError(t, mockProducer.Close())
}

func consumerDeadLetter(partition int32, offset int64, key string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Partition: partition,
		Offset:    offset,
		Key:       []byte(key),
		Value:     []byte(`{"session_id":"` + key + `","type":"checkout.session.completed"}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(kafka.TopicPaymentEvents)},
			{Key: []byte(kafka.HeaderRetryCount), Value: []byte("3")},
		},
	}
}
