package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultConsumerRetries = 3
	defaultRetryDelay      = 200 * time.Millisecond
)

// MessageHandler обрабатывает одно сообщение. Ошибка означает, что сообщение стоит повторить.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerConfig описывает подписку consumer group.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topics     []string
	MaxRetries int
	// RetryDelay — пауза между попытками; 0 означает значение по умолчанию, отрицательное отключает паузу.
	RetryDelay time.Duration
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetterProducer включает отправку сообщений, исчерпавших попытки, в TopicDeadLetterQueue.
func WithDeadLetterProducer(producer *Producer) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetters = producer
	}
}

// WithConsumerLogger задаёт логгер.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Consumer читает topics через consumer group и повторяет обработку.
// Сообщение, исчерпавшее попытки, уходит в DLQ с исходным телом; без DLQ оно не коммитится.
type Consumer struct {
	group       sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	deadLetters *Producer
	maxRetries  int
	retryDelay  time.Duration
	logger      *log.Entry
	wg          sync.WaitGroup
}

// NewConsumer подключается к consumer group.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %s: %w", cfg.GroupID, err)
	}
	return newConsumer(group, cfg, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultConsumerRetries
	}
	switch {
	case cfg.RetryDelay == 0:
		cfg.RetryDelay = defaultRetryDelay
	case cfg.RetryDelay < 0:
		cfg.RetryDelay = 0
	}

	c := &Consumer{
		group:      group,
		topics:     cfg.Topics,
		handler:    handler,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     log.WithField("component", "kafka-consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне. Consume перезапускается после каждого rebalance до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			err := c.group.Consume(ctx, c.topics, c)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				c.logger.WithError(err).Error("consume session ended with error")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim коммитит сообщение только после успешной обработки или передачи в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			entry := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			if err := c.process(ctx, message, entry); err != nil {
				entry.WithError(err).Error("message left uncommitted")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process вызывает handler в пределах оставшихся попыток. Попытки прошлых доставок
// берутся из заголовка x-retry-count, поэтому переотправленное сообщение не получает полный бюджет заново.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage, entry *log.Entry) error {
	done := retryCount(message)
	budget := max(c.maxRetries-done, 1)

	var err error
	for attempt := 1; attempt <= budget; attempt++ {
		if attempt > 1 {
			if waitErr := c.pause(ctx); waitErr != nil {
				return waitErr
			}
		}
		if err = c.handler(ctx, message); err == nil {
			return nil
		}
		entry.WithError(err).WithField("attempt", done+attempt).Warn("message handler failed")
	}

	if c.deadLetters == nil {
		return err
	}
	if dlqErr := c.deadLetter(message, err); dlqErr != nil {
		return fmt.Errorf("move to dead letter queue: %w", dlqErr)
	}
	entry.WithField("attempts", done+budget).Info("message moved to dead letter queue")
	return nil
}

func (c *Consumer) pause(ctx context.Context) error {
	if c.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// deadLetter переносит исходные ключ и тело в DLQ, причину и исходный topic кладёт в заголовки.
func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderOriginalTopic), Value: []byte(message.Topic)},
		{Key: []byte(HeaderErrorMessage), Value: []byte(reason)},
		{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(c.maxRetries))},
	}
	return c.deadLetters.PublishRaw(TopicDeadLetterQueue, message.Key, message.Value, headers)
}
