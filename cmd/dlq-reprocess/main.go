// Command dlq-reprocess возвращает сообщения из checkout.dlq в рабочие topics.
// По умолчанию только показывает кандидатов; публикация включается флагом --execute.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dlq-reprocess",
		Usage: "replay checkout dead letters into their working topics (dry-run by default)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "brokers", EnvVars: []string{"CHECKOUT_KAFKA_BROKERS"}, Usage: "comma-separated Kafka brokers"},
			&cli.StringFlag{Name: "source-topic", Value: kafka.TopicDeadLetterQueue, Usage: "dead letter topic to scan"},
			&cli.StringFlag{Name: "target-topic", Value: kafka.TopicNotifications, Usage: "topic for outbox dead letters"},
			&cli.IntFlag{Name: "limit", Value: 100, Usage: "max messages to scan across partitions"},
			&cli.BoolFlag{Name: "execute", Usage: "publish replays instead of listing them"},
			&cli.BoolFlag{Name: "from-newest", Usage: "scan the newest messages of each partition"},
			&cli.DurationFlag{Name: "idle-timeout", Value: 2 * time.Second, Usage: "stop reading a partition after this much silence"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "logrus level"},
		},
		Before: func(c *cli.Context) error {
			level, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		Action: func(c *cli.Context) error {
			cfg, err := readConfig(c)
			if err != nil {
				return err
			}
			return run(c.Context, cfg)
		},
	}
}

func readConfig(c *cli.Context) (config, error) {
	cfg := config{
		sourceTopic: strings.TrimSpace(c.String("source-topic")),
		targetTopic: strings.TrimSpace(c.String("target-topic")),
		limit:       c.Int("limit"),
		execute:     c.Bool("execute"),
		fromNewest:  c.Bool("from-newest"),
		idleTimeout: c.Duration("idle-timeout"),
	}
	for _, broker := range strings.Split(c.String("brokers"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (--brokers or CHECKOUT_KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.targetTopic == "":
		return config{}, errors.New("target-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

// replayDeps — подключения к Kafka. producer отсутствует в dry-run.
type replayDeps struct {
	offsets  offsetSource
	reader   partitionReader
	producer *kafka.Producer
	close    func()
}

var openReplayDeps = func(cfg config) (replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return replayDeps{}, fmt.Errorf("connect to kafka: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}

	deps := replayDeps{offsets: client, reader: consumerReader{consumer: consumer}}
	if cfg.execute {
		syncProducer, err := sarama.NewSyncProducer(cfg.brokers, kafka.SyncProducerConfig("checkout-dlq-reprocess"))
		if err != nil {
			_ = consumer.Close()
			_ = client.Close()
			return replayDeps{}, fmt.Errorf("create kafka producer: %w", err)
		}
		deps.producer = kafka.NewProducerFromSync(syncProducer, log.WithField("component", "dlq-replay-producer"))
	}

	deps.close = func() {
		if deps.producer != nil {
			_ = deps.producer.Close()
		}
		_ = consumer.Close()
		_ = client.Close()
	}
	return deps, nil
}

func run(ctx context.Context, cfg config) error {
	deps, err := openReplayDeps(cfg)
	if err != nil {
		return err
	}
	if deps.close != nil {
		defer deps.close()
	}

	r := &replayer{
		cfg:      cfg,
		offsets:  deps.offsets,
		reader:   deps.reader,
		producer: deps.producer,
		logger:   log.WithField("component", "dlq-reprocess"),
		now:      time.Now,
	}
	stats, err := r.Run(ctx)
	if err != nil {
		return err
	}

	r.logger.WithFields(log.Fields{
		"execute":  cfg.execute,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
	}).Info("dlq replay finished")
	return nil
}
