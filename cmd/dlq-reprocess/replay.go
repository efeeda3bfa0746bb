package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
)

// offsetSource — метаданные партиций; sarama.Client подходит как есть.
type offsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionReader interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
}

// consumerReader сужает sarama.Consumer до partitionReader.
type consumerReader struct {
	consumer sarama.Consumer
}

func (r consumerReader) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	pc, err := r.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer читает DLQ по партициям в порядке номеров, пока не наберёт cfg.limit сообщений.
type replayer struct {
	cfg      config
	offsets  offsetSource
	reader   partitionReader
	producer *kafka.Producer
	logger   *log.Entry
	now      func() time.Time
}

func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.offsets == nil || r.reader == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if r.cfg.execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		stats, err := r.drain(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// scanWindow возвращает начальное смещение. Сообщения от newest и дальше не читаются:
// в пустой DLQ инструмент не ждёт новых записей.
func scanWindow(oldest, newest int64, budget int, fromNewest bool) (int64, bool) {
	if newest <= oldest {
		return 0, false
	}
	if fromNewest {
		return max(newest-int64(budget), oldest), true
	}
	return oldest, true
}

func (r *replayer) drain(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	start, ok := scanWindow(oldest, newest, budget, r.cfg.fromNewest)
	if !ok {
		return stats, nil
	}

	stream, err := r.reader.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	errs := stream.Errors()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr, open := <-errs:
			if !open {
				errs = nil
				continue
			}
			if consumerErr != nil {
				return stats, fmt.Errorf("read partition %d: %w", partition, consumerErr)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)
			stats.scanned++

			replayed, err := r.handle(msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// handle публикует одно сообщение или логирует его в dry-run. Ошибка возвращается только при сбое публикации.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	target, err := resolveReplay(msg, r.cfg.targetTopic, r.now())
	if err != nil {
		if !errors.Is(err, errNotDeadLetter) {
			entry.WithError(err).Warn("skip broken dead letter")
		}
		return false, nil
	}

	entry = entry.WithFields(log.Fields{"target_topic": target.topic, "key": string(target.key)})
	if !r.cfg.execute {
		entry.Info("replay candidate")
		return true, nil
	}
	// Заголовки не переносятся: consumer начинает счёт попыток заново.
	if err := r.producer.PublishRaw(target.topic, target.key, target.value, nil); err != nil {
		return false, fmt.Errorf("replay offset %d: %w", msg.Offset, err)
	}
	entry.Debug("replayed")
	return true, nil
}
