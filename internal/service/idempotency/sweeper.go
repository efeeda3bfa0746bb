package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
	defaultSweepBatches  = 20
)

// SweepConfig — параметры очистки. MaxBatches ограничивает работу одного прохода,
// остаток дочищается на следующем тике.
type SweepConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxBatches int
}

// SweepOption настраивает Sweeper.
type SweepOption func(*Sweeper)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) SweepOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики воркеров.
func WithMetrics(m *metrics.WorkerMetrics) SweepOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// Sweeper удаляет записи Idempotency-Key с истёкшим TTL.
type Sweeper struct {
	repo    domain.IdempotencyRepository
	cfg     SweepConfig
	logger  *log.Entry
	metrics *metrics.WorkerMetrics
	now     func() time.Time
}

// NewSweeper создаёт воркер очистки.
func NewSweeper(repo domain.IdempotencyRepository, cfg SweepConfig, opts ...SweepOption) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = defaultSweepBatches
	}

	s := &Sweeper{
		repo:   repo,
		cfg:    cfg,
		logger: log.WithField("component", "idempotency-sweeper"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run чистит сразу и затем каждые Interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		deleted, err := s.Sweep(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			s.logger.WithError(err).Warn("idempotency sweep failed")
		case deleted > 0:
			s.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep удаляет записи, у которых TTL истёк к текущему моменту, порциями BatchSize.
// Возвращает число удалённых записей, включая удалённые до ошибки.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC()

	total := 0
	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := s.repo.DeleteExpired(ctx, cutoff, s.cfg.BatchSize)
		total += deleted
		if err != nil {
			s.metrics.RecordPurge(total, err)
			return total, err
		}
		if deleted < s.cfg.BatchSize {
			break
		}
	}

	s.metrics.RecordPurge(total, nil)
	return total, nil
}
