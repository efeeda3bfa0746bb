package checkout

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultSideEffectTimeout = 10 * time.Second

// Background выполняет побочные эффекты после коммита: уведомления и очистку корзины.
// Ошибки только логируются. Shutdown дожидается запущенных задач.
type Background struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *log.Entry
}

// NewBackground создаёт исполнитель с таймаутом на одну задачу.
func NewBackground(timeout time.Duration, logger *log.Entry) *Background {
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "checkout-background")
	}
	return &Background{timeout: timeout, logger: logger}
}

// Go запускает задачу. Отмена ctx запроса задачу не прерывает.
func (b *Background) Go(ctx context.Context, name string, fields log.Fields, fn func(context.Context) error) {
	b.wg.Add(1)
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	go func() {
		defer b.wg.Done()
		defer cancel()

		if err := fn(taskCtx); err != nil {
			b.logger.WithError(err).WithFields(fields).WithField("task", name).Warn("post-commit task failed")
		}
	}()
}

// Shutdown ждёт завершения задач или отмены ctx.
func (b *Background) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
