package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

// Outcome — решение по запросу с Idempotency-Key.
type Outcome int

const (
	// OutcomeProceed — ключ новый, запрос нужно выполнить.
	OutcomeProceed Outcome = iota
	// OutcomeReplay — ответ уже сохранён, его нужно вернуть как есть.
	OutcomeReplay
	// OutcomeInProgress — такой же запрос ещё выполняется.
	OutcomeInProgress
	// OutcomeMismatch — ключ использован с другим запросом.
	OutcomeMismatch
)

// Decision — результат Begin; Record заполнен для OutcomeReplay.
type Decision struct {
	Outcome Outcome
	Record  domain.IdempotencyRecord
}

// Guard связывает Idempotency-Key с результатом первого запроса.
type Guard struct {
	repo domain.IdempotencyRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewGuard создаёт guard. ttl <= 0 заменяется сутками.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = defaultKeyTTL
	}
	return &Guard{repo: repo, ttl: ttl, now: time.Now}
}

// HashRequest считает отпечаток запроса по методу, пути и телу.
func HashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin резервирует ключ или сообщает, что делать с повтором.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (Decision, error) {
	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().UTC().Add(g.ttl))
	if err == nil {
		return Decision{Outcome: OutcomeProceed}, nil
	}

	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Decision{Outcome: OutcomeMismatch}, nil
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Settled() {
			return Decision{Outcome: OutcomeReplay, Record: record}, nil
		}
		return Decision{Outcome: OutcomeInProgress}, nil
	default:
		return Decision{}, err
	}
}

// StatusClientClosedRequest — ответ на запрос, клиент которого отключился.
const StatusClientClosedRequest = 499

// Retryable сообщает, что ответ описывает временный сбой: отмену, таймаут или недоступность провайдера.
func Retryable(httpStatus int) bool {
	switch httpStatus {
	case StatusClientClosedRequest, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Finish сохраняет ответ. После временного сбоя ключ освобождается, и повтор
// с тем же ключом выполняется заново. Прочие 5xx помечаются failed и воспроизводятся.
func (g *Guard) Finish(ctx context.Context, key string, httpStatus int, body []byte) error {
	if Retryable(httpStatus) {
		return g.repo.Release(ctx, key)
	}
	if httpStatus >= http.StatusInternalServerError {
		return g.repo.MarkFailed(ctx, key, body, httpStatus)
	}
	return g.repo.MarkDone(ctx, key, body, httpStatus)
}
