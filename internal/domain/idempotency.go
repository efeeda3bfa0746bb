package domain

import (
	"errors"
	"strings"
	"time"
)

// IdempotencyStatus — стадия обработки запроса с заголовком Idempotency-Key.
// processing ставится при захвате ключа, done и failed хранят готовый ответ.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// Valid отсекает значения, которых нет в схеме хранилища.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord — захваченный ключ и, после завершения, сохранённый ответ.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	HTTPStatus   int
	ResponseBody []byte
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired: с момента TTLAt ключ свободен, даже если очистка его ещё не удалила.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.TTLAt)
}

// Settled сообщает, что ответ уже сохранён и его можно воспроизвести.
func (r IdempotencyRecord) Settled() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// NormalizeIdempotencyInput обрезает пробелы вокруг ключа и хэша и требует оба значения.
func NormalizeIdempotencyInput(key, requestHash string) (string, string, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	if key == "" {
		return "", "", ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return "", "", ErrIdempotencyRequestHashRequired
	}
	return key, requestHash, nil
}

var (
	ErrIdempotencyKeyRequired         = newError(ErrInvalidArgument, "idempotency key is required")
	ErrIdempotencyRequestHashRequired = newError(ErrInvalidArgument, "idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = newError(ErrNotFound, "idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ занят тем же запросом: ждать или воспроизвести ответ.
	ErrIdempotencyKeyAlreadyExists = newError(ErrConflict, "idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ занят запросом с другим содержимым.
	ErrIdempotencyHashMismatch = newError(ErrConflict, "idempotency key reused with different request")
)

// IsIdempotencyConflict покрывает обе причины занятости ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
