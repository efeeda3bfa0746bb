package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
)

const (
	// HeaderIdempotencyKey — заголовок с ключом идемпотентности.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется на воспроизведённых ответах.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
	finishTimeout        = 5 * time.Second
)

// captureWriter пишет ответ клиенту и копирует его для сохранения.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// idempotent связывает Idempotency-Key с первым ответом. Без заголовка запрос проходит как есть.
// Ключи разделены по пользователям.
func idempotent(guard *idempotency.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if guard == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				respondCode(w, http.StatusBadRequest, "invalid_argument", "idempotency key is too long")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				respondCode(w, http.StatusBadRequest, "invalid_argument", "request body is too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			principal, _ := PrincipalFrom(r.Context())
			scopedKey := principal.UserID + ":" + key
			hash := idempotency.HashRequest(r.Method, r.URL.Path, body)

			decision, err := guard.Begin(r.Context(), scopedKey, hash)
			if err != nil {
				respondError(w, r, err)
				return
			}

			switch decision.Outcome {
			case idempotency.OutcomeReplay:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(HeaderIdempotentReplay, "true")
				w.WriteHeader(decision.Record.HTTPStatus)
				_, _ = w.Write(decision.Record.ResponseBody)
				return
			case idempotency.OutcomeInProgress:
				respondCode(w, http.StatusConflict, "idempotency_in_progress", "request with this idempotency key is still processing")
				return
			case idempotency.OutcomeMismatch:
				respondCode(w, http.StatusConflict, "idempotency_key_reused", "idempotency key was used with a different request")
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r)

			status := cw.status
			if status == 0 {
				status = http.StatusOK
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), finishTimeout)
			defer cancel()
			if err := guard.Finish(ctx, scopedKey, status, cw.body.Bytes()); err != nil {
				requestLogger(r).WithError(err).WithFields(log.Fields{
					"idempotency_key": key,
				}).Error("failed to store idempotent response")
			}
		})
	}
}
