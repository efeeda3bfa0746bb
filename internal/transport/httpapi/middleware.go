package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

type loggerKey struct{}

// requestLogger возвращает logger запроса с request_id.
func requestLogger(r *http.Request) *log.Entry {
	if entry, ok := r.Context().Value(loggerKey{}).(*log.Entry); ok {
		return entry
	}
	return log.WithField("component", "http")
}

func contextWithLogger(r *http.Request, entry *log.Entry) context.Context {
	return context.WithValue(r.Context(), loggerKey{}, entry)
}

// instrument логирует запрос и пишет метрики по шаблону маршрута.
func instrument(logger *log.Entry, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := logger.WithFields(log.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			r = r.WithContext(contextWithLogger(r, entry))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			duration := time.Since(start)
			m.Observe(r.Method, route, code, duration)

			fields := log.Fields{
				"status":      code,
				"route":       route,
				"duration_ms": duration.Milliseconds(),
				"bytes":       ww.BytesWritten(),
			}
			if code >= http.StatusInternalServerError {
				entry.WithFields(fields).Warn("request completed")
				return
			}
			entry.WithFields(fields).Debug("request completed")
		})
	}
}
