// Package health отдаёт /healthz, /livez и /readyz по результатам проверок зависимостей.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

// Status — состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет одну зависимость.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler хранит зарегистрированные проверки.
type Handler struct {
	version string
	started time.Time
	timeout time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHandler создаёт обработчик; version попадает в ответ /healthz.
func NewHandler(version string) *Handler {
	return &Handler{
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
		now:      time.Now,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Names возвращает имена проверок по алфавиту.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate запускает все проверки параллельно, каждую с собственным таймаутом.
// Итоговый статус равен худшему из результатов.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]Check, len(checkers))
	)
	for name, checker := range checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			res := checker.Check(checkCtx)

			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, res := range results {
		if res.Status.rank() > overall.rank() {
			overall = res.Status
		}
	}

	now := h.now()
	return Response{
		Status:        overall,
		Timestamp:     now,
		Checks:        results,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
	}
}

// ServeHTTP отвечает 503 только при unhealthy; degraded остаётся 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler снимает готовность, только когда отказала обязательная зависимость.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

// LivenessHandler всегда отвечает 200: процесс жив, пока способен ответить.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// FuncChecker превращает функцию ping в Checker.
type FuncChecker struct {
	name     string
	failWith Status
	fn       func(ctx context.Context) error
}

// NewSimpleChecker — обязательная зависимость: ошибка даёт unhealthy.
func NewSimpleChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, failWith: StatusUnhealthy, fn: fn}
}

// NewOptionalChecker — необязательная зависимость: ошибка даёт degraded.
func NewOptionalChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, failWith: StatusDegraded, fn: fn}
}

// Check вызывает функцию и замеряет время.
func (c *FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.fn(ctx)

	res := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = c.failWith
		res.Message = err.Error()
	}
	return res
}
