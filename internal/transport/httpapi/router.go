// Package httpapi реализует HTTP API сервиса оформления заказов.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
)

const defaultRequestTimeout = 30 * time.Second

// Config — зависимости роутера.
type Config struct {
	Cart        CartService
	Payments    PaymentService
	Orders      OrderCreator
	Status      StatusUpdater
	Queries     OrderQueries
	Auth        *Authenticator
	Idempotency *idempotency.Guard
	Metrics     *metrics.HTTPMetrics
	Logger      *log.Entry
	// RequestTimeout ограничивает обработку одного запроса.
	RequestTimeout time.Duration
}

// NewRouter собирает маршруты /api/v1.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	h := &handlers{
		cart:     cfg.Cart,
		payments: cfg.Payments,
		orders:   cfg.Orders,
		status:   cfg.Status,
		queries:  cfg.Queries,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondCode(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondCode(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Delete("/", h.clearCart)
			r.Get("/count", h.countCart)
			r.Put("/items/{productID}", h.upsertCartItem)
			r.Delete("/items/{productID}", h.removeCartItem)
		})

		r.Route("/payments/sessions", func(r chi.Router) {
			r.With(idempotent(cfg.Idempotency)).Post("/", h.createSession)
			r.Get("/{sessionID}", h.getSession)
			r.Post("/{sessionID}/complete", h.completeSession)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(idempotent(cfg.Idempotency)).Post("/", h.createOrder)
			r.Get("/", h.listMyOrders)
			r.Get("/{orderID}", h.getOrder)
			r.With(RequireRole(domain.RoleSeller, domain.RoleAdmin)).Patch("/{orderID}/status", h.updateOrderStatus)
		})

		r.With(RequireRole(domain.RoleSeller, domain.RoleAdmin)).Get("/seller/orders", h.listSellerOrders)
		r.With(RequireRole(domain.RoleAdmin)).Get("/admin/sales", h.totalSales)
	})

	return otelhttp.NewHandler(r, "checkout-http")
}
