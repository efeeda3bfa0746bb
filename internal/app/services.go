package app

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/cart"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	"github.com/vladislavdragonenkov/checkout/internal/service/notify"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
)

// services — прикладной слой поверх выбранных хранилищ.
type services struct {
	cart       *cart.Service
	payments   *payment.Manager
	finalizer  *checkout.Finalizer
	mutator    *checkout.StatusMutator
	queries    *checkout.Queries
	guard      *idempotency.Guard
	auth       *httpapi.Authenticator
	background *checkout.Background
}

func newServices(cfg Config, deps *runtimeDependencies, cm *metrics.CheckoutMetrics, logger *log.Entry) *services {
	component := func(name string) *log.Entry { return logger.WithField("component", name) }

	cartOpts := []cart.Option{cart.WithLogger(component("cart")), cart.WithMetrics(cm)}
	if deps.cartCache != nil {
		cartOpts = append(cartOpts, cart.WithCache(deps.cartCache))
	}
	carts := cart.NewService(deps.cartRepo, deps.catalog, deps.users, cartOpts...)

	payments := payment.NewManager(deps.sessionRepo, deps.processor,
		payment.WithLogger(component("payment")),
		payment.WithMetrics(cm),
		payment.WithVerifyTimeout(cfg.PaymentVerifyTimeout),
	)

	notifier := notify.NewOutboxNotifier(deps.outboxRepo)
	background := checkout.NewBackground(cfg.BackgroundTimeout, component("checkout-background"))
	opts := []checkout.Option{
		checkout.WithMetrics(cm),
		checkout.WithTimeline(deps.timelineRepo),
		checkout.WithBackground(background),
	}

	return &services{
		cart:     carts,
		payments: payments,
		finalizer: checkout.NewFinalizer(deps.repo, deps.users, deps.catalog, payments, carts, notifier,
			append(opts, checkout.WithLogger(component("order-finalizer")))...),
		mutator: checkout.NewStatusMutator(deps.repo, deps.users, notifier,
			append(opts, checkout.WithLogger(component("order-status")))...),
		queries:    checkout.NewQueries(deps.repo, deps.timelineRepo),
		guard:      idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL),
		auth:       httpapi.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		background: background,
	}
}

// router собирает HTTP API сервиса.
func (s *services) router(cfg Config, httpMetrics *metrics.HTTPMetrics, logger *log.Entry) http.Handler {
	return httpapi.NewRouter(httpapi.Config{
		Cart:           s.cart,
		Payments:       s.payments,
		Orders:         s.finalizer,
		Status:         s.mutator,
		Queries:        s.queries,
		Auth:           s.auth,
		Idempotency:    s.guard,
		Metrics:        httpMetrics,
		Logger:         logger.WithField("component", "http"),
		RequestTimeout: cfg.RequestTimeout,
	})
}

// shutdown дожидается фоновых уведомлений и очистки корзин.
// Finalizer и StatusMutator делят один Background.
func (s *services) shutdown(ctx context.Context) error {
	return s.background.Shutdown(ctx)
}
