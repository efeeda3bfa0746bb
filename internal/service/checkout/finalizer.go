// Package checkout превращает корзину в заказ и ведёт его статус.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

// Состояния попытки оформления. Долговечно только Committed: это сам заказ.
type attemptState string

const (
	stateReceived  attemptState = "received"
	stateValidated attemptState = "validated"
	stateCommitted attemptState = "committed"
	stateRejected  attemptState = "rejected"
)

// Шаги конвейера, используются как метки метрик.
const (
	stepValidate = "validate"
	stepIdentity = "identity"
	stepPricing  = "pricing"
	stepTotal    = "total"
	stepPayment  = "payment"
	stepCommit   = "commit"
)

// PaymentGate проверяет, что платёжная сессия оплачена.
type PaymentGate interface {
	RequireCompleted(ctx context.Context, sessionID string) (domain.PaymentSession, error)
}

// CartCleaner очищает корзину после оформления.
type CartCleaner interface {
	Clear(ctx context.Context, userID string) error
}

// LineItem — позиция, присланная клиентом.
type LineItem struct {
	ProductID string
	Quantity  int32
}

// CreateOrderRequest — входные данные оформления.
// DeclaredTotalMinor — сумма, которую видел клиент; nil означает, что её не передали.
type CreateOrderRequest struct {
	UserID             string
	Items              []LineItem
	DeclaredTotalMinor *int64
	PaymentMethod      string
	ShippingAddress    string
	PaymentSessionID   string
}

// options общие для Finalizer и StatusMutator.
type options struct {
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics
	timeline   domain.TimelineRepository
	background *Background
}

// Option настраивает сервисы пакета.
type Option func(*options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics задаёт метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTimeline включает запись истории заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(o *options) {
		o.timeline = timeline
	}
}

// WithBackground задаёт исполнитель побочных эффектов.
// Finalizer и StatusMutator обычно делят один исполнитель.
func WithBackground(bg *Background) Option {
	return func(o *options) {
		o.background = bg
	}
}

func buildOptions(component string, opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.WithField("component", component)
	}
	if o.background == nil {
		o.background = NewBackground(0, o.logger)
	}
	return o
}

// Finalizer проводит попытку оформления Received -> Validated -> Committed | Rejected.
type Finalizer struct {
	orders     domain.OrderRepository
	users      domain.UserDirectory
	catalog    domain.ProductCatalog
	payments   PaymentGate
	carts      CartCleaner
	notifier   domain.Notifier
	timeline   domain.TimelineRepository
	background *Background
	logger     *log.Entry
	metrics    *metrics.CheckoutMetrics
	now        func() time.Time
}

// NewFinalizer создаёт Finalizer. notifier и carts могут быть nil.
func NewFinalizer(
	orders domain.OrderRepository,
	users domain.UserDirectory,
	catalog domain.ProductCatalog,
	payments PaymentGate,
	carts CartCleaner,
	notifier domain.Notifier,
	opts ...Option,
) *Finalizer {
	o := buildOptions("checkout", opts)
	return &Finalizer{
		orders:     orders,
		users:      users,
		catalog:    catalog,
		payments:   payments,
		carts:      carts,
		notifier:   notifier,
		timeline:   o.timeline,
		background: o.background,
		logger:     o.logger,
		metrics:    o.metrics,
		now:        time.Now,
	}
}

// attempt — состояние одной попытки оформления, живёт только в памяти.
type attempt struct {
	req     CreateOrderRequest
	state   attemptState
	method  domain.PaymentMethod
	user    domain.User
	items   []domain.OrderItem
	total   int64
	session domain.PaymentSession
}

// CreateOrder оформляет заказ. Шаги выполняются строго по порядку, до коммита ничего не пишется.
// Повтор с той же платёжной сессией возвращает уже созданный заказ.
func (f *Finalizer) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	start := f.now()
	f.metrics.CheckoutStarted()

	a := &attempt{req: req, state: stateReceived}
	logger := f.logger.WithFields(log.Fields{
		"user_id":        req.UserID,
		"payment_method": req.PaymentMethod,
	})

	steps := []struct {
		name string
		run  func(context.Context, *attempt) error
	}{
		{stepValidate, f.validate},
		{stepIdentity, f.identify},
		{stepPricing, f.reprice},
		{stepTotal, f.checkTotal},
	}
	for _, step := range steps {
		if err := f.runStep(ctx, step.name, a, step.run); err != nil {
			return f.reject(a, step.name, start, logger, err)
		}
	}
	a.state = stateValidated

	if a.method == domain.PaymentMethodCard {
		var existing domain.Order
		err := f.runStep(ctx, stepPayment, a, func(ctx context.Context, a *attempt) error {
			var err error
			existing, err = f.checkPayment(ctx, a)
			return err
		})
		if err != nil {
			return f.reject(a, stepPayment, start, logger, err)
		}
		if existing.ID != "" {
			f.metrics.CheckoutFinished(metrics.CheckoutReplayed, f.now().Sub(start))
			logger.WithField("order_id", existing.ID).Info("order for payment session already exists")
			return existing, nil
		}
	}

	order, replayed, err := f.commit(ctx, a)
	if err != nil {
		return f.reject(a, stepCommit, start, logger, err)
	}
	if replayed {
		f.metrics.CheckoutFinished(metrics.CheckoutReplayed, f.now().Sub(start))
		return order, nil
	}
	a.state = stateCommitted

	f.afterCommit(ctx, a, order)

	f.metrics.CheckoutFinished(metrics.CheckoutCommitted, f.now().Sub(start))
	logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"amount_minor": order.AmountMinor,
		"state":        a.state,
	}).Info("order committed")
	return order, nil
}

// Shutdown дожидается фоновых задач.
func (f *Finalizer) Shutdown(ctx context.Context) error {
	return f.background.Shutdown(ctx)
}

func (f *Finalizer) runStep(ctx context.Context, name string, a *attempt, fn func(context.Context, *attempt) error) error {
	started := f.now()
	err := fn(ctx, a)
	f.metrics.RecordStepDuration(name, f.now().Sub(started))
	return err
}

func (f *Finalizer) reject(a *attempt, step string, start time.Time, logger *log.Entry, err error) (domain.Order, error) {
	a.state = stateRejected
	f.metrics.RecordRejection(step)
	f.metrics.CheckoutFinished(metrics.CheckoutRejected, f.now().Sub(start))
	logger.WithError(err).WithFields(log.Fields{
		"step":  step,
		"state": a.state,
	}).Warn("checkout rejected")
	return domain.Order{}, err
}

// validate — шаг 1: структура запроса.
func (f *Finalizer) validate(_ context.Context, a *attempt) error {
	req := a.req
	if len(req.Items) == 0 {
		return domain.ErrItemsRequired
	}
	if req.DeclaredTotalMinor == nil || strings.TrimSpace(req.PaymentMethod) == "" || strings.TrimSpace(req.ShippingAddress) == "" {
		return domain.ErrOrderDetailsRequired
	}

	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return err
	}
	a.method = method

	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.ErrProductIDRequired
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: product %s", domain.ErrQuantityInvalid, item.ProductID)
		}
	}
	return nil
}

// identify — шаг 2: покупатель существует.
func (f *Finalizer) identify(ctx context.Context, a *attempt) error {
	if a.req.UserID == "" {
		return domain.ErrUserRequired
	}
	user, err := f.users.GetUser(ctx, a.req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("get user: %w", err)
	}
	a.user = user
	return nil
}

// reprice — шаг 3: цены, названия и продавцы берутся из каталога и фиксируются в заказе.
func (f *Finalizer) reprice(ctx context.Context, a *attempt) error {
	items := make([]domain.OrderItem, 0, len(a.req.Items))
	var total int64
	for _, line := range a.req.Items {
		product, err := f.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
			}
			return fmt.Errorf("get product %s: %w", line.ProductID, err)
		}
		items = append(items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			SellerID:    product.SellerID,
			Quantity:    line.Quantity,
			PriceMinor:  product.PriceMinor,
		})
		total, err = domain.AddLineTotal(total, line.Quantity, product.PriceMinor)
		if err != nil {
			return fmt.Errorf("%w: product %s", err, line.ProductID)
		}
	}
	a.items = items
	a.total = total
	return nil
}

// checkTotal — шаг 4: заявленная сумма совпадает с пересчитанной до единицы.
func (f *Finalizer) checkTotal(_ context.Context, a *attempt) error {
	if *a.req.DeclaredTotalMinor != a.total {
		return fmt.Errorf("%w: declared %d, calculated %d", domain.ErrTotalMismatch, *a.req.DeclaredTotalMinor, a.total)
	}
	return nil
}

// checkPayment — шаг 5: сессия оплачена, принадлежит покупателю и оплачена на сумму заказа.
// Если по сессии уже есть заказ, он возвращается.
func (f *Finalizer) checkPayment(ctx context.Context, a *attempt) (domain.Order, error) {
	session, err := f.payments.RequireCompleted(ctx, a.req.PaymentSessionID)
	if err != nil {
		return domain.Order{}, err
	}
	if session.UserID != "" && session.UserID != a.req.UserID {
		return domain.Order{}, fmt.Errorf("%w: payment session belongs to another user", domain.ErrConflict)
	}

	existing, err := f.orders.GetByPaymentSession(ctx, session.ID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, domain.ErrOrderNotFound):
		return domain.Order{}, fmt.Errorf("lookup order by session: %w", err)
	}

	if session.AmountMinor != a.total {
		return domain.Order{}, fmt.Errorf("%w: paid %d, order %d", domain.ErrPaymentAmountMismatch, session.AmountMinor, a.total)
	}
	a.session = session
	return domain.Order{}, nil
}

// commit — шаг 6: единственная запись, после которой заказ виден продавцам.
func (f *Finalizer) commit(ctx context.Context, a *attempt) (domain.Order, bool, error) {
	now := f.now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          a.req.UserID,
		Items:           a.items,
		AmountMinor:     a.total,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   a.method,
		ShippingAddress: strings.TrimSpace(a.req.ShippingAddress),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if a.method == domain.PaymentMethodCard {
		order.PaymentStatus = domain.PaymentStatusCompleted
		order.PaymentSessionID = a.session.ID
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, false, errors.Join(errs...)
	}

	started := f.now()
	err := f.orders.Create(ctx, order)
	f.metrics.RecordStepDuration(stepCommit, f.now().Sub(started))
	if err != nil {
		// Параллельный запрос с той же сессией успел первым.
		if errors.Is(err, domain.ErrOrderAlreadyExists) && order.PaymentSessionID != "" {
			existing, getErr := f.orders.GetByPaymentSession(ctx, order.PaymentSessionID)
			if getErr == nil {
				return existing, true, nil
			}
		}
		return domain.Order{}, false, fmt.Errorf("create order: %w", err)
	}

	f.appendTimeline(ctx, domain.OrderCreatedEvent(order, now))
	return order, false, nil
}

// afterCommit — шаг 7: письмо и очистка корзины, без влияния на ответ.
func (f *Finalizer) afterCommit(ctx context.Context, a *attempt, order domain.Order) {
	fields := log.Fields{"order_id": order.ID, "user_id": order.UserID}

	if f.notifier != nil {
		msg := domain.OrderConfirmation{
			OrderID:       order.ID,
			UserID:        order.UserID,
			Email:         a.user.Email,
			DisplayName:   a.user.DisplayName,
			AmountMinor:   order.AmountMinor,
			PaymentMethod: order.PaymentMethod,
			Items:         append([]domain.OrderItem(nil), order.Items...),
		}
		f.background.Go(ctx, "order-confirmation", fields, func(ctx context.Context) error {
			return f.notifier.SendOrderConfirmation(ctx, msg)
		})
	}
	if f.carts != nil {
		f.background.Go(ctx, "cart-clear", fields, func(ctx context.Context) error {
			return f.carts.Clear(ctx, order.UserID)
		})
	}
}

func (f *Finalizer) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if f.timeline == nil {
		return
	}
	if err := f.timeline.Append(ctx, event); err != nil {
		f.logger.WithError(err).WithField("order_id", event.OrderID).Warn("append timeline event failed")
		return
	}
	f.metrics.RecordTimelineEvent()
}
