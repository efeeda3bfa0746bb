package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/cart"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	"github.com/vladislavdragonenkov/checkout/internal/service/notify"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

type apiFixture struct {
	server    *httptest.Server
	auth      *Authenticator
	processor *payment.MockProcessor
	finalizer *checkout.Finalizer
	registry  *prometheus.Registry
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	catalog := memory.NewCatalog()
	catalog.PutUser(domain.User{ID: "u1", Email: "ann@example.com", Role: domain.RoleUser})
	catalog.PutUser(domain.User{ID: "seller-1", Role: domain.RoleSeller})
	catalog.PutUser(domain.User{ID: "admin", Role: domain.RoleAdmin})
	catalog.PutProduct(domain.Product{ID: "P1", Name: "Lamp", PriceMinor: 500, Stock: 10, SellerID: "seller-1"})

	orders := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	processor := payment.NewMockProcessor()
	payments := payment.NewManager(memory.NewPaymentSessionRepository(), processor, payment.WithLogger(quietLogger()))
	carts := cart.NewService(memory.NewCartRepository(), catalog, catalog, cart.WithLogger(quietLogger()))
	notifier := notify.NewOutboxNotifier(memory.NewOutboxRepository())
	bg := checkout.NewBackground(time.Second, quietLogger())
	opts := []checkout.Option{checkout.WithLogger(quietLogger()), checkout.WithTimeline(timeline), checkout.WithBackground(bg)}

	finalizer := checkout.NewFinalizer(orders, catalog, catalog, payments, carts, notifier, opts...)
	registry := prometheus.NewRegistry()
	auth := NewAuthenticator("test-secret", "")

	router := NewRouter(Config{
		Cart:        carts,
		Payments:    payments,
		Orders:      finalizer,
		Status:      checkout.NewStatusMutator(orders, catalog, notifier, opts...),
		Queries:     checkout.NewQueries(orders, timeline),
		Auth:        auth,
		Idempotency: idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour),
		Metrics:     metrics.NewHTTPMetrics(registry),
		Logger:      quietLogger(),
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = finalizer.Shutdown(ctx)
	})

	return &apiFixture{server: server, auth: auth, processor: processor, finalizer: finalizer, registry: registry}
}

type apiResponse struct {
	status int
	header http.Header
	body   []byte
}

func (r apiResponse) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, dst), string(r.body))
}

func (r apiResponse) errorCode(t *testing.T) string {
	t.Helper()
	var body ErrorResponse
	r.decode(t, &body)
	return body.Code
}

func (f *apiFixture) do(t *testing.T, userID, role, method, path string, body any, headers ...string) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := f.auth.Issue(userID, role, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return apiResponse{status: resp.StatusCode, header: resp.Header, body: raw}
}

func (f *apiFixture) user(t *testing.T, method, path string, body any, headers ...string) apiResponse {
	t.Helper()
	return f.do(t, "u1", domain.RoleUser, method, path, body, headers...)
}

func orderBody(total int64, method string) map[string]any {
	return map[string]any{
		"items":            []map[string]any{{"product_id": "P1", "quantity": 2}},
		"total_minor":      total,
		"payment_method":   method,
		"shipping_address": "1 Main St",
	}
}

func TestAPI_CartLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.user(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, resp.status)
	var cartBody cartDTO
	resp.decode(t, &cartBody)
	assert.Empty(t, cartBody.Items)

	resp = f.user(t, http.MethodPut, "/api/v1/cart/items/P1", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, resp.status)
	resp = f.user(t, http.MethodPut, "/api/v1/cart/items/P1", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusOK, resp.status)
	resp.decode(t, &cartBody)
	require.Len(t, cartBody.Items, 1)
	assert.Equal(t, int32(3), cartBody.Items[0].Quantity)
	assert.Equal(t, int64(1500), cartBody.TotalMinor)
	assert.Equal(t, "Lamp", cartBody.Items[0].Name)

	resp = f.user(t, http.MethodGet, "/api/v1/cart/count", nil)
	require.Equal(t, http.StatusOK, resp.status)
	var count countResponse
	resp.decode(t, &count)
	assert.Equal(t, 3, count.Count)

	resp = f.user(t, http.MethodPut, "/api/v1/cart/items/P1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	resp = f.user(t, http.MethodPut, "/api/v1/cart/items/P1", map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	resp = f.user(t, http.MethodPut, "/api/v1/cart/items/P404", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = f.user(t, http.MethodDelete, "/api/v1/cart/items/P404", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
	resp = f.user(t, http.MethodDelete, "/api/v1/cart/items/P1", nil)
	require.Equal(t, http.StatusOK, resp.status)

	resp = f.user(t, http.MethodDelete, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusNoContent, resp.status)

	resp = f.do(t, "ghost", domain.RoleUser, http.MethodGet, "/api/v1/cart/count", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, "", "", http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "unauthenticated", resp.errorCode(t))
}

// Сценарии A и B.
func TestAPI_CashOnDelivery(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(999, "CashOnDelivery"))
	assert.Equal(t, http.StatusConflict, resp.status)
	assert.Equal(t, "conflict", resp.errorCode(t))

	resp = f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"))
	require.Equal(t, http.StatusCreated, resp.status, string(resp.body))
	var order orderDTO
	resp.decode(t, &order)
	assert.Equal(t, int64(1000), order.AmountMinor)
	assert.Equal(t, "Pending", order.PaymentStatus)
	assert.Equal(t, "Pending", order.Status)

	resp = f.user(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, resp.status)
	var mine []orderDTO
	resp.decode(t, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, order.ID, mine[0].ID)

	resp = f.user(t, http.MethodPost, "/api/v1/orders", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.status)
}

// Сценарий C.
func TestAPI_CardPayment(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.user(t, http.MethodPost, "/api/v1/payments/sessions", map[string]any{"amount_minor": 0})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = f.user(t, http.MethodPost, "/api/v1/payments/sessions", map[string]any{"amount_minor": 1000})
	require.Equal(t, http.StatusCreated, resp.status)
	var session sessionDTO
	resp.decode(t, &session)
	assert.Equal(t, "pending", session.Status)

	resp = f.user(t, http.MethodGet, "/api/v1/payments/sessions/"+session.ID, nil)
	require.Equal(t, http.StatusOK, resp.status)
	resp = f.user(t, http.MethodGet, "/api/v1/payments/sessions/cs_unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = f.user(t, http.MethodPost, "/api/v1/payments/sessions/"+session.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, resp.status)

	body := orderBody(1000, "CardPayment")
	body["payment_session_id"] = session.ID
	resp = f.user(t, http.MethodPost, "/api/v1/orders", body)
	assert.Equal(t, http.StatusPreconditionFailed, resp.status)

	require.NoError(t, f.processor.Confirm(session.ID))
	for i := 0; i < 2; i++ {
		resp = f.user(t, http.MethodPost, "/api/v1/payments/sessions/"+session.ID+"/complete", nil)
		require.Equal(t, http.StatusOK, resp.status)
		resp.decode(t, &session)
		assert.Equal(t, "complete", session.Status)
	}

	resp = f.user(t, http.MethodPost, "/api/v1/orders", body)
	require.Equal(t, http.StatusCreated, resp.status)
	var order orderDTO
	resp.decode(t, &order)
	assert.Equal(t, "Completed", order.PaymentStatus)

	resp = f.user(t, http.MethodPost, "/api/v1/orders", body)
	require.Equal(t, http.StatusCreated, resp.status)
	var again orderDTO
	resp.decode(t, &again)
	assert.Equal(t, order.ID, again.ID)
}

func TestAPI_SessionsAreScopedToOwner(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.user(t, http.MethodPost, "/api/v1/payments/sessions", map[string]any{"amount_minor": 1000})
	require.Equal(t, http.StatusCreated, resp.status)
	var session sessionDTO
	resp.decode(t, &session)
	require.NoError(t, f.processor.Confirm(session.ID))
	_, statusCalls := f.processor.Calls()

	resp = f.do(t, "seller-1", domain.RoleSeller, http.MethodGet, "/api/v1/payments/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.NotContains(t, string(resp.body), "1000")

	resp = f.do(t, "seller-1", domain.RoleSeller, http.MethodPost, "/api/v1/payments/sessions/"+session.ID+"/complete", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	_, after := f.processor.Calls()
	assert.Equal(t, statusCalls, after, "foreign requests must not reach the processor")

	resp = f.user(t, http.MethodPost, "/api/v1/payments/sessions/"+session.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.status)
	resp.decode(t, &session)
	assert.Equal(t, "complete", session.Status)
}

func TestAPI_ProcessorDown(t *testing.T) {
	f := newAPIFixture(t)
	f.processor.CreateErr = assert.AnError

	resp := f.user(t, http.MethodPost, "/api/v1/payments/sessions", map[string]any{"amount_minor": 1000})
	assert.Equal(t, http.StatusBadGateway, resp.status)
	assert.Equal(t, "upstream_error", resp.errorCode(t))
}

// Сценарий D и ролевой доступ.
func TestAPI_OrderStatusAndRoles(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"))
	require.Equal(t, http.StatusCreated, resp.status)
	var order orderDTO
	resp.decode(t, &order)

	statusPath := "/api/v1/orders/" + order.ID + "/status"

	resp = f.user(t, http.MethodPatch, statusPath, map[string]any{"status": "Shipped"})
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = f.do(t, "seller-1", domain.RoleSeller, http.MethodPatch, statusPath, map[string]any{"status": "Shipped"})
	require.Equal(t, http.StatusOK, resp.status)

	resp = f.do(t, "admin", domain.RoleAdmin, http.MethodPatch, statusPath, map[string]any{"status": "Bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.status)

	resp = f.do(t, "admin", domain.RoleAdmin, http.MethodPatch, "/api/v1/orders/missing/status", map[string]any{"status": "Shipped"})
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = f.user(t, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, resp.status)
	var details orderDTO
	resp.decode(t, &details)
	assert.Equal(t, "Shipped", details.Status)
	assert.Len(t, details.Timeline, 2)

	resp = f.do(t, "stranger", domain.RoleUser, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = f.do(t, "seller-1", domain.RoleSeller, http.MethodGet, "/api/v1/seller/orders", nil)
	require.Equal(t, http.StatusOK, resp.status)
	var sellerOrders []orderDTO
	resp.decode(t, &sellerOrders)
	assert.Len(t, sellerOrders, 1)

	resp = f.user(t, http.MethodGet, "/api/v1/seller/orders", nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = f.do(t, "seller-1", domain.RoleSeller, http.MethodGet, "/api/v1/admin/sales", nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = f.do(t, "admin", domain.RoleAdmin, http.MethodGet, "/api/v1/admin/sales", nil)
	require.Equal(t, http.StatusOK, resp.status)
	var sales salesResponse
	resp.decode(t, &sales)
	assert.Equal(t, int64(1000), sales.TotalMinor)
}

func TestAPI_IdempotencyKey(t *testing.T) {
	f := newAPIFixture(t)

	first := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"), HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, first.status)

	replay := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"), HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, replay.status)
	assert.Equal(t, "true", replay.header.Get(HeaderIdempotentReplay))
	assert.Equal(t, first.body, replay.body)

	mismatch := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1500, "CashOnDelivery"), HeaderIdempotencyKey, "key-1")
	assert.Equal(t, http.StatusConflict, mismatch.status)
	assert.Equal(t, "idempotency_key_reused", mismatch.errorCode(t))

	// Тот же ключ другого пользователя не пересекается с первым.
	other := f.do(t, "seller-1", domain.RoleSeller, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"), HeaderIdempotencyKey, "key-1")
	assert.Equal(t, http.StatusCreated, other.status)
	assert.Empty(t, other.header.Get(HeaderIdempotentReplay))

	resp := f.user(t, http.MethodGet, "/api/v1/orders", nil)
	var mine []orderDTO
	resp.decode(t, &mine)
	assert.Len(t, mine, 1)
}

type flakyOrders struct {
	calls atomic.Int32
	fail  error
}

func (o *flakyOrders) CreateOrder(_ context.Context, req checkout.CreateOrderRequest) (domain.Order, error) {
	if o.calls.Add(1) == 1 {
		return domain.Order{}, o.fail
	}
	return domain.Order{
		ID:            "order-1",
		UserID:        req.UserID,
		AmountMinor:   1000,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
	}, nil
}

func TestAPI_IdempotencyKeyRetriesAfterTransientFailure(t *testing.T) {
	tests := []struct {
		name   string
		fail   error
		status int
	}{
		{name: "client gone", fail: context.Canceled, status: idempotency.StatusClientClosedRequest},
		{name: "timeout", fail: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{name: "processor down", fail: domain.ErrProcessorUnavailable, status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &flakyOrders{fail: tt.fail}
			auth := NewAuthenticator("test-secret", "")
			server := httptest.NewServer(NewRouter(Config{
				Orders:      orders,
				Auth:        auth,
				Idempotency: idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour),
				Logger:      quietLogger(),
			}))
			t.Cleanup(server.Close)
			f := &apiFixture{server: server, auth: auth}

			first := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"), HeaderIdempotencyKey, "key-retry")
			assert.Equal(t, tt.status, first.status)

			second := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"), HeaderIdempotencyKey, "key-retry")
			require.Equal(t, http.StatusCreated, second.status, string(second.body))
			assert.Empty(t, second.header.Get(HeaderIdempotentReplay))
			assert.Equal(t, int32(2), orders.calls.Load())

			third := f.user(t, http.MethodPost, "/api/v1/orders", orderBody(1000, "CashOnDelivery"), HeaderIdempotencyKey, "key-retry")
			require.Equal(t, http.StatusCreated, third.status)
			assert.Equal(t, "true", third.header.Get(HeaderIdempotentReplay))
			assert.Equal(t, int32(2), orders.calls.Load())
		})
	}
}

func TestAPI_RecordsMetricsByRoute(t *testing.T) {
	f := newAPIFixture(t)

	f.user(t, http.MethodGet, "/api/v1/cart", nil)
	f.user(t, http.MethodGet, "/api/v1/payments/sessions/cs_1", nil)

	count, err := testutil.GatherAndCount(f.registry, "checkout_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	resp := f.user(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.status)
}
