package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestRun_AddressInUse(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig(t)
	cfg.HTTPAddr = busy.Listener.Addr().String()

	err := Run(context.Background(), cfg)
	require.Error(t, err)
}

// Сервисы, собранные newServices, проходят оформление заказа за наличные через HTTP API.
func TestServices_CashCheckoutThroughRouter(t *testing.T) {
	cfg := testConfig(t)
	deps, err := initRuntimeDependencies(context.Background(), cfg, quietLogger())
	require.NoError(t, err)

	catalog := deps.catalog.(*memory.Catalog)
	catalog.PutUser(domain.User{ID: "u1", Email: "ann@example.com", Role: domain.RoleUser})
	catalog.PutProduct(domain.Product{ID: "P1", Name: "Lamp", PriceMinor: 500, Stock: 10, SellerID: "seller-1"})

	registry := prometheus.NewRegistry()
	svc := newServices(cfg, deps, metrics.NewCheckoutMetricsWithRegisterer(registry), quietLogger())
	server := httptest.NewServer(svc.router(cfg, metrics.NewHTTPMetrics(registry), quietLogger()))
	defer server.Close()

	token, err := svc.auth.Issue("u1", domain.RoleUser, time.Minute)
	require.NoError(t, err)

	call := func(method, path string, body any) *http.Response {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(method, server.URL+path, bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := call(http.MethodPut, "/api/v1/cart/items/P1", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(http.MethodPost, "/api/v1/orders", map[string]any{
		"items":            []map[string]any{{"product_id": "P1", "quantity": 2}},
		"total_minor":      1000,
		"payment_method":   "CashOnDelivery",
		"shipping_address": "1 Main St",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.shutdown(ctx))

	// корзина очищается в фоне после коммита
	count, err := svc.cart.CountItems(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, count)

	pending, err := deps.outboxRepo.PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "order.confirmation", pending[0].EventType)
}
