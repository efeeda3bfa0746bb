package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/cart"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	"github.com/vladislavdragonenkov/checkout/internal/service/notify"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpapi"
)

const testSecret = "load-secret"

type target struct {
	server *httptest.Server
	orders domain.OrderRepository
}

// newTarget поднимает HTTP API на памяти с двумя пользователями и товаром P1.
func newTarget(t *testing.T) *target {
	t.Helper()

	quiet := log.New()
	quiet.SetLevel(log.PanicLevel)
	logger := log.NewEntry(quiet)

	catalog := memory.NewCatalog()
	catalog.PutUser(domain.User{ID: "u1", Role: domain.RoleUser})
	catalog.PutUser(domain.User{ID: "u2", Role: domain.RoleUser})
	catalog.PutProduct(domain.Product{ID: "P1", Name: "Lamp", PriceMinor: 500, Stock: 1000, SellerID: "seller-1"})

	orders := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	payments := payment.NewManager(memory.NewPaymentSessionRepository(), payment.NewMockProcessor(), payment.WithLogger(logger))
	carts := cart.NewService(memory.NewCartRepository(), catalog, catalog, cart.WithLogger(logger))
	notifier := notify.NewOutboxNotifier(memory.NewOutboxRepository())
	bg := checkout.NewBackground(time.Second, logger)
	opts := []checkout.Option{checkout.WithLogger(logger), checkout.WithTimeline(timeline), checkout.WithBackground(bg)}
	finalizer := checkout.NewFinalizer(orders, catalog, catalog, payments, carts, notifier, opts...)

	server := httptest.NewServer(httpapi.NewRouter(httpapi.Config{
		Cart:        carts,
		Payments:    payments,
		Orders:      finalizer,
		Status:      checkout.NewStatusMutator(orders, catalog, notifier, opts...),
		Queries:     checkout.NewQueries(orders, timeline),
		Auth:        httpapi.NewAuthenticator(testSecret, ""),
		Idempotency: idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour),
		Metrics:     metrics.NewHTTPMetrics(prometheus.NewRegistry()),
		Logger:      logger,
	}))
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bg.Shutdown(ctx)
	})
	return &target{server: server, orders: orders}
}

func testLoadConfig(baseURL string, mode loadMode) config {
	return config{
		baseURL:     baseURL,
		users:       []string{"u1", "u2"},
		product:     "P1",
		quantity:    2,
		total:       6,
		concurrency: 2,
		timeout:     2 * time.Second,
		mode:        mode,
		jwtSecret:   testSecret,
	}
}

func TestRun_CartMode(t *testing.T) {
	tg := newTarget(t)

	result, err := run(context.Background(), testLoadConfig(tg.server.URL, modeCart), tg.server.Client())
	require.NoError(t, err)

	assert.Equal(t, int64(6), result.TotalScenarios)
	assert.Zero(t, result.FailedScenarios)
	assert.Equal(t, int64(6), result.Methods["UpsertCartItem"].Calls)
	assert.Equal(t, int64(6), result.Methods["ClearCart"].Codes["204"])
}

func TestRun_CheckoutMode(t *testing.T) {
	tg := newTarget(t)

	result, err := run(context.Background(), testLoadConfig(tg.server.URL, modeCheckout), tg.server.Client())
	require.NoError(t, err)

	assert.Zero(t, result.FailedScenarios, "%+v", result.Methods)
	assert.Equal(t, int64(6), result.Methods["CreateOrder"].Codes["201"])

	total, err := tg.orders.TotalSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6*1000), total)
}

func TestRun_WrongSecretFailsScenarios(t *testing.T) {
	tg := newTarget(t)
	cfg := testLoadConfig(tg.server.URL, modeCart)
	cfg.jwtSecret = "other"

	result, err := run(context.Background(), cfg, tg.server.Client())
	require.NoError(t, err)
	assert.Equal(t, result.TotalScenarios, result.FailedScenarios)
	assert.Equal(t, int64(6), result.Methods[scenarioMethod].Codes["401"])
}

func TestRun_UnknownProduct(t *testing.T) {
	tg := newTarget(t)
	cfg := testLoadConfig(tg.server.URL, modeCheckout)
	cfg.product = "missing"

	result, err := run(context.Background(), cfg, tg.server.Client())
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Methods["UpsertCartItem"].Codes["404"])
	assert.NotContains(t, result.Methods, "CreateOrder")
}

func TestApp_EndToEnd(t *testing.T) {
	tg := newTarget(t)
	reportPath := filepath.Join(t.TempDir(), "report.json")
	var out bytes.Buffer

	err := newApp(&out).Run([]string{"loadtest",
		"--addr=" + tg.server.URL + "/",
		"--users=u1",
		"--total=3",
		"--concurrency=1",
		"--mode=checkout",
		"--jwt-secret=" + testSecret,
		"--output=" + reportPath,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "mode=checkout run=count:3 total=3 success=3 failed=0")

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var saved report
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, int64(3), saved.SuccessScenarios)
}

func TestApp_FailedScenariosReturnError(t *testing.T) {
	tg := newTarget(t)

	err := newApp(&bytes.Buffer{}).Run([]string{"loadtest",
		"--addr=" + tg.server.URL,
		"--users=ghost",
		"--total=2",
		"--jwt-secret=" + testSecret,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 scenarios failed")
}

func captureConfig(t *testing.T, args ...string) (config, error) {
	t.Helper()
	var (
		cfg     config
		readErr error
	)
	app := newApp(&bytes.Buffer{})
	app.Action = func(c *cli.Context) error {
		cfg, readErr = readConfig(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"loadtest"}, args...)))
	return cfg, readErr
}

func TestReadConfig(t *testing.T) {
	t.Setenv("CHECKOUT_JWT_SECRET", "env-secret")

	cfg, err := captureConfig(t, "--users= a , ,b", "--duration=1m", "--total=10")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.users)
	assert.Equal(t, "env-secret", cfg.jwtSecret)
	assert.True(t, cfg.totalSet)
	assert.Equal(t, "duration:1m0s,max-total:10", runTarget(cfg))

	cfg, err = captureConfig(t)
	require.NoError(t, err)
	assert.False(t, cfg.totalSet)
	assert.Equal(t, modeCart, cfg.mode)
}

func TestReadConfig_Validation(t *testing.T) {
	t.Setenv("CHECKOUT_JWT_SECRET", "env-secret")

	tests := map[string][]string{
		"unsupported mode":             {"--mode=pay"},
		"at least one user":            {"--users=,"},
		"product is required":          {"--product= "},
		"quantity must be > 0":         {"--quantity=0"},
		"total must be > 0":            {"--total=0"},
		"concurrency must be > 0":      {"--concurrency=0"},
		"timeout must be > 0":          {"--timeout=0s"},
		"jwt-secret":                   {"--jwt-secret= "},
		"explicitly set with duration": {"--duration=1m", "--total=0"},
	}
	for want, args := range tests {
		_, err := captureConfig(t, args...)
		require.Error(t, err, want)
		assert.Contains(t, err.Error(), want)
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(context.Background(), jobs, config{total: 3})
	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	assert.Equal(t, []int{0, 1, 2}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := make(chan int)
	dispatchJobs(ctx, blocked, config{duration: time.Minute})
	_, open := <-blocked
	assert.False(t, open)
}

func TestCollectorReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, 10*time.Millisecond, "ok", true)
	col.record(scenarioMethod, 30*time.Millisecond, "500", false)
	col.record("CreateOrder", 5*time.Millisecond, "201", true)

	result := col.buildReport(time.Now(), 2*time.Second)
	assert.Equal(t, int64(2), result.TotalScenarios)
	assert.Equal(t, int64(1), result.FailedScenarios)
	assert.InDelta(t, 0.5, result.ErrorRate, 1e-9)
	assert.InDelta(t, 1.0, result.RPS, 1e-9)
	assert.InDelta(t, 20.0, result.ScenarioLatencyMs.Avg, 1e-9)
	assert.Equal(t, int64(1), result.Methods["CreateOrder"].Codes["201"])

	var out bytes.Buffer
	printReport(&out, result, config{mode: modeCheckout, total: 2})
	assert.Contains(t, out.String(), "CreateOrder: calls=1 success=1 failed=0")
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50), 1e-9)
	assert.Equal(t, 4.0, percentile([]float64{1, 2, 3, 4}, 100))
	assert.Zero(t, ratio(1, 0))
}

func TestWriteJSONReport_RejectsBadPaths(t *testing.T) {
	assert.Error(t, writeJSONReport(".", report{}))
	assert.Error(t, writeJSONReport("../outside.json", report{}))
}

func TestAPIClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	col := newCollector()
	client := &apiClient{baseURL: url, http: http.DefaultClient, tokens: map[string]string{}, col: col}
	err := client.call(context.Background(), http.MethodGet, "GetCart", "u1", "/api/v1/cart", nil, http.StatusOK, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int64(1), col.buildReport(time.Now(), time.Second).Methods["GetCart"].Codes[transportErrorCode])
}
