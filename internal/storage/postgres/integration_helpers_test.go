package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Если ни один DSN из окружения не отвечает, тесты поднимают общий контейнер.
var dsnEnvVars = []string{"CHECKOUT_POSTGRES_TEST_DSN", "CHECKOUT_POSTGRES_DSN"}

var shared struct {
	once      sync.Once
	container testcontainers.Container
	dsn       string
	err       error
}

func TestMain(m *testing.M) {
	code := m.Run()
	if shared.container != nil {
		_ = shared.container.Terminate(context.Background())
	}
	os.Exit(code)
}

// openMigratedStore открывает хранилище с применённой схемой и пустыми таблицами.
func openMigratedStore(t *testing.T) *Store {
	t.Helper()

	store := openStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	_, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE idempotency_keys, outbox_messages,
		timeline_events, payment_sessions, order_items, orders RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return store
}

// openStore открывает хранилище без миграций.
func openStore(t *testing.T) *Store {
	t.Helper()

	for _, name := range dsnEnvVars {
		dsn := strings.TrimSpace(os.Getenv(name))
		if dsn == "" {
			continue
		}
		store, err := openWithTimeout(dsn)
		if err != nil {
			t.Logf("%s is not reachable: %v", name, err)
			continue
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)
	shared.once.Do(startContainer)
	require.NoError(t, shared.err, "start postgres container")

	store, err := openWithTimeout(shared.dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func openWithTimeout(dsn string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Open(ctx, dsn, WithMaxConns(5))
}

func startContainer() {
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkout",
				"POSTGRES_PASSWORD": "checkout",
				"POSTGRES_DB":       "checkout",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		shared.err = err
		return
	}
	shared.container = c

	host, err := c.Host(ctx)
	if err != nil {
		shared.err = err
		return
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		shared.err = err
		return
	}
	shared.dsn = fmt.Sprintf("postgres://checkout:checkout@%s:%s/checkout?sslmode=disable", host, port.Port())
}
