package postgres

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	src, err := iofs.New(migrationsFS, "sql/migrations")
	if err != nil {
		t.Fatalf("iofs.New failed: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first version 1, got %d", first)
	}

	up, _, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("read up: %v", err)
	}
	defer up.Close()
	body, err := io.ReadAll(up)
	if err != nil {
		t.Fatalf("read up body: %v", err)
	}
	for _, table := range []string{"orders", "order_items", "payment_sessions", "outbox_messages", "idempotency_keys", "timeline_events"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("up migration does not create %s", table)
		}
	}

	down, _, err := src.ReadDown(first)
	if err != nil {
		t.Fatalf("read down: %v", err)
	}
	_ = down.Close()
}
