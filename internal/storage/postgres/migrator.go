package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// MigrationState — текущее состояние схемы.
type MigrationState struct {
	Version uint
	Dirty   bool
}

// MigrateUp применяет up-миграции. steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		if steps <= 0 {
			return m.Up()
		}
		return m.Steps(steps)
	})
}

// MigrateDown откатывает миграции. steps<=0 интерпретируется как 1 шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrator(ctx, func(m *migrate.Migrate) error {
		return m.Steps(-steps)
	})
}

// MigrationStatus возвращает текущую версию схемы. Версия 0 означает, что миграции не применялись.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	var state MigrationState
	err := s.withMigrator(ctx, func(m *migrate.Migrate) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return err
		}
		state = MigrationState{Version: version, Dirty: dirty}
		return nil
	})
	return state, err
}

// withMigrator открывает отдельное подключение: migrate.Close закрывает БД драйвера.
func (s *Store) withMigrator(ctx context.Context, fn func(*migrate.Migrate) error) error {
	if s == nil || s.dsn == "" {
		return fmt.Errorf("postgres store is not initialized")
	}

	src, err := iofs.New(migrationsFS, "sql/migrations")
	if err != nil {
		return fmt.Errorf("open migrations source: %w", err)
	}

	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("open migrations connection: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return fmt.Errorf("init migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return fmt.Errorf("init migrator: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	err = fn(m)
	var short migrate.ErrShortLimit
	if err == nil || errors.Is(err, migrate.ErrNoChange) || errors.As(err, &short) {
		return nil
	}
	return fmt.Errorf("migrate: %w", err)
}
