package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// opTimeout ограничивает одиночный запрос репозитория.
const opTimeout = 5 * time.Second

const pgUniqueViolation = "23505"

// PoolConfig — параметры пула соединений database/sql.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

// DefaultPoolConfig подходит для одного инстанса сервиса.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpen:     25,
		MaxIdle:     25,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
		PingTimeout: 5 * time.Second,
	}
}

// Option меняет PoolConfig перед открытием пула.
type Option func(*PoolConfig)

// WithMaxConns ограничивает число открытых и простаивающих соединений.
func WithMaxConns(n int) Option {
	return func(c *PoolConfig) {
		if n > 0 {
			c.MaxOpen = n
			c.MaxIdle = n
		}
	}
}

// WithPingTimeout задаёт таймаут проверки доступности.
func WithPingTimeout(d time.Duration) Option {
	return func(c *PoolConfig) {
		if d > 0 {
			c.PingTimeout = d
		}
	}
}

// Store владеет пулом соединений к PostgreSQL.
type Store struct {
	db   *sql.DB
	dsn  string
	pool PoolConfig
}

// Open поднимает пул через драйвер pgx и дожидается первого успешного ping.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool := DefaultPoolConfig()
	for _, opt := range opts {
		opt(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	store := &Store{db: db, dsn: dsn, pool: pool}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул для запросов вне репозиториев.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-чекером.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.pool.PingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close закрывает пул. Вызов на nil безопасен.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx выполняет fn в транзакции: коммит при nil, откат при ошибке или панике.
func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
