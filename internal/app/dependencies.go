package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/mongo"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
	"github.com/vladislavdragonenkov/checkout/internal/storage/redis"
)

// runtimeDependencies — хранилища и внешние клиенты, выбранные конфигурацией.
type runtimeDependencies struct {
	repo            domain.OrderRepository
	sessionRepo     domain.PaymentSessionRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	cartRepo  domain.CartRepository
	catalog   domain.ProductCatalog
	users     domain.UserDirectory
	cartCache domain.CartCache

	processor domain.PaymentProcessor

	checkers map[string]healthcheck.Checker
	closers  []func(context.Context) error
}

// initRuntimeDependencies открывает хранилища. При ошибке уже открытые ресурсы закрываются.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *runtimeDependencies, err error) {
	deps = &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}
	defer func() {
		if err != nil {
			deps.close(context.Background(), logger)
			deps = nil
		}
	}()

	if err = deps.initOrderStorage(ctx, cfg, logger); err != nil {
		return deps, err
	}
	if err = deps.initCartStorage(ctx, cfg, logger); err != nil {
		return deps, err
	}
	deps.initCartCache(cfg, logger)
	if err = deps.initProcessor(cfg, logger); err != nil {
		return deps, err
	}
	return deps, nil
}

func (d *runtimeDependencies) initOrderStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		d.repo = memory.NewOrderRepository()
		d.sessionRepo = memory.NewPaymentSessionRepository()
		d.outboxRepo = memory.NewOutboxRepository()
		d.timelineRepo = memory.NewTimelineRepository()
		d.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("order storage: memory")
		return nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres storage requires dsn")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func(context.Context) error { return store.Close() })

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}

		d.repo = postgres.NewOrderRepository(store)
		d.sessionRepo = postgres.NewPaymentSessionRepository(store)
		d.outboxRepo = postgres.NewOutboxRepository(store)
		d.timelineRepo = postgres.NewTimelineRepository(store)
		d.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		d.checkers["postgres"] = healthcheck.NewSimpleChecker("postgres", store.Ping)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("order storage: postgres")
		return nil
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) initCartStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	if cfg.MongoURI == "" {
		catalog := memory.NewCatalog()
		if err := seedCatalog(cfg.CatalogSeedPath, func(products []domain.Product, users []domain.User) error {
			for _, p := range products {
				catalog.PutProduct(p)
			}
			for _, u := range users {
				catalog.PutUser(u)
			}
			return nil
		}); err != nil {
			return err
		}
		d.cartRepo = memory.NewCartRepository()
		d.catalog = catalog
		d.users = catalog
		logger.Info("cart storage: memory")
		return nil
	}

	db, err := mongo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, func(ctx context.Context) error { return mongo.Disconnect(ctx, db) })

	carts := mongo.NewCartRepository(db)
	if err := carts.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create cart indexes: %w", err)
	}
	catalog := mongo.NewCatalog(db)
	if err := seedCatalog(cfg.CatalogSeedPath, func(products []domain.Product, users []domain.User) error {
		for _, p := range products {
			if err := catalog.PutProduct(ctx, p); err != nil {
				return err
			}
		}
		for _, u := range users {
			if err := catalog.PutUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	d.cartRepo = carts
	d.catalog = catalog
	d.users = catalog
	d.checkers["mongodb"] = healthcheck.NewSimpleChecker("mongodb", func(ctx context.Context) error {
		return mongo.Ping(ctx, db)
	})
	logger.WithField("database", cfg.MongoDatabase).Info("cart storage: mongodb")
	return nil
}

// seedCatalog читает JSON-файл с товарами и пользователями, если путь задан.
func seedCatalog(path string, put func([]domain.Product, []domain.User) error) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()

	products, users, err := memory.DecodeCatalogSeed(f)
	if err != nil {
		return fmt.Errorf("decode catalog seed: %w", err)
	}
	if err := put(products, users); err != nil {
		return fmt.Errorf("load catalog seed: %w", err)
	}
	return nil
}

// initCartCache подключает Redis. Недоступный кэш не мешает старту: корзина читается из хранилища.
func (d *runtimeDependencies) initCartCache(cfg Config, logger *log.Entry) {
	if cfg.RedisAddr == "" {
		return
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cache := redis.NewCartCache(client, cfg.CartCacheTTL)
	d.cartCache = cache
	d.closers = append(d.closers, func(context.Context) error { return client.Close() })
	d.checkers["redis"] = healthcheck.NewOptionalChecker("redis", cache.Ping)
	logger.WithField("addr", cfg.RedisAddr).Info("cart cache: redis")
}

func (d *runtimeDependencies) initProcessor(cfg Config, logger *log.Entry) error {
	switch cfg.ProcessorDriver {
	case ProcessorDriverMock, "":
		d.processor = payment.NewMockProcessor()
		logger.Warn("payment processor: mock, sessions are never paid by a real provider")
		return nil
	case ProcessorDriverHTTP:
		processor, err := payment.NewHTTPProcessor(payment.HTTPProcessorConfig{
			BaseURL:    cfg.ProcessorBaseURL,
			SecretKey:  cfg.ProcessorSecretKey,
			Currency:   cfg.ProcessorCurrency,
			SuccessURL: cfg.ProcessorSuccessURL,
			CancelURL:  cfg.ProcessorCancelURL,
			Timeout:    cfg.ProcessorTimeout,
		})
		if err != nil {
			return err
		}
		d.processor = processor
		logger.WithField("base_url", cfg.ProcessorBaseURL).Info("payment processor: http")
		return nil
	default:
		return fmt.Errorf("unsupported payment processor driver %q", cfg.ProcessorDriver)
	}
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close(ctx context.Context, logger *log.Entry) {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}
