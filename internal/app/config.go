package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "CHECKOUT"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	ProcessorDriverMock = "mock"
	ProcessorDriverHTTP = "http"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR"`
	GRPCAddr    string `envconfig:"GRPC_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE"`
	PostgresMaxConns    int    `envconfig:"POSTGRES_MAX_CONNS"`

	// Корзины, товары и пользователи; пустой URI оставляет их в памяти.
	MongoURI        string `envconfig:"MONGO_URI"`
	MongoDatabase   string `envconfig:"MONGO_DATABASE"`
	CatalogSeedPath string `envconfig:"CATALOG_SEED_PATH"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB"`
	CartCacheTTL  time.Duration `envconfig:"CART_CACHE_TTL"`

	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	KafkaClientID      string   `envconfig:"KAFKA_CLIENT_ID"`
	KafkaConsumerGroup string   `envconfig:"KAFKA_CONSUMER_GROUP"`
	KafkaMaxRetries    int      `envconfig:"KAFKA_MAX_RETRIES"`

	ProcessorDriver      string        `envconfig:"PROCESSOR_DRIVER"`
	ProcessorBaseURL     string        `envconfig:"PROCESSOR_BASE_URL"`
	ProcessorSecretKey   string        `envconfig:"PROCESSOR_SECRET_KEY"`
	ProcessorCurrency    string        `envconfig:"PROCESSOR_CURRENCY"`
	ProcessorSuccessURL  string        `envconfig:"PROCESSOR_SUCCESS_URL"`
	ProcessorCancelURL   string        `envconfig:"PROCESSOR_CANCEL_URL"`
	ProcessorTimeout     time.Duration `envconfig:"PROCESSOR_TIMEOUT"`
	PaymentVerifyTimeout time.Duration `envconfig:"PAYMENT_VERIFY_TIMEOUT"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`

	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT"`
	BackgroundTimeout time.Duration `envconfig:"BACKGROUND_TIMEOUT"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`

	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,

		MongoDatabase: "checkout",
		CartCacheTTL:  10 * time.Minute,

		KafkaClientID:      "checkout-service",
		KafkaConsumerGroup: "checkout-payment-events",
		KafkaMaxRetries:    3,

		ProcessorDriver:      ProcessorDriverMock,
		ProcessorCurrency:    "usd",
		ProcessorTimeout:     10 * time.Second,
		PaymentVerifyTimeout: 5 * time.Second,

		RequestTimeout:    30 * time.Second,
		BackgroundTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// LoadConfig накладывает переменные окружения CHECKOUT_* на DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read %s_* environment: %w", EnvPrefix, err)
	}
	return cfg, cfg.Validate()
}

// Validate проверяет связанные между собой параметры.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres storage requires %s_POSTGRES_DSN", EnvPrefix)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	switch c.ProcessorDriver {
	case ProcessorDriverMock:
	case ProcessorDriverHTTP:
		if strings.TrimSpace(c.ProcessorBaseURL) == "" {
			return fmt.Errorf("http payment processor requires %s_PROCESSOR_BASE_URL", EnvPrefix)
		}
	default:
		return fmt.Errorf("unsupported payment processor driver %q", c.ProcessorDriver)
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("%s_JWT_SECRET is required", EnvPrefix)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaConsumerGroup == "" {
		return fmt.Errorf("kafka consumer group is required when brokers are set")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Level возвращает уровень логирования; ошибка разбора отсекается в Validate.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
