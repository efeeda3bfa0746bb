package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

// testConfig возвращает конфигурацию на случайных локальных портах без внешних зависимостей.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.JWTSecret = "test-secret"
	return cfg
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}
