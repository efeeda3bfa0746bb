package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/app"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level log.Level) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(level)
}

// loadEnvFile подхватывает .env, если он есть; переменные окружения процесса важнее.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func main() {
	build := version.Current()
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Println(build)
		return
	}

	setupLogger(log.InfoLevel)
	if err := loadEnvFile(".env"); err != nil {
		log.WithError(err).Warn("не удалось прочитать .env")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	setupLogger(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      build.Version,
		"commit":       build.ShortCommit(),
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"processor":    cfg.ProcessorDriver,
	}).Info("запускаем CheckoutService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("CheckoutService остановлен")
}
