package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
	"github.com/vladislavdragonenkov/checkout/internal/service/idempotency"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

const grpcStopTimeout = 5 * time.Second

// Run поднимает HTTP API, gRPC health, метрики и фоновые воркеры до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(context.Background(), logger)

	bus, err := initKafkaProducer(cfg, logger)
	if err != nil {
		return err
	}
	defer bus.close(logger)

	checkoutMetrics := metrics.NewCheckoutMetrics()
	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
	svc := newServices(cfg, deps, checkoutMetrics, logger)

	// Воркеры живут дольше входящих запросов: их останавливаем после HTTP и gRPC.
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()
	var workers sync.WaitGroup
	startWorkers(workerCtx, &workers, cfg, deps, bus, logger)

	if err := bus.startPaymentEvents(workerCtx, cfg, svc.payments, logger); err != nil {
		logger.WithError(err).Warn("payment events consumer is disabled")
	}

	grpcServer, healthServer := newGRPCServer(logger)

	build := version.Current()
	metrics.RegisterBuildInfo(prometheus.DefaultRegisterer, build.Version, build.ShortCommit())
	healthHandler := healthcheck.NewHandler(build.Version)
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	httpSrv := &http.Server{
		Handler:           svc.router(cfg, httpMetrics, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("сервер завершился с ошибкой")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown with error")
	}
	stopGRPC(grpcServer, logger)
	if err := svc.shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("background tasks did not finish before shutdown timeout")
	}

	stopWorkers()
	workers.Wait()
	shutdownHTTP(metricsSrv, logger)

	return runErr
}

// startWorkers запускает relay outbox и очистку просроченных idempotency ключей.
func startWorkers(ctx context.Context, wg *sync.WaitGroup, cfg Config, deps *runtimeDependencies, bus *messaging, logger *log.Entry) {
	workerMetrics := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer)

	relay := outbox.NewRelay(deps.outboxRepo, bus.publisher, outbox.Config{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		RetryDelay:   cfg.OutboxRetryDelay,
	},
		outbox.WithLogger(logger.WithField("component", "outbox-relay")),
		outbox.WithDeadLetters(bus.dlq),
		outbox.WithMetrics(workerMetrics),
	)

	sweeper := idempotency.NewSweeper(deps.idempotencyRepo, idempotency.SweepConfig{
		Interval:  cfg.IdempotencyCleanupInterval,
		BatchSize: cfg.IdempotencyCleanupBatchSize,
	},
		idempotency.WithLogger(logger.WithField("component", "idempotency-sweeper")),
		idempotency.WithMetrics(workerMetrics),
	)

	for _, run := range []func(context.Context){relay.Run, sweeper.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx)
		}()
	}
}

// newGRPCServer отдаёт grpc.health.v1 и reflection с метриками go-grpc-prometheus.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startMetricsServer запускает /metrics и health checks на отдельном адресе.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
