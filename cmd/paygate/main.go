package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/paylimit-gate/internal/connectors"
	"github.com/xela07ax/paylimit-gate/internal/gate"
	"github.com/xela07ax/paylimit-gate/internal/infra"
	"github.com/xela07ax/paylimit-gate/internal/infra/auth"
	"github.com/xela07ax/paylimit-gate/internal/policy"
	"github.com/xela07ax/paylimit-gate/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("paygate stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст для управления жизненным циклом фоновых горутин.
	// SIGTERM отменит его и остановит слушателей.
	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := infra.InitTracing(cfg.Tracing)
		if err != nil {
			return err
		}
		defer shutdownTracing(context.Background())
	}

	// 1. Инфраструктура и ресурсы
	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := infra.WaitReady(appCtx, "postgres", db.PingContext, logger); err != nil {
		return err
	}
	if err := postgres.Migrate(appCtx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := infra.WaitReady(appCtx, "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, logger); err != nil {
		return err
	}

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 2. Политики: холодная загрузка и подписка на изменения из консоли
	policies := policy.NewCache(postgres.NewPolicyRepo(db), rdb, logger)
	if err := policies.Refresh(appCtx); err != nil {
		return err
	}
	go policies.Listen(appCtx)

	// 3. Жизненный цикл платежа: своя таблица или внешняя учетная система
	payments := postgres.NewPaymentRepo(db)
	var lifecycle gate.Lifecycle
	switch cfg.Host.Mode {
	case "local":
		lifecycle = payments
	case "remote":
		lifecycle = connectors.NewProtectedLifecycle(
			connectors.NewHostClient(cfg.Host.BaseURL, cfg.Host.Timeout), cfg.Host, reg, logger)
	default:
		return fmt.Errorf("unknown host.mode %q", cfg.Host.Mode)
	}

	// 4. Ядро
	g := gate.New(policies, lifecycle, auth.ScopeChecker{}, gate.NewMetrics(reg), logger)
	svc := gate.NewService(g, payments, postgres.NewTxManager(db, logger), logger)
	router := gate.NewRouter(gate.NewHandler(svc, logger), auth.NewBaseValidator(pubKey, cfg.Auth.Issuer), logger)

	// 5. Серверы
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: metricsMux}

	grpcSrv, health := gate.NewGRPCServer(logger)
	go gate.WatchDatabase(appCtx, health, db, 10*time.Second, logger)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("gRPC health server started", zap.String("addr", lis.Addr().String()))
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info("metrics server started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("paygate started", zap.String("addr", srv.Addr), zap.String("host_mode", cfg.Host.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 6. Graceful Shutdown
	var runErr error
	select {
	case <-appCtx.Done():
		logger.Info("paygate stopping...")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	// Даем 5 секунд на завершение запросов
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	logger.Info("paygate exited properly")
	return runErr
}
