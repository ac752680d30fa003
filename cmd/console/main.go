package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/paylimit-gate/internal/console/handler"
	"github.com/xela07ax/paylimit-gate/internal/console/server"
	"github.com/xela07ax/paylimit-gate/internal/console/service"
	"github.com/xela07ax/paylimit-gate/internal/infra"
	"github.com/xela07ax/paylimit-gate/internal/infra/auth"
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
		logger.Fatal("console stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Инициализация ресурсов
	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := infra.WaitReady(ctx, "postgres", db.PingContext, logger); err != nil {
		return err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := infra.WaitReady(ctx, "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, logger); err != nil {
		return err
	}

	// Консоль и подписывает, и проверяет токены
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return err
	}
	validator := auth.NewBaseValidator(&privKey.PublicKey, cfg.Auth.Issuer)

	// 2. Инициализация слоев (Dependency Injection)
	authService := service.NewAuthService(postgres.NewUserRepo(db), validator, privKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL, logger)
	settings := service.NewSettingsProxy(postgres.NewPolicyRepo(db), rdb, logger)

	consoleSrv := server.NewConsoleServer(
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewSettingsHandler(settings, logger),
	)

	// 3. Запуск сервера
	srv := &http.Server{
		Addr:         cfg.Console.Addr(),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Console.ReadTimeout,
		WriteTimeout: cfg.Console.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("console stopping...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown failed", zap.Error(err))
	}
	return runErr
}
