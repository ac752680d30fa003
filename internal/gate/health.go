package gate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger - то, доступность чего определяет статус сервиса (обычно *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewGRPCServer поднимает gRPC-сервер со стандартным health-сервисом.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger.Named("grpc"))))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchDatabase периодически пингует БД и переключает статус health-сервиса.
// Блокируется до отмены ctx.
func WatchDatabase(ctx context.Context, hs *health.Server, db Pinger, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkDatabase(ctx, hs, db, logger)

		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func checkDatabase(ctx context.Context, hs *health.Server, db Pinger, logger *zap.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("database ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Debug("rpc failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return resp, err
	}
}
