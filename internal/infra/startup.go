package infra

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

const startupAttempts = 5

// WaitReady ждет, пока зависимость (БД, Redis) начнет отвечать, с экспоненциальной задержкой.
// Только для старта процесса: в обработке платежей повторов нет.
func WaitReady(ctx context.Context, name string, ping func(ctx context.Context) error, logger *zap.Logger) error {
	attempt := 0
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(startupAttempts),
		retry.DelayType(retry.BackOffDelay),
	)

	err := r.Do(func() error {
		attempt++
		if err := ping(ctx); err != nil {
			logger.Warn("dependency is not ready",
				zap.String("dependency", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", name, err)
	}

	logger.Info("dependency is ready", zap.String("dependency", name))
	return nil
}
