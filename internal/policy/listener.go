package policy

import (
	"context"
	"strings"
	"time"

	"github.com/xela07ax/paylimit-gate/internal/infra"
	"go.uber.org/zap"
)

// Listen - "живучая" подписка на сигналы обновления политик.
// После каждого (пере)подключения кэш перечитывается целиком: пока нас не было,
// сигналы могли потеряться. Выходит по отмене ctx.
func (c *Cache) Listen(ctx context.Context) {
	for {
		pubsub := c.rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to subscribe", zap.String("chan", infra.RedisChanPolicyUpdate), zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if err := c.Refresh(ctx); err != nil {
			c.logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				orgID := strings.TrimSpace(msg.Payload)
				if orgID == "" {
					c.logger.Warn("empty policy update signal")
					continue
				}
				c.Invalidate(orgID)
				c.logger.Debug("policy invalidated", zap.String("org_id", orgID))
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
