package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Lifecycle - то же, что gate.Lifecycle. Объявлен здесь, чтобы не тянуть пакет гейта.
type Lifecycle interface {
	Post(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error)
	ResetToDraft(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error)
}

// ProtectedLifecycle оборачивает удаленную учетную систему в Circuit Breaker и лимитер.
// Повторов нет: ошибка перехода должна дойти до пользователя как есть.
type ProtectedLifecycle struct {
	next    Lifecycle
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewProtectedLifecycle(next Lifecycle, cfg infra.HostConfig, reg prometheus.Registerer, logger *zap.Logger) *ProtectedLifecycle {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	state := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "paygate_host_circuit_state",
		Help: "Current state of the host circuit breaker (0=closed, 1=half-open, 2=open).",
	})
	logger = logger.Named("host-cb")

	maxFailures := cfg.CBMaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "paygate-host",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > maxFailures
		},
		// Бизнес-отказы учетной системы - не повод открывать предохранитель
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrInvalidTransition) ||
				errors.Is(err, domain.ErrPaymentNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			state.Set(float64(to))
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}

	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &ProtectedLifecycle{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (p *ProtectedLifecycle) Post(ctx context.Context, pay *domain.Payment) (domain.TransitionResult, error) {
	return p.call(ctx, func() (domain.TransitionResult, error) { return p.next.Post(ctx, pay) })
}

func (p *ProtectedLifecycle) ResetToDraft(ctx context.Context, pay *domain.Payment) (domain.TransitionResult, error) {
	return p.call(ctx, func() (domain.TransitionResult, error) { return p.next.ResetToDraft(ctx, pay) })
}

func (p *ProtectedLifecycle) call(ctx context.Context, fn func() (domain.TransitionResult, error)) (domain.TransitionResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.TransitionResult{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	res, err := p.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}
	return res.(domain.TransitionResult), nil
}
