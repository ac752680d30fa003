package gate

import (
	"context"
	"time"

	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/risk"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Lifecycle - переходы post/draft хост-системы. Гейт их не реализует, а только оборачивает.
type Lifecycle interface {
	Post(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error)
	ResetToDraft(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error)
}

// PolicyProvider отдает текущую политику организации платежа.
type PolicyProvider interface {
	PolicyFor(ctx context.Context, orgID string) (domain.OrganizationPolicy, error)
}

// CapabilityChecker - ролевая модель хоста.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, actor domain.Actor, capability string) bool
}

// Gate - PaymentApprovalGate. Держит два флага платежа и решает,
// можно ли пропустить переход post в хост-систему.
type Gate struct {
	policies  PolicyProvider
	lifecycle Lifecycle
	checker   CapabilityChecker
	analyzer  *risk.Analyzer
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *zap.Logger
}

func New(policies PolicyProvider, lifecycle Lifecycle, checker CapabilityChecker, metrics *Metrics, logger *zap.Logger) *Gate {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Gate{
		policies:  policies,
		lifecycle: lifecycle,
		checker:   checker,
		analyzer:  risk.NewAnalyzer(logger),
		metrics:   metrics,
		tracer:    otel.Tracer("github.com/xela07ax/paylimit-gate/internal/gate"),
		logger:    logger.Named("gate"),
	}
}

// ComputeRequiresApproval пересчитывает производный флаг по текущей сумме и текущей политике
// и записывает его в платеж. Вызывать при каждом изменении суммы.
func (g *Gate) ComputeRequiresApproval(ctx context.Context, p *domain.Payment) (bool, error) {
	policy, err := g.policies.PolicyFor(ctx, p.OrgID)
	if err != nil {
		return false, err
	}
	p.RequiresFinanceApproval = g.analyzer.IsRequired(policy, p.Amount)
	return p.RequiresFinanceApproval, nil
}

// TryPost - защищенный переход post.
// Мягкий отказ возвращается как результат, а не как ошибка.
// Ошибка хост-системы отдается вызывающему без обертки.
func (g *Gate) TryPost(ctx context.Context, p *domain.Payment) (domain.PostResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.TryPost", trace.WithAttributes(
		attribute.String("payment.id", p.ID),
		attribute.String("payment.org_id", p.OrgID),
	))
	defer span.End()

	// Флаг из хранилища мог устареть после смены политики
	required, err := g.ComputeRequiresApproval(ctx, p)
	if err != nil {
		span.RecordError(err)
		g.metrics.PostAttempts.WithLabelValues(outcomeFailed).Inc()
		return domain.PostResult{}, err
	}

	if required && !p.ApprovedByFinance {
		span.SetAttributes(attribute.String("gate.outcome", string(domain.OutcomeApprovalRequired)))
		g.metrics.PostAttempts.WithLabelValues(string(domain.OutcomeApprovalRequired)).Inc()
		g.logger.Info("post deferred: finance approval required",
			zap.String("payment_id", p.ID),
			zap.String("org_id", p.OrgID),
			zap.String("amount", p.Amount.String()))

		return domain.PostResult{
			Outcome:  domain.OutcomeApprovalRequired,
			Advisory: domain.ApprovalRequiredAdvisory(),
		}, nil
	}

	p.ApprovedByFinance = true

	start := time.Now()
	res, err := g.lifecycle.Post(ctx, p)
	g.metrics.TransitionDuration.WithLabelValues("post").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		g.metrics.PostAttempts.WithLabelValues(outcomeFailed).Inc()
		return domain.PostResult{}, err
	}

	span.SetAttributes(attribute.String("gate.outcome", string(domain.OutcomePosted)))
	g.metrics.PostAttempts.WithLabelValues(string(domain.OutcomePosted)).Inc()
	return domain.PostResult{Outcome: domain.OutcomePosted, Transition: &res}, nil
}

// ResetToDraft сбрасывает подтверждение и отдает переход хост-системе.
func (g *Gate) ResetToDraft(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error) {
	ctx, span := g.tracer.Start(ctx, "gate.ResetToDraft", trace.WithAttributes(
		attribute.String("payment.id", p.ID),
	))
	defer span.End()

	p.ApprovedByFinance = false

	start := time.Now()
	res, err := g.lifecycle.ResetToDraft(ctx, p)
	g.metrics.TransitionDuration.WithLabelValues("draft").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

// ApproveAndPost - действие финансиста: ставит подтверждение и сразу проводит платеж.
// Без capability finance_approval платеж не трогается.
func (g *Gate) ApproveAndPost(ctx context.Context, p *domain.Payment, actor domain.Actor) (domain.PostResult, error) {
	if !g.checker.HasCapability(ctx, actor, domain.CapabilityFinanceApproval) {
		g.metrics.Approvals.WithLabelValues("forbidden").Inc()
		g.logger.Warn("finance approval denied",
			zap.String("payment_id", p.ID),
			zap.String("actor", actor.UserID))
		return domain.PostResult{}, domain.ErrForbidden
	}

	p.ApprovedByFinance = true
	g.metrics.Approvals.WithLabelValues("granted").Inc()
	g.logger.Info("payment approved by finance",
		zap.String("payment_id", p.ID),
		zap.String("actor", actor.UserID))

	// Повторное подтверждение уже проведенного платежа ничего не делает
	if p.State == domain.StatePosted {
		return domain.PostResult{Outcome: domain.OutcomePosted}, nil
	}
	return g.TryPost(ctx, p)
}
