package gate

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra/validate"
	"go.uber.org/zap"
)

// PaymentStore описывает требования сервиса к хранилищу платежей
type PaymentStore interface {
	Create(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, id string) (*domain.Payment, error)
	UpdateAmount(ctx context.Context, p *domain.Payment) error
	Save(ctx context.Context, p *domain.Payment) error
}

// UnitOfWork - транзакционная граница хоста: либо все изменения платежа, либо ничего.
type UnitOfWork interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CreatePaymentRequest struct {
	OrgID  string          `json:"org_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type UpdateAmountRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

// Service связывает гейт с хранилищем: загрузить, применить переход, сохранить флаги.
type Service struct {
	gate   *Gate
	store  PaymentStore
	uow    UnitOfWork
	logger *zap.Logger
}

func NewService(g *Gate, store PaymentStore, uow UnitOfWork, logger *zap.Logger) *Service {
	return &Service{
		gate:   g,
		store:  store,
		uow:    uow,
		logger: logger.Named("payment-service"),
	}
}

// Create заводит черновик с уже рассчитанным флагом.
func (s *Service) Create(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	p := &domain.Payment{
		ID:     uuid.New().String(),
		OrgID:  req.OrgID,
		Amount: domain.NormalizeAmount(req.Amount),
		State:  domain.StateDraft,
	}
	if _, err := s.gate.ComputeRequiresApproval(ctx, p); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("payment created",
		zap.String("payment_id", p.ID),
		zap.String("org_id", p.OrgID),
		zap.Bool("requires_finance_approval", p.RequiresFinanceApproval))
	return p, nil
}

// Get отдает платеж с флагом, пересчитанным по текущей политике.
func (s *Service) Get(ctx context.Context, id string) (*domain.Payment, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.ComputeRequiresApproval(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateAmount меняет сумму черновика и пересчитывает флаг.
func (s *Service) UpdateAmount(ctx context.Context, id string, req UpdateAmountRequest) (*domain.Payment, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	var p *domain.Payment
	err := s.uow.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.store.Get(ctx, id); err != nil {
			return err
		}
		if p.State != domain.StateDraft {
			return domain.ErrAmountLocked
		}

		p.Amount = domain.NormalizeAmount(*req.Amount)
		if _, err := s.gate.ComputeRequiresApproval(ctx, p); err != nil {
			return err
		}
		return s.store.UpdateAmount(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Post - попытка провести платеж через гейт.
func (s *Service) Post(ctx context.Context, id string) (*domain.Payment, domain.PostResult, error) {
	return s.withPayment(ctx, id, func(ctx context.Context, p *domain.Payment) (domain.PostResult, error) {
		return s.gate.TryPost(ctx, p)
	})
}

// Approve - подтверждение финансистом с немедленным проведением.
func (s *Service) Approve(ctx context.Context, id string, actor domain.Actor) (*domain.Payment, domain.PostResult, error) {
	return s.withPayment(ctx, id, func(ctx context.Context, p *domain.Payment) (domain.PostResult, error) {
		return s.gate.ApproveAndPost(ctx, p, actor)
	})
}

// ResetToDraft возвращает платеж в черновик и снимает подтверждение.
func (s *Service) ResetToDraft(ctx context.Context, id string) (*domain.Payment, domain.TransitionResult, error) {
	var res domain.TransitionResult
	p, _, err := s.withPayment(ctx, id, func(ctx context.Context, p *domain.Payment) (domain.PostResult, error) {
		var err error
		if res, err = s.gate.ResetToDraft(ctx, p); err != nil {
			return domain.PostResult{}, err
		}
		return domain.PostResult{Transition: &res}, nil
	})
	return p, res, err
}

// withPayment загружает платеж, применяет fn и сохраняет флаги в одной транзакции.
// Ошибка fn откатывает все, включая флаг, выставленный гейтом.
func (s *Service) withPayment(
	ctx context.Context,
	id string,
	fn func(ctx context.Context, p *domain.Payment) (domain.PostResult, error),
) (*domain.Payment, domain.PostResult, error) {
	var (
		p   *domain.Payment
		res domain.PostResult
	)
	err := s.uow.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.store.Get(ctx, id); err != nil {
			return err
		}
		if res, err = fn(ctx, p); err != nil {
			return err
		}
		if res.Transition != nil {
			p.State = res.Transition.State
		}
		// Сохраняемый и отдаваемый флаг всегда по текущей политике
		if _, err := s.gate.ComputeRequiresApproval(ctx, p); err != nil {
			return err
		}
		return s.store.Save(ctx, p)
	})
	if err != nil {
		return nil, domain.PostResult{}, err
	}
	return p, res, nil
}
