package postgres

/*
Файл payment_repo.go хранит платежи и два флага гейта.
Для режима host.mode=local он же играет роль хост-системы: реализует переходы post/draft.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/paylimit-gate/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

const paymentColumns = `id, org_id, amount, state, approved_by_finance, requires_finance_approval, created_at, updated_at`

// Create сохраняет новый черновик платежа.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (id, org_id, amount, state, approved_by_finance, requires_finance_approval)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING created_at, updated_at`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		p.ID, p.OrgID, p.Amount, string(p.State), p.ApprovedByFinance, p.RequiresFinanceApproval,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create payment: %w", err)
	}
	return nil
}

// Get читает платеж. Внутри транзакции строка блокируется (FOR UPDATE),
// чтобы флаги и переход записывались в рамках одной единицы работы.
func (r *PaymentRepo) Get(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if inTx(ctx) {
		query += ` FOR UPDATE`
	}

	var p domain.Payment
	var state string
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.OrgID, &p.Amount, &state,
		&p.ApprovedByFinance, &p.RequiresFinanceApproval,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, id)
		}
		return nil, fmt.Errorf("postgres: failed to get payment: %w", err)
	}
	p.State = domain.PaymentState(state)
	return &p, nil
}

// UpdateAmount меняет сумму только у черновика и сразу пишет пересчитанный флаг.
func (r *PaymentRepo) UpdateAmount(ctx context.Context, p *domain.Payment) error {
	query := `UPDATE payments
	          SET amount = $1, requires_finance_approval = $2, updated_at = NOW()
	          WHERE id = $3 AND state = 'draft'
	          RETURNING updated_at`

	err := conn(ctx, r.db).QueryRowContext(ctx, query, p.Amount, p.RequiresFinanceApproval, p.ID).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAmountLocked
		}
		return fmt.Errorf("postgres: failed to update amount: %w", err)
	}
	return nil
}

// Save пишет флаги гейта и состояние, которое вернула хост-система.
func (r *PaymentRepo) Save(ctx context.Context, p *domain.Payment) error {
	query := `UPDATE payments
	          SET approved_by_finance = $1, requires_finance_approval = $2, state = $3, updated_at = NOW()
	          WHERE id = $4`

	res, err := conn(ctx, r.db).ExecContext(ctx, query, p.ApprovedByFinance, p.RequiresFinanceApproval, string(p.State), p.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to save payment: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPaymentNotFound, p.ID)
	}
	return nil
}

// Post - переход хост-системы draft -> posted.
func (r *PaymentRepo) Post(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error) {
	return r.transition(ctx, p, domain.StateDraft, domain.StatePosted)
}

// ResetToDraft - переход хост-системы posted -> draft.
func (r *PaymentRepo) ResetToDraft(ctx context.Context, p *domain.Payment) (domain.TransitionResult, error) {
	return r.transition(ctx, p, domain.StatePosted, domain.StateDraft)
}

// transition атомарно меняет состояние. WHERE state = from защищает от повторного перехода.
func (r *PaymentRepo) transition(ctx context.Context, p *domain.Payment, from, to domain.PaymentState) (domain.TransitionResult, error) {
	query := `UPDATE payments SET state = $1, updated_at = NOW()
	          WHERE id = $2 AND state = $3
	          RETURNING updated_at`

	var at time.Time
	err := conn(ctx, r.db).QueryRowContext(ctx, query, string(to), p.ID, string(from)).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransitionResult{}, fmt.Errorf("%w: %s cannot go %s -> %s", domain.ErrInvalidTransition, p.ID, p.State, to)
		}
		return domain.TransitionResult{}, fmt.Errorf("postgres: failed to move payment to %s: %w", to, err)
	}

	p.State = to
	p.UpdatedAt = at
	return domain.TransitionResult{PaymentID: p.ID, State: to, At: at}, nil
}
