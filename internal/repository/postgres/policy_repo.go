package postgres

/*
Файл policy_repo.go хранит политики организаций (флаг лимита и порог).
Долговременное хранение здесь, горячее чтение - в policy.Cache.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xela07ax/paylimit-gate/internal/domain"
)

// SQLSTATE check_violation
const pgCheckViolation = "23514"

type PolicyRepo struct {
	db *sql.DB
}

func NewPolicyRepo(db *sql.DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

// GetPolicy возвращает nil, nil если организация еще не сохраняла настройки.
func (r *PolicyRepo) GetPolicy(ctx context.Context, orgID string) (*domain.OrganizationPolicy, error) {
	query := `SELECT org_id, limit_enabled, limit_amount, updated_at
	          FROM organization_policies WHERE org_id = $1`

	p := &domain.OrganizationPolicy{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, orgID).Scan(&p.OrgID, &p.LimitEnabled, &p.LimitAmount, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get policy: %w", err)
	}
	return p, nil
}

// GetAllPolicies выполняет "холодную загрузку" всех политик при старте гейта.
func (r *PolicyRepo) GetAllPolicies(ctx context.Context) ([]domain.OrganizationPolicy, error) {
	query := `SELECT org_id, limit_enabled, limit_amount, updated_at FROM organization_policies`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query policies: %w", err)
	}
	defer rows.Close()

	results := make([]domain.OrganizationPolicy, 0)
	for rows.Next() {
		var p domain.OrganizationPolicy
		if err := rows.Scan(&p.OrgID, &p.LimitEnabled, &p.LimitAmount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan policy: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// UpsertPolicy сохраняет оба поля политики. CHECK в базе - последняя линия
// защиты от отрицательного порога, ее нарушение отдаем как ValidationError.
func (r *PolicyRepo) UpsertPolicy(ctx context.Context, p *domain.OrganizationPolicy) error {
	query := `
		INSERT INTO organization_policies (org_id, limit_enabled, limit_amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (org_id) DO UPDATE
		SET limit_enabled = EXCLUDED.limit_enabled,
		    limit_amount = EXCLUDED.limit_amount,
		    updated_at = NOW()
		RETURNING updated_at`

	err := conn(ctx, r.db).QueryRowContext(ctx, query, p.OrgID, p.LimitEnabled, p.LimitAmount).Scan(&p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return &domain.ValidationError{
				Message: "validation failed",
				Fields:  map[string]string{"limit_amount": "limit_amount cannot be negative"},
			}
		}
		return fmt.Errorf("postgres: failed to save policy: %w", err)
	}
	return nil
}
