package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrganizationPolicy - лимит платежей организации (тенанта).
// Читается шлюзом при каждом расчете, меняется только через SettingsProxy.
type OrganizationPolicy struct {
	OrgID        string          `json:"org_id"`
	LimitEnabled bool            `json:"limit_enabled"`
	LimitAmount  decimal.Decimal `json:"limit_amount"` // Инвариант: >= 0

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPolicy возвращает политику организации, которая ни разу не сохраняла настройки:
// лимит выключен, порог 0.
func DefaultPolicy(orgID string) OrganizationPolicy {
	return OrganizationPolicy{
		OrgID:       orgID,
		LimitAmount: decimal.Zero,
	}
}

// RequiresApproval - единственное правило гейта.
// Строгое неравенство: сумма, равная порогу, подтверждения не требует.
func (p OrganizationPolicy) RequiresApproval(amount decimal.Decimal) bool {
	return p.LimitEnabled && amount.GreaterThan(p.LimitAmount)
}
