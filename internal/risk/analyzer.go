package risk

import (
	"github.com/shopspring/decimal"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"go.uber.org/zap"
)

// Analyzer решает, нужен ли платежу второй ключ от финансов.
type Analyzer struct {
	logger *zap.Logger
}

func NewAnalyzer(logger *zap.Logger) *Analyzer {
	return &Analyzer{logger: logger.Named("analyzer")}
}

// IsRequired - чистая функция от политики и суммы, ничего не кэширует.
func (a *Analyzer) IsRequired(p domain.OrganizationPolicy, amount decimal.Decimal) bool {
	if !p.RequiresApproval(amount) {
		return false
	}

	a.logger.Debug("finance approval triggered",
		zap.String("org_id", p.OrgID),
		zap.String("amount", amount.String()),
		zap.String("threshold", p.LimitAmount.String()),
	)
	return true
}
