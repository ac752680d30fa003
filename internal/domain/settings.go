package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Settings - то, что видит и редактирует администратор. Зеркало OrganizationPolicy.
type Settings struct {
	LimitEnabled bool            `json:"limit_enabled"`
	LimitAmount  decimal.Decimal `json:"limit_amount" validate:"gte=0"`
}

func SettingsFromPolicy(p OrganizationPolicy) Settings {
	return Settings{LimitEnabled: p.LimitEnabled, LimitAmount: p.LimitAmount}
}

func (s Settings) ToPolicy(orgID string) OrganizationPolicy {
	return OrganizationPolicy{OrgID: orgID, LimitEnabled: s.LimitEnabled, LimitAmount: NormalizeAmount(s.LimitAmount)}
}

// ValidationError блокирует сохранение настроек и показывается администратору как есть.
type ValidationError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}
