package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState - состояние жизненного цикла платежа. Принадлежит хост-системе.
type PaymentState string

const (
	StateDraft  PaymentState = "draft"
	StatePosted PaymentState = "posted"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid payment state transition")
	ErrAmountLocked      = errors.New("amount can only be changed on a draft payment")
	ErrForbidden         = errors.New("actor lacks finance approval capability")
)

type Payment struct {
	ID     string          `json:"id"`
	OrgID  string          `json:"org_id"` // Ссылка на организацию, чья политика применяется
	Amount decimal.Decimal `json:"amount"`
	State  PaymentState    `json:"state"`

	// ApprovedByFinance меняют только гейт и сброс в черновик.
	ApprovedByFinance bool `json:"approved_by_finance"`
	// RequiresFinanceApproval - производное поле, пересчитывается при каждом изменении суммы
	// и перед каждой попыткой проведения. Из хранилища ему не доверяем.
	RequiresFinanceApproval bool `json:"requires_finance_approval"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransitionResult - ответ хост-системы на переход post/draft.
type TransitionResult struct {
	PaymentID string       `json:"payment_id"`
	State     PaymentState `json:"state"`
	At        time.Time    `json:"at"`
}

// AmountScale - знаков после запятой в колонках NUMERIC(20, 4).
const AmountScale = 4

// NormalizeAmount приводит сумму к точности хранения, чтобы флаг считался
// по тому же значению, которое потом прочитается из базы.
func NormalizeAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}
