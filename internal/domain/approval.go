package domain

// PostOutcome - итог попытки проведения платежа.
type PostOutcome string

const (
	OutcomePosted           PostOutcome = "posted"
	OutcomeApprovalRequired PostOutcome = "approval_required"
)

const (
	AdvisoryTitleApprovalRequired   = "Finance approval required"
	AdvisoryMessageApprovalRequired = "The payment exceeds the limit and must be validated by Finance before it can be posted."
)

// Advisory - мягкий отказ. Не ошибка: клиент показывает его как закрываемое предупреждение.
type Advisory struct {
	Kind        string `json:"kind"` // Всегда "warning"
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

func ApprovalRequiredAdvisory() *Advisory {
	return &Advisory{
		Kind:        "warning",
		Title:       AdvisoryTitleApprovalRequired,
		Message:     AdvisoryMessageApprovalRequired,
		Dismissible: true,
	}
}

type PostResult struct {
	Outcome    PostOutcome       `json:"outcome"`
	Advisory   *Advisory         `json:"notification,omitempty"`
	Transition *TransitionResult `json:"transition,omitempty"` // То, что вернула хост-система
}

func (r PostResult) IsApprovalRequired() bool {
	return r.Outcome == OutcomeApprovalRequired
}
