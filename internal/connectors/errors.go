package connectors

import (
	"fmt"
	"time"
)

// ThrottleError - учетная система попросила подождать (HTTP 429).
// Наверх уходит как есть: повторов гейт не делает.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// HostError - любой другой неуспешный ответ учетной системы.
type HostError struct {
	StatusCode int
	Message    string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host returned error [%d]: %s", e.StatusCode, e.Message)
}
