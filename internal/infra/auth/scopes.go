package auth

import (
	"context"

	"github.com/xela07ax/paylimit-gate/internal/domain"
)

// ScopeChecker проверяет права по scopes из токена.
// admin покрывает любую capability.
type ScopeChecker struct{}

func (ScopeChecker) HasCapability(_ context.Context, actor domain.Actor, capability string) bool {
	if actor.Scopes == nil {
		return false
	}
	return actor.Scopes[domain.ScopeAdmin] || actor.Scopes[capability]
}
