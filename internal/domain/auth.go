package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CapabilityFinanceApproval - право подтверждать платежи сверх лимита.
	CapabilityFinanceApproval = "finance_approval"
	// ScopeAdmin покрывает все права.
	ScopeAdmin = "admin"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true или "finance_approval": true
	jwt.RegisteredClaims
}

// Actor - тот, кто вызывает операцию. Берется из проверенного токена.
type Actor struct {
	UserID string
	Scopes map[string]bool
}

func (c *CustomClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Scopes: c.Scopes}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
