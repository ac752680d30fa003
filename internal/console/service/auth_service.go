package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// AuthService выпускает токены консоли и сам же их проверяет (встроенный BaseValidator).
type AuthService struct {
	*auth.BaseValidator
	repo       AuthProvider
	privateKey *rsa.PrivateKey
	issuer     string
	ttl        time.Duration
	logger     *zap.Logger
}

func NewAuthService(repo AuthProvider, validator *auth.BaseValidator, privateKey *rsa.PrivateKey, issuer string, ttl time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		BaseValidator: validator,
		repo:          repo,
		privateKey:    privateKey,
		issuer:        issuer,
		ttl:           ttl,
		logger:        logger.Named("auth-service"),
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// Источник правды - Postgres
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("user lookup failed", zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Scopes берем из прав пользователя в БД, например finance_approval
	signed, expiresAt, err := auth.Sign(s.privateKey, s.issuer, user, s.ttl)
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
