package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra"
	"github.com/xela07ax/paylimit-gate/internal/infra/validate"
	"go.uber.org/zap"
)

// ErrBroadcastFailed - настройки сохранены, но гейты не получили сигнал
// и увидят новую политику только после переподключения к Redis.
var ErrBroadcastFailed = errors.New("policy update was not broadcast")

// PolicyRepository описывает требования сервиса к хранилищу политик
type PolicyRepository interface {
	GetPolicy(ctx context.Context, orgID string) (*domain.OrganizationPolicy, error)
	UpsertPolicy(ctx context.Context, p *domain.OrganizationPolicy) error
}

// SettingsProxy - форма настроек организации. Своих данных не хранит,
// читает и пишет поля OrganizationPolicy.
type SettingsProxy struct {
	repo   PolicyRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewSettingsProxy(repo PolicyRepository, rdb *redis.Client, logger *zap.Logger) *SettingsProxy {
	return &SettingsProxy{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("settings"),
	}
}

// Get отдает текущие настройки. Для организации без сохраненной политики - значения по умолчанию.
func (s *SettingsProxy) Get(ctx context.Context, orgID string) (domain.Settings, error) {
	p, err := s.repo.GetPolicy(ctx, orgID)
	if err != nil {
		return domain.Settings{}, err
	}
	if p == nil {
		return domain.SettingsFromPolicy(domain.DefaultPolicy(orgID)), nil
	}
	return domain.SettingsFromPolicy(*p), nil
}

// Save проверяет и сохраняет настройки, затем уведомляет гейты.
// ErrBroadcastFailed приходит вместе с уже сохраненными настройками.
// Отрицательный порог отклоняется до записи: ничего не сохраняется и не рассылается.
func (s *SettingsProxy) Save(ctx context.Context, orgID string, in domain.Settings) (domain.Settings, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Settings{}, err
	}

	p := in.ToPolicy(orgID)
	if err := s.repo.UpsertPolicy(ctx, &p); err != nil {
		return domain.Settings{}, err
	}

	s.logger.Info("organization settings saved",
		zap.String("org_id", orgID),
		zap.Bool("limit_enabled", p.LimitEnabled),
		zap.String("limit_amount", p.LimitAmount.String()))

	// При ошибке рассылки сохраненные настройки все равно возвращаются
	return domain.SettingsFromPolicy(p), s.notifyUpdate(ctx, orgID)
}

// notifyUpdate отправляет широковещательный сигнал в Redis.
// Все инстансы гейта, подписанные на канал, сбросят политику этой организации.
func (s *SettingsProxy) notifyUpdate(ctx context.Context, orgID string) error {
	if err := s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, orgID).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
	return nil
}
