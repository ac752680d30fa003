package policy

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra"
	"go.uber.org/zap"
)

type Repository interface {
	GetPolicy(ctx context.Context, orgID string) (*domain.OrganizationPolicy, error)
	GetAllPolicies(ctx context.Context) ([]domain.OrganizationPolicy, error)
}

// Cache - In-memory кэш политик организаций. Источник правды - PostgreSQL,
// в рантайме гейт читает память, а консоль сбрасывает устаревшие записи через Redis.
type Cache struct {
	mu sync.RWMutex
	// org_id -> Policy
	policies map[string]domain.OrganizationPolicy

	repo   Repository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewCache(repo Repository, rdb *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{
		policies: make(map[string]domain.OrganizationPolicy),
		repo:     repo,
		rdb:      rdb,
		logger:   logger.Named("policy-cache"),
	}
}

// PolicyFor реализует gate.PolicyProvider.
// Промах идет в базу; организация без сохраненных настроек получает политику по умолчанию.
func (c *Cache) PolicyFor(ctx context.Context, orgID string) (domain.OrganizationPolicy, error) {
	c.mu.RLock()
	p, ok := c.policies[orgID]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	stored, err := c.repo.GetPolicy(ctx, orgID)
	if err != nil {
		return domain.OrganizationPolicy{}, err
	}

	p = domain.DefaultPolicy(orgID)
	if stored != nil {
		p = *stored
	}

	c.mu.Lock()
	c.policies[orgID] = p
	c.mu.Unlock()
	return p, nil
}

// Refresh - "холодная загрузка" всех политик из PostgreSQL в память.
func (c *Cache) Refresh(ctx context.Context) error {
	all, err := c.repo.GetAllPolicies(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]domain.OrganizationPolicy, len(all))
	for _, p := range all {
		fresh[p.OrgID] = p
	}

	c.mu.Lock()
	c.policies = fresh
	c.mu.Unlock()

	c.logger.Info("policy cache refreshed", zap.Int("count", len(fresh)))
	return nil
}

// Invalidate забывает политику организации; "*" очищает весь кэш.
func (c *Cache) Invalidate(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if orgID == infra.PolicyRefreshAll {
		c.policies = make(map[string]domain.OrganizationPolicy)
		return
	}
	delete(c.policies, orgID)
}

func (c *Cache) cached(orgID string) (domain.OrganizationPolicy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.policies[orgID]
	return p, ok
}
