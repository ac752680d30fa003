package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra"
	"github.com/xela07ax/paylimit-gate/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakePolicyRepo struct {
	policies map[string]domain.OrganizationPolicy
	upserts  int
}

func (f *fakePolicyRepo) GetPolicy(_ context.Context, orgID string) (*domain.OrganizationPolicy, error) {
	p, ok := f.policies[orgID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePolicyRepo) UpsertPolicy(_ context.Context, p *domain.OrganizationPolicy) error {
	f.upserts++
	p.UpdatedAt = time.Now()
	f.policies[p.OrgID] = *p
	return nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestSettingsProxy_GetDefaults(t *testing.T) {
	proxy := NewSettingsProxy(&fakePolicyRepo{policies: map[string]domain.OrganizationPolicy{}}, newRedis(t), zap.NewNop())

	s, err := proxy.Get(context.Background(), "org-new")
	require.NoError(t, err)
	assert.False(t, s.LimitEnabled)
	assert.True(t, s.LimitAmount.IsZero())
}

func TestSettingsProxy_SaveBroadcasts(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	repo := &fakePolicyRepo{policies: map[string]domain.OrganizationPolicy{}}
	proxy := NewSettingsProxy(repo, rdb, zap.NewNop())

	sub := rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	saved, err := proxy.Save(ctx, "org-1", domain.Settings{LimitEnabled: true, LimitAmount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.True(t, saved.LimitEnabled)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "org-1", msg.Payload)
	case <-time.After(time.Second):
		require.Fail(t, "policy update was not broadcast")
	}

	got, err := proxy.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, got.LimitAmount.Equal(decimal.NewFromInt(1000)))
}

func TestSettingsProxy_RejectsNegativeLimit(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	repo := &fakePolicyRepo{policies: map[string]domain.OrganizationPolicy{
		"org-1": {OrgID: "org-1", LimitEnabled: true, LimitAmount: decimal.NewFromInt(500)},
	}}
	proxy := NewSettingsProxy(repo, rdb, zap.NewNop())

	sub := rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	_, err = proxy.Save(ctx, "org-1", domain.Settings{LimitEnabled: true, LimitAmount: decimal.NewFromInt(-1)})

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "limit_amount")
	assert.Equal(t, 0, repo.upserts)

	got, err := proxy.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, got.LimitAmount.Equal(decimal.NewFromInt(500)))

	select {
	case msg := <-sub.Channel():
		assert.Failf(t, "unexpected broadcast", "payload %q", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSettingsProxy_BroadcastFailureKeepsSavedSettings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	repo := &fakePolicyRepo{policies: map[string]domain.OrganizationPolicy{}}
	proxy := NewSettingsProxy(repo, rdb, zap.NewNop())

	saved, err := proxy.Save(context.Background(), "org-1", domain.Settings{LimitEnabled: true, LimitAmount: decimal.NewFromInt(700)})
	assert.ErrorIs(t, err, ErrBroadcastFailed)
	assert.Equal(t, 1, repo.upserts)
	assert.True(t, saved.LimitEnabled)
	assert.True(t, saved.LimitAmount.Equal(decimal.NewFromInt(700)))
}

type fakeUsers struct {
	users map[string]*domain.User
	err   error
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return f.users[username], f.err
}

func TestAuthService_GenerateToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &fakeUsers{users: map[string]*domain.User{
		"anna": {ID: "u-1", Username: "anna", PasswordHash: string(hash), Scopes: map[string]bool{domain.CapabilityFinanceApproval: true}},
	}}
	svc := NewAuthService(users, auth.NewBaseValidator(&key.PublicKey, "paylimit-console"), key, "paylimit-console", time.Hour, zap.NewNop())
	ctx := context.Background()

	resp, err := svc.GenerateToken(ctx, "anna", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.InDelta(t, time.Hour.Seconds(), float64(resp.ExpiresIn), 5)

	claims, err := svc.VerifyToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.True(t, claims.Scopes[domain.CapabilityFinanceApproval])

	_, err = svc.GenerateToken(ctx, "anna", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users.err = errors.New("db down")
	_, err = svc.GenerateToken(ctx, "anna", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
