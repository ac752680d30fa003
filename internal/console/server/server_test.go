package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/paylimit-gate/internal/console/handler"
	"github.com/xela07ax/paylimit-gate/internal/console/service"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type memPolicies struct {
	policies map[string]domain.OrganizationPolicy
}

func (m *memPolicies) GetPolicy(_ context.Context, orgID string) (*domain.OrganizationPolicy, error) {
	p, ok := m.policies[orgID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memPolicies) UpsertPolicy(_ context.Context, p *domain.OrganizationPolicy) error {
	m.policies[p.OrgID] = *p
	return nil
}

type memUsers map[string]*domain.User

func (m memUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return m[username], nil
}

func newTestServer(t *testing.T) *ConsoleServer {
	t.Helper()
	s, _ := newTestServerWithRedis(t)
	return s
}

func newTestServerWithRedis(t *testing.T) (*ConsoleServer, *miniredis.Miniredis) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	users := memUsers{
		"admin": {ID: "u-admin", PasswordHash: string(hash), Scopes: map[string]bool{domain.ScopeAdmin: true}},
		"clerk": {ID: "u-clerk", PasswordHash: string(hash), Scopes: map[string]bool{}},
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	authSvc := service.NewAuthService(users, auth.NewBaseValidator(&key.PublicKey, "test"), key, "test", time.Hour, logger)
	proxy := service.NewSettingsProxy(&memPolicies{policies: map[string]domain.OrganizationPolicy{}}, rdb, logger)

	return NewConsoleServer(logger, authSvc, handler.NewAuthHandler(authSvc), handler.NewSettingsHandler(proxy, logger)), mr
}

func call(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, user string) string {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/auth/token", "", `{"username":"`+user+`","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.AccessToken
}

func TestConsoleServer_Settings(t *testing.T) {
	s := newTestServer(t)
	const path = "/v1/organizations/org-1/settings"

	assert.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, s, http.MethodGet, path, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		call(t, s, http.MethodPost, "/auth/token", "", `{"username":"admin","password":"nope"}`).Code)

	admin := login(t, s, "admin")
	clerk := login(t, s, "clerk")

	rec := call(t, s, http.MethodGet, path, clerk, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Settings
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.LimitEnabled)

	assert.Equal(t, http.StatusForbidden,
		call(t, s, http.MethodPut, path, clerk, `{"limit_enabled":true,"limit_amount":"1000"}`).Code)

	rec = call(t, s, http.MethodPut, path, admin, `{"limit_enabled":true,"limit_amount":"-1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var vErr domain.ValidationError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&vErr))
	assert.Contains(t, vErr.Fields, "limit_amount")

	rec = call(t, s, http.MethodPut, path, admin, `{"limit_enabled":true,"limit_amount":"1000"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, s, http.MethodGet, path, clerk, "")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.LimitEnabled)
	assert.True(t, got.LimitAmount.Equal(decimal.NewFromInt(1000)))
}

func TestConsoleServer_SaveWithoutBroadcast(t *testing.T) {
	s, mr := newTestServerWithRedis(t)
	const path = "/v1/organizations/org-1/settings"
	admin := login(t, s, "admin")

	mr.Close()

	rec := call(t, s, http.MethodPut, path, admin, `{"limit_enabled":true,"limit_amount":"300"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "failed", rec.Header().Get("X-Policy-Broadcast"))

	rec = call(t, s, http.MethodGet, path, admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Settings
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.LimitAmount.Equal(decimal.NewFromInt(300)))
}
