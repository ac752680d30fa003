package gate

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/paylimit-gate/internal/connectors"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra/auth"
	"go.uber.org/zap"
)

// withActor подменяет проверку токена: актор берется из заголовка X-Test-Scope.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := domain.Actor{UserID: "u-test", Scopes: map[string]bool{}}
		if s := r.Header.Get("X-Test-Scope"); s != "" {
			a.Scopes[s] = true
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), a)))
	})
}

func newTestRouter(f *serviceFixture) http.Handler {
	r := chi.NewRouter()
	r.Use(TracingMiddleware)
	r.Use(RequestLogger(zap.NewNop()))
	r.Use(withActor)
	r.Route("/v1/payments", NewHandler(f.svc, zap.NewNop()).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ApprovalFlow(t *testing.T) {
	f := newServiceFixture(limit1k)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/v1/payments", `{"org_id":"org-1","amount":"1500.00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	var created domain.Payment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.True(t, created.RequiresFinanceApproval)

	base := "/v1/payments/" + created.ID

	rec = do(t, h, http.MethodPost, base+"/post", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var refused struct {
		Outcome      string          `json:"outcome"`
		Notification domain.Advisory `json:"notification"`
		Payment      domain.Payment  `json:"payment"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&refused))
	assert.Equal(t, string(domain.OutcomeApprovalRequired), refused.Outcome)
	assert.Equal(t, "warning", refused.Notification.Kind)
	assert.Equal(t, domain.AdvisoryMessageApprovalRequired, refused.Notification.Message)
	assert.False(t, refused.Payment.ApprovedByFinance)

	rec = do(t, h, http.MethodPost, base+"/approve", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/approve", "", "X-Test-Scope", domain.CapabilityFinanceApproval)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, base+"/amount", `{"amount":"10"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/draft", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var reset domain.Payment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reset))
	assert.Equal(t, domain.StateDraft, reset.State)
	assert.False(t, reset.ApprovedByFinance)
	assert.True(t, reset.RequiresFinanceApproval)

	rec = do(t, h, http.MethodPost, base+"/draft", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Errors(t *testing.T) {
	f := newServiceFixture(disabled)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodGet, "/v1/payments/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/payments", `{"amount":"10"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/payments", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/payments", `{"org_id":"org-1","amount":"10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var p domain.Payment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))

	rec = do(t, h, http.MethodPatch, "/v1/payments/"+p.ID+"/amount", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	f.lifecycle.Fail = &connectors.HostError{StatusCode: 500, Message: "boom"}
	rec = do(t, h, http.MethodPost, "/v1/payments/"+p.ID+"/post", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	f.lifecycle.Fail = gobreaker.ErrOpenState
	rec = do(t, h, http.MethodPost, "/v1/payments/"+p.ID+"/post", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/payments/"+p.ID+"/post", "", "X-Trace-ID", "trace-42")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-42", rec.Header().Get("X-Trace-ID"))
}
