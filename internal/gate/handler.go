package gate

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/paylimit-gate/internal/connectors"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"github.com/xela07ax/paylimit-gate/internal/infra/auth"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(s *Service, logger *zap.Logger) *Handler {
	return &Handler{service: s, logger: logger.Named("payment-api")}
}

// Routes монтируется под /v1/payments
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/amount", h.UpdateAmount)
		r.Post("/post", h.Post)
		r.Post("/draft", h.ResetToDraft)
		r.Post("/approve", h.Approve)
	})
}

type postResponse struct {
	Payment *domain.Payment `json:"payment"`
	domain.PostResult
}

// Create - POST /v1/payments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Get - GET /v1/payments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateAmount - PATCH /v1/payments/{id}/amount
func (h *Handler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.UpdateAmount(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Post - POST /v1/payments/{id}/post. Мягкий отказ отдается как 202 с уведомлением.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	p, res, err := h.service.Post(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePostResult(w, p, res)
}

// ResetToDraft - POST /v1/payments/{id}/draft
func (h *Handler) ResetToDraft(w http.ResponseWriter, r *http.Request) {
	p, _, err := h.service.ResetToDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Approve - POST /v1/payments/{id}/approve, только для finance_approval
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	p, res, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePostResult(w, p, res)
}

func writePostResult(w http.ResponseWriter, p *domain.Payment, res domain.PostResult) {
	status := http.StatusOK
	if res.IsApprovalRequired() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, postResponse{Payment: p, PostResult: res})
}

// writeError переводит доменные ошибки и ошибки хост-системы в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr     *domain.ValidationError
		throttle *connectors.ThrottleError
		hostErr  *connectors.HostError
	)

	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, vErr)
	case errors.Is(err, domain.ErrPaymentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrAmountLocked):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &throttle):
		w.Header().Set("Retry-After", strconv.Itoa(int(throttle.RetryAfter.Seconds())))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		http.Error(w, "Host system unavailable", http.StatusServiceUnavailable)
	case errors.As(err, &hostErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", TraceID(r.Context())),
			zap.Error(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
