package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/paylimit-gate/internal/console/service"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"go.uber.org/zap"
)

type SettingsHandler struct {
	service *service.SettingsProxy
	logger  *zap.Logger
}

func NewSettingsHandler(s *service.SettingsProxy, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{service: s, logger: logger.Named("settings-api")}
}

// Get возвращает настройки лимита организации.
// GET /v1/organizations/{orgID}/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if orgID == "" {
		http.Error(w, "Organization ID is required", http.StatusBadRequest)
		return
	}

	s, err := h.service.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("failed to load settings", zap.String("org_id", orgID), zap.Error(err))
		http.Error(w, "Failed to retrieve settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Update сохраняет настройки. Ошибка валидации уходит администратору как 422 с полями.
// PUT /v1/organizations/{orgID}/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var in domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	saved, err := h.service.Save(r.Context(), orgID, in)
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusUnprocessableEntity, vErr)
			return
		}
		if errors.Is(err, service.ErrBroadcastFailed) {
			// Политика в базе уже новая, отказывать администратору нельзя
			h.logger.Warn("settings saved without broadcast", zap.String("org_id", orgID), zap.Error(err))
			w.Header().Set("X-Policy-Broadcast", "failed")
			writeJSON(w, http.StatusOK, saved)
			return
		}
		h.logger.Error("failed to save settings", zap.String("org_id", orgID), zap.Error(err))
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
