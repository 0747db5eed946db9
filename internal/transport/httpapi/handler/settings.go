package handler

import (
	"encoding/json"
	"net/http"

	"github.com/daehokim/teambudget/internal/platform/settings"
)

// SettingsHandler serves team settings endpoints
type SettingsHandler struct {
	service *settings.Service
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(service *settings.Service) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// GetSettings handles GET /api/v1/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Get(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// UpdateDefaultBudget handles PUT /api/v1/settings/default-budget
func (h *SettingsHandler) UpdateDefaultBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.SetDefaultMonthlyBudget(r.Context(), req.Amount); err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"amount": req.Amount})
}
