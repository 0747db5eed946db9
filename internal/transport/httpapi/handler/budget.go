package handler

import (
	"net/http"

	platformevent "github.com/daehokim/teambudget/internal/platform/event"
)

// BudgetHandler serves derived monthly budget views
type BudgetHandler struct {
	service *platformevent.Service
}

// NewBudgetHandler creates a new budget handler
func NewBudgetHandler(service *platformevent.Service) *BudgetHandler {
	return &BudgetHandler{service: service}
}

// GetMonthlyBudget handles GET /api/v1/budget/{year}/{month}
func (h *BudgetHandler) GetMonthlyBudget(w http.ResponseWriter, r *http.Request) {
	year, month, ok := parseYearMonth(w, r)
	if !ok {
		return
	}

	result, err := h.service.MonthlyBudget(r.Context(), year, month)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
