package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/daehokim/teambudget/internal/event"
	platformevent "github.com/daehokim/teambudget/internal/platform/event"
)

// EventHandler serves the event log endpoints
type EventHandler struct {
	service *platformevent.Service
}

// NewEventHandler creates a new event handler
func NewEventHandler(service *platformevent.Service) *EventHandler {
	return &EventHandler{service: service}
}

// CreateEvent handles POST /api/v1/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var payload event.CreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.service.CreateEvent(r.Context(), payload)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// SyncEvents handles GET /api/v1/events/sync?since=N
func (h *EventHandler) SyncEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}

	result, err := h.service.SyncSince(r.Context(), since)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// BulkCreateEvents handles POST /api/v1/events/bulk
func (h *EventHandler) BulkCreateEvents(w http.ResponseWriter, r *http.Request) {
	var payloads []event.CreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payloads) == 0 {
		respondWithError(w, http.StatusBadRequest, "empty event list")
		return
	}

	created, err := h.service.BulkCreate(r.Context(), payloads)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// GetMonthEvents handles GET /api/v1/events/{year}/{month}
func (h *EventHandler) GetMonthEvents(w http.ResponseWriter, r *http.Request) {
	year, month, ok := parseYearMonth(w, r)
	if !ok {
		return
	}

	events, err := h.service.GetEventsByMonth(r.Context(), year, month)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

// GetActiveExpenses handles GET /api/v1/expenses/{year}/{month}
func (h *EventHandler) GetActiveExpenses(w http.ResponseWriter, r *http.Request) {
	year, month, ok := parseYearMonth(w, r)
	if !ok {
		return
	}

	expenses, err := h.service.ActiveExpenses(r.Context(), year, month)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, expenses)
}

func parseYearMonth(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 {
		respondWithError(w, http.StatusBadRequest, "invalid year")
		return 0, 0, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		respondWithError(w, http.StatusBadRequest, "invalid month")
		return 0, 0, false
	}
	return year, month, true
}
