package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/domain/services"
	"scamlure-lab/internal/infrastructure/database/repository"
	"scamlure-lab/pkg/logger"
)

// SessionsHandler exposes live session state for operators
type SessionsHandler struct {
	store   *services.SessionStore
	reports *repository.ReportRepository
	logger  *logger.Logger
}

// NewSessionsHandler creates a new SessionsHandler
func NewSessionsHandler(store *services.SessionStore, reports *repository.ReportRepository, log *logger.Logger) *SessionsHandler {
	return &SessionsHandler{
		store:   store,
		reports: reports,
		logger:  log.WithComponent("sessions-handler"),
	}
}

// SessionResponse combines live session state with archived reports
type SessionResponse struct {
	Session *services.SessionView        `json:"session"`
	Metrics models.EngagementMetrics     `json:"engagementMetrics"`
	Reports []*models.IntelligenceReport `json:"reports,omitempty"`
}

// Get handles GET /api/v1/honeypot/sessions/{id}
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, `{"error":"session id is required"}`, http.StatusBadRequest)
		return
	}

	view, ok := h.store.View(id)
	if !ok {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}

	response := SessionResponse{
		Session: view,
		Metrics: h.store.Metrics(id),
	}

	if h.reports != nil {
		reports, err := h.reports.ListBySession(r.Context(), id, 0)
		if err != nil {
			h.logger.Warn().Err(err).Str("session_id", id).Msg("failed to load archived reports")
		} else {
			response.Reports = reports
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
