package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"scamlure-lab/internal/domain/services"
	"scamlure-lab/internal/infrastructure/cache"
	"scamlure-lab/internal/infrastructure/database/repository"
	"scamlure-lab/pkg/logger"
)

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	store   *services.SessionStore
	cache   *cache.RedisCache
	reports *repository.ReportRepository
	logger  *logger.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(store *services.SessionStore, c *cache.RedisCache, reports *repository.ReportRepository, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		store:   store,
		cache:   c,
		reports: reports,
		logger:  log.WithComponent("stats"),
	}
}

// StatsResponse summarizes honeypot activity. Counters come from Redis
// and report totals from Postgres, both zero when that store is absent.
type StatsResponse struct {
	ActiveSessions      int              `json:"active_sessions"`
	MessagesHandled     int64            `json:"messages_handled"`
	DeliveriesDelivered int64            `json:"deliveries_delivered"`
	DeliveriesAbandoned int64            `json:"deliveries_abandoned"`
	ReportsByOutcome    map[string]int64 `json:"reports_by_outcome,omitempty"`
	Timestamp           time.Time        `json:"timestamp"`
}

// Get handles GET /api/v1/honeypot/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats := StatsResponse{
		ActiveSessions:      h.store.ActiveCount(),
		MessagesHandled:     h.cache.GetStat(r.Context(), "messages_handled"),
		DeliveriesDelivered: h.cache.GetStat(r.Context(), "deliveries_delivered"),
		DeliveriesAbandoned: h.cache.GetStat(r.Context(), "deliveries_abandoned"),
		Timestamp:           time.Now().UTC(),
	}

	if h.reports != nil {
		counts, err := h.reports.CountByOutcome(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to count archived reports")
		} else {
			stats.ReportsByOutcome = counts
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
