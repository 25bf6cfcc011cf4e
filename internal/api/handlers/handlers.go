package handlers

import (
	"scamlure-lab/internal/config"
	"scamlure-lab/internal/domain/services"
	"scamlure-lab/internal/infrastructure/cache"
	"scamlure-lab/internal/infrastructure/database"
	"scamlure-lab/internal/infrastructure/database/repository"
	"scamlure-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health   *HealthHandler
	Message  *MessageHandler
	Sessions *SessionsHandler
	Stats    *StatsHandler
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Config     *config.Config
	Engagement *services.EngagementService
	Store      *services.SessionStore
	Cache      *cache.RedisCache
	DB         *database.PostgresDB
	Reports    *repository.ReportRepository
	Logger     *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Config.App.Version, deps.Cache, deps.DB, deps.Logger),
		Message:  NewMessageHandler(deps.Engagement, deps.Logger),
		Sessions: NewSessionsHandler(deps.Store, deps.Reports, deps.Logger),
		Stats:    NewStatsHandler(deps.Store, deps.Cache, deps.Reports, deps.Logger),
	}
}
