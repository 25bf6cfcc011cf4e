package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scamlure-lab/internal/api"
	"scamlure-lab/internal/api/handlers"
	"scamlure-lab/internal/config"
	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/domain/services"
	"scamlure-lab/internal/extraction"
	"scamlure-lab/internal/infrastructure/cache"
	"scamlure-lab/internal/infrastructure/database"
	"scamlure-lab/internal/infrastructure/database/repository"
	"scamlure-lab/internal/llm"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.App.Environment == "production" {
		log = logger.NewProduction()
	} else {
		log = logger.NewDevelopment()
	}
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting ScamLure Lab")

	if cfg.Model.APIKey == "" {
		log.Warn().Msg("no model API key configured, replies will use the static fallback")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure. Both stores are optional: the reply
	// path works without them, so failures degrade rather than abort.
	db, redisCache := initInfrastructure(ctx, cfg, log)
	defer func() {
		if db != nil {
			db.Close()
		}
		if redisCache != nil {
			redisCache.Close()
		}
	}()

	// Initialize report archive
	var reports *repository.ReportRepository
	if db != nil {
		if err := db.Migrate(ctx); err != nil {
			log.Error().Err(err).Msg("failed to run migrations, report archive disabled")
			db.Close()
			db = nil
		} else {
			reports = repository.NewReportRepository(db.Pool())
			log.Info().Msg("intelligence report archive initialized")
		}
	} else {
		log.Warn().Msg("running without database - intelligence reports are not archived")
	}

	// Metrics
	metrics := observability.NewMetrics("scamlure", nil)

	// Model gateway
	gateway := llm.NewOpenRouterClient(cfg.Model, log)

	// Session store with idle-session janitor
	store := services.NewSessionStore(cfg.Engagement.SessionTTL, cfg.Engagement.MaxHistoryTurns, log)
	go store.RunJanitor(ctx, time.Minute)

	// Callback dispatcher
	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		TargetURL:   cfg.Callback.URL,
		Secret:      cfg.Callback.Secret,
		Timeout:     cfg.Callback.Timeout,
		WorkerCount: cfg.Callback.WorkerCount,
		QueueSize:   cfg.Callback.QueueSize,
		Retry: &models.RetryConfig{
			MaxAttempts:   cfg.Callback.MaxAttempts,
			RetryInterval: cfg.Callback.RetryInterval,
			BackoffFactor: cfg.Callback.BackoffFactor,
			MaxRetryDelay: cfg.Callback.MaxRetryDelay,
		},
	}, metrics, redisCache, reports, log)

	if cfg.Callback.URL == "" {
		log.Warn().Msg("no callback URL configured, finished intelligence will be abandoned")
	}

	// Analysis pipeline and reply pipeline
	extractor := extraction.New()
	pipeline := services.NewIntelPipeline(gateway, extractor, dispatcher, metrics, cfg.Model.AnalysisTimeout, log)
	engagement := services.NewEngagementService(
		cfg.Engagement, gateway, store, extractor, pipeline, metrics, redisCache, log,
	)

	// Initialize handlers
	h := handlers.NewHandlers(handlers.Dependencies{
		Config:     cfg,
		Engagement: engagement,
		Store:      store,
		Cache:      redisCache,
		DB:         db,
		Reports:    reports,
		Logger:     log,
	})

	// Create router
	router := api.NewRouter(cfg, h, redisCache, log)
	httpHandler := router.Setup()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Stop accepting requests first, then drain the delivery queue
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	dispatcher.Stop()
	cancel()

	log.Info().Msg("shutdown complete")
}

// initInfrastructure connects the optional stores. A failure to reach
// either one is logged and the honeypot runs without it.
func initInfrastructure(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.PostgresDB, *cache.RedisCache) {
	var db *database.PostgresDB
	if cfg.Database.Enabled {
		var err error
		db, err = database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to PostgreSQL, continuing without database")
			db = nil
		}
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		var err error
		redisCache, err = cache.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
			redisCache = nil
		}
	}

	return db, redisCache
}
