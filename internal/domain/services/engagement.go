package services

import (
	"context"
	"time"

	"scamlure-lab/internal/config"
	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/extraction"
	"scamlure-lab/internal/infrastructure/cache"
	"scamlure-lab/internal/llm"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

// AnalysisScheduler detaches background analysis of a conversation
// snapshot. Implemented by IntelPipeline.
type AnalysisScheduler interface {
	Schedule(sessionID string, turns []models.ConversationTurn, meta models.Metadata)
}

// EngagementRequest is the validated inbound message
type EngagementRequest struct {
	SessionID string
	Message   models.ConversationTurn
	History   []models.ConversationTurn
	Metadata  models.Metadata
}

// EngagementResult is what the scammer-facing side gets back synchronously
type EngagementResult struct {
	Reply        string
	ScamDetected bool
	Metrics      models.EngagementMetrics
	Entities     map[string][]string
	AgentNotes   string
}

// EngagementService is the synchronous fast path: produce an immediate
// reply and detach the analysis pipeline. Its success never depends on
// the analysis path's outcome.
type EngagementService struct {
	cfg       config.EngagementConfig
	gateway   llm.Gateway
	store     *SessionStore
	extractor *extraction.Extractor
	scheduler AnalysisScheduler
	metrics   *observability.Metrics
	cache     *cache.RedisCache
	logger    *logger.Logger
}

// NewEngagementService creates the reply pipeline
func NewEngagementService(
	cfg config.EngagementConfig,
	gw llm.Gateway,
	store *SessionStore,
	ex *extraction.Extractor,
	scheduler AnalysisScheduler,
	m *observability.Metrics,
	c *cache.RedisCache,
	log *logger.Logger,
) *EngagementService {
	return &EngagementService{
		cfg:       cfg,
		gateway:   gw,
		store:     store,
		extractor: ex,
		scheduler: scheduler,
		metrics:   m,
		cache:     c,
		logger:    log.WithComponent("engagement"),
	}
}

// HandleMessage runs the received -> reply_sent -> background_dispatched
// state machine for one inbound message. The reply is always produced
// within the gateway's reply timeout: upstream failures substitute the
// static fallback so the honeypot never appears offline.
func (s *EngagementService) HandleMessage(ctx context.Context, req EngagementRequest) *EngagementResult {
	start := time.Now()
	log := s.logger.WithSessionID(req.SessionID)

	meta := s.applyMetadataDefaults(req.Metadata)
	s.store.GetOrCreate(req.SessionID, meta, req.History)

	// History snapshot before this turn, for classification and the
	// reply prompt.
	prior, _, _ := s.store.Snapshot(req.SessionID)

	scamDetected := s.gateway.DetectScam(ctx, req.Message.Text, prior)
	if scamDetected && s.metrics != nil {
		s.metrics.ScamDetections.Inc()
	}

	req.Message.Role = models.RoleScammer
	s.store.Append(req.SessionID, req.Message)

	reply := s.generateReply(ctx, req.Message.Text, prior, meta, log)
	s.store.Append(req.SessionID, models.ConversationTurn{
		Role:      models.RoleAgent,
		Text:      reply,
		Timestamp: time.Now().UTC(),
	})

	// reply_sent -> background_dispatched: snapshot taken now, so the
	// analysis pipeline never reads live session state.
	snapshot, snapMeta, ok := s.store.Snapshot(req.SessionID)
	if ok && s.scheduler != nil {
		s.scheduler.Schedule(req.SessionID, snapshot, snapMeta)
	} else if s.scheduler == nil {
		// Swallowed: the reply path's success is independent of the
		// analysis path.
		log.Warn().Msg("no analysis scheduler configured, skipping background dispatch")
	}

	// The synchronous response carries the cheap pattern-only entity
	// sweep; the full model-assisted record travels via the callback.
	entities := s.extractor.Scan(llm.Transcript(snapshot, ""))

	if s.metrics != nil {
		s.metrics.ObserveReplyLatency(time.Since(start))
		s.metrics.MessagesHandled.WithLabelValues("ok").Inc()
		s.metrics.ActiveSessions.Set(float64(s.store.ActiveCount()))
	}
	s.cache.IncrStat(ctx, "messages_handled")

	notes := "Engagement ongoing."
	if !scamDetected {
		notes = "No scam detected."
	}

	return &EngagementResult{
		Reply:        reply,
		ScamDetected: scamDetected,
		Metrics:      s.store.Metrics(req.SessionID),
		Entities:     entities,
		AgentNotes:   notes,
	}
}

// generateReply calls the model, substituting the static fallback on any
// upstream error so the failure never reaches the scammer-facing side.
func (s *EngagementService) generateReply(ctx context.Context, message string, history []models.ConversationTurn, meta models.Metadata, log *logger.Logger) string {
	reply, err := s.gateway.Generate(ctx, llm.ModeReply, llm.GenerateOptions{
		Message:  message,
		History:  history,
		Metadata: meta,
	})
	if err == nil && reply != "" {
		return reply
	}

	if err != nil {
		log.Warn().Err(err).Msg("reply generation failed, serving fallback")
	}
	if s.metrics != nil {
		s.metrics.FallbackReplies.Inc()
	}
	return s.cfg.FallbackReply
}

func (s *EngagementService) applyMetadataDefaults(meta models.Metadata) models.Metadata {
	if meta.Channel == "" {
		meta.Channel = s.cfg.DefaultChannel
	}
	if meta.Language == "" {
		meta.Language = s.cfg.DefaultLanguage
	}
	if meta.Locale == "" {
		meta.Locale = s.cfg.DefaultLocale
	}
	return meta
}
