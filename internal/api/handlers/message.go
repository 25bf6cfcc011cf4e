package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/domain/services"
	"scamlure-lab/pkg/logger"
)

// MessageHandler handles the scammer-facing message endpoint
type MessageHandler struct {
	engagement *services.EngagementService
	logger     *logger.Logger
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(e *services.EngagementService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		engagement: e,
		logger:     log.WithComponent("message-handler"),
	}
}

// InboundMessage is one message as the platform sends it
type InboundMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// MessageRequest is the request body for POST /api/v1/honeypot/message
type MessageRequest struct {
	SessionID           string           `json:"sessionId"`
	Message             InboundMessage   `json:"message"`
	ConversationHistory []InboundMessage `json:"conversationHistory,omitempty"`
	Metadata            models.Metadata  `json:"metadata,omitempty"`
}

// MessageResponse is the synchronous reply envelope
type MessageResponse struct {
	Status                string                    `json:"status"`
	Reply                 string                    `json:"reply"`
	ScamDetected          bool                      `json:"scamDetected"`
	EngagementMetrics     models.EngagementMetrics  `json:"engagementMetrics"`
	ExtractedIntelligence map[string][]string       `json:"extractedIntelligence"`
	AgentNotes            string                    `json:"agentNotes"`
}

// Handle handles POST /api/v1/honeypot/message
func (h *MessageHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug().Err(err).Msg("invalid request body")
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SessionID == "" {
		h.respondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.Message.Text == "" {
		h.respondError(w, http.StatusBadRequest, "message.text is required")
		return
	}

	result := h.engagement.HandleMessage(r.Context(), services.EngagementRequest{
		SessionID: req.SessionID,
		Message:   toTurn(req.Message),
		History:   toTurns(req.ConversationHistory),
		Metadata:  req.Metadata,
	})

	h.logger.Info().
		Str("session_id", req.SessionID).
		Bool("scam_detected", result.ScamDetected).
		Int("total_messages", result.Metrics.TotalMessagesExchanged).
		Msg("message handled")

	h.respondJSON(w, http.StatusOK, MessageResponse{
		Status:                "success",
		Reply:                 result.Reply,
		ScamDetected:          result.ScamDetected,
		EngagementMetrics:     result.Metrics,
		ExtractedIntelligence: result.Entities,
		AgentNotes:            result.AgentNotes,
	})
}

func toTurn(m InboundMessage) models.ConversationTurn {
	turn := models.ConversationTurn{
		Role: models.RoleScammer,
		Text: m.Text,
	}
	// "user" is the platform's name for the honeypot agent side
	if m.Sender == "user" || m.Sender == "agent" {
		turn.Role = models.RoleAgent
	}
	if m.Timestamp > 0 {
		turn.Timestamp = time.UnixMilli(m.Timestamp).UTC()
	}
	return turn
}

func toTurns(msgs []InboundMessage) []models.ConversationTurn {
	if len(msgs) == 0 {
		return nil
	}
	turns := make([]models.ConversationTurn, len(msgs))
	for i, m := range msgs {
		turns[i] = toTurn(m)
	}
	return turns
}

func (h *MessageHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *MessageHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"status": "error", "error": message})
}
