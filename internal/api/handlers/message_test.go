package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamlure-lab/internal/config"
	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/domain/services"
	"scamlure-lab/internal/extraction"
	"scamlure-lab/internal/llm"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

type fakeGateway struct {
	reply  string
	detect bool
}

func (g *fakeGateway) Generate(ctx context.Context, mode llm.Mode, opts llm.GenerateOptions) (string, error) {
	return g.reply, nil
}

func (g *fakeGateway) DetectScam(ctx context.Context, message string, history []models.ConversationTurn) bool {
	return g.detect
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeScheduler) Schedule(sessionID string, turns []models.ConversationTurn, meta models.Metadata) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestMessageHandler(gw llm.Gateway, sched services.AnalysisScheduler) *MessageHandler {
	log := logger.NewDefault()
	cfg := config.EngagementConfig{
		FallbackReply:   "I'm sorry, I don't understand. What do I need to do exactly?",
		SessionTTL:      time.Hour,
		MaxHistoryTurns: 50,
		DefaultChannel:  "SMS",
		DefaultLanguage: "English",
		DefaultLocale:   "IN",
	}
	store := services.NewSessionStore(cfg.SessionTTL, cfg.MaxHistoryTurns, log)
	metrics := observability.NewMetrics("scamlure", prometheus.NewRegistry())
	engagement := services.NewEngagementService(
		cfg, gw, store, extraction.New(), sched, metrics, nil, log,
	)
	return NewMessageHandler(engagement, log)
}

func postMessage(t *testing.T, h *MessageHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/honeypot/message", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestMessageHandlerHappyPath(t *testing.T) {
	sched := &fakeScheduler{}
	h := newTestMessageHandler(&fakeGateway{reply: "Oh no, which account?", detect: true}, sched)

	body := `{
		"sessionId": "sess-1",
		"message": {"sender": "scammer", "text": "Your SBI account is blocked, share OTP and pay to ramesh@upi"},
		"metadata": {"channel": "SMS", "locale": "IN"}
	}`
	rec := postMessage(t, h, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Oh no, which account?", resp.Reply)
	assert.True(t, resp.ScamDetected)
	assert.Equal(t, 2, resp.EngagementMetrics.TotalMessagesExchanged)
	assert.Contains(t, resp.ExtractedIntelligence["upiIds"], "ramesh@upi")
	assert.NotEmpty(t, resp.AgentNotes)

	assert.Equal(t, 1, sched.count())
}

func TestMessageHandlerRejectsMissingFields(t *testing.T) {
	h := newTestMessageHandler(&fakeGateway{reply: "ok"}, &fakeScheduler{})

	cases := []struct {
		name string
		body string
	}{
		{"missing session id", `{"message": {"sender": "scammer", "text": "hello"}}`},
		{"missing message text", `{"sessionId": "sess-1", "message": {"sender": "scammer"}}`},
		{"malformed json", `{"sessionId": `},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postMessage(t, h, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp["status"])
		})
	}
}

func TestMessageHandlerSeedsConversationHistory(t *testing.T) {
	sched := &fakeScheduler{}
	h := newTestMessageHandler(&fakeGateway{reply: "sure"}, sched)

	body := `{
		"sessionId": "sess-2",
		"message": {"sender": "scammer", "text": "send the fee now"},
		"conversationHistory": [
			{"sender": "scammer", "text": "you won a gift card", "timestamp": 1756600000000},
			{"sender": "user", "text": "really? how?"}
		]
	}`
	rec := postMessage(t, h, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// 2 seeded turns plus the new exchange
	assert.Equal(t, 4, resp.EngagementMetrics.TotalMessagesExchanged)
}

func TestMessageHandlerSchedulesOncePerMessage(t *testing.T) {
	sched := &fakeScheduler{}
	h := newTestMessageHandler(&fakeGateway{reply: "ok", detect: true}, sched)

	for i := 0; i < 3; i++ {
		rec := postMessage(t, h, `{"sessionId": "sess-3", "message": {"sender": "scammer", "text": "verify your account"}}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 3, sched.count())
}
