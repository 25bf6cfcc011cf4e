package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamlure-lab/internal/config"
	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/extraction"
	"scamlure-lab/internal/llm"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

const testFallback = "I'm sorry, I don't understand. What do I need to do exactly?"

// countingScheduler records background dispatches
type countingScheduler struct {
	mu    sync.Mutex
	count int
}

func (c *countingScheduler) Schedule(sessionID string, turns []models.ConversationTurn, meta models.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func (c *countingScheduler) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func engagementConfig() config.EngagementConfig {
	return config.EngagementConfig{
		FallbackReply:   testFallback,
		SessionTTL:      time.Hour,
		MaxHistoryTurns: 50,
		DefaultChannel:  "SMS",
		DefaultLanguage: "English",
		DefaultLocale:   "IN",
	}
}

func newTestEngagement(gw llm.Gateway, sched AnalysisScheduler) (*EngagementService, *SessionStore) {
	log := logger.NewDefault()
	store := NewSessionStore(time.Hour, 50, log)
	return NewEngagementService(
		engagementConfig(),
		gw,
		store,
		extraction.New(),
		sched,
		observability.NewMetrics("scamlure", prometheus.NewRegistry()),
		nil,
		log,
	), store
}

func TestHandleMessageReturnsModelReply(t *testing.T) {
	gw := &stubGateway{replyOut: "Oh no, which account?", detectResult: true}
	sched := &countingScheduler{}
	svc, store := newTestEngagement(gw, sched)

	result := svc.HandleMessage(context.Background(), EngagementRequest{
		SessionID: "s-1",
		Message:   models.ConversationTurn{Text: "Your account is blocked, verify now"},
	})

	assert.Equal(t, "Oh no, which account?", result.Reply)
	assert.True(t, result.ScamDetected)
	assert.Equal(t, 1, sched.total())

	turns, _, ok := store.Snapshot("s-1")
	require.True(t, ok)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleScammer, turns[0].Role)
	assert.Equal(t, models.RoleAgent, turns[1].Role)
}

func TestHandleMessageFallbackWhenGatewayHangs(t *testing.T) {
	// The gateway stub blocks until its context expires, simulating a
	// provider that never answers. The reply path must still complete
	// within the configured timeout, using the fallback message.
	gw := &stubGateway{generateHang: true}
	sched := &countingScheduler{}
	svc, _ := newTestEngagement(gw, sched)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := svc.HandleMessage(ctx, EngagementRequest{
		SessionID: "s-1",
		Message:   models.ConversationTurn{Text: "pay now"},
	})
	elapsed := time.Since(start)

	assert.Equal(t, testFallback, result.Reply)
	assert.Less(t, elapsed, time.Second)
	// Exactly one background dispatch per inbound message, even on the
	// fallback path.
	assert.Equal(t, 1, sched.total())
}

func TestHandleMessageSchedulesOncePerMessage(t *testing.T) {
	gw := &stubGateway{replyOut: "ok"}
	sched := &countingScheduler{}
	svc, _ := newTestEngagement(gw, sched)

	for i := 0; i < 3; i++ {
		svc.HandleMessage(context.Background(), EngagementRequest{
			SessionID: "s-1",
			Message:   models.ConversationTurn{Text: "hello"},
		})
	}

	assert.Equal(t, 3, sched.total())
}

func TestHandleMessageSeedsHistoryOnce(t *testing.T) {
	gw := &stubGateway{replyOut: "why is it blocked?"}
	svc, store := newTestEngagement(gw, &countingScheduler{})

	seed := []models.ConversationTurn{
		{Role: models.RoleScammer, Text: "Your account is blocked"},
		{Role: models.RoleAgent, Text: "Why is it blocked?"},
	}

	svc.HandleMessage(context.Background(), EngagementRequest{
		SessionID: "s-1",
		Message:   models.ConversationTurn{Text: "Pay the verification fee now"},
		History:   seed,
	})

	turns, _, ok := store.Snapshot("s-1")
	require.True(t, ok)
	assert.Len(t, turns, 4)

	// A second message with the same seed must not duplicate it.
	svc.HandleMessage(context.Background(), EngagementRequest{
		SessionID: "s-1",
		Message:   models.ConversationTurn{Text: "Hurry up"},
		History:   seed,
	})

	turns, _, _ = store.Snapshot("s-1")
	assert.Len(t, turns, 6)
}

func TestHandleMessageSynchronousEntitySweep(t *testing.T) {
	gw := &stubGateway{replyOut: "which upi id should I use?"}
	svc, _ := newTestEngagement(gw, &countingScheduler{})

	result := svc.HandleMessage(context.Background(), EngagementRequest{
		SessionID: "s-1",
		Message:   models.ConversationTurn{Text: "send money to ramesh@upi, urgent"},
	})

	assert.Contains(t, result.Entities[models.CategoryUPIIDs], "ramesh@upi")
	assert.Contains(t, result.Entities[models.CategorySuspiciousKeywords], "urgent")
	assert.Equal(t, 2, result.Metrics.TotalMessagesExchanged)
}

func TestHandleMessageNoSchedulerIsSwallowed(t *testing.T) {
	gw := &stubGateway{replyOut: "ok"}
	svc, _ := newTestEngagement(gw, nil)

	result := svc.HandleMessage(context.Background(), EngagementRequest{
		SessionID: "s-1",
		Message:   models.ConversationTurn{Text: "hello"},
	})

	require.NotNil(t, result)
	assert.Equal(t, "ok", result.Reply)
}
