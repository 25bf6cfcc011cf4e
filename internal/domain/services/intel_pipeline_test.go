package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/extraction"
	"scamlure-lab/internal/llm"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

// stubGateway is a scriptable llm.Gateway for pipeline tests
type stubGateway struct {
	mu           sync.Mutex
	analysisOut  string
	analysisErr  error
	replyOut     string
	replyErr     error
	detectResult bool
	generateHang bool
	calls        []llm.Mode
}

func (g *stubGateway) Generate(ctx context.Context, mode llm.Mode, opts llm.GenerateOptions) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, mode)
	g.mu.Unlock()

	if g.generateHang {
		<-ctx.Done()
		return "", &llm.UpstreamError{Kind: llm.KindTimeout, Err: ctx.Err()}
	}
	if mode == llm.ModeAnalysis {
		return g.analysisOut, g.analysisErr
	}
	return g.replyOut, g.replyErr
}

func (g *stubGateway) DetectScam(ctx context.Context, message string, history []models.ConversationTurn) bool {
	return g.detectResult
}

func (g *stubGateway) callCount(mode llm.Mode) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, m := range g.calls {
		if m == mode {
			n++
		}
	}
	return n
}

// captureSink records what the pipeline hands off for delivery
type captureSink struct {
	mu      sync.Mutex
	records []*models.IntelligenceRecord
	done    chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{done: make(chan struct{}, 16)}
}

func (s *captureSink) Enqueue(sessionID string, record *models.IntelligenceRecord) {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	s.done <- struct{}{}
}

func (s *captureSink) last() *models.IntelligenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	return s.records[len(s.records)-1]
}

func newTestPipeline(gw llm.Gateway, sink RecordSink) *IntelPipeline {
	return NewIntelPipeline(
		gw,
		extraction.New(),
		sink,
		observability.NewMetrics("scamlure", prometheus.NewRegistry()),
		2*time.Second,
		logger.NewDefault(),
	)
}

func TestAnalyzeParsesStructuredOutput(t *testing.T) {
	gw := &stubGateway{
		analysisOut: `{"scamDetected": true, "extractedIntelligence": {"bankAccounts": ["SBI"]}, "agentNotes": "urgent OTP request"}`,
	}
	sink := newCaptureSink()
	p := newTestPipeline(gw, sink)

	record := p.Analyze(context.Background(), "s-1", nil, models.Metadata{})

	require.NotNil(t, record)
	assert.True(t, record.ScamDetected)
	assert.Contains(t, record.ExtractedIntelligence[models.CategoryBankAccounts], "SBI")
	// The defensive extractor pass must pick "OTP" out of the notes.
	assert.Contains(t, record.ExtractedIntelligence[models.CategorySuspiciousKeywords], "OTP")
	assert.Same(t, record, sink.last())
}

func TestAnalyzeDegradedOnParseFailure(t *testing.T) {
	gw := &stubGateway{analysisOut: "I cannot provide that information."}
	sink := newCaptureSink()
	p := newTestPipeline(gw, sink)

	record := p.Analyze(context.Background(), "s-1", nil, models.Metadata{})

	require.NotNil(t, record)
	assert.False(t, record.ScamDetected)
	assert.Contains(t, record.AgentNotes, string(models.FailureNoValidStructure))
	for _, cat := range models.KnownCategories {
		require.NotNil(t, record.ExtractedIntelligence[cat])
	}
	// Degraded or not, the record is still delivered.
	assert.Same(t, record, sink.last())
}

func TestAnalyzeDegradedOnUpstreamError(t *testing.T) {
	gw := &stubGateway{analysisErr: &llm.UpstreamError{Kind: llm.KindUnreachable, Err: errors.New("connection refused")}}
	sink := newCaptureSink()
	p := newTestPipeline(gw, sink)

	record := p.Analyze(context.Background(), "s-1", nil, models.Metadata{})

	require.NotNil(t, record)
	assert.False(t, record.ScamDetected)
	assert.Contains(t, record.AgentNotes, "unreachable")
	assert.Same(t, record, sink.last())
}

func TestAnalyzeExtractsFromConversationOnDegradedPath(t *testing.T) {
	gw := &stubGateway{analysisOut: "no json here"}
	sink := newCaptureSink()
	p := newTestPipeline(gw, sink)

	turns := []models.ConversationTurn{
		{Role: models.RoleScammer, Text: "pay to ramesh@upi now, OTP blocked in 2 hours"},
	}

	record := p.Analyze(context.Background(), "s-1", turns, models.Metadata{})

	assert.Contains(t, record.ExtractedIntelligence[models.CategoryUPIIDs], "ramesh@upi")
	assert.Contains(t, record.ExtractedIntelligence[models.CategorySuspiciousKeywords], "OTP")
}

func TestScheduleDeliversInBackground(t *testing.T) {
	gw := &stubGateway{analysisOut: `{"scamDetected": false, "extractedIntelligence": {}, "agentNotes": ""}`}
	sink := newCaptureSink()
	p := newTestPipeline(gw, sink)

	p.Schedule("s-1", nil, models.Metadata{})

	select {
	case <-sink.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background analysis never delivered a record")
	}
}
