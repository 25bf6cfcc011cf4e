package services

import (
	"context"
	"fmt"
	"time"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/extraction"
	"scamlure-lab/internal/isolation"
	"scamlure-lab/internal/llm"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

// RecordSink receives finished intelligence records. Implemented by the
// callback dispatcher.
type RecordSink interface {
	Enqueue(sessionID string, record *models.IntelligenceRecord)
}

// IntelPipeline produces one deliverable IntelligenceRecord per analysis
// cycle. It runs entirely off the reply path: every internal failure is
// converted into a degraded record. The pipeline never aborts silently
// and never crashes the host process.
type IntelPipeline struct {
	gateway   llm.Gateway
	extractor *extraction.Extractor
	sink      RecordSink
	metrics   *observability.Metrics
	timeout   time.Duration
	logger    *logger.Logger
}

// NewIntelPipeline creates an intelligence pipeline
func NewIntelPipeline(gw llm.Gateway, ex *extraction.Extractor, sink RecordSink, m *observability.Metrics, timeout time.Duration, log *logger.Logger) *IntelPipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IntelPipeline{
		gateway:   gw,
		extractor: ex,
		sink:      sink,
		metrics:   m,
		timeout:   timeout,
		logger:    log.WithComponent("intel-pipeline"),
	}
}

// Schedule detaches one analysis cycle as a background unit of work. The
// caller gets its HTTP response before this begins or completes; the only
// observable effect is the eventual callback delivery.
func (p *IntelPipeline) Schedule(sessionID string, turns []models.ConversationTurn, meta models.Metadata) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("session_id", sessionID).
					Interface("panic", r).
					Msg("analysis cycle panicked, record lost")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.Analyze(ctx, sessionID, turns, meta)
	}()
}

// Analyze runs one full cycle: model analysis, isolation parse, extractor
// enrichment, hand-off to the sink. Always produces some record.
func (p *IntelPipeline) Analyze(ctx context.Context, sessionID string, turns []models.ConversationTurn, meta models.Metadata) *models.IntelligenceRecord {
	log := p.logger.WithSessionID(sessionID)

	var (
		record *models.IntelligenceRecord
		raw    string
	)

	out, err := p.gateway.Generate(ctx, llm.ModeAnalysis, llm.GenerateOptions{
		History:  turns,
		Metadata: meta,
	})
	if err != nil {
		reason := "model unavailable"
		if ue, ok := llm.AsUpstreamError(err); ok {
			reason = fmt.Sprintf("model upstream failure (%s)", ue.Kind)
		}
		log.Warn().Err(err).Msg("analysis generation failed, building degraded record")
		record = models.NewDegradedRecord(reason)
		p.observeParse("upstream_error")
	} else {
		raw = out
		parsed, failure := isolation.Parse(out)
		if failure != nil {
			log.Warn().
				Str("reason", string(failure.Reason)).
				Int("raw_len", len(failure.Raw)).
				Msg("model output failed isolation, building degraded record")
			record = models.NewDegradedRecord(string(failure.Reason))
			p.observeParse(string(failure.Reason))
		} else {
			record = parsed
			p.observeParse("ok")
		}
	}

	// Defensive pass: regex extraction over the structured notes, the raw
	// model output, and the conversation itself. Catches artifacts the
	// model omitted or that isolation could not recover.
	transcript := llm.Transcript(turns, "")
	p.extractor.Enrich(record, record.AgentNotes, raw, transcript)

	if p.metrics != nil {
		for category, values := range record.ExtractedIntelligence {
			if len(values) > 0 {
				p.metrics.EntitiesFound.WithLabelValues(category).Add(float64(len(values)))
			}
		}
	}

	log.Info().
		Bool("scam_detected", record.ScamDetected).
		Int("categories", len(record.ExtractedIntelligence)).
		Msg("analysis cycle complete")

	if p.sink != nil {
		p.sink.Enqueue(sessionID, record)
	}
	return record
}

func (p *IntelPipeline) observeParse(result string) {
	if p.metrics != nil {
		p.metrics.ParseOutcomes.WithLabelValues(result).Inc()
	}
}
