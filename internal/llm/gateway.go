// Package llm is the gateway to the upstream language model. The model is
// an untrusted black box: this package isolates its network failures
// behind typed errors and bounded timeouts so callers never have to care
// which provider is behind it.
package llm

import (
	"context"
	"errors"
	"fmt"

	"scamlure-lab/internal/domain/models"
)

// Mode selects the prompt and timeout profile for a generation call
type Mode string

const (
	// ModeReply generates the next scammer-facing message. It runs on the
	// synchronous fast path and carries the tight timeout.
	ModeReply Mode = "reply"
	// ModeAnalysis generates the structured intelligence object. It runs
	// off the fast path with a longer timeout.
	ModeAnalysis Mode = "analysis"
)

// ErrorKind classifies upstream provider failures
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnreachable       ErrorKind = "unreachable"
)

// UpstreamError is a typed provider failure. Callers recover locally
// (fallback reply, degraded record); it never reaches the scammer-facing
// side.
type UpstreamError struct {
	Kind ErrorKind
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model upstream error: %s", e.Kind)
	}
	return fmt.Sprintf("model upstream error (%s): %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// AsUpstreamError extracts an UpstreamError from an error chain
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// GenerateOptions carries per-call conversation context
type GenerateOptions struct {
	Message  string
	History  []models.ConversationTurn
	Metadata models.Metadata
}

// Gateway is the contract the pipelines depend on. Implementations must
// respect context cancellation and return raw text only; parsing the
// output is the caller's problem.
type Gateway interface {
	// Generate produces raw model output for the given mode.
	Generate(ctx context.Context, mode Mode, opts GenerateOptions) (string, error)
	// DetectScam classifies the inbound message. Falls back to keyword
	// heuristics when the model is unavailable, so it always answers.
	DetectScam(ctx context.Context, message string, history []models.ConversationTurn) bool
}
