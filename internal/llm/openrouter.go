package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scamlure-lab/internal/config"
	"scamlure-lab/internal/domain/models"
	"scamlure-lab/pkg/logger"
)

// OpenRouterClient calls an OpenRouter-compatible chat-completions API
type OpenRouterClient struct {
	apiURL          string
	apiKey          string
	model           string
	temperature     float64
	replyTimeout    time.Duration
	analysisTimeout time.Duration
	httpClient      *http.Client
	logger          *logger.Logger
}

// NewOpenRouterClient creates a gateway backed by OpenRouter
func NewOpenRouterClient(cfg config.ModelConfig, log *logger.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		apiURL:          cfg.APIURL,
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		replyTimeout:    cfg.ReplyTimeout,
		analysisTimeout: cfg.AnalysisTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log.WithComponent("model-gateway"),
	}
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate implements Gateway
func (c *OpenRouterClient) Generate(ctx context.Context, mode Mode, opts GenerateOptions) (string, error) {
	if c.apiKey == "" {
		return "", &UpstreamError{Kind: KindUnreachable, Err: errors.New("model API key not configured")}
	}

	var msgs []chatMessage
	timeout := c.replyTimeout
	if mode == ModeAnalysis {
		msgs = buildAnalysisMessages(opts)
		timeout = c.analysisTimeout
	} else {
		msgs = buildReplyMessages(opts)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := c.complete(ctx, msgs)
	if err != nil {
		c.logger.Warn().Err(err).Str("mode", string(mode)).Msg("model call failed")
		return "", err
	}
	return text, nil
}

// DetectScam implements Gateway. The model answer is a bare true/false;
// anything else, or any upstream failure, falls back to keyword matching
// so detection always produces an answer.
func (c *OpenRouterClient) DetectScam(ctx context.Context, message string, history []models.ConversationTurn) bool {
	ctx, cancel := context.WithTimeout(ctx, c.replyTimeout)
	defer cancel()

	msgs := []chatMessage{
		{Role: "system", Content: detectSystemPrompt},
		{Role: "user", Content: detectPrompt(message)},
	}

	if c.apiKey != "" {
		if text, err := c.complete(ctx, msgs); err == nil {
			answer := strings.ToLower(strings.TrimSpace(text))
			switch answer {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}

	lower := strings.ToLower(message)
	for _, kw := range detectFallbackKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// complete performs one chat-completions round trip
func (c *OpenRouterClient) complete(ctx context.Context, msgs []chatMessage) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", &UpstreamError{Kind: KindMalformedResponse, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", &UpstreamError{Kind: KindUnreachable, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &UpstreamError{Kind: KindTimeout, Err: err}
		}
		return "", &UpstreamError{Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &UpstreamError{Kind: KindMalformedResponse, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &UpstreamError{Kind: KindRateLimited, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return "", &UpstreamError{Kind: KindUnreachable, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &UpstreamError{Kind: KindMalformedResponse, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))}
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &UpstreamError{Kind: KindMalformedResponse, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &UpstreamError{Kind: KindMalformedResponse, Err: errors.New("response contains no choices")}
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
