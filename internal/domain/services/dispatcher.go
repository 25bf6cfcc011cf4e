package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/infrastructure/cache"
	"scamlure-lab/internal/infrastructure/database/repository"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

// DispatcherConfig contains configuration for the callback dispatcher
type DispatcherConfig struct {
	TargetURL   string
	Secret      string
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
	Retry       *models.RetryConfig
}

// Dispatcher delivers finished intelligence payloads to the reporting
// platform's callback endpoint. Delivery is best-effort with bounded
// retry. An abandoned delivery is logged and counted, never escalated;
// the honeypot's availability does not depend on the target platform's.
type Dispatcher struct {
	queue      chan *models.DeliveryAttempt
	httpClient *http.Client
	targetURL  string
	secret     string
	retry      *models.RetryConfig
	metrics    *observability.Metrics
	cache      *cache.RedisCache
	reports    *repository.ReportRepository
	logger     *logger.Logger

	wg          sync.WaitGroup
	stopCh      chan struct{}
	workerCount int
}

// NewDispatcher creates a callback dispatcher. cache and reports may be
// nil; they only feed stats and the optional archive.
func NewDispatcher(cfg DispatcherConfig, m *observability.Metrics, c *cache.RedisCache, reports *repository.ReportRepository, log *logger.Logger) *Dispatcher {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = models.DefaultRetryConfig()
	}

	d := &Dispatcher{
		queue: make(chan *models.DeliveryAttempt, cfg.QueueSize),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		targetURL:   cfg.TargetURL,
		secret:      cfg.Secret,
		retry:       cfg.Retry,
		metrics:     m,
		cache:       c,
		reports:     reports,
		logger:      log.WithComponent("dispatcher"),
		stopCh:      make(chan struct{}),
		workerCount: cfg.WorkerCount,
	}

	d.startWorkers()
	return d
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info().Int("workers", d.workerCount).Msg("callback delivery workers started")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			d.logger.Debug().Int("worker", id).Msg("delivery worker stopping")
			return
		case attempt := <-d.queue:
			d.Dispatch(attempt)
		}
	}
}

// Stop stops the dispatcher. Queued deliveries that have not started are
// lost; there is no durable queue, which is an accepted limitation.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info().Msg("dispatcher stopped")
}

// Enqueue queues a record for delivery, never blocking the caller. A full
// queue drops the delivery with a warning.
func (d *Dispatcher) Enqueue(sessionID string, record *models.IntelligenceRecord) {
	if record == nil {
		return
	}
	attempt := &models.DeliveryAttempt{
		ID:        uuid.New(),
		SessionID: sessionID,
		Payload: &models.CallbackPayload{
			SessionID:    sessionID,
			ReportedAt:   time.Now().UTC(),
			Intelligence: record,
		},
		Target:    d.targetURL,
		Status:    models.DeliveryStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	select {
	case d.queue <- attempt:
		d.logger.Debug().
			Str("delivery_id", attempt.ID.String()).
			Str("session_id", sessionID).
			Msg("delivery queued")
	default:
		d.logger.Warn().
			Str("session_id", sessionID).
			Msg("delivery queue full, dropping record")
	}
}

// Dispatch runs one delivery to its terminal outcome, retrying transient
// failures with exponential backoff. Exposed for deterministic testing;
// workers call it from the queue.
func (d *Dispatcher) Dispatch(attempt *models.DeliveryAttempt) models.DeliveryOutcome {
	if attempt.Target == "" {
		d.logger.Warn().Str("session_id", attempt.SessionID).Msg("no callback target configured, abandoning delivery")
		return d.finish(attempt, models.OutcomeAbandoned)
	}

	payloadBytes, err := json.Marshal(attempt.Payload)
	if err != nil {
		attempt.LastError = fmt.Sprintf("marshal payload: %v", err)
		return d.finish(attempt, models.OutcomeAbandoned)
	}

	delay := d.retry.RetryInterval
	for {
		attempt.AttemptCount++
		ok, transient, errMsg := d.send(attempt, payloadBytes)
		if ok {
			return d.finish(attempt, models.OutcomeDelivered)
		}

		attempt.LastError = errMsg
		if !transient || attempt.AttemptCount >= d.retry.MaxAttempts {
			return d.finish(attempt, models.OutcomeAbandoned)
		}

		attempt.Status = models.DeliveryStatusRetrying
		d.logger.Warn().
			Str("delivery_id", attempt.ID.String()).
			Int("attempt", attempt.AttemptCount).
			Dur("retry_in", delay).
			Str("error", errMsg).
			Msg("callback delivery will retry")

		select {
		case <-d.stopCh:
			// Shutting down: abandon cleanly rather than leave a
			// half-finished delivery behind.
			return d.finish(attempt, models.OutcomeAbandoned)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * d.retry.BackoffFactor)
		if delay > d.retry.MaxRetryDelay {
			delay = d.retry.MaxRetryDelay
		}
	}
}

// send performs one HTTP attempt. Returns (delivered, transient, error).
func (d *Dispatcher) send(attempt *models.DeliveryAttempt, payload []byte) (bool, bool, string) {
	req, err := http.NewRequest(http.MethodPost, attempt.Target, bytes.NewReader(payload))
	if err != nil {
		return false, false, fmt.Sprintf("create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ScamLure-Callback/1.0")
	req.Header.Set("X-Callback-Delivery", attempt.ID.String())
	req.Header.Set("X-Callback-Session", attempt.SessionID)
	req.Header.Set("X-Callback-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if d.secret != "" {
		req.Header.Set("X-Callback-Signature", "sha256="+d.signPayload(payload))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		// Connection failures and client timeouts are transient.
		return false, true, err.Error()
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	attempt.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, false, ""
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, true, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))
	default:
		// Remaining 4xx responses are terminal: the target rejected the
		// payload and retrying the same bytes cannot succeed.
		return false, false, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))
	}
}

// finish records the terminal outcome and archives the report
func (d *Dispatcher) finish(attempt *models.DeliveryAttempt, outcome models.DeliveryOutcome) models.DeliveryOutcome {
	now := time.Now().UTC()
	attempt.CompletedAt = &now
	if outcome == models.OutcomeDelivered {
		attempt.Status = models.DeliveryStatusDelivered
		d.logger.Info().
			Str("delivery_id", attempt.ID.String()).
			Str("session_id", attempt.SessionID).
			Int("attempts", attempt.AttemptCount).
			Msg("callback delivered")
	} else {
		attempt.Status = models.DeliveryStatusAbandoned
		d.logger.Error().
			Str("delivery_id", attempt.ID.String()).
			Str("session_id", attempt.SessionID).
			Int("attempts", attempt.AttemptCount).
			Str("error", attempt.LastError).
			Msg("callback delivery abandoned")
	}

	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(string(outcome)).Inc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.cache.IncrStat(ctx, "deliveries_"+string(outcome))

	if d.reports != nil {
		report := &models.IntelligenceReport{
			ID:           attempt.ID,
			SessionID:    attempt.SessionID,
			Record:       attempt.Payload.Intelligence,
			Outcome:      outcome,
			AttemptCount: attempt.AttemptCount,
			LastError:    attempt.LastError,
			CreatedAt:    now,
		}
		if err := d.reports.Save(ctx, report); err != nil {
			d.logger.Warn().Err(err).Str("delivery_id", attempt.ID.String()).Msg("failed to archive report")
		}
	}

	return outcome
}

// signPayload creates an HMAC signature for the payload
func (d *Dispatcher) signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(d.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
