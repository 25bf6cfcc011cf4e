package services

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/internal/observability"
	"scamlure-lab/pkg/logger"
)

func newTestDispatcher(t *testing.T, target string) *Dispatcher {
	t.Helper()
	d := NewDispatcher(DispatcherConfig{
		TargetURL:   target,
		Secret:      "test-secret",
		Timeout:     2 * time.Second,
		WorkerCount: 1,
		QueueSize:   8,
		Retry: &models.RetryConfig{
			MaxAttempts:   3,
			RetryInterval: 5 * time.Millisecond,
			BackoffFactor: 2.0,
			MaxRetryDelay: 50 * time.Millisecond,
		},
	}, observability.NewMetrics("scamlure", prometheus.NewRegistry()), nil, nil, logger.NewDefault())
	t.Cleanup(d.Stop)
	return d
}

func newAttempt(target string) *models.DeliveryAttempt {
	record := models.NewIntelligenceRecord()
	record.ScamDetected = true
	record.Add(models.CategoryUPIIDs, "ramesh@upi")
	return &models.DeliveryAttempt{
		SessionID: "s-1",
		Payload: &models.CallbackPayload{
			SessionID:    "s-1",
			ReportedAt:   time.Now().UTC(),
			Intelligence: record,
		},
		Target:    target,
		Status:    models.DeliveryStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestDispatchTransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Callback-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	attempt := newAttempt(srv.URL)

	outcome := d.Dispatch(attempt)

	assert.Equal(t, models.OutcomeDelivered, outcome)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, attempt.AttemptCount)
	assert.Equal(t, models.DeliveryStatusDelivered, attempt.Status)
}

func TestDispatchTerminal4xxSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	attempt := newAttempt(srv.URL)

	outcome := d.Dispatch(attempt)

	assert.Equal(t, models.OutcomeAbandoned, outcome)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, attempt.AttemptCount)
	assert.Contains(t, attempt.LastError, "HTTP 400")
}

func TestDispatch429IsTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)

	outcome := d.Dispatch(newAttempt(srv.URL))

	assert.Equal(t, models.OutcomeDelivered, outcome)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDispatchExhaustsRetriesThenAbandons(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	attempt := newAttempt(srv.URL)

	outcome := d.Dispatch(attempt)

	assert.Equal(t, models.OutcomeAbandoned, outcome)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, models.DeliveryStatusAbandoned, attempt.Status)
}

func TestDispatchNoTargetAbandons(t *testing.T) {
	d := newTestDispatcher(t, "")

	outcome := d.Dispatch(newAttempt(""))

	assert.Equal(t, models.OutcomeAbandoned, outcome)
}

func TestEnqueueDeliversThroughWorkers(t *testing.T) {
	done := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		select {
		case done <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	record := models.NewIntelligenceRecord()
	d.Enqueue("s-2", record)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never reached the target")
	}
}

func TestEnqueueNilRecordIsNoop(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost:0")
	d.Enqueue("s-3", nil)
	require.Empty(t, d.queue)
}
