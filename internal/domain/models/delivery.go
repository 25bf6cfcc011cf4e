package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus tracks a callback delivery through its lifecycle
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusAbandoned DeliveryStatus = "abandoned"
)

// DeliveryOutcome is the terminal result of a delivery
type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomeAbandoned DeliveryOutcome = "abandoned"
)

// CallbackPayload is the body POSTed to the reporting platform
type CallbackPayload struct {
	SessionID    string              `json:"sessionId"`
	ReportedAt   time.Time           `json:"reportedAt"`
	Intelligence *IntelligenceRecord `json:"intelligence"`
}

// DeliveryAttempt tracks one queued callback delivery. Owned solely by the
// dispatcher; discarded on terminal success or give-up.
type DeliveryAttempt struct {
	ID           uuid.UUID
	SessionID    string
	Payload      *CallbackPayload
	Target       string
	Status       DeliveryStatus
	AttemptCount int
	StatusCode   int
	LastError    string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// RetryConfig controls dispatcher retry behavior
type RetryConfig struct {
	MaxAttempts   int
	RetryInterval time.Duration
	BackoffFactor float64
	MaxRetryDelay time.Duration
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		RetryInterval: 500 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxRetryDelay: 30 * time.Second,
	}
}
