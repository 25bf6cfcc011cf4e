package models

import (
	"time"

	"github.com/google/uuid"
)

// IntelligenceReport is the archived form of a finished analysis cycle:
// the record plus its delivery outcome. Conversation history itself is
// never persisted; only the structured findings are.
type IntelligenceReport struct {
	ID           uuid.UUID           `json:"id"`
	SessionID    string              `json:"session_id"`
	Record       *IntelligenceRecord `json:"record"`
	Outcome      DeliveryOutcome     `json:"outcome"`
	AttemptCount int                 `json:"attempt_count"`
	LastError    string              `json:"last_error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}
