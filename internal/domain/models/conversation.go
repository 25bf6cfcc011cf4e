package models

import (
	"time"
)

// TurnRole identifies who produced a conversation turn
type TurnRole string

const (
	RoleScammer TurnRole = "scammer"
	RoleAgent   TurnRole = "agent"
)

// ConversationTurn is a single message within an engagement session.
// Turns are append-only; pipelines operate on snapshots of the sequence.
type ConversationTurn struct {
	Role      TurnRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata describes the channel the scammer is operating on
type Metadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// EngagementMetrics summarizes one session's activity so far
type EngagementMetrics struct {
	EngagementDurationSeconds int `json:"engagementDurationSeconds"`
	TotalMessagesExchanged    int `json:"totalMessagesExchanged"`
}
