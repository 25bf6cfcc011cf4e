package services

import (
	"context"
	"sync"
	"time"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/pkg/logger"
)

// Session holds the in-memory state of one engagement. History is
// append-only and lives only as long as the session entry; nothing here
// survives a process restart.
type Session struct {
	ID             string
	Metadata       models.Metadata
	Turns          []models.ConversationTurn
	StartedAt      time.Time
	LastActivityAt time.Time
}

// SessionView is a read-only copy handed to API consumers
type SessionView struct {
	ID             string                    `json:"session_id"`
	Metadata       models.Metadata           `json:"metadata"`
	Turns          []models.ConversationTurn `json:"turns"`
	StartedAt      time.Time                 `json:"started_at"`
	LastActivityAt time.Time                 `json:"last_activity_at"`
}

// SessionStore keeps per-session conversation history. Only the reply
// pipeline mutates it; the analysis pipeline reads snapshots taken at
// dispatch time, so there is no shared mutable state between the two.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	maxTurns int
	logger   *logger.Logger
}

// NewSessionStore creates a session store. Sessions idle longer than ttl
// are reaped by RunJanitor.
func NewSessionStore(ttl time.Duration, maxTurns int, log *logger.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if maxTurns <= 0 {
		maxTurns = 200
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		maxTurns: maxTurns,
		logger:   log.WithComponent("session-store"),
	}
}

// GetOrCreate returns the session for id, creating it when absent. Seed
// turns (client-provided prior history) only apply to a new session.
func (s *SessionStore) GetOrCreate(id string, meta models.Metadata, seed []models.ConversationTurn) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.LastActivityAt = time.Now().UTC()
		return sess
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:             id,
		Metadata:       meta,
		Turns:          append([]models.ConversationTurn(nil), seed...),
		StartedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[id] = sess
	s.logger.Debug().Str("session_id", id).Int("seed_turns", len(seed)).Msg("session created")
	return sess
}

// Append adds a turn to the session history
func (s *SessionStore) Append(id string, turn models.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	sess.Turns = append(sess.Turns, turn)
	if len(sess.Turns) > s.maxTurns {
		sess.Turns = sess.Turns[len(sess.Turns)-s.maxTurns:]
	}
	sess.LastActivityAt = time.Now().UTC()
}

// Snapshot returns a copy of the session history and metadata, safe to
// read concurrently with later appends.
func (s *SessionStore) Snapshot(id string) ([]models.ConversationTurn, models.Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.Metadata{}, false
	}
	turns := make([]models.ConversationTurn, len(sess.Turns))
	copy(turns, sess.Turns)
	return turns, sess.Metadata, true
}

// View returns a read-only copy of the session for the inspection endpoint
func (s *SessionStore) View(id string) (*SessionView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	turns := make([]models.ConversationTurn, len(sess.Turns))
	copy(turns, sess.Turns)
	return &SessionView{
		ID:             sess.ID,
		Metadata:       sess.Metadata,
		Turns:          turns,
		StartedAt:      sess.StartedAt,
		LastActivityAt: sess.LastActivityAt,
	}, true
}

// Metrics summarizes one session for the synchronous response
func (s *SessionStore) Metrics(id string) models.EngagementMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.EngagementMetrics{}
	}
	return models.EngagementMetrics{
		EngagementDurationSeconds: int(time.Since(sess.StartedAt).Seconds()),
		TotalMessagesExchanged:    len(sess.Turns),
	}
}

// ActiveCount returns the number of live sessions
func (s *SessionStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunJanitor reaps idle sessions until ctx is cancelled
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *SessionStore) reap() {
	cutoff := time.Now().UTC().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.LastActivityAt.Before(cutoff) {
			delete(s.sessions, id)
			s.logger.Debug().Str("session_id", id).Msg("idle session reaped")
		}
	}
}
