package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scamlure-lab/internal/domain/models"
	"scamlure-lab/pkg/logger"
)

func TestSessionStoreSnapshotIsACopy(t *testing.T) {
	store := NewSessionStore(time.Hour, 50, logger.NewDefault())
	store.GetOrCreate("s-1", models.Metadata{Channel: "SMS"}, nil)
	store.Append("s-1", models.ConversationTurn{Role: models.RoleScammer, Text: "first"})

	snapshot, meta, ok := store.Snapshot("s-1")
	require.True(t, ok)
	assert.Equal(t, "SMS", meta.Channel)
	require.Len(t, snapshot, 1)

	// Later appends must not show up in the earlier snapshot.
	store.Append("s-1", models.ConversationTurn{Role: models.RoleAgent, Text: "second"})
	assert.Len(t, snapshot, 1)

	current, _, _ := store.Snapshot("s-1")
	assert.Len(t, current, 2)
}

func TestSessionStoreTrimsHistory(t *testing.T) {
	store := NewSessionStore(time.Hour, 3, logger.NewDefault())
	store.GetOrCreate("s-1", models.Metadata{}, nil)

	for i := 0; i < 5; i++ {
		store.Append("s-1", models.ConversationTurn{Role: models.RoleScammer, Text: "msg"})
	}

	turns, _, _ := store.Snapshot("s-1")
	assert.Len(t, turns, 3)
}

func TestSessionStoreAppendUnknownSessionIsNoop(t *testing.T) {
	store := NewSessionStore(time.Hour, 50, logger.NewDefault())
	store.Append("missing", models.ConversationTurn{Text: "x"})

	_, _, ok := store.Snapshot("missing")
	assert.False(t, ok)
}

func TestSessionStoreReapsIdleSessions(t *testing.T) {
	store := NewSessionStore(10*time.Millisecond, 50, logger.NewDefault())
	store.GetOrCreate("s-1", models.Metadata{}, nil)
	assert.Equal(t, 1, store.ActiveCount())

	time.Sleep(20 * time.Millisecond)
	store.reap()

	assert.Equal(t, 0, store.ActiveCount())
}

func TestSessionStoreViewAndMetrics(t *testing.T) {
	store := NewSessionStore(time.Hour, 50, logger.NewDefault())
	store.GetOrCreate("s-1", models.Metadata{Locale: "IN"}, []models.ConversationTurn{
		{Role: models.RoleScammer, Text: "seeded"},
	})

	view, ok := store.View("s-1")
	require.True(t, ok)
	assert.Equal(t, "s-1", view.ID)
	assert.Equal(t, "IN", view.Metadata.Locale)
	require.Len(t, view.Turns, 1)

	m := store.Metrics("s-1")
	assert.Equal(t, 1, m.TotalMessagesExchanged)

	_, ok = store.View("missing")
	assert.False(t, ok)
}
