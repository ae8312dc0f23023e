package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/store/storetest"
)

func TestGetOrCreateConversation_Idempotent(t *testing.T) {
	m := NewManager(storetest.New(), nil)
	ctx := context.Background()

	a, err := m.GetOrCreateConversation(ctx, "github", "owner/repo#1")
	require.NoError(t, err)
	b, err := m.GetOrCreateConversation(ctx, "github", "owner/repo#1")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
}

func TestCreateSession_DeactivatesPrevious(t *testing.T) {
	m := NewManager(storetest.New(), nil)
	ctx := context.Background()
	conv, err := m.GetOrCreateConversation(ctx, "github", "owner/repo#1")
	require.NoError(t, err)

	first, err := m.CreateSession(ctx, conv.ID, "cb-1", "claude")
	require.NoError(t, err)
	second, err := m.CreateSession(ctx, conv.ID, "cb-1", "claude")
	require.NoError(t, err)

	active, err := m.GetActiveSession(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestNeedsNewSession(t *testing.T) {
	assert.True(t, NeedsNewSession(nil, "claude", ""))

	active := &store.Session{AssistantType: "claude", Metadata: map[string]string{}}
	assert.False(t, NeedsNewSession(active, "claude", "status"))
	assert.True(t, NeedsNewSession(active, "codex", "status"), "assistant type change forces a new session")

	planned := &store.Session{AssistantType: "claude", Metadata: map[string]string{"lastCommand": "plan-feature"}}
	assert.True(t, NeedsNewSession(planned, "claude", "execute"), "plan->execute forces a hard reset")
	assert.False(t, NeedsNewSession(planned, "claude", "status"))
}

func TestResolve_ResumesExistingSession(t *testing.T) {
	m := NewManager(storetest.New(), nil)
	ctx := context.Background()
	conv, err := m.GetOrCreateConversation(ctx, "github", "owner/repo#1")
	require.NoError(t, err)

	first, isNew, err := m.Resolve(ctx, conv.ID, "cb-1", "claude", "plan-feature")
	require.NoError(t, err)
	assert.True(t, isNew)

	second, isNew, err := m.Resolve(ctx, conv.ID, "cb-1", "claude", "status")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "status", second.Metadata["lastCommand"])

	third, isNew, err := m.Resolve(ctx, conv.ID, "cb-1", "claude", "execute")
	require.NoError(t, err)
	assert.False(t, isNew, "lastCommand was status, not plan-feature, so execute resumes")
	assert.Equal(t, second.ID, third.ID)
}

func TestDeactivateSession_IdempotentOnEmpty(t *testing.T) {
	m := NewManager(storetest.New(), nil)
	assert.NoError(t, m.DeactivateSession(context.Background(), ""))
	assert.NoError(t, m.DeactivateSession(context.Background(), "unknown-id"))
}
