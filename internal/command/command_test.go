package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/store/storetest"
	"github.com/sqwda22/archon-orchestrator/internal/workflow"
)

type stubRegistry struct {
	defs map[string]*workflow.Definition
}

func (s stubRegistry) Definitions() map[string]*workflow.Definition { return s.defs }
func (s stubRegistry) Reload(defs map[string]*workflow.Definition)  {}

func newTestHandler(t *testing.T) (*Handler, store.Repository, *store.Conversation) {
	t.Helper()
	repo := storetest.New()
	conv, _, err := repo.GetOrCreateConversation(context.Background(), "github", "o/r#1")
	require.NoError(t, err)
	reg := stubRegistry{defs: map[string]*workflow.Definition{
		"assist": {Name: "assist", Description: "general purpose"},
	}}
	h := NewHandler(repo, nil, reg, nil)
	return h, repo, conv
}

func TestDispatch_UnknownCommand(t *testing.T) {
	h, _, conv := newTestHandler(t)
	res, err := h.Dispatch(context.Background(), conv, "/nope")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestClone_IsIdempotent(t *testing.T) {
	h, _, conv := newTestHandler(t)
	res1, err := h.Dispatch(context.Background(), conv, "/clone https://example.com/o/r.git")
	require.NoError(t, err)
	assert.True(t, res1.Success)

	res2, err := h.Dispatch(context.Background(), conv, "/clone https://example.com/o/r.git")
	require.NoError(t, err)
	assert.True(t, res2.Success)
	assert.Contains(t, res2.Message, "already registered")
}

func TestCodebaseSwitch_SetsCwd(t *testing.T) {
	h, repo, conv := newTestHandler(t)
	require.NoError(t, repo.CreateCodebase(context.Background(), &store.Codebase{
		Name: "o/r", CanonicalPath: "/work/o/r", Commands: map[string]store.Command{},
	}))

	res, err := h.Dispatch(context.Background(), conv, "/codebase-switch o/r")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "/work/o/r", conv.Cwd)
}

func TestSetCwdAndGetCwd(t *testing.T) {
	h, _, conv := newTestHandler(t)
	_, err := h.Dispatch(context.Background(), conv, "/setcwd /tmp/x")
	require.NoError(t, err)

	res, err := h.Dispatch(context.Background(), conv, "/getcwd")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", res.Message)
}

func TestCommandSet_RequiresCodebase(t *testing.T) {
	h, _, conv := newTestHandler(t)
	res, err := h.Dispatch(context.Background(), conv, "/command-set plan .archon/commands/plan.md")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestCommandSetThenInvoke(t *testing.T) {
	h, repo, conv := newTestHandler(t)
	codebase := &store.Codebase{Name: "o/r", CanonicalPath: "/work/o/r", Commands: map[string]store.Command{}}
	require.NoError(t, repo.CreateCodebase(context.Background(), codebase))
	conv.CodebaseID = codebase.ID
	require.NoError(t, repo.UpdateConversation(context.Background(), conv))

	res, err := h.Dispatch(context.Background(), conv, "/command-set plan .archon/commands/plan.md plan a feature")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = h.Dispatch(context.Background(), conv, "/command-invoke plan")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = h.Dispatch(context.Background(), conv, "/command-invoke nope")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestWorkflowList(t *testing.T) {
	h, _, conv := newTestHandler(t)
	res, err := h.Dispatch(context.Background(), conv, "/workflow list")
	require.NoError(t, err)
	assert.Contains(t, res.Message, "assist")
}

func TestWorkflowCancel_NoneRunning(t *testing.T) {
	h, _, conv := newTestHandler(t)
	res, err := h.Dispatch(context.Background(), conv, "/workflow cancel")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "no workflow")
}

func TestReset_IdempotentWithNoActiveSession(t *testing.T) {
	h, _, conv := newTestHandler(t)
	res, err := h.Dispatch(context.Background(), conv, "/reset")
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestHelp(t *testing.T) {
	h, _, conv := newTestHandler(t)
	res, err := h.Dispatch(context.Background(), conv, "/help")
	require.NoError(t, err)
	assert.Contains(t, res.Message, "/codebase-switch")
}
