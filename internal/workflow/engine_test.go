package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqwda22/archon-orchestrator/internal/assistant"
	assistantfake "github.com/sqwda22/archon-orchestrator/internal/assistant/fake"
	"github.com/sqwda22/archon-orchestrator/internal/platform"
	platformfake "github.com/sqwda22/archon-orchestrator/internal/platform/fake"
	"github.com/sqwda22/archon-orchestrator/internal/session"
	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/store/storetest"
)

type stubCommandSource struct {
	templates map[string]string
}

func (s stubCommandSource) ReadCommand(codebase *store.Codebase, name string) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", assert.AnError
	}
	return t, nil
}

func newTestEngine(templates map[string]string, repo store.Repository) (*Engine, *session.Manager) {
	sessions := session.NewManager(repo, nil)
	eng := NewEngine(repo, sessions, stubCommandSource{templates: templates}, nil)
	return eng, sessions
}

func setupConversation(t *testing.T, repo store.Repository) (*store.Conversation, *store.Codebase) {
	t.Helper()
	sessions := session.NewManager(repo, nil)
	conv, err := sessions.GetOrCreateConversation(context.Background(), "github", "o/r#1")
	require.NoError(t, err)
	codebase := &store.Codebase{Name: "o/r", CanonicalPath: "/tmp/o/r", Commands: map[string]store.Command{}}
	require.NoError(t, repo.CreateCodebase(context.Background(), codebase))
	return conv, codebase
}

func TestEngine_RunSteps_Sequential(t *testing.T) {
	repo := storetest.New()
	conv, codebase := setupConversation(t, repo)
	eng, _ := newTestEngine(map[string]string{
		"plan-feature": "plan: $USER_MESSAGE",
		"execute":      "execute now",
	}, repo)

	client := assistantfake.New("claude",
		assistantfake.Turn{Chunks: []assistant.Chunk{{Type: assistant.ChunkResult, SessionID: "s1"}}},
		assistantfake.Turn{Chunks: []assistant.Chunk{{Type: assistant.ChunkResult, SessionID: "s2"}}},
	)
	adapter := platformfake.New("github", platform.Batch)

	def := &Definition{Name: "plan-then-execute", Steps: []Step{
		{Command: "plan-feature"},
		{Command: "execute"},
	}}

	run, err := eng.Dispatch(context.Background(), def, DispatchInput{
		Conversation: conv, Codebase: codebase, Client: client, Adapter: adapter, TriggerMessage: "dark mode",
	})
	require.NoError(t, err)
	assert.Equal(t, store.WorkflowRunCompleted, run.Status)
	assert.Len(t, client.Calls, 2)
	assert.Contains(t, client.Calls[0].Prompt, "plan: dark mode")
}

func TestEngine_ParallelBlock_FailFast(t *testing.T) {
	repo := storetest.New()
	conv, codebase := setupConversation(t, repo)
	eng, _ := newTestEngine(map[string]string{
		"a": "run a", "b": "run b", "c": "run c",
	}, repo)

	client := assistantfake.New("claude",
		assistantfake.Turn{Chunks: []assistant.Chunk{{Type: assistant.ChunkResult, SessionID: "s1"}}},
		assistantfake.Turn{Err: assert.AnError},
		assistantfake.Turn{Chunks: []assistant.Chunk{{Type: assistant.ChunkResult, SessionID: "s3"}}},
	)
	adapter := platformfake.New("github", platform.Batch)

	def := &Definition{Name: "parallel-wf", Steps: []Step{
		{Parallel: []Step{{Command: "a"}, {Command: "b"}, {Command: "c"}}},
	}}

	run, err := eng.Dispatch(context.Background(), def, DispatchInput{
		Conversation: conv, Codebase: codebase, Client: client, Adapter: adapter, TriggerMessage: "go",
	})
	require.Error(t, err)
	assert.Equal(t, store.WorkflowRunFailed, run.Status)
	assert.Len(t, client.Calls, 3, "all three parallel steps should have started")
}

func TestEngine_Loop_CompletionSignal(t *testing.T) {
	repo := storetest.New()
	conv, codebase := setupConversation(t, repo)
	eng, _ := newTestEngine(nil, repo)

	client := assistantfake.New("claude",
		assistantfake.Turn{Chunks: []assistant.Chunk{
			{Type: assistant.ChunkAssistant, Content: "still working"},
			{Type: assistant.ChunkResult, SessionID: "s1"},
		}},
		assistantfake.Turn{Chunks: []assistant.Chunk{
			{Type: assistant.ChunkAssistant, Content: "<promise>DONE</promise>"},
			{Type: assistant.ChunkResult, SessionID: "s2"},
		}},
	)
	adapter := platformfake.New("github", platform.Batch)

	def := &Definition{Name: "loop-wf", Loop: &Loop{Prompt: "keep going $ITERATION", Until: "DONE", MaxIterations: 5}}

	run, err := eng.Dispatch(context.Background(), def, DispatchInput{
		Conversation: conv, Codebase: codebase, Client: client, Adapter: adapter, TriggerMessage: "start",
	})
	require.NoError(t, err)
	assert.Equal(t, store.WorkflowRunCompleted, run.Status)
	assert.Equal(t, ExitCompletionSignal, run.Metadata["exitReason"])
	assert.Len(t, client.Calls, 2)
}

func TestEngine_Loop_MaxIterationsOfOne(t *testing.T) {
	repo := storetest.New()
	conv, codebase := setupConversation(t, repo)
	eng, _ := newTestEngine(nil, repo)

	client := assistantfake.New("claude", assistantfake.Turn{Chunks: []assistant.Chunk{
		{Type: assistant.ChunkAssistant, Content: "no signal here"},
		{Type: assistant.ChunkResult, SessionID: "s1"},
	}})
	adapter := platformfake.New("github", platform.Batch)

	def := &Definition{Name: "one-shot-loop", Loop: &Loop{Prompt: "go", Until: "DONE", MaxIterations: 1}}

	run, err := eng.Dispatch(context.Background(), def, DispatchInput{
		Conversation: conv, Codebase: codebase, Client: client, Adapter: adapter, TriggerMessage: "start",
	})
	require.NoError(t, err)
	assert.Equal(t, ExitMaxIterations, run.Metadata["exitReason"])
	assert.Len(t, client.Calls, 1)
}

func TestEngine_Dispatch_BusyWhenAlreadyRunning(t *testing.T) {
	repo := storetest.New()
	conv, codebase := setupConversation(t, repo)
	require.NoError(t, repo.CreateRunningWorkflowRun(context.Background(), &store.WorkflowRun{ConversationID: conv.ID, WorkflowName: "other"}))

	eng, _ := newTestEngine(map[string]string{"a": "go"}, repo)
	client := assistantfake.New("claude")
	adapter := platformfake.New("github", platform.Batch)

	def := &Definition{Name: "wf", Steps: []Step{{Command: "a"}}}
	_, err := eng.Dispatch(context.Background(), def, DispatchInput{
		Conversation: conv, Codebase: codebase, Client: client, Adapter: adapter, TriggerMessage: "x",
	})
	assert.ErrorIs(t, err, store.ErrWorkflowRunBusy)
}
