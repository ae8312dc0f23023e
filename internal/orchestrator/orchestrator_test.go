package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqwda22/archon-orchestrator/internal/assistant"
	assistantfake "github.com/sqwda22/archon-orchestrator/internal/assistant/fake"
	"github.com/sqwda22/archon-orchestrator/internal/command"
	"github.com/sqwda22/archon-orchestrator/internal/platform"
	platformfake "github.com/sqwda22/archon-orchestrator/internal/platform/fake"
	"github.com/sqwda22/archon-orchestrator/internal/router"
	"github.com/sqwda22/archon-orchestrator/internal/session"
	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/store/storetest"
	"github.com/sqwda22/archon-orchestrator/internal/workflow"
)

type stubRegistry struct {
	defs map[string]*workflow.Definition
}

func (s stubRegistry) Definitions() map[string]*workflow.Definition { return s.defs }
func (s stubRegistry) Reload(defs map[string]*workflow.Definition)  {}

type fixedResolver struct {
	client assistant.Client
}

func (f fixedResolver) Resolve(assistantType string) (assistant.Client, error) { return f.client, nil }

type stubCommandSource struct{ templates map[string]string }

func (s stubCommandSource) ReadCommand(codebase *store.Codebase, name string) (string, error) {
	t, ok := s.templates[name]
	if !ok {
		return "", assert.AnError
	}
	return t, nil
}

func newTestOrchestrator(t *testing.T, client *assistantfake.Client) (*Orchestrator, store.Repository) {
	t.Helper()
	repo := storetest.New()
	sessions := session.NewManager(repo, nil)
	defs := map[string]*workflow.Definition{
		"assist": {Name: "assist", Steps: []workflow.Step{{Command: "reply"}}},
	}
	eng := workflow.NewEngine(repo, sessions, stubCommandSource{templates: map[string]string{"reply": "reply to: $USER_MESSAGE"}}, nil)
	r := router.New(defs, "assist", nil)
	reg := stubRegistry{defs: defs}
	cmds := command.NewHandler(repo, nil, reg, nil)

	classify := func(ctx context.Context, prompt string) (string, error) { return "assist", nil }

	orch := New(repo, nil, eng, r, cmds, fixedResolver{client: client}, classify, nil).
		WithCommandSource(stubCommandSource{templates: map[string]string{
			"plan-feature": "plan: $ARGUMENTS",
			"execute":      "execute: $ARGUMENTS",
		}})
	return orch, repo
}

func TestHandleMessage_RequiresCodebaseBeforeRouting(t *testing.T) {
	client := assistantfake.New("claude")
	orch, _ := newTestOrchestrator(t, client)
	adapter := platformfake.New("github", platform.Batch)

	out, err := orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#1", Text: "please help",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Message, "No codebase is configured")
	assert.Empty(t, client.Calls)
}

func TestHandleMessage_CommandBypassesWorkflow(t *testing.T) {
	client := assistantfake.New("claude")
	orch, _ := newTestOrchestrator(t, client)
	adapter := platformfake.New("github", platform.Batch)

	out, err := orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#2", Text: "/help",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Message, "/codebase-switch")
	assert.Empty(t, client.Calls, "/help is handled entirely by the command table, with no assistant turn")
}

func TestHandleMessage_CommandInvokeRunsAssistantTurn(t *testing.T) {
	client := assistantfake.New("claude", assistantfake.Turn{Chunks: []assistant.Chunk{
		{Type: assistant.ChunkAssistant, Content: "done"},
		{Type: assistant.ChunkResult, SessionID: "s1"},
	}})
	orch, repo := newTestOrchestrator(t, client)
	adapter := platformfake.New("github", platform.Batch)

	_, err := orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#4", Text: "/clone https://example.com/o/r.git",
	})
	require.NoError(t, err)
	_, err = orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#4", Text: "/codebase-switch r",
	})
	require.NoError(t, err)

	codebase, err := repo.GetCodebaseByName(context.Background(), "r")
	require.NoError(t, err)
	codebase.Commands = map[string]store.Command{"plan-feature": {Path: "plan-feature"}}
	require.NoError(t, repo.UpdateCodebase(context.Background(), codebase))

	out, err := orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#4", Text: "/command-invoke plan-feature add dark mode",
	})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Message)
	require.Len(t, client.Calls, 1)
	assert.Contains(t, client.Calls[0].Prompt, "add dark mode")
}

// TestHandleMessage_PlanToExecuteTransitionStartsFreshSession covers the
// §4.3 transition rule as driven through /command-invoke: a "plan-feature"
// invocation followed by an "execute" invocation must run against two
// distinct assistant-side sessions.
func TestHandleMessage_PlanToExecuteTransitionStartsFreshSession(t *testing.T) {
	client := assistantfake.New("claude",
		assistantfake.Turn{Chunks: []assistant.Chunk{{Type: assistant.ChunkResult, SessionID: "plan-session"}}},
		assistantfake.Turn{Chunks: []assistant.Chunk{{Type: assistant.ChunkResult, SessionID: "execute-session"}}},
	)
	orch, repo := newTestOrchestrator(t, client)
	adapter := platformfake.New("github", platform.Batch)

	_, err := orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#5", Text: "/clone https://example.com/o/r.git",
	})
	require.NoError(t, err)
	_, err = orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#5", Text: "/codebase-switch r",
	})
	require.NoError(t, err)

	codebase, err := repo.GetCodebaseByName(context.Background(), "r")
	require.NoError(t, err)
	codebase.Commands = map[string]store.Command{
		"plan-feature": {Path: "plan-feature"},
		"execute":      {Path: "execute"},
	}
	require.NoError(t, repo.UpdateCodebase(context.Background(), codebase))

	_, err = orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#5", Text: "/command-invoke plan-feature",
	})
	require.NoError(t, err)
	_, err = orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#5", Text: "/command-invoke execute",
	})
	require.NoError(t, err)

	require.Len(t, client.Calls, 2)
	assert.Empty(t, client.Calls[0].ResumeSessionID, "plan-feature starts a fresh session")
	assert.Empty(t, client.Calls[1].ResumeSessionID, "execute immediately after plan-feature must also start fresh")
}

func TestHandleMessage_DispatchesWorkflowOnceCodebaseConfigured(t *testing.T) {
	client := assistantfake.New("claude", assistantfake.Turn{Chunks: []assistant.Chunk{
		{Type: assistant.ChunkResult, SessionID: "s1"},
	}})
	orch, _ := newTestOrchestrator(t, client)
	adapter := platformfake.New("github", platform.Batch)

	_, err := orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#3", Text: "/clone https://example.com/o/r.git",
	})
	require.NoError(t, err)
	_, err = orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#3", Text: "/codebase-switch r",
	})
	require.NoError(t, err)

	out, err := orch.HandleMessage(context.Background(), adapter, Inbound{
		PlatformType: "github", PlatformConversationID: "o/r#3", Text: "please fix the bug",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Message, "assist")
	assert.Len(t, client.Calls, 1)
}
