package turn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqwda22/archon-orchestrator/internal/apperror"
	"github.com/sqwda22/archon-orchestrator/internal/assistant"
	assistantfake "github.com/sqwda22/archon-orchestrator/internal/assistant/fake"
	"github.com/sqwda22/archon-orchestrator/internal/platform"
	platformfake "github.com/sqwda22/archon-orchestrator/internal/platform/fake"
)

func TestRunner_StreamMode_SendsChunksImmediately(t *testing.T) {
	client := assistantfake.New("claude", assistantfake.Turn{Chunks: []assistant.Chunk{
		{Type: assistant.ChunkAssistant, Content: "hello "},
		{Type: assistant.ChunkTool, ToolName: "grep"},
		{Type: assistant.ChunkAssistant, Content: "world"},
		{Type: assistant.ChunkResult, SessionID: "sess-1"},
	}})
	adapter := platformfake.New("github", platform.Stream)
	r := NewRunner(nil)

	result, err := r.Run(context.Background(), client, adapter, Request{ConversationID: "c1", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.Equal(t, "sess-1", result.SessionID)

	sent := adapter.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "hello ", sent[0].Text)
	assert.Equal(t, "[tool:grep]", sent[1].Text)
	assert.Equal(t, "world", sent[2].Text)
}

func TestRunner_BatchMode_SendsSingleCleanedMessage(t *testing.T) {
	client := assistantfake.New("claude", assistantfake.Turn{Chunks: []assistant.Chunk{
		{Type: assistant.ChunkAssistant, Content: "line one\n"},
		{Type: assistant.ChunkTool, ToolName: "grep"},
		{Type: assistant.ChunkAssistant, Content: "line two"},
		{Type: assistant.ChunkResult, SessionID: "sess-2"},
	}})
	adapter := platformfake.New("telegram", platform.Batch)
	r := NewRunner(nil)

	result, err := r.Run(context.Background(), client, adapter, Request{ConversationID: "c1", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", result.Text)

	sent := adapter.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "line one\nline two", sent[0].Text)
}

func TestRunner_AssistantErrorClassifiedAsTransport(t *testing.T) {
	client := assistantfake.New("claude", assistantfake.Turn{
		Chunks: []assistant.Chunk{{Type: assistant.ChunkAssistant, Content: "partial"}},
		Err:    assert.AnError,
	})
	adapter := platformfake.New("github", platform.Stream)
	r := NewRunner(nil)

	_, err := r.Run(context.Background(), client, adapter, Request{ConversationID: "c1", Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, apperror.KindAssistantTransport, apperror.KindOf(err))
}
