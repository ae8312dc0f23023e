// Package turn runs a single assistant turn and fans its streamed chunks
// out to a platform adapter, honoring stream vs. batch delivery. It is the
// one place the stream-fan-out rules from the orchestrator pipeline are
// implemented, shared by command dispatch and workflow step execution.
package turn

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sqwda22/archon-orchestrator/internal/apperror"
	"github.com/sqwda22/archon-orchestrator/internal/assistant"
	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/platform"
)

// Request is one assistant dispatch.
type Request struct {
	ConversationID  string
	Prompt          string
	Cwd             string
	ResumeSessionID string
}

// Result is what the caller needs to persist after a turn completes.
type Result struct {
	// Text is the concatenated assistant-content chunks as received, in
	// either mode; tool chunks are never part of it. The tool-indicator
	// cleanup applies only to the message that batch mode sends.
	Text string
	// SessionID is the assistant-side session id from the result chunk,
	// empty if the assistant never emitted one.
	SessionID string
}

var toolIndicatorLine = regexp.MustCompile(`(?m)^\s*\[tool:[^\]]*\]\s*$\n?`)

// Runner executes turns against an assistant.Client and fans chunks out to
// a platform.Adapter according to its StreamingMode.
type Runner struct {
	logger *logger.Logger
}

func NewRunner(log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Default()
	}
	return &Runner{logger: log}
}

// Run drives one turn to completion. It never returns until the chunk and
// error channels are both closed.
func (r *Runner) Run(ctx context.Context, client assistant.Client, adapter platform.Adapter, req Request) (Result, error) {
	chunks, errs := client.SendQuery(ctx, req.Prompt, req.Cwd, req.ResumeSessionID)

	var textBuf strings.Builder
	var sessionID string
	mode := platform.Stream
	if adapter != nil {
		mode = adapter.StreamingMode()
	}

	for chunk := range chunks {
		switch chunk.Type {
		case assistant.ChunkAssistant:
			textBuf.WriteString(chunk.Content)
			if mode == platform.Stream && adapter != nil {
				if err := adapter.SendMessage(req.ConversationID, chunk.Content); err != nil {
					r.logger.Warn("failed to send assistant chunk to platform", zap.Error(err))
				}
			}
		case assistant.ChunkTool:
			if mode == platform.Stream && adapter != nil {
				if err := adapter.SendMessage(req.ConversationID, toolIndicatorText(chunk.ToolName)); err != nil {
					r.logger.Warn("failed to send tool chunk to platform", zap.Error(err))
				}
			} else {
				r.logger.Debug("tool call", zap.String("tool", chunk.ToolName))
			}
		case assistant.ChunkThinking, assistant.ChunkSystem:
			// Not forwarded to the platform in either mode.
		case assistant.ChunkResult:
			sessionID = chunk.SessionID
		}
	}

	if err := <-errs; err != nil {
		return Result{Text: textBuf.String(), SessionID: sessionID}, apperror.AssistantTransport("assistant turn failed", err)
	}

	text := textBuf.String()
	if mode == platform.Batch && adapter != nil {
		cleaned := toolIndicatorLine.ReplaceAllString(text, "")
		if err := adapter.SendMessage(req.ConversationID, cleaned); err != nil {
			r.logger.Warn("failed to send batched turn result to platform", zap.Error(err))
		}
	}

	return Result{Text: text, SessionID: sessionID}, nil
}

func toolIndicatorText(toolName string) string {
	if toolName == "" {
		return "[tool]"
	}
	return "[tool:" + toolName + "]"
}
