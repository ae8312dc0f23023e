// Package fake provides an in-memory assistant.Client for tests: it never
// shells out to a real assistant CLI, instead replaying a scripted
// sequence of chunks per call.
package fake

import (
	"context"

	"github.com/sqwda22/archon-orchestrator/internal/assistant"
)

// Turn is one scripted response to a SendQuery call.
type Turn struct {
	Chunks []assistant.Chunk
	Err    error
}

// Client replays a queue of scripted Turns in order, one per SendQuery
// call. Calls past the end of the queue return a single result chunk with
// a synthesized session id.
type Client struct {
	AssistantType string
	Turns         []Turn
	Calls         []Call
}

// Call records one invocation for test assertions.
type Call struct {
	Prompt          string
	Cwd             string
	ResumeSessionID string
}

func New(assistantType string, turns ...Turn) *Client {
	return &Client{AssistantType: assistantType, Turns: turns}
}

func (c *Client) Type() string { return c.AssistantType }

func (c *Client) SendQuery(ctx context.Context, prompt, cwd, resumeSessionID string) (<-chan assistant.Chunk, <-chan error) {
	c.Calls = append(c.Calls, Call{Prompt: prompt, Cwd: cwd, ResumeSessionID: resumeSessionID})

	chunks := make(chan assistant.Chunk, 16)
	errs := make(chan error, 1)

	idx := len(c.Calls) - 1
	var turn Turn
	if idx < len(c.Turns) {
		turn = c.Turns[idx]
	} else {
		turn = Turn{Chunks: []assistant.Chunk{{Type: assistant.ChunkResult, SessionID: "fake-session"}}}
	}

	go func() {
		defer close(chunks)
		defer close(errs)
		for _, chunk := range turn.Chunks {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case chunks <- chunk:
			}
		}
		if turn.Err != nil {
			errs <- turn.Err
		}
	}()

	return chunks, errs
}

var _ assistant.Client = (*Client)(nil)
