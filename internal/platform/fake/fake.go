// Package fake provides an in-memory platform.Adapter for tests.
package fake

import (
	"sync"

	"github.com/sqwda22/archon-orchestrator/internal/platform"
)

type Sent struct {
	ConversationID string
	Text           string
}

// Adapter records every message sent to it. Safe for concurrent use.
type Adapter struct {
	Type string
	Mode platform.StreamMode

	mu   sync.Mutex
	sent []Sent
}

func New(platformType string, mode platform.StreamMode) *Adapter {
	return &Adapter{Type: platformType, Mode: mode}
}

func (a *Adapter) SendMessage(conversationID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, Sent{ConversationID: conversationID, Text: text})
	return nil
}

func (a *Adapter) StreamingMode() platform.StreamMode { return a.Mode }

func (a *Adapter) PlatformType() string { return a.Type }

func (a *Adapter) EnsureThread(conversationID string, hint *platform.IsolationHint) (string, error) {
	return conversationID, nil
}

// Sent returns a snapshot of every message sent so far.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Sent, len(a.sent))
	copy(out, a.sent)
	return out
}

var _ platform.Adapter = (*Adapter)(nil)
