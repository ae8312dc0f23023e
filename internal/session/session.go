// Package session manages conversations and their active assistant
// sessions: exactly one active session per conversation, enforced at the
// store layer, with the transition rule that decides when a dispatch
// starts a fresh session versus resuming the existing one.
package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/events"
	"github.com/sqwda22/archon-orchestrator/internal/store"
)

// Manager wraps store.Repository with the conversation/session lifecycle
// operations and transition rule the orchestrator dispatches through.
type Manager struct {
	store     store.Repository
	logger    *logger.Logger
	publisher *events.Publisher
}

func NewManager(repo store.Repository, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{store: repo, logger: log, publisher: events.NewPublisher(nil, "session", log)}
}

// WithPublisher returns m with its event publisher replaced, for callers
// that have a configured event bus to report session lifecycle transitions
// on.
func (m *Manager) WithPublisher(p *events.Publisher) *Manager {
	m.publisher = p
	return m
}

func (m *Manager) GetOrCreateConversation(ctx context.Context, platformType, platformConversationID string) (*store.Conversation, error) {
	conv, _, err := m.store.GetOrCreateConversation(ctx, platformType, platformConversationID)
	return conv, err
}

func (m *Manager) GetActiveSession(ctx context.Context, conversationID string) (*store.Session, error) {
	sess, err := m.store.GetActiveSession(ctx, conversationID)
	if err == store.ErrNotFound {
		return nil, nil
	}
	return sess, err
}

// CreateSession deactivates any existing active session for conversationID
// and inserts a new active one, atomically.
func (m *Manager) CreateSession(ctx context.Context, conversationID, codebaseID, assistantType string) (*store.Session, error) {
	sess := &store.Session{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		CodebaseID:     codebaseID,
		AssistantType:  assistantType,
		Active:         true,
		Metadata:       map[string]string{},
	}
	if err := m.store.CreateActiveSession(ctx, sess); err != nil {
		return nil, err
	}
	m.publisher.Publish(ctx, events.SessionCreated, map[string]interface{}{
		"session_id":      sess.ID,
		"conversation_id": sess.ConversationID,
		"assistant_type":  sess.AssistantType,
	})
	return sess, nil
}

func (m *Manager) UpdateSessionAssistantID(ctx context.Context, sess *store.Session, assistantSessionID string) error {
	sess.AssistantSessionID = assistantSessionID
	return m.store.UpdateSession(ctx, sess)
}

// UpdateSessionMetadata merges patch into sess.Metadata and persists it.
func (m *Manager) UpdateSessionMetadata(ctx context.Context, sess *store.Session, patch map[string]string) error {
	if sess.Metadata == nil {
		sess.Metadata = map[string]string{}
	}
	for k, v := range patch {
		sess.Metadata[k] = v
	}
	return m.store.UpdateSession(ctx, sess)
}

// DeactivateSession is idempotent: deactivating an already-inactive session
// is not an error.
func (m *Manager) DeactivateSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.store.DeactivateSession(ctx, sessionID); err != nil {
		return err
	}
	m.publisher.Publish(ctx, events.SessionDeactivated, map[string]interface{}{"session_id": sessionID})
	return nil
}

// NeedsNewSession implements the transition rule from the spec: a new
// session is required iff there is none active, the requested assistant
// type differs from the active one (assistant-type lock), or the upcoming
// command is "execute" immediately following a "plan-feature" command
// (hard context reset).
func NeedsNewSession(active *store.Session, requestedAssistantType, upcomingCommand string) bool {
	if active == nil {
		return true
	}
	if requestedAssistantType != "" && active.AssistantType != requestedAssistantType {
		return true
	}
	if upcomingCommand == "execute" && active.Metadata["lastCommand"] == "plan-feature" {
		return true
	}
	return false
}

// Resolve returns the session a dispatch should use: either the existing
// active session (resumed) or a freshly created one, applying
// NeedsNewSession and updating lastCommand on the result.
func (m *Manager) Resolve(ctx context.Context, conversationID, codebaseID, assistantType, command string) (sess *store.Session, isNew bool, err error) {
	active, err := m.GetActiveSession(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}

	if NeedsNewSession(active, assistantType, command) {
		sess, err = m.CreateSession(ctx, conversationID, codebaseID, assistantType)
		if err != nil {
			return nil, false, err
		}
		isNew = true
	} else {
		sess = active
	}

	if command != "" {
		if err := m.UpdateSessionMetadata(ctx, sess, map[string]string{"lastCommand": command}); err != nil {
			return nil, false, err
		}
	}
	return sess, isNew, nil
}
