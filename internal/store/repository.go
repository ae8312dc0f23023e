package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repository lookups that find nothing. Callers
// translate it into an apperror.NotFound with resource-specific context.
var ErrNotFound = errors.New("store: not found")

// Repository is the persistence boundary the rest of the orchestrator
// depends on. It is implemented by the sqlite and postgres backends and is
// the only way the core touches storage.
type Repository interface {
	// Codebases
	CreateCodebase(ctx context.Context, c *Codebase) error
	GetCodebase(ctx context.Context, id string) (*Codebase, error)
	GetCodebaseByName(ctx context.Context, name string) (*Codebase, error)
	UpdateCodebase(ctx context.Context, c *Codebase) error

	// Conversations
	GetOrCreateConversation(ctx context.Context, platformType, platformConversationID string) (*Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, c *Conversation) error
	// ConversationsWithCwd returns every conversation whose cwd equals path,
	// used to check whether an isolation environment is still referenced
	// before it is destroyed.
	ConversationsWithCwd(ctx context.Context, path string) ([]*Conversation, error)

	// Sessions
	GetActiveSession(ctx context.Context, conversationID string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	// CreateActiveSession deactivates any existing active session for
	// s.ConversationID and inserts s as the new active session, atomically.
	CreateActiveSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error
	DeactivateSession(ctx context.Context, id string) error

	// Workflow runs
	// CreateRunningWorkflowRun fails with ErrWorkflowRunBusy if a running
	// run already exists for w.ConversationID.
	CreateRunningWorkflowRun(ctx context.Context, w *WorkflowRun) error
	GetWorkflowRun(ctx context.Context, id string) (*WorkflowRun, error)
	GetRunningWorkflowRun(ctx context.Context, conversationID string) (*WorkflowRun, error)
	UpdateWorkflowRun(ctx context.Context, w *WorkflowRun) error
	// ReconcileStaleRunningRuns marks any run still "running" for a
	// conversation as failed. The orchestrator calls it for every inbound
	// message while holding the conversation lock, so a run left running
	// by an earlier process is failed on next touch.
	ReconcileStaleRunningRuns(ctx context.Context, conversationID string) error

	// Isolation environments
	CreateIsolationEnvironment(ctx context.Context, e *IsolationEnvironment) error
	GetIsolationEnvironment(ctx context.Context, id string) (*IsolationEnvironment, error)
	GetIsolationEnvironmentByPath(ctx context.Context, codebaseID, path string) (*IsolationEnvironment, error)
	ListActiveIsolationEnvironments(ctx context.Context, codebaseID string) ([]*IsolationEnvironment, error)
	ListActiveIsolationEnvironmentsAll(ctx context.Context) ([]*IsolationEnvironment, error)
	UpdateIsolationEnvironment(ctx context.Context, e *IsolationEnvironment) error
	MarkIsolationEnvironmentDestroyed(ctx context.Context, id string) error
}

// ErrWorkflowRunBusy is returned by CreateRunningWorkflowRun when another
// workflow run is already running for the conversation.
var ErrWorkflowRunBusy = errors.New("store: a workflow run is already running for this conversation")
