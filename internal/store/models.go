// Package store defines the persistence model and repository interface for
// codebases, conversations, sessions, workflow runs, and isolation
// environments.
package store

import "time"

// Codebase is a known repository.
type Codebase struct {
	ID            string
	Name          string
	RemoteURL     string // canonicalized, without a trailing .git
	CanonicalPath string // the single non-worktree checkout; never a worktree path
	AssistantType string
	Commands      map[string]Command
	DefaultBranch string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Command is one entry in a codebase's command registry.
type Command struct {
	Path        string
	Description string
}

// Conversation is a bound platform conversation.
type Conversation struct {
	ID                     string
	PlatformType           string
	PlatformConversationID string
	CodebaseID             string // empty until a codebase is configured
	Cwd                    string
	AssistantType          string // locked at creation
	ParentConversationID   string // empty unless this is a thread branch
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Session is one assistant subprocess context.
type Session struct {
	ID                 string
	ConversationID     string
	CodebaseID         string
	AssistantType      string
	AssistantSessionID string // opaque id returned by the assistant SDK; never parsed
	Active             bool
	Metadata           map[string]string // notably "lastCommand"
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WorkflowRunStatus enumerates the lifecycle states of a WorkflowRun.
type WorkflowRunStatus string

const (
	WorkflowRunRunning   WorkflowRunStatus = "running"
	WorkflowRunCompleted WorkflowRunStatus = "completed"
	WorkflowRunFailed    WorkflowRunStatus = "failed"
	WorkflowRunCancelled WorkflowRunStatus = "cancelled"
)

// WorkflowRun is one in-flight or completed workflow invocation.
type WorkflowRun struct {
	ID             string
	ConversationID string
	CodebaseID     string
	WorkflowName   string
	TriggerMessage string
	Status         WorkflowRunStatus
	Metadata       map[string]string // external context snapshot, lastStepIndex, exitReason, etc.
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsolationStatus enumerates the lifecycle states of an IsolationEnvironment.
type IsolationStatus string

const (
	IsolationActive    IsolationStatus = "active"
	IsolationDestroyed IsolationStatus = "destroyed"
)

// WorkflowType enumerates the kinds of trigger an isolation environment was
// created for, which determines its branch-naming scheme.
type WorkflowType string

const (
	WorkflowTypeIssue  WorkflowType = "issue"
	WorkflowTypePR     WorkflowType = "pr"
	WorkflowTypeReview WorkflowType = "review"
	WorkflowTypeThread WorkflowType = "thread"
	WorkflowTypeTask   WorkflowType = "task"
)

// IsolationEnvironment is one isolated working directory.
type IsolationEnvironment struct {
	ID               string
	CodebaseID       string
	Provider         string // "worktree" today
	WorkflowType     WorkflowType
	Identifier       string
	WorkingPath      string
	Branch           string
	Status           IsolationStatus
	CreatingPlatform string
	Metadata         map[string]string // e.g. "adopted": "true"
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
