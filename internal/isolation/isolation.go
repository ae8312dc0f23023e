// Package isolation provisions and reclaims per-conversation working
// directories backed by git worktrees: one isolated checkout per issue,
// pull request, review, thread, or ad-hoc task.
package isolation

import (
	"errors"

	"github.com/sqwda22/archon-orchestrator/internal/store"
)

var (
	// ErrNotGitRepo is returned when the canonical repo path is not a git
	// repository.
	ErrNotGitRepo = errors.New("isolation: canonical path is not a git repository")
	// ErrNotFound is returned when an environment lookup finds nothing.
	ErrNotFound = errors.New("isolation: environment not found")
	// ErrGitCommandFailed wraps a non-zero exit from the git CLI.
	ErrGitCommandFailed = errors.New("isolation: git command failed")
)

// CreateRequest describes the environment an isolation workflow needs.
type CreateRequest struct {
	CodebaseID        string
	CanonicalRepoPath string
	WorkflowType      store.WorkflowType
	Identifier        string
	// PRBranch and PRSha only apply to WorkflowTypePR.
	PRBranch         string
	PRSha            string
	IsForkPR         bool
	CreatingPlatform string
}

// DestroyRequest parameterizes Destroy for cases where the environment row
// itself has already gone missing and only its git metadata is known.
type DestroyRequest struct {
	Force             bool
	BranchName        string
	CanonicalRepoPath string
}

// Env is an isolated working directory. It is a thin alias over the
// persisted model so callers never need to import both packages for the
// same concept.
type Env = store.IsolationEnvironment
