package isolation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sqwda22/archon-orchestrator/internal/store"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// slug lowercases s, collapses runs of non-alphanumerics to a single hyphen,
// trims leading/trailing hyphens, and truncates to maxLen.
func slug(s string, maxLen int) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxLen {
		s = strings.Trim(s[:maxLen], "-")
	}
	return s
}

// branchName computes the git branch an isolation environment is created
// on, following the naming scheme for each workflow type.
func branchName(req CreateRequest) string {
	switch req.WorkflowType {
	case store.WorkflowTypeIssue:
		return fmt.Sprintf("issue-%s", req.Identifier)
	case store.WorkflowTypePR:
		if !req.IsForkPR && req.PRBranch != "" {
			return req.PRBranch
		}
		return fmt.Sprintf("pr-%s-review", req.Identifier)
	case store.WorkflowTypeReview:
		return fmt.Sprintf("review-%s", req.Identifier)
	case store.WorkflowTypeThread:
		sum := sha256.Sum256([]byte(req.Identifier))
		return fmt.Sprintf("thread-%s", hex.EncodeToString(sum[:])[:8])
	case store.WorkflowTypeTask:
		return fmt.Sprintf("task-%s", slug(req.Identifier, 50))
	default:
		return fmt.Sprintf("%s-%s", req.WorkflowType, slug(req.Identifier, 50))
	}
}

// worktreePath computes {worktreeBase}/{owner}/{repo}/{branch} where
// owner/repo are the last two path segments of the canonical repo path.
func worktreePath(worktreeBase, canonicalRepoPath, branch string) string {
	clean := filepath.Clean(canonicalRepoPath)
	repo := filepath.Base(clean)
	owner := filepath.Base(filepath.Dir(clean))
	return filepath.Join(worktreeBase, owner, repo, branch)
}
