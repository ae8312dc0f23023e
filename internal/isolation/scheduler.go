package isolation

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/store"
)

// ReferenceChecker reports whether any conversation still points at a
// working path, so the scheduler does not reclaim an environment out from
// under an in-flight conversation. A nil checker is treated as "never in
// use" by InUse's caller.
type ReferenceChecker interface {
	InUse(ctx context.Context, workingPath string) (bool, error)
}

// StoreReferenceChecker implements ReferenceChecker against the repository's
// conversations table: a working path is in use if any conversation's cwd
// still points at it.
type StoreReferenceChecker struct {
	store store.Repository
}

func NewStoreReferenceChecker(repo store.Repository) *StoreReferenceChecker {
	return &StoreReferenceChecker{store: repo}
}

func (c *StoreReferenceChecker) InUse(ctx context.Context, workingPath string) (bool, error) {
	convs, err := c.store.ConversationsWithCwd(ctx, workingPath)
	if err != nil {
		return false, err
	}
	return len(convs) > 0, nil
}

// SweepResult summarizes one cleanup pass.
type SweepResult struct {
	Removed int
	Skipped int
	Errors  []error
}

// Scheduler periodically reclaims isolation environments by four rules,
// numbered as in applyRules and sweepCodebase: (1) missing path, (2)
// merged-and-clean branch, (3) idle beyond threshold, (4) codebase over
// its cap.
type Scheduler struct {
	manager    *Manager
	store      store.Repository
	logger     *logger.Logger
	interval   time.Duration
	idle       time.Duration
	maxPer     int
	references ReferenceChecker
	// longLivedPlatforms never get reclaimed for idleness alone (rule 3).
	longLivedPlatforms map[string]bool
}

func NewScheduler(m *Manager, repo store.Repository, cfg Config, log *logger.Logger, refs ReferenceChecker) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		manager:    m,
		store:      repo,
		logger:     log,
		interval:   cfg.CleanupInterval,
		idle:       cfg.IdleThreshold,
		maxPer:     cfg.MaxPerCodebase,
		references: refs,
		longLivedPlatforms: map[string]bool{
			"telegram": true,
		},
	}
}

// Run blocks, sweeping at Scheduler's configured interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := s.Sweep(ctx)
			s.logger.Info("isolation cleanup sweep complete",
				zap.Int("removed", result.Removed),
				zap.Int("skipped", result.Skipped),
				zap.Int("errors", len(result.Errors)))
		}
	}
}

// Sweep runs one cleanup pass over every active environment across every
// codebase. Each step is best-effort; a failure on one environment does not
// stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	envs, err := s.store.ListActiveIsolationEnvironmentsAll(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	byCodebase := map[string][]*Env{}
	for _, env := range envs {
		byCodebase[env.CodebaseID] = append(byCodebase[env.CodebaseID], env)
	}

	for codebaseID, codebaseEnvs := range byCodebase {
		codebase, err := s.store.GetCodebase(ctx, codebaseID)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		s.sweepCodebase(ctx, codebase, codebaseEnvs, &result)
	}
	return result
}

func (s *Scheduler) sweepCodebase(ctx context.Context, codebase *store.Codebase, envs []*Env, result *SweepResult) {
	remaining := make([]*Env, 0, len(envs))
	for _, env := range envs {
		removed, err := s.applyRules(ctx, codebase, env)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if removed {
			result.Removed++
			continue
		}
		remaining = append(remaining, env)
	}

	if s.maxPer <= 0 || len(remaining) <= s.maxPer {
		result.Skipped += len(remaining)
		return
	}

	// Rule 4: over budget. Reclaim the oldest idle ones first.
	sortByIdleOldestFirst(remaining)
	overBy := len(remaining) - s.maxPer
	for i := 0; i < overBy; i++ {
		env := remaining[i]
		if err := s.manager.Destroy(ctx, env.ID, DestroyRequest{
			BranchName:        env.Branch,
			CanonicalRepoPath: codebase.CanonicalPath,
		}); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Removed++
	}
	result.Skipped += len(remaining) - overBy
}

// applyRules evaluates sweep rules 1 through 3 for a single environment,
// returning true if it was removed.
func (s *Scheduler) applyRules(ctx context.Context, codebase *store.Codebase, env *Env) (bool, error) {
	// Rule 1: path missing.
	if !pathExists(env.WorkingPath) {
		return true, s.store.MarkIsolationEnvironmentDestroyed(ctx, env.ID)
	}

	destroy := func() error {
		return s.manager.Destroy(ctx, env.ID, DestroyRequest{
			BranchName:        env.Branch,
			CanonicalRepoPath: codebase.CanonicalPath,
		})
	}

	// Rule 2: merged into main and clean, and no conversation references it.
	if branchMerged(env.WorkingPath, codebase.DefaultBranch) && !hasUncommittedChanges(env.WorkingPath) {
		inUse, err := s.inUse(ctx, env.WorkingPath)
		if err != nil {
			return false, err
		}
		if !inUse {
			return true, destroy()
		}
	}

	// Rule 3: idle beyond threshold, unless the creating platform keeps
	// long-lived threads.
	if !s.longLivedPlatforms[strings.ToLower(env.CreatingPlatform)] {
		if idleFor(env.WorkingPath) > s.idle {
			return true, destroy()
		}
	}

	return false, nil
}

func (s *Scheduler) inUse(ctx context.Context, path string) (bool, error) {
	if s.references == nil {
		return false, nil
	}
	return s.references.InUse(ctx, path)
}

func sortByIdleOldestFirst(envs []*Env) {
	for i := 1; i < len(envs); i++ {
		for j := i; j > 0 && lastCommitTime(envs[j-1].WorkingPath).After(lastCommitTime(envs[j].WorkingPath)); j-- {
			envs[j-1], envs[j] = envs[j], envs[j-1]
		}
	}
}

func pathExists(path string) bool {
	cmd := exec.Command("test", "-e", path)
	return cmd.Run() == nil
}

func branchMerged(worktreePath, mainBranch string) bool {
	if mainBranch == "" {
		mainBranch = "main"
	}
	cmd := exec.Command("git", "branch", "--merged", mainBranch)
	cmd.Dir = worktreePath
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	branch := currentBranch(worktreePath)
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(strings.TrimPrefix(line, "*")) == branch {
			return true
		}
	}
	return false
}

func hasUncommittedChanges(worktreePath string) bool {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = worktreePath
	out, err := cmd.Output()
	if err != nil {
		return true // fail closed: treat an unreadable worktree as dirty
	}
	return strings.TrimSpace(string(out)) != ""
}

func idleFor(worktreePath string) time.Duration {
	t := lastCommitTime(worktreePath)
	if t.IsZero() {
		return 0
	}
	return time.Since(t)
}

func lastCommitTime(worktreePath string) time.Time {
	cmd := exec.Command("git", "log", "-1", "--format=%ct")
	cmd.Dir = worktreePath
	out, err := cmd.Output()
	if err != nil {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
