package isolation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/events"
	"github.com/sqwda22/archon-orchestrator/internal/lock"
	"github.com/sqwda22/archon-orchestrator/internal/store"
)

// Manager provisions and reclaims isolation environments backed by git
// worktrees. One Manager serves every codebase; concurrent creation and
// destruction against the same canonical repo is serialized per repo path.
type Manager struct {
	config    Config
	logger    *logger.Logger
	store     store.Repository
	repoLocks *lock.KeyedMutex
	publisher *events.Publisher
}

func NewManager(cfg Config, repo store.Repository, log *logger.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	basePath, err := cfg.ExpandedBasePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("isolation: create base path: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		config:    cfg,
		logger:    log,
		store:     repo,
		repoLocks: lock.New(),
		publisher: events.NewPublisher(nil, "isolation", log),
	}, nil
}

// WithPublisher returns m with its event publisher replaced, for callers
// that have a configured event bus to report environment create/destroy
// transitions on.
func (m *Manager) WithPublisher(p *events.Publisher) *Manager {
	m.publisher = p
	return m
}

// Create provisions (or adopts) the isolation environment for req.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (env *Env, err error) {
	if !isGitRepo(req.CanonicalRepoPath) {
		return nil, ErrNotGitRepo
	}

	basePath, pathErr := m.config.ExpandedBasePath()
	if pathErr != nil {
		return nil, pathErr
	}
	branch := branchName(req)
	path := worktreePath(basePath, req.CanonicalRepoPath, branch)

	lockErr := m.repoLocks.With(req.CanonicalRepoPath, func() error {
		// Adoption: a worktree already sitting at the target path.
		if isValidWorktree(path) {
			env, err = m.adoptAtPath(ctx, req, path, branch)
			return err
		}

		// Adoption: a PR workflow whose branch is already checked out
		// somewhere else in this repo's worktree list.
		if req.WorkflowType == store.WorkflowTypePR && req.PRBranch != "" {
			if existingPath, ok := findWorktreeForBranch(req.CanonicalRepoPath, req.PRBranch); ok {
				env, err = m.adoptAtPath(ctx, req, existingPath, req.PRBranch)
				return err
			}
		}

		// Orphan cleanup: a plain directory sitting where a worktree
		// should go, but not a valid one.
		if info, statErr := os.Stat(path); statErr == nil {
			if info.IsDir() {
				if rmErr := os.RemoveAll(path); rmErr != nil {
					return fmt.Errorf("isolation: remove orphaned directory %s: %w", path, rmErr)
				}
			}
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("isolation: stat worktree path: %w", statErr)
		}

		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return fmt.Errorf("isolation: create worktree parent dir: %w", mkErr)
		}

		created, createErr := m.createWorktree(ctx, req, path, branch)
		if createErr != nil {
			return createErr
		}
		env = created
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}

	m.seedFiles(req.CanonicalRepoPath, env.WorkingPath)
	m.publisher.Publish(ctx, events.IsolationCreated, map[string]interface{}{
		"environment_id": env.ID,
		"codebase_id":    req.CodebaseID,
		"branch":         env.Branch,
		"working_path":   env.WorkingPath,
	})
	return env, nil
}

func (m *Manager) adoptAtPath(ctx context.Context, req CreateRequest, path, branch string) (*Env, error) {
	if m.store != nil {
		if existing, err := m.store.GetIsolationEnvironmentByPath(ctx, req.CodebaseID, path); err == nil {
			return existing, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	env := &Env{
		CodebaseID:       req.CodebaseID,
		Provider:         "worktree",
		WorkflowType:     req.WorkflowType,
		Identifier:       req.Identifier,
		WorkingPath:      path,
		Branch:           branch,
		Status:           store.IsolationActive,
		CreatingPlatform: req.CreatingPlatform,
		Metadata:         map[string]string{"adopted": "true"},
	}
	if m.store != nil {
		if err := m.store.CreateIsolationEnvironment(ctx, env); err != nil {
			return nil, err
		}
	}
	m.logger.Info("adopted existing worktree",
		zap.String("codebase_id", req.CodebaseID),
		zap.String("path", path),
		zap.String("branch", branch))
	return env, nil
}

func (m *Manager) createWorktree(ctx context.Context, req CreateRequest, path, branch string) (*Env, error) {
	var err error
	switch {
	case req.WorkflowType != store.WorkflowTypePR:
		err = m.createNonPR(ctx, req.CanonicalRepoPath, path, branch)
	case !req.IsForkPR:
		err = m.createSameRepoPR(ctx, req.CanonicalRepoPath, path, branch)
	case req.PRSha != "":
		err = m.createForkPRWithSha(ctx, req, path, branch)
	default:
		err = m.createForkPRWithoutSha(ctx, req, path, branch)
	}
	if err != nil {
		return nil, err
	}

	env := &Env{
		CodebaseID:       req.CodebaseID,
		Provider:         "worktree",
		WorkflowType:     req.WorkflowType,
		Identifier:       req.Identifier,
		WorkingPath:      path,
		Branch:           branch,
		Status:           store.IsolationActive,
		CreatingPlatform: req.CreatingPlatform,
		Metadata:         map[string]string{},
	}
	if m.store != nil {
		if err := m.store.CreateIsolationEnvironment(ctx, env); err != nil {
			_ = m.removeWorktreeDir(ctx, path, req.CanonicalRepoPath)
			return nil, fmt.Errorf("isolation: persist environment: %w", err)
		}
	}
	m.logger.Info("created isolation environment",
		zap.String("codebase_id", req.CodebaseID),
		zap.String("workflow_type", string(req.WorkflowType)),
		zap.String("branch", branch),
		zap.String("path", path))
	return env, nil
}

func (m *Manager) createNonPR(ctx context.Context, repoPath, path, branch string) error {
	out, err := m.git(ctx, repoPath, "worktree", "add", path, "-b", branch)
	if err == nil {
		return nil
	}
	if !strings.Contains(out, "already exists") {
		return fmt.Errorf("%w: %s", ErrGitCommandFailed, out)
	}
	// Branch already exists: retry without creating it.
	if out2, err2 := m.git(ctx, repoPath, "worktree", "add", path, branch); err2 != nil {
		return fmt.Errorf("%w: %s", ErrGitCommandFailed, out2)
	}
	return nil
}

func (m *Manager) createSameRepoPR(ctx context.Context, repoPath, path, branch string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, m.config.FetchTimeout)
	defer cancel()
	if _, err := m.git(fetchCtx, repoPath, "fetch", "origin", branch); err != nil {
		m.logger.Warn("fetch for same-repo PR failed, continuing with local state", zap.Error(err))
	}
	remoteRef := "origin/" + branch
	out, err := m.git(ctx, repoPath, "worktree", "add", path, "-b", branch, remoteRef)
	if err != nil {
		if !strings.Contains(out, "already exists") {
			return fmt.Errorf("%w: %s", ErrGitCommandFailed, out)
		}
		if out2, err2 := m.git(ctx, repoPath, "worktree", "add", path, branch); err2 != nil {
			return fmt.Errorf("%w: %s", ErrGitCommandFailed, out2)
		}
	}
	if _, err := m.gitIn(ctx, path, "branch", "--set-upstream-to="+remoteRef, branch); err != nil {
		m.logger.Debug("failed to set upstream tracking, non-fatal", zap.Error(err))
	}
	return nil
}

func (m *Manager) createForkPRWithSha(ctx context.Context, req CreateRequest, path, branch string) error {
	prNum := req.Identifier
	fetchCtx, cancel := context.WithTimeout(ctx, m.config.FetchTimeout)
	defer cancel()
	if _, err := m.git(fetchCtx, req.CanonicalRepoPath, "fetch", "origin", fmt.Sprintf("pull/%s/head", prNum)); err != nil {
		return fmt.Errorf("%w: fetch pull/%s/head failed", ErrGitCommandFailed, prNum)
	}
	if out, err := m.git(ctx, req.CanonicalRepoPath, "worktree", "add", path, req.PRSha); err != nil {
		return fmt.Errorf("%w: %s", ErrGitCommandFailed, out)
	}
	out, err := m.gitIn(ctx, path, "checkout", "-b", branch, req.PRSha)
	if err == nil {
		return nil
	}
	if !strings.Contains(out, "already exists") {
		return fmt.Errorf("%w: %s", ErrGitCommandFailed, out)
	}
	// Stale branch left over from a prior attempt: delete and retry.
	if _, delErr := m.gitIn(ctx, path, "branch", "-D", branch); delErr != nil {
		m.logger.Debug("failed to delete stale fork-PR branch before retry", zap.Error(delErr))
	}
	if out2, err2 := m.gitIn(ctx, path, "checkout", "-b", branch, req.PRSha); err2 != nil {
		return fmt.Errorf("%w: %s", ErrGitCommandFailed, out2)
	}
	return nil
}

func (m *Manager) createForkPRWithoutSha(ctx context.Context, req CreateRequest, path, branch string) error {
	prNum := req.Identifier
	refspec := fmt.Sprintf("pull/%s/head:%s", prNum, branch)
	fetchCtx, cancel := context.WithTimeout(ctx, m.config.FetchTimeout)
	defer cancel()
	out, err := m.git(fetchCtx, req.CanonicalRepoPath, "fetch", "origin", refspec)
	if err != nil {
		if !strings.Contains(out, "already exists") {
			return fmt.Errorf("%w: fetch %s failed: %s", ErrGitCommandFailed, refspec, out)
		}
		if _, delErr := m.git(ctx, req.CanonicalRepoPath, "branch", "-D", branch); delErr != nil {
			m.logger.Debug("failed to delete stale fork-PR branch before retry", zap.Error(delErr))
		}
		if out2, err2 := m.git(fetchCtx, req.CanonicalRepoPath, "fetch", "origin", refspec); err2 != nil {
			return fmt.Errorf("%w: %s", ErrGitCommandFailed, out2)
		}
	}
	if out3, err3 := m.git(ctx, req.CanonicalRepoPath, "worktree", "add", path, branch); err3 != nil {
		return fmt.Errorf("%w: %s", ErrGitCommandFailed, out3)
	}
	return nil
}

// seedFiles copies configured files from the canonical repo into a newly
// created worktree. Failures are logged, never fatal.
func (m *Manager) seedFiles(repoPath, worktreePath string) {
	for _, f := range m.config.SeedFiles {
		dest := f.Destination
		if dest == "" {
			dest = f.Source
		}
		src := filepath.Join(repoPath, f.Source)
		dst := filepath.Join(worktreePath, dest)
		if err := copyPath(src, dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("failed to seed file into worktree",
				zap.String("source", src), zap.String("destination", dst), zap.Error(err))
		}
	}
}

// Destroy removes the git worktree and its branch, tolerating a path that
// has already disappeared out from under us.
func (m *Manager) Destroy(ctx context.Context, envID string, req DestroyRequest) error {
	var env *Env
	if m.store != nil {
		e, err := m.store.GetIsolationEnvironment(ctx, envID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		env = e
	}

	repoPath := req.CanonicalRepoPath
	branch := req.BranchName
	path := ""
	if env != nil {
		branch = env.Branch
		path = env.WorkingPath
	} else if repoPath != "" && branch != "" {
		// No stored record: derive the path Create would have used.
		if basePath, err := m.config.ExpandedBasePath(); err == nil {
			path = worktreePath(basePath, repoPath, branch)
		}
	}

	destroyErr := m.repoLocks.With(repoPath, func() error {
		if path != "" {
			if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
				// Already gone: skip worktree remove, still try to delete the branch.
			} else if repoPath != "" {
				args := []string{"worktree", "remove"}
				if req.Force {
					args = append(args, "--force")
				}
				args = append(args, path)
				if out, err := m.git(ctx, repoPath, args...); err != nil && !isBenignRemoveError(out) {
					return fmt.Errorf("%w: %s", ErrGitCommandFailed, out)
				}
				if _, statErr := os.Stat(path); statErr == nil {
					if rmErr := os.RemoveAll(path); rmErr != nil {
						m.logger.Warn("failed to remove worktree directory after git remove", zap.Error(rmErr))
					}
				}
			}
		}

		if repoPath != "" && branch != "" {
			if out, err := m.git(ctx, repoPath, "branch", "-D", branch); err != nil && !isBenignBranchDeleteError(out) {
				m.logger.Warn("failed to delete branch on destroy", zap.String("branch", branch), zap.String("output", out), zap.Error(err))
			}
		}

		if m.store != nil && env != nil {
			return m.store.MarkIsolationEnvironmentDestroyed(ctx, env.ID)
		}
		return nil
	})
	if destroyErr != nil {
		return destroyErr
	}
	m.publisher.Publish(ctx, events.IsolationDestroyed, map[string]interface{}{
		"environment_id": envID,
		"branch":         branch,
	})
	return nil
}

func isBenignRemoveError(output string) bool {
	out := strings.ToLower(output)
	return strings.Contains(out, "no such file or directory") ||
		strings.Contains(out, "does not exist") ||
		strings.Contains(out, "is not a working tree")
}

func isBenignBranchDeleteError(output string) bool {
	out := strings.ToLower(output)
	return strings.Contains(out, "not found") ||
		strings.Contains(out, "did not match") ||
		strings.Contains(out, "checked out at")
}

// Get returns an environment by id.
func (m *Manager) Get(ctx context.Context, envID string) (*Env, error) {
	if m.store == nil {
		return nil, ErrNotFound
	}
	env, err := m.store.GetIsolationEnvironment(ctx, envID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return env, err
}

// List returns every active environment for a codebase.
func (m *Manager) List(ctx context.Context, codebaseID string) ([]*Env, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListActiveIsolationEnvironments(ctx, codebaseID)
}

// HealthCheck reports whether an environment's working directory is still
// a valid git worktree.
func (m *Manager) HealthCheck(ctx context.Context, env *Env) bool {
	return isValidWorktree(env.WorkingPath)
}

// Adopt registers a pre-existing worktree directory as an environment.
func (m *Manager) Adopt(ctx context.Context, req CreateRequest, path string) (*Env, error) {
	branch := currentBranch(path)
	return m.adoptAtPath(ctx, req, path, branch)
}

func (m *Manager) git(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (m *Manager) gitIn(ctx context.Context, dir string, args ...string) (string, error) {
	return m.git(ctx, dir, args...)
}

func (m *Manager) removeWorktreeDir(ctx context.Context, path, repoPath string) error {
	if _, err := m.git(ctx, repoPath, "worktree", "remove", "--force", path); err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return rmErr
		}
	}
	return nil
}

func isGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir() || info.Mode().IsRegular()
}

// isValidWorktree reports whether path is a usable git worktree: it exists,
// and its .git file points at a gitdir.
func isValidWorktree(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	content, err := os.ReadFile(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return strings.HasPrefix(string(content), "gitdir:")
}

func currentBranch(path string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// findWorktreeForBranch scans `git worktree list --porcelain` for an entry
// checked out on branch, returning its path.
func findWorktreeForBranch(repoPath, branch string) (string, bool) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}

	var currentPath string
	want := "refs/heads/" + branch
	for _, line := range strings.Split(string(out), "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			currentPath = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			if strings.TrimPrefix(line, "branch ") == want {
				return currentPath, true
			}
		}
	}
	return "", false
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst)
	}
	return copyFile(src, dst, info.Mode())
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

