package isolation

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/store"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func newTestManager(t *testing.T) *Manager {
	cfg := DefaultConfig()
	cfg.BasePath = t.TempDir()
	cfg.SeedFiles = nil
	m, err := NewManager(cfg, nil, newTestLogger())
	require.NoError(t, err)
	return m
}

func TestManager_CreateNonPRWorkflow(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)

	env, err := m.Create(context.Background(), CreateRequest{
		CodebaseID:        "cb-1",
		CanonicalRepoPath: repo,
		WorkflowType:      store.WorkflowTypeTask,
		Identifier:        "Add OAuth",
	})
	require.NoError(t, err)
	assert.Equal(t, "task-add-oauth", env.Branch)
	assert.DirExists(t, env.WorkingPath)
	assert.True(t, isValidWorktree(env.WorkingPath))
}

func TestManager_CreateAdoptsExistingWorktree(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)
	ctx := context.Background()
	req := CreateRequest{
		CodebaseID:        "cb-1",
		CanonicalRepoPath: repo,
		WorkflowType:      store.WorkflowTypeIssue,
		Identifier:        "42",
	}

	first, err := m.Create(ctx, req)
	require.NoError(t, err)
	require.Empty(t, first.Metadata["adopted"])

	second, err := m.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.WorkingPath, second.WorkingPath)
	assert.Equal(t, "true", second.Metadata["adopted"])
}

func TestManager_Destroy(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)
	ctx := context.Background()

	env, err := m.Create(ctx, CreateRequest{
		CodebaseID:        "cb-1",
		CanonicalRepoPath: repo,
		WorkflowType:      store.WorkflowTypeReview,
		Identifier:        "99",
	})
	require.NoError(t, err)

	err = m.Destroy(ctx, env.ID, DestroyRequest{
		BranchName:        env.Branch,
		CanonicalRepoPath: repo,
	})
	require.NoError(t, err)
	assert.NoDirExists(t, env.WorkingPath)
}

func TestManager_DestroyTolerant_OfMissingPath(t *testing.T) {
	m := newTestManager(t)
	err := m.Destroy(context.Background(), "missing-env", DestroyRequest{
		BranchName:        "some-branch",
		CanonicalRepoPath: t.TempDir(),
	})
	assert.NoError(t, err)
}

func TestBranchMerged(t *testing.T) {
	repo := initTestRepo(t)
	m := newTestManager(t)
	ctx := context.Background()

	env, err := m.Create(ctx, CreateRequest{
		CodebaseID:        "cb-1",
		CanonicalRepoPath: repo,
		WorkflowType:      store.WorkflowTypeTask,
		Identifier:        "merged-check",
	})
	require.NoError(t, err)

	// Freshly branched off main with no new commits: trivially merged.
	assert.True(t, branchMerged(env.WorkingPath, "main"))
	assert.False(t, hasUncommittedChanges(env.WorkingPath))

	require.NoError(t, os.WriteFile(filepath.Join(env.WorkingPath, "new.txt"), []byte("x"), 0o644))
	assert.True(t, hasUncommittedChanges(env.WorkingPath))
}

func TestIdleFor(t *testing.T) {
	repo := initTestRepo(t)
	assert.Less(t, idleFor(repo), time.Minute)
}
