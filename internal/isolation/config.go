package isolation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config controls where isolation environments live on disk and how
// aggressively the cleanup scheduler reclaims them.
type Config struct {
	// BasePath is the root directory worktrees are created under, e.g.
	// ~/.archon/worktrees. Expanded via ExpandedBasePath before use.
	BasePath string
	// DefaultBranch is used when a codebase does not declare its own.
	DefaultBranch string
	// CleanupInterval is how often the scheduler sweeps.
	CleanupInterval time.Duration
	// IdleThreshold is how long a worktree can go without a commit before
	// it is considered stale (rule 3).
	IdleThreshold time.Duration
	// MaxPerCodebase bounds how many active environments a codebase may
	// have before the oldest idle ones are reclaimed (rule 4). Zero means
	// unbounded.
	MaxPerCodebase int
	// SeedFiles are source-relative paths copied from the canonical repo
	// into every new worktree, best-effort. Defaults to {".archon"}.
	SeedFiles []SeedFile
	// FetchTimeout bounds the git fetch calls issued during creation.
	FetchTimeout time.Duration
}

// SeedFile is one file or directory copied from the canonical repo into a
// freshly created worktree.
type SeedFile struct {
	Source      string // relative to the canonical repo root
	Destination string // relative to the worktree root; defaults to Source
}

func DefaultConfig() Config {
	return Config{
		BasePath:         "~/.archon/worktrees",
		DefaultBranch:    "main",
		CleanupInterval:  6 * time.Hour,
		IdleThreshold:    72 * time.Hour,
		MaxPerCodebase:   25,
		SeedFiles:        []SeedFile{{Source: ".archon"}},
		FetchTimeout:     30 * time.Second,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BasePath) == "" {
		return fmt.Errorf("isolation: base path is required")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("isolation: cleanup interval must be positive")
	}
	if c.MaxPerCodebase < 0 {
		return fmt.Errorf("isolation: max per codebase must be >= 0")
	}
	return nil
}

// ExpandedBasePath resolves a leading "~" against the user's home directory.
func (c Config) ExpandedBasePath() (string, error) {
	if !strings.HasPrefix(c.BasePath, "~") {
		return c.BasePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("isolation: resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(c.BasePath, "~")), nil
}
