package workflow

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sqwda22/archon-orchestrator/internal/apperror"
	"github.com/sqwda22/archon-orchestrator/internal/store"
)

// CommandSource resolves a command name to its template text under a
// codebase's command registry.
type CommandSource interface {
	ReadCommand(codebase *store.Codebase, name string) (string, error)
}

// FileCommandSource reads command templates from disk, relative to the
// codebase's canonical (non-worktree) checkout.
type FileCommandSource struct{}

func (FileCommandSource) ReadCommand(codebase *store.Codebase, name string) (string, error) {
	cmd, ok := codebase.Commands[name]
	if !ok {
		return "", apperror.NotFound("command", name)
	}
	path := cmd.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(codebase.CanonicalPath, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("workflow: read command %q: %w", name, err)
	}
	return string(data), nil
}
