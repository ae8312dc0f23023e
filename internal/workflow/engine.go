package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sqwda22/archon-orchestrator/internal/assistant"
	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/events"
	"github.com/sqwda22/archon-orchestrator/internal/platform"
	"github.com/sqwda22/archon-orchestrator/internal/prompt"
	"github.com/sqwda22/archon-orchestrator/internal/session"
	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/turn"
)

const (
	ExitCompletionSignal = "completion-signal"
	ExitMaxIterations    = "max-iterations"
)

// Engine dispatches workflow runs: step-sequential, parallel blocks, and
// completion-signal loops, each turn routed through turn.Runner.
type Engine struct {
	store     store.Repository
	sessions  *session.Manager
	runner    *turn.Runner
	commands  CommandSource
	logger    *logger.Logger
	publisher *events.Publisher
}

func NewEngine(repo store.Repository, sessions *session.Manager, commands CommandSource, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	if commands == nil {
		commands = FileCommandSource{}
	}
	return &Engine{
		store:     repo,
		sessions:  sessions,
		runner:    turn.NewRunner(log),
		commands:  commands,
		logger:    log,
		publisher: events.NewPublisher(nil, "workflow", log),
	}
}

// WithPublisher returns e with its event publisher replaced, for callers
// that have a configured event bus to report run start/completion/failure
// on.
func (e *Engine) WithPublisher(p *events.Publisher) *Engine {
	e.publisher = p
	return e
}

// DispatchInput bundles everything a run needs beyond the workflow
// definition itself.
type DispatchInput struct {
	Conversation     *store.Conversation
	Codebase         *store.Codebase
	Client           assistant.Client
	Adapter          platform.Adapter
	TriggerMessage   string
	ExternalContext  string
}

// Dispatch creates a running workflow run (failing with ErrWorkflowRunBusy
// if one is already running for this conversation) and executes def to
// completion.
func (e *Engine) Dispatch(ctx context.Context, def *Definition, in DispatchInput) (*store.WorkflowRun, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}

	run := &store.WorkflowRun{
		ConversationID: in.Conversation.ID,
		CodebaseID:     in.Codebase.ID,
		WorkflowName:   def.Name,
		TriggerMessage: in.TriggerMessage,
		Metadata:       map[string]string{},
	}
	if err := e.store.CreateRunningWorkflowRun(ctx, run); err != nil {
		return nil, err
	}
	e.publisher.Publish(ctx, events.WorkflowRunStarted, map[string]interface{}{
		"run_id":        run.ID,
		"workflow_name": run.WorkflowName,
	})

	var execErr error
	if def.Loop != nil {
		execErr = e.runLoop(ctx, run, def.Loop, in)
	} else {
		execErr = e.runSteps(ctx, run, def.Steps, in)
	}

	e.autoCommit(in.Codebase, in.Conversation.Cwd)

	if execErr != nil {
		run.Status = store.WorkflowRunFailed
		run.Metadata["failureReason"] = execErr.Error()
	} else {
		run.Status = store.WorkflowRunCompleted
	}
	if err := e.store.UpdateWorkflowRun(ctx, run); err != nil {
		e.logger.Error("failed to persist workflow run completion", zap.Error(err))
	}

	if execErr != nil {
		e.publisher.Publish(ctx, events.WorkflowRunFailed, map[string]interface{}{
			"run_id":        run.ID,
			"workflow_name": run.WorkflowName,
			"reason":        execErr.Error(),
		})
	} else {
		e.publisher.Publish(ctx, events.WorkflowRunCompleted, map[string]interface{}{
			"run_id":        run.ID,
			"workflow_name": run.WorkflowName,
		})
	}
	return run, execErr
}

func (e *Engine) runSteps(ctx context.Context, run *store.WorkflowRun, steps []Step, in DispatchInput) error {
	forceFresh := true // first step always starts fresh

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if canceled, err := e.isCancelled(ctx, run); err != nil {
			return err
		} else if canceled {
			return fmt.Errorf("workflow run cancelled")
		}

		if step.isParallelBlock() {
			if err := e.runParallelBlock(ctx, step.Parallel, in); err != nil {
				run.Metadata["failedBlockIndex"] = fmt.Sprintf("%d", i)
				return err
			}
			forceFresh = true
			continue
		}

		fresh := forceFresh || step.ClearContext
		if err := e.runCommandStep(ctx, run, step, fresh, in); err != nil {
			return err
		}
		forceFresh = false

		run.Metadata["lastStepIndex"] = fmt.Sprintf("%d", i)
		if err := e.store.UpdateWorkflowRun(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runCommandStep(ctx context.Context, run *store.WorkflowRun, step Step, fresh bool, in DispatchInput) error {
	template, err := e.commands.ReadCommand(in.Codebase, step.Command)
	if err != nil {
		return err
	}

	args := []string{in.TriggerMessage}
	bindings := map[string]string{"USER_MESSAGE": in.TriggerMessage}
	text := prompt.Assemble(template, args, bindings, in.ExternalContext)

	sess, err := e.resolveStepSession(ctx, in, fresh)
	if err != nil {
		return err
	}

	result, err := e.runner.Run(ctx, in.Client, in.Adapter, turn.Request{
		ConversationID:  in.Conversation.ID,
		Prompt:          text,
		Cwd:             in.Conversation.Cwd,
		ResumeSessionID: sess.AssistantSessionID,
	})
	if err != nil {
		return err
	}

	if err := e.sessions.UpdateSessionAssistantID(ctx, sess, result.SessionID); err != nil {
		return err
	}
	return e.sessions.UpdateSessionMetadata(ctx, sess, map[string]string{"lastCommand": step.Command})
}

func (e *Engine) resolveStepSession(ctx context.Context, in DispatchInput, fresh bool) (*store.Session, error) {
	if !fresh {
		if active, err := e.sessions.GetActiveSession(ctx, in.Conversation.ID); err == nil && active != nil {
			return active, nil
		}
	}
	return e.sessions.CreateSession(ctx, in.Conversation.ID, in.Codebase.ID, in.Client.Type())
}

// runParallelBlock runs every step concurrently, each against its own
// ephemeral assistant session (never persisted as the conversation's
// active session, since only one session may be active at a time and
// these sessions have no safe way to share or survive past this block).
// Any single failure cancels and fails the whole block.
func (e *Engine) runParallelBlock(ctx context.Context, steps []Step, in DispatchInput) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, step := range steps {
		step := step
		g.Go(func() error {
			template, err := e.commands.ReadCommand(in.Codebase, step.Command)
			if err != nil {
				return err
			}
			text := prompt.Assemble(template, []string{in.TriggerMessage}, map[string]string{"USER_MESSAGE": in.TriggerMessage}, in.ExternalContext)
			_, err = e.runner.Run(gctx, in.Client, in.Adapter, turn.Request{
				ConversationID:  in.Conversation.ID,
				Prompt:          text,
				Cwd:             in.Conversation.Cwd,
				ResumeSessionID: "",
			})
			return err
		})
	}
	return g.Wait()
}

func (e *Engine) runLoop(ctx context.Context, run *store.WorkflowRun, loop *Loop, in DispatchInput) error {
	var resumeSessionID string

	for iteration := 1; iteration <= loop.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if canceled, err := e.isCancelled(ctx, run); err != nil {
			return err
		} else if canceled {
			return fmt.Errorf("workflow run cancelled")
		}

		args := []string{in.TriggerMessage}
		bindings := map[string]string{
			"USER_MESSAGE": in.TriggerMessage,
			"ITERATION":    fmt.Sprintf("%d", iteration),
		}
		text := prompt.Assemble(loop.Prompt, args, bindings, in.ExternalContext)

		fresh := loop.FreshContext || iteration == 1
		var sessionIDForTurn string
		if !fresh {
			sessionIDForTurn = resumeSessionID
		}

		result, err := e.runner.Run(ctx, in.Client, in.Adapter, turn.Request{
			ConversationID:  in.Conversation.ID,
			Prompt:          text,
			Cwd:             in.Conversation.Cwd,
			ResumeSessionID: sessionIDForTurn,
		})
		if err != nil {
			return err
		}
		resumeSessionID = result.SessionID

		if containsCompletionSignal(result.Text, loop.Until) {
			run.Metadata["exitReason"] = ExitCompletionSignal
			return nil
		}
		if iteration >= loop.MaxIterations {
			run.Metadata["exitReason"] = ExitMaxIterations
			return nil
		}
	}
	return nil
}

// containsCompletionSignal matches both the canonical <promise>{until}</promise>
// wrapper and a bare occurrence of until, case-sensitive exact substring.
func containsCompletionSignal(text, until string) bool {
	if until == "" {
		return false
	}
	if strings.Contains(text, "<promise>"+until+"</promise>") {
		return true
	}
	return strings.Contains(text, until)
}

func (e *Engine) isCancelled(ctx context.Context, run *store.WorkflowRun) (bool, error) {
	current, err := e.store.GetWorkflowRun(ctx, run.ID)
	if err != nil {
		return false, err
	}
	return current.Status == store.WorkflowRunCancelled, nil
}

// autoCommit stages and commits any changes in the working directory so
// that partial work from a completed or failed run is not lost. Best
// effort: a clean tree is skipped silently and a commit failure is
// logged; neither is returned.
func (e *Engine) autoCommit(codebase *store.Codebase, cwd string) {
	if cwd == "" {
		return
	}
	add := exec.Command("git", "add", "-A")
	add.Dir = cwd
	if out, err := add.CombinedOutput(); err != nil {
		e.logger.Warn("auto-commit: git add failed", zap.String("output", string(out)), zap.Error(err))
		return
	}
	commit := exec.Command("git", "commit", "-m", "archon: auto-commit after workflow run")
	commit.Dir = cwd
	if out, err := commit.CombinedOutput(); err != nil {
		if strings.Contains(string(out), "nothing to commit") {
			return
		}
		e.logger.Debug("auto-commit: git commit produced no changes or failed", zap.String("output", string(out)), zap.Error(err))
	}
}
