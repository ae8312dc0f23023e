// Package orchestrator implements the top-level message pipeline: lock the
// conversation, hydrate its state, run pre-flight gates, resolve an
// isolation environment, dispatch to the command handler or the router
// and workflow engine, fan out the assistant turn, persist results, and
// translate any error into a user-facing message.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sqwda22/archon-orchestrator/internal/apperror"
	"github.com/sqwda22/archon-orchestrator/internal/assistant"
	"github.com/sqwda22/archon-orchestrator/internal/command"
	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/isolation"
	"github.com/sqwda22/archon-orchestrator/internal/lock"
	"github.com/sqwda22/archon-orchestrator/internal/platform"
	"github.com/sqwda22/archon-orchestrator/internal/prompt"
	"github.com/sqwda22/archon-orchestrator/internal/router"
	"github.com/sqwda22/archon-orchestrator/internal/session"
	"github.com/sqwda22/archon-orchestrator/internal/store"
	"github.com/sqwda22/archon-orchestrator/internal/turn"
	"github.com/sqwda22/archon-orchestrator/internal/workflow"
)

// AssistantResolver returns the assistant.Client for a conversation's
// locked assistant type. Kept as an indirection since the core never
// constructs a real client itself (that belongs to the platform/assistant
// integration layer wired up in cmd/orchestrator).
type AssistantResolver interface {
	Resolve(assistantType string) (assistant.Client, error)
}

// Orchestrator ties every core package into the single HandleMessage
// entry point an inbound platform event is routed through.
type Orchestrator struct {
	store         store.Repository
	locks         *lock.KeyedMutex
	sessions      *session.Manager
	isolation     *isolation.Manager
	engine        *workflow.Engine
	router        *router.Router
	commands      *command.Handler
	commandSource workflow.CommandSource
	runner        *turn.Runner
	assistants    AssistantResolver
	classify      router.ClassifyFunc
	logger        *logger.Logger
}

func New(
	repo store.Repository,
	isolationMgr *isolation.Manager,
	engine *workflow.Engine,
	r *router.Router,
	commands *command.Handler,
	assistants AssistantResolver,
	classify router.ClassifyFunc,
	log *logger.Logger,
) *Orchestrator {
	if log == nil {
		log = logger.Default()
	}
	return &Orchestrator{
		store:         repo,
		locks:         lock.New(),
		sessions:      session.NewManager(repo, log),
		isolation:     isolationMgr,
		engine:        engine,
		router:        r,
		commands:      commands,
		commandSource: workflow.FileCommandSource{},
		runner:        turn.NewRunner(log),
		assistants:    assistants,
		classify:      classify,
		logger:        log,
	}
}

// WithCommandSource returns o with its /command-invoke template loader
// replaced, for tests and deployments that resolve command templates
// somewhere other than the codebase's canonical checkout on disk.
func (o *Orchestrator) WithCommandSource(src workflow.CommandSource) *Orchestrator {
	o.commandSource = src
	return o
}

// Inbound is one message delivered by a platform adapter.
type Inbound struct {
	PlatformType           string
	PlatformConversationID string
	Text                   string
	ExternalContext        string
	Isolation              *platform.IsolationHint
	PRLabels               []string
	ThreadHistory          string
}

// Outcome is what the caller (the platform integration) relays back.
type Outcome struct {
	Message string
}

// HandleMessage runs the full pipeline for one inbound message against a
// platform.Adapter used for stream fan-out. Every step that can fail
// returns a user-facing message via apperror.Format rather than a raw
// error, except for apperror.KindFatal which the caller should escalate.
func (o *Orchestrator) HandleMessage(ctx context.Context, adapter platform.Adapter, in Inbound) (Outcome, error) {
	var outcome Outcome
	lockErr := o.locks.With(in.PlatformType+":"+in.PlatformConversationID, func() error {
		res, err := o.handleLocked(ctx, adapter, in)
		outcome = res
		return err
	})
	if lockErr != nil {
		if apperror.KindOf(lockErr) == apperror.KindFatal {
			return Outcome{}, lockErr
		}
		return Outcome{Message: apperror.Format(lockErr)}, nil
	}
	return outcome, nil
}

func (o *Orchestrator) handleLocked(ctx context.Context, adapter platform.Adapter, in Inbound) (Outcome, error) {
	conv, err := o.sessions.GetOrCreateConversation(ctx, in.PlatformType, in.PlatformConversationID)
	if err != nil {
		return Outcome{}, apperror.Fatal(err)
	}

	if err := o.store.ReconcileStaleRunningRuns(ctx, conv.ID); err != nil {
		o.logger.Warn("failed to reconcile stale workflow runs", zap.Error(err))
	}

	if in.Isolation != nil && in.Isolation.Close {
		return o.handleCloseEvent(ctx, conv, in)
	}

	if name, args, isInvoke := command.ParseInvoke(in.Text); isInvoke {
		return o.commandInvoke(ctx, adapter, conv, in, name, args)
	}

	if command.IsCommand(in.Text) {
		return o.dispatchCommand(ctx, conv, in.Text)
	}

	if conv.CodebaseID == "" {
		return Outcome{Message: "No codebase is configured for this conversation yet. Use /clone or /codebase-switch first."}, nil
	}
	codebase, err := o.store.GetCodebase(ctx, conv.CodebaseID)
	if err != nil {
		return Outcome{}, apperror.NotFound("codebase", conv.CodebaseID)
	}

	if err := o.resolveIsolation(ctx, conv, codebase, in); err != nil {
		return Outcome{Message: apperror.Format(err)}, nil
	}

	client, err := o.assistants.Resolve(conv.AssistantType)
	if err != nil {
		return Outcome{}, apperror.AssistantTransport("unable to start assistant", err)
	}

	def, workflowName := o.router.Route(ctx, o.classify, router.Input{
		PlatformType:     in.PlatformType,
		IsIssue:          in.Isolation != nil && in.Isolation.WorkflowType == string(store.WorkflowTypeIssue),
		IsPR:             in.Isolation != nil && in.Isolation.WorkflowType == string(store.WorkflowTypePR),
		PRLabels:         in.PRLabels,
		ThreadHistory:    in.ThreadHistory,
		WorkflowTypeHint: isolationWorkflowTypeHint(in.Isolation),
		Message:          in.Text,
	})
	if def == nil {
		return Outcome{}, apperror.Fatal(fmt.Errorf("router produced no workflow, including no fallback %q", workflowName))
	}

	run, err := o.engine.Dispatch(ctx, def, workflow.DispatchInput{
		Conversation:    conv,
		Codebase:        codebase,
		Client:          client,
		Adapter:         adapter,
		TriggerMessage:  in.Text,
		ExternalContext: in.ExternalContext,
	})
	if err != nil {
		if run != nil {
			return Outcome{Message: fmt.Sprintf("Workflow %q failed: %s", workflowName, apperror.Format(err))}, nil
		}
		if err == store.ErrWorkflowRunBusy {
			return Outcome{Message: apperror.Format(apperror.Busy("a workflow is already running for this conversation"))}, nil
		}
		return Outcome{}, apperror.Fatal(err)
	}

	return Outcome{Message: fmt.Sprintf("Workflow %q completed.", workflowName)}, nil
}

// commandInvoke is the one slash command that reaches the assistant: it
// loads the named command's template, substitutes $ARGUMENTS/$N and the
// external context into it, resolves the session per the §4.3 transition
// rule, and runs a single turn through it.
func (o *Orchestrator) commandInvoke(ctx context.Context, adapter platform.Adapter, conv *store.Conversation, in Inbound, name string, args []string) (Outcome, error) {
	if conv.CodebaseID == "" {
		return Outcome{Message: "No codebase is configured for this conversation yet. Use /clone or /codebase-switch first."}, nil
	}
	codebase, err := o.store.GetCodebase(ctx, conv.CodebaseID)
	if err != nil {
		return Outcome{}, apperror.NotFound("codebase", conv.CodebaseID)
	}
	if _, ok := codebase.Commands[name]; !ok {
		return Outcome{Message: fmt.Sprintf("unknown command %q", name)}, nil
	}

	if err := o.resolveIsolation(ctx, conv, codebase, in); err != nil {
		return Outcome{Message: apperror.Format(err)}, nil
	}

	client, err := o.assistants.Resolve(conv.AssistantType)
	if err != nil {
		return Outcome{}, apperror.AssistantTransport("unable to start assistant", err)
	}

	template, err := o.commandSource.ReadCommand(codebase, name)
	if err != nil {
		return Outcome{Message: apperror.Format(apperror.NotFound("command", name))}, nil
	}
	text := prompt.Assemble(template, args, nil, in.ExternalContext)

	sess, _, err := o.sessions.Resolve(ctx, conv.ID, codebase.ID, client.Type(), name)
	if err != nil {
		return Outcome{}, apperror.Fatal(err)
	}

	result, err := o.runner.Run(ctx, client, adapter, turn.Request{
		ConversationID:  conv.ID,
		Prompt:          text,
		Cwd:             conv.Cwd,
		ResumeSessionID: sess.AssistantSessionID,
	})
	if err != nil {
		return Outcome{Message: apperror.Format(err)}, nil
	}

	if err := o.sessions.UpdateSessionAssistantID(ctx, sess, result.SessionID); err != nil {
		return Outcome{}, apperror.Fatal(err)
	}

	return Outcome{Message: result.Text}, nil
}

func (o *Orchestrator) dispatchCommand(ctx context.Context, conv *store.Conversation, text string) (Outcome, error) {
	res, err := o.commands.Dispatch(ctx, conv, text)
	if err != nil {
		return Outcome{}, apperror.Fatal(err)
	}
	return Outcome{Message: res.Message}, nil
}

func (o *Orchestrator) resolveIsolation(ctx context.Context, conv *store.Conversation, codebase *store.Codebase, in Inbound) error {
	if in.Isolation == nil {
		return nil
	}
	env, err := o.isolation.Create(ctx, isolation.CreateRequest{
		CodebaseID:        codebase.ID,
		CanonicalRepoPath: codebase.CanonicalPath,
		WorkflowType:      store.WorkflowType(in.Isolation.WorkflowType),
		Identifier:        in.Isolation.Identifier,
		PRBranch:          in.Isolation.PRBranch,
		PRSha:             in.Isolation.PRSha,
		IsForkPR:          in.Isolation.IsForkPR,
		CreatingPlatform:  in.PlatformType,
	})
	if err != nil {
		return apperror.Isolation("failed to prepare an isolated working directory", "Check that the codebase's canonical checkout is healthy.")
	}
	conv.Cwd = env.WorkingPath
	return o.store.UpdateConversation(ctx, conv)
}

func (o *Orchestrator) handleCloseEvent(ctx context.Context, conv *store.Conversation, in Inbound) (Outcome, error) {
	if conv.CodebaseID == "" {
		return Outcome{Message: "nothing to close"}, nil
	}
	codebase, err := o.store.GetCodebase(ctx, conv.CodebaseID)
	if err != nil {
		return Outcome{}, apperror.NotFound("codebase", conv.CodebaseID)
	}
	envs, err := o.store.ListActiveIsolationEnvironments(ctx, conv.CodebaseID)
	if err != nil {
		return Outcome{}, apperror.Fatal(err)
	}
	for _, env := range envs {
		if env.Identifier != in.Isolation.Identifier {
			continue
		}
		if err := o.isolation.Destroy(ctx, env.ID, isolation.DestroyRequest{
			BranchName:        env.Branch,
			CanonicalRepoPath: codebase.CanonicalPath,
		}); err != nil {
			o.logger.Warn("failed to destroy isolation environment on close event", zap.Error(err))
		}
	}
	return Outcome{Message: "cleaned up the working directory for this thread"}, nil
}

func isolationWorkflowTypeHint(hint *platform.IsolationHint) string {
	if hint == nil {
		return ""
	}
	return hint.WorkflowType
}

// classifyViaAssistant adapts a single-turn assistant.Client call into a
// router.ClassifyFunc: a short, non-persisted turn with no resume id and
// no streaming fan-out, since the classification reply is never shown to
// the end user.
func classifyViaAssistant(client assistant.Client, runner *turn.Runner) router.ClassifyFunc {
	return func(ctx context.Context, classifierPrompt string) (string, error) {
		result, err := runner.Run(ctx, client, nil, turn.Request{Prompt: classifierPrompt})
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
}

// NewAssistantClassifier builds a router.ClassifyFunc bound to a single
// fixed assistant.Client, for deployments that run classification through
// a dedicated lightweight assistant invocation rather than per-request.
func NewAssistantClassifier(client assistant.Client, log *logger.Logger) router.ClassifyFunc {
	return classifyViaAssistant(client, turn.NewRunner(log))
}
