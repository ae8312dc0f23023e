// Package router picks a workflow for a free-form inbound message using a
// short assistant classification call, always falling back to a
// configured catch-all workflow so dispatch never stalls on an
// indecisive or failing classifier.
package router

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/sqwda22/archon-orchestrator/internal/common/logger"
	"github.com/sqwda22/archon-orchestrator/internal/workflow"
)

// ClassifyFunc invokes the short assistant classification call and
// returns its raw reply text.
type ClassifyFunc func(ctx context.Context, prompt string) (string, error)

// Input is the platform and conversation context the classifier prompt is
// built from.
type Input struct {
	PlatformType     string
	IsIssue          bool
	IsPR             bool
	PRLabels         []string
	ThreadHistory    string
	WorkflowTypeHint string
	Message          string
}

// Router selects a workflow.Definition by name from a fixed registry,
// loaded once at startup (or on /workflow reload) and swapped atomically.
type Router struct {
	definitions      map[string]*workflow.Definition
	fallbackWorkflow string
	logger           *logger.Logger
	group            singleflight.Group
}

func New(definitions map[string]*workflow.Definition, fallbackWorkflow string, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Default()
	}
	if fallbackWorkflow == "" {
		fallbackWorkflow = "assist"
	}
	return &Router{definitions: definitions, fallbackWorkflow: fallbackWorkflow, logger: log}
}

// Reload atomically swaps the workflow registry, e.g. for "/workflow reload".
func (r *Router) Reload(definitions map[string]*workflow.Definition) {
	r.definitions = definitions
}

func (r *Router) Definitions() map[string]*workflow.Definition {
	return r.definitions
}

// Route classifies message and returns the chosen workflow definition and
// its name. The classifier is never consulted twice concurrently for the
// same prompt: overlapping calls collapse onto a single in-flight
// classification via singleflight.
func (r *Router) Route(ctx context.Context, classify ClassifyFunc, in Input) (*workflow.Definition, string) {
	prompt := r.buildPrompt(in)

	result, err, _ := r.group.Do(prompt, func() (any, error) {
		return classify(ctx, prompt)
	})

	if err == nil {
		if name, ok := result.(string); ok {
			name = strings.TrimSpace(name)
			if def, found := r.definitions[name]; found {
				return def, name
			}
		}
	}

	fallback := r.definitions[r.fallbackWorkflow]
	return fallback, r.fallbackWorkflow
}

func (r *Router) buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Choose the single best workflow name for this message.\n\n")
	fmt.Fprintf(&b, "platform: %s\n", in.PlatformType)
	fmt.Fprintf(&b, "is_issue: %v\n", in.IsIssue)
	fmt.Fprintf(&b, "is_pr: %v\n", in.IsPR)
	if len(in.PRLabels) > 0 {
		fmt.Fprintf(&b, "pr_labels: %s\n", strings.Join(in.PRLabels, ", "))
	}
	if in.WorkflowTypeHint != "" {
		fmt.Fprintf(&b, "workflow_type_hint: %s\n", in.WorkflowTypeHint)
	}
	if in.ThreadHistory != "" {
		fmt.Fprintf(&b, "\nthread history:\n%s\n", in.ThreadHistory)
	}
	fmt.Fprintf(&b, "\nmessage:\n%s\n", in.Message)

	b.WriteString("\navailable workflows:\n")
	for name, def := range r.definitions {
		fmt.Fprintf(&b, "- %s: %s\n", name, def.Description)
	}
	b.WriteString("\nReply with exactly one workflow name and nothing else.")
	return b.String()
}
