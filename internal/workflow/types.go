// Package workflow implements the workflow engine: step-sequential and
// loop-based execution plans dispatched as one or more assistant turns
// against a conversation's isolated working directory.
package workflow

import "github.com/sqwda22/archon-orchestrator/internal/apperror"

// Step is one entry in a step-based workflow. It is a discriminated union:
// either a single command step, or a parallel block of single-command
// steps. Exactly one of Command or Parallel is set.
type Step struct {
	Command      string `yaml:"command,omitempty"`
	ClearContext bool   `yaml:"clearContext,omitempty"`
	Parallel     []Step `yaml:"parallel,omitempty"`
}

func (s Step) isParallelBlock() bool { return len(s.Parallel) > 0 }

// Loop is the alternative to Steps: a single repeated prompt with a
// completion signal and iteration cap.
type Loop struct {
	Prompt        string `yaml:"prompt"`
	Until         string `yaml:"until"`
	MaxIterations int    `yaml:"max_iterations"`
	FreshContext  bool   `yaml:"fresh_context,omitempty"`
}

// Definition is a named, parameterized execution plan: either Steps or
// Loop, never both.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Provider    string `yaml:"provider"`
	Steps       []Step `yaml:"steps,omitempty"`
	Loop        *Loop  `yaml:"loop,omitempty"`
}

// Validate checks the structural invariants the spec requires: steps and
// loop are mutually exclusive, a loop must declare a prompt and a positive
// iteration cap, parallel blocks must be non-empty and may not nest or mix
// with a further command on the same step.
func Validate(def *Definition) error {
	hasSteps := len(def.Steps) > 0
	hasLoop := def.Loop != nil

	if hasSteps == hasLoop {
		return apperror.Validation("workflow must declare exactly one of steps or loop")
	}

	if hasLoop {
		if def.Loop.Prompt == "" {
			return apperror.Validation("loop workflow is missing a prompt")
		}
		if def.Loop.MaxIterations <= 0 {
			return apperror.Validation("loop workflow must declare max_iterations > 0")
		}
		return nil
	}

	for _, step := range def.Steps {
		if step.isParallelBlock() {
			if step.Command != "" {
				return apperror.Validation("step cannot declare both a command and a parallel block")
			}
			if len(step.Parallel) == 0 {
				return apperror.Validation("parallel block must contain at least one step")
			}
			for _, sub := range step.Parallel {
				if sub.isParallelBlock() {
					return apperror.Validation("parallel blocks may not nest")
				}
				if sub.Command == "" {
					return apperror.Validation("parallel block steps must declare a command")
				}
			}
			continue
		}
		if step.Command == "" {
			return apperror.Validation("step is missing a command")
		}
	}
	return nil
}
