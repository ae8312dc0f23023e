package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_StepsAndLoopMutuallyExclusive(t *testing.T) {
	err := Validate(&Definition{Steps: []Step{{Command: "a"}}, Loop: &Loop{Prompt: "p", MaxIterations: 1}})
	assert.Error(t, err)

	err = Validate(&Definition{})
	assert.Error(t, err, "neither steps nor loop set is also invalid")
}

func TestValidate_LoopRequiresPromptAndIterations(t *testing.T) {
	assert.Error(t, Validate(&Definition{Loop: &Loop{MaxIterations: 1}}))
	assert.Error(t, Validate(&Definition{Loop: &Loop{Prompt: "p", MaxIterations: 0}}))
	assert.NoError(t, Validate(&Definition{Loop: &Loop{Prompt: "p", MaxIterations: 3}}))
}

func TestValidate_ParallelBlockRules(t *testing.T) {
	assert.Error(t, Validate(&Definition{Steps: []Step{{Parallel: []Step{}}}}), "empty parallel block")
	assert.Error(t, Validate(&Definition{Steps: []Step{{Parallel: []Step{{Parallel: []Step{{Command: "x"}}}}}}}), "nested parallel")
	assert.Error(t, Validate(&Definition{Steps: []Step{{Command: "a", Parallel: []Step{{Command: "b"}}}}}), "command and parallel both set")
	assert.NoError(t, Validate(&Definition{Steps: []Step{{Parallel: []Step{{Command: "a"}, {Command: "b"}}}}}))
}

func TestValidate_StepRequiresCommand(t *testing.T) {
	assert.Error(t, Validate(&Definition{Steps: []Step{{}}}))
}
