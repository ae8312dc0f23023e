package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sqwda22/archon-orchestrator/internal/store"
)

func TestBranchName(t *testing.T) {
	cases := []struct {
		name string
		req  CreateRequest
		want string
	}{
		{"issue", CreateRequest{WorkflowType: store.WorkflowTypeIssue, Identifier: "42"}, "issue-42"},
		{"pr same repo", CreateRequest{WorkflowType: store.WorkflowTypePR, Identifier: "7", PRBranch: "feature/x", IsForkPR: false}, "feature/x"},
		{"pr fork", CreateRequest{WorkflowType: store.WorkflowTypePR, Identifier: "7", PRBranch: "feature/x", IsForkPR: true}, "pr-7-review"},
		{"pr no branch", CreateRequest{WorkflowType: store.WorkflowTypePR, Identifier: "7"}, "pr-7-review"},
		{"review", CreateRequest{WorkflowType: store.WorkflowTypeReview, Identifier: "9"}, "review-9"},
		{"task", CreateRequest{WorkflowType: store.WorkflowTypeTask, Identifier: "Add OAuth Support!!"}, "task-add-oauth-support"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, branchName(c.req))
		})
	}
}

func TestBranchNameThread(t *testing.T) {
	got := branchName(CreateRequest{WorkflowType: store.WorkflowTypeThread, Identifier: "conversation-123"})
	assert.Regexp(t, `^thread-[0-9a-f]{8}$`, got)

	// deterministic: same identifier always yields the same branch
	again := branchName(CreateRequest{WorkflowType: store.WorkflowTypeThread, Identifier: "conversation-123"})
	assert.Equal(t, got, again)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "hello-world", slug("Hello, World!", 50))
	assert.Equal(t, "", slug("!!!", 50))
	assert.Equal(t, "a", slug("a", 1))
	long := slug("this-is-a-very-long-title-that-should-be-truncated-at-fifty-chars", 20)
	assert.LessOrEqual(t, len(long), 20)
}

func TestWorktreePath(t *testing.T) {
	got := worktreePath("/home/u/.archon/worktrees", "/home/u/repos/acme/widgets", "task-foo")
	assert.Equal(t, "/home/u/.archon/worktrees/acme/widgets/task-foo", got)
}
