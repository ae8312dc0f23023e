package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute_Positional(t *testing.T) {
	got := Substitute("hello $1, you said $2", []string{"alice", "hi"}, nil, "")
	assert.Equal(t, "hello alice, you said hi", got)
}

func TestSubstitute_MissingPositionalExpandsEmpty(t *testing.T) {
	got := Substitute("value: [$3]", []string{"a"}, nil, "")
	assert.Equal(t, "value: []", got)
}

func TestSubstitute_Arguments(t *testing.T) {
	got := Substitute("args=$ARGUMENTS", []string{"a", "b", "c"}, nil, "")
	assert.Equal(t, "args=a b c", got)
}

func TestSubstitute_ContextAliases(t *testing.T) {
	for _, alias := range []string{"$CONTEXT", "$EXTERNAL_CONTEXT", "$ISSUE_CONTEXT"} {
		got := Substitute(alias, nil, nil, "issue body text")
		assert.Equal(t, "issue body text", got)
	}
}

func TestSubstitute_EscapedDollarNotReexpanded(t *testing.T) {
	got := Substitute(`price is \$1`, []string{"five"}, nil, "")
	assert.Equal(t, "price is $1", got)
}

func TestSubstitute_UnknownNameLeftAsIs(t *testing.T) {
	got := Substitute("run $UNKNOWN_VAR now", nil, map[string]string{"OTHER": "x"}, "")
	assert.Equal(t, "run $UNKNOWN_VAR now", got)
}

func TestSubstitute_NamedBinding(t *testing.T) {
	got := Substitute("title: $TITLE", nil, map[string]string{"TITLE": "dark mode"}, "")
	assert.Equal(t, "title: dark mode", got)
}

func TestSubstitute_FixedPoint(t *testing.T) {
	template := "hello $1, see $UNKNOWN and a lone $ sign"
	args := []string{"bob"}
	once := Substitute(template, args, nil, "")
	twice := Substitute(once, args, nil, "")
	assert.Equal(t, once, twice)
}

func TestAssemble_UnconditionallyAppendsContext(t *testing.T) {
	got := Assemble("plain template with no placeholders", nil, nil, "extra context")
	assert.Equal(t, "plain template with no placeholders\n\n---\n\nextra context", got)
}

func TestAssemble_NoAppendWhenContextEmpty(t *testing.T) {
	got := Assemble("plain template", nil, nil, "")
	assert.Equal(t, "plain template", got)
}
