// Package prompt implements variable substitution and prompt assembly:
// turning a command template, positional arguments, and named bindings
// into the text sent to an assistant subprocess.
package prompt

import (
	"strings"
)

// contextAliases are the names that all resolve to the external context
// binding, by design, so templates and callers can use whichever reads
// best for the platform they're integrating.
var contextAliases = map[string]bool{
	"CONTEXT":          true,
	"EXTERNAL_CONTEXT": true,
	"ISSUE_CONTEXT":    true,
}

// Assemble runs Substitute and then unconditionally appends externalContext
// (separated by "\n\n---\n\n") if it is non-empty, regardless of whether
// the template referenced $CONTEXT. This double-injection is deliberate:
// templates that don't reference $CONTEXT still receive the context.
func Assemble(template string, args []string, bindings map[string]string, externalContext string) string {
	result := Substitute(template, args, bindings, externalContext)
	if externalContext != "" {
		result += "\n\n---\n\n" + externalContext
	}
	return result
}

// Substitute expands $1.."$N" positional references, $ARGUMENTS, the
// context aliases, \$ escaping, and any other $NAME against bindings. An
// unmatched $NAME is left in the output verbatim, by design, to avoid
// false positives on shell-like text that happens to contain a dollar
// sign. Substitute is a pure expansion with no side-appending, so it is a
// fixed point: re-running it over its own output (for templates with no
// recursive placeholders) returns the same string. An escaped \$ is not
// covered: it is emitted as a plain $, so a second pass expands whatever
// placeholder follows it.
func Substitute(template string, args []string, bindings map[string]string, externalContext string) string {
	var out strings.Builder
	runes := []rune(template)

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '\\' && i+1 < len(runes) && runes[i+1] == '$' {
			out.WriteByte('$')
			i++
			continue
		}
		if c != '$' {
			out.WriteRune(c)
			continue
		}

		name, consumed := readPlaceholder(runes[i+1:])
		if name == "" {
			out.WriteRune(c)
			continue
		}

		value, ok := resolve(name, args, bindings, externalContext)
		if !ok {
			// Unknown $NAME: left as-is, dollar sign included.
			out.WriteRune(c)
			out.WriteString(name)
			i += consumed
			continue
		}
		out.WriteString(value)
		i += consumed
	}

	return out.String()
}

func readPlaceholder(rest []rune) (name string, consumed int) {
	for consumed < len(rest) && isPlaceholderRune(rest[consumed]) {
		consumed++
	}
	return string(rest[:consumed]), consumed
}

func isPlaceholderRune(r rune) bool {
	return r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func resolve(name string, args []string, bindings map[string]string, externalContext string) (string, bool) {
	if isPositional(name) {
		idx := positionalIndex(name)
		if idx >= 1 && idx <= len(args) {
			return args[idx-1], true
		}
		return "", true // out-of-range position expands to empty, not "unmatched"
	}
	if name == "ARGUMENTS" {
		return strings.Join(args, " "), true
	}
	if contextAliases[name] {
		return externalContext, true
	}
	if v, ok := bindings[name]; ok {
		return v, true
	}
	return "", false
}

func isPositional(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func positionalIndex(name string) int {
	n := 0
	for _, r := range name {
		n = n*10 + int(r-'0')
	}
	return n
}
