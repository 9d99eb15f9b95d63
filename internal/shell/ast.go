package shell

import "fmt"

// ViolationKind categorizes a structural shell-safety violation.
type ViolationKind string

const (
	ViolationCommandSubstitution ViolationKind = "command_substitution"
	ViolationProcessSubstitution ViolationKind = "process_substitution"
	ViolationInterpreterInline   ViolationKind = "interpreter_inline_exec"
	ViolationFunctionDefinition  ViolationKind = "function_definition"
	ViolationSubshell            ViolationKind = "subshell"
)

// Violation describes one structural rejection found by AnalyzeCommand.
type Violation struct {
	Kind        ViolationKind
	Description string
}

// interpreterInlineFlags are flags that, following a known interpreter name,
// cause the interpreter to execute its argument as code rather than a file.
var interpreterInlineFlags = map[string][]string{
	"python":  {"-c"},
	"python3": {"-c"},
	"python2": {"-c"},
	"perl":    {"-e"},
	"ruby":    {"-e"},
	"node":    {"-e", "--eval"},
	"php":     {"-r"},
	"sh":      {"-c"},
	"bash":    {"-c"},
	"zsh":     {"-c"},
	"dash":    {"-c"},
}

// AnalyzeCommand performs a structural scan over a shell-grammar subset,
// catching constructs a plain denylist regex cannot reliably catch:
// command substitution, process substitution, interpreter inline exec,
// bare function definitions, and subshells. It does not attempt to be a
// full shell parser; on ambiguous input it prefers false negatives (falls
// through silently) over false positives, leaving the denylist/allowlist
// layers as the remaining safety net.
func AnalyzeCommand(command string) []Violation {
	var violations []Violation

	if kind, desc, ok := findCommandSubstitution(command); ok {
		violations = append(violations, Violation{Kind: kind, Description: desc})
	}
	if kind, desc, ok := findProcessSubstitution(command); ok {
		violations = append(violations, Violation{Kind: kind, Description: desc})
	}
	if kind, desc, ok := findInterpreterInlineExec(command); ok {
		violations = append(violations, Violation{Kind: kind, Description: desc})
	}
	if kind, desc, ok := findFunctionDefinition(command); ok {
		violations = append(violations, Violation{Kind: kind, Description: desc})
	}
	if kind, desc, ok := findSubshell(command); ok {
		violations = append(violations, Violation{Kind: kind, Description: desc})
	}

	return violations
}

// findCommandSubstitution detects $(...) and backtick command substitution
// outside of single quotes (single quotes suppress all shell expansion).
func findCommandSubstitution(command string) (ViolationKind, string, bool) {
	inSingle := false
	inDouble := false
	escaped := false

	for i := 0; i < len(command); i++ {
		c := command[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && !inSingle:
			escaped = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle:
			// literal, ignore
		case c == '$' && i+1 < len(command) && command[i+1] == '(':
			return ViolationCommandSubstitution, "command substitution $(...) is not allowed", true
		case c == '`':
			return ViolationCommandSubstitution, "backtick command substitution is not allowed", true
		}
	}
	return "", "", false
}

// findProcessSubstitution detects <(...) and >(...) outside single quotes.
func findProcessSubstitution(command string) (ViolationKind, string, bool) {
	inSingle := false
	inDouble := false
	escaped := false

	for i := 0; i < len(command); i++ {
		c := command[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && !inSingle:
			escaped = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle:
		case (c == '<' || c == '>') && i+1 < len(command) && command[i+1] == '(':
			return ViolationProcessSubstitution, fmt.Sprintf("process substitution %c(...) is not allowed", c), true
		}
	}
	return "", "", false
}

// findInterpreterInlineExec detects `<interpreter> -c/-e/-r <code>` shapes
// where an interpreter is asked to execute an inline code argument rather
// than a script file.
func findInterpreterInlineExec(command string) (ViolationKind, string, bool) {
	for _, tokens := range splitSegments(command) {
		if len(tokens) < 2 {
			continue
		}
		base := basename(tokens[0])
		flags, ok := interpreterInlineFlags[base]
		if !ok {
			continue
		}
		for _, tok := range tokens[1:] {
			for _, f := range flags {
				if tok == f {
					return ViolationInterpreterInline, fmt.Sprintf("inline code execution via '%s %s' is not allowed", base, f), true
				}
			}
		}
	}
	return "", "", false
}

// findFunctionDefinition detects bare shell function definitions, e.g.
// `foo() { ... }` or `function foo { ... }`.
func findFunctionDefinition(command string) (ViolationKind, string, bool) {
	segments := segmentStrings(command)
	for _, seg := range segments {
		trimmed := trimSpace(seg)
		if hasFunctionDefShape(trimmed) {
			return ViolationFunctionDefinition, "shell function definitions are not allowed", true
		}
	}
	return "", "", false
}

func hasFunctionDefShape(s string) bool {
	if len(s) == 0 {
		return false
	}
	if hasPrefix(s, "function ") {
		return true
	}
	// name() { ... }  — look for "() {" or "(){"
	idx := indexOf(s, "()")
	if idx <= 0 {
		return false
	}
	rest := trimSpace(s[idx+2:])
	return hasPrefix(rest, "{")
}

// findSubshell detects a top-level `( ... )` subshell wrapper (as opposed to
// `$(...)` which is caught separately, and parens appearing inside quotes).
func findSubshell(command string) (ViolationKind, string, bool) {
	inSingle := false
	inDouble := false
	escaped := false

	for i := 0; i < len(command); i++ {
		c := command[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && !inSingle:
			escaped = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle:
		case c == '(' && !(i > 0 && command[i-1] == '$'):
			return ViolationSubshell, "subshell ( ... ) is not allowed", true
		}
	}
	return "", "", false
}

// --- small local string helpers (kept dependency-free and allocation-light) ---

func basename(token string) string {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '/' {
			return token[i+1:]
		}
	}
	return token
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && isSpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func indexOf(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if s[i:i+n] == substr {
			return i
		}
	}
	return -1
}

// segmentStrings splits a command into pipeline/chain segments respecting
// quoting, without resolving each segment into tokens (used where only the
// raw segment text is needed).
func segmentStrings(command string) []string {
	segs, _ := splitPipelineSegments(command)
	return segs
}

// splitSegments splits a command into pipeline segments and tokenizes each.
func splitSegments(command string) [][]string {
	segs, _ := splitPipelineSegments(command)
	out := make([][]string, len(segs))
	for i, seg := range segs {
		out[i] = tokenize(seg)
	}
	return out
}
