package shell

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// prefixCommands are commands that merely wrap a real command as their
// first argument (sudo foo, env FOO=1 bar, nohup baz ...). extractCommandName
// walks past them to find the command actually being run.
var prefixCommands = map[string]struct{}{
	"sudo":    {},
	"env":     {},
	"command": {},
	"nohup":   {},
	"nice":    {},
	"time":    {},
	"doas":    {},
	"xargs":   {},
}

// GuardConfig controls what GuardCommand permits.
type GuardConfig struct {
	// AllowedCommands, if non-empty, is the exhaustive set of command names
	// (after stripping directories and prefix wrappers) permitted anywhere
	// in the pipeline. Empty means no allowlist restriction.
	AllowedCommands map[string]struct{}
	// DenyPatterns are regexes checked against the full command line; any
	// match rejects the command outright.
	DenyPatterns []*regexp.Regexp
	// RestrictToWorkspace, when true, requires cwd to be inside Workspace
	// and rejects any absolute-path-looking token that resolves outside it.
	RestrictToWorkspace bool
	Workspace           string
}

// DefaultDenyPatterns returns the baseline regex denylist applied as a
// secondary safety net behind the allowlist and structural analysis: shell
// variable expansion, and the long-form recursive/force rm flags that are
// easy to miss when eyeballing a command.
func DefaultDenyPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`\$\{[^}]*\}`),
		regexp.MustCompile(`\brm\b.*--recursive`),
		regexp.MustCompile(`\brm\b.*--force`),
		regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), // fork bomb
	}
}

// GuardCommand validates a shell command line against structural, allowlist,
// denylist, and workspace-confinement checks, in that order, returning the
// first violation found. A nil error means the command may be executed.
func GuardCommand(command, cwd string, cfg GuardConfig) error {
	normalized := strings.ReplaceAll(command, "\\\n", " ")

	if violations := AnalyzeCommand(normalized); len(violations) > 0 {
		v := violations[0]
		return fmt.Errorf("blocked: %s", v.Description)
	}

	if len(cfg.AllowedCommands) > 0 {
		for _, name := range extractAllCommands(normalized) {
			if name == "" {
				continue
			}
			if _, ok := cfg.AllowedCommands[name]; !ok {
				return fmt.Errorf("blocked: command %q is not in the allowed list", name)
			}
		}
	}

	for _, re := range cfg.DenyPatterns {
		if re.MatchString(normalized) {
			return fmt.Errorf("blocked: command matches denylist pattern %q", re.String())
		}
	}

	if cfg.RestrictToWorkspace {
		workspace := cfg.Workspace
		if workspace == "" {
			return fmt.Errorf("blocked: workspace confinement requested but no workspace configured")
		}
		absWorkspace, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("blocked: cannot resolve workspace path: %w", err)
		}
		absCwd, err := filepath.Abs(cwd)
		if err != nil {
			return fmt.Errorf("blocked: cannot resolve working directory: %w", err)
		}
		if !isWithin(absCwd, absWorkspace) {
			return fmt.Errorf("blocked: working directory %q is outside workspace %q", absCwd, absWorkspace)
		}
		if err := checkPathsInWorkspace(normalized, absWorkspace); err != nil {
			return err
		}
	}

	return nil
}

// extractCommandName returns the real command name a single segment runs:
// it walks the segment's tokens, skipping KEY=value assignments, and once a
// known prefix wrapper (sudo, env, nohup, ...) is seen, also skips any
// subsequent flag token for the remainder of the scan — matching the shape
// of "sudo env FOO=bar nice -n10 python3 script.py". The first token that is
// neither an assignment, a flag following a seen prefix, nor a prefix word
// itself is the real command, returned with any directory component
// stripped.
func extractCommandName(segment string) string {
	tokens := tokenize(segment)
	foundPrefix := false
	for _, tok := range tokens {
		if strings.Contains(tok, "=") && !strings.HasPrefix(tok, "-") {
			continue
		}
		if foundPrefix && strings.HasPrefix(tok, "-") {
			continue
		}
		base := basename(tok)
		if _, ok := prefixCommands[base]; ok {
			foundPrefix = true
			continue
		}
		return base
	}
	return trimSpace(segment)
}

// extractAllCommands splits a command line into segments on &&, ||, |, ;,
// and newline (honoring single/double quoting and backslash escapes so
// operators inside quotes are not treated as splits), then resolves each
// segment to the command name it actually runs via extractCommandName.
func extractAllCommands(command string) []string {
	segs, _ := splitPipelineSegments(command)
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if trimSpace(s) == "" {
			continue
		}
		out = append(out, extractCommandName(s))
	}
	return out
}

// splitPipelineSegments performs the shared quote/escape-aware scan used by
// extractAllCommands and the ast.go helpers: it splits command on &&, ||, |,
// ;, and \n outside of quotes, returning the raw (untrimmed) segments plus
// the byte offsets they started at.
func splitPipelineSegments(command string) ([]string, []int) {
	var segs []string
	var starts []int

	inSingle := false
	inDouble := false
	escaped := false
	segStart := 0

	i := 0
	for i < len(command) {
		c := command[i]
		if escaped {
			escaped = false
			i++
			continue
		}
		switch {
		case c == '\\' && !inSingle:
			escaped = true
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			i++
		case c == '"' && !inSingle:
			inDouble = !inDouble
			i++
		case inSingle || inDouble:
			i++
		case c == '&' && i+1 < len(command) && command[i+1] == '&':
			segs = append(segs, command[segStart:i])
			starts = append(starts, segStart)
			i += 2
			segStart = i
		case c == '|' && i+1 < len(command) && command[i+1] == '|':
			segs = append(segs, command[segStart:i])
			starts = append(starts, segStart)
			i += 2
			segStart = i
		case c == '|' || c == ';' || c == '\n':
			segs = append(segs, command[segStart:i])
			starts = append(starts, segStart)
			i++
			segStart = i
		default:
			i++
		}
	}
	segs = append(segs, command[segStart:])
	starts = append(starts, segStart)

	return segs, starts
}

// tokenize splits a single command segment into whitespace-separated tokens,
// honoring single/double quoting and backslash escapes (quotes and escape
// characters are stripped from the resulting tokens).
func tokenize(segment string) []string {
	var tokens []string
	var cur strings.Builder
	have := false

	inSingle := false
	inDouble := false
	escaped := false

	flush := func() {
		if have {
			tokens = append(tokens, cur.String())
			cur.Reset()
			have = false
		}
	}

	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if escaped {
			cur.WriteByte(c)
			have = true
			escaped = false
			continue
		}
		switch {
		case c == '\\' && !inSingle:
			escaped = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			have = true
		case c == '"' && !inSingle:
			inDouble = !inDouble
			have = true
		case inSingle || inDouble:
			cur.WriteByte(c)
			have = true
		case isSpace(c):
			flush()
		default:
			cur.WriteByte(c)
			have = true
		}
	}
	flush()
	return tokens
}

// checkPathsInWorkspace tokenizes command and, for every absolute-path token
// (other than the bare root "/"), resolves it and rejects it if the
// resolved path falls outside workspace. A path that exists on disk is
// resolved via filepath.EvalSymlinks (mirroring canonicalize, so a symlink
// cannot be used to point outside the workspace); a path that does not
// exist is resolved purely lexically, since canonicalize-style resolution
// cannot be performed on it and returning the raw path would let a crafted
// ".." sequence slip through as if it were still under the workspace.
func checkPathsInWorkspace(command, workspace string) error {
	for _, tok := range tokenize(command) {
		if !strings.HasPrefix(tok, "/") || tok == "/" {
			continue
		}
		resolved, err := filepath.EvalSymlinks(tok)
		if err != nil {
			resolved = lexicalNormalize(tok)
		}
		if !isWithin(resolved, workspace) {
			return fmt.Errorf("blocked: path %q is outside the workspace", tok)
		}
	}
	return nil
}

// lexicalNormalize resolves "." and ".." components in path purely
// lexically (no filesystem access), never popping a component past the
// root. Equivalent to filepath.Clean but expressed explicitly so the
// never-past-root invariant is visible at the call site.
func lexicalNormalize(path string) string {
	return filepath.Clean(path)
}

// isWithin reports whether target is equal to or lexically nested under
// root, comparing normalized path components rather than raw string
// prefixes (so "/work" does not appear to contain "/workshop").
func isWithin(target, root string) bool {
	target = filepath.Clean(target)
	root = filepath.Clean(root)
	if target == root {
		return true
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..") && rel != ".."
}
