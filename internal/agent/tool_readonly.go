package agent

import (
	"context"
	"encoding/json"
)

// SubagentAccess describes how much of a tool's surface a subagent may use.
type SubagentAccess string

const (
	SubagentAccessFull     SubagentAccess = "full"
	SubagentAccessReadOnly SubagentAccess = "read_only"
	SubagentAccessDenied   SubagentAccess = "denied"
)

// ToolAction names one action a multi-action tool exposes (e.g. the
// workspace tool's "list"/"move"/"delete" actions) along with whether that
// specific action only reads state.
type ToolAction struct {
	Name     string
	ReadOnly bool
}

// ToolCapabilities describes what a tool is allowed to do, independent of
// its JSON schema: whether it is a built-in, whether it reaches the
// network, what subagent access level it permits, and (for multi-action
// tools) which of its actions are read-only.
type ToolCapabilities struct {
	BuiltIn         bool
	NetworkOutbound bool
	SubagentAccess  SubagentAccess
	Actions         []ToolAction
}

// CapableTool is implemented by tools that can report their capabilities.
// Tools that don't implement it are treated as having SubagentAccessFull.
type CapableTool interface {
	Tool
	Capabilities() ToolCapabilities
}

// actionParam is the conventional parameter name multi-action tools use to
// select which action they perform (see internal/tools/exec's ProcessTool,
// internal/tools/workspace's WorkspaceTool).
const actionParam = "action"

// ReadOnlyToolWrapper wraps a tool so that only its read-only surface is
// reachable: single-action tools are rejected outright unless their
// capabilities declare SubagentAccessReadOnly or SubagentAccessFull with no
// actions listed; multi-action tools (capabilities.Actions non-empty) are
// filtered action-by-action against the wrapped tool's declared
// read-only actions.
type ReadOnlyToolWrapper struct {
	inner CapableTool
}

// NewReadOnlyToolWrapper wraps tool for read-only use. Returns nil when the
// tool exposes no read-only surface at all: it does not implement
// CapableTool (no capability metadata to trust), declares
// SubagentAccessDenied, or lists actions none of which are read-only.
func NewReadOnlyToolWrapper(tool Tool) *ReadOnlyToolWrapper {
	capable, ok := tool.(CapableTool)
	if !ok {
		return nil
	}
	caps := capable.Capabilities()
	if caps.SubagentAccess == SubagentAccessDenied {
		return nil
	}
	if len(caps.Actions) > 0 {
		hasReadOnly := false
		for _, a := range caps.Actions {
			if a.ReadOnly {
				hasReadOnly = true
				break
			}
		}
		if !hasReadOnly {
			return nil
		}
	} else if caps.SubagentAccess != SubagentAccessReadOnly && caps.SubagentAccess != SubagentAccessFull {
		return nil
	}
	return &ReadOnlyToolWrapper{inner: capable}
}

func (w *ReadOnlyToolWrapper) Name() string {
	if w.inner == nil {
		return ""
	}
	return w.inner.Name()
}

func (w *ReadOnlyToolWrapper) Description() string {
	if w.inner == nil {
		return ""
	}
	return w.inner.Description()
}

// Schema returns the wrapped tool's schema with the action enum narrowed to
// the read-only subset, so the model never even sees mutating actions. The
// Execute-side action check stays in place for calls that ignore the enum.
func (w *ReadOnlyToolWrapper) Schema() json.RawMessage {
	if w.inner == nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	raw := w.inner.Schema()
	caps := w.inner.Capabilities()
	if len(caps.Actions) == 0 {
		return raw
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return raw
	}
	props, _ := schema["properties"].(map[string]interface{})
	actionProp, _ := props[actionParam].(map[string]interface{})
	if actionProp == nil {
		return raw
	}

	readOnly := make([]interface{}, 0, len(caps.Actions))
	for _, a := range caps.Actions {
		if a.ReadOnly {
			readOnly = append(readOnly, a.Name)
		}
	}
	if len(readOnly) == 0 {
		return raw
	}
	actionProp["enum"] = readOnly

	filtered, err := json.Marshal(schema)
	if err != nil {
		return raw
	}
	return filtered
}

func (w *ReadOnlyToolWrapper) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if w.inner == nil {
		return &ToolResult{Content: "tool has no declared capabilities; read-only access denied", IsError: true}, nil
	}

	caps := w.inner.Capabilities()
	if caps.SubagentAccess == SubagentAccessDenied {
		return &ToolResult{Content: "tool is not accessible to subagents", IsError: true}, nil
	}

	if len(caps.Actions) == 0 {
		if caps.SubagentAccess != SubagentAccessReadOnly && caps.SubagentAccess != SubagentAccessFull {
			return &ToolResult{Content: "tool is not marked read-only accessible", IsError: true}, nil
		}
		return w.inner.Execute(ctx, params)
	}

	var input map[string]interface{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return &ToolResult{Content: "invalid arguments", IsError: true}, nil
		}
	}
	action, _ := input[actionParam].(string)

	for _, a := range caps.Actions {
		if a.Name == action {
			if !a.ReadOnly {
				return &ToolResult{Content: "action \"" + action + "\" is not read-only", IsError: true}, nil
			}
			return w.inner.Execute(ctx, params)
		}
	}
	return &ToolResult{Content: "unknown or unsupported action for read-only access", IsError: true}, nil
}
