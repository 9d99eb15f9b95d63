package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type capableTestTool struct {
	caps     ToolCapabilities
	executed bool
}

func (t *capableTestTool) Name() string        { return "workspace" }
func (t *capableTestTool) Description() string { return "capability test tool" }
func (t *capableTestTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["list", "search", "move", "delete"]}
		},
		"required": ["action"]
	}`)
}
func (t *capableTestTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	t.executed = true
	return &ToolResult{Content: "done"}, nil
}
func (t *capableTestTool) Capabilities() ToolCapabilities { return t.caps }

func multiActionCaps() ToolCapabilities {
	return ToolCapabilities{
		SubagentAccess: SubagentAccessReadOnly,
		Actions: []ToolAction{
			{Name: "list", ReadOnly: true},
			{Name: "search", ReadOnly: true},
			{Name: "move", ReadOnly: false},
			{Name: "delete", ReadOnly: false},
		},
	}
}

func TestReadOnlyWrapperNilWithoutReadOnlySurface(t *testing.T) {
	if w := NewReadOnlyToolWrapper(&integrationTool{name: "plain"}); w != nil {
		t.Error("tool without capability metadata must not be wrappable")
	}

	denied := &capableTestTool{caps: ToolCapabilities{SubagentAccess: SubagentAccessDenied}}
	if w := NewReadOnlyToolWrapper(denied); w != nil {
		t.Error("denied tool must not be wrappable")
	}

	allMutating := &capableTestTool{caps: ToolCapabilities{
		SubagentAccess: SubagentAccessFull,
		Actions: []ToolAction{
			{Name: "move", ReadOnly: false},
			{Name: "delete", ReadOnly: false},
		},
	}}
	if w := NewReadOnlyToolWrapper(allMutating); w != nil {
		t.Error("tool with no read-only actions must not be wrappable")
	}
}

func TestReadOnlyWrapperFiltersSchemaEnum(t *testing.T) {
	tool := &capableTestTool{caps: multiActionCaps()}
	wrapper := NewReadOnlyToolWrapper(tool)
	if wrapper == nil {
		t.Fatal("expected wrappable tool")
	}

	var schema struct {
		Properties struct {
			Action struct {
				Enum []string `json:"enum"`
			} `json:"action"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(wrapper.Schema(), &schema); err != nil {
		t.Fatalf("unmarshal filtered schema: %v", err)
	}
	got := strings.Join(schema.Properties.Action.Enum, ",")
	if got != "list,search" {
		t.Errorf("filtered enum = %q, want %q", got, "list,search")
	}
}

func TestReadOnlyWrapperAllowsReadOnlyAction(t *testing.T) {
	tool := &capableTestTool{caps: multiActionCaps()}
	wrapper := NewReadOnlyToolWrapper(tool)

	result, err := wrapper.Execute(context.Background(), json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("read-only action rejected: %s", result.Content)
	}
	if !tool.executed {
		t.Error("inner tool was not invoked")
	}
}

func TestReadOnlyWrapperRejectsMutatingAction(t *testing.T) {
	tool := &capableTestTool{caps: multiActionCaps()}
	wrapper := NewReadOnlyToolWrapper(tool)

	result, err := wrapper.Execute(context.Background(), json.RawMessage(`{"action":"delete"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("mutating action must be rejected even if the model bypasses the enum")
	}
	if tool.executed {
		t.Error("inner tool must not run for a rejected action")
	}
	if !strings.Contains(result.Content, "delete") {
		t.Errorf("error should name the rejected action, got %q", result.Content)
	}
}

func TestReadOnlyWrapperSingleActionToolPassesThrough(t *testing.T) {
	tool := &capableTestTool{caps: ToolCapabilities{SubagentAccess: SubagentAccessReadOnly}}
	wrapper := NewReadOnlyToolWrapper(tool)
	if wrapper == nil {
		t.Fatal("read-only single-action tool must be wrappable")
	}

	result, err := wrapper.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected rejection: %s", result.Content)
	}
}

func TestRuntimeRegisterReadOnlyTool(t *testing.T) {
	runtime := NewRuntime(&multiTurnProvider{}, newMemoryStore())

	if runtime.RegisterReadOnlyTool(&integrationTool{name: "plain"}) {
		t.Error("tool without capabilities must not register")
	}
	if _, ok := runtime.tools.Get("plain"); ok {
		t.Error("nothing should be registered for a rejected tool")
	}

	tool := &capableTestTool{caps: multiActionCaps()}
	if !runtime.RegisterReadOnlyTool(tool) {
		t.Fatal("read-only capable tool must register")
	}
	registered, ok := runtime.tools.Get("workspace")
	if !ok {
		t.Fatal("wrapped tool not found in registry")
	}
	if _, isWrapper := registered.(*ReadOnlyToolWrapper); !isWrapper {
		t.Errorf("registered tool is %T, want *ReadOnlyToolWrapper", registered)
	}
}
