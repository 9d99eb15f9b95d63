package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestRegistryExecuteCacheHitUnderKeyReorder(t *testing.T) {
	registry := NewToolRegistry()
	var executions int
	registry.Register(&testExecTool{
		name: "lookup",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			executions++
			return &ToolResult{Content: "value"}, nil
		},
	})
	registry.EnableResultCache(5*time.Minute, 16)
	registry.MarkCacheable("lookup")

	first, err := registry.Execute(context.Background(), "lookup", json.RawMessage(`{"a":1,"b":{"x":2,"y":3}}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	// Same arguments, different key order at every level: must be a hit.
	second, err := registry.Execute(context.Background(), "lookup", json.RawMessage(`{"b":{"y":3,"x":2},"a":1}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if executions != 1 {
		t.Errorf("tool executed %d times, want 1 (second call should be a cache hit)", executions)
	}
	if first.Content != "value" || second.Content != "value" {
		t.Errorf("contents = %q, %q", first.Content, second.Content)
	}
}

func TestRegistryExecuteDoesNotCacheErrors(t *testing.T) {
	registry := NewToolRegistry()
	var executions int
	registry.Register(&testExecTool{
		name: "flaky",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			executions++
			return &ToolResult{Content: "failed", IsError: true}, nil
		},
	})
	registry.EnableResultCache(5*time.Minute, 16)
	registry.MarkCacheable("flaky")

	for i := 0; i < 2; i++ {
		if _, err := registry.Execute(context.Background(), "flaky", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if executions != 2 {
		t.Errorf("tool executed %d times, want 2 (errors must not be cached)", executions)
	}
}

func TestRegistryExecuteUncacheableToolNeverCached(t *testing.T) {
	registry := NewToolRegistry()
	var executions int
	registry.Register(&testExecTool{
		name: "mutator",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			executions++
			return &ToolResult{Content: "done"}, nil
		},
	})
	registry.EnableResultCache(5*time.Minute, 16)

	for i := 0; i < 2; i++ {
		if _, err := registry.Execute(context.Background(), "mutator", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if executions != 2 {
		t.Errorf("tool executed %d times, want 2 (not marked cacheable)", executions)
	}
}

func TestRegistryExecuteValidatesRequiredParams(t *testing.T) {
	registry := NewToolRegistry()
	var executions int
	registry.Register(&schemaTool{execFunc: func() { executions++ }})

	result, err := registry.Execute(context.Background(), "typed", json.RawMessage(`{"count":3}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "invalid arguments") {
		t.Fatalf("missing required field must fail validation, got %+v", result)
	}
	if executions != 0 {
		t.Errorf("tool ran despite invalid arguments")
	}

	result, err = registry.Execute(context.Background(), "typed", json.RawMessage(`{"query":"hi","count":3}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("valid arguments rejected: %s", result.Content)
	}
	if executions != 1 {
		t.Errorf("tool executed %d times, want 1", executions)
	}
}

func TestRegistryExecuteRejectsWrongParamType(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&schemaTool{})

	result, err := registry.Execute(context.Background(), "typed", json.RawMessage(`{"query":42}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("type-mismatched argument must fail validation")
	}
}

type schemaTool struct {
	execFunc func()
}

func (t *schemaTool) Name() string        { return "typed" }
func (t *schemaTool) Description() string { return "schema validation test tool" }
func (t *schemaTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"count": {"type": "integer"}
		},
		"required": ["query"]
	}`)
}
func (t *schemaTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if t.execFunc != nil {
		t.execFunc()
	}
	return &ToolResult{Content: "ok"}, nil
}

func TestProcessExfiltrationDenyListBlocksCall(t *testing.T) {
	provider := &multiTurnProvider{
		responses: []multiTurnResponse{
			{
				toolCalls: []models.ToolCall{
					{ID: "tc-1", Name: "secret_reader", Input: json.RawMessage(`{}`)},
				},
			},
			{text: "understood"},
		},
	}
	store := newMemoryStore()
	runtime := NewRuntime(provider, store)

	blocked := &integrationTool{name: "secret_reader"}
	runtime.RegisterTool(blocked)
	runtime.SetExfiltrationDenyList("deny-session", []string{"secret_reader"})

	session := &models.Session{ID: "deny-session", Channel: models.ChannelTelegram}
	msg := &models.Message{Role: models.RoleUser, Content: "read the secrets"}

	chunks, err := runtime.Process(context.Background(), session, msg)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	var toolResults []*models.ToolResult
	for chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("unexpected error: %v", chunk.Error)
		}
		if chunk.ToolResult != nil {
			toolResults = append(toolResults, chunk.ToolResult)
		}
	}

	if blocked.getExecCount() != 0 {
		t.Errorf("denied tool executed %d times, want 0", blocked.getExecCount())
	}
	if len(toolResults) != 1 {
		t.Fatalf("got %d tool results, want 1", len(toolResults))
	}
	if !toolResults[0].IsError || !strings.Contains(toolResults[0].Content, "security mode") {
		t.Errorf("denial result = %+v", toolResults[0])
	}

	// Other sessions are unaffected.
	if runtime.exfilDenied("other-session", "secret_reader") {
		t.Error("deny list must be per-session")
	}
	runtime.SetExfiltrationDenyList("deny-session", nil)
	if runtime.exfilDenied("deny-session", "secret_reader") {
		t.Error("clearing the deny list must re-allow the tool")
	}
}
