// Package memorysearch exposes the full-text memory index to the agent
// as a lexical search tool.
package memorysearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/memory/fts"
)

// DefaultLimit is the result count when the model does not ask for one.
const DefaultLimit = 5

// MaxLimit bounds the result count a single call may request.
const MaxLimit = 20

// Tool searches the memory store with lexical full-text queries.
type Tool struct {
	store *fts.Store
}

// NewTool creates a memory search tool over the given store.
func NewTool(store *fts.Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string { return "memory_search" }

func (t *Tool) Description() string {
	return "Search long-term memory notes with a full-text query. Returns the most relevant stored snippets."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search terms."},
			"limit": {"type": "integer", "description": "Maximum results (default 5, max 20)."}
		},
		"required": ["query"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "memory store unavailable", IsError: true}, nil
	}
	var input struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}, nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	entries, err := t.store.Search(query, limit, nil)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}
	if len(entries) == 0 {
		return &agent.ToolResult{Content: "No matching memories."}, nil
	}

	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", entry.SourceKey, entry.Content)
	}
	return &agent.ToolResult{Content: b.String()}, nil
}
