// Package observability carries per-run correlation IDs on the context so
// log lines and tool events from one turn can be tied together.
package observability

import "context"

type contextKey string

const (
	runIDKey      contextKey = "run_id"
	sessionIDKey  contextKey = "session_id"
	messageIDKey  contextKey = "message_id"
	agentIDKey    contextKey = "agent_id"
	toolCallIDKey contextKey = "tool_call_id"
)

// AddRunID attaches a run ID to the context.
func AddRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID returns the run ID from the context, or "" when absent.
func GetRunID(ctx context.Context) string { return get(ctx, runIDKey) }

// AddSessionID attaches a session ID to the context.
func AddSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetSessionID returns the session ID from the context, or "" when absent.
func GetSessionID(ctx context.Context) string { return get(ctx, sessionIDKey) }

// AddMessageID attaches a message ID to the context.
func AddMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDKey, messageID)
}

// GetMessageID returns the message ID from the context, or "" when absent.
func GetMessageID(ctx context.Context) string { return get(ctx, messageIDKey) }

// AddAgentID attaches an agent ID to the context.
func AddAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

// GetAgentID returns the agent ID from the context, or "" when absent.
func GetAgentID(ctx context.Context) string { return get(ctx, agentIDKey) }

// AddToolCallID attaches a tool call ID to the context.
func AddToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, toolCallID)
}

// GetToolCallID returns the tool call ID from the context, or "" when absent.
func GetToolCallID(ctx context.Context) string { return get(ctx, toolCallIDKey) }

func get(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
