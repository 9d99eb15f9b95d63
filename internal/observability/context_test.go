package observability

import (
	"context"
	"testing"
)

func TestContextIDsRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = AddRunID(ctx, "run-1")
	ctx = AddSessionID(ctx, "sess-1")
	ctx = AddMessageID(ctx, "msg-1")
	ctx = AddAgentID(ctx, "main")
	ctx = AddToolCallID(ctx, "tc-1")

	if GetRunID(ctx) != "run-1" || GetSessionID(ctx) != "sess-1" ||
		GetMessageID(ctx) != "msg-1" || GetAgentID(ctx) != "main" ||
		GetToolCallID(ctx) != "tc-1" {
		t.Errorf("context IDs did not round-trip")
	}
}

func TestContextIDsAbsent(t *testing.T) {
	if GetRunID(context.Background()) != "" {
		t.Error("missing run ID should be empty")
	}
}
