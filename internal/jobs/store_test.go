package jobs

import (
	"context"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "j1", ToolName: "slow_tool", ToolCallID: "tc1", Status: StatusQueued}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	job.Status = StatusRunning
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}

	if err := store.Update(ctx, &Job{ID: "missing"}); err != ErrNotFound {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}

	list, err := store.List(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v", list, err)
	}
}
