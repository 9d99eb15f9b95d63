package cron

import (
	"sync"
	"time"
)

// DLQMaxEntries caps the dead-letter queue at a rolling window of the
// most recent failures; older entries are evicted first.
const DLQMaxEntries = 100

// DLQStatus is the lifecycle state of a dead-letter entry.
type DLQStatus string

const (
	DLQStatusPendingRetry DLQStatus = "pending_retry"
	DLQStatusReplayed     DLQStatus = "replayed"
	DLQStatusDiscarded    DLQStatus = "discarded"
)

// DLQEntry records one failed job callback invocation.
type DLQEntry struct {
	ID              int64     `json:"id"`
	JobID           string    `json:"job_id"`
	JobName         string    `json:"job_name"`
	PayloadSnapshot string    `json:"payload_snapshot"`
	ErrorMessage    string    `json:"error_message"`
	RetryCount      int       `json:"retry_count"`
	Status          DLQStatus `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// DeadLetterQueue is a capped, in-memory ring of failed executions,
// mirrored to the on-disk job store so it survives restarts.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []*DLQEntry
	nextID  int64
}

// NewDeadLetterQueue creates an empty DLQ.
func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{}
}

// Add appends a new pending-retry entry, evicting the oldest entry if the
// queue is already at DLQMaxEntries.
func (q *DeadLetterQueue) Add(jobID, jobName, payloadSnapshot, errMsg string, now time.Time) *DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	entry := &DLQEntry{
		ID:              q.nextID,
		JobID:           jobID,
		JobName:         jobName,
		PayloadSnapshot: payloadSnapshot,
		ErrorMessage:    errMsg,
		RetryCount:      0,
		Status:          DLQStatusPendingRetry,
		CreatedAt:       now,
	}
	q.entries = append(q.entries, entry)
	if len(q.entries) > DLQMaxEntries {
		q.entries = q.entries[len(q.entries)-DLQMaxEntries:]
	}
	return entry
}

// List returns entries, optionally filtered by status.
func (q *DeadLetterQueue) List(status DLQStatus) []*DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*DLQEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if status != "" && e.Status != status {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	return out
}

// MarkReplayed transitions an entry to replayed and bumps its retry count.
func (q *DeadLetterQueue) MarkReplayed(id int64) bool {
	return q.setStatus(id, DLQStatusReplayed, true)
}

// Discard transitions an entry to discarded.
func (q *DeadLetterQueue) Discard(id int64) bool {
	return q.setStatus(id, DLQStatusDiscarded, false)
}

func (q *DeadLetterQueue) setStatus(id int64, status DLQStatus, bumpRetry bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.ID == id {
			e.Status = status
			if bumpRetry {
				e.RetryCount++
			}
			return true
		}
	}
	return false
}

// Clear removes entries matching status (all entries if status is empty),
// returning the number removed.
func (q *DeadLetterQueue) Clear(status DLQStatus) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if status == "" {
		n := len(q.entries)
		q.entries = nil
		return n
	}
	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if e.Status == status {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return removed
}

// snapshot returns the entries slice for serialization; callers must hold
// no other lock on q while iterating the result.
func (q *DeadLetterQueue) snapshot() []*DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*DLQEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// restore replaces the queue contents, used when loading from disk.
func (q *DeadLetterQueue) restore(entries []*DLQEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = entries
	var maxID int64
	for _, e := range entries {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	q.nextID = maxID
}
