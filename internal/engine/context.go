package engine

import (
	"sync"

	"github.com/harrison/conductor/internal/models"
)

// ExecutionContext is the Engine's explicitly owned mutable state: the
// growing event log, the current checkpoint pointer, and the
// completed/failed/skipped counters threading through one run. This
// replaces the ad hoc state a naive port would keep directly on the
// Engine value, so a run can be inspected or driven concurrently with
// its own cancellation without racing on private fields.
type ExecutionContext struct {
	mu sync.Mutex

	RunID             string
	EventLog          []models.ExecutionRecord
	CurrentCheckpoint *models.Checkpoint
	Completed         int
	Failed            int
	Skipped           int
}

func newExecutionContext() *ExecutionContext {
	return &ExecutionContext{}
}

func (c *ExecutionContext) appendRecord(r models.ExecutionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EventLog = append(c.EventLog, r)
}

func (c *ExecutionContext) snapshotEventLog() []models.ExecutionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ExecutionRecord, len(c.EventLog))
	copy(out, c.EventLog)
	return out
}

func (c *ExecutionContext) setCheckpoint(cp *models.Checkpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentCheckpoint = cp
}
