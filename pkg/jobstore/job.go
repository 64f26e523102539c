// Package jobstore persists asynchronous bulk-run jobs in SQLite and owns
// their lifecycle state machine.
//
// A job row is created once, atomically with queue submission, and from then
// on is only mutated through the Store transition methods. Terminal states
// (completed, failed, cancelled) are final: no transition leaves them.
package jobstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
//
// NOTE: These values are persisted and are part of the stable schema.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one asynchronous bulk run.
type Job struct {
	// ID is the internal row id.
	ID int64 `json:"id"`

	// QueueID is the external task-queue identifier. Unique; used for
	// correlation and queue-side revocation.
	QueueID string `json:"queue_id"`

	// Slug identifies the operation that created this job.
	Slug string `json:"slug"`

	Status         Status `json:"status"`
	Progress       int    `json:"progress"`
	TotalItems     int    `json:"total_items"`
	ProcessedItems int    `json:"processed_items"`

	// ResultData is the JSON result payload, present only on completion.
	ResultData string `json:"-"`

	// ErrorMessage is present only on failure.
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Owner is the principal that submitted the run.
	Owner string `json:"owner"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status.Terminal()
}

// Result decodes the stored result payload. ok is false when no payload is
// stored or it fails to decode.
func (j *Job) Result() (map[string]any, bool) {
	if j.ResultData == "" {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(j.ResultData), &out); err != nil {
		return nil, false
	}
	return out, true
}

// Elapsed renders the job's wall-clock duration: completion time against
// creation for finished jobs, now against start for running ones.
func (j *Job) Elapsed(now time.Time) string {
	var delta time.Duration
	switch {
	case j.CompletedAt != nil:
		delta = j.CompletedAt.Sub(j.CreatedAt)
	case j.StartedAt != nil:
		delta = now.Sub(*j.StartedAt)
	default:
		return "not started"
	}
	return formatElapsed(delta)
}

// formatElapsed renders largest-unit-first, omitting zero leading units.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// progressFor derives the progress percentage from the counters.
func progressFor(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return processed * 100 / total
}
