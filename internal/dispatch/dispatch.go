// Package dispatch decides how a validated operation request runs: inline
// in the caller's goroutine, or deferred through the job queue.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/pkg/ops"
)

// ValidationError reports input the operation rejected. The message is
// user-facing and safe to surface verbatim.
type ValidationError struct {
	Slug    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("operation %s: %s", e.Slug, e.Message)
}

// UnknownOperationError reports a slug no registered operation claims.
type UnknownOperationError struct {
	Slug string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Slug)
}

// SubmissionError reports a background run that could not be queued. When a
// job row was created before the submission failed, JobID references it; the
// row is already marked failed.
type SubmissionError struct {
	Slug    string
	JobID   int64
	Message string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("operation %s: %s", e.Slug, e.Message)
}

// Outcome is the result of a dispatch: exactly one of Result or AsyncResult
// is set, per the Async flag.
type Outcome struct {
	Async       bool             `json:"async"`
	Result      *ops.Result      `json:"result,omitempty"`
	AsyncResult *ops.AsyncResult `json:"async_result,omitempty"`
}

// Dispatcher routes requests between inline and background execution.
//
// The policy: dry runs always execute inline regardless of size, since a
// rehearsal never mutates and enumerating is cheap. A mutating request runs
// inline while the requested item count fits the synchronous ceiling, and
// goes to the queue above it when the operation supports that.
type Dispatcher struct {
	reg *ops.Registry
	log *zap.Logger

	// newQueueID is swapped in tests for deterministic ids.
	newQueueID func() string
}

// New returns a Dispatcher over the given registry.
func New(reg *ops.Registry, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reg: reg, log: log, newQueueID: uuid.NewString}
}

// Dispatch validates the input and runs the operation under the routing
// policy. owner tags any job row created for a background run.
func (d *Dispatcher) Dispatch(ctx context.Context, slug string, input map[string]string, owner string) (*Outcome, error) {
	op := d.reg.Get(slug)
	if op == nil {
		return nil, &UnknownOperationError{Slug: slug}
	}

	if ok, msg := op.Validate(input); !ok {
		return nil, &ValidationError{Slug: slug, Message: msg}
	}

	n := requestedItems(input)

	if dryRunRequested(input) {
		d.log.Debug("dispatching dry run inline", zap.String("slug", slug), zap.Int("requested_items", n))
		return &Outcome{Result: op.Execute(ctx, input)}, nil
	}

	if n > op.ItemCeiling(true) {
		return nil, &ValidationError{
			Slug:    slug,
			Message: fmt.Sprintf("requested %d items exceeds the maximum of %d", n, op.ItemCeiling(true)),
		}
	}

	if op.SupportsAsync() && n > op.ItemCeiling(false) {
		queueID := d.newQueueID()
		d.log.Info("dispatching background run",
			zap.String("slug", slug),
			zap.String("queue_id", queueID),
			zap.Int("requested_items", n))
		ar := op.ExecuteAsync(ctx, input, queueID, owner)
		if !ar.Success {
			return nil, &SubmissionError{Slug: slug, JobID: ar.JobID, Message: ar.Message}
		}
		return &Outcome{Async: true, AsyncResult: ar}, nil
	}

	if n > op.ItemCeiling(false) {
		return nil, &ValidationError{
			Slug:    slug,
			Message: fmt.Sprintf("requested %d items exceeds the inline maximum of %d", n, op.ItemCeiling(false)),
		}
	}

	d.log.Debug("dispatching inline run",
		zap.String("slug", slug),
		zap.Int("requested_items", n))
	return &Outcome{Result: op.Execute(ctx, input)}, nil
}

// requestedItems reads the declared item bound from the input. Operations
// without a ticket_limit field (pure reads) dispatch inline.
func requestedItems(input map[string]string) int {
	raw := strings.TrimSpace(input["ticket_limit"])
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func dryRunRequested(input map[string]string) bool {
	switch strings.ToLower(strings.TrimSpace(input["dry_run"])) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
