package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ticketops/pkg/ops"
)

// routedOp records which execution path the dispatcher chose.
type routedOp struct {
	ops.Base

	async       bool
	submitFails bool

	executed   atomic.Int64
	asyncCalls atomic.Int64
	queueIDs   []string
	owners     []string
}

func (o *routedOp) Descriptor() ops.Descriptor {
	return ops.Descriptor{Name: "Routed", Slug: "routed", Category: "Test", Async: o.async}
}

func (o *routedOp) FormFields(ctx context.Context) []ops.FormField { return nil }

func (o *routedOp) Validate(input map[string]string) (bool, string) {
	if input["reject"] != "" {
		return false, "rejected by test"
	}
	return true, ""
}

func (o *routedOp) Execute(ctx context.Context, input map[string]string) *ops.Result {
	o.executed.Add(1)
	return &ops.Result{Success: true, Message: "inline"}
}

func (o *routedOp) SupportsAsync() bool { return o.async }

func (o *routedOp) ExecuteAsync(ctx context.Context, input map[string]string, queueID, owner string) *ops.AsyncResult {
	o.asyncCalls.Add(1)
	o.queueIDs = append(o.queueIDs, queueID)
	o.owners = append(o.owners, owner)
	if o.submitFails {
		return &ops.AsyncResult{Success: false, JobID: 7, Message: "queue submission failed: queue is closed"}
	}
	return &ops.AsyncResult{Success: true, QueueID: queueID, JobID: 1, Message: "queued"}
}

func newTestDispatcher(t *testing.T, op *routedOp) *Dispatcher {
	t.Helper()
	reg := ops.NewRegistry()
	require.NoError(t, reg.Register(op))
	d := New(reg, nil)
	var seq atomic.Int64
	d.newQueueID = func() string { return fmt.Sprintf("q-%d", seq.Add(1)) }
	return d
}

func TestDispatchUnknownSlug(t *testing.T) {
	d := newTestDispatcher(t, &routedOp{})

	_, err := d.Dispatch(context.Background(), "nope", nil, "tester")
	var uerr *UnknownOperationError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "nope", uerr.Slug)
}

func TestDispatchValidationFailureHasNoSideEffects(t *testing.T) {
	op := &routedOp{async: true}
	d := newTestDispatcher(t, op)

	_, err := d.Dispatch(context.Background(), "routed", map[string]string{"reject": "yes"}, "tester")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rejected by test", verr.Message)
	assert.Zero(t, op.executed.Load())
	assert.Zero(t, op.asyncCalls.Load())
}

func TestDispatchSmallRunsInline(t *testing.T) {
	op := &routedOp{async: true}
	d := newTestDispatcher(t, op)

	out, err := d.Dispatch(context.Background(), "routed", map[string]string{"ticket_limit": "500"}, "tester")
	require.NoError(t, err)
	assert.False(t, out.Async)
	require.NotNil(t, out.Result)
	assert.Equal(t, int64(1), op.executed.Load())
	assert.Zero(t, op.asyncCalls.Load())
}

func TestDispatchLargeRunGoesAsync(t *testing.T) {
	op := &routedOp{async: true}
	d := newTestDispatcher(t, op)

	out, err := d.Dispatch(context.Background(), "routed", map[string]string{"ticket_limit": "10000"}, "alice")
	require.NoError(t, err)
	assert.True(t, out.Async)
	require.NotNil(t, out.AsyncResult)
	assert.Equal(t, "q-1", out.AsyncResult.QueueID)
	assert.Equal(t, int64(1), op.asyncCalls.Load())
	assert.Zero(t, op.executed.Load())
	assert.Equal(t, []string{"alice"}, op.owners)
}

func TestDispatchDryRunAlwaysInline(t *testing.T) {
	op := &routedOp{async: true}
	d := newTestDispatcher(t, op)

	out, err := d.Dispatch(context.Background(), "routed", map[string]string{
		"ticket_limit": "100000",
		"dry_run":      "on",
	}, "tester")
	require.NoError(t, err)
	assert.False(t, out.Async)
	assert.Equal(t, int64(1), op.executed.Load())
	assert.Zero(t, op.asyncCalls.Load(), "dry run must never create a job")
}

func TestDispatchOverAsyncCeilingRejected(t *testing.T) {
	op := &routedOp{async: true}
	d := newTestDispatcher(t, op)

	_, err := d.Dispatch(context.Background(), "routed", map[string]string{"ticket_limit": "50001"}, "tester")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "exceeds the maximum")
	assert.Zero(t, op.asyncCalls.Load())
}

func TestDispatchSyncOnlyOverCeilingRejected(t *testing.T) {
	op := &routedOp{async: false}
	d := newTestDispatcher(t, op)

	_, err := d.Dispatch(context.Background(), "routed", map[string]string{"ticket_limit": "501"}, "tester")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "inline maximum")
	assert.Zero(t, op.executed.Load())
}

func TestDispatchFreshQueueIDPerRun(t *testing.T) {
	op := &routedOp{async: true}
	d := newTestDispatcher(t, op)

	for i := 0; i < 2; i++ {
		_, err := d.Dispatch(context.Background(), "routed", map[string]string{"ticket_limit": "10000"}, "tester")
		require.NoError(t, err)
	}
	require.Len(t, op.queueIDs, 2)
	assert.NotEqual(t, op.queueIDs[0], op.queueIDs[1])
}

func TestDispatchFailedSubmissionIsAnError(t *testing.T) {
	op := &routedOp{async: true, submitFails: true}
	d := newTestDispatcher(t, op)

	out, err := d.Dispatch(context.Background(), "routed", map[string]string{"ticket_limit": "10000"}, "tester")
	assert.Nil(t, out, "a rejected submission never yields an accepted outcome")

	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "routed", serr.Slug)
	assert.Equal(t, int64(7), serr.JobID)
	assert.Contains(t, serr.Message, "queue submission failed")
}
