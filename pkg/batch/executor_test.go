package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/ticketops/pkg/ticketapi"
)

// newTestExecutor returns an executor with zero pacing and a recording
// cooldown clock so tests never actually sleep.
func newTestExecutor() (*Executor, *[]time.Duration) {
	slept := &[]time.Duration{}
	e := New(0, DefaultCooldown)
	e.sleep = func(_ context.Context, d time.Duration) {
		*slept = append(*slept, d)
	}
	return e, slept
}

func TestRun_AllSucceed(t *testing.T) {
	e, slept := newTestExecutor()

	var order []int64
	var progress []int
	res, err := e.Run(context.Background(), []int64{3, 1, 2}, func(_ context.Context, id int64) error {
		order = append(order, id)
		return nil
	}, func(processed, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, processed)
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, order, "items must run in input order")
	assert.Equal(t, []int64{3, 1, 2}, res.Successful)
	assert.Empty(t, res.Failed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Empty(t, *slept, "no cooldown without a throttle signal")
}

func TestRun_ThrottleRetrySucceeds(t *testing.T) {
	e, slept := newTestExecutor()

	attempts := map[int64]int{}
	var progress []int
	res, err := e.Run(context.Background(), []int64{10, 20, 30}, func(_ context.Context, id int64) error {
		attempts[id]++
		if id == 20 && attempts[id] == 1 {
			return &ticketapi.APIError{Op: "UpdateTicket", TicketID: id, Err: ticketapi.ErrThrottled}
		}
		return nil
	}, func(processed, _ int) {
		progress = append(progress, processed)
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, res.Successful, "retried item counts as success")
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, attempts[20], "exactly one retry")
	assert.Equal(t, []int{1, 2, 3}, progress, "callback fires once per item, not twice for the retry")
	require.Len(t, *slept, 1)
	assert.Equal(t, DefaultCooldown, (*slept)[0])
}

func TestRun_ThrottleRetryFails(t *testing.T) {
	e, slept := newTestExecutor()

	res, err := e.Run(context.Background(), []int64{10, 20}, func(_ context.Context, id int64) error {
		if id == 20 {
			return fmt.Errorf("update: %w", ticketapi.ErrThrottled)
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []int64{10}, res.Successful)
	assert.Equal(t, []int64{20}, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "ticket 20")
	assert.Len(t, *slept, 1, "only one cooldown even when the retry fails")
}

func TestRun_NonThrottleFailureNoRetry(t *testing.T) {
	e, slept := newTestExecutor()

	attempts := 0
	res, err := e.Run(context.Background(), []int64{7}, func(_ context.Context, id int64) error {
		attempts++
		return errors.New("boom")
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "no retry for non-throttle failures")
	assert.Empty(t, res.Successful)
	assert.Equal(t, []int64{7}, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.NotEmpty(t, res.Errors[0])
	assert.Empty(t, *slept, "no cooldown for non-throttle failures")
	assert.True(t, res.TotalFailure())
}

func TestRun_TextualThrottleDetection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"structured sentinel", ticketapi.ErrThrottled, true},
		{"http status text", errors.New("API returned 429 Too Many Requests"), true},
		{"rate limit text", errors.New("Rate Limit exceeded, slow down"), true},
		{"plain failure", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRateLimited(tt.err))
		})
	}
}

func TestRun_ContextCancelledStopsBetweenItems(t *testing.T) {
	e, _ := newTestExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	var processed []int64
	res, err := e.Run(ctx, []int64{1, 2, 3}, func(_ context.Context, id int64) error {
		processed = append(processed, id)
		if id == 2 {
			cancel()
		}
		return nil
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{1, 2}, processed, "in-flight item completes, the rest never start")
	assert.Equal(t, []int64{1, 2}, res.Successful)
}

func TestRun_DelayPacing(t *testing.T) {
	e := New(20*time.Millisecond, DefaultCooldown)

	start := time.Now()
	res, err := e.Run(context.Background(), []int64{1, 2, 3}, func(_ context.Context, _ int64) error {
		return nil
	}, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, res.Successful, 3)
	// Two inter-item gaps; no delay after the last item.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestRun_DelayPacingFirstGap(t *testing.T) {
	e := New(20*time.Millisecond, DefaultCooldown)

	start := time.Now()
	res, err := e.Run(context.Background(), []int64{1, 2}, func(_ context.Context, _ int64) error {
		return nil
	}, nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, res.Successful, 2)
	// The gap between the first and second items must already be paced.
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestRun_EmptyBatch(t *testing.T) {
	e, _ := newTestExecutor()
	res, err := e.Run(context.Background(), nil, func(_ context.Context, _ int64) error {
		t.Fatal("mutate must not be called for an empty batch")
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Successful)
	assert.Empty(t, res.Failed)
	assert.False(t, res.TotalFailure())
}
