package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProc_RunsSubmittedTask(t *testing.T) {
	q := NewInProc(2, 4, nil)
	defer q.Close()

	done := make(chan struct{})
	err := q.Submit("t-1", func(ctx context.Context) {
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestInProc_DuplicateIDRejected(t *testing.T) {
	q := NewInProc(1, 4, nil)
	defer q.Close()

	block := make(chan struct{})
	require.NoError(t, q.Submit("t-1", func(ctx context.Context) {
		<-block
	}))

	err := q.Submit("t-1", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrDuplicateID)
	close(block)
}

func TestInProc_RevokePendingTaskSkipsIt(t *testing.T) {
	// One worker, held busy so the second task stays pending.
	q := NewInProc(1, 4, nil)
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit("busy", func(ctx context.Context) {
		close(started)
		<-block
	}))
	<-started

	var ran atomic.Bool
	require.NoError(t, q.Submit("pending", func(ctx context.Context) {
		ran.Store(true)
	}))

	require.NoError(t, q.Revoke("pending"))
	close(block)

	// Give the worker time to drain the revoked entry.
	assert.Eventually(t, func() bool {
		return q.Revoke("pending") != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, ran.Load(), "revoked pending task must not run")
}

func TestInProc_RevokeRunningTaskCancelsContext(t *testing.T) {
	q := NewInProc(1, 0, nil)
	defer q.Close()

	started := make(chan struct{})
	stopped := make(chan struct{})
	require.NoError(t, q.Submit("t-1", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	}))

	<-started
	require.NoError(t, q.Revoke("t-1"))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("running task did not observe cancellation")
	}
}

func TestInProc_RevokeUnknownID(t *testing.T) {
	q := NewInProc(1, 0, nil)
	defer q.Close()
	assert.ErrorIs(t, q.Revoke("nope"), ErrUnknownID)
}

func TestInProc_CloseRejectsSubmissions(t *testing.T) {
	q := NewInProc(1, 0, nil)
	q.Close()
	err := q.Submit("t-1", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestInProc_AtMostOneWorkerPerTask(t *testing.T) {
	q := NewInProc(4, 16, nil)
	defer q.Close()

	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		id := id
		require.NoError(t, q.Submit(id, func(ctx context.Context) {
			defer wg.Done()
			mu.Lock()
			counts[id]++
			mu.Unlock()
		}))
	}

	wg.Wait()
	for id, n := range counts {
		assert.Equal(t, 1, n, "task %s ran more than once", id)
	}
	assert.Len(t, counts, 5)
}
