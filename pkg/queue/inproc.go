package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// InProc is a bounded in-process task queue backed by a fixed worker pool.
//
// Submissions block once the buffer is full, providing backpressure to the
// dispatch layer. Each task gets its own context derived from the queue's
// root context; Revoke cancels it.
type InProc struct {
	log    *zap.Logger
	tasks  chan *entry
	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	id     string
	task   Task
	ctx    context.Context
	cancel context.CancelFunc
}

// NewInProc starts a queue with the given worker count and buffer size.
// Zero or negative values fall back to 1 worker and an unbuffered channel.
func NewInProc(workers, buffer int, log *zap.Logger) *InProc {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	root, cancel := context.WithCancel(context.Background())
	q := &InProc{
		log:     log,
		tasks:   make(chan *entry, buffer),
		root:    root,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker(i)
	}
	return q
}

// Submit implements Queue.
func (q *InProc) Submit(id string, task Task) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("task id is required")
	}
	if task == nil {
		return fmt.Errorf("task is nil")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, ok := q.entries[id]; ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	ctx, cancel := context.WithCancel(q.root)
	e := &entry{id: id, task: task, ctx: ctx, cancel: cancel}
	q.entries[id] = e
	q.mu.Unlock()

	select {
	case q.tasks <- e:
		return nil
	case <-q.root.Done():
		q.forget(id)
		return ErrQueueClosed
	}
}

// Revoke implements Queue.
func (q *InProc) Revoke(id string) error {
	q.mu.Lock()
	e, ok := q.entries[id]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	e.cancel()
	q.log.Info("task revoked", zap.String("task_id", id))
	return nil
}

// Close stops accepting submissions, cancels everything outstanding, and
// waits for the workers to exit.
func (q *InProc) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *InProc) worker(n int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.root.Done():
			return
		case e := <-q.tasks:
			if e.ctx.Err() != nil {
				// Revoked (or queue shut down) before it started.
				q.forget(e.id)
				continue
			}
			q.log.Debug("task started",
				zap.String("task_id", e.id),
				zap.Int("worker", n))
			e.task(e.ctx)
			e.cancel()
			q.forget(e.id)
			q.log.Debug("task finished", zap.String("task_id", e.id))
		}
	}
}

func (q *InProc) forget(id string) {
	q.mu.Lock()
	delete(q.entries, id)
	q.mu.Unlock()
}
