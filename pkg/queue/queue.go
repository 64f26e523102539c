// Package queue defines the task-queue collaborator used for asynchronous
// bulk runs, plus an in-process implementation.
package queue

import (
	"context"
	"errors"
)

// Task is one deferred unit of work. The context is cancelled when the task
// is revoked or the queue shuts down; a task already past a cancellation
// check may finish its current item before stopping. Revocation is
// cooperative, not immediate.
type Task func(ctx context.Context)

// Sentinel errors for queue operations.
var (
	// ErrQueueClosed indicates the queue no longer accepts submissions.
	ErrQueueClosed = errors.New("queue closed")

	// ErrDuplicateID indicates the external id is already submitted.
	ErrDuplicateID = errors.New("duplicate task id")

	// ErrUnknownID indicates no queued or running task carries the id.
	ErrUnknownID = errors.New("unknown task id")
)

// Queue accepts deferred units of work keyed by an external identifier.
//
// The identifier doubles as the job correlation key: exactly one worker
// processes a given id, so a job has at most one active worker by
// construction.
type Queue interface {
	// Submit enqueues the task under the given external id.
	Submit(id string, task Task) error

	// Revoke cancels the task with the given id. A pending task is
	// dropped before it starts; a running task has its context cancelled.
	Revoke(id string) error
}
