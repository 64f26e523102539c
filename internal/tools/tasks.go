package tools

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/ops"
)

type countFunc func(ctx context.Context, input map[string]string) (int, error)

type runFunc func(ctx context.Context, input map[string]string, onProgress func(processed, total int)) *ops.Result

// submitAsync creates the job row and hands the deferred run to the queue.
// The job row exists before the worker starts, so a status poll issued
// immediately after submission always finds it. A failed submission marks
// the row failed rather than leaving it pending forever.
func submitAsync(ctx context.Context, deps Deps, slug, queueID, owner string, input map[string]string, count countFunc, run runFunc) *ops.AsyncResult {
	if deps.Jobs == nil || deps.Queue == nil {
		return &ops.AsyncResult{Success: false, Message: "background execution is not configured"}
	}

	total, err := count(ctx, input)
	if err != nil {
		return &ops.AsyncResult{Success: false, Message: fmt.Sprintf("Error sizing job: %v", err)}
	}

	job, err := deps.Jobs.Create(ctx, queueID, slug, total, owner)
	if err != nil {
		return &ops.AsyncResult{Success: false, Message: fmt.Sprintf("Error creating job: %v", err)}
	}

	log := deps.logger().With(zap.String("slug", slug), zap.String("queue_id", queueID), zap.Int64("job_id", job.ID))

	task := func(taskCtx context.Context) {
		runJob(taskCtx, deps, log, job.ID, input, run)
	}
	if err := deps.Queue.Submit(queueID, task); err != nil {
		msg := fmt.Sprintf("queue submission failed: %v", err)
		if ferr := deps.Jobs.Fail(context.Background(), job.ID, msg); ferr != nil {
			log.Warn("mark job failed after rejected submission", zap.Error(ferr))
		}
		return &ops.AsyncResult{Success: false, JobID: job.ID, Message: msg}
	}

	log.Info("job queued", zap.Int("total_items", total))
	return &ops.AsyncResult{
		Success: true,
		QueueID: queueID,
		JobID:   job.ID,
		Message: fmt.Sprintf("Processing %d tickets in the background", total),
	}
}

// runJob is the deferred unit of work. Store writes use a background
// context so a revoked task can still record its terminal state.
func runJob(ctx context.Context, deps Deps, log *zap.Logger, jobID int64, input map[string]string, run runFunc) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			if err := deps.Jobs.Fail(context.Background(), jobID, fmt.Sprintf("internal error: %v", r)); err != nil {
				log.Warn("mark panicked job failed", zap.Error(err))
			}
		}
	}()

	// Mark the row running before the first item, so polls during a slow
	// or failing first mutation see active processing rather than pending.
	if err := deps.Jobs.Advance(context.Background(), jobID, 0); err != nil && !jobstore.IsStateError(err) {
		log.Warn("mark job running", zap.Error(err))
	}

	onProgress := func(processed, total int) {
		if err := deps.Jobs.Advance(context.Background(), jobID, processed); err != nil {
			log.Warn("advance job progress", zap.Error(err))
		}
	}

	result := run(ctx, input, onProgress)

	if ctx.Err() != nil {
		// Revoked or shut down mid-run. Terminal rows keep their state.
		if err := deps.Jobs.Cancel(context.Background(), jobID); err != nil && !jobstore.IsStateError(err) {
			log.Warn("mark job cancelled", zap.Error(err))
		}
		log.Info("job cancelled", zap.NamedError("cause", ctx.Err()))
		return
	}

	if !result.Success {
		if err := deps.Jobs.Fail(context.Background(), jobID, result.Message); err != nil {
			log.Warn("mark job failed", zap.Error(err))
		}
		log.Info("job failed", zap.String("message", result.Message))
		return
	}

	if err := deps.Jobs.Complete(context.Background(), jobID, result); err != nil {
		if errors.Is(err, jobstore.ErrJobState) {
			return
		}
		log.Warn("mark job completed", zap.Error(err))
		return
	}
	log.Info("job completed", zap.String("message", result.Message))
}
