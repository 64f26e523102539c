// Package batch implements the shared rate-limited executor for bulk ticket
// mutations.
//
// One executor loop serves every mutation kind (tag add, tag remove, macro
// apply): the caller supplies the per-item mutation closure and the executor
// owns ordering, pacing, throttle retry, and result aggregation. The control
// flow must not be duplicated per operation.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/3leaps/ticketops/pkg/ticketapi"
)

const (
	// DefaultDelay is the pause between consecutive item mutations.
	DefaultDelay = 1 * time.Second

	// DefaultCooldown is the pause before the single retry after a
	// rate-limit signal.
	DefaultCooldown = 60 * time.Second
)

// MutateFunc applies the operation-specific mutation to one item.
type MutateFunc func(ctx context.Context, id int64) error

// ProgressFunc receives the 1-based count of processed items.
type ProgressFunc func(processed, total int)

// Executor runs a batch of item mutations strictly in order, one remote
// call in flight at a time.
//
// Pacing between items uses a token-bucket limiter so time spent inside the
// mutation counts toward the delay. A detected rate-limit signal triggers a
// cooldown and exactly one retry of the same item; any other failure is
// recorded and the batch moves on.
type Executor struct {
	// Delay is the inter-item pacing interval. Zero disables pacing.
	Delay time.Duration

	// Cooldown is the wait before the single throttle retry.
	Cooldown time.Duration

	// sleep is the cooldown clock, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// New returns an executor with the given pacing. Negative values fall back
// to the defaults.
func New(delay, cooldown time.Duration) *Executor {
	if delay < 0 {
		delay = DefaultDelay
	}
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	return &Executor{
		Delay:    delay,
		Cooldown: cooldown,
		sleep:    sleepContext,
	}
}

// Run applies mutate to every id in order and returns the aggregated result.
//
// onProgress (optional) is invoked once per successfully processed item with
// the 1-based count, exactly once even when the success came from a retry.
// Cancelling ctx stops the loop between items; the in-flight item completes.
// Run never returns an error for per-item failures; ctx.Err() is returned
// only when the batch was cut short.
func (e *Executor) Run(ctx context.Context, ids []int64, mutate MutateFunc, onProgress ProgressFunc) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}

	res := &Result{}
	total := len(ids)

	var limiter *rate.Limiter
	if e.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(e.Delay), 1)
		// The bucket starts full; spend the initial token so the very
		// first inter-item gap already waits the full delay.
		limiter.Allow()
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := mutate(ctx, id)
		if err != nil && isRateLimited(err) {
			// One-shot cooldown-and-retry. The retry outcome is final.
			e.sleep(ctx, e.Cooldown)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			err = mutate(ctx, id)
		}

		if err != nil {
			res.Failed = append(res.Failed, id)
			res.Errors = append(res.Errors, fmt.Sprintf("ticket %d: %v", id, err))
		} else {
			res.Successful = append(res.Successful, id)
			if onProgress != nil {
				onProgress(i+1, total)
			}
		}

		if limiter != nil && i < total-1 {
			if err := limiter.Wait(ctx); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// isRateLimited detects the throttle signal. The structured sentinel from
// the ticket store is authoritative; the textual match is kept for errors
// that cross a serialization boundary and lose their type.
func isRateLimited(err error) bool {
	if ticketapi.IsThrottled(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
