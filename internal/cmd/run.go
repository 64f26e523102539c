package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/internal/dispatch"
	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/manifest"
	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/queue"
)

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Run a bulk operation described by a manifest",
	Long: `Load a run manifest, validate it, and execute the operation it
names. Small runs execute inline and print their result; large runs go to
the background queue and this command waits on the job, printing progress
until it reaches a terminal state.

Interrupting a waiting run requests cancellation of the background job.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "Output the result as JSON")
	runCmd.Flags().Duration("poll-interval", time.Second, "Progress poll interval for background runs")
	runCmd.Flags().String("export", "", "Export the result in this format (csv or json)")
	runCmd.Flags().String("output", "", "Export destination path (default: exporter's suggested filename)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := manifest.Load(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	seed, _ := cmd.Flags().GetString("seed")
	if seed == "" {
		seed = m.Seed
	}

	a, err := buildApp(ctx, cmd, seed)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to start", err)
	}
	defer a.close()

	a.log.Info("running manifest",
		zap.String("operation", m.Operation),
		zap.String("owner", m.Owner))

	out, err := a.dispatcher.Dispatch(ctx, m.Operation, m.Input(), m.Owner)
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			return exitError(foundry.ExitInvalidArgument, "Invalid input", err)
		}
		var uerr *dispatch.UnknownOperationError
		if errors.As(err, &uerr) {
			return exitError(foundry.ExitInvalidArgument, "Unknown operation", err)
		}
		var serr *dispatch.SubmissionError
		if errors.As(err, &serr) {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to queue job", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Run failed", err)
	}

	result := out.Result
	if out.Async {
		result, err = waitForJob(ctx, cmd, a, out.AsyncResult)
		if err != nil {
			return err
		}
	}

	return printRunResult(cmd, a, m.Operation, result)
}

// waitForJob polls the job row until it reaches a terminal state, printing
// progress. An interrupt requests cancellation and reports it.
func waitForJob(ctx context.Context, cmd *cobra.Command, a *app, ar *ops.AsyncResult) (*ops.Result, error) {
	interval, _ := cmd.Flags().GetDuration("poll-interval")
	if interval <= 0 {
		interval = time.Second
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Job %d queued (%s)\n", ar.JobID, ar.Message)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			if err := a.queue.Revoke(ar.QueueID); err != nil && !errors.Is(err, queue.ErrUnknownID) {
				a.log.Warn("revoke queued task", zap.Error(err))
			}
			if err := a.store.Cancel(context.Background(), ar.JobID); err != nil && !jobstore.IsStateError(err) {
				a.log.Warn("cancel job", zap.Error(err))
			}
			return nil, exitError(foundry.ExitSignalInt, "Run cancelled", ctx.Err())
		case <-ticker.C:
		}

		job, err := a.store.Get(context.Background(), ar.JobID)
		if err != nil {
			return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to poll job", err)
		}

		if job.Progress != lastProgress {
			lastProgress = job.Progress
			fmt.Fprintf(cmd.OutOrStdout(), "  %3d%% (%d/%d) %s\n",
				job.Progress, job.ProcessedItems, job.TotalItems, job.Elapsed(time.Now()))
		}

		if !job.Status.Terminal() {
			continue
		}

		switch job.Status {
		case jobstore.StatusCompleted:
			payload, _ := job.Result()
			return resultFromJobPayload(payload), nil
		case jobstore.StatusCancelled:
			return nil, exitError(foundry.ExitSignalInt, "Job cancelled", errors.New(job.ErrorMessage))
		default:
			return nil, exitError(foundry.ExitExternalServiceUnavailable, "Job failed",
				errors.New(job.ErrorMessage))
		}
	}
}

func resultFromJobPayload(payload map[string]any) *ops.Result {
	res := &ops.Result{}
	if payload == nil {
		return res
	}
	if v, ok := payload["success"].(bool); ok {
		res.Success = v
	}
	if v, ok := payload["message"].(string); ok {
		res.Message = v
	}
	if v, ok := payload["data"].(map[string]any); ok {
		res.Data = v
	}
	return res
}

func printRunResult(cmd *cobra.Command, a *app, slug string, result *ops.Result) error {
	if result == nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Run produced no result", errors.New("empty result"))
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	}

	if format, _ := cmd.Flags().GetString("export"); format != "" {
		if err := exportRunResult(cmd, a, slug, result, format); err != nil {
			return err
		}
	}

	if !result.Success {
		return exitError(foundry.ExitExternalServiceUnavailable, "Run completed with failures",
			errors.New(result.Message))
	}
	return nil
}

func exportRunResult(cmd *cobra.Command, a *app, slug string, result *ops.Result, format string) error {
	op := a.registry.Get(slug)
	if op == nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown operation", fmt.Errorf("operation %q", slug))
	}

	data, _, filename, err := op.Export(result, format)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Export failed", err)
	}

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		path = filename
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write export", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}
