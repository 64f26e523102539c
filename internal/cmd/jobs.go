package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/ticketops/internal/config"
	"github.com/3leaps/ticketops/pkg/jobstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage background jobs",
	Long: `Inspect and manage job records for background bulk runs.

This command group is designed to be agent-friendly:

- stable numeric job ids
- a predictable on-disk database location
- optional JSON output for machine parsing`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a pending or running job",
	Long: `Mark a job cancelled.

Cancellation is cooperative. The task queue lives inside the process that
accepted the job, so cancelling from a separate CLI process flags the row
but cannot revoke the queued task: a worker in a running serve process
continues until its next cancellation check (or completion), and its late
terminal write is then rejected by the cancelled row. Cancelling through
the serve process's API revokes the task as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsCancel,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job_id>",
	Short: "Delete a finished job record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

var jobsExportCmd = &cobra.Command{
	Use:   "export <job_id>",
	Short: "Export a completed job's result",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsExport,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsExportCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().String("status", "", "Filter by status: pending, running, completed, failed, cancelled")
	jobsListCmd.Flags().String("slug", "", "Filter by operation slug (glob patterns supported, e.g. 'tag_*')")
	jobsListCmd.Flags().String("owner", "", "Filter by owner")
	jobsListCmd.Flags().Int("limit", 0, "Limit the number of rows (0 = all)")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsExportCmd.Flags().String("format", "csv", "Export format: csv or json")
	jobsExportCmd.Flags().String("output", "", "Destination path (default: exporter's suggested filename)")
}

// openJobStore opens just the job database, for commands that do not need
// the full engine.
func openJobStore(cmd *cobra.Command) (*jobstore.Store, *sql.DB, error) {
	cfg, err := config.Load(cmd.Context(), flagOverrides(cmd))
	if err != nil {
		return nil, nil, err
	}
	db, err := jobstore.Open(cmd.Context(), cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open job database: %w", err)
	}
	if err := jobstore.Migrate(cmd.Context(), db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate job database: %w", err)
	}
	return jobstore.NewStore(db), db, nil
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	store, db, err := openJobStore(cmd)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to open job store", err)
	}
	defer func() { _ = db.Close() }()

	status, _ := cmd.Flags().GetString("status")
	slugPattern, _ := cmd.Flags().GetString("slug")
	owner, _ := cmd.Flags().GetString("owner")
	limit, _ := cmd.Flags().GetInt("limit")

	if status != "" && !jobstore.Status(status).Valid() {
		return exitError(foundry.ExitInvalidArgument, "Invalid --status",
			fmt.Errorf("unknown status %q", status))
	}

	// Slug globs are matched in-process, so the store filter stays exact
	// and the limit applies after the glob pass.
	glob := slugPattern != "" && isGlobPattern(slugPattern)
	f := jobstore.Filter{Status: jobstore.Status(status), Owner: owner}
	if !glob {
		f.Slug = slugPattern
		f.Limit = limit
	}

	jobs, err := store.List(cmd.Context(), f)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to list jobs", err)
	}

	if glob {
		filtered := jobs[:0]
		for _, j := range jobs {
			ok, err := doublestar.Match(slugPattern, j.Slug)
			if err != nil {
				return exitError(foundry.ExitInvalidArgument, "Invalid --slug pattern", err)
			}
			if ok {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
		if limit > 0 && len(jobs) > limit {
			jobs = jobs[:limit]
		}
	}

	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
		return nil
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, "ID\tOPERATION\tSTATUS\tPROGRESS\tITEMS\tOWNER\tCREATED\tELAPSED")
	now := time.Now()
	for i := range jobs {
		j := &jobs[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%d/%d\t%s\t%s\t%s\n",
			j.ID, j.Slug, j.Status, j.Progress,
			j.ProcessedItems, j.TotalItems,
			orDash(j.Owner),
			j.CreatedAt.Format(time.RFC3339),
			j.Elapsed(now))
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
	}

	store, db, err := openJobStore(cmd)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to open job store", err)
	}
	defer func() { _ = db.Close() }()

	job, err := store.Get(cmd.Context(), id)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Job not found", err)
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:       %d\n", job.ID)
	fmt.Fprintf(out, "Operation: %s\n", job.Slug)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Progress:  %d%% (%d/%d)\n", job.Progress, job.ProcessedItems, job.TotalItems)
	fmt.Fprintf(out, "Owner:     %s\n", orDash(job.Owner))
	fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Elapsed:   %s\n", job.Elapsed(time.Now()))
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
	}
	if payload, ok := job.Result(); ok {
		if msg, ok := payload["message"].(string); ok {
			fmt.Fprintf(out, "Result:    %s\n", msg)
		}
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
	}

	store, db, err := openJobStore(cmd)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to open job store", err)
	}
	defer func() { _ = db.Close() }()

	if err := store.Cancel(cmd.Context(), id); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot cancel job", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %d cancelled\n", id)
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
	}

	store, db, err := openJobStore(cmd)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to open job store", err)
	}
	defer func() { _ = db.Close() }()

	if err := store.Delete(cmd.Context(), id); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot delete job", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %d deleted\n", id)
	return nil
}

func runJobsExport(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid job id", err)
	}

	a, err := buildApp(cmd.Context(), cmd, "")
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to start", err)
	}
	defer a.close()

	job, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Job not found", err)
	}
	if job.Status != jobstore.StatusCompleted {
		return exitError(foundry.ExitInvalidArgument, "Job has no exportable result",
			fmt.Errorf("job %d is %s", job.ID, job.Status))
	}

	payload, ok := job.Result()
	if !ok {
		return exitError(foundry.ExitInvalidArgument, "Job has no result payload",
			fmt.Errorf("job %d", job.ID))
	}

	format, _ := cmd.Flags().GetString("format")
	if err := exportRunResult(cmd, a, job.Slug, resultFromJobPayload(payload), format); err != nil {
		return err
	}
	return nil
}

func isGlobPattern(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
