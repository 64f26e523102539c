// Package cmd implements the ticketops command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/3leaps/ticketops/internal/server/handlers"
)

// versionInfo holds the build identity injected at link time.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records the build identity before Execute runs.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

var rootCmd = &cobra.Command{
	Use:   "ticketops",
	Short: "Bulk ticket operations engine",
	Long: `ticketops runs bulk operations against a ticket store: tagging,
macro application, and macro search, inline for small batches and as
durable background jobs for large ones.

Runs are described by manifests (see 'ticketops run') or submitted over
the HTTP API (see 'ticketops serve'). Job state survives restarts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("db", "", "Job database path (default: per-user data dir; ':memory:' for ephemeral)")
	rootCmd.PersistentFlags().String("seed", "", "YAML seed file for the in-memory ticket store")

	rootCmd.Version = versionInfo.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("ticketops %s (%s, built %s)\n",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate))
}

// Execute runs the CLI.
func Execute() error {
	rootCmd.Version = versionInfo.Version
	return rootCmd.Execute()
}
