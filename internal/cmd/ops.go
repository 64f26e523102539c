package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Inspect the registered operations",
}

var opsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered operations",
	RunE:  runOpsList,
}

var opsFieldsCmd = &cobra.Command{
	Use:   "fields <slug>",
	Short: "Show the form schema of an operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpsFields,
}

func init() {
	rootCmd.AddCommand(opsCmd)
	opsCmd.AddCommand(opsListCmd)
	opsCmd.AddCommand(opsFieldsCmd)

	opsListCmd.Flags().Bool("json", false, "Output as JSON")
	opsFieldsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runOpsList(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd.Context(), cmd, "")
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to start", err)
	}
	defer a.close()

	descriptors := a.registry.All()

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(descriptors)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, "SLUG\tNAME\tCATEGORY\tASYNC\tADMIN\tDESCRIPTION")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\n",
			d.Slug, d.Name, d.Category, d.Async, d.RequiresAdmin, d.Description)
	}
	return nil
}

func runOpsFields(cmd *cobra.Command, args []string) error {
	seed, _ := cmd.Flags().GetString("seed")
	a, err := buildApp(cmd.Context(), cmd, seed)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to start", err)
	}
	defer a.close()

	op := a.registry.Get(args[0])
	if op == nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown operation", fmt.Errorf("operation %q", args[0]))
	}

	fields := op.FormFields(cmd.Context())

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(fields)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, "NAME\tTYPE\tREQUIRED\tLABEL\tHELP")
	for _, f := range fields {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n", f.Name, f.Type, f.Required, f.Label, f.Help)
	}
	return nil
}
