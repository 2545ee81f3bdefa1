package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/conductor/internal/planstore"
)

// NewValidateCommand creates and returns the validate subcommand.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan file's structure",
		Long: `Parse a plan file and check its structural invariants: every phase's
task IDs resolve in the task table, and every task is well-formed.

Exit code 0 if valid, 1 if errors found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := planstore.New(args[0])
			plan, err := store.Read()
			if err != nil {
				return fmt.Errorf("failed to read plan: %w", err)
			}
			if err := plan.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d task(s) across %d phase(s))\n", args[0], len(plan.Tasks), len(plan.Phases))
			return nil
		},
		SilenceUsage: true,
	}

	return cmd
}
