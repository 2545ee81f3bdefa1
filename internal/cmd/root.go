package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for conductor.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conductor",
		Short: "Autonomous task orchestration engine",
		Long: `Conductor executes a task plan by driving external CLI providers
one task at a time, validating each result against the task's check
steps, retrying or falling back across providers on failure, and
checkpointing progress so a run can resume after an interruption.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewImportCommand())

	return cmd
}
