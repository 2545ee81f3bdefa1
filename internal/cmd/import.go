package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/conductor/internal/parser"
	"github.com/harrison/conductor/internal/planstore"
)

// NewImportCommand creates the import subcommand, which converts a
// Markdown plan document into the Plan Store's native YAML document.
func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <plan.md> <plan.yaml>",
		Short: "Convert a Markdown plan document into a Plan Store document",
		Long: `Parse a Markdown plan document (## Task <id>: <title> sections with
optional Acceptance Criteria / Outputs / Check Steps subsections) and
write it as the YAML document the engine reads and rewrites from then
on. Re-running import overwrites the destination; it is meant to seed
a new plan, not to merge into one already in progress.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			f, err := os.Open(src)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", src, err)
			}
			defer f.Close()

			plan, err := parser.ParseMarkdown(f)
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", src, err)
			}

			store := planstore.New(dst)
			if err := store.Write(plan); err != nil {
				return fmt.Errorf("failed to write %s: %w", dst, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d task(s) into %s\n", src, len(plan.Tasks), dst)
			return nil
		},
		SilenceUsage: true,
	}

	return cmd
}
