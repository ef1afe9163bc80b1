package cmd

import (
	"github.com/spf13/cobra"

	"funcov.dev/pkg/funcov/internal/domain"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view [log_dir]",
		Short: "Browse recorded coverage interactively",
		Long: `Browse per-function coverage in an interactive terminal view. When stdout
is not a terminal the results are printed as plain text instead.

` + logsDirHelp,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.View(cmd.Context(), domain.ViewArgs{
				LogDir: logDirFromArgs(args),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
