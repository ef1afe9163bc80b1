package cmd

import (
	"github.com/spf13/cobra"

	"funcov.dev/pkg/funcov/internal/domain"
)

// unwrapCmd represents the unwrap command.
var unwrapCmd = newUnwrapCmd()

func newUnwrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unwrap <binary_path>...",
		Short: "Restore instrumented binaries to their original form",
		Long: `Restore each wrapped binary to its exact original content and mode, and
remove the stash copy it kept for instrumented runs. Run logs already
recorded stay untouched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Unwrap(cmd.Context(), domain.UnwrapArgs{
				Paths: parsePaths(args),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(unwrapCmd)
}
