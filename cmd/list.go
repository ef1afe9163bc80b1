package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"funcov.dev/pkg/funcov/internal/domain"
	m "funcov.dev/pkg/funcov/internal/model"
)

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [log_dir]",
		Short: "Summarize recorded coverage per binary",
		Long: `Print a per-binary summary of recorded runs and function coverage.

` + logsDirHelp,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.List(cmd.Context(), domain.ListArgs{
				LogDir: logDirFromArgs(args),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// logDirFromArgs prefers an explicit positional log directory over the
// configured one.
func logDirFromArgs(args []string) m.Path {
	if len(args) > 0 {
		return m.Path(args[0])
	}

	return m.Path(viper.GetString(logsDirKey))
}
