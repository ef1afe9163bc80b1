package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"funcov.dev/pkg/funcov/internal/domain"
	m "funcov.dev/pkg/funcov/internal/model"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <source_dir>...",
		Short: "Merge run logs from other directories into the logs directory",
		Long: `Copy run logs collected elsewhere (other hosts, CI shards) into the
configured logs directory so report, list and view see them as one set.
Log file names carry the originating process id and start time, so
merging the same sources twice is harmless.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Merge(cmd.Context(), domain.MergeArgs{
				Sources: parsePaths(args),
				LogDir:  m.Path(viper.GetString(logsDirKey)),
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
