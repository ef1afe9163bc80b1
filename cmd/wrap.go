package cmd

import (
	"github.com/spf13/cobra"

	"funcov.dev/pkg/funcov/internal/domain"
)

// wrapCmd represents the wrap command.
var wrapCmd = newWrapCmd()

func newWrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wrap <binary_path>...",
		Short: "Instrument binaries for function coverage",
		Long: `Replace each binary in place with a launcher that executes the original
under the dynamic instrumentation engine. The original binary and its
function symbols are preserved inside the wrapped file; "funcov unwrap"
restores it byte for byte.

Wrapping requires the engine root (engine.root in ` + configFileName + ` or
FUNCOV_ENGINE_ROOT) and debug information for the target binary.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFromConfig()
			if err != nil {
				return err
			}

			if err := requireEngineRoot(settings); err != nil {
				return err
			}

			return workflow.Wrap(cmd.Context(), domain.WrapArgs{
				Paths:    parsePaths(args),
				Settings: settings,
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(wrapCmd)
}
