package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"funcov.dev/pkg/funcov/internal/domain"
	m "funcov.dev/pkg/funcov/internal/model"
)

var runWrappedFlag string

// runCmd represents the run command. It is the entry point the launcher
// stub of a wrapped binary invokes, so it stays hidden from help output.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "run --wrapped <artifact> [-- args...]",
		Short:  "Execute a wrapped binary under the instrumentation engine",
		Long:   "Execute a wrapped binary under the instrumentation engine and record one run log. Invoked by the launcher stub of a wrapped binary.",
		Hidden: true,
		Args:   cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFromConfig()
			if err != nil {
				return err
			}

			exitCode, err := workflow.Run(cmd.Context(), domain.RunArgs{
				Artifact: m.Path(runWrappedFlag),
				Argv:     args,
				Settings: settings,
			})
			if err != nil {
				return err
			}

			// The caller sees funcov's exit status in place of the target's.
			if exitCode != 0 {
				os.Exit(exitCode)
			}

			return nil
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runWrappedFlag, wrappedFlagName, "", "path of the wrapped artifact to execute")
	cobra.CheckErr(cmd.MarkFlagRequired(wrappedFlagName))
}
