package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initCmd represents the init command.
var initCmd = newInitCmd()

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate a default funcov.yaml configuration file",
		Long: `Create a funcov.yaml in the current working directory populated with the
current defaults. The engine root has no default and must point at the
instrumentation engine installation before any binary can be wrapped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targetPath := filepath.Join(configFolderPath, configFileName)

			if err := viper.SafeWriteConfigAs(targetPath); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			cmd.Printf("wrote %s\n", targetPath)
			cmd.Printf("set %s before wrapping binaries\n", engineRootKey)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
}
