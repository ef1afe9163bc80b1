package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"

	"funcov.dev/pkg/funcov/pkg"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long: `Displays the build version, the Go version and the wrap container format
this build reads and writes. Artifacts wrapped by a newer format are
rejected until the tool is upgraded.`,
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok || info.Main.Version == "" {
				cmd.Println("tool version\t unknown")
			} else {
				cmd.Println("tool version\t", info.Main.Version)
				cmd.Println("go version\t", info.GoVersion)
			}

			cmd.Printf("wrap format\t v%d\n", pkg.ContainerVersion)
		},
	}
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
