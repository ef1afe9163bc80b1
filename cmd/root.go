// Package cmd provides the root command and CLI setup for funcov.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"funcov.dev/pkg/funcov/internal/adapter"
	"funcov.dev/pkg/funcov/internal/controller"
	"funcov.dev/pkg/funcov/internal/domain"
	m "funcov.dev/pkg/funcov/internal/model"
)

var binaryFS adapter.BinaryFS
var symbolReader adapter.SymbolReader
var artifactCodec adapter.ArtifactCodec
var engineRunner adapter.EngineRunner
var runLogStore adapter.RunLogStore
var reportStore adapter.ReportStore
var transformer domain.Transformer
var ingestor domain.Ingestor
var aggregator domain.Aggregator
var workflow domain.Workflow
var ui controller.UI

// logsDirFlag overrides the configured run log directory.
var logsDirFlag string

// verboseFlag raises logging to debug level.
var verboseFlag bool

func init() {
	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	binaryFS = adapter.NewLocalBinaryFS()
	symbolReader = adapter.NewELFSymbolReader()
	artifactCodec = adapter.NewContainerArtifactCodec()
	engineRunner = adapter.NewLocalEngineRunner()
	runLogStore = adapter.NewLocalRunLogStore()
	reportStore = adapter.NewLocalReportStore()
	transformer = domain.NewTransformer(binaryFS, symbolReader, artifactCodec, engineRunner)
	ingestor = domain.NewIngestor(binaryFS, artifactCodec, engineRunner, runLogStore)
	aggregator = domain.NewAggregator(runLogStore)
	workflow = domain.NewWorkflow(
		transformer,
		ingestor,
		aggregator,
		runLogStore,
		reportStore,
		ui,
	)
}

const logsDirHelp = `Run logs accumulate in the configured logs directory (--logs-dir,
FUNCOV_LOGS_DIR or logs.dir in funcov.yaml); every execution of a
wrapped binary appends one log file there.`

const rootLongDescription = `Funcov measures which functions of a native binary were actually invoked,
without recompiling it. "funcov wrap" replaces a binary in place with a
launcher that runs the original under a dynamic instrumentation engine;
every later execution records the functions it called. "funcov report"
aggregates those recordings into coverage reports, and "funcov unwrap"
restores the original binary.

` + logsDirHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funcov",
		Short: "Function coverage for native binaries",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(
			&logsDirFlag, logsDirFlagName,
			viper.GetString(logsDirKey),
			"directory where run logs are written and read",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(logsDirFlagName), logsDirKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "enable debug logging")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}
