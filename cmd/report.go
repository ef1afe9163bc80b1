package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"funcov.dev/pkg/funcov/internal/domain"
	m "funcov.dev/pkg/funcov/internal/model"
)

var reportFormatsFlag string

// reportCmd represents the report command.
var reportCmd = newReportCmd()

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <log_dir> <report_dir>",
		Short: "Generate coverage reports from recorded run logs",
		Long: `Aggregate every run log in <log_dir> and write one report per requested
format and binary into <report_dir>, creating it if needed. Reports are
deterministic: the same logs produce byte-identical files.

` + logsDirHelp,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workflow.Report(cmd.Context(), domain.ReportArgs{
				LogDir:    m.Path(args[0]),
				ReportDir: m.Path(args[1]),
				Formats:   parseFormats(viper.GetString(reportFormatsKey)),
			})
		},
	}

	configureReportFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func configureReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&reportFormatsFlag, formatsFlagName, "f", viper.GetString(reportFormatsKey), "comma-separated report formats (txt, xml, html, csv)")
	bindFlagToConfig(cmd.Flags().Lookup(formatsFlagName), reportFormatsKey)
}

// parseFormats splits a comma-separated format list, trimming blanks.
func parseFormats(value string) []string {
	parts := strings.Split(value, ",")
	formats := make([]string, 0, len(parts))

	for _, part := range parts {
		format := strings.ToLower(strings.TrimSpace(part))
		if format == "" {
			continue
		}

		formats = append(formats, format)
	}

	return formats
}
