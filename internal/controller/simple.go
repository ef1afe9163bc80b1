package controller

import (
	"bytes"
	"context"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "funcov.dev/pkg/funcov/internal/model"
)

// SimpleUI implements UI using cobra Command's output stream.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Infof prints one formatted progress line.
func (s *SimpleUI) Infof(ctx context.Context, format string, args ...any) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf(format+"\n", args...)
}

// DisplaySummary prints the per-binary coverage table.
func (s *SimpleUI) DisplaySummary(ctx context.Context, records []m.CoverageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(records) == 0 {
		s.printf("No run logs found.\n")
		return nil
	}

	s.printf("\n%s", renderSummaryTable(records))

	return nil
}

func renderSummaryTable(records []m.CoverageRecord) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Binary", "Functions", "Called", "Coverage", "Runs", "Unresolved"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
	})

	totalFunctions := 0
	totalCalled := 0

	for _, record := range records {
		table.Append([]string{
			record.Identity.Name(),
			fmt.Sprintf("%d", record.Total()),
			fmt.Sprintf("%d", record.Called()),
			fmt.Sprintf("%.2f%%", record.Percent()),
			fmt.Sprintf("%d", record.Runs),
			fmt.Sprintf("%d", record.Unresolved),
		})

		totalFunctions += record.Total()
		totalCalled += record.Called()
	}

	percent := 0.0
	if totalFunctions > 0 {
		percent = float64(totalCalled) / float64(totalFunctions) * 100
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total %d", len(records)),
		fmt.Sprintf("%d", totalFunctions),
		fmt.Sprintf("%d", totalCalled),
		fmt.Sprintf("%.2f%%", percent),
		"",
		"",
	})

	table.Render()

	return tableBuffer.String()
}

// DisplayFunctions prints every function with its call status.
func (s *SimpleUI) DisplayFunctions(ctx context.Context, records []m.CoverageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, record := range records {
		s.printf("\n%s (%d/%d called, %d run(s))\n",
			record.Identity.Name(), record.Called(), record.Total(), record.Runs)

		for _, fn := range record.Functions {
			s.printf("  %s %s\n", statusGlyph(fn.Status), fn.Name)
		}

		if record.Unresolved > 0 {
			s.printf("  %d event(s) matched no function\n", record.Unresolved)
		}
	}

	return nil
}

// Browse prints the summary and the full function lists; SimpleUI has no
// interactive mode.
func (s *SimpleUI) Browse(ctx context.Context, records []m.CoverageRecord) error {
	if err := s.DisplaySummary(ctx, records); err != nil {
		return err
	}

	if len(records) == 0 {
		return nil
	}

	return s.DisplayFunctions(ctx, records)
}

func (s *SimpleUI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
