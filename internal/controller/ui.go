// Package controller renders coverage results to the terminal.
package controller

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "funcov.dev/pkg/funcov/internal/model"
)

// UI displays aggregated coverage and progress messages.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	// Infof prints one formatted progress line.
	Infof(ctx context.Context, format string, args ...any)

	// DisplaySummary prints the per-binary coverage table.
	DisplaySummary(ctx context.Context, records []m.CoverageRecord) error

	// DisplayFunctions prints every function with its call status.
	DisplayFunctions(ctx context.Context, records []m.CoverageRecord) error

	// Browse opens the interactive coverage browser. Small result sets
	// print directly instead of entering the alternate screen.
	Browse(ctx context.Context, records []m.CoverageRecord) error
}

// NewUI picks the TUI on interactive terminals and plain output otherwise.
func NewUI(cmd *cobra.Command, interactive bool) UI {
	if interactive {
		return NewTUI(cmd)
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func statusGlyph(status m.CallStatus) string {
	if status == m.StatusCalled {
		return "✓"
	}

	return "✗"
}
