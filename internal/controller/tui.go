package controller

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "funcov.dev/pkg/funcov/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	calledStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	uncalledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Faint(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// TUI implements UI using Bubble Tea for the interactive coverage browser.
// The non-interactive methods delegate to SimpleUI.
type TUI struct {
	cmd    *cobra.Command
	simple *SimpleUI
}

// NewTUI creates a new TUI.
func NewTUI(cmd *cobra.Command) *TUI {
	return &TUI{cmd: cmd, simple: NewSimpleUI(cmd)}
}

// Infof prints one formatted progress line.
func (t *TUI) Infof(ctx context.Context, format string, args ...any) {
	t.simple.Infof(ctx, format, args...)
}

// DisplaySummary prints the per-binary coverage table.
func (t *TUI) DisplaySummary(ctx context.Context, records []m.CoverageRecord) error {
	return t.simple.DisplaySummary(ctx, records)
}

// DisplayFunctions prints every function with its call status.
func (t *TUI) DisplayFunctions(ctx context.Context, records []m.CoverageRecord) error {
	return t.simple.DisplayFunctions(ctx, records)
}

// Browse opens the scrolling coverage browser. Lists that fit on screen are
// printed directly instead of entering the alternate screen.
func (t *TUI) Browse(ctx context.Context, records []m.CoverageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(records) == 0 {
		return t.simple.DisplaySummary(ctx, records)
	}

	model := newCoverageModel(records)

	if f, ok := t.cmd.OutOrStdout().(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			model = model.resize(width, height)
		}
	}

	if !model.needsPagination() {
		_, err := fmt.Fprint(t.cmd.OutOrStdout(), model.plainView())
		return err
	}

	program := tea.NewProgram(model, tea.WithOutput(t.cmd.OutOrStdout()), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return err
	}

	return nil
}

// Reserved screen lines around the viewport: title, summary, blank line and
// the help footer.
const reservedLines = 5

// coverageModel is the Bubble Tea model for browsing coverage records, one
// binary at a time.
type coverageModel struct {
	records  []m.CoverageRecord
	selected int
	viewport viewport.Model
	height   int
	width    int
	quitting bool
}

func newCoverageModel(records []m.CoverageRecord) coverageModel {
	model := coverageModel{
		records:  records,
		viewport: viewport.New(0, 0),
	}
	model.viewport.SetContent(model.functionLines())

	return model
}

func (cm coverageModel) Init() tea.Cmd {
	return nil
}

func (cm coverageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return cm.resize(msg.Width, msg.Height), nil

	case tea.KeyMsg:
		return cm.handleKeyPress(msg)
	}

	return cm, nil
}

//nolint:exhaustive // Key handling requires only the navigation cases.
func (cm coverageModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		cm.quitting = true
		return cm, tea.Quit
	default:
		// Handled by the string switch below.
	}

	switch msg.String() {
	case "q":
		cm.quitting = true
		return cm, tea.Quit

	case "tab", "right", "l":
		return cm.selectRecord(cm.selected + 1), nil

	case "shift+tab", "left", "h":
		return cm.selectRecord(cm.selected - 1), nil

	case "g", "home":
		cm.viewport.GotoTop()
		return cm, nil

	case "G", "end":
		cm.viewport.GotoBottom()
		return cm, nil
	}

	// j/k and page movement are the viewport's own key map.
	var cmd tea.Cmd
	cm.viewport, cmd = cm.viewport.Update(msg)

	return cm, cmd
}

func (cm coverageModel) selectRecord(index int) coverageModel {
	count := len(cm.records)
	cm.selected = ((index % count) + count) % count
	cm.viewport.SetContent(cm.functionLines())
	cm.viewport.GotoTop()

	return cm
}

func (cm coverageModel) resize(width, height int) coverageModel {
	cm.width = width
	cm.height = height

	cm.viewport.Width = width

	visible := height - reservedLines
	if visible < 1 {
		visible = 1
	}

	cm.viewport.Height = visible

	return cm
}

func (cm coverageModel) record() m.CoverageRecord {
	return cm.records[cm.selected]
}

func (cm coverageModel) functionLines() string {
	var b strings.Builder

	record := cm.record()

	for _, fn := range record.Functions {
		line := fmt.Sprintf("  %s %s", statusGlyph(fn.Status), fn.Name)
		if fn.Status == m.StatusCalled {
			line = calledStyle.Render(line)
		} else {
			line = uncalledStyle.Render(line)
		}

		b.WriteString(line + "\n")
	}

	if record.Unresolved > 0 {
		fmt.Fprintf(&b, "  %d event(s) matched no function\n", record.Unresolved)
	}

	return b.String()
}

func (cm coverageModel) titleLine() string {
	return titleStyle.Render(fmt.Sprintf("funcov: %s (%d/%d)",
		cm.record().Identity.Name(), cm.selected+1, len(cm.records)))
}

func (cm coverageModel) summaryLine() string {
	record := cm.record()

	return fmt.Sprintf("%d/%d called | %.2f%% | %d run(s) | %d unresolved",
		record.Called(), record.Total(), record.Percent(), record.Runs, record.Unresolved)
}

// needsPagination reports whether the list is too large to print directly.
func (cm coverageModel) needsPagination() bool {
	if cm.height == 0 {
		return false
	}

	return cm.record().Total()+reservedLines > cm.height
}

func (cm coverageModel) View() string {
	if cm.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(cm.titleLine() + "\n")
	b.WriteString(cm.summaryLine() + "\n\n")
	b.WriteString(cm.viewport.View() + "\n")
	b.WriteString(helpStyle.Render("tab: next binary | ↑/k ↓/j: scroll | g/G: top/bottom | q: quit"))

	return b.String()
}

// plainView renders the selected record without styling or scrolling, for
// result sets that fit on screen.
func (cm coverageModel) plainView() string {
	var b strings.Builder

	record := cm.record()

	fmt.Fprintf(&b, "funcov: %s\n", record.Identity.Name())
	b.WriteString(cm.summaryLine() + "\n\n")

	for _, fn := range record.Functions {
		fmt.Fprintf(&b, "  %s %s\n", statusGlyph(fn.Status), fn.Name)
	}

	if record.Unresolved > 0 {
		fmt.Fprintf(&b, "  %d event(s) matched no function\n", record.Unresolved)
	}

	return b.String()
}
