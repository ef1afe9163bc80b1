package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"funcov.dev/pkg/funcov/internal/adapter"
	"funcov.dev/pkg/funcov/internal/controller"
	m "funcov.dev/pkg/funcov/internal/model"
)

// WrapArgs contains the arguments for wrapping binaries.
type WrapArgs struct {
	Paths    []m.Path
	Settings m.Settings
}

// UnwrapArgs contains the arguments for restoring wrapped binaries.
type UnwrapArgs struct {
	Paths []m.Path
}

// RunArgs contains the arguments for executing a wrapped artifact.
type RunArgs struct {
	Artifact m.Path
	Argv     []string
	Settings m.Settings
}

// ReportArgs contains the arguments for emitting coverage reports.
type ReportArgs struct {
	LogDir    m.Path
	ReportDir m.Path
	Formats   []string
}

// ListArgs contains the arguments for the coverage summary.
type ListArgs struct {
	LogDir m.Path
}

// ViewArgs contains the arguments for the coverage browser.
type ViewArgs struct {
	LogDir m.Path
}

// MergeArgs contains the arguments for merging run log directories.
type MergeArgs struct {
	Sources []m.Path
	LogDir  m.Path
}

// Workflow is the single entry point the CLI drives; one method per command.
type Workflow interface {
	Wrap(ctx context.Context, args WrapArgs) error
	Unwrap(ctx context.Context, args UnwrapArgs) error
	Run(ctx context.Context, args RunArgs) (int, error)
	Report(ctx context.Context, args ReportArgs) error
	List(ctx context.Context, args ListArgs) error
	View(ctx context.Context, args ViewArgs) error
	Merge(ctx context.Context, args MergeArgs) error
}

type workflow struct {
	transformer Transformer
	ingestor    Ingestor
	aggregator  Aggregator
	runlogs     adapter.RunLogStore
	reports     adapter.ReportStore
	ui          controller.UI
}

// NewWorkflow creates a Workflow wired with the provided domain services,
// stores and UI.
func NewWorkflow(
	transformer Transformer,
	ingestor Ingestor,
	aggregator Aggregator,
	runlogs adapter.RunLogStore,
	reports adapter.ReportStore,
	ui controller.UI,
) Workflow {
	return &workflow{
		transformer: transformer,
		ingestor:    ingestor,
		aggregator:  aggregator,
		runlogs:     runlogs,
		reports:     reports,
		ui:          ui,
	}
}

// Wrap transforms every listed binary, continuing past individual failures
// so one unwritable path does not block the rest of a batch.
func (w *workflow) Wrap(ctx context.Context, args WrapArgs) error {
	var errs []error

	for _, path := range args.Paths {
		set, err := w.transformer.Wrap(ctx, path, args.Settings)
		if err != nil {
			slog.Error("failed to wrap binary", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("wrap %s: %w", path, err))

			continue
		}

		w.ui.Infof(ctx, "wrapped %s (%d functions)", path, set.Len())

		if len(set.Ignored) > 0 {
			w.ui.Infof(ctx, "  ignored %d duplicate function name(s)", len(set.Ignored))
		}
	}

	return errors.Join(errs...)
}

// Unwrap restores every listed binary, continuing past individual failures.
func (w *workflow) Unwrap(ctx context.Context, args UnwrapArgs) error {
	var errs []error

	for _, path := range args.Paths {
		if err := w.transformer.Unwrap(ctx, path); err != nil {
			slog.Error("failed to unwrap binary", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("unwrap %s: %w", path, err))

			continue
		}

		w.ui.Infof(ctx, "restored %s", path)
	}

	return errors.Join(errs...)
}

// Run executes a wrapped artifact and returns the program's exit code.
func (w *workflow) Run(ctx context.Context, args RunArgs) (int, error) {
	return w.ingestor.Execute(ctx, args.Artifact, args.Argv, args.Settings)
}

// Report aggregates the run logs and writes one report per binary and
// format. Formats are validated before anything touches the disk.
func (w *workflow) Report(ctx context.Context, args ReportArgs) error {
	if err := w.reports.Validate(args.Formats); err != nil {
		return err
	}

	records, err := w.aggregator.Aggregate(ctx, args.LogDir)
	if err != nil {
		return err
	}

	files, err := w.reports.Emit(args.ReportDir, records, args.Formats)
	if err != nil {
		slog.Error("failed to emit reports", "dir", args.ReportDir, "error", err)
		return fmt.Errorf("failed to emit reports: %w", err)
	}

	for _, file := range files {
		w.ui.Infof(ctx, "wrote %s", file)
	}

	return w.ui.DisplaySummary(ctx, records)
}

// List prints the aggregated coverage summary table.
func (w *workflow) List(ctx context.Context, args ListArgs) error {
	records, err := w.aggregator.Aggregate(ctx, args.LogDir)
	if err != nil {
		return err
	}

	return w.ui.DisplaySummary(ctx, records)
}

// View opens the interactive coverage browser.
func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	records, err := w.aggregator.Aggregate(ctx, args.LogDir)
	if err != nil {
		return err
	}

	return w.ui.Browse(ctx, records)
}

// Merge copies run logs from the source directories into the log directory.
// Re-merging the same sources is idempotent because log names carry the
// originating PID and start time.
func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	merged := 0

	for _, source := range args.Sources {
		paths, err := w.runlogs.List(source)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", source, err)
		}

		for _, path := range paths {
			log, err := w.runlogs.Read(path)
			if err != nil {
				slog.Warn("skipping unreadable run log", "path", path, "error", err)
				w.ui.Infof(ctx, "skipped %s", path)

				continue
			}

			if _, err := w.runlogs.Write(args.LogDir, log); err != nil {
				slog.Error("failed to write merged run log", "source", path, "error", err)
				return fmt.Errorf("failed to merge %s: %w", path, err)
			}

			merged++
		}
	}

	w.ui.Infof(ctx, "merged %d run log(s) into %s", merged, args.LogDir)

	return nil
}
