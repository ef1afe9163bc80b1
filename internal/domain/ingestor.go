package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"funcov.dev/pkg/funcov/internal/adapter"
	m "funcov.dev/pkg/funcov/internal/model"
	"funcov.dev/pkg/funcov/pkg"
)

// Ingestor executes wrapped artifacts under the instrumentation engine and
// turns the raw trace of each execution into one durable run log.
type Ingestor interface {
	// Execute runs the artifact at path under the engine with argv and
	// the program's stdio passed through untouched, then persists a run
	// log next to the others. It returns the program's exit code; a
	// non-zero exit is not an error.
	Execute(ctx context.Context, artifact m.Path, argv []string, settings m.Settings) (int, error)
}

type ingestor struct {
	fs      adapter.BinaryFS
	codec   adapter.ArtifactCodec
	engine  adapter.EngineRunner
	runlogs adapter.RunLogStore
}

// NewIngestor constructs an Ingestor backed by the provided adapters.
func NewIngestor(
	fs adapter.BinaryFS,
	codec adapter.ArtifactCodec,
	engine adapter.EngineRunner,
	runlogs adapter.RunLogStore,
) Ingestor {
	return &ingestor{
		fs:      fs,
		codec:   codec,
		engine:  engine,
		runlogs: runlogs,
	}
}

func (i *ingestor) Execute(ctx context.Context, artifact m.Path, argv []string, settings m.Settings) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	manifest, err := i.loadManifest(artifact)
	if err != nil {
		return 0, err
	}

	logDir := manifest.LogDir
	if logDir == "" {
		logDir = settings.LogDir
	}

	if err := i.fs.MkdirAll(logDir, 0o755); err != nil {
		slog.Error("failed to create log directory", "path", logDir, "error", err)
		return 0, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	// The trace is private to this process until the run log is
	// published, so PID plus start time keeps concurrent runs apart.
	started := time.Now()
	tracePath := i.fs.JoinPath(string(logDir), fmt.Sprintf(".trace_%d_%d.raw", os.Getpid(), started.UnixNano()))

	defer func() {
		if err := i.fs.Remove(tracePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove trace file", "path", tracePath, "error", err)
		}
	}()

	pid, exitCode, err := i.runEngine(ctx, manifest, tracePath, argv, settings)
	if err != nil {
		return 0, err
	}

	spill, err := pkg.NewFileSpill[m.CallEvent](string(logDir))
	if err != nil {
		return 0, fmt.Errorf("failed to spool call events: %w", err)
	}

	defer func() {
		if err := spill.Close(); err != nil {
			slog.Error("failed to close event spool", "path", spill.Path(), "error", err)
		}
	}()

	skipped, err := i.spoolTrace(tracePath, manifest, spill)
	if err != nil {
		return 0, err
	}

	log := m.RunLog{
		Identity:      manifest.Identity(),
		PID:           pid,
		Started:       started,
		Symbols:       manifest.SymbolSet(),
		ExitCode:      exitCode,
		SkippedEvents: skipped,
	}

	logPath, err := i.runlogs.WriteSpooled(logDir, log, spill)
	if err != nil {
		slog.Error("failed to write run log", "dir", logDir, "error", err)
		return 0, fmt.Errorf("failed to write run log: %w", err)
	}

	slog.Debug("run log written",
		"path", logPath, "pid", pid, "exit", exitCode, "events", spill.Len(), "skipped", skipped)

	return exitCode, nil
}

// loadManifest reads the artifact and restores the stash copy if it went
// missing since wrap time, so a cleaned stash directory never strands a
// wrapped binary.
func (i *ingestor) loadManifest(artifact m.Path) (m.Manifest, error) {
	content, err := i.fs.ReadFile(artifact)
	if err != nil {
		if os.IsNotExist(err) {
			return m.Manifest{}, fmt.Errorf("%s: %w", artifact, m.ErrNotFound)
		}

		return m.Manifest{}, fmt.Errorf("failed to read %s: %w", artifact, err)
	}

	manifest, stash, err := i.codec.Read(content)
	if err != nil {
		return m.Manifest{}, fmt.Errorf("%s: %w", artifact, err)
	}

	if _, err := i.fs.Stat(manifest.StashCopy); os.IsNotExist(err) {
		if err := i.restoreStashCopy(manifest, stash); err != nil {
			return m.Manifest{}, err
		}
	}

	return manifest, nil
}

func (i *ingestor) restoreStashCopy(manifest m.Manifest, stash []byte) error {
	if err := i.fs.MkdirAll(manifest.StashCopy.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create stash directory %s: %w", manifest.StashCopy.Dir(), err)
	}

	if err := i.fs.WriteFile(manifest.StashCopy, stash, os.FileMode(manifest.Mode)); err != nil {
		slog.Error("failed to restore stash copy", "path", manifest.StashCopy, "error", err)
		return fmt.Errorf("failed to restore stash copy %s: %w", manifest.StashCopy, err)
	}

	slog.Info("restored missing stash copy", "path", manifest.StashCopy)

	return nil
}

func (i *ingestor) runEngine(
	ctx context.Context,
	manifest m.Manifest,
	tracePath m.Path,
	argv []string,
	settings m.Settings,
) (int, int, error) {
	runCtx := ctx

	if settings.RunTimeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, settings.RunTimeout)
		defer cancel()
	}

	spec := adapter.EngineSpec{
		Launcher:  manifest.EngineLauncher,
		Plugin:    manifest.EnginePlugin,
		TracePath: tracePath,
		Target:    manifest.StashCopy,
		Args:      argv,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}

	pid, exitCode, err := i.engine.Run(runCtx, spec)
	if err != nil {
		slog.Error("engine run failed", "target", manifest.StashCopy, "error", err)
		return 0, 0, err
	}

	return pid, exitCode, nil
}

// spoolTrace parses the raw trace into the spill, counting only events from
// the instrumented image itself. A missing trace means the plugin observed
// nothing and yields an empty run log.
func (i *ingestor) spoolTrace(tracePath m.Path, manifest m.Manifest, spill pkg.FileSpill[m.CallEvent]) (int, error) {
	skipped, err := adapter.ParseTraceFile(tracePath, spill.Append,
		string(manifest.StashCopy), string(manifest.Target))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("engine produced no trace", "path", tracePath)
			return 0, nil
		}

		slog.Error("failed to parse trace", "path", tracePath, "error", err)

		return 0, fmt.Errorf("failed to parse trace %s: %w", tracePath, err)
	}

	return skipped, nil
}
