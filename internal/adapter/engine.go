package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	m "funcov.dev/pkg/funcov/internal/model"
)

const (
	// engineLauncherName is the executable expected under engine.root.
	engineLauncherName = "pin"
	// enginePluginName is the tracer plugin searched for below the
	// plugin directory.
	enginePluginName = "FuncTracer.so"
)

// EngineSpec describes one execution of a stashed binary under the engine.
type EngineSpec struct {
	Launcher m.Path
	Plugin   m.Path
	// TracePath receives the raw event stream written by the plugin.
	TracePath m.Path
	// Target is the stash copy to execute.
	Target m.Path
	Args   []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// EngineRunner locates and drives the dynamic instrumentation engine.
type EngineRunner interface {
	// Locate resolves the engine launcher and the tracer plugin from
	// settings. Both must exist before a wrap may proceed, otherwise the
	// wrapped binary would fail on its next execution.
	Locate(settings m.Settings) (launcher m.Path, plugin m.Path, err error)

	// Run executes spec.Target under the engine with its stdio passed
	// through untouched. It returns the engine process ID and the exit
	// code of the run. A non-zero exit is not an error; failing to
	// start or finish the engine is.
	Run(ctx context.Context, spec EngineSpec) (pid int, exitCode int, err error)
}

// LocalEngineRunner drives the engine through os/exec.
type LocalEngineRunner struct{}

// NewLocalEngineRunner creates a new LocalEngineRunner.
func NewLocalEngineRunner() *LocalEngineRunner {
	return &LocalEngineRunner{}
}

// Locate implements EngineRunner.
func (a *LocalEngineRunner) Locate(settings m.Settings) (m.Path, m.Path, error) {
	if settings.EngineRoot == "" {
		return "", "", fmt.Errorf("engine root is not configured: %w", m.ErrEngineFailure)
	}

	launcher := m.Path(filepath.Join(string(settings.EngineRoot), engineLauncherName))
	if _, err := os.Stat(string(launcher)); err != nil {
		slog.Error("engine launcher missing", "path", launcher, "error", err)
		return "", "", fmt.Errorf("engine launcher %s: %w", launcher, m.ErrEngineFailure)
	}

	plugin, err := findPlugin(settings.PluginDir)
	if err != nil {
		return "", "", err
	}

	return launcher, plugin, nil
}

// findPlugin walks the plugin directory tree so both flat installs and
// per-architecture subdirectories work.
func findPlugin(dir m.Path) (m.Path, error) {
	var found m.Path

	err := filepath.WalkDir(string(dir), func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() && entry.Name() == enginePluginName {
			found = m.Path(path)
			return fs.SkipAll
		}

		return nil
	})
	if err != nil {
		slog.Error("failed to search plugin directory", "dir", dir, "error", err)
		return "", fmt.Errorf("plugin directory %s: %w", dir, m.ErrEngineFailure)
	}

	if found == "" {
		slog.Error("tracer plugin not found", "dir", dir, "plugin", enginePluginName)
		return "", fmt.Errorf("%s not found under %s: %w", enginePluginName, dir, m.ErrEngineFailure)
	}

	return found, nil
}

// Run implements EngineRunner.
func (a *LocalEngineRunner) Run(ctx context.Context, spec EngineSpec) (int, int, error) {
	args := []string{"-t", string(spec.Plugin), "-o", string(spec.TracePath), "--", string(spec.Target)}
	args = append(args, spec.Args...)

	cmd := exec.CommandContext(ctx, string(spec.Launcher), args...)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	slog.Debug("starting engine", "launcher", spec.Launcher, "target", spec.Target, "trace", spec.TracePath)

	if err := cmd.Start(); err != nil {
		slog.Error("failed to start engine", "launcher", spec.Launcher, "error", err)
		return 0, 0, fmt.Errorf("failed to start %s: %w", spec.Launcher, m.ErrEngineFailure)
	}

	pid := cmd.Process.Pid

	err := cmd.Wait()
	if err == nil {
		return pid, 0, nil
	}

	if ctx.Err() != nil {
		slog.Error("engine run aborted", "target", spec.Target, "cause", ctx.Err())
		return pid, 0, fmt.Errorf("run of %s aborted: %w", spec.Target, m.ErrEngineFailure)
	}

	var exit *exec.ExitError
	if errors.As(err, &exit) && exit.ExitCode() >= 0 {
		// The program failed on its own terms; the code passes through.
		return pid, exit.ExitCode(), nil
	}

	slog.Error("engine run failed", "target", spec.Target, "error", err)

	return pid, 0, fmt.Errorf("engine run of %s: %w", spec.Target, m.ErrEngineFailure)
}
