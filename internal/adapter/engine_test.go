package adapter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "funcov.dev/pkg/funcov/internal/model"
)

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func TestLocalEngineRunner_Locate(t *testing.T) {
	root := t.TempDir()
	plugins := t.TempDir()

	writeExecutable(t, filepath.Join(root, "pin"), "#!/bin/sh\nexit 0\n")
	writeExecutable(t, filepath.Join(plugins, "intel64", "FuncTracer.so"), "not a real plugin")

	runner := NewLocalEngineRunner()

	launcher, plugin, err := runner.Locate(m.Settings{
		EngineRoot: m.Path(root),
		PluginDir:  m.Path(plugins),
	})

	require.NoError(t, err)
	assert.Equal(t, m.Path(filepath.Join(root, "pin")), launcher)
	assert.Equal(t, m.Path(filepath.Join(plugins, "intel64", "FuncTracer.so")), plugin)
}

func TestLocalEngineRunner_Locate_Errors(t *testing.T) {
	root := t.TempDir()
	plugins := t.TempDir()
	writeExecutable(t, filepath.Join(root, "pin"), "#!/bin/sh\nexit 0\n")

	runner := NewLocalEngineRunner()

	tests := []struct {
		name     string
		settings m.Settings
	}{
		{name: "unset engine root", settings: m.Settings{PluginDir: m.Path(plugins)}},
		{name: "missing launcher", settings: m.Settings{EngineRoot: "/nonexistent", PluginDir: m.Path(plugins)}},
		{name: "missing plugin", settings: m.Settings{EngineRoot: m.Path(root), PluginDir: m.Path(plugins)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runner.Locate(tt.settings)

			require.Error(t, err)
			assert.ErrorIs(t, err, m.ErrEngineFailure)
		})
	}
}

// The stub engine mimics the launcher calling convention: -t plugin -o trace
// -- target args. It writes one call line and exits with the first target
// argument.
const stubEngine = `#!/bin/sh
echo "[PID:$$] [Image:$6] [Called:sum] [At:100]" > "$4"
exit ${7:-0}
`

func TestLocalEngineRunner_Run(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, "pin")
	writeExecutable(t, launcher, stubEngine)

	trace := filepath.Join(dir, "trace.raw")

	runner := NewLocalEngineRunner()

	pid, exitCode, err := runner.Run(context.Background(), EngineSpec{
		Launcher:  m.Path(launcher),
		Plugin:    m.Path(filepath.Join(dir, "FuncTracer.so")),
		TracePath: m.Path(trace),
		Target:    "/var/coverage/bin/calc.0123456789ab",
		Args:      []string{"0"},
		Stdout:    &bytes.Buffer{},
		Stderr:    &bytes.Buffer{},
	})

	require.NoError(t, err)
	assert.Positive(t, pid)
	assert.Zero(t, exitCode)

	content, err := os.ReadFile(trace)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[Image:/var/coverage/bin/calc.0123456789ab] [Called:sum]")
}

func TestLocalEngineRunner_Run_ExitCodePassesThrough(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, "pin")
	writeExecutable(t, launcher, stubEngine)

	runner := NewLocalEngineRunner()

	_, exitCode, err := runner.Run(context.Background(), EngineSpec{
		Launcher:  m.Path(launcher),
		Plugin:    "FuncTracer.so",
		TracePath: m.Path(filepath.Join(dir, "trace.raw")),
		Target:    "/bin/whatever",
		Args:      []string{"3"},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, exitCode)
}

func TestLocalEngineRunner_Run_MissingLauncher(t *testing.T) {
	runner := NewLocalEngineRunner()

	_, _, err := runner.Run(context.Background(), EngineSpec{
		Launcher: "/nonexistent/pin",
		Target:   "/bin/whatever",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, m.ErrEngineFailure)
}

func TestLocalEngineRunner_Run_Timeout(t *testing.T) {
	dir := t.TempDir()
	launcher := filepath.Join(dir, "pin")
	writeExecutable(t, launcher, "#!/bin/sh\nsleep 10\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	runner := NewLocalEngineRunner()

	_, _, err := runner.Run(ctx, EngineSpec{
		Launcher:  m.Path(launcher),
		TracePath: m.Path(filepath.Join(dir, "trace.raw")),
		Target:    "/bin/whatever",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, m.ErrEngineFailure)
}
