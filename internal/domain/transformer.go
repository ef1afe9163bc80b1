package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"funcov.dev/pkg/funcov/internal/adapter"
	m "funcov.dev/pkg/funcov/internal/model"
)

// Transformer turns target binaries into wrapped artifacts and back. Both
// directions replace the file in place and atomically, so a crash never
// leaves a target half-transformed.
type Transformer interface {
	// Wrap stashes the binary at path inside a launcher artifact and
	// returns the symbol universe extracted from it. The path must hold
	// a readable ELF executable with debug metadata, and the engine must
	// be locatable, otherwise nothing is written.
	Wrap(ctx context.Context, path m.Path, settings m.Settings) (m.SymbolSet, error)

	// Unwrap restores the original binary at path from its artifact and
	// removes the runtime stash copy.
	Unwrap(ctx context.Context, path m.Path) error
}

type transformer struct {
	fs      adapter.BinaryFS
	symbols adapter.SymbolReader
	codec   adapter.ArtifactCodec
	engine  adapter.EngineRunner
}

// NewTransformer constructs a Transformer backed by the provided filesystem,
// symbol, artifact and engine adapters.
func NewTransformer(
	fs adapter.BinaryFS,
	symbols adapter.SymbolReader,
	codec adapter.ArtifactCodec,
	engine adapter.EngineRunner,
) Transformer {
	return &transformer{
		fs:      fs,
		symbols: symbols,
		codec:   codec,
		engine:  engine,
	}
}

func (t *transformer) Wrap(ctx context.Context, path m.Path, settings m.Settings) (m.SymbolSet, error) {
	if err := ctx.Err(); err != nil {
		return m.SymbolSet{}, err
	}

	target, info, content, err := t.loadTarget(path)
	if err != nil {
		return m.SymbolSet{}, err
	}

	if err := t.checkWrappable(path, content); err != nil {
		return m.SymbolSet{}, err
	}

	set, err := t.symbols.ReadSymbols(target, settings.DebugRoot)
	if err != nil {
		slog.Error("failed to extract symbols", "path", target, "error", err)
		return m.SymbolSet{}, fmt.Errorf("failed to extract symbols from %s: %w", target, err)
	}

	// Locate the engine before writing anything: a wrapped binary whose
	// manifest points nowhere would break on its next execution.
	launcher, plugin, err := t.engine.Locate(settings)
	if err != nil {
		return m.SymbolSet{}, err
	}

	digest := t.fs.HashBytes(content)

	stashCopy, err := t.placeStashCopy(target, digest, content, info.Mode().Perm(), settings)
	if err != nil {
		return m.SymbolSet{}, err
	}

	manifest := m.Manifest{
		FormatVersion:  m.ManifestVersion,
		Target:         target,
		Mode:           uint32(info.Mode().Perm()),
		StashDigest:    digest,
		StashCopy:      stashCopy,
		EngineLauncher: launcher,
		EnginePlugin:   plugin,
		LogDir:         settings.LogDir,
		Runner:         settings.Self,
		Symbols:        m.NewManifestSymbols(set),
		Ignored:        set.Ignored,
	}

	artifact, err := t.codec.Build(manifest, content)
	if err != nil {
		slog.Error("failed to build artifact", "path", target, "error", err)
		return m.SymbolSet{}, fmt.Errorf("failed to build artifact for %s: %w", target, err)
	}

	if err := t.fs.ReplaceFile(target, artifact, info.Mode().Perm()); err != nil {
		if removeErr := t.fs.Remove(stashCopy); removeErr != nil {
			slog.Error("failed to remove stash copy after aborted wrap", "path", stashCopy, "error", removeErr)
		}

		slog.Error("failed to replace target with artifact", "path", target, "error", err)

		return m.SymbolSet{}, fmt.Errorf("failed to replace %s: %w", target, err)
	}

	slog.Debug("wrapped binary",
		"path", target, "digest", digest, "functions", set.Len(), "stash", stashCopy)

	return set, nil
}

func (t *transformer) Unwrap(ctx context.Context, path m.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, _, content, err := t.loadTarget(path)
	if err != nil {
		return err
	}

	manifest, stash, err := t.codec.Read(content)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if !adapter.IsELF(stash) {
		slog.Warn("stashed content is not an ELF executable", "path", target)
	}

	if err := t.fs.ReplaceFile(target, stash, os.FileMode(manifest.Mode)); err != nil {
		slog.Error("failed to restore original binary", "path", target, "error", err)
		return fmt.Errorf("failed to restore %s: %w", target, err)
	}

	if err := t.fs.Remove(manifest.StashCopy); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove stash copy", "path", manifest.StashCopy, "error", err)
	}

	slog.Debug("restored binary", "path", target, "digest", manifest.StashDigest)

	return nil
}

// loadTarget resolves path down to the real file and reads it. Wrap and
// unwrap both operate on the resolved target so a symlinked binary is
// transformed exactly once.
func (t *transformer) loadTarget(path m.Path) (m.Path, os.FileInfo, []byte, error) {
	info, err := t.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil, fmt.Errorf("%s: %w", path, m.ErrNotFound)
		}

		return "", nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return "", nil, nil, fmt.Errorf("%s is not a regular file: %w", path, m.ErrUnsupportedFormat)
	}

	target, err := t.fs.ResolveSymlinks(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	content, err := t.fs.ReadFile(target)
	if err != nil {
		slog.Error("failed to read target", "path", target, "error", err)
		return "", nil, nil, fmt.Errorf("failed to read %s: %w", target, err)
	}

	return target, info, content, nil
}

func (t *transformer) checkWrappable(path m.Path, content []byte) error {
	_, _, err := t.codec.Read(content)

	switch {
	case err == nil:
		return fmt.Errorf("%s: %w", path, m.ErrAlreadyWrapped)
	case errors.Is(err, m.ErrCorruptArtifact):
		return fmt.Errorf("%s: %w", path, err)
	case !errors.Is(err, m.ErrNotWrapped):
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	if !adapter.IsELF(content) {
		return fmt.Errorf("%s is not an ELF executable: %w", path, m.ErrUnsupportedFormat)
	}

	return nil
}

// placeStashCopy writes the runtime copy the engine will execute. The name
// carries the digest so copies of different builds never collide.
func (t *transformer) placeStashCopy(
	target m.Path,
	digest string,
	content []byte,
	perm os.FileMode,
	settings m.Settings,
) (m.Path, error) {
	if err := t.fs.MkdirAll(settings.StashDir, 0o755); err != nil {
		slog.Error("failed to create stash directory", "path", settings.StashDir, "error", err)
		return "", fmt.Errorf("failed to create stash directory %s: %w", settings.StashDir, err)
	}

	stashCopy := t.fs.JoinPath(string(settings.StashDir), fmt.Sprintf("%s.%s", target.Base(), digest[:12]))

	if err := t.fs.WriteFile(stashCopy, content, perm); err != nil {
		slog.Error("failed to write stash copy", "path", stashCopy, "error", err)
		return "", fmt.Errorf("failed to write stash copy %s: %w", stashCopy, err)
	}

	return stashCopy, nil
}
