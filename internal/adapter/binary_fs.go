// Package adapter contains filesystem, engine and report adapters for the
// funcov CLI.
package adapter

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	m "funcov.dev/pkg/funcov/internal/model"
)

// BinaryFS abstracts the filesystem operations the domain layer performs on
// target binaries, stash copies and trace files. It hides direct `os` access
// so wrap/unwrap logic can be tested without touching the disk.
type BinaryFS interface {
	// Stat returns metadata for a path.
	Stat(path m.Path) (os.FileInfo, error)

	// ReadFile loads a file from disk and returns its contents.
	ReadFile(path m.Path) ([]byte, error)

	// HashBytes returns the hex SHA-256 fingerprint of content.
	HashBytes(content []byte) string

	// ResolveSymlinks follows symlinks down to the real file so wrap
	// always transforms the final target, never a link.
	ResolveSymlinks(path m.Path) (m.Path, error)

	// ReplaceFile atomically replaces path with content: the bytes are
	// written to a temporary file in the same directory, the permissions
	// set, and the temporary file renamed over the original. A crash
	// mid-write never leaves a half-written file at path.
	ReplaceFile(path m.Path, content []byte, perm os.FileMode) error

	// WriteFile writes content to a new file with the given permissions.
	WriteFile(path m.Path, content []byte, perm os.FileMode) error

	// TempFile creates an empty temporary file inside dir.
	TempFile(dir m.Path, pattern string) (m.Path, error)

	// Remove deletes a single file.
	Remove(path m.Path) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path m.Path, perm os.FileMode) error

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// LocalBinaryFS is the os-backed BinaryFS implementation.
type LocalBinaryFS struct{}

// NewLocalBinaryFS constructs a LocalBinaryFS ready to be wired into the
// workflow.
func NewLocalBinaryFS() *LocalBinaryFS {
	return &LocalBinaryFS{}
}

// Stat returns os.FileInfo metadata for the given path.
func (a *LocalBinaryFS) Stat(path m.Path) (os.FileInfo, error) {
	return os.Stat(string(path))
}

// ReadFile loads file contents from disk.
func (a *LocalBinaryFS) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// HashBytes returns the hex SHA-256 of content.
func (a *LocalBinaryFS) HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}

// ResolveSymlinks follows symlinks to the real file.
func (a *LocalBinaryFS) ResolveSymlinks(path m.Path) (m.Path, error) {
	resolved, err := filepath.EvalSymlinks(string(path))
	if err != nil {
		return "", err
	}

	return m.Path(resolved), nil
}

// ReplaceFile atomically replaces the file at path with content.
func (a *LocalBinaryFS) ReplaceFile(path m.Path, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(string(path))

	tmp, err := os.CreateTemp(dir, ".funcov-replace-*")
	if err != nil {
		slog.Error("failed to create temp file", "dir", dir, "error", err)
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}

	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(content); err != nil {
		cleanup()
		slog.Error("failed to write temp file", "path", tmpName, "error", err)

		return fmt.Errorf("failed to write temp file %s: %w", tmpName, err)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, string(path)); err != nil {
		_ = os.Remove(tmpName)
		slog.Error("failed to rename temp file over target", "path", path, "error", err)

		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	slog.Debug("replaced file", "path", path, "bytes", len(content), "perm", perm)

	return nil
}

// WriteFile writes content to a file with the given permissions.
func (a *LocalBinaryFS) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	if err := os.WriteFile(string(path), content, perm); err != nil {
		return err
	}

	// WriteFile applies perm only on create; force it for existing files.
	return os.Chmod(string(path), perm)
}

// TempFile creates an empty temporary file inside dir.
func (a *LocalBinaryFS) TempFile(dir m.Path, pattern string) (m.Path, error) {
	f, err := os.CreateTemp(string(dir), pattern)
	if err != nil {
		return "", err
	}

	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}

	return m.Path(name), nil
}

// Remove deletes a single file.
func (a *LocalBinaryFS) Remove(path m.Path) error {
	return os.Remove(string(path))
}

// MkdirAll creates a directory and any missing parents.
func (a *LocalBinaryFS) MkdirAll(path m.Path, perm os.FileMode) error {
	return os.MkdirAll(string(path), perm)
}

// JoinPath joins path elements into a single path.
func (a *LocalBinaryFS) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
