package pkg

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// FileSpill buffers items of type T in a gob-encoded scratch file so a
// stream of any length never has to sit in memory. Items are appended
// while producing and replayed in order with Range; Close discards the
// scratch file.
type FileSpill[T any] interface {
	Len() uint64
	Path() string
	Append(item T) error
	Range(fn func(index uint64, item T) error) error
	Close() error
}

type spillFile[T any] struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	enc   *gob.Encoder
	count uint64
}

// NewFileSpill creates a spill backed by a scratch file in dir, which must
// exist. An empty dir falls back to the system temp directory.
func NewFileSpill[T any](dir string) (FileSpill[T], error) {
	if dir == "" {
		dir = os.TempDir()
	}

	file, err := os.CreateTemp(dir, "spill-*.gob")
	if err != nil {
		slog.Error("failed to create spill file", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}

	slog.Debug("spill file created", "path", file.Name())

	return &spillFile[T]{
		path: file.Name(),
		file: file,
		enc:  gob.NewEncoder(file),
	}, nil
}

// Len implements FileSpill.
func (s *spillFile[T]) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

// Path implements FileSpill.
func (s *spillFile[T]) Path() string {
	return s.path
}

// Append implements FileSpill.
func (s *spillFile[T]) Append(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("spill %s is closed", s.path)
	}

	if err := s.enc.Encode(item); err != nil {
		slog.Error("failed to spill item", "path", s.path, "index", s.count, "error", err)
		return fmt.Errorf("failed to spill item %d: %w", s.count, err)
	}

	s.count++

	return nil
}

// Range implements FileSpill. It replays every appended item in order and
// stops at the first callback error.
func (s *spillFile[T]) Range(fn func(index uint64, item T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("spill %s is closed", s.path)
	}

	reader, err := os.Open(s.path)
	if err != nil {
		slog.Error("failed to open spill for replay", "path", s.path, "error", err)
		return fmt.Errorf("failed to open spill: %w", err)
	}

	defer func() {
		if err := reader.Close(); err != nil {
			slog.Error("failed to close spill reader", "path", s.path, "error", err)
		}
	}()

	dec := gob.NewDecoder(reader)

	for i := uint64(0); i < s.count; i++ {
		var item T

		if err := dec.Decode(&item); err != nil {
			slog.Error("failed to decode spilled item", "path", s.path, "index", i, "error", err)
			return fmt.Errorf("failed to decode spilled item %d: %w", i, err)
		}

		if err := fn(i, item); err != nil {
			return err
		}
	}

	return nil
}

// Close implements FileSpill. It removes the scratch file; the spill is
// unusable afterwards. Closing twice is harmless.
func (s *spillFile[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.file.Close(); err != nil {
		slog.Error("failed to close spill file", "path", s.path, "error", err)
		return err
	}

	s.file = nil

	if err := os.Remove(s.path); err != nil {
		slog.Warn("failed to remove spill file", "path", s.path, "error", err)
	}

	slog.Debug("spill discarded", "path", s.path, "items", s.count)

	return nil
}
