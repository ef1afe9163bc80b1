// Package model defines the data structures for binary function coverage.
package model

import "path/filepath"

// Path represents a file system path.
type Path string

// Base returns the last element of the path.
func (p Path) Base() string {
	return filepath.Base(string(p))
}

// Dir returns all but the last element of the path.
func (p Path) Dir() Path {
	return Path(filepath.Dir(string(p)))
}

// BinaryIdentity pins run logs and coverage records to one target binary.
type BinaryIdentity struct {
	Target Path   // absolute path of the target binary
	Digest string // hex SHA-256 of the original, unwrapped content
}

// Name returns the display name used in reports and file names.
func (b BinaryIdentity) Name() string {
	return b.Target.Base()
}
