package model

import "errors"

// Error kinds surfaced by the CLI. Wrap them with %w and match with
// errors.Is; every fatal message names the failing path and operation.
var (
	// ErrNotFound marks a missing binary, log directory or stash copy.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedFormat marks an unrecognized executable header or an
	// unknown report format.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrAlreadyWrapped rejects wrapping a binary that carries the wrap
	// signature.
	ErrAlreadyWrapped = errors.New("already wrapped")
	// ErrNotWrapped rejects unwrapping a binary without the signature.
	ErrNotWrapped = errors.New("not wrapped")
	// ErrNoDebugInfo marks a binary whose debug metadata is absent or
	// unparsable, making symbol extraction impossible.
	ErrNoDebugInfo = errors.New("no debug info")
	// ErrCorruptLog marks an unreadable run log. Non-fatal: aggregation
	// skips the file and proceeds over the rest.
	ErrCorruptLog = errors.New("corrupt run log")
	// ErrCorruptArtifact marks a wrapped artifact whose container is
	// present but damaged. Distinct from ErrNotWrapped so a broken wrap
	// is never mistaken for a pristine binary.
	ErrCorruptArtifact = errors.New("corrupt wrapped artifact")
	// ErrEngineFailure marks an instrumentation engine that could not be
	// located, started or attached. Fatal for that execution only.
	ErrEngineFailure = errors.New("instrumentation engine failure")
)
