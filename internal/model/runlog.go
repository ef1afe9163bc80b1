package model

import "time"

// CallEvent is one function-entry observation made by the instrumentation
// engine. Name is the resolved symbol when the engine knew one; otherwise
// Name is empty and Addr carries the raw entry address.
type CallEvent struct {
	Name   string
	Addr   uint64
	Offset time.Duration // elapsed since the run started
}

// RunLog is the durable record of one execution of a wrapped binary. It is
// self-contained: the identity and symbol universe travel with the events so
// logs from different binaries can share a directory without
// cross-contaminating aggregation.
type RunLog struct {
	FormatVersion int
	Identity      BinaryIdentity
	PID           int
	Started       time.Time
	Symbols       SymbolSet
	Events        []CallEvent
	ExitCode      int
	// SkippedEvents counts malformed event lines dropped while reading.
	SkippedEvents int
}
