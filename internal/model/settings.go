package model

import "time"

// Settings carries the wrap/execution configuration resolved by the CLI.
// The domain receives it explicitly at call time instead of reading ambient
// environment state, which keeps wrap, unwrap and report independently
// testable and safe to run in parallel.
type Settings struct {
	// EngineRoot is the instrumentation engine installation directory.
	EngineRoot Path
	// PluginDir is searched recursively for the tracer plugin.
	PluginDir Path
	// LogDir receives one run log per wrapped execution.
	LogDir Path
	// StashDir holds the runtime copies of stashed originals.
	StashDir Path
	// DebugRoot is the system directory for external debug files.
	DebugRoot Path
	// Self is the funcov executable path baked into wrapped launchers.
	Self Path
	// RunTimeout bounds one wrapped execution under the engine.
	RunTimeout time.Duration
}
