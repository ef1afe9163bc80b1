package model

// ManifestVersion is the current manifest format carried inside wrapped
// artifacts. Readers reject manifests written by a newer funcov.
const ManifestVersion = 1

// ManifestSymbol is the serialized form of one Symbol.
type ManifestSymbol struct {
	Name  string `yaml:"name"`
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// Manifest travels inside a wrapped artifact and carries everything a later
// `funcov run` or `funcov unwrap` needs without re-reading configuration:
// where the runtime copy of the original lives, how to reach the
// instrumentation engine, and the symbol universe captured at wrap time.
type Manifest struct {
	FormatVersion int `yaml:"format_version"`

	// Target is the resolved path the artifact sits at.
	Target Path `yaml:"target"`
	// Mode is the permission bits of the original binary.
	Mode uint32 `yaml:"mode"`

	// StashDigest is the hex SHA-256 of the original content. It pins
	// run logs to one build of the binary and verifies the stash.
	StashDigest string `yaml:"stash_digest"`
	// StashCopy is where the runtime copy of the original is placed so
	// the engine can execute it while the wrapped path is occupied by
	// the launcher.
	StashCopy Path `yaml:"stash_copy"`

	EngineLauncher Path `yaml:"engine_launcher"`
	EnginePlugin   Path `yaml:"engine_plugin"`

	// LogDir receives one run log per execution of this artifact.
	LogDir Path `yaml:"log_dir"`
	// Runner is the funcov executable the launcher script delegates to.
	Runner Path `yaml:"runner"`

	Symbols []ManifestSymbol `yaml:"symbols"`
	Ignored []string         `yaml:"ignored_duplicates,omitempty"`
}

// Identity returns the binary identity recorded at wrap time.
func (mf Manifest) Identity() BinaryIdentity {
	return BinaryIdentity{Target: mf.Target, Digest: mf.StashDigest}
}

// SymbolSet reconstructs the symbol universe captured at wrap time.
func (mf Manifest) SymbolSet() SymbolSet {
	symbols := make([]Symbol, len(mf.Symbols))
	for i, sym := range mf.Symbols {
		symbols[i] = Symbol{Name: sym.Name, Start: sym.Start, End: sym.End}
	}

	return SymbolSet{Symbols: symbols, Ignored: mf.Ignored}
}

// NewManifestSymbols converts a SymbolSet into its serialized form.
func NewManifestSymbols(set SymbolSet) []ManifestSymbol {
	symbols := make([]ManifestSymbol, len(set.Symbols))
	for i, sym := range set.Symbols {
		symbols[i] = ManifestSymbol{Name: sym.Name, Start: sym.Start, End: sym.End}
	}

	return symbols
}
