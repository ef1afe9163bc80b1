package adapter

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	m "funcov.dev/pkg/funcov/internal/model"
	"funcov.dev/pkg/funcov/pkg"
)

// WrapSignature marks every wrapped artifact. It sits in a launcher comment
// so `grep` and `file` reveal the wrap at a glance, but wrap detection goes
// through the sealed container, never through this string.
const WrapSignature = "funcov wrapped executable"

// The launcher keeps the wrapped path runnable: `exec` never returns, so the
// shell stops reading before it reaches the sealed container bytes.
const launcherFormat = `#!/bin/sh
# ` + WrapSignature + ` -- run 'funcov unwrap' to restore the original.
exec %q run --wrapped "$0" -- "$@"
exit 0
`

// ArtifactCodec builds and reads wrapped artifacts: a shell launcher as the
// carrier with the manifest and the original binary sealed behind it.
type ArtifactCodec interface {
	// Build renders the launcher for manifest and seals manifest and
	// stash behind it.
	Build(manifest m.Manifest, stash []byte) ([]byte, error)

	// Read decodes a wrapped artifact into its manifest and the original
	// binary content. Plain files yield ErrNotWrapped; a container that
	// is present but broken yields ErrCorruptArtifact.
	Read(content []byte) (m.Manifest, []byte, error)

	// IsWrapped reports whether content carries a sealed container.
	IsWrapped(content []byte) bool
}

// ContainerArtifactCodec is the production ArtifactCodec.
type ContainerArtifactCodec struct{}

// NewContainerArtifactCodec creates a new ContainerArtifactCodec.
func NewContainerArtifactCodec() *ContainerArtifactCodec {
	return &ContainerArtifactCodec{}
}

// Build implements ArtifactCodec.
func (c *ContainerArtifactCodec) Build(manifest m.Manifest, stash []byte) ([]byte, error) {
	if manifest.FormatVersion == 0 {
		manifest.FormatVersion = m.ManifestVersion
	}

	encoded, err := yaml.Marshal(manifest)
	if err != nil {
		slog.Error("failed to encode manifest", "target", manifest.Target, "error", err)
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	launcher := fmt.Sprintf(launcherFormat, string(manifest.Runner))

	return pkg.Seal([]byte(launcher), pkg.Container{Manifest: encoded, Payload: stash}), nil
}

// Read implements ArtifactCodec.
func (c *ContainerArtifactCodec) Read(content []byte) (m.Manifest, []byte, error) {
	container, _, err := pkg.Open(content)

	switch {
	case errors.Is(err, pkg.ErrNoContainer):
		return m.Manifest{}, nil, m.ErrNotWrapped
	case err != nil:
		slog.Error("failed to open artifact container", "error", err)
		return m.Manifest{}, nil, fmt.Errorf("%w: %w", m.ErrCorruptArtifact, err)
	}

	var manifest m.Manifest
	if err := yaml.Unmarshal(container.Manifest, &manifest); err != nil {
		slog.Error("failed to decode manifest", "error", err)
		return m.Manifest{}, nil, fmt.Errorf("%w: undecodable manifest", m.ErrCorruptArtifact)
	}

	if manifest.FormatVersion > m.ManifestVersion {
		slog.Error("manifest from a newer funcov", "version", manifest.FormatVersion)
		return m.Manifest{}, nil, fmt.Errorf("%w: manifest version %d", m.ErrCorruptArtifact, manifest.FormatVersion)
	}

	if digest := fmt.Sprintf("%x", sha256.Sum256(container.Payload)); digest != manifest.StashDigest {
		slog.Error("stash digest mismatch", "target", manifest.Target, "want", manifest.StashDigest, "got", digest)
		return m.Manifest{}, nil, fmt.Errorf("%w: stash digest mismatch", m.ErrCorruptArtifact)
	}

	return manifest, container.Payload, nil
}

// IsWrapped implements ArtifactCodec.
func (c *ContainerArtifactCodec) IsWrapped(content []byte) bool {
	return pkg.Has(content)
}
