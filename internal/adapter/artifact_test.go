package adapter

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "funcov.dev/pkg/funcov/internal/model"
)

func testManifest(stash []byte) m.Manifest {
	return m.Manifest{
		Target:         "/usr/local/bin/calc",
		Mode:           0o755,
		StashDigest:    fmt.Sprintf("%x", sha256.Sum256(stash)),
		StashCopy:      "/var/coverage/bin/calc.0123456789ab",
		EngineLauncher: "/opt/engine/pin",
		EnginePlugin:   "/usr/lib64/coverage-tools/FuncTracer.so",
		LogDir:         "/var/coverage/data",
		Runner:         "/usr/local/bin/funcov",
		Symbols: []m.ManifestSymbol{
			{Name: "sum", Start: 0x401000, End: 0x401020},
			{Name: "sub", Start: 0x401020, End: 0x401040},
		},
		Ignored: []string{"helper"},
	}
}

func TestContainerArtifactCodec_RoundTrip(t *testing.T) {
	codec := NewContainerArtifactCodec()
	stash := []byte("\x7fELF original binary content")

	artifact, err := codec.Build(testManifest(stash), stash)
	require.NoError(t, err)

	text := string(artifact)
	assert.True(t, strings.HasPrefix(text, "#!/bin/sh\n"))
	assert.Contains(t, text, WrapSignature)
	assert.Contains(t, text, `exec "/usr/local/bin/funcov" run --wrapped "$0" -- "$@"`)

	require.True(t, codec.IsWrapped(artifact))

	decoded, restored, err := codec.Read(artifact)
	require.NoError(t, err)

	assert.Equal(t, stash, restored)
	assert.Equal(t, m.ManifestVersion, decoded.FormatVersion)
	assert.Equal(t, m.Path("/usr/local/bin/calc"), decoded.Target)
	assert.Equal(t, []string{"helper"}, decoded.Ignored)

	set := decoded.SymbolSet()
	require.Equal(t, 2, set.Len())
	assert.Equal(t, "sum", set.Symbols[0].Name)
	assert.Equal(t, uint64(0x401040), set.Symbols[1].End)
}

func TestContainerArtifactCodec_Read_PlainBinary(t *testing.T) {
	codec := NewContainerArtifactCodec()

	_, _, err := codec.Read([]byte("\x7fELF plain binary, no container"))

	require.Error(t, err)
	assert.ErrorIs(t, err, m.ErrNotWrapped)
	assert.False(t, codec.IsWrapped([]byte("\x7fELF plain binary, no container")))
}

func TestContainerArtifactCodec_Read_TruncatedArtifact(t *testing.T) {
	codec := NewContainerArtifactCodec()
	stash := []byte("\x7fELF original")

	artifact, err := codec.Build(testManifest(stash), stash)
	require.NoError(t, err)

	// Chopping bytes out of the middle breaks the body digest.
	damaged := append([]byte{}, artifact[:40]...)
	damaged = append(damaged, artifact[48:]...)

	_, _, err = codec.Read(damaged)

	require.Error(t, err)
	assert.ErrorIs(t, err, m.ErrCorruptArtifact)
	assert.NotErrorIs(t, err, m.ErrNotWrapped)
}

func TestContainerArtifactCodec_Read_SwappedStash(t *testing.T) {
	codec := NewContainerArtifactCodec()
	stash := []byte("\x7fELF original")

	manifest := testManifest(stash)
	manifest.StashDigest = strings.Repeat("00", 32)

	artifact, err := codec.Build(manifest, stash)
	require.NoError(t, err)

	_, _, err = codec.Read(artifact)

	require.Error(t, err)
	assert.ErrorIs(t, err, m.ErrCorruptArtifact)
}
