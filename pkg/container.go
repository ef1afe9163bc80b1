// Package pkg is a package that provides utilities for funcov.
package pkg

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
)

// ContainerVersion is the current on-disk container format version.
const ContainerVersion = 1

const (
	bodyMagic   = "FNCVBODY"
	footerMagic = "FNCVFOOT"

	magicSize  = 8
	footerSize = magicSize + 4 + 8 // magic + version + body offset
	digestSize = sha256.Size

	// minBodySize is a body with empty manifest and payload.
	minBodySize = magicSize + 4 + 4 + 8 + digestSize

	// maxManifestSize bounds the manifest length read from disk so a
	// damaged length prefix cannot trigger a huge allocation.
	maxManifestSize = 64 << 20
)

// Container errors. Callers translate them into their own taxonomy.
var (
	// ErrNoContainer means the data carries no container at all.
	ErrNoContainer = errors.New("no container present")
	// ErrDamagedContainer means a container is present but fails
	// structural or digest validation.
	ErrDamagedContainer = errors.New("damaged container")
	// ErrContainerVersion means the container was written by a newer
	// format version than this build understands.
	ErrContainerVersion = errors.New("unsupported container version")
)

// Container is a versioned, length-prefixed block appended to a carrier
// file. The footer at the end of the file records where the block starts, so
// detection never scans the carrier or the payload for marker bytes; a
// payload that happens to contain the markers cannot confuse it.
type Container struct {
	Version  uint32
	Manifest []byte
	Payload  []byte
}

// Seal appends the container body and footer to carrier and returns the
// combined bytes. The carrier itself is not interpreted.
func Seal(carrier []byte, c Container) []byte {
	if c.Version == 0 {
		c.Version = ContainerVersion
	}

	offset := uint64(len(carrier))
	digest := bodyDigest(c.Manifest, c.Payload)

	out := make([]byte, 0, len(carrier)+minBodySize+len(c.Manifest)+len(c.Payload)+footerSize)
	out = append(out, carrier...)

	out = append(out, bodyMagic...)
	out = binary.BigEndian.AppendUint32(out, c.Version)
	out = binary.BigEndian.AppendUint32(out, uint32(len(c.Manifest)))
	out = append(out, c.Manifest...)
	out = binary.BigEndian.AppendUint64(out, uint64(len(c.Payload)))
	out = append(out, c.Payload...)
	out = append(out, digest...)

	out = append(out, footerMagic...)
	out = binary.BigEndian.AppendUint32(out, c.Version)
	out = binary.BigEndian.AppendUint64(out, offset)

	slog.Debug("sealed container", "carrier", len(carrier), "manifest", len(c.Manifest), "payload", len(c.Payload))

	return out
}

// Open parses the container at the end of data and returns it together with
// the carrier offset (the number of leading bytes that belong to the carrier,
// i.e. where the body starts). It returns ErrNoContainer when no footer is
// present, ErrContainerVersion for formats newer than this build, and
// ErrDamagedContainer when framing or the body digest does not hold.
func Open(data []byte) (Container, int64, error) {
	if len(data) < footerSize+minBodySize {
		return Container{}, 0, ErrNoContainer
	}

	footer := data[len(data)-footerSize:]
	if !bytes.Equal(footer[:magicSize], []byte(footerMagic)) {
		return Container{}, 0, ErrNoContainer
	}

	version := binary.BigEndian.Uint32(footer[magicSize : magicSize+4])
	offset := binary.BigEndian.Uint64(footer[magicSize+4:])

	if version == 0 {
		return Container{}, 0, fmt.Errorf("%w: version 0", ErrDamagedContainer)
	}

	if version > ContainerVersion {
		return Container{}, 0, fmt.Errorf("%w: version %d", ErrContainerVersion, version)
	}

	bodyEnd := uint64(len(data) - footerSize)
	if offset > bodyEnd || bodyEnd-offset < minBodySize {
		return Container{}, 0, fmt.Errorf("%w: body offset %d out of range", ErrDamagedContainer, offset)
	}

	container, err := parseBody(data[offset:bodyEnd], version)
	if err != nil {
		return Container{}, 0, err
	}

	slog.Debug("opened container", "version", version, "carrier", offset, "payload", len(container.Payload))

	return container, int64(offset), nil
}

// Has reports whether data ends in a structurally valid container.
func Has(data []byte) bool {
	_, _, err := Open(data)
	return err == nil
}

func parseBody(body []byte, version uint32) (Container, error) {
	if !bytes.Equal(body[:magicSize], []byte(bodyMagic)) {
		return Container{}, fmt.Errorf("%w: body magic mismatch", ErrDamagedContainer)
	}

	bodyVersion := binary.BigEndian.Uint32(body[magicSize : magicSize+4])
	if bodyVersion != version {
		return Container{}, fmt.Errorf("%w: body version %d != footer version %d", ErrDamagedContainer, bodyVersion, version)
	}

	manifestLen := uint64(binary.BigEndian.Uint32(body[magicSize+4 : magicSize+8]))
	if manifestLen > maxManifestSize {
		return Container{}, fmt.Errorf("%w: manifest length %d exceeds limit", ErrDamagedContainer, manifestLen)
	}

	rest := body[magicSize+8:]
	if uint64(len(rest)) < manifestLen+8+digestSize {
		return Container{}, fmt.Errorf("%w: truncated manifest", ErrDamagedContainer)
	}

	manifest := rest[:manifestLen]
	rest = rest[manifestLen:]

	payloadLen := binary.BigEndian.Uint64(rest[:8])
	rest = rest[8:]

	// Strict framing: payload plus digest must consume the body exactly.
	if uint64(len(rest)) != payloadLen+digestSize {
		return Container{}, fmt.Errorf("%w: payload length %d does not match body", ErrDamagedContainer, payloadLen)
	}

	payload := rest[:payloadLen]
	want := rest[payloadLen:]

	got := bodyDigest(manifest, payload)
	if !bytes.Equal(got, want) {
		return Container{}, fmt.Errorf("%w: body digest mismatch", ErrDamagedContainer)
	}

	return Container{
		Version:  version,
		Manifest: manifest,
		Payload:  payload,
	}, nil
}

// bodyDigest covers manifest and payload so damage to either is caught.
func bodyDigest(manifest, payload []byte) []byte {
	h := sha256.New()
	h.Write(manifest)
	h.Write(payload)

	return h.Sum(nil)
}
