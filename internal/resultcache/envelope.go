package resultcache

import (
	"fmt"
	"hash/crc32"

	flatbuffers "github.com/google/flatbuffers/go"
)

// envelopeWireVersion guards against reading a payload written by an
// incompatible build of this package.
const envelopeWireVersion uint32 = 1

// Vtable field slots for the hand-built envelope table: WireVersion
// (uint32), Checksum (uint32, CRC32-IEEE of Payload), Payload (byte
// vector). No .proto/.fbs schema is checked into this tree — see
// internal/rpc/olapmetapb's package doc for why generated-code stand-ins
// are hand-declared here rather than run through flatc in this
// exercise; the same convention applies to this envelope.
const (
	envFieldWireVersion = 0
	envFieldChecksum    = 1
	envFieldPayload     = 2
)

var (
	// ErrIncompatibleWireVersion is returned when a cached envelope was
	// written by an incompatible version of this package.
	ErrIncompatibleWireVersion = fmt.Errorf("resultcache: incompatible envelope wire version")
	// ErrChecksumMismatch is returned when a decoded payload's CRC32
	// doesn't match the envelope's recorded checksum.
	ErrChecksumMismatch = fmt.Errorf("resultcache: payload checksum mismatch")
)

// envelope is the hand-built flatbuffers table wrapping a cached
// entry's JSON payload, adapted from the teacher's
// src/storage/grid_cache.go GridWireEnvelope (wire version + CRC32
// checksum + payload byte vector), minus the teacher's nested
// grid-specific flatbuffers schema: this cache stores a JSON-encoded
// Entry rather than an off-heap columnar grid, so one envelope level
// is enough.
type envelope struct {
	table flatbuffers.Table
}

func getRootAsEnvelope(buf []byte) *envelope {
	n := flatbuffers.GetUOffsetT(buf)
	e := &envelope{}
	e.table.Bytes = buf
	e.table.Pos = n
	return e
}

func (e *envelope) WireVersion() uint32 {
	o := e.table.Offset(flatbuffers.VOffsetT(4 + 2*envFieldWireVersion))
	if o == 0 {
		return 0
	}
	return e.table.GetUint32(o + e.table.Pos)
}

func (e *envelope) Checksum() uint32 {
	o := e.table.Offset(flatbuffers.VOffsetT(4 + 2*envFieldChecksum))
	if o == 0 {
		return 0
	}
	return e.table.GetUint32(o + e.table.Pos)
}

func (e *envelope) PayloadBytes() []byte {
	o := e.table.Offset(flatbuffers.VOffsetT(4 + 2*envFieldPayload))
	if o == 0 {
		return nil
	}
	return e.table.ByteVector(o + e.table.Pos)
}

// encodeEnvelope wraps payload in the wire-version/CRC32/payload
// envelope and returns the finished flatbuffers buffer.
func encodeEnvelope(payload []byte) []byte {
	checksum := crc32.ChecksumIEEE(payload)

	b := flatbuffers.NewBuilder(len(payload) + 64)
	payloadOff := b.CreateByteVector(payload)

	b.StartObject(3)
	b.PrependUint32Slot(envFieldWireVersion, envelopeWireVersion, 0)
	b.PrependUint32Slot(envFieldChecksum, checksum, 0)
	b.PrependUOffsetTSlot(envFieldPayload, payloadOff, 0)
	root := b.EndObject()
	b.Finish(root)

	return b.FinishedBytes()
}

// decodeEnvelope validates and unwraps an envelope produced by
// encodeEnvelope, returning the inner JSON payload.
func decodeEnvelope(buf []byte) ([]byte, error) {
	env := getRootAsEnvelope(buf)
	if env.WireVersion() != envelopeWireVersion {
		return nil, ErrIncompatibleWireVersion
	}
	payload := env.PayloadBytes()
	if crc32.ChecksumIEEE(payload) != env.Checksum() {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}
