package resultcache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte(`{"created_at_unix":1700000000,"axes":[],"cells":[]}`)

	buf := encodeEnvelope(payload)
	got, err := decodeEnvelope(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestEnvelopeDetectsChecksumMismatch(t *testing.T) {
	buf := encodeEnvelope([]byte("hello"))
	// The builder pads the 5-byte vector to a 4-byte boundary, so the
	// last buffer byte is padding; locate the payload itself.
	buf[bytes.Index(buf, []byte("hello"))+4] ^= 0xFF // corrupt the last payload byte

	_, err := decodeEnvelope(buf)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
