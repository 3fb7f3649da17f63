package watermark

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackPayloadRoundtrip(t *testing.T) {
	idHex, err := newTestID()
	require.NoError(t, err)

	payload, err := PackPayload(idHex, "s3cret")
	require.NoError(t, err)
	require.Len(t, payload, payloadSize)
	require.Equal(t, byte(versionCurrent), payload[0])

	gotID, err := UnpackPayload(payload, "s3cret")
	require.NoError(t, err)
	require.Equal(t, idHex, gotID)
}

func TestUnpackPayloadRejectsWrongSecret(t *testing.T) {
	idHex, err := newTestID()
	require.NoError(t, err)

	payload, err := PackPayload(idHex, "s3cret")
	require.NoError(t, err)

	_, err = UnpackPayload(payload, "wrong-secret")
	require.Error(t, err)
}

func TestUnpackPayloadRejectsWrongLength(t *testing.T) {
	_, err := UnpackPayload([]byte("too short"), "s3cret")
	require.Error(t, err)
}

func TestUnpackPayloadRejectsVersionSwapWithoutRetag(t *testing.T) {
	idHex, err := newTestID()
	require.NoError(t, err)

	payload, err := PackPayload(idHex, "s3cret")
	require.NoError(t, err)
	payload[0] = versionLegacy

	// Tag was computed over the v2 header; forcing the version byte to
	// legacy without recomputing the tag must therefore fail, demonstrating
	// the tag binds the whole header rather than just the id.
	_, err = UnpackPayload(payload, "s3cret")
	require.Error(t, err)
}

func TestWatermarkCodeDerivation(t *testing.T) {
	code, err := WatermarkCode("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	require.Equal(t, "WMK-001122334455", code)
}

func newTestID() (string, error) {
	return "0123456789abcdef0123456789abcdef", nil
}
