package watermark

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSEncodeDecodeRoundtripNoErrors(t *testing.T) {
	data := []byte("the quick brown fox jumps over")
	nsym := 16

	codeword := rsEncode(data, nsym)
	require.Len(t, codeword, len(data)+nsym)

	decoded, err := rsDecode(codeword, nsym)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestRSEncodeDecodeCorrectsSingleByteError(t *testing.T) {
	data := make([]byte, payloadSize)
	for i := range data {
		data[i] = byte(i * 7)
	}
	nsym := 32

	codeword := rsEncode(data, nsym)
	corrupted := append([]byte(nil), codeword...)
	corrupted[3] ^= 0xFF

	decoded, err := rsDecode(corrupted, nsym)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestRSEncodeDecodeCorrectsThreeByteErrors(t *testing.T) {
	data := make([]byte, payloadSize)
	for i := range data {
		data[i] = byte(i*7 + 1)
	}
	nsym := 32

	codeword := rsEncode(data, nsym)
	corrupted := append([]byte(nil), codeword...)
	corrupted[1] ^= 0xFF
	corrupted[10] ^= 0x0A
	corrupted[len(corrupted)-1] ^= 0x55

	decoded, err := rsDecode(corrupted, nsym)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestRSEncodeDecodeCorrectsMaxByteErrors(t *testing.T) {
	data := make([]byte, payloadSize)
	for i := range data {
		data[i] = byte(i*3 + 2)
	}
	nsym := 32

	codeword := rsEncode(data, nsym)
	corrupted := append([]byte(nil), codeword...)
	for i := 0; i < nsym/2; i++ {
		corrupted[i*3] ^= byte(0x11 * (i + 1))
	}

	decoded, err := rsDecode(corrupted, nsym)
	require.NoError(t, err)
	require.Equal(t, data, decoded)
}

func TestGFArithmeticInverseRoundtrips(t *testing.T) {
	for a := 1; a < 256; a++ {
		inv := gfInverse(byte(a))
		require.Equal(t, byte(1), gfMul(byte(a), inv))
	}
}
