package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func gradientPNG(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8((x + y) % 256)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDHashIsStableAcrossLosslessReencode(t *testing.T) {
	data := gradientPNG(t, 128)
	h1, err := DHash(data)
	require.NoError(t, err)
	require.Len(t, h1, 16)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	var reencoded bytes.Buffer
	require.NoError(t, png.Encode(&reencoded, img))

	h2, err := DHash(reencoded.Bytes())
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestDHashToleratesJPEGRecompression(t *testing.T) {
	data := gradientPNG(t, 128)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	var jpegBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: 95}))

	h1, err := DHash(data)
	require.NoError(t, err)
	h2, err := DHash(jpegBuf.Bytes())
	require.NoError(t, err)

	dist, err := HammingDistanceHex64(h1, h2)
	require.NoError(t, err)
	require.LessOrEqual(t, dist, 8)
}

func TestSimHashEmptyBelowTokenFloor(t *testing.T) {
	require.Equal(t, "", SimHash("too few words here"))
	require.Equal(t, "", SimHash(""))
}

func TestSimHashStableAndLength16(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 5)
	h := SimHash(text)
	require.Len(t, h, 16)
	require.Equal(t, h, SimHash(text))
}

func TestSimHashSimilarTextCloseDistance(t *testing.T) {
	base := strings.Repeat("provenance watermark record issued signer thumbprint hash region anchor ", 3)
	modified := base + "extra trailing words appended to the document body"

	h1 := SimHash(base)
	h2 := SimHash(modified)
	require.NotEmpty(t, h1)
	require.NotEmpty(t, h2)

	dist, err := HammingDistanceHex64(h1, h2)
	require.NoError(t, err)
	require.Less(t, dist, 32)
}

func TestHammingDistanceIdenticalIsZero(t *testing.T) {
	dist, err := HammingDistanceHex64("abcd1234abcd1234", "abcd1234abcd1234")
	require.NoError(t, err)
	require.Equal(t, 0, dist)
}

func TestHammingDistanceRejectsBadHex(t *testing.T) {
	_, err := HammingDistanceHex64("not-hex", "abcd1234abcd1234")
	require.Error(t, err)
}
