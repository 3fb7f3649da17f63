// Package fingerprint computes perceptual fingerprints used to link a
// verified document back to an issued record even when the watermark
// itself cannot be decoded: a 64-bit image difference hash and a 64-bit
// text SimHash.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

const dhashSize = 8

// DHash computes a 64-bit difference hash from image bytes (PNG or JPEG),
// returned as 16 lowercase hex characters. The image is grayscaled and
// downscaled to 9x8 (BiLinear, the closest area-filter equivalent this
// ecosystem offers), then each row contributes 8 bits comparing adjacent
// pixels left-to-right, MSB first.
func DHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("dhash: decoding image: %w", err)
	}

	gray := toGray(img)
	resized := resizeGray(gray, dhashSize+1, dhashSize)

	var value uint64
	for y := 0; y < dhashSize; y++ {
		for x := 0; x < dhashSize; x++ {
			value <<= 1
			if resized.GrayAt(x+1, y).Y > resized.GrayAt(x, y).Y {
				value |= 1
			}
		}
	}
	return fmt.Sprintf("%016x", value), nil
}

func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}
