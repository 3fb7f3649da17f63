package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// decodedImage is the in-memory representation the watermarker and
// fingerprinters operate on: separated luma plane plus enough information
// to rebuild the original color image (and alpha, if any) afterward.
type decodedImage struct {
	Format string // "png" or "jpeg"
	Width  int
	Height int
	Y      [][]float32 // [row][col], full resolution luma
	Cr     [][]float32
	Cb     [][]float32
	Alpha  *image.Alpha // nil if the source had no alpha channel
}

// decodeImage decodes PNG or JPEG bytes into YCrCb planes. Other formats and
// images smaller than 64px after 8-alignment are rejected: the embedder needs
// at least one full 64px region to place. The channel layout is not checked;
// every decoded color model is converted to YCbCr.
func decodeImage(data []byte) (*decodedImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if (w/8)*8 < 64 || (h/8)*8 < 64 {
		return nil, fmt.Errorf("image too small after 8x8 alignment: %dx%d", w, h)
	}

	di := &decodedImage{Format: format, Width: w, Height: h}
	di.Y = make([][]float32, h)
	di.Cr = make([][]float32, h)
	di.Cb = make([][]float32, h)

	var alpha *image.Alpha
	if hasAlpha(img) {
		alpha = image.NewAlpha(bounds)
	}

	for y := 0; y < h; y++ {
		di.Y[y] = make([]float32, w)
		di.Cr[y] = make([]float32, w)
		di.Cb[y] = make([]float32, w)
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			yy, cb, cr := color.RGBToYCbCr(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			di.Y[y][x] = float32(yy)
			di.Cb[y][x] = float32(cb)
			di.Cr[y][x] = float32(cr)
			if alpha != nil {
				alpha.SetAlpha(x, y, color.Alpha{A: uint8(a >> 8)})
			}
		}
	}
	di.Alpha = alpha

	return di, nil
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return hasAnyTransparentPixel(img)
	}
	return false
}

func hasAnyTransparentPixel(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a != 0xFFFF {
				return true
			}
		}
	}
	return false
}

// encodeImage rebuilds an RGB(A) image from watermarked YCrCb planes and
// encodes it back to the original format: PNG preserves transparency, JPEG
// uses quality 95.
func (di *decodedImage) encodeImage() ([]byte, error) {
	bounds := image.Rect(0, 0, di.Width, di.Height)
	var out draw.Image
	if di.Alpha != nil && di.Format == "png" {
		out = image.NewNRGBA(bounds)
	} else {
		out = image.NewRGBA(bounds)
	}

	for y := 0; y < di.Height; y++ {
		for x := 0; x < di.Width; x++ {
			r, g, b := color.YCbCrToRGB(clampByte(di.Y[y][x]), clampByte(di.Cb[y][x]), clampByte(di.Cr[y][x]))
			a := uint8(255)
			if di.Alpha != nil {
				a = di.Alpha.AlphaAt(x, y).A
			}
			out.Set(x, y, color.NRGBA{R: r, G: g, B: b, A: a})
		}
	}

	var buf bytes.Buffer
	switch di.Format {
	case "png":
		if err := png.Encode(&buf, out); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	case "jpeg":
		if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 95}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported encode format %q", di.Format)
	}
	return buf.Bytes(), nil
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// resizeGrayscale resizes a single-channel float plane to the given
// dimensions for dHash's 9x8 reduction. The standard image/draw package has
// no Scaler at all (only whole-pixel image.Draw), so any resampling needs an
// outside implementation; golang.org/x/image/draw's BiLinear is the closest
// match this ecosystem offers to an area-averaging downscale filter.
func resizeGrayscale(plane [][]float32, width, height, newWidth, newHeight int) [][]float32 {
	src := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src.SetGray(x, y, color.Gray{Y: clampByte(plane[y][x])})
		}
	}

	dst := image.NewGray(image.Rect(0, 0, newWidth, newHeight))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	out := make([][]float32, newHeight)
	for y := 0; y < newHeight; y++ {
		out[y] = make([]float32, newWidth)
		for x := 0; x < newWidth; x++ {
			out[y][x] = float32(dst.GrayAt(x, y).Y)
		}
	}
	return out
}
