package watermark

import "fmt"

// DefaultStrength is the embed strength used absent a caller override; the
// extractor's search grid sweeps around it.
const (
	DefaultStrength  = 14.0
	eccParitySymbols = 32 // current (v2) Reed-Solomon parity size
)

// EmbedOptions configures Embed. When zero, Strength defaults to
// DefaultStrength and Repeats to 8.
type EmbedOptions struct {
	Secret   string
	Strength float64
	Repeats  int
}

// Embed decodes data, embeds idHex's payload at every unique anchored
// region, and returns the re-encoded image bytes.
func Embed(data []byte, idHex string, opts EmbedOptions) ([]byte, error) {
	if opts.Strength == 0 {
		opts.Strength = DefaultStrength
	}
	if opts.Repeats == 0 {
		opts.Repeats = 8
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	payload, err := PackPayload(idHex, opts.Secret)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	codeword := rsEncode(payload, eccParitySymbols)
	bits := bytesToBits(codeword)

	usableH := (img.Height / blockSize) * blockSize
	usableW := (img.Width / blockSize) * blockSize
	regionSize := planRegionSize(usableH, usableW)
	regions := planRegions(usableH, usableW, regionSize)

	numBlocksInRegion := blocksPerSide(regionSize) * blocksPerSide(regionSize)
	repeats := localRepeats(opts.Repeats, len(regions), len(bits), numBlocksInRegion)

	for _, r := range regions {
		positions := embedPositions(opts.Secret, r.Anchor, numBlocksInRegion, len(bits), repeats)
		embedBitsIntoRegion(img, r, positions, bits, opts.Strength)
	}

	return img.encodeImage()
}

// embedBitsIntoRegion writes bits (cycling if positions outnumber bits, or
// truncating if positions is shorter) into the 8x8 blocks of region at the
// given permutation-ordered block indices.
func embedBitsIntoRegion(img *decodedImage, r region, positions []int, bits []int, strength float64) {
	side := blocksPerSide(r.Size)

	for i, blockIdx := range positions {
		bit := bits[i%len(bits)]
		by, bx := blockIdx/side, blockIdx%side
		y0 := r.Y0 + by*blockSize
		x0 := r.X0 + bx*blockSize

		var block [blockSize][blockSize]float64
		for dy := 0; dy < blockSize; dy++ {
			for dx := 0; dx < blockSize; dx++ {
				block[dy][dx] = float64(img.Y[y0+dy][x0+dx])
			}
		}

		watermarked := embedBlockBit(block, bit, strength)

		for dy := 0; dy < blockSize; dy++ {
			for dx := 0; dx < blockSize; dx++ {
				v := watermarked[dy][dx]
				if v < 0 {
					v = 0
				}
				if v > 255 {
					v = 255
				}
				img.Y[y0+dy][x0+dx] = float32(v)
			}
		}
	}
}

// bytesToBits expands a byte slice into an MSB-first bit sequence.
func bytesToBits(data []byte) []int {
	bits := make([]int, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, int((b>>uint(i))&1))
		}
	}
	return bits
}

// bitsToBytes packs an MSB-first bit sequence back into bytes. Trailing
// bits that do not fill a full byte are discarded.
func bitsToBytes(bits []int) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		var b byte
		for j := 0; j < 8; j++ {
			b = (b << 1) | byte(bits[i*8+j]&1)
		}
		out[i] = b
	}
	return out
}
