package watermark

// eccVariant names a Reed-Solomon parity configuration the extractor can
// try: legacy (v1, nsym=16) or current (v2, nsym=32).
type eccVariant struct {
	version int
	nsym    int
}

var (
	eccLegacy  = eccVariant{version: versionLegacy, nsym: 16}
	eccCurrent = eccVariant{version: versionCurrent, nsym: 32}
)

// tuple is one point in the extractor's parameter search grid: data, not
// control flow, so the whole grid can be generated up front and iterated (or
// raced over goroutines) by a single routine.
type tuple struct {
	Strength   float64
	Anchor     anchorName
	RegionSize int
	Repeats    int
	ECC        eccVariant
	OffsetY    int
	OffsetX    int
	WholeImage bool // legacy pre-anchor decode: salt-free seed over the full frame
	FastPath   bool // permits sampling with replacement on oversized block grids
}

// buildSearchGrid enumerates the extractor's parameter combinations. The
// fast path is a small, high-likelihood subset; the slow path is
// exhaustive.
func buildSearchGrid(fastPath bool, configuredStrength float64, minDim int) []tuple {
	var strengths []float64
	var anchors []anchorName
	var regionSizes []int
	var repeatHints []int
	var eccVariants []eccVariant
	var offsets [][2]int

	if fastPath {
		strengths = dedupFloats([]float64{14, 16, configuredStrength})
		anchors = []anchorName{anchorCenter, anchorTopLeft}
		if minDim >= 256 {
			regionSizes = []int{256}
		} else {
			regionSizes = []int{planRegionSize(minDim, minDim)}
		}
		eccVariants = []eccVariant{eccCurrent}
		offsets = [][2]int{{0, 0}}
	} else {
		strengths = dedupFloats([]float64{configuredStrength, 12, 14, 16, 18})
		anchors = allAnchors
		for _, size := range []int{256, 320, 384, 512} {
			if size >= 64 && size <= minDim {
				regionSizes = append(regionSizes, size)
			}
		}
		if len(regionSizes) == 0 {
			regionSizes = []int{planRegionSize(minDim, minDim)}
		}
		eccVariants = []eccVariant{eccLegacy, eccCurrent}
		offsets = allPixelOffsets()
	}
	// Region embedding carries 1-2 repeats regardless of the configured
	// whole-image budget; the larger hints belong to the legacy fallback.
	repeatHints = []int{2, 1}

	var grid []tuple
	for _, s := range strengths {
		for _, rs := range regionSizes {
			for _, a := range anchors {
				for _, ecc := range eccVariants {
					for _, rep := range repeatHints {
						for _, off := range offsets {
							grid = append(grid, tuple{
								Strength:   s,
								Anchor:     a,
								RegionSize: rs,
								Repeats:    rep,
								ECC:        ecc,
								OffsetY:    off[0],
								OffsetX:    off[1],
								FastPath:   fastPath,
							})
						}
					}
				}
			}
		}
	}
	return grid
}

// allPixelOffsets returns all 64 (dy,dx) combinations in [0,8)^2, sorted by
// (dy+dx, dy, dx) so small combined offsets are tried first.
func allPixelOffsets() [][2]int {
	offsets := make([][2]int, 0, 64)
	for dy := 0; dy < 8; dy++ {
		for dx := 0; dx < 8; dx++ {
			offsets = append(offsets, [2]int{dy, dx})
		}
	}
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0; j-- {
			a, b := offsets[j-1], offsets[j]
			if (a[0]+a[1]) > (b[0]+b[1]) ||
				((a[0]+a[1]) == (b[0]+b[1]) && a[0] > b[0]) {
				offsets[j-1], offsets[j] = offsets[j], offsets[j-1]
			} else {
				break
			}
		}
	}
	return offsets
}

func dedupFloats(in []float64) []float64 {
	seen := make(map[float64]bool, len(in))
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func dedupInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if v <= 0 || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
