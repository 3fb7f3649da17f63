package watermark

import "fmt"

// anchorName identifies one of the five anchor positions a region may be
// planted at.
type anchorName string

const (
	anchorTopLeft     anchorName = "tl"
	anchorTopRight    anchorName = "tr"
	anchorBottomLeft  anchorName = "bl"
	anchorBottomRight anchorName = "br"
	anchorCenter      anchorName = "c"
)

// allAnchors is the fixed anchor evaluation order; the slow extract path
// walks all five, the fast path only {center, top-left}.
var allAnchors = []anchorName{anchorTopLeft, anchorTopRight, anchorBottomLeft, anchorBottomRight, anchorCenter}

// region is one anchored, deduplicated placement of the embed grid within
// the usable (8-aligned) pixel area.
type region struct {
	Anchor anchorName
	Y0, X0 int
	Size   int
}

// minRegionSize is the floor region_size may shrink to on small images.
const minRegionSize = 64

// planRegionSize computes region_size from the usable (8-aligned) pixel
// dimensions: 256 when both dimensions are at least that large, otherwise
// the smaller dimension rounded down to a multiple of 8, floored at 64.
//
// Critical invariant: this is a pure function of the dimensions handed to
// it. Extraction must supply the same region_size it is probing in its
// search grid rather than ever deriving it from the decoded image, since
// the decoded image's dimensions carry no watermark information once
// cropped.
func planRegionSize(usableHeight, usableWidth int) int {
	minDim := usableHeight
	if usableWidth < minDim {
		minDim = usableWidth
	}
	if minDim >= 256 {
		return 256
	}
	size := (minDim / 8) * 8
	if size < minRegionSize {
		size = minRegionSize
	}
	return size
}

// planRegions computes the deduplicated set of anchored regions of the
// given size within a usableHeight x usableWidth pixel area.
func planRegions(usableHeight, usableWidth, regionSize int) []region {
	maxY0 := usableHeight - regionSize
	maxX0 := usableWidth - regionSize
	if maxY0 < 0 || maxX0 < 0 {
		maxY0, maxX0 = 0, 0
	}

	// Center first: regions may overlap on images not much larger than
	// 2*regionSize, and within an overlap the last-embedded region's bits
	// win. The corner regions are the ones that stay anchored under edge
	// crops, so they must be written after the center.
	candidates := []region{
		{Anchor: anchorCenter, Y0: maxY0 / 2, X0: maxX0 / 2, Size: regionSize},
		{Anchor: anchorTopLeft, Y0: 0, X0: 0, Size: regionSize},
		{Anchor: anchorTopRight, Y0: 0, X0: maxX0, Size: regionSize},
		{Anchor: anchorBottomLeft, Y0: maxY0, X0: 0, Size: regionSize},
		{Anchor: anchorBottomRight, Y0: maxY0, X0: maxX0, Size: regionSize},
	}

	seen := make(map[[2]int]bool, len(candidates))
	unique := make([]region, 0, len(candidates))
	for _, c := range candidates {
		key := [2]int{c.Y0, c.X0}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, c)
	}
	return unique
}

// regionSalt is the seed salt for a given anchor.
func regionSalt(a anchorName) string {
	return fmt.Sprintf("region:%s", a)
}

// localRepeats computes the per-region repeat count: the global repeats
// target divided evenly across the unique anchors in use, rounded up,
// capped so the region's block budget is never exceeded, and never less
// than 1 if the region is used at all.
func localRepeats(repeats, numUniqueAnchors, expectedBits, numBlocksInRegion int) int {
	if numUniqueAnchors <= 0 {
		numUniqueAnchors = 1
	}
	want := ceilDiv(repeats, numUniqueAnchors)
	if expectedBits > 0 {
		maxAffordable := numBlocksInRegion / expectedBits
		if maxAffordable < want {
			want = maxAffordable
		}
	}
	if want < 1 {
		want = 1
	}
	return want
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// embedPositions returns the block indices (within a regionSize/8 square
// grid) to embed into for one region: a deterministic, secret-seeded
// permutation of [0, numBlocks), truncated to the first
// expectedBits*repeats entries, in permutation order.
func embedPositions(secret string, a anchorName, numBlocks, expectedBits, repeats int) []int {
	return permutedPositions(deriveSeed(secret, regionSalt(a)), numBlocks, expectedBits, repeats)
}

// permutedPositions is embedPositions with the seed already derived, shared
// with the legacy whole-image decode path whose seed carries no region salt.
func permutedPositions(seed uint32, numBlocks, expectedBits, repeats int) []int {
	perm := seededPermutation(seed, numBlocks)

	want := expectedBits * repeats
	if want > len(perm) {
		want = len(perm)
	}
	return perm[:want]
}

// blocksPerSide returns the number of 8x8 blocks along one edge of a
// regionSize x regionSize region.
func blocksPerSide(regionSize int) int {
	return regionSize / blockSize
}
