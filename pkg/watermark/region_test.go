package watermark

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanRegionSizeLargeImageFixedAt256(t *testing.T) {
	require.Equal(t, 256, planRegionSize(1024, 2048))
	require.Equal(t, 256, planRegionSize(256, 256))
}

func TestPlanRegionSizeSmallImageFloorsAt64(t *testing.T) {
	require.Equal(t, 64, planRegionSize(50, 200))
}

func TestPlanRegionSizeStableUnderSmallCrop(t *testing.T) {
	// The critical invariant: region_size depends only on the usable pixel
	// dimensions handed in, not on anything decoded from the watermark
	// itself, so a <=32px crop of a >=320x320 image still resolves to 256.
	before := planRegionSize(512, 512)
	after := planRegionSize(512-32, 512-32)
	require.Equal(t, before, after)
}

func TestPlanRegionsDedupesCoincidentAnchors(t *testing.T) {
	regions := planRegions(256, 256, 256)
	require.Len(t, regions, 1)
}

func TestPlanRegionsFiveUniqueOnLargeImage(t *testing.T) {
	regions := planRegions(1024, 1024, 256)
	require.Len(t, regions, 5)
}

func TestEmbedPositionsDeterministic(t *testing.T) {
	a := embedPositions("secret", anchorCenter, 1024, 264, 2)
	b := embedPositions("secret", anchorCenter, 1024, 264, 2)
	require.Equal(t, a, b)
}

func TestEmbedPositionsDifferByAnchor(t *testing.T) {
	a := embedPositions("secret", anchorCenter, 1024, 264, 2)
	b := embedPositions("secret", anchorTopLeft, 1024, 264, 2)
	require.NotEqual(t, a, b)
}

func TestLocalRepeatsCapsToAvailableBlocks(t *testing.T) {
	got := localRepeats(8, 1, 264, 300)
	require.Equal(t, 1, got)
}

func TestLocalRepeatsAtLeastOne(t *testing.T) {
	got := localRepeats(1, 5, 264, 100000)
	require.GreaterOrEqual(t, got, 1)
}
