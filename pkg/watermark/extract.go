package watermark

import (
	"context"
	"fmt"

	"github.com/originseal/provenance/pkg/infrastructure/workers"
)

// ExtractOptions configures Extract. Strength and Repeats are the
// configured defaults the search grid centers on; FastPath selects the
// small high-likelihood grid over the exhaustive one.
type ExtractOptions struct {
	Secret      string
	Strength    float64
	Repeats     int
	FastPath    bool
	Concurrency int
}

// ExtractResult is the outcome of a watermark extraction attempt. Version
// is the ECC variant the payload decoded under (1 legacy, 2 current), set
// only when OK.
type ExtractResult struct {
	OK         bool
	IDHex      string
	Code       string
	Confidence float64
	Version    int
}

// tupleOutcome is what one search-grid tuple produces: either a decoded
// result (OK true) or a confidence score for a non-decoding attempt.
type tupleOutcome struct {
	result     ExtractResult
	confidence float64
}

// Extract searches the configured parameter grid for a watermark, returning
// the first tuple that decodes and authenticates successfully. If none
// does, it returns the highest-confidence failure with OK=false. The search
// is cancellable at tuple boundaries via ctx.
func Extract(ctx context.Context, data []byte, opts ExtractOptions) (ExtractResult, error) {
	if opts.Strength == 0 {
		opts.Strength = DefaultStrength
	}
	if opts.Repeats == 0 {
		opts.Repeats = 8
	}

	img, err := decodeImage(data)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("extract: %w", err)
	}

	usableH := (img.Height / blockSize) * blockSize
	usableW := (img.Width / blockSize) * blockSize
	minDim := usableH
	if usableW < minDim {
		minDim = usableW
	}

	grid := buildSearchGrid(opts.FastPath, opts.Strength, minDim)
	if len(grid) == 0 {
		return ExtractResult{Confidence: 0}, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	raceResult := workers.Race(
		ctx,
		len(grid),
		concurrency,
		func(ctx context.Context, i int) (tupleOutcome, bool, error) {
			outcome := attemptTuple(img, usableH, usableW, opts.Secret, grid[i])
			return outcome, outcome.result.OK, nil
		},
		func(o tupleOutcome) bool { return o.result.OK },
		func(candidate, current tupleOutcome) bool { return candidate.confidence > current.confidence },
	)

	if raceResult.Value.result.OK {
		return raceResult.Value.result, nil
	}

	best := raceResult.Value
	if !opts.FastPath {
		legacy := extractLegacyWholeImage(img, usableH, usableW, opts.Secret, opts.Strength, opts.Repeats)
		if legacy.result.OK {
			return legacy.result, nil
		}
		if legacy.confidence > best.confidence {
			best = legacy
		}
	}
	return ExtractResult{Confidence: best.confidence}, nil
}

// attemptTuple runs one search-grid tuple to completion: crop, re-plan the
// region with the same seed, vote each bit, RS decode, then authenticate.
func attemptTuple(img *decodedImage, usableH, usableW int, secret string, tp tuple) tupleOutcome {
	regions := planRegions(usableH, usableW, tp.RegionSize)

	var r region
	found := false
	for _, candidate := range regions {
		if candidate.Anchor == tp.Anchor {
			r = candidate
			found = true
			break
		}
	}
	if !found {
		return tupleOutcome{confidence: 0}
	}

	r.Y0 += tp.OffsetY
	r.X0 += tp.OffsetX

	return attemptTupleInRegion(img, r, secret, tp)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
