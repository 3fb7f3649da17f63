package verify

import (
	"context"
	"errors"

	"github.com/originseal/provenance/pkg/fingerprint"
	"github.com/originseal/provenance/pkg/infrastructure/logging"
	"github.com/originseal/provenance/pkg/watermark"
)

// ImageResult is the outcome of verifying a single image file.
type ImageResult struct {
	Valid           bool
	Confidence      float64
	TamperSuspected bool
	Reason          string
	WatermarkID     string
	WatermarkCode   string
	Record          *Record
	Fallback        *FallbackMatch
}

// FallbackMatch is a perceptual-hash-only match, reported when the
// watermark itself could not be decoded. It is never authoritative.
type FallbackMatch struct {
	Method          string
	MatchType       string
	HammingDistance int
	Record          Record
}

const (
	imageTamperThresholdKnown   = 0.55
	imageTamperThresholdUnknown = 0.35
	dhashFallbackThreshold      = 10
	dhashFallbackMinGap         = 2
)

// VerifyImage runs the watermark extractor against data and, depending on
// whether a watermark decodes, looks the result up by watermark_id or falls
// back to a perceptual dHash scan over recent records.
func VerifyImage(ctx context.Context, data []byte, secret string, lookup RecordLookup) (ImageResult, error) {
	return verifyImage(ctx, data, secret, false, 0, lookup, nil)
}

// VerifyImageFast is VerifyImage with the extractor's fast-path search grid,
// trading a little recall for much lower latency.
func VerifyImageFast(ctx context.Context, data []byte, secret string, lookup RecordLookup) (ImageResult, error) {
	return verifyImage(ctx, data, secret, true, 0, lookup, nil)
}

func verifyImage(ctx context.Context, data []byte, secret string, fastPath bool, concurrency int, lookup RecordLookup, log *logging.Logger) (ImageResult, error) {
	result, err := watermark.Extract(ctx, data, watermark.ExtractOptions{Secret: secret, FastPath: fastPath, Concurrency: concurrency})
	if err != nil {
		return ImageResult{}, err
	}

	if result.OK {
		if result.Version == 1 && log != nil {
			log.Warnf("legacy v1 watermark decoded: %s", result.Code)
		}
		rec, found, err := lookup.FindRecordBy(ctx, "watermark_id", result.IDHex)
		if err != nil {
			return ImageResult{}, err
		}
		if !found {
			return ImageResult{
				Valid:           false,
				Confidence:      result.Confidence,
				TamperSuspected: true,
				Reason:          "extracted but unknown",
				WatermarkID:     result.IDHex,
				WatermarkCode:   result.Code,
			}, nil
		}
		return ImageResult{
			Valid:           true,
			Confidence:      result.Confidence,
			TamperSuspected: result.Confidence < imageTamperThresholdKnown,
			WatermarkID:     rec.WatermarkID,
			WatermarkCode:   rec.WatermarkCode,
			Record:          &rec,
		}, nil
	}

	fallback, ferr := imageFallback(ctx, data, lookup)
	if ferr != nil && !errors.Is(ferr, errNoFallback) {
		return ImageResult{}, ferr
	}

	return ImageResult{
		Valid:           false,
		Confidence:      result.Confidence,
		TamperSuspected: result.Confidence < imageTamperThresholdUnknown,
		Reason:          "watermark not found",
		Fallback:        fallback,
	}, nil
}

var errNoFallback = errors.New("verify: no perceptual fallback match")

func imageFallback(ctx context.Context, data []byte, lookup RecordLookup) (*FallbackMatch, error) {
	queryHash, err := fingerprint.DHash(data)
	if err != nil {
		return nil, errNoFallback
	}

	candidates, err := lookup.ScanRecentWithPerceptualHash(ctx)
	if err != nil {
		return nil, err
	}

	var best *Record
	bestDist := -1
	secondBestDist := -1

	for i := range candidates {
		cand := candidates[i]
		if cand.PerceptualHash == "" {
			continue
		}
		dist, err := fingerprint.HammingDistanceHex64(queryHash, cand.PerceptualHash)
		if err != nil {
			continue
		}
		if best == nil || dist < bestDist {
			secondBestDist = bestDist
			best = &candidates[i]
			bestDist = dist
		} else if secondBestDist == -1 || dist < secondBestDist {
			secondBestDist = dist
		}
	}

	if best == nil || bestDist > dhashFallbackThreshold {
		return nil, errNoFallback
	}
	if secondBestDist != -1 && bestDist+dhashFallbackMinGap > secondBestDist {
		return nil, errNoFallback
	}

	return &FallbackMatch{
		Method:          "perceptual_hash",
		MatchType:       "possible",
		HammingDistance: bestDist,
		Record:          *best,
	}, nil
}
