package watermark

// extractLegacyWholeImage re-runs the bit-voting decode over the entire
// usable image as a single region, rather than one of the five anchored
// sub-regions. Early (v1) issuances predate the region-anchor scheme and
// spread their repeats across the whole frame; this path exists so those
// older watermarks still decode, tried only after the anchored search in
// Extract comes back empty.
func extractLegacyWholeImage(img *decodedImage, usableH, usableW int, secret string, configuredStrength float64, configuredRepeats int) tupleOutcome {
	wholeImage := region{Anchor: anchorTopLeft, Y0: 0, X0: 0, Size: minInt(usableH, usableW)}

	repeatHints := dedupInts([]int{configuredRepeats, configuredRepeats / 2, 1})
	strengths := dedupFloats([]float64{configuredStrength, 12, 14, 16, 18})

	var best tupleOutcome
	haveBest := false

	for _, strength := range strengths {
		for _, repeats := range repeatHints {
			for _, ecc := range []eccVariant{eccLegacy, eccCurrent} {
				outcome := attemptWholeImageTuple(img, wholeImage, secret, strength, repeats, ecc)
				if outcome.result.OK {
					return outcome
				}
				if !haveBest || outcome.confidence > best.confidence {
					best = outcome
					haveBest = true
				}
			}
		}
	}
	return best
}

func attemptWholeImageTuple(img *decodedImage, r region, secret string, strength float64, repeats int, ecc eccVariant) tupleOutcome {
	tp := tuple{Strength: strength, Anchor: r.Anchor, RegionSize: r.Size, Repeats: repeats, ECC: ecc, WholeImage: true}
	return attemptTupleInRegion(img, r, secret, tp)
}

// attemptTupleInRegion is attemptTuple's core, factored out so the legacy
// whole-image path can supply a region directly instead of looking one up
// from planRegions.
func attemptTupleInRegion(img *decodedImage, r region, secret string, tp tuple) tupleOutcome {
	if r.Y0 < 0 || r.X0 < 0 || r.Y0+r.Size > img.Height || r.X0+r.Size > img.Width {
		return tupleOutcome{confidence: 0}
	}

	codewordBits := (payloadSize + tp.ECC.nsym) * 8
	numBlocksInRegion := blocksPerSide(r.Size) * blocksPerSide(r.Size)
	totalPositions := codewordBits * tp.Repeats

	seed := deriveSeed(secret, regionSalt(tp.Anchor))
	if tp.WholeImage {
		seed = legacySeed(secret)
	}

	// Sampling with replacement skips generating a full permutation of a
	// large block grid; only acceptable on the fast path, where coverage
	// (not the embedder's exact position order) is what matters.
	var positions []int
	if tp.FastPath && numBlocksInRegion > 8*totalPositions {
		positions = seededSampleWithReplacement(seed, numBlocksInRegion, totalPositions)
	} else {
		positions = permutedPositions(seed, numBlocksInRegion, codewordBits, tp.Repeats)
	}
	if len(positions) == 0 {
		return tupleOutcome{confidence: 0}
	}

	side := blocksPerSide(r.Size)
	ones := make([]int, codewordBits)
	zeros := make([]int, codewordBits)

	for i, blockIdx := range positions {
		bitIdx := i % codewordBits
		by, bx := blockIdx/side, blockIdx%side
		by0 := r.Y0 + by*blockSize
		bx0 := r.X0 + bx*blockSize
		if by0+blockSize > img.Height || bx0+blockSize > img.Width {
			continue
		}

		var block [blockSize][blockSize]float64
		for dy := 0; dy < blockSize; dy++ {
			for dx := 0; dx < blockSize; dx++ {
				block[dy][dx] = float64(img.Y[by0+dy][bx0+dx])
			}
		}

		if extractBlockBit(block, tp.Strength) == 1 {
			ones[bitIdx]++
		} else {
			zeros[bitIdx]++
		}
	}

	bits := make([]int, codewordBits)
	var confidenceSum float64
	for b := 0; b < codewordBits; b++ {
		if ones[b] > zeros[b] {
			bits[b] = 1
		}
		diff := ones[b] - zeros[b]
		if diff < 0 {
			diff = -diff
		}
		confidenceSum += clip01(float64(diff) / float64(tp.Repeats))
	}
	confidence := clip01(confidenceSum / float64(codewordBits))

	codewordBytes := bitsToBytes(bits)
	payload, err := rsDecode(codewordBytes, tp.ECC.nsym)
	if err != nil {
		return tupleOutcome{confidence: confidence}
	}
	idHex, err := UnpackPayload(payload, secret)
	if err != nil {
		return tupleOutcome{confidence: confidence}
	}
	code, err := WatermarkCode(idHex)
	if err != nil {
		return tupleOutcome{confidence: confidence}
	}

	return tupleOutcome{
		result:     ExtractResult{OK: true, IDHex: idHex, Code: code, Confidence: confidence, Version: tp.ECC.version},
		confidence: confidence,
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
