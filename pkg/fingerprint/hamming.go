package fingerprint

import (
	"fmt"
	"math/bits"
	"strconv"
)

// HammingDistanceHex64 returns the Hamming distance between two 16-hex-char
// (64-bit) fingerprints. Callers should treat an error as "cannot compare"
// rather than "maximally distant".
func HammingDistanceHex64(aHex, bHex string) (int, error) {
	a, err := strconv.ParseUint(aHex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hamming distance: parsing first hash: %w", err)
	}
	b, err := strconv.ParseUint(bHex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hamming distance: parsing second hash: %w", err)
	}
	return bits.OnesCount64(a ^ b), nil
}
