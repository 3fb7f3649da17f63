package watermark

import (
	"crypto/sha256"
	"fmt"
)

// deriveSeed computes the deterministic seed for a region: the first 4 bytes
// of SHA-256(secret + ":" + salt), read big-endian. Both embed and extract
// call this with the same secret/salt, so the resulting permutation is
// bit-for-bit reproducible across calls and platforms.
func deriveSeed(secret, salt string) uint32 {
	sum := sha256.Sum256([]byte(secret + ":" + salt))
	return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
}

// legacySeed is the pre-region-anchor seed derivation: the first 4 bytes of
// SHA-256(secret) alone, no per-region salt. Whole-image watermarks issued
// before the anchored-region scheme used this seed, so the slow-path
// fallback decode must reproduce it exactly.
func legacySeed(secret string) uint32 {
	sum := sha256.Sum256([]byte(secret))
	return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
}

// splitmix64 is a small, fast, well-distributed generator used only to drive
// the seeded permutation below; it needs no cryptographic properties, only
// determinism from a 32-bit seed.
type splitmix64 struct {
	state uint64
}

func newSplitmix64(seed uint32) *splitmix64 {
	return &splitmix64{state: uint64(seed) + 0x9E3779B97F4A7C15}
}

func (s *splitmix64) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// intn returns a uniform value in [0, n) for n > 0.
func (s *splitmix64) intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("intn: n must be positive, got %d", n))
	}
	return int(s.next() % uint64(n))
}

// seededPermutation returns a deterministic Fisher-Yates shuffle of
// [0, n) driven by seed.
func seededPermutation(seed uint32, n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	gen := newSplitmix64(seed)
	for i := n - 1; i > 0; i-- {
		j := gen.intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// seededSampleWithReplacement returns count indices in [0, n) sampled with
// replacement, deterministic from seed. Used by the extractor's fast path
// when the block count is large relative to the positions actually needed,
// trading a full permutation for direct sampling.
func seededSampleWithReplacement(seed uint32, n, count int) []int {
	gen := newSplitmix64(seed)
	out := make([]int, count)
	for i := range out {
		out[i] = gen.intn(n)
	}
	return out
}
