package fingerprint

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-z0-9]{2,}`)

const minSimhashTokens = 10

// SimHash computes a 64-bit SimHash over text, returned as 16 lowercase hex
// characters, or "" if the text yields fewer than minSimhashTokens tokens
// (too short to produce a stable fingerprint). Each distinct token is
// hashed with MD5 (not used for any security property here, only as a
// stable 64-bit spread) and contributes its term frequency, signed by each
// output bit of the hash, to a running per-bit weight vector; the final
// hash sets bit i wherever the accumulated weight is positive.
func SimHash(text string) string {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) < minSimhashTokens {
		return ""
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	var weights [64]int
	for token, weight := range counts {
		sum := md5.Sum([]byte(token))
		h64 := binary.BigEndian.Uint64(sum[:8])
		for i := 0; i < 64; i++ {
			bit := (h64 >> uint(i)) & 1
			if bit == 1 {
				weights[i] += weight
			} else {
				weights[i] -= weight
			}
		}
	}

	var fp uint64
	for i, w := range weights {
		if w > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", fp)
}
