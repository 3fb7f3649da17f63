package verify

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// metadataSimilarityFloor is the combined-similarity score below which a
// unique signature match is flagged for manual review: the signature is
// still authoritative, this is a diagnostic only.
const metadataSimilarityFloor = 0.8

// diagnoseMetadata compares OCR'd document text against the record's own
// title/author/organization fields and reports low agreement as a
// non-blocking finding. A signature match never fails because of this.
func diagnoseMetadata(ocrText string, metadata map[string]any) (score float64, mismatch bool, ok bool) {
	ref := referenceString(metadata)
	if ref == "" || ocrText == "" {
		return 0, false, false
	}
	score = combinedSimilarity(ocrText, ref)
	return score, score < metadataSimilarityFloor, true
}

func referenceString(metadata map[string]any) string {
	var parts []string
	for _, key := range []string{"title", "author", "organization", "createdDate"} {
		if v, ok := metadata[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func combinedSimilarity(a, b string) float64 {
	return (sequenceRatio(a, b) + jaccardScore(a, b)) / 2.0
}

func sequenceRatio(a, b string) float64 {
	m := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return m.Ratio()
}

func splitRunes(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

func jaccardScore(a, b string) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0.0
	}
	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}
