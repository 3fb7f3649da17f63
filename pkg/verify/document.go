package verify

import (
	"github.com/originseal/provenance/pkg/fingerprint"
)

const (
	maxRasterPages      = 10
	pageDhashThreshold  = 16
	overlapGateMin      = 0.8
	distScoreGateMin    = 0.82
	distScoreGateMinTwo = 0.85
	overlapGapMin       = 0.10
	distGapMin          = 0.03
	distGapMinTwo       = 0.04
	textDistThreshold   = 12
)

// rankedCandidate is one perceptual-document candidate scored against the
// query, with the lexicographic ranking tuple the gate compares on.
type rankedCandidate struct {
	record       Record
	overlapScore float64
	distScore    float64
	textRank     int
	textScore    float64
	missingText  string // one of the ambiguity reasons, set when textRank/text matching fails
}

// less reports whether c ranks strictly below other in the lexicographic
// (overlap_score, dist_score, text_rank, text_score) ordering.
func (c rankedCandidate) less(other rankedCandidate) bool {
	if c.overlapScore != other.overlapScore {
		return c.overlapScore < other.overlapScore
	}
	if c.distScore != other.distScore {
		return c.distScore < other.distScore
	}
	if c.textRank != other.textRank {
		return c.textRank < other.textRank
	}
	return c.textScore < other.textScore
}

// scoreCandidate computes the ranking tuple for one candidate against the
// query's per-page dHashes and SimHash.
func scoreCandidate(queryPageHashes []string, querySimhash string, rec Record) rankedCandidate {
	if len(rec.PerPageHashes) == 0 {
		return rankedCandidate{record: rec}
	}

	matches := 0
	var totalMinDist float64
	for _, qh := range queryPageHashes {
		bestDist := -1
		for _, ch := range rec.PerPageHashes {
			dist, err := fingerprint.HammingDistanceHex64(qh, ch)
			if err != nil {
				continue
			}
			if bestDist == -1 || dist < bestDist {
				bestDist = dist
			}
		}
		if bestDist == -1 {
			bestDist = 64
		}
		totalMinDist += float64(bestDist)
		if bestDist <= pageDhashThreshold {
			matches++
		}
	}

	queryPages := len(queryPageHashes)
	overlapScore := float64(matches) / float64(maxInt(1, queryPages))
	avgMinDist := totalMinDist / float64(maxInt(1, queryPages))
	if avgMinDist > 64 {
		avgMinDist = 64
	}
	distScore := 1 - avgMinDist/64

	textRank := 1
	textScore := -1.0
	reason := ""
	switch {
	case querySimhash == "":
		reason = "no_query_text"
	case rec.PDFTextSimhash == "":
		reason = "candidate_missing_text"
	default:
		textDist, err := fingerprint.HammingDistanceHex64(querySimhash, rec.PDFTextSimhash)
		if err == nil {
			textScore = 1 - float64(textDist)/64
			if textDist <= textDistThreshold {
				textRank = 2
			} else {
				textRank = 0
				reason = "text_mismatch"
			}
		}
	}

	return rankedCandidate{
		record:       rec,
		overlapScore: overlapScore,
		distScore:    distScore,
		textRank:     textRank,
		textScore:    textScore,
		missingText:  reason,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// rankCandidates scores every candidate and returns them sorted best-first.
func rankCandidates(queryPageHashes []string, querySimhash string, candidates []Record) []rankedCandidate {
	ranked := make([]rankedCandidate, len(candidates))
	for i, rec := range candidates {
		ranked[i] = scoreCandidate(queryPageHashes, querySimhash, rec)
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j-1].less(ranked[j]); j-- {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
		}
	}
	return ranked
}

// perceptualDocumentGate decides whether the best-ranked candidate clears
// the acceptance gate described in the document path's second authority
// tier, or whether the match should instead be reported ambiguous.
func perceptualDocumentGate(queryPageHashes []string, querySimhash string, candidates []Record) (pass bool, best rankedCandidate, ambiguous bool, reason string) {
	if len(candidates) == 0 {
		return false, rankedCandidate{}, false, "no authoritative signature and no perceptual match"
	}

	ranked := rankCandidates(queryPageHashes, querySimhash, candidates)
	best = ranked[0]
	queryPages := len(queryPageHashes)

	if queryPages < 2 {
		if best.overlapScore >= overlapGateMin {
			return false, best, true, "one_page_only"
		}
		return false, best, false, "no authoritative signature and no perceptual match"
	}

	distGateMin := distScoreGateMin
	gapDistMin := distGapMin
	if queryPages == 2 {
		distGateMin = distScoreGateMinTwo
		gapDistMin = distGapMinTwo
	}

	var second rankedCandidate
	if len(ranked) > 1 {
		second = ranked[1]
	}

	overlapGapOK := best.overlapScore-second.overlapScore >= overlapGapMin
	distGapOK := best.distScore-second.distScore >= gapDistMin
	gapOK := overlapGapOK || distGapOK

	textOK := querySimhash != "" && best.record.PDFTextSimhash != "" && best.textRank == 2

	if best.overlapScore >= overlapGateMin && best.distScore >= distGateMin && gapOK && textOK {
		return true, best, false, ""
	}

	if best.overlapScore >= overlapGateMin {
		reason = best.missingText
		if reason == "" {
			if !gapOK {
				reason = "non_unique"
			} else {
				reason = "text_mismatch"
			}
		}
		return false, best, true, reason
	}

	return false, best, false, "no authoritative signature and no perceptual match"
}
