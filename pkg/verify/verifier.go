package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/originseal/provenance/pkg/fingerprint"
	"github.com/originseal/provenance/pkg/infrastructure/logging"
	"github.com/originseal/provenance/pkg/infrastructure/workers"
)

// DocumentResult is the outcome of verifying a PDF (or other document-path
// file). Unlike ImageResult, a perceptual match never sets Valid true: only
// an authoritative signature can.
type DocumentResult struct {
	Valid                bool
	SignatureValid       bool
	OwnershipConfidence  float64
	TamperSuspected      bool
	Method               string
	Reason               string
	SignerCertThumbprint string
	Record               *Record
	AmbiguousCandidates  []Record
	MetadataSimilarity   *float64
	MetadataMismatch     bool
}

// Verifier wires together the watermark extractor, the signer and OCR
// collaborators, and the repository lookups needed to answer both the image
// and document verification paths. Log is optional; when set, legacy v1
// watermark decodes are reported at Warn so their field population can be
// tracked.
type Verifier struct {
	Secret      string
	FastPath    bool
	Concurrency int // extractor tuple-race width; 0 means the extractor default
	Signer      Signer
	OCR         OCR
	Lookup      RecordLookup
	Log         *logging.Logger
}

// Verify dispatches by filename/MIME: a ".pdf" extension or
// "application/pdf" content type takes the document path, everything else
// the image watermark path.
func (v *Verifier) Verify(ctx context.Context, filename, contentType string, data []byte) (*DocumentResult, *ImageResult, error) {
	if isPDF(filename, contentType) {
		res, err := v.verifyDocument(ctx, data)
		return res, nil, err
	}
	res, err := verifyImage(ctx, data, v.Secret, v.FastPath, v.Concurrency, v.Lookup, v.Log)
	return nil, &res, err
}

func isPDF(filename, contentType string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf") || contentType == "application/pdf"
}

func (v *Verifier) verifyDocument(ctx context.Context, data []byte) (*DocumentResult, error) {
	if sig, ok, err := v.trySignature(ctx, data); err != nil {
		return nil, err
	} else if ok {
		return sig, nil
	}

	return v.tryPerceptualDocument(ctx, data)
}

// trySignature is authority tier (a): an intact signature with a leaf
// thumbprint maps to a record by exact file hash first, falling back to
// thumbprint only when it identifies exactly one record. SignerResult.Trusted
// is not consulted.
func (v *Verifier) trySignature(ctx context.Context, data []byte) (*DocumentResult, bool, error) {
	if v.Signer == nil {
		return nil, false, nil
	}
	sig, err := v.Signer.Verify(ctx, data)
	if err != nil || !sig.Intact || sig.LeafThumbprintSHA256 == "" {
		return nil, false, nil
	}

	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])

	rec, found, err := v.Lookup.FindRecordBy(ctx, "original_file_hash", fileHash)
	if err != nil {
		return nil, false, err
	}

	if !found {
		rec, found, err = v.findUniqueByThumbprint(ctx, sig.LeafThumbprintSHA256)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		if rec.WatermarkID == ambiguousMarker {
			return &DocumentResult{
				Valid:                false,
				SignatureValid:       true,
				TamperSuspected:      false,
				Method:               "pades",
				Reason:               "signature valid but cannot uniquely map owner",
				SignerCertThumbprint: sig.LeafThumbprintSHA256,
			}, true, nil
		}
	}

	result := &DocumentResult{
		Valid:                true,
		SignatureValid:       true,
		OwnershipConfidence:  1.0,
		TamperSuspected:      false,
		Method:               "pades",
		SignerCertThumbprint: sig.LeafThumbprintSHA256,
		Record:               &rec,
	}
	v.attachMetadataDiagnostic(ctx, data, result)
	return result, true, nil
}

// attachMetadataDiagnostic runs an OCR-vs-stored-metadata similarity check
// on a unique signature match. A low score is reported but never fails the
// verification: the signature already proved ownership.
func (v *Verifier) attachMetadataDiagnostic(ctx context.Context, data []byte, result *DocumentResult) {
	if v.OCR == nil || result.Record == nil {
		return
	}
	text, err := v.OCR.ExtractText(ctx, data, maxRasterPages)
	if err != nil {
		return
	}
	score, mismatch, ok := diagnoseMetadata(text, result.Record.Metadata)
	if !ok {
		return
	}
	result.MetadataSimilarity = &score
	result.MetadataMismatch = mismatch
}

// ambiguousMarker flags the sentinel record findUniqueByThumbprint returns
// when more than one record shares a thumbprint, since the signature is
// valid but ownership cannot be mapped uniquely.
const ambiguousMarker = "\x00ambiguous"

func (v *Verifier) findUniqueByThumbprint(ctx context.Context, thumbprint string) (Record, bool, error) {
	matches, err := v.Lookup.FindRecordsBySignerThumbprint(ctx, thumbprint)
	if err != nil {
		return Record{}, false, err
	}
	switch len(matches) {
	case 0:
		return Record{}, false, nil
	case 1:
		return matches[0], true, nil
	default:
		return Record{WatermarkID: ambiguousMarker}, true, nil
	}
}

const (
	ambiguousCandidateLimit = 5
)

// tryPerceptualDocument is authority tier (b): per-page dHash overlap plus
// text SimHash gate against recent records carrying per-page hashes.
func (v *Verifier) tryPerceptualDocument(ctx context.Context, data []byte) (*DocumentResult, error) {
	var pages [][]byte
	if v.OCR != nil {
		if rendered, err := v.OCR.RenderPagesRGB(ctx, data, 150, maxRasterPages); err == nil {
			pages = rendered
		}
	}

	hashed := make([]string, len(pages))
	pool := workers.NewSimplePool()
	_ = pool.Run(ctx, len(pages), func(_ context.Context, i int) error {
		h, err := fingerprint.DHash(pages[i])
		if err != nil {
			return nil
		}
		hashed[i] = h
		return nil
	})

	var pageHashes []string
	for _, h := range hashed {
		if h != "" {
			pageHashes = append(pageHashes, h)
		}
	}

	var querySimhash string
	if v.OCR != nil {
		if text, err := v.OCR.ExtractText(ctx, data, maxRasterPages); err == nil {
			querySimhash = fingerprint.SimHash(text)
		}
	}

	if len(pageHashes) == 0 {
		return &DocumentResult{Valid: false, Reason: "no authoritative signature and no perceptual match"}, nil
	}

	candidates, err := v.Lookup.ScanRecentWithPerPageHashes(ctx)
	if err != nil {
		return nil, err
	}

	pass, best, ambiguous, reason := perceptualDocumentGate(pageHashes, querySimhash, candidates)

	if pass {
		rec := best.record
		return &DocumentResult{
			Valid:               false,
			OwnershipConfidence: best.overlapScore,
			TamperSuspected:     best.distScore < 0.9,
			Method:              "perceptual_pdf",
			Record:              &rec,
		}, nil
	}

	if ambiguous {
		ranked := rankCandidates(pageHashes, querySimhash, candidates)
		limit := ambiguousCandidateLimit
		if limit > len(ranked) {
			limit = len(ranked)
		}
		top := make([]Record, limit)
		for i := 0; i < limit; i++ {
			top[i] = ranked[i].record
		}
		return &DocumentResult{
			Valid:               false,
			Method:              "perceptual_pdf_ambiguous",
			Reason:              reason,
			AmbiguousCandidates: top,
		}, nil
	}

	return &DocumentResult{Valid: false, Reason: reason}, nil
}
