// Package verify implements the document verifier: given uploaded bytes, it
// decides whether they carry a recognizable watermark or signature and, if
// so, maps that evidence back to a provenance record.
package verify

import "context"

// SignerResult is what an external signature verifier reports about a
// document's embedded signature, if any.
type SignerResult struct {
	Intact               bool
	Trusted              bool
	LeafThumbprintSHA256 string
}

// Signer is the authoritative signature-verification collaborator. This
// service never parses signature containers itself; it defers entirely to
// whatever implementation the caller wires in (e.g. a PAdES validator).
type Signer interface {
	Verify(ctx context.Context, data []byte) (SignerResult, error)
}

// OCR is the text-extraction and page-rasterization collaborator used for
// the perceptual document path. Implementations are expected to cap work at
// maxPages and may return fewer pages/less text than requested.
// RenderPagesRGB returns each rendered page PNG-encoded, ready to hand
// straight to fingerprint.DHash.
type OCR interface {
	ExtractText(ctx context.Context, data []byte, maxPages int) (string, error)
	RenderPagesRGB(ctx context.Context, data []byte, dpi, maxPages int) ([][]byte, error)
}

// RecordLookup is the subset of the repository contract the verifier needs:
// lookups by whitelisted field and the two bounded recent-record scans used
// for perceptual fallback matching.
type RecordLookup interface {
	FindRecordBy(ctx context.Context, field, value string) (Record, bool, error)
	ScanRecentWithPerceptualHash(ctx context.Context) ([]Record, error)
	ScanRecentWithPerPageHashes(ctx context.Context) ([]Record, error)
	FindRecordsBySignerThumbprint(ctx context.Context, thumbprint string) ([]Record, error)
}

// Record is the minimal read-only shape the verifier needs from a
// provenance record. It is a narrow mirror of provenance.Record rather than
// a direct dependency, so this package does not need to import the
// repository's lookup-field whitelist or mutation methods.
type Record struct {
	WatermarkID          string
	WatermarkCode        string
	OriginalFilename     string
	MimeType             string
	OriginalFileHash     string
	PerceptualHash       string
	PDFTextSimhash       string
	Metadata             map[string]any
	MetadataHash         string
	PerPageHashes        []string
	SignerCertThumbprint string
	IssuedAt             string
	SourceCreatedAt      string
}
