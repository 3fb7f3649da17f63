package verify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/originseal/provenance/pkg/fingerprint"
	"github.com/originseal/provenance/pkg/watermark"
)

type fakeLookup struct {
	byField    map[string]map[string]Record
	perceptual []Record
	perPage    []Record
	byThumb    map[string][]Record
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{byField: map[string]map[string]Record{}}
}

func (f *fakeLookup) set(field, value string, rec Record) {
	if f.byField[field] == nil {
		f.byField[field] = map[string]Record{}
	}
	f.byField[field][value] = rec
}

func (f *fakeLookup) FindRecordBy(ctx context.Context, field, value string) (Record, bool, error) {
	rec, ok := f.byField[field][value]
	return rec, ok, nil
}

func (f *fakeLookup) ScanRecentWithPerceptualHash(ctx context.Context) ([]Record, error) {
	return f.perceptual, nil
}

func (f *fakeLookup) ScanRecentWithPerPageHashes(ctx context.Context) ([]Record, error) {
	return f.perPage, nil
}

func (f *fakeLookup) FindRecordsBySignerThumbprint(ctx context.Context, thumbprint string) ([]Record, error) {
	return f.byThumb[thumbprint], nil
}

type fakeSigner struct {
	result SignerResult
	err    error
}

func (f fakeSigner) Verify(ctx context.Context, data []byte) (SignerResult, error) {
	return f.result, f.err
}

type fakeOCR struct {
	pages [][]byte
	text  string
}

func (f fakeOCR) ExtractText(ctx context.Context, data []byte, maxPages int) (string, error) {
	return f.text, nil
}

func (f fakeOCR) RenderPagesRGB(ctx context.Context, data []byte, dpi, maxPages int) ([][]byte, error) {
	return f.pages, nil
}

func TestVerifyImageKnownWatermark(t *testing.T) {
	data := syntheticPNGForVerify(t, 320)
	idHex := "0123456789abcdef0123456789abcdef"
	secret := "s3cret"

	watermarked, err := watermark.Embed(data, idHex, watermark.EmbedOptions{Secret: secret, Strength: 14, Repeats: 8})
	require.NoError(t, err)

	lookup := newFakeLookup()
	lookup.set("watermark_id", idHex, Record{WatermarkID: idHex, WatermarkCode: "WMK-0123456789AB"})

	result, err := VerifyImage(context.Background(), watermarked, secret, lookup)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, idHex, result.WatermarkID)
}

func TestVerifyImageUnknownWatermark(t *testing.T) {
	data := syntheticPNGForVerify(t, 320)
	idHex := "0123456789abcdef0123456789abcdef"
	secret := "s3cret"

	watermarked, err := watermark.Embed(data, idHex, watermark.EmbedOptions{Secret: secret, Strength: 14, Repeats: 8})
	require.NoError(t, err)

	lookup := newFakeLookup()

	result, err := VerifyImage(context.Background(), watermarked, secret, lookup)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.True(t, result.TamperSuspected)
	require.Equal(t, "extracted but unknown", result.Reason)
}

func TestVerifyImagePerceptualFallback(t *testing.T) {
	data := syntheticPNGForVerify(t, 320)
	hash, err := fingerprint.DHash(data)
	require.NoError(t, err)

	lookup := newFakeLookup()
	lookup.perceptual = []Record{{WatermarkID: "abc", PerceptualHash: hash}}

	result, err := VerifyImage(context.Background(), data, "s3cret", lookup)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.NotNil(t, result.Fallback)
	require.Equal(t, 0, result.Fallback.HammingDistance)
}

func TestVerifyDocumentSignatureUniqueFileHash(t *testing.T) {
	data := []byte("pdf-bytes-stand-in")
	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])

	lookup := newFakeLookup()
	lookup.set("original_file_hash", fileHash, Record{WatermarkID: "doc-1"})

	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: true, Trusted: true, LeafThumbprintSHA256: "thumb-1"}},
		OCR:    fakeOCR{},
		Lookup: lookup,
	}

	doc, img, err := v.Verify(context.Background(), "contract.pdf", "application/pdf", data)
	require.NoError(t, err)
	require.Nil(t, img)
	require.NotNil(t, doc)
	require.True(t, doc.Valid)
	require.Equal(t, "pades", doc.Method)
	require.Equal(t, 1.0, doc.OwnershipConfidence)
}

func TestVerifyDocumentMetadataDiagnosticFlagsMismatch(t *testing.T) {
	data := []byte("pdf-bytes-stand-in-2")
	sum := sha256.Sum256(data)
	fileHash := hex.EncodeToString(sum[:])

	lookup := newFakeLookup()
	lookup.set("original_file_hash", fileHash, Record{
		WatermarkID: "doc-2",
		Metadata:    map[string]any{"title": "Quarterly Report", "author": "Jane Smith"},
	})

	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: true, Trusted: true, LeafThumbprintSHA256: "thumb-2"}},
		OCR:    fakeOCR{text: "completely unrelated contents about aquarium maintenance"},
		Lookup: lookup,
	}

	doc, _, err := v.Verify(context.Background(), "contract.pdf", "application/pdf", data)
	require.NoError(t, err)
	require.True(t, doc.Valid)
	require.NotNil(t, doc.MetadataSimilarity)
	require.True(t, doc.MetadataMismatch)
}

func TestVerifyDocumentSignatureUniqueByThumbprint(t *testing.T) {
	// No original_file_hash match (e.g. the signer re-serialized the PDF),
	// so ownership must resolve through the thumbprint fallback, which
	// scans the document population directly rather than the
	// perceptual-hash image candidate pool.
	lookup := newFakeLookup()
	lookup.byThumb = map[string][]Record{
		"thumb-doc": {{WatermarkID: "doc-3", SignerCertThumbprint: "thumb-doc"}},
	}

	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: true, Trusted: true, LeafThumbprintSHA256: "thumb-doc"}},
		OCR:    fakeOCR{},
		Lookup: lookup,
	}

	doc, _, err := v.Verify(context.Background(), "contract.pdf", "application/pdf", []byte("re-serialized-pdf"))
	require.NoError(t, err)
	require.True(t, doc.Valid)
	require.NotNil(t, doc.Record)
	require.Equal(t, "doc-3", doc.Record.WatermarkID)
}

func TestVerifyDocumentSignatureAmbiguousByThumbprint(t *testing.T) {
	lookup := newFakeLookup()
	lookup.byThumb = map[string][]Record{
		"thumb-shared": {
			{WatermarkID: "doc-4", SignerCertThumbprint: "thumb-shared"},
			{WatermarkID: "doc-5", SignerCertThumbprint: "thumb-shared"},
		},
	}

	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: true, Trusted: true, LeafThumbprintSHA256: "thumb-shared"}},
		OCR:    fakeOCR{},
		Lookup: lookup,
	}

	doc, _, err := v.Verify(context.Background(), "contract.pdf", "application/pdf", []byte("yet-another-pdf"))
	require.NoError(t, err)
	require.False(t, doc.Valid)
	require.True(t, doc.SignatureValid)
	require.Equal(t, "signature valid but cannot uniquely map owner", doc.Reason)
}

func TestVerifyDocumentNoSignatureNoMatch(t *testing.T) {
	lookup := newFakeLookup()
	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: false}},
		OCR:    fakeOCR{},
		Lookup: lookup,
	}

	doc, _, err := v.Verify(context.Background(), "plain.pdf", "", []byte("bytes"))
	require.NoError(t, err)
	require.False(t, doc.Valid)
	require.Equal(t, "no authoritative signature and no perceptual match", doc.Reason)
}

func pageSet(t *testing.T, seeds ...uint32) ([][]byte, []string) {
	t.Helper()
	pages := make([][]byte, len(seeds))
	hashes := make([]string, len(seeds))
	for i, seed := range seeds {
		img := image.NewRGBA(image.Rect(0, 0, 200, 280))
		state := seed
		for y := 0; y < 280; y++ {
			for x := 0; x < 200; x++ {
				state = state*1664525 + 1013904223
				v := uint8((x+y*3)%180) + uint8(state>>28)
				img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		pages[i] = buf.Bytes()
		h, err := fingerprint.DHash(pages[i])
		require.NoError(t, err)
		hashes[i] = h
	}
	return pages, hashes
}

const documentText = "the quick brown fox jumps over the lazy dog again and again until done"

func TestVerifyDocumentPerceptualMatch(t *testing.T) {
	pages, hashes := pageSet(t, 11, 22, 33)
	simhash := fingerprint.SimHash(documentText)
	require.NotEmpty(t, simhash)

	lookup := newFakeLookup()
	lookup.perPage = []Record{{
		WatermarkID:    "doc-match",
		PerPageHashes:  hashes,
		PDFTextSimhash: simhash,
	}}

	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: false}},
		OCR:    fakeOCR{pages: pages, text: documentText},
		Lookup: lookup,
	}

	doc, _, err := v.Verify(context.Background(), "report.pdf", "application/pdf", []byte("unsigned-pdf"))
	require.NoError(t, err)
	require.False(t, doc.Valid)
	require.Equal(t, "perceptual_pdf", doc.Method)
	require.Equal(t, 1.0, doc.OwnershipConfidence)
	require.NotNil(t, doc.Record)
	require.Equal(t, "doc-match", doc.Record.WatermarkID)
}

func TestVerifyDocumentPerceptualAmbiguousOnTie(t *testing.T) {
	pages, hashes := pageSet(t, 44, 55, 66)
	simhash := fingerprint.SimHash(documentText)
	require.NotEmpty(t, simhash)

	lookup := newFakeLookup()
	lookup.perPage = []Record{
		{WatermarkID: "doc-a", PerPageHashes: hashes, PDFTextSimhash: simhash},
		{WatermarkID: "doc-b", PerPageHashes: hashes, PDFTextSimhash: simhash},
	}

	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: false}},
		OCR:    fakeOCR{pages: pages, text: documentText},
		Lookup: lookup,
	}

	doc, _, err := v.Verify(context.Background(), "report.pdf", "application/pdf", []byte("unsigned-pdf"))
	require.NoError(t, err)
	require.False(t, doc.Valid)
	require.Equal(t, "perceptual_pdf_ambiguous", doc.Method)
	require.Equal(t, "non_unique", doc.Reason)
	require.Len(t, doc.AmbiguousCandidates, 2)
}

func TestVerifyDocumentOnePageNeverAttributes(t *testing.T) {
	pages, hashes := pageSet(t, 77)
	simhash := fingerprint.SimHash(documentText)

	lookup := newFakeLookup()
	lookup.perPage = []Record{{WatermarkID: "doc-one", PerPageHashes: hashes, PDFTextSimhash: simhash}}

	v := &Verifier{
		Secret: "s3cret",
		Signer: fakeSigner{result: SignerResult{Intact: false}},
		OCR:    fakeOCR{pages: pages, text: documentText},
		Lookup: lookup,
	}

	doc, _, err := v.Verify(context.Background(), "report.pdf", "application/pdf", []byte("unsigned-pdf"))
	require.NoError(t, err)
	require.False(t, doc.Valid)
	require.Equal(t, "perceptual_pdf_ambiguous", doc.Method)
	require.Equal(t, "one_page_only", doc.Reason)
}

func syntheticPNGForVerify(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	state := uint32(98765)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			state = state*1664525 + 1013904223
			noise := uint8(state >> 24)
			v := uint8((x*3+y*5)%200) + 20 + (noise % 16)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
