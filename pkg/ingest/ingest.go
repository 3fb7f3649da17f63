// Package ingest orchestrates a single upload: hash the bytes, mint a
// watermark id, compute fingerprints, embed the watermark or invoke the
// external signer, and persist the resulting Provenance Record.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	provenanceerrors "github.com/originseal/provenance/pkg/provenance/errors"

	"github.com/originseal/provenance/pkg/fingerprint"
	"github.com/originseal/provenance/pkg/infrastructure/workers"
	"github.com/originseal/provenance/pkg/provenance"
	"github.com/originseal/provenance/pkg/verify"
	"github.com/originseal/provenance/pkg/watermark"
)

// Signer is verify.Signer, which ingest uses to record a signed_at/
// thumbprint pair for documents that arrive already signed.
type Signer = verify.Signer

// Inserter is the write side of the Repository Contract ingest needs;
// *repository.Database satisfies it. Kept as a narrow interface so ingest
// can be exercised in tests without a live Postgres connection.
type Inserter interface {
	InsertRecord(ctx context.Context, record *provenance.Record) error
}

// Input describes one upload to ingest.
type Input struct {
	UserID           string
	OriginalFilename string
	MimeType         string
	Data             []byte
	Metadata         map[string]any
	SourceCreatedAt  *time.Time
}

// Result is what ingest hands back: the issued record and, for images, the
// watermarked bytes the caller should store instead of the original.
type Result struct {
	Record           *provenance.Record
	WatermarkedBytes []byte
}

// Service ties the watermarker, fingerprinters, and repository together.
type Service struct {
	Secret string
	DB     Inserter
	Signer Signer
	OCR    verify.OCR
}

// Ingest processes one upload end to end and returns the persisted record.
func (s *Service) Ingest(ctx context.Context, in Input) (*Result, error) {
	sum := sha256.Sum256(in.Data)
	fileHash := hex.EncodeToString(sum[:])

	idHex, err := provenance.NewWatermarkID()
	if err != nil {
		return nil, fmt.Errorf("ingest: minting watermark id: %w", err)
	}
	code, err := provenance.WatermarkCode(idHex)
	if err != nil {
		return nil, fmt.Errorf("ingest: deriving watermark code: %w", err)
	}
	metadataHash, err := provenance.CanonicalMetadataHash(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("ingest: hashing metadata: %w", err)
	}

	record := &provenance.Record{
		ID:               uuid.New().String(),
		UserID:           in.UserID,
		OriginalFilename: in.OriginalFilename,
		StoredFilename:   fmt.Sprintf("%s%s", code, extensionFor(in.MimeType, in.OriginalFilename)),
		MimeType:         in.MimeType,
		OriginalFileHash: fileHash,
		WatermarkID:      idHex,
		WatermarkCode:    code,
		Metadata:         in.Metadata,
		MetadataHash:     metadataHash,
		IssuedAt:         time.Now().UTC(),
		SourceCreatedAt:  in.SourceCreatedAt,
		AlgoVersion:      2,
	}

	var watermarked []byte

	if isImage(in.MimeType, in.OriginalFilename) {
		watermarked, err = watermark.Embed(in.Data, idHex, watermark.EmbedOptions{Secret: s.Secret})
		if err != nil {
			return nil, fmt.Errorf("ingest: embedding watermark: %w", err)
		}
		hash, err := fingerprint.DHash(watermarked)
		if err != nil {
			return nil, fmt.Errorf("ingest: computing perceptual hash: %w", err)
		}
		record.PerceptualHash = hash
	} else if s.OCR != nil {
		if err := s.attachDocumentFingerprints(ctx, in.Data, record); err != nil {
			return nil, fmt.Errorf("ingest: computing document fingerprints: %w", err)
		}
		if s.Signer != nil {
			if sig, err := s.Signer.Verify(ctx, in.Data); err == nil && sig.Intact {
				now := time.Now().UTC()
				record.SignedAt = &now
				record.SignerCertThumbprint = sig.LeafThumbprintSHA256
			}
		}
	}

	if err := record.Validate(); err != nil {
		return nil, provenanceerrors.Wrap(provenanceerrors.InvalidInput, "record failed validation", err)
	}

	if err := s.DB.InsertRecord(ctx, record); err != nil {
		return nil, provenanceerrors.Wrap(provenanceerrors.Internal, "persisting record", err)
	}

	return &Result{Record: record, WatermarkedBytes: watermarked}, nil
}

func (s *Service) attachDocumentFingerprints(ctx context.Context, data []byte, record *provenance.Record) error {
	pages, err := s.OCR.RenderPagesRGB(ctx, data, 150, 10)
	if err != nil {
		return nil
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

	hashes := make([]string, 0, len(hashed))
	for _, h := range hashed {
		if h != "" {
			hashes = append(hashes, h)
		}
	}
	record.PerPageHashes = hashes

	if text, err := s.OCR.ExtractText(ctx, data, 10); err == nil {
		record.PDFTextSimhash = fingerprint.SimHash(text)
	}
	return nil
}

func isImage(mimeType, filename string) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}

func extensionFor(mimeType, filename string) string {
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.HasSuffix(strings.ToLower(filename), ".jpg"), strings.HasSuffix(strings.ToLower(filename), ".jpeg"):
		return ".jpg"
	case strings.Contains(mimeType, "png"), strings.HasSuffix(strings.ToLower(filename), ".png"):
		return ".png"
	case strings.Contains(mimeType, "pdf"), strings.HasSuffix(strings.ToLower(filename), ".pdf"):
		return ".pdf"
	default:
		return ""
	}
}
