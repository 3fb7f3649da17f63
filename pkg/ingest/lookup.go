package ingest

import (
	"context"
	"fmt"

	"github.com/originseal/provenance/pkg/provenance"
	"github.com/originseal/provenance/pkg/provenance/repository"
	"github.com/originseal/provenance/pkg/verify"
)

// RepositoryLookup adapts *repository.Database to verify.RecordLookup: the
// verifier package works against a narrow Record shape and a plain string
// lookup field so it never needs to import the repository's lookup-field
// whitelist, while this adapter does the actual LookupField translation.
type RepositoryLookup struct {
	DB *repository.Database
}

var _ verify.RecordLookup = RepositoryLookup{}

func (r RepositoryLookup) FindRecordBy(ctx context.Context, field, value string) (verify.Record, bool, error) {
	lookupField, ok := fieldFor(field)
	if !ok {
		return verify.Record{}, false, fmt.Errorf("unsupported lookup field: %s", field)
	}
	rec, err := r.DB.FindRecordBy(ctx, lookupField, value)
	if err != nil {
		return verify.Record{}, false, err
	}
	if rec == nil {
		return verify.Record{}, false, nil
	}
	return toVerifyRecord(rec), true, nil
}

func (r RepositoryLookup) ScanRecentWithPerceptualHash(ctx context.Context) ([]verify.Record, error) {
	recs, err := r.DB.ScanRecentWithPerceptualHash(ctx)
	if err != nil {
		return nil, err
	}
	return toVerifyRecords(recs), nil
}

func (r RepositoryLookup) ScanRecentWithPerPageHashes(ctx context.Context) ([]verify.Record, error) {
	recs, err := r.DB.ScanRecentWithPerPageHashes(ctx)
	if err != nil {
		return nil, err
	}
	return toVerifyRecords(recs), nil
}

func (r RepositoryLookup) FindRecordsBySignerThumbprint(ctx context.Context, thumbprint string) ([]verify.Record, error) {
	recs, err := r.DB.FindRecordsBySignerThumbprint(ctx, thumbprint)
	if err != nil {
		return nil, err
	}
	return toVerifyRecords(recs), nil
}

func fieldFor(field string) (repository.LookupField, bool) {
	switch repository.LookupField(field) {
	case repository.ByWatermarkID, repository.ByWatermarkCode, repository.ByOriginalFileHash, repository.BySignerCertThumbprint:
		return repository.LookupField(field), true
	default:
		return "", false
	}
}

func toVerifyRecords(recs []*provenance.Record) []verify.Record {
	out := make([]verify.Record, len(recs))
	for i, rec := range recs {
		out[i] = toVerifyRecord(rec)
	}
	return out
}

func toVerifyRecord(rec *provenance.Record) verify.Record {
	var issuedAt, sourceCreatedAt string
	if !rec.IssuedAt.IsZero() {
		issuedAt = rec.IssuedAt.Format(timeLayout)
	}
	if rec.SourceCreatedAt != nil {
		sourceCreatedAt = rec.SourceCreatedAt.Format(timeLayout)
	}
	return verify.Record{
		WatermarkID:          rec.WatermarkID,
		WatermarkCode:        rec.WatermarkCode,
		OriginalFilename:     rec.OriginalFilename,
		MimeType:             rec.MimeType,
		OriginalFileHash:     rec.OriginalFileHash,
		PerceptualHash:       rec.PerceptualHash,
		PDFTextSimhash:       rec.PDFTextSimhash,
		Metadata:             rec.Metadata,
		MetadataHash:         rec.MetadataHash,
		PerPageHashes:        rec.PerPageHashes,
		SignerCertThumbprint: rec.SignerCertThumbprint,
		IssuedAt:             issuedAt,
		SourceCreatedAt:      sourceCreatedAt,
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
