package repository

import (
	"context"

	"github.com/originseal/provenance/pkg/provenance"
)

// Transaction mirrors Database's write operations within a single pgx
// transaction.
type Transaction interface {
	InsertRecord(ctx context.Context, record *provenance.Record) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// LookupField enumerates the columns FindRecordBy may query by, per the
// repository contract (original_file_hash, watermark_id, watermark_code,
// signer_cert_thumbprint).
type LookupField string

const (
	ByWatermarkID          LookupField = "watermark_id"
	ByWatermarkCode        LookupField = "watermark_code"
	ByOriginalFileHash     LookupField = "original_file_hash"
	BySignerCertThumbprint LookupField = "signer_cert_thumbprint"
)

// validLookupFields whitelists the columns FindRecordBy may interpolate into
// a query, so LookupField values never reach SQL as anything but one of
// these fixed identifiers.
var validLookupFields = map[LookupField]string{
	ByWatermarkID:          "watermark_id",
	ByWatermarkCode:        "watermark_code",
	ByOriginalFileHash:     "original_file_hash",
	BySignerCertThumbprint: "signer_cert_thumbprint",
}
