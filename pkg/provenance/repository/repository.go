package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/originseal/provenance/pkg/provenance"
)

const defaultScanRecentLimit = 500

const recordColumns = `
	id, user_id, original_filename, stored_filename, mime_type,
	original_file_hash, watermark_id, watermark_code, perceptual_hash,
	pdf_text_simhash, metadata, metadata_hash, per_page_hashes, signed_at,
	signer_cert_thumbprint, issued_at, source_created_at, algo_version`

// InsertRecord writes a new provenance record. Unique-index violations on
// watermark_id/watermark_code surface as the caller's duplicate-key error;
// the repository contract requires this fail rather than silently
// overwrite.
func (db *Database) InsertRecord(ctx context.Context, record *provenance.Record) error {
	metadataJSON, perPageJSON, err := marshalRecordJSON(record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO watermarked_files (%s) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
	)`, recordColumns)

	_, err = db.pool.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.OriginalFilename,
		record.StoredFilename,
		record.MimeType,
		record.OriginalFileHash,
		record.WatermarkID,
		record.WatermarkCode,
		nullableString(record.PerceptualHash),
		nullableString(record.PDFTextSimhash),
		metadataJSON,
		record.MetadataHash,
		perPageJSON,
		record.SignedAt,
		nullableString(record.SignerCertThumbprint),
		record.IssuedAt,
		record.SourceCreatedAt,
		record.AlgoVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to insert provenance record: %w", err)
	}
	return nil
}

// FindRecordBy looks up a single record by one of the whitelisted lookup
// fields. Returns (nil, nil) when no row matches — callers distinguish "not
// found" from "error" without a sentinel error comparison.
func (db *Database) FindRecordBy(ctx context.Context, field LookupField, value string) (*provenance.Record, error) {
	column, ok := validLookupFields[field]
	if !ok {
		return nil, fmt.Errorf("unsupported lookup field: %s", field)
	}

	query := fmt.Sprintf(`SELECT %s FROM watermarked_files WHERE %s = $1`, recordColumns, column)
	row := db.pool.QueryRow(ctx, query, value)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find record by %s: %w", field, err)
	}
	return record, nil
}

// ScanRecentWithPerceptualHash returns the most recent records (bounded by
// the configured scan limit) that have a non-null perceptual_hash — the
// candidate pool for the image-path fallback match.
func (db *Database) ScanRecentWithPerceptualHash(ctx context.Context) ([]*provenance.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM watermarked_files
		WHERE perceptual_hash IS NOT NULL
		ORDER BY issued_at DESC LIMIT %d`, recordColumns, db.config.ScanRecentLimit)
	return scanRecords(ctx, db, query)
}

// ScanRecentWithPerPageHashes returns the most recent records (bounded by
// the configured scan limit) that have per_page_hashes populated — the
// candidate pool for the perceptual document-matching path.
func (db *Database) ScanRecentWithPerPageHashes(ctx context.Context) ([]*provenance.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM watermarked_files
		WHERE per_page_hashes IS NOT NULL AND jsonb_array_length(per_page_hashes) > 0
		ORDER BY issued_at DESC LIMIT %d`, recordColumns, db.config.ScanRecentLimit)
	return scanRecords(ctx, db, query)
}

// FindRecordsBySignerThumbprint returns every record whose
// signer_cert_thumbprint matches thumbprint, newest issued_at first. Unlike
// the perceptual-hash/per-page-hash scans this is not filtered to image or
// OCR'd records: a signer thumbprint is only ever set on the document path,
// so it must be searched over the whole table rather than a perceptual
// candidate pool that would never contain it.
func (db *Database) FindRecordsBySignerThumbprint(ctx context.Context, thumbprint string) ([]*provenance.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM watermarked_files
		WHERE signer_cert_thumbprint = $1
		ORDER BY issued_at DESC LIMIT %d`, recordColumns, db.config.ScanRecentLimit)
	rows, err := db.pool.Query(ctx, query, thumbprint)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records by signer thumbprint: %w", err)
	}
	defer rows.Close()

	var records []*provenance.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

func scanRecords(ctx context.Context, db *Database, query string) ([]*provenance.Record, error) {
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	defer rows.Close()

	var records []*provenance.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*provenance.Record, error) {
	var (
		record            provenance.Record
		perceptualHash    *string
		pdfTextSimhash    *string
		signerThumbprint  *string
		metadataJSON      []byte
		perPageHashesJSON []byte
	)

	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.OriginalFilename,
		&record.StoredFilename,
		&record.MimeType,
		&record.OriginalFileHash,
		&record.WatermarkID,
		&record.WatermarkCode,
		&perceptualHash,
		&pdfTextSimhash,
		&metadataJSON,
		&record.MetadataHash,
		&perPageHashesJSON,
		&record.SignedAt,
		&signerThumbprint,
		&record.IssuedAt,
		&record.SourceCreatedAt,
		&record.AlgoVersion,
	)
	if err != nil {
		return nil, err
	}

	if perceptualHash != nil {
		record.PerceptualHash = *perceptualHash
	}
	if pdfTextSimhash != nil {
		record.PDFTextSimhash = *pdfTextSimhash
	}
	if signerThumbprint != nil {
		record.SignerCertThumbprint = *signerThumbprint
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if len(perPageHashesJSON) > 0 {
		if err := json.Unmarshal(perPageHashesJSON, &record.PerPageHashes); err != nil {
			return nil, fmt.Errorf("unmarshaling per_page_hashes: %w", err)
		}
	}

	return &record, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalRecordJSON serializes the record's JSONB columns, normalizing nil
// to {} / [] so a row never stores JSON null — jsonb_array_length in the
// per-page scan would fail on it.
func marshalRecordJSON(record *provenance.Record) (metadataJSON, perPageJSON []byte, err error) {
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	perPage := record.PerPageHashes
	if perPage == nil {
		perPage = []string{}
	}

	metadataJSON, err = json.Marshal(metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	perPageJSON, err = json.Marshal(perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling per_page_hashes: %w", err)
	}
	return metadataJSON, perPageJSON, nil
}
