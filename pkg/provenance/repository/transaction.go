package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/originseal/provenance/pkg/provenance"
)

// pgxTransaction implements Transaction using a pgx.Tx.
type pgxTransaction struct {
	tx pgx.Tx
}

// InsertRecord writes a new provenance record within the transaction.
func (t *pgxTransaction) InsertRecord(ctx context.Context, record *provenance.Record) error {
	metadataJSON, perPageJSON, err := marshalRecordJSON(record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO watermarked_files (%s) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
	)`, recordColumns)

	_, err = t.tx.Exec(ctx, query,
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

// Commit commits the transaction.
func (t *pgxTransaction) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction. Rolling back an already-closed
// transaction (the common post-Commit defer) is not an error.
func (t *pgxTransaction) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}
