package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/originseal/provenance/pkg/provenance"
)

func testRecord(t *testing.T, suffix string) *provenance.Record {
	t.Helper()
	hash, err := provenance.CanonicalMetadataHash(map[string]any{"source": "test"})
	require.NoError(t, err)
	return &provenance.Record{
		ID:               "rec-" + suffix,
		UserID:           "user-1",
		OriginalFilename: "photo.png",
		StoredFilename:   "WMK-" + suffix + ".png",
		MimeType:         "image/png",
		OriginalFileHash: "deadbeef" + suffix,
		WatermarkID:      "watermark-" + suffix,
		WatermarkCode:    "WMK-" + suffix,
		PerceptualHash:   "0123456789abcdef",
		Metadata:         map[string]any{"source": "test"},
		MetadataHash:     hash,
		PerPageHashes:    []string{"0123456789abcdef"},
		IssuedAt:         time.Now().UTC(),
		AlgoVersion:      2,
	}
}

func TestRepositoryInsertAndFind(t *testing.T) {
	ctx := context.Background()
	container, connStr := setupTestContainer(t, ctx)
	defer container.Terminate(ctx)

	db, err := setupTestDatabase(ctx, connStr)
	require.NoError(t, err)
	defer db.Close()
	defer clearTestData(ctx, db)

	record := testRecord(t, "001")
	require.NoError(t, db.InsertRecord(ctx, record))

	found, err := db.FindRecordBy(ctx, ByWatermarkID, record.WatermarkID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, record.WatermarkCode, found.WatermarkCode)
	require.Equal(t, record.Metadata["source"], found.Metadata["source"])

	missing, err := db.FindRecordBy(ctx, ByWatermarkID, "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepositoryDuplicateWatermarkIDRejected(t *testing.T) {
	ctx := context.Background()
	container, connStr := setupTestContainer(t, ctx)
	defer container.Terminate(ctx)

	db, err := setupTestDatabase(ctx, connStr)
	require.NoError(t, err)
	defer db.Close()
	defer clearTestData(ctx, db)

	record := testRecord(t, "002")
	require.NoError(t, db.InsertRecord(ctx, record))

	duplicate := testRecord(t, "002")
	duplicate.ID = "rec-002-dup"
	err = db.InsertRecord(ctx, duplicate)
	require.Error(t, err)
}

func TestRepositoryScanRecentWithPerceptualHash(t *testing.T) {
	ctx := context.Background()
	container, connStr := setupTestContainer(t, ctx)
	defer container.Terminate(ctx)

	db, err := setupTestDatabase(ctx, connStr)
	require.NoError(t, err)
	defer db.Close()
	defer clearTestData(ctx, db)

	for _, suffix := range []string{"010", "011", "012"} {
		require.NoError(t, db.InsertRecord(ctx, testRecord(t, suffix)))
	}

	records, err := db.ScanRecentWithPerceptualHash(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i := 1; i < len(records); i++ {
		require.True(t, !records[i-1].IssuedAt.Before(records[i].IssuedAt))
	}
}

func TestRepositoryFindRecordsBySignerThumbprint(t *testing.T) {
	ctx := context.Background()
	container, connStr := setupTestContainer(t, ctx)
	defer container.Terminate(ctx)

	db, err := setupTestDatabase(ctx, connStr)
	require.NoError(t, err)
	defer db.Close()
	defer clearTestData(ctx, db)

	doc := testRecord(t, "020")
	doc.PerceptualHash = ""
	doc.PerPageHashes = nil
	doc.MimeType = "application/pdf"
	doc.SignerCertThumbprint = "thumb-shared"
	require.NoError(t, db.InsertRecord(ctx, doc))

	other := testRecord(t, "021")
	other.PerceptualHash = ""
	other.PerPageHashes = nil
	other.MimeType = "application/pdf"
	other.SignerCertThumbprint = "thumb-shared"
	require.NoError(t, db.InsertRecord(ctx, other))

	unrelated := testRecord(t, "022")
	unrelated.SignerCertThumbprint = "thumb-other"
	require.NoError(t, db.InsertRecord(ctx, unrelated))

	matches, err := db.FindRecordsBySignerThumbprint(ctx, "thumb-shared")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	none, err := db.ScanRecentWithPerceptualHash(ctx)
	require.NoError(t, err)
	for _, rec := range none {
		require.NotEqual(t, "watermark-020", rec.WatermarkID)
	}
}
