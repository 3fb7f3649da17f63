package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/originseal/provenance/pkg/provenance"
)

type fakeInserter struct {
	inserted []*provenance.Record
}

func (f *fakeInserter) InsertRecord(ctx context.Context, record *provenance.Record) error {
	f.inserted = append(f.inserted, record)
	return nil
}

func gradientPNG(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	state := uint32(555)
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

func TestIngestImageEmbedsAndRecords(t *testing.T) {
	inserter := &fakeInserter{}
	svc := &Service{Secret: "s3cret", DB: inserter}

	data := gradientPNG(t, 320)
	result, err := svc.Ingest(context.Background(), Input{
		UserID:           "user-1",
		OriginalFilename: "photo.png",
		MimeType:         "image/png",
		Data:             data,
		Metadata:         map[string]any{"title": "A Photo"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.WatermarkedBytes)
	require.NotEmpty(t, result.Record.PerceptualHash)
	require.Len(t, result.Record.WatermarkID, 32)
	require.Equal(t, "WMK-", result.Record.WatermarkCode[:4])
	require.Len(t, inserter.inserted, 1)
}

func TestIngestDocumentWithoutOCRSkipsFingerprinting(t *testing.T) {
	inserter := &fakeInserter{}
	svc := &Service{Secret: "s3cret", DB: inserter}

	result, err := svc.Ingest(context.Background(), Input{
		UserID:           "user-1",
		OriginalFilename: "contract.pdf",
		MimeType:         "application/pdf",
		Data:             []byte("%PDF-1.4 stand-in bytes"),
		Metadata:         map[string]any{"title": "A Contract"},
	})
	require.NoError(t, err)
	require.Empty(t, result.WatermarkedBytes)
	require.Empty(t, result.Record.PerPageHashes)
	require.Empty(t, result.Record.PDFTextSimhash)
	require.Len(t, inserter.inserted, 1)
}
