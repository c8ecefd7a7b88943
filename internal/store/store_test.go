package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

func sampleExtraction(source string, ts time.Time) *product.Extraction {
	ext := product.NewExtraction(source, []product.Product{
		product.New("Apples", 3.99, product.WithDescription("1kg"), product.WithUnitPrice(3.99, "per kg")),
		product.New("Milk", 4.5, product.WithPosition(product.Position{X: 1, Y: 2, Width: 3, Height: 4})),
	}, 1500*time.Millisecond)
	ext.Timestamp = ts
	return ext
}

func TestFileStoreSaveWritesIndentedJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)

	ts := time.Date(2026, 3, 4, 5, 6, 7, 123456000, time.UTC)
	path, err := s.Save(context.Background(), sampleExtraction("leaflet.jpg", ts))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "products_20260304_050607_123456.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"extraction_id\": \"ext-")
	assert.Contains(t, string(data), `"processing_time_seconds": 1.5`)
}

func TestFileStoreSaveCollision(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	first, err := s.Save(context.Background(), sampleExtraction("a.jpg", ts))
	require.NoError(t, err)
	second := sampleExtraction("b.jpg", ts)
	path, err := s.Save(context.Background(), second)
	require.NoError(t, err)
	assert.NotEqual(t, first, path)
	assert.Contains(t, path, second.ID)
}

func TestFileStoreSaveSameSecondKeepsMicroseconds(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)

	ts := time.Date(2026, 3, 4, 5, 6, 7, 1000, time.UTC)
	first, err := s.Save(context.Background(), sampleExtraction("a.jpg", ts))
	require.NoError(t, err)
	second, err := s.Save(context.Background(), sampleExtraction("b.jpg", ts.Add(time.Microsecond)))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "products_20260304_050607_000001.json"), first)
	assert.Equal(t, filepath.Join(dir, "products_20260304_050607_000002.json"), second)
}

func TestFileStamp(t *testing.T) {
	ts := time.Date(2026, 12, 31, 23, 59, 58, 999999999, time.UTC)
	assert.Equal(t, "20261231_235958_999999", fileStamp(ts))
}

func TestFileStoreListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		ext := sampleExtraction("leaflet.jpg", base.Add(time.Duration(i)*time.Hour))
		path, err := s.Save(ctx, ext)
		require.NoError(t, err)
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		ids = append(ids, ext.ID)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products_broken.json"), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o600))

	got, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].ExtractionID)
	assert.Equal(t, ids[0], got[2].ExtractionID)
	assert.Equal(t, 2, got[0].TotalProducts)
	assert.Equal(t, "leaflet.jpg", got[0].SourceImage)
	assert.Equal(t, "products_20260101_020000_000000.json", got[0].Filename)
	assert.Equal(t, filepath.Join(dir, got[0].Filename), got[0].Location)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFileStoreListEmpty(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	got, err := s.List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFileStoreGet(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	want := sampleExtraction("leaflet.jpg", time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC))
	_, err = s.Save(ctx, want)
	require.NoError(t, err)

	got, err := s.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, want.Products, got.Products)

	_, err = s.Get(ctx, "ext-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRequiresDir(t *testing.T) {
	_, err := NewFileStore("", zerolog.Nop())
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "file", OutputDir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(context.Background(), Config{Driver: "s3"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0))
	assert.Equal(t, 5, clampLimit(5))
	assert.Equal(t, MaxListLimit, clampLimit(500))
}

func TestExtractionRecordRoundTrip(t *testing.T) {
	want := sampleExtraction("leaflet.png", time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC))

	rec, err := toRecord(want)
	require.NoError(t, err)
	assert.Equal(t, "extractions", rec.TableName())
	assert.Contains(t, rec.Products, `"name":"Apples"`)

	got, err := rec.extraction()
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Products, got.Products)
	assert.Equal(t, want.TotalProducts, rec.summary().TotalProducts)

	_, err = ExtractionRecord{ID: "x", Products: "{"}.extraction()
	assert.Error(t, err)

	empty, err := ExtractionRecord{ID: "y"}.extraction()
	require.NoError(t, err)
	assert.NotNil(t, empty.Products)
}

// TestPostgresStore runs against a real database when LEAFSCAN_TEST_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LEAFSCAN_TEST_DSN")
	if dsn == "" {
		t.Skip("LEAFSCAN_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn, true, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	want := sampleExtraction("pg.jpg", time.Now().UTC().Truncate(time.Microsecond))
	loc, err := s.Save(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, "postgres://extractions/"+want.ID, loc)

	got, err := s.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Products, got.Products)

	list, err := s.List(ctx, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	_, err = s.Get(ctx, "ext-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
