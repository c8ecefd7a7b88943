package extract

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
	"github.com/MeKo-Tech/leafscan/internal/imageproc"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/parser"
	"github.com/MeKo-Tech/leafscan/internal/testutil"
)

// imageEngine reports fixed detections in the coordinates of whatever image
// it is given and counts calls.
type imageEngine struct {
	mu    sync.Mutex
	dets  []ocr.Detection
	calls int
	seen  image.Rectangle
	err   error
}

func (e *imageEngine) Name() string { return "fake" }
func (e *imageEngine) Close() error { return nil }
func (e *imageEngine) Detect(_ context.Context, img image.Image) ([]ocr.Detection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.seen = img.Bounds()
	return append([]ocr.Detection(nil), e.dets...), e.err
}

func newExtractor(engine ocr.Engine, opts Options) *Extractor {
	return New(engine, parser.New(parser.DefaultConfig(), zerolog.Nop()), opts, zerolog.Nop())
}

func defaultOptions() Options {
	return Options{
		Image:  imageproc.DefaultOptions(),
		Filter: ocr.FilterOptions{MinConfidence: 0.5, MaxDetections: 2000},
	}
}

func TestExtractWithSidecarDetections(t *testing.T) {
	ex := newExtractor(nil, defaultOptions())

	got, err := ex.Extract(context.Background(), Input{
		Name:       "leaflet.jpg",
		Detections: testutil.ApplesDetections(),
	})
	require.NoError(t, err)
	assert.Equal(t, "leaflet.jpg", got.SourceImage)
	require.Equal(t, 1, got.TotalProducts)
	assert.Contains(t, got.Products[0].Name, "Apples")
	assert.InDelta(t, 3.99, got.Products[0].Price, 1e-9)
	assert.Equal(t, "1kg", got.Products[0].Description)
	assert.Regexp(t, `^ext-[0-9a-f]{12}$`, got.ID)
}

func TestExtractWithStaticEngineSkipsImageStages(t *testing.T) {
	var stages []string
	opts := defaultOptions()
	opts.Observer = func(stage string, _ time.Duration) { stages = append(stages, stage) }
	ex := newExtractor(&ocr.Static{Detections: testutil.LeafletDetections(testutil.DefaultLeafletItems)}, opts)

	got, err := ex.Extract(context.Background(), Input{Name: "week12.png"})
	require.NoError(t, err)
	require.Equal(t, 3, got.TotalProducts)
	assert.Equal(t, "Full Cream Milk", got.Products[1].Name)
	require.NotNil(t, got.Products[1].UnitPrice)
	assert.InDelta(t, 2.25, *got.Products[1].UnitPrice, 1e-9)
	assert.Equal(t, "Special Buy", got.Products[2].SpecialOffer)
	assert.Equal(t, []string{StageOCR, StageParse}, stages)
}

func TestExtractRescalesBoxesToSourceImage(t *testing.T) {
	// 4000px wide source is fitted to 2000px, so the engine sees half-size
	// coordinates.
	engine := &imageEngine{dets: []ocr.Detection{
		ocr.NewDetection(geometry.NewBox(5, 5, 100, 25), "Fresh Apples", 0.95),
		ocr.NewDetection(geometry.NewBox(5, 30, 50, 45), "$3.99", 0.92),
	}}
	ex := newExtractor(engine, defaultOptions())
	data := testutil.PNGBytes(t, testutil.RenderLeaflet(nil, 4000, 400))

	got, err := ex.Extract(context.Background(), Input{Name: "big.png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, 2000, engine.seen.Dx())
	require.Equal(t, 1, got.TotalProducts)
	require.NotNil(t, got.Products[0].Position)
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 190, Height: 80}, *got.Products[0].Position)

	dets, err := ex.Detect(context.Background(), Input{Name: "big.png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, geometry.NewBox(10, 60, 100, 90), dets[1].Box)
}

func TestExtractCachesByContent(t *testing.T) {
	engine := &imageEngine{dets: testutil.ApplesDetections()}
	opts := defaultOptions()
	opts.Cache = CacheOptions{Enabled: true, TTL: time.Minute, Cleanup: time.Minute}
	ex := newExtractor(engine, opts)
	data := testutil.PNGBytes(t, testutil.RenderLeaflet(nil, 300, 150))

	first, err := ex.Extract(context.Background(), Input{Name: "a.png", Data: data})
	require.NoError(t, err)
	second, err := ex.Extract(context.Background(), Input{Name: "b.png", Data: data})
	require.NoError(t, err)

	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, 1, ex.CachedItems())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "b.png", second.SourceImage)
	require.Len(t, second.Products, len(first.Products))
	for i := range first.Products {
		a, b := first.Products[i], second.Products[i]
		assert.NotEqual(t, a.ID, b.ID)
		a.ID, b.ID = "", ""
		assert.Equal(t, a, b)
	}

	other := testutil.PNGBytes(t, testutil.RenderLeaflet(nil, 301, 150))
	_, err = ex.Extract(context.Background(), Input{Name: "c.png", Data: other})
	require.NoError(t, err)
	assert.Equal(t, 2, engine.calls)
}

func TestExtractCachedProductsAreIndependent(t *testing.T) {
	engine := &imageEngine{dets: testutil.ApplesDetections()}
	opts := defaultOptions()
	opts.Cache = CacheOptions{Enabled: true, TTL: time.Minute, Cleanup: time.Minute}
	ex := newExtractor(engine, opts)
	data := testutil.PNGBytes(t, testutil.RenderLeaflet(nil, 300, 150))

	first, err := ex.Extract(context.Background(), Input{Name: "a.png", Data: data})
	require.NoError(t, err)
	require.NotEmpty(t, first.Products)
	require.NotNil(t, first.Products[0].Position)
	wantName, wantX := first.Products[0].Name, first.Products[0].Position.X
	first.Products[0].Name = "changed"
	first.Products[0].Position.X = -1

	ids := map[string]bool{first.Products[0].ID: true}
	for range 2 {
		again, err := ex.Extract(context.Background(), Input{Name: "a.png", Data: data})
		require.NoError(t, err)
		got := again.Products[0]
		assert.False(t, ids[got.ID], "product id reused: %s", got.ID)
		ids[got.ID] = true
		assert.Equal(t, wantName, got.Name)
		assert.Equal(t, wantX, got.Position.X)
	}
	assert.Equal(t, 1, engine.calls)
}

func TestExtractWithoutCache(t *testing.T) {
	engine := &imageEngine{dets: testutil.ApplesDetections()}
	ex := newExtractor(engine, defaultOptions())
	data := testutil.PNGBytes(t, testutil.RenderLeaflet(nil, 300, 150))

	for range 2 {
		_, err := ex.Extract(context.Background(), Input{Name: "a.png", Data: data})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, engine.calls)
	assert.Zero(t, ex.CachedItems())
}

func TestExtractFiltersLowConfidence(t *testing.T) {
	dets := testutil.ApplesDetections()
	dets[1].Confidence = 0.2 // the price
	ex := newExtractor(nil, defaultOptions())

	got, err := ex.Extract(context.Background(), Input{Name: "x.png", Detections: dets})
	require.NoError(t, err)
	assert.Zero(t, got.TotalProducts)
	assert.NotNil(t, got.Products)
}

func TestExtractErrors(t *testing.T) {
	engine := &imageEngine{}

	_, err := newExtractor(engine, defaultOptions()).Extract(context.Background(), Input{Name: "x.png"})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = newExtractor(engine, defaultOptions()).Extract(context.Background(), Input{Name: "x.png", Data: []byte("not an image")})
	assert.ErrorIs(t, err, imageproc.ErrDecode)

	_, err = newExtractor(nil, defaultOptions()).Extract(context.Background(), Input{Name: "x.png", Data: []byte{1}})
	assert.ErrorIs(t, err, ocr.ErrEngineUnavailable)

	failing := &imageEngine{err: ocr.ErrRecognitionFailed}
	data := testutil.PNGBytes(t, testutil.RenderLeaflet(nil, 50, 50))
	_, err = newExtractor(failing, defaultOptions()).Extract(context.Background(), Input{Name: "x.png", Data: data})
	assert.ErrorIs(t, err, ocr.ErrRecognitionFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newExtractor(nil, defaultOptions()).Extract(ctx, Input{Name: "x.png", Detections: testutil.ApplesDetections()})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteLeaflet(t, dir, "leaflet.png", testutil.ApplesDetections())
	ex := newExtractor(&ocr.Static{Detections: testutil.ApplesDetections()}, defaultOptions())

	got, err := ex.ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "leaflet.png", got.SourceImage)
	assert.Equal(t, 1, got.TotalProducts)

	_, err = ex.ExtractFile(context.Background(), filepath.Join(dir, "notes.txt"))
	assert.ErrorIs(t, err, imageproc.ErrUnsupportedFormat)

	_, err = ex.ExtractFile(context.Background(), filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
