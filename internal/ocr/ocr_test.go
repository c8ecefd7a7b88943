package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
)

func TestNewDetection(t *testing.T) {
	d := NewDetection(geometry.NewBox(0, 0, 10, 10), "  $3.49 ", 1.4)
	assert.Equal(t, "$3.49", d.Text)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)

	d = NewDetection(geometry.NewBox(0, 0, 10, 10), "x", -0.2)
	assert.Zero(t, d.Confidence)
}

func TestDetectionShifted(t *testing.T) {
	d := NewDetection(geometry.NewBox(10, 20, 30, 40), "Apples", 0.9)
	s := d.Shifted(100, 5)
	assert.Equal(t, geometry.NewBox(110, 25, 130, 45), s.Box)
	assert.Equal(t, geometry.NewBox(10, 20, 30, 40), d.Box, "original must not move")
	assert.Equal(t, d.Text, s.Text)
}

func TestFilter(t *testing.T) {
	box := geometry.NewBox(0, 0, 1, 1)
	dets := []Detection{
		{Box: box, Text: "keep", Confidence: 0.9},
		{Box: box, Text: "low", Confidence: 0.2},
		{Box: box, Text: "   ", Confidence: 0.9},
		{Box: box, Text: "＄3.49", Confidence: 0.8},
		{Box: box, Text: "tail", Confidence: 0.7},
	}

	got := Filter(dets, FilterOptions{MinConfidence: 0.5})
	require.Len(t, got, 3)
	assert.Equal(t, "keep", got[0].Text)
	assert.Equal(t, "$3.49", got[1].Text, "fullwidth dollar sign is NFKC-normalized")
	assert.Equal(t, "tail", got[2].Text)
	assert.Equal(t, "＄3.49", dets[3].Text, "input is not modified")

	capped := Filter(dets, FilterOptions{MinConfidence: 0.5, MaxDetections: 2})
	require.Len(t, capped, 2)
	assert.Equal(t, "$3.49", capped[1].Text)
}

func TestLoadDetectionsEasyOCRArrays(t *testing.T) {
	doc := `[
		[[[10, 10], [200, 10], [200, 60], [10, 60]], "Fresh Apples", 0.95],
		[[[10.7, 70.2], [80, 70], [80, 95], [10, 95]], "250g", 0.9]
	]`
	dets, err := LoadDetections(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, "Fresh Apples", dets[0].Text)
	assert.Equal(t, geometry.NewBox(10, 10, 200, 60), dets[0].Box)
	assert.InDelta(t, 0.95, dets[0].Confidence, 1e-9)
	assert.Equal(t, geometry.Point{X: 10, Y: 70}, dets[1].Box.TopLeft, "fractional coordinates truncate")
}

func TestLoadDetectionsObjects(t *testing.T) {
	doc := `{"detections": [
		{"bbox": [[10, 100], [90, 100], [90, 140], [10, 140]], "text": " $3.49 ", "confidence": 0.92}
	]}`
	dets, err := LoadDetections(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "$3.49", dets[0].Text)
	assert.Equal(t, 140, dets[0].Box.BottomRight.Y)
}

func TestLoadDetectionsPolygonFallsBackToEnclosingBox(t *testing.T) {
	doc := `[{"bbox": [[5, 5], [50, 2], [60, 40]], "text": "tri", "confidence": 0.9}]`
	dets, err := LoadDetections(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, geometry.NewBox(5, 2, 60, 40), dets[0].Box)
}

func TestLoadDetectionsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"scalar", `42`},
		{"short triple", `[[[[0,0],[1,0],[1,1],[0,1]], "x"]]`},
		{"bad point", `[[[[0],[1,0],[1,1],[0,1]], "x", 0.5]]`},
		{"too few points", `[{"bbox": [[0,0]], "text": "x", "confidence": 0.5}]`},
		{"text not a string", `[[[[0,0],[1,0],[1,1],[0,1]], 5, 0.5]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDetections(strings.NewReader(tt.doc))
			require.Error(t, err)
			var ocrErr *Error
			assert.True(t, errors.As(err, &ocrErr))
		})
	}
}

func TestLoadDetectionsEmptyArray(t *testing.T) {
	dets, err := LoadDetections(strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, dets)
	assert.Empty(t, dets)
}

func TestWriteDetectionsRoundTrip(t *testing.T) {
	in := []Detection{
		NewDetection(geometry.NewBox(1, 2, 3, 4), "Milk 2L", 0.75),
		NewDetection(geometry.NewBox(10, 20, 30, 40), "$2.50", 0.5),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteDetections(&buf, in))
	assert.Contains(t, buf.String(), `"bbox"`)

	out, err := LoadDetections(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJSONEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dets.json")
	doc := `[[[[0,0],[10,0],[10,10],[0,10]], "Bananas", 0.9], [[[0,20],[10,20],[10,30],[0,30]], "blur", 0.1]]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	engine, err := New(context.Background(), Config{Engine: "json", DetectionsFile: path, MinConfidence: 0.5})
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	assert.Equal(t, "json", engine.Name())
	dets, err := engine.Detect(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "Bananas", dets[0].Text)
}

func TestJSONEngineMissingFile(t *testing.T) {
	engine := NewJSONEngine(filepath.Join(t.TempDir(), "missing.json"), FilterOptions{})
	_, err := engine.Detect(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewUnknownEngine(t *testing.T) {
	_, err := New(context.Background(), Config{Engine: "abbyy"})
	assert.ErrorIs(t, err, ErrUnknownEngine)

	_, err = New(context.Background(), Config{Engine: "json"})
	assert.ErrorIs(t, err, ErrInvalidDetections)
}

func TestStaticCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Static{}).Detect(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// offsetEngine records the bounds it saw and reports one detection at the
// origin of the image it was given.
type offsetEngine struct{ seen image.Rectangle }

func (e *offsetEngine) Name() string { return "offset" }
func (e *offsetEngine) Close() error { return nil }
func (e *offsetEngine) Detect(_ context.Context, img image.Image) ([]Detection, error) {
	e.seen = img.Bounds()
	return []Detection{NewDetection(geometry.NewBox(0, 0, 5, 5), "x", 1)}, nil
}

func TestDetectRegion(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	engine := &offsetEngine{}

	dets, err := DetectRegion(context.Background(), engine, img, geometry.Rect{X: 40, Y: 30, Width: 20, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, 20, engine.seen.Dx())
	assert.Equal(t, 10, engine.seen.Dy())
	require.Len(t, dets, 1)
	assert.Equal(t, geometry.NewBox(40, 30, 45, 35), dets[0].Box)

	_, err = DetectRegion(context.Background(), engine, img, geometry.Rect{X: 500, Y: 500, Width: 5, Height: 5})
	assert.ErrorIs(t, err, ErrRecognitionFailed)
}

func TestErrorFormatting(t *testing.T) {
	err := WrapError("load", ErrInvalidDetections, "dets.json")
	assert.Equal(t, "ocr: load: dets.json: invalid detections", err.Error())
	assert.ErrorIs(t, err, ErrInvalidDetections)
	assert.Same(t, err, WrapError("again", err, ""))
	assert.Nil(t, WrapError("noop", nil, ""))
}

func TestIsRecorded(t *testing.T) {
	assert.True(t, IsRecorded(&Static{}))
	assert.True(t, IsRecorded(NewJSONEngine("x.json", FilterOptions{})))
	assert.False(t, IsRecorded(&offsetEngine{}))
}
