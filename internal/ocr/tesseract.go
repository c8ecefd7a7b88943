//go:build tesseract

package ocr

import (
	"context"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
)

// Tesseract runs the local Tesseract library through gosseract. A new
// client is created per call since gosseract clients are not safe for
// concurrent use.
type Tesseract struct {
	languages []string
	filter    FilterOptions
}

// NewTesseract returns a Tesseract engine for cfg.Languages.
func NewTesseract(cfg Config) (Engine, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Tesseract{languages: langs, filter: cfg.FilterOptions()}, nil
}

// Name implements Engine.
func (t *Tesseract) Name() string { return "tesseract" }

// Detect returns one detection per recognized text line.
func (t *Tesseract) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := encodePNG(img)
	if err != nil {
		return nil, WrapError("tesseract", err, "encode image")
	}

	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, WrapError("tesseract", err, "set language "+strings.Join(t.languages, "+"))
	}
	// Leaflets scatter text across the page; sparse mode finds isolated prices.
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, WrapError("tesseract", err, "set page segmentation mode")
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, WrapError("tesseract", err, "set image")
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, WrapError("tesseract", ErrRecognitionFailed, err.Error())
	}

	offset := img.Bounds().Min
	dets := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		box := geometry.FromRect(b.Box).Shift(offset.X, offset.Y)
		dets = append(dets, NewDetection(box, b.Word, b.Confidence/100))
	}
	return Filter(dets, t.filter), nil
}

// Close implements Engine.
func (t *Tesseract) Close() error { return nil }
