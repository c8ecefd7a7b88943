// Package ocr defines the text detections consumed by the product parser and
// the engines that produce them.
package ocr

import (
	"strings"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
	"github.com/MeKo-Tech/leafscan/internal/textclean"
)

// Detection is one recognized text span: its quadrilateral, the trimmed text
// and a confidence in [0,1].
type Detection struct {
	Box        geometry.BoundingBox
	Text       string
	Confidence float64
}

// NewDetection trims text and clamps confidence into [0,1].
func NewDetection(box geometry.BoundingBox, text string, confidence float64) Detection {
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return Detection{Box: box, Text: strings.TrimSpace(text), Confidence: confidence}
}

// Shifted returns a copy moved by (dx, dy), used to bring detections from a
// cropped sub-image back into full-image coordinates.
func (d Detection) Shifted(dx, dy int) Detection {
	d.Box = d.Box.Shift(dx, dy)
	return d
}

// FilterOptions control Filter.
type FilterOptions struct {
	// MinConfidence drops detections below this score.
	MinConfidence float64
	// MaxDetections caps the result; 0 means unlimited. Detections past the
	// cap are dropped in input order.
	MaxDetections int
}

// Filter NFKC-normalizes and trims every text, then drops empty texts and
// detections under the confidence threshold. The input slice is not modified.
func Filter(dets []Detection, opts FilterOptions) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		d.Text = strings.TrimSpace(textclean.NormalizeUnicode(d.Text))
		if d.Text == "" || d.Confidence < opts.MinConfidence {
			continue
		}
		out = append(out, d)
		if opts.MaxDetections > 0 && len(out) == opts.MaxDetections {
			break
		}
	}
	return out
}
