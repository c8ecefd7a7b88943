// Package cluster groups OCR detections into candidate product regions.
package cluster

import (
	"strings"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
)

// Region is an ordered group of detections thought to describe one product.
// The order is significant: the first detection of a price-anchored region
// is its anchor.
type Region struct {
	Detections []ocr.Detection
}

// Len returns the number of detections in the region.
func (r Region) Len() int { return len(r.Detections) }

// CombinedText joins the detection texts with single spaces in list order.
func (r Region) CombinedText() string {
	texts := make([]string, len(r.Detections))
	for i, d := range r.Detections {
		texts[i] = d.Text
	}
	return strings.Join(texts, " ")
}

// AverageConfidence is the mean member confidence, 0 for an empty region.
func (r Region) AverageConfidence() float64 {
	if len(r.Detections) == 0 {
		return 0
	}
	var sum float64
	for _, d := range r.Detections {
		sum += d.Confidence
	}
	return sum / float64(len(r.Detections))
}

// Bounds is the smallest rectangle covering every member box. The zero Rect
// is returned for an empty region.
func (r Region) Bounds() geometry.Rect {
	boxes := make([]geometry.BoundingBox, len(r.Detections))
	for i, d := range r.Detections {
		boxes[i] = d.Box
	}
	rect, _ := geometry.Enclose(boxes)
	return rect
}
