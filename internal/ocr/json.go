package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
)

// wireDetection is the object form written by MarshalJSON.
type wireDetection struct {
	BBox       [][]float64 `json:"bbox"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
}

// MarshalJSON writes the object form with the four corners clockwise from
// the top-left.
func (d Detection) MarshalJSON() ([]byte, error) {
	corners := d.Box.Corners()
	bbox := make([][]float64, 0, len(corners))
	for _, p := range corners {
		bbox = append(bbox, []float64{float64(p.X), float64(p.Y)})
	}
	return json.Marshal(wireDetection{BBox: bbox, Text: d.Text, Confidence: d.Confidence})
}

// UnmarshalJSON accepts both the EasyOCR triple [[[x,y] x4], "text", conf]
// and the object form. Fractional coordinates are truncated.
func (d *Detection) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty detection", ErrInvalidDetections)
	}

	var w wireDetection
	if data[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDetections, err)
		}
		if len(parts) != 3 {
			return fmt.Errorf("%w: expected [bbox, text, confidence], got %d elements", ErrInvalidDetections, len(parts))
		}
		if err := json.Unmarshal(parts[0], &w.BBox); err != nil {
			return fmt.Errorf("%w: bbox: %v", ErrInvalidDetections, err)
		}
		if err := json.Unmarshal(parts[1], &w.Text); err != nil {
			return fmt.Errorf("%w: text: %v", ErrInvalidDetections, err)
		}
		if err := json.Unmarshal(parts[2], &w.Confidence); err != nil {
			return fmt.Errorf("%w: confidence: %v", ErrInvalidDetections, err)
		}
	} else if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDetections, err)
	}

	box, err := quadFromPairs(w.BBox)
	if err != nil {
		return err
	}
	*d = NewDetection(box, w.Text, w.Confidence)
	return nil
}

// quadFromPairs keeps the corner order as given when there are exactly four
// points and falls back to the enclosing box for other polygons.
func quadFromPairs(pairs [][]float64) (geometry.BoundingBox, error) {
	if len(pairs) < 2 {
		return geometry.BoundingBox{}, fmt.Errorf("%w: bbox needs at least 2 points, got %d", ErrInvalidDetections, len(pairs))
	}
	pts := make([]geometry.Point, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return geometry.BoundingBox{}, fmt.Errorf("%w: bbox point %d has %d coordinates", ErrInvalidDetections, i, len(p))
		}
		pts = append(pts, geometry.Point{X: int(math.Trunc(p[0])), Y: int(math.Trunc(p[1]))})
	}
	if len(pts) == 4 {
		return geometry.BoundingBox{TopLeft: pts[0], TopRight: pts[1], BottomRight: pts[2], BottomLeft: pts[3]}, nil
	}
	return geometry.FromPoints(pts), nil
}

// document is the wrapped form {"detections": [...]}.
type document struct {
	Detections []Detection `json:"detections"`
}

// LoadDetections decodes a bare detection array or a {"detections": [...]}
// document.
func LoadDetections(r io.Reader) ([]Detection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, WrapError("load detections", err, "")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, WrapError("load detections", ErrInvalidDetections, "empty document")
	}

	var dets []Detection
	switch data[0] {
	case '[':
		err = json.Unmarshal(data, &dets)
	case '{':
		var doc document
		err = json.Unmarshal(data, &doc)
		dets = doc.Detections
	default:
		err = ErrInvalidDetections
	}
	if err != nil {
		return nil, WrapError("load detections", err, "")
	}
	if dets == nil {
		dets = []Detection{}
	}
	return dets, nil
}

// LoadDetectionsFile reads detections from a JSON file.
func LoadDetectionsFile(path string) ([]Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapError("load detections", err, path)
	}
	defer func() { _ = f.Close() }()
	return LoadDetections(f)
}

// WriteDetections encodes dets as an indented object-form array.
func WriteDetections(w io.Writer, dets []Detection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(dets)
}

// JSONEngine reads detections recorded by another OCR tool from a file. The
// image passed to Detect is ignored.
type JSONEngine struct {
	path   string
	filter FilterOptions
}

// NewJSONEngine returns an engine backed by the detections file at path.
func NewJSONEngine(path string, filter FilterOptions) *JSONEngine {
	return &JSONEngine{path: path, filter: filter}
}

// Name implements Engine.
func (e *JSONEngine) Name() string { return "json" }

// Detect loads and filters the detections file.
func (e *JSONEngine) Detect(ctx context.Context, _ image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dets, err := LoadDetectionsFile(e.path)
	if err != nil {
		return nil, err
	}
	return Filter(dets, e.filter), nil
}

// Close implements Engine.
func (e *JSONEngine) Close() error { return nil }

// Recorded implements Recorded.
func (e *JSONEngine) Recorded() bool { return true }
