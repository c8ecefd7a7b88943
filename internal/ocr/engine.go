package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
)

// Engine turns a raster image into text detections.
type Engine interface {
	Name() string
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
	Close() error
}

// Recorded is implemented by engines that replay detections captured on
// the original image. Their output needs no image and is never rescaled.
type Recorded interface {
	Engine
	Recorded() bool
}

// IsRecorded reports whether e replays recorded detections.
func IsRecorded(e Engine) bool {
	r, ok := e.(Recorded)
	return ok && r.Recorded()
}

// Config selects and tunes an engine.
type Config struct {
	Engine        string   `mapstructure:"engine" yaml:"engine" json:"engine"`
	Languages     []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	MinConfidence float64  `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	MaxDetections int      `mapstructure:"max_detections" yaml:"max_detections" json:"max_detections"`

	// Vision engine credentials; empty falls back to application defaults.
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file" json:"credentials_file"`

	// DetectionsFile backs the json engine.
	DetectionsFile string `mapstructure:"detections_file" yaml:"detections_file" json:"detections_file"`
}

// DefaultConfig returns Tesseract with English and a 0.5 confidence floor.
func DefaultConfig() Config {
	return Config{
		Engine:        "tesseract",
		Languages:     []string{"eng"},
		MinConfidence: 0.5,
		MaxDetections: 2000,
	}
}

// FilterOptions derives detection filtering from the config.
func (c Config) FilterOptions() FilterOptions {
	return FilterOptions{MinConfidence: c.MinConfidence, MaxDetections: c.MaxDetections}
}

// New builds the engine named by cfg.Engine.
func New(ctx context.Context, cfg Config) (Engine, error) {
	switch strings.ToLower(cfg.Engine) {
	case "tesseract":
		return NewTesseract(cfg)
	case "vision":
		return NewVision(ctx, cfg)
	case "json":
		if cfg.DetectionsFile == "" {
			return nil, WrapError("new engine", ErrInvalidDetections, "json engine needs a detections file")
		}
		return NewJSONEngine(cfg.DetectionsFile, cfg.FilterOptions()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// Static is an Engine that returns a fixed set of detections, used when
// detections were recorded ahead of time.
type Static struct {
	Detections []Detection
}

// Name implements Engine.
func (s *Static) Name() string { return "static" }

// Detect returns a copy of the stored detections.
func (s *Static) Detect(ctx context.Context, _ image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Detection(nil), s.Detections...), nil
}

// Close implements Engine.
func (s *Static) Close() error { return nil }

// Recorded implements Recorded.
func (s *Static) Recorded() bool { return true }

// DetectRegion runs engine on the part of img inside rect and returns the
// detections in full-image coordinates.
func DetectRegion(ctx context.Context, engine Engine, img image.Image, rect geometry.Rect) ([]Detection, error) {
	r := rect.Image().Intersect(img.Bounds())
	if r.Empty() {
		return nil, WrapError("detect region", ErrRecognitionFailed, "region outside image")
	}
	crop := imaging.Crop(img, r)
	dets, err := engine.Detect(ctx, crop)
	if err != nil {
		return nil, WrapError("detect region", err, "")
	}
	for i := range dets {
		dets[i] = dets[i].Shifted(r.Min.X, r.Min.Y)
	}
	return dets, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
