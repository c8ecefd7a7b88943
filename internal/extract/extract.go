// Package extract runs the end-to-end leaflet pipeline: load the image or
// PDF, preprocess it, run OCR, map the detections back to source pixels,
// and parse them into products.
package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/common"
	"github.com/MeKo-Tech/leafscan/internal/imageproc"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/parser"
	"github.com/MeKo-Tech/leafscan/internal/pdf"
	"github.com/MeKo-Tech/leafscan/internal/product"
)

// ErrEmptyInput is returned when there is neither data nor detections.
var ErrEmptyInput = errors.New("extract: empty input")

// Pipeline stage names reported to Options.Observer.
const (
	StageLoad       = "load"
	StagePreprocess = "preprocess"
	StageOCR        = "ocr"
	StageParse      = "parse"
)

var pdfMagic = []byte("%PDF-")

// CacheOptions configure the in-memory result cache.
type CacheOptions struct {
	Enabled bool
	TTL     time.Duration
	Cleanup time.Duration
}

// Options configure an Extractor.
type Options struct {
	Image  imageproc.Options
	Filter ocr.FilterOptions
	Cache  CacheOptions

	// Observer, when set, receives the duration of every completed stage.
	Observer func(stage string, d time.Duration)
}

// Input is one leaflet to extract. Name becomes the extraction's
// source_image. When Detections is non-nil the OCR engine is bypassed and
// Data may be empty.
type Input struct {
	Name       string
	Data       []byte
	Detections []ocr.Detection
}

// Extractor is safe for concurrent use when its engine is.
type Extractor struct {
	engine ocr.Engine
	parser *parser.Parser
	opts   Options
	cache  *cache.Cache
	log    zerolog.Logger
}

// New returns an Extractor that owns engine; Close releases it.
func New(engine ocr.Engine, p *parser.Parser, opts Options, log zerolog.Logger) *Extractor {
	e := &Extractor{engine: engine, parser: p, opts: opts, log: log}
	if opts.Cache.Enabled && opts.Cache.TTL > 0 {
		e.cache = cache.New(opts.Cache.TTL, opts.Cache.Cleanup)
	}
	return e
}

// Close releases the engine.
func (e *Extractor) Close() error {
	if e.engine == nil {
		return nil
	}
	return e.engine.Close()
}

// CachedItems returns the number of unexpired cache entries.
func (e *Extractor) CachedItems() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.ItemCount()
}

// ExtractFile reads and extracts the image or PDF at path.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*product.Extraction, error) {
	if !imageproc.IsSupported(path) && !pdf.IsPDF(path) {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(path), imageproc.ErrUnsupportedFormat)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-selected leaflet
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return e.Extract(ctx, Input{Name: filepath.Base(path), Data: data})
}

// Extract runs the pipeline on in. Products of identical inputs are served
// from the cache, but every call yields fresh extraction and product ids.
func (e *Extractor) Extract(ctx context.Context, in Input) (*product.Extraction, error) {
	timer := common.NewStageTimer()
	log := e.log.With().Str("source", in.Name).Logger()

	key := e.cacheKey(in)
	if key != "" {
		if cached, ok := e.cache.Get(key); ok {
			products := cloneProducts(cached.([]product.Product), true)
			log.Debug().Int("products", len(products)).Msg("extraction served from cache")
			return product.NewExtraction(in.Name, products, timer.Elapsed()), nil
		}
	}

	dets := in.Detections
	if dets == nil {
		var err error
		if dets, err = e.detect(ctx, in, timer); err != nil {
			return nil, err
		}
	}
	dets = ocr.Filter(dets, e.opts.Filter)

	stop := timer.Start(StageParse)
	products := e.parser.ParseProducts(ctx, dets)
	stop()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract %s: %w", in.Name, err)
	}

	if key != "" {
		e.cache.SetDefault(key, cloneProducts(products, false))
	}
	e.observe(timer)

	log.Debug().Str("stages", timer.String()).Int("detections", len(dets)).Msg("extraction finished")
	return product.NewExtraction(in.Name, products, timer.Elapsed()), nil
}

// cloneProducts deep-copies products, optionally giving each a fresh id.
func cloneProducts(products []product.Product, freshIDs bool) []product.Product {
	out := make([]product.Product, len(products))
	for i, p := range products {
		out[i] = p.Clone()
		if freshIDs {
			out[i].ID = product.NewID()
		}
	}
	return out
}

// Detect runs the image stages and OCR only, returning detections in the
// pixel space of the original input.
func (e *Extractor) Detect(ctx context.Context, in Input) ([]ocr.Detection, error) {
	dets, err := e.detect(ctx, in, common.NewStageTimer())
	if err != nil {
		return nil, err
	}
	return ocr.Filter(dets, e.opts.Filter), nil
}

func (e *Extractor) detect(ctx context.Context, in Input, timer *common.StageTimer) ([]ocr.Detection, error) {
	if e.engine == nil {
		return nil, fmt.Errorf("extract %s: %w", in.Name, ocr.ErrEngineUnavailable)
	}
	if ocr.IsRecorded(e.engine) {
		stop := timer.Start(StageOCR)
		defer stop()
		dets, err := e.engine.Detect(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", in.Name, err)
		}
		return dets, nil
	}
	if len(in.Data) == 0 {
		return nil, ErrEmptyInput
	}

	stop := timer.Start(StageLoad)
	img, err := load(in)
	stop()
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", in.Name, err)
	}

	stop = timer.Start(StagePreprocess)
	prepared, scale, err := imageproc.Preprocess(img, e.opts.Image)
	stop()
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", in.Name, err)
	}

	stop = timer.Start(StageOCR)
	dets, err := e.engine.Detect(ctx, prepared)
	stop()
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", in.Name, err)
	}
	return rescale(dets, scale), nil
}

func load(in Input) (image.Image, error) {
	if pdf.IsPDF(in.Name) || bytes.HasPrefix(in.Data, pdfMagic) {
		return pdf.FirstPageImageBytes(in.Data)
	}
	img, _, err := imageproc.DecodeBytes(in.Data)
	return img, err
}

// rescale maps boxes from the preprocessed image back to the source image.
func rescale(dets []ocr.Detection, scale float64) []ocr.Detection {
	if scale <= 0 || scale == 1 {
		return dets
	}
	out := make([]ocr.Detection, len(dets))
	for i, d := range dets {
		d.Box = d.Box.Scale(1/scale, 1/scale)
		out[i] = d
	}
	return out
}

// cacheKey is empty when the input must not be cached.
func (e *Extractor) cacheKey(in Input) string {
	if e.cache == nil || in.Detections != nil || len(in.Data) == 0 || ocr.IsRecorded(e.engine) {
		return ""
	}
	sum := sha256.Sum256(in.Data)
	return e.engine.Name() + ":" + hex.EncodeToString(sum[:])
}

func (e *Extractor) observe(timer *common.StageTimer) {
	if e.opts.Observer == nil {
		return
	}
	for _, s := range timer.Stages() {
		e.opts.Observer(s.Name, s.Duration)
	}
}
