package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MeKo-Tech/leafscan/internal/batch"
	"github.com/MeKo-Tech/leafscan/internal/config"
	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/logger"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/parser"
	"github.com/MeKo-Tech/leafscan/internal/product"
	"github.com/MeKo-Tech/leafscan/internal/queue"
	"github.com/MeKo-Tech/leafscan/internal/store"
)

const (
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatText = "text"
)

var validFormats = []string{outputFormatJSON, outputFormatCSV, outputFormatText}

func checkFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validFormats, ", "))
}

// newExtractor builds the pipeline from the loaded configuration. A
// non-empty detectionsFile replaces the configured engine with recorded
// detections. observer may be nil.
func newExtractor(ctx context.Context, cfg *config.Config, detectionsFile string, observer func(string, time.Duration)) (*extract.Extractor, error) {
	var engine ocr.Engine
	if detectionsFile != "" {
		engine = ocr.NewJSONEngine(detectionsFile, cfg.OCR.FilterOptions())
	} else {
		var err error
		if engine, err = ocr.New(ctx, cfg.OCR); err != nil {
			return nil, fmt.Errorf("failed to create %s engine: %w", cfg.OCR.Engine, err)
		}
	}
	return newExtractorWithEngine(cfg, engine, observer), nil
}

func newExtractorWithEngine(cfg *config.Config, engine ocr.Engine, observer func(string, time.Duration)) *extract.Extractor {
	p := parser.New(cfg.Parser, logger.WithComponent("parser"))
	return extract.New(engine, p, extract.Options{
		Image:  cfg.Image,
		Filter: cfg.OCR.FilterOptions(),
		Cache: extract.CacheOptions{
			Enabled: cfg.Cache.Enabled,
			TTL:     cfg.CacheTTL(),
			Cleanup: cfg.CacheCleanup(),
		},
		Observer: observer,
	}, logger.WithComponent("extract"))
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Storage.Driver,
		OutputDir:   cfg.Storage.OutputDir,
		DSN:         cfg.Storage.DSN,
		AutoMigrate: cfg.Storage.AutoMigrate,
	}, logger.WithComponent("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	return st, nil
}

func queueConfig(cfg *config.Config) queue.Config {
	return queue.Config{
		RedisURL:    cfg.Queue.RedisURL,
		Queue:       cfg.Queue.Name,
		Concurrency: cfg.Queue.Concurrency,
		MaxRetry:    cfg.Queue.MaxRetry,
		Timeout:     time.Duration(cfg.Queue.TimeoutSec) * time.Second,
		SpoolDir:    cfg.Queue.SpoolDir,
	}
}

func batchConfig(cfg *config.Config) batch.Config {
	return batch.Config{
		Workers:         cfg.Batch.Workers,
		Recursive:       cfg.Batch.Recursive,
		Include:         cfg.Batch.Include,
		Exclude:         cfg.Batch.Exclude,
		ContinueOnError: cfg.Batch.ContinueOnError,
	}
}

// writeExtractions renders extractions in format. JSON prints a single
// extraction as an object and several as an array; CSV writes one header
// and the rows of every extraction.
func writeExtractions(w io.Writer, exts []*product.Extraction, format string) error {
	switch format {
	case outputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(exts) == 1 {
			return enc.Encode(exts[0])
		}
		return enc.Encode(exts)
	case outputFormatCSV:
		var all []product.Product
		for _, ext := range exts {
			all = append(all, ext.Products...)
		}
		return product.WriteCSV(w, all)
	default:
		for i, ext := range exts {
			if len(exts) > 1 {
				if i > 0 {
					_, _ = fmt.Fprintln(w)
				}
				_, _ = fmt.Fprintf(w, "== %s (%d products) ==\n", ext.SourceImage, ext.TotalProducts)
			}
			if err := batch.WriteProductsText(w, ext.Products); err != nil {
				return err
			}
		}
		return nil
	}
}

// openOutput returns stdout-like w when path is empty, or a created file.
func openOutput(w io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path) //nolint:gosec // G304: user-selected output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}
