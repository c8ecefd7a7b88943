// Package batch extracts many leaflets in parallel and watches directories
// for new ones.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

// ErrNoFiles is returned when discovery finds nothing to process.
var ErrNoFiles = errors.New("no leaflet files found")

// Extractor extracts one file. *extract.Extractor implements it.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) (*product.Extraction, error)
}

// Saver persists an extraction. store.Store implements it.
type Saver interface {
	Save(ctx context.Context, ext *product.Extraction) (string, error)
}

// Config holds batch settings.
type Config struct {
	Workers         int // 0 = runtime.NumCPU()
	Recursive       bool
	Include         []string
	Exclude         []string
	ContinueOnError bool
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path       string
	Extraction *product.Extraction
	Location   string // where the extraction was saved, if it was
	Err        error
}

// Result holds the ordered outcomes of a batch run.
type Result struct {
	Files    []FileResult
	Duration time.Duration
	Workers  int
}

// Processor runs an Extractor over files with a bounded worker pool and
// optionally saves every extraction.
type Processor struct {
	ex       Extractor
	saver    Saver
	cfg      Config
	progress ProgressCallback
	log      zerolog.Logger
}

// NewProcessor returns a Processor. saver may be nil.
func NewProcessor(ex Extractor, saver Saver, cfg Config, log zerolog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Processor{ex: ex, saver: saver, cfg: cfg, progress: noProgress{}, log: log}
}

// WithProgress installs a progress reporter.
func (p *Processor) WithProgress(cb ProgressCallback) *Processor {
	if cb == nil {
		cb = noProgress{}
	}
	p.progress = cb
	return p
}

// Workers returns the pool size.
func (p *Processor) Workers() int { return p.cfg.Workers }

// Run discovers files under args and processes them. Results keep the
// discovery order. Unless ContinueOnError is set, the first failure cancels
// the remaining work and is returned alongside the partial result.
func (p *Processor) Run(ctx context.Context, args []string) (*Result, error) {
	files, err := Discover(args, p.cfg.Recursive, p.cfg.Include, p.cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to discover leaflet files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	return p.RunFiles(ctx, files)
}

// RunFiles processes an explicit file list.
func (p *Processor) RunFiles(ctx context.Context, files []string) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	p.progress.OnStart(len(files))
	defer p.progress.OnComplete()

	var (
		mu       sync.Mutex
		done     int
		firstErr error
	)
	results := runPool(ctx, files, p.cfg.Workers, func(ctx context.Context, path string) FileResult {
		res := p.ProcessFile(ctx, path)

		mu.Lock()
		defer mu.Unlock()
		done++
		if res.Err != nil {
			p.progress.OnError(path, res.Err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", path, res.Err)
				if !p.cfg.ContinueOnError {
					cancel()
				}
			}
		}
		p.progress.OnProgress(done, len(files))
		return res
	})

	result := &Result{Files: results, Duration: time.Since(start), Workers: p.cfg.Workers}
	if firstErr != nil && !p.cfg.ContinueOnError {
		return result, firstErr
	}
	return result, nil
}

// ProcessFile extracts and, when a saver is configured, saves one file.
func (p *Processor) ProcessFile(ctx context.Context, path string) FileResult {
	res := FileResult{Path: path}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	ext, err := p.ex.ExtractFile(ctx, path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Extraction = ext
	if p.saver != nil {
		loc, err := p.saver.Save(ctx, ext)
		if err != nil {
			res.Err = fmt.Errorf("save: %w", err)
			return res
		}
		res.Location = loc
	}
	p.log.Debug().Str("file", path).Int("products", ext.TotalProducts).Msg("processed leaflet")
	return res
}

type job struct {
	index int
	path  string
}

// runPool applies fn to every path with at most workers goroutines and
// returns the outputs in input order. Paths not started before ctx is done
// get fn called with the cancelled context.
func runPool[T any](ctx context.Context, paths []string, workers int, fn func(context.Context, string) T) []T {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	out := make([]T, len(paths))
	jobs := make(chan job)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j.index] = fn(ctx, j.path)
			}
		}()
	}

	for i, path := range paths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)
	wg.Wait()
	return out
}
