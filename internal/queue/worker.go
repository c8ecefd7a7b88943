package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

// Extractor extracts one spooled file.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) (*product.Extraction, error)
}

// Saver persists an extraction.
type Saver interface {
	Save(ctx context.Context, ext *product.Extraction) (string, error)
}

// TaskResult is written as the asynq task result.
type TaskResult struct {
	ExtractionID  string `json:"extraction_id"`
	TotalProducts int    `json:"total_products"`
	Location      string `json:"json_file,omitempty"`
}

// Handler processes TypeExtract tasks.
type Handler struct {
	ex      Extractor
	saver   Saver
	timeout time.Duration
	log     zerolog.Logger
}

// NewHandler returns a Handler. saver may be nil.
func NewHandler(ex Extractor, saver Saver, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{ex: ex, saver: saver, timeout: timeout, log: log}
}

// ProcessTask implements asynq.Handler. Malformed payloads and missing
// spool files are not retried. The spool file is removed once the
// extraction is saved.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := ParseExtractPayload(t.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	log := h.log.With().Str("job_id", p.JobID).Str("filename", p.Filename).Logger()

	if _, err := os.Stat(p.Path); err != nil {
		log.Error().Err(err).Msg("spooled file missing")
		return fmt.Errorf("job %s: %w: %w", p.JobID, err, asynq.SkipRetry)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	ext, err := h.ex.ExtractFile(ctx, p.Path)
	if err != nil {
		return fmt.Errorf("job %s: %w", p.JobID, err)
	}
	if p.Filename != "" {
		ext.SourceImage = p.Filename
	}

	res := TaskResult{ExtractionID: ext.ID, TotalProducts: ext.TotalProducts}
	if h.saver != nil {
		loc, err := h.saver.Save(ctx, ext)
		if err != nil {
			return fmt.Errorf("job %s: save: %w", p.JobID, err)
		}
		res.Location = loc
	}
	if w := t.ResultWriter(); w != nil {
		data, _ := json.Marshal(res)
		if _, err := w.Write(data); err != nil {
			log.Warn().Err(err).Msg("failed to write task result")
		}
	}
	if err := os.Remove(p.Path); err != nil {
		log.Warn().Err(err).Msg("failed to remove spooled file")
	}

	log.Info().Str("extraction_id", ext.ID).Int("products", ext.TotalProducts).
		Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}

// Worker consumes TypeExtract tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	cfg    Config
	log    zerolog.Logger
}

// NewWorker configures an asynq server for cfg.Queue.
func NewWorker(cfg Config, h *Handler, log zerolog.Logger) (*Worker, error) {
	cfg = cfg.withDefaults()
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Queue: 10,
			"default": 1,
		},
		RetryDelayFunc: retryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("type", task.Type()).Bytes("payload", task.Payload()).Msg("task failed")
		}),
		Logger:   asynqLogger{log: log},
		LogLevel: asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeExtract, h)

	return &Worker{server: server, mux: mux, cfg: cfg, log: log}, nil
}

// Run processes tasks until ctx is done, then shuts down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("concurrency", w.cfg.Concurrency).Str("queue", w.cfg.Queue).Msg("starting queue worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("queue worker: %w", err)
	}
	<-ctx.Done()
	w.log.Info().Msg("stopping queue worker")
	w.server.Shutdown()
	return nil
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
