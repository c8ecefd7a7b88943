// Package server exposes leaflet extraction over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/product"
	"github.com/MeKo-Tech/leafscan/internal/queue"
	"github.com/MeKo-Tech/leafscan/internal/store"
	"github.com/MeKo-Tech/leafscan/internal/validate"
	"github.com/MeKo-Tech/leafscan/internal/version"
)

// Extractor defines the extraction call the server needs.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input) (*product.Extraction, error)
}

// JobQueue submits and inspects asynchronous extraction jobs.
type JobQueue interface {
	EnqueueFile(ctx context.Context, filename string, data []byte) (string, error)
	Status(jobID string) (queue.JobStatus, error)
}

// Config holds server configuration.
type Config struct {
	Environment       string
	CORSOrigins       []string
	MaxUploadBytes    int64
	AllowedExtensions []string
	Timeout           time.Duration
	ShutdownTimeout   time.Duration
	MaxConcurrent     int

	RateLimitEnabled  bool
	RequestsPerMinute int
	RequestsPerHour   int
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	cfg       Config
	extractor Extractor
	store     store.Store
	queue     JobQueue // nil disables ?async=true
	limiter   *RateLimiter
	sem       chan struct{}
	log       zerolog.Logger
}

// New builds a Server. q may be nil.
func New(cfg Config, ex Extractor, st store.Store, q JobQueue, log zerolog.Logger) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = validate.DefaultAllowedExtensions
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = validate.DefaultMaxUploadBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	s := &Server{
		cfg:       cfg,
		extractor: ex,
		store:     st,
		queue:     q,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		log:       log,
	}
	if cfg.RateLimitEnabled {
		s.limiter = NewRateLimiter(cfg.RequestsPerMinute, cfg.RequestsPerHour)
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s.recoverMiddleware(s.loggingMiddleware(s.corsMiddleware(s.metricsMiddleware(mux))))
}

// SetupRoutes registers the API endpoints on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /extract", s.rateLimitMiddleware(s.extractHandler))
	mux.HandleFunc("GET /extractions", s.listExtractionsHandler)
	mux.HandleFunc("GET /extractions/{id}", s.getExtractionHandler)
	mux.HandleFunc("GET /jobs/{id}", s.jobStatusHandler)
	mux.HandleFunc("GET /ws/extract", s.rateLimitMiddleware(s.websocketHandler))
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.limiter != nil {
		go s.pruneLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Str("version", version.Version).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.log.Info().Dur("timeout", timeout).Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info().Msg("Server stopped")
	return nil
}

func (s *Server) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Prune(); n > 0 {
				s.log.Debug().Int("clients", n).Msg("Pruned idle rate limit entries")
			}
		}
	}
}

// Response types for API endpoints.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

type ExtractResponse struct {
	Success               bool              `json:"success"`
	Message               string            `json:"message"`
	Products              []product.Product `json:"products"`
	TotalProducts         int               `json:"total_products"`
	ProcessingTimeSeconds float64           `json:"processing_time_seconds"`
	JSONFile              string            `json:"json_file,omitempty"`
	ExtractionID          string            `json:"extraction_id"`
	Timestamp             time.Time         `json:"timestamp"`
}

type JobAcceptedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

type JobStatusResponse struct {
	Success    bool                `json:"success"`
	Job        queue.JobStatus     `json:"job"`
	Result     *queue.TaskResult   `json:"result,omitempty"`
	Extraction *product.Extraction `json:"extraction,omitempty"`
}

type ListExtractionsResponse struct {
	Success     bool              `json:"success"`
	Extractions []product.Summary `json:"extractions"`
	Total       int               `json:"total"`
}

type GetExtractionResponse struct {
	Success    bool                `json:"success"`
	Extraction *product.Extraction `json:"extraction"`
}
