package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/leafscan/internal/config"
	"github.com/MeKo-Tech/leafscan/internal/logger"
	"github.com/MeKo-Tech/leafscan/internal/queue"
	"github.com/MeKo-Tech/leafscan/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		detectionsFile string
		withQueue      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP extraction server",
		Long: `Start an HTTP server exposing leaflet extraction.

Endpoints:
  GET  /health              service health and version
  POST /extract             multipart upload (field "file"); ?async=true queues a job
  GET  /extractions         recent extractions (?limit=1..50)
  GET  /extractions/{id}    one stored extraction
  GET  /jobs/{id}           status of a queued job
  GET  /ws/extract          websocket extraction
  GET  /metrics             Prometheus metrics

Examples:
  leafscan serve
  leafscan serve --host 0.0.0.0 --port 8000 --cors-origins https://app.example.com
  leafscan serve --queue --redis-url redis://localhost:6379/0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg := a.cfg

			ex, err := newExtractor(ctx, cfg, detectionsFile, server.ObserveStage)
			if err != nil {
				return err
			}
			defer func() { _ = ex.Close() }()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			var jobs server.JobQueue
			if withQueue {
				client, err := queue.NewClient(queueConfig(cfg))
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				jobs = client
				log.Info().Str("queue", cfg.Queue.Name).Msg("Asynchronous extraction enabled")
			}

			srv := server.New(serverConfig(cfg), ex, st, jobs, logger.WithComponent("server"))
			return srv.ListenAndServe(ctx, cfg.Addr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&detectionsFile, "detections", "", "serve recorded detections from a JSON sidecar instead of an OCR engine")
	f.BoolVar(&withQueue, "queue", false, "enable ?async=true uploads through the Redis job queue")
	f.String("host", "", "server host")
	f.IntP("port", "p", 0, "server port")
	f.StringSlice("cors-origins", nil, "allowed CORS origins (* for any)")
	f.Int("max-upload-mb", 0, "maximum upload size in MB")
	f.Int("timeout", 0, "extraction timeout in seconds")
	f.Int("max-concurrent", 0, "maximum concurrent extractions")
	f.String("redis-url", "", "Redis URL for the job queue")
	bindFlag(f, "host", "server.host")
	bindFlag(f, "port", "server.port")
	bindFlag(f, "cors-origins", "server.cors_origins")
	bindFlag(f, "max-upload-mb", "server.max_upload_mb")
	bindFlag(f, "timeout", "server.timeout_sec")
	bindFlag(f, "max-concurrent", "server.max_concurrent")
	bindFlag(f, "redis-url", "queue.redis_url")
	return cmd
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Environment:       cfg.Environment,
		CORSOrigins:       cfg.Server.CORSOrigins,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		AllowedExtensions: cfg.Server.AllowedExtensions,
		Timeout:           time.Duration(cfg.Server.TimeoutSec) * time.Second,
		ShutdownTimeout:   time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		MaxConcurrent:     cfg.Server.MaxConcurrent,
		RateLimitEnabled:  cfg.Server.RateLimit.Enabled,
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		RequestsPerHour:   cfg.Server.RateLimit.RequestsPerHour,
	}
}
