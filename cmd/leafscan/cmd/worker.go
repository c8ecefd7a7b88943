package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/leafscan/internal/logger"
	"github.com/MeKo-Tech/leafscan/internal/queue"
)

func newWorkerCmd(a *app) *cobra.Command {
	var detectionsFile string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued extraction jobs",
		Long: `Run a job worker that consumes extraction jobs enqueued by
"leafscan serve --queue" from Redis, extracts every spooled upload and saves
the result through the configured store.

Examples:
  leafscan worker
  leafscan worker --redis-url redis://localhost:6379/0 --concurrency 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg := a.cfg

			ex, err := newExtractor(ctx, cfg, detectionsFile, nil)
			if err != nil {
				return err
			}
			defer func() { _ = ex.Close() }()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			qcfg := queueConfig(cfg)
			log := logger.WithComponent("worker")
			w, err := queue.NewWorker(qcfg, queue.NewHandler(ex, st, qcfg.Timeout, log), log)
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&detectionsFile, "detections", "", "use recorded detections from a JSON sidecar instead of an OCR engine")
	f.String("redis-url", "", "Redis URL for the job queue")
	f.IntP("concurrency", "c", 0, "number of jobs processed in parallel")
	f.Int("max-retry", 0, "retries for a failed job")
	bindFlag(f, "redis-url", "queue.redis_url")
	bindFlag(f, "concurrency", "queue.concurrency")
	bindFlag(f, "max-retry", "queue.max_retry")
	return cmd
}
