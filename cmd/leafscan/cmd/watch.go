package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/leafscan/internal/batch"
	"github.com/MeKo-Tech/leafscan/internal/logger"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		detectionsFile string
		noSave         bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and extract new leaflets",
		Long: `Watch a directory for new leaflet files and extract each one once it has
stopped changing. Runs until interrupted.

Examples:
  leafscan watch ./inbox
  leafscan watch ./inbox --settle-ms 1000 --workers 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ex, err := newExtractor(ctx, a.cfg, detectionsFile, nil)
			if err != nil {
				return err
			}
			defer func() { _ = ex.Close() }()

			var saver batch.Saver
			if !noSave {
				st, err := openStore(ctx, a.cfg)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
				saver = st
			}

			log := logger.WithComponent("watch")
			proc := batch.NewProcessor(ex, saver, batchConfig(a.cfg), log)
			settle := time.Duration(a.cfg.Batch.WatchSettleMs) * time.Millisecond

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			return proc.Watch(ctx, args[0], settle, func(res batch.FileResult) {
				mu.Lock()
				defer mu.Unlock()
				if res.Err != nil {
					_, _ = fmt.Fprintf(out, "%s: error: %v\n", res.Path, res.Err)
					return
				}
				line := fmt.Sprintf("%s: %d products (%s)", res.Path, res.Extraction.TotalProducts, res.Extraction.ID)
				if res.Location != "" {
					line += " -> " + res.Location
				}
				_, _ = fmt.Fprintln(out, line)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&detectionsFile, "detections", "", "use recorded detections from a JSON sidecar instead of an OCR engine")
	f.BoolVar(&noSave, "no-save", false, "do not export extractions")
	f.IntP("workers", "w", 0, "number of parallel workers (0 = number of CPUs)")
	f.Int("settle-ms", 0, "milliseconds a file must stay unchanged before it is processed")
	f.String("output-dir", "", "directory for saved extractions")
	bindFlag(f, "workers", "batch.workers")
	bindFlag(f, "settle-ms", "batch.watch_settle_ms")
	bindFlag(f, "output-dir", "storage.output_dir")
	return cmd
}
