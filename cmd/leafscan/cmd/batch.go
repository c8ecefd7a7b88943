package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/leafscan/internal/batch"
	"github.com/MeKo-Tech/leafscan/internal/logger"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		format         string
		outputFile     string
		detectionsFile string
		noSave         bool
		progress       bool
	)

	cmd := &cobra.Command{
		Use:   "batch <dir|file>...",
		Short: "Extract products from many leaflets in parallel",
		Long: `Discover leaflet files in the given directories (and explicit files),
extract them with a pool of workers and save every extraction through the
configured store. A summary is written at the end.

Examples:
  leafscan batch ./leaflets
  leafscan batch ./archive --recursive --include "*.pdf" --workers 8
  leafscan batch ./leaflets --format json --output summary.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ctx := cmd.Context()
			bcfg := batchConfig(a.cfg)

			files, err := batch.Discover(args, bcfg.Recursive, bcfg.Include, bcfg.Exclude)
			if err != nil {
				return fmt.Errorf("failed to discover leaflet files: %w", err)
			}
			if len(files) == 0 {
				return batch.ErrNoFiles
			}

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

			proc := batch.NewProcessor(ex, saver, bcfg, logger.WithComponent("batch"))
			if progress {
				proc.WithProgress(batch.NewConsoleProgress(cmd.ErrOrStderr(), "Extracting").
					WithUpdateInterval(200 * time.Millisecond))
			} else {
				proc.WithProgress(batch.NewLogProgress(logger.WithComponent("batch")))
			}

			result, runErr := proc.RunFiles(ctx, files)
			if result == nil {
				return runErr
			}

			stats := result.Stats()
			log.Info().Int("files", stats.Files).Int("failed", stats.Failed).Int("products", stats.Products).
				Dur("duration", stats.Duration).Msg("Batch finished")

			w, closeOut, err := openOutput(cmd.OutOrStdout(), outputFile)
			if err != nil {
				return err
			}
			if err := result.Format(w, format); err != nil {
				_ = closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return err
			}

			if runErr != nil {
				return runErr
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", stats.Failed, stats.Files)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", outputFormatText, "summary format (json, csv, text)")
	f.StringVarP(&outputFile, "output", "o", "", "write the summary to a file instead of stdout")
	f.StringVar(&detectionsFile, "detections", "", "use recorded detections from a JSON sidecar instead of an OCR engine")
	f.BoolVar(&noSave, "no-save", false, "do not export extractions")
	f.BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("include", nil, "only process files matching these glob patterns")
	f.StringSlice("exclude", nil, "skip files matching these glob patterns")
	f.IntP("workers", "w", 0, "number of parallel workers (0 = number of CPUs)")
	f.Bool("continue-on-error", true, "keep going after a file fails")
	f.String("output-dir", "", "directory for saved extractions")
	bindFlag(f, "recursive", "batch.recursive")
	bindFlag(f, "include", "batch.include")
	bindFlag(f, "exclude", "batch.exclude")
	bindFlag(f, "workers", "batch.workers")
	bindFlag(f, "continue-on-error", "batch.continue_on_error")
	bindFlag(f, "output-dir", "storage.output_dir")
	return cmd
}
