package cmd

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		format         string
		outputFile     string
		detectionsFile string
		save           bool
	)

	cmd := &cobra.Command{
		Use:   "extract <image|pdf>...",
		Short: "Extract products from leaflet images or PDFs",
		Long: `Run the full pipeline on one or more leaflets: load the image (or the
largest image on the first page of a PDF), preprocess it, run OCR and
parse the detected text into products.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP, PDF

Examples:
  leafscan extract leaflet.jpg
  leafscan extract week12.pdf --format json --save
  leafscan extract leaflet.png --detections leaflet.json --format csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			if detectionsFile != "" && len(args) > 1 {
				return errors.New("--detections applies to a single input")
			}
			ctx := cmd.Context()

			ex, err := newExtractor(ctx, a.cfg, detectionsFile, nil)
			if err != nil {
				return err
			}
			defer func() { _ = ex.Close() }()

			exts := make([]*product.Extraction, 0, len(args))
			for _, path := range args {
				ext, err := ex.ExtractFile(ctx, path)
				if err != nil {
					return err
				}
				log.Info().Str("file", path).Int("products", ext.TotalProducts).
					Float64("seconds", ext.ProcessingTimeSeconds).Msg("Extraction finished")
				exts = append(exts, ext)
			}

			if save {
				st, err := openStore(ctx, a.cfg)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
				for _, ext := range exts {
					loc, err := st.Save(ctx, ext)
					if err != nil {
						return fmt.Errorf("failed to save %s: %w", ext.SourceImage, err)
					}
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s to %s\n", ext.ID, loc)
				}
			}

			w, closeOut, err := openOutput(cmd.OutOrStdout(), outputFile)
			if err != nil {
				return err
			}
			if err := writeExtractions(w, exts, format); err != nil {
				_ = closeOut()
				return err
			}
			return closeOut()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", outputFormatText, "output format (json, csv, text)")
	f.StringVarP(&outputFile, "output", "o", "", "write output to a file instead of stdout")
	f.StringVar(&detectionsFile, "detections", "", "use recorded detections from a JSON sidecar instead of an OCR engine")
	f.BoolVar(&save, "save", false, "export each extraction through the configured store")
	f.String("engine", "", "OCR engine (tesseract, vision, json)")
	f.Float64("min-confidence", 0, "discard detections below this confidence")
	f.String("output-dir", "", "directory for saved extractions")
	bindFlag(f, "engine", "ocr.engine")
	bindFlag(f, "min-confidence", "ocr.min_confidence")
	bindFlag(f, "output-dir", "storage.output_dir")
	return cmd
}
