package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/product"
)

func newParseCmd(a *app) *cobra.Command {
	var (
		format     string
		outputFile string
		source     string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "parse <detections.json>",
		Short: "Parse recorded OCR detections into products",
		Long: `Run only the product parser on detections recorded earlier, without
loading an image or an OCR engine. The file is either a JSON array of
detections or an object with a "detections" array; each detection has a
four-point "bbox", a "text" and a "confidence".

Examples:
  leafscan parse detections.json
  leafscan parse detections.json --format csv --source week12.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ctx := cmd.Context()

			dets, err := ocr.LoadDetectionsFile(args[0])
			if err != nil {
				return err
			}
			if dets == nil {
				dets = []ocr.Detection{}
			}
			if source == "" {
				source = filepath.Base(args[0])
			}

			ex := newExtractorWithEngine(a.cfg, nil, nil)
			ext, err := ex.Extract(ctx, extract.Input{Name: source, Detections: dets})
			if err != nil {
				return err
			}

			if save {
				st, err := openStore(ctx, a.cfg)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()
				loc, err := st.Save(ctx, ext)
				if err != nil {
					return fmt.Errorf("failed to save extraction: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s to %s\n", ext.ID, loc)
			}

			w, closeOut, err := openOutput(cmd.OutOrStdout(), outputFile)
			if err != nil {
				return err
			}
			if err := writeExtractions(w, []*product.Extraction{ext}, format); err != nil {
				_ = closeOut()
				return err
			}
			return closeOut()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", outputFormatJSON, "output format (json, csv, text)")
	f.StringVarP(&outputFile, "output", "o", "", "write output to a file instead of stdout")
	f.StringVar(&source, "source", "", "source image name recorded in the extraction (default: the detections file name)")
	f.BoolVar(&save, "save", false, "export the extraction through the configured store")
	f.Float64("min-confidence", 0, "discard detections below this confidence")
	f.String("currency", "", "ISO 4217 currency code for parsed prices")
	bindFlag(f, "min-confidence", "ocr.min_confidence")
	bindFlag(f, "currency", "parser.currency")
	return cmd
}
