package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/MeKo-Tech/leafscan/internal/product"
)

// Stats summarizes a batch run.
type Stats struct {
	Files            int           `json:"files"`
	Processed        int           `json:"processed"`
	Failed           int           `json:"failed"`
	Products         int           `json:"products"`
	Workers          int           `json:"workers"`
	Duration         time.Duration `json:"duration_ns"`
	AveragePerFile   time.Duration `json:"average_per_file_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// Stats computes counts and throughput.
func (r *Result) Stats() Stats {
	s := Stats{Files: len(r.Files), Workers: r.Workers, Duration: r.Duration}
	for _, f := range r.Files {
		if f.Err != nil {
			s.Failed++
			continue
		}
		s.Processed++
		if f.Extraction != nil {
			s.Products += f.Extraction.TotalProducts
		}
	}
	if s.Processed > 0 {
		s.AveragePerFile = r.Duration / time.Duration(s.Processed)
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		s.ThroughputPerSec = float64(s.Processed) / secs
	}
	return s
}

// Format writes the results as json, csv or text (the default).
func (r *Result) Format(w io.Writer, format string) error {
	switch format {
	case "json":
		return r.formatJSON(w)
	case "csv":
		return r.formatCSV(w)
	case "", "text":
		return r.formatText(w)
	default:
		return fmt.Errorf("unknown output format %q (want json, csv or text)", format)
	}
}

type jsonFile struct {
	File       string              `json:"file"`
	JSONFile   string              `json:"json_file,omitempty"`
	Error      string              `json:"error,omitempty"`
	Extraction *product.Extraction `json:"extraction,omitempty"`
}

func (r *Result) formatJSON(w io.Writer) error {
	doc := struct {
		Files []jsonFile `json:"files"`
		Stats Stats      `json:"stats"`
	}{Files: make([]jsonFile, len(r.Files)), Stats: r.Stats()}

	for i, f := range r.Files {
		doc.Files[i] = jsonFile{File: f.Path, JSONFile: f.Location, Extraction: f.Extraction}
		if f.Err != nil {
			doc.Files[i].Error = f.Err.Error()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// formatCSV writes one row per product, prefixed by the source file.
// Files without products are omitted.
func (r *Result) formatCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"file"}, product.CSVHeader...)); err != nil {
		return err
	}
	for _, f := range r.Files {
		if f.Extraction == nil {
			continue
		}
		for _, p := range f.Extraction.Products {
			if err := cw.Write(append([]string{f.Path}, p.CSVRecord()...)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r *Result) formatText(w io.Writer) error {
	for i, f := range r.Files {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n", f.Path); err != nil {
			return err
		}
		if f.Err != nil {
			if _, err := fmt.Fprintf(w, "error: %v\n", f.Err); err != nil {
				return err
			}
			continue
		}
		if err := WriteProductsText(w, f.Extraction.Products); err != nil {
			return err
		}
		if f.Location != "" {
			if _, err := fmt.Fprintf(w, "saved to %s\n", f.Location); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteProductsText writes an aligned table of products.
func WriteProductsText(w io.Writer, products []product.Product) error {
	if len(products) == 0 {
		_, err := fmt.Fprintln(w, "no products found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tPRICE\tUNIT PRICE\tQUANTITY\tOFFER")
	for _, p := range products {
		unitPrice := ""
		if p.UnitPrice != nil {
			unitPrice = "$" + strconv.FormatFloat(*p.UnitPrice, 'f', 2, 64) + " " + p.Unit
		}
		_, _ = fmt.Fprintf(tw, "%s\t$%.2f\t%s\t%s\t%s\n", p.Name, p.Price, unitPrice, p.Description, p.SpecialOffer)
	}
	return tw.Flush()
}
