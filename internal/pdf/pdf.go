// Package pdf pulls the leaflet raster out of the first page of a PDF.
package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder for extracted images
	_ "image/png"  // register PNG decoder for extracted images
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	_ "golang.org/x/image/tiff" // pdfcpu writes CCITT and some Flate images as TIFF
)

// ErrNoPageImage is returned when page 1 carries no decodable image.
var ErrNoPageImage = errors.New("pdf: first page has no embedded image")

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// FirstPageImage extracts the images embedded on page 1 and returns the
// largest one. Leaflet PDFs are scans, so the page raster dominates any
// logos or icons placed on the same page.
func FirstPageImage(path string) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "leafscan-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("pdf: create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(path, tempDir, []string{"1"}, nil); err != nil {
		return nil, fmt.Errorf("pdf: extract images from %s: %w", filepath.Base(path), err)
	}
	return largestImage(tempDir)
}

// FirstPageImageBytes is FirstPageImage for an in-memory document.
func FirstPageImageBytes(data []byte) (image.Image, error) {
	f, err := os.CreateTemp("", "leafscan-upload-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("pdf: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pdf: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("pdf: close temp file: %w", err)
	}
	return FirstPageImage(f.Name())
}

// largestImage decodes every image in dir and returns the one with the
// greatest pixel area. Undecodable files are skipped.
func largestImage(dir string) (image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pdf: read extracted images: %w", err)
	}

	var best image.Image
	bestArea := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		img, err := loadImageFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	if best == nil {
		return nil, ErrNoPageImage
	}
	return best, nil
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: files come from our own temp directory
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}
