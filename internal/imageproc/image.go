// Package imageproc decodes leaflet images and prepares them for OCR.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

var (
	// ErrDecode is returned when image bytes cannot be decoded.
	ErrDecode = errors.New("cannot decode image")

	// ErrUnsupportedFormat is returned for file extensions with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// SupportedExtensions lists the raster extensions Load accepts.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Error records the image operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("imageproc: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// IsSupported reports whether path has a supported raster extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Metadata describes a decoded image.
type Metadata struct {
	Path      string `json:"path,omitempty"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Decode reads and decodes an image from r.
func Decode(r io.Reader) (image.Image, Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Metadata{}, &Error{Op: "read", Err: err}
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (image.Image, Metadata, error) {
	if len(data) == 0 {
		return nil, Metadata{}, &Error{Op: "decode", Err: fmt.Errorf("%w: empty input", ErrDecode)}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, &Error{Op: "decode", Err: fmt.Errorf("%w: %v", ErrDecode, err)}
	}
	b := img.Bounds()
	return img, Metadata{Format: format, SizeBytes: int64(len(data)), Width: b.Dx(), Height: b.Dy()}, nil
}

// LoadFile opens and decodes the image at path.
func LoadFile(path string) (image.Image, Metadata, error) {
	if !IsSupported(path) {
		return nil, Metadata{}, &Error{Op: "load", Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))}
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, Metadata{}, &Error{Op: "load", Err: err}
	}
	img, meta, err := DecodeBytes(data)
	if err != nil {
		return nil, Metadata{}, err
	}
	meta.Path = path
	return img, meta, nil
}
