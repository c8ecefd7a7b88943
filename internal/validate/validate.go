// Package validate holds the plausibility checks applied to extracted prices,
// product names and uploaded files.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPrice is the highest shelf price accepted; larger values are treated
	// as OCR digit insertions.
	MaxPrice = 10000.0

	// DefaultMinNameLength is the minimum trimmed length of a product name.
	DefaultMinNameLength = 2

	// DefaultMaxUploadBytes mirrors the 10 MB upload ceiling.
	DefaultMaxUploadBytes = 10 << 20
)

// DefaultAllowedExtensions are the accepted upload types.
var DefaultAllowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf"}

var (
	// ErrUnsupportedFileType is returned for uploads with a disallowed extension.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrFileTooLarge is returned for uploads above the size ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("empty file")
)

// IsValidPrice reports whether 0 < p <= MaxPrice.
func IsValidPrice(p float64) bool {
	return p > 0 && p <= MaxPrice
}

// ValidUnitPriceRatio reports whether unitPrice is positive and at most twice
// price. A larger ratio usually means the unit price was misread.
func ValidUnitPriceRatio(price, unitPrice float64) bool {
	return unitPrice > 0 && unitPrice <= price*2
}

// IsValidProductName reports whether text, once trimmed, has at least
// minLength runes and whether at least half of its runes are letters, digits
// or whitespace.
func IsValidProductName(text string, minLength int) bool {
	if text == "" || utf8.RuneCountInString(strings.TrimSpace(text)) < minLength {
		return false
	}
	total, good := 0, 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			good++
		}
	}
	return good*2 >= total
}

// CleanText collapses runs of whitespace into single spaces and trims.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ValidateUpload checks the extension and size of an uploaded file. A nil
// allowedExts uses DefaultAllowedExtensions; maxBytes <= 0 uses
// DefaultMaxUploadBytes.
func ValidateUpload(filename string, size int64, allowedExts []string, maxBytes int64) error {
	if allowedExts == nil {
		allowedExts = DefaultAllowedExtensions
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !containsFold(allowedExts, ext) {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFileType, ext, strings.Join(allowedExts, ", "))
	}
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %.2fMB (max: %.1fMB)", ErrFileTooLarge,
			float64(size)/(1<<20), float64(maxBytes)/(1<<20))
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
