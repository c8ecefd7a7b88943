//go:build !tesseract

package ocr

// NewTesseract reports ErrEngineUnavailable; build with -tags=tesseract to
// link libtesseract.
func NewTesseract(Config) (Engine, error) {
	return nil, WrapError("new engine", ErrEngineUnavailable, "tesseract (build with -tags=tesseract)")
}
