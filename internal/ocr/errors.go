package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable is returned when an engine was not compiled in.
	ErrEngineUnavailable = errors.New("ocr engine not available in this build")

	// ErrUnknownEngine is returned for an engine name New does not know.
	ErrUnknownEngine = errors.New("unknown ocr engine")

	// ErrInvalidDetections is returned for malformed detection documents.
	ErrInvalidDetections = errors.New("invalid detections")

	// ErrRecognitionFailed is returned when an engine could not read an image.
	ErrRecognitionFailed = errors.New("text recognition failed")
)

// Error records the operation that failed together with the cause.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WrapError wraps err as an *Error unless it already is one.
func WrapError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var ocrErr *Error
	if errors.As(err, &ocrErr) {
		return err
	}
	return &Error{Op: op, Err: err, Details: details}
}
