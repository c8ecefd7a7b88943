package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/imageproc"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/pdf"
	"github.com/MeKo-Tech/leafscan/internal/queue"
	"github.com/MeKo-Tech/leafscan/internal/store"
	"github.com/MeKo-Tech/leafscan/internal/validate"
)

// Error codes returned in ErrorResponse.ErrorCode.
const (
	CodeInvalidForm        = "INVALID_FORM"
	CodeMissingFile        = "MISSING_FILE"
	CodeInvalidFileFormat  = "INVALID_FILE_FORMAT"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeEmptyFile          = "EMPTY_FILE"
	CodeInvalidImage       = "INVALID_IMAGE"
	CodeInvalidDetections  = "INVALID_DETECTIONS"
	CodeInvalidLimit       = "INVALID_LIMIT"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeBusy               = "SERVER_BUSY"
	CodeTimeout            = "TIMEOUT"
	CodeQueueUnavailable   = "QUEUE_UNAVAILABLE"
	CodeExtractionFailed   = "EXTRACTION_FAILED"
	CodeStorageFailed      = "STORAGE_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeEngineUnavailable  = "ENGINE_UNAVAILABLE"
	CodeInvalidWebSocketIn = "INVALID_MESSAGE"
)

// classify maps a pipeline or storage error to an HTTP status and error
// code. Input problems are client errors; anything else is a server error.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, validate.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, CodeFileTooLarge
	case errors.Is(err, validate.ErrUnsupportedFileType), errors.Is(err, imageproc.ErrUnsupportedFormat):
		return http.StatusBadRequest, CodeInvalidFileFormat
	case errors.Is(err, validate.ErrEmptyFile), errors.Is(err, extract.ErrEmptyInput):
		return http.StatusBadRequest, CodeEmptyFile
	case errors.Is(err, imageproc.ErrDecode), errors.Is(err, pdf.ErrNoPageImage):
		return http.StatusBadRequest, CodeInvalidImage
	case errors.Is(err, ocr.ErrInvalidDetections):
		return http.StatusBadRequest, CodeInvalidDetections
	case errors.Is(err, store.ErrNotFound), errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ocr.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, CodeEngineUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeExtractionFailed
	}
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError writes a standardized error response.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message, ErrorCode: code})
}
