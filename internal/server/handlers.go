package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/product"
	"github.com/MeKo-Tech/leafscan/internal/queue"
	"github.com/MeKo-Tech/leafscan/internal/store"
	"github.com/MeKo-Tech/leafscan/internal/validate"
	"github.com/MeKo-Tech/leafscan/internal/version"
)

// multipartOverhead is the slack allowed above the upload limit for form
// boundaries, headers and a detections sidecar.
const multipartOverhead = 1 << 20

// healthHandler handles health check requests.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Version:     version.Version,
		Environment: s.cfg.Environment,
	})
}

// upload is a validated multipart extraction request.
type upload struct {
	filename   string
	data       []byte
	detections []ocr.Detection
}

// readUpload parses the multipart form, validates the file part (named
// "file" or "image") and decodes an optional "detections" sidecar.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Maximum size: %d MB", s.cfg.MaxUploadBytes>>20), CodeFileTooLarge)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form", CodeInvalidForm)
		return nil, false
	}

	file, header, err := formFile(r, "file", "image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided. Use form field 'file'", CodeMissingFile)
		return nil, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file", CodeInvalidForm)
		return nil, false
	}
	if err := validate.ValidateUpload(header.Filename, int64(len(data)), s.cfg.AllowedExtensions, s.cfg.MaxUploadBytes); err != nil {
		status, code := classify(err)
		writeError(w, status, err.Error(), code)
		return nil, false
	}
	uploadSizeBytes.Observe(float64(len(data)))

	up := &upload{filename: header.Filename, data: data}
	if side, _, err := r.FormFile("detections"); err == nil {
		defer func() { _ = side.Close() }()
		dets, err := ocr.LoadDetections(side)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), CodeInvalidDetections)
			return nil, false
		}
		up.detections = dets
	}
	return up, true
}

func formFile(r *http.Request, names ...string) (multipart.File, *multipart.FileHeader, error) {
	var lastErr error
	for _, name := range names {
		f, h, err := r.FormFile(name)
		if err == nil {
			return f, h, nil
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

// extractHandler handles POST /extract.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.enqueue(w, r, up)
		return
	}

	log.Info().Str("filename", up.filename).Int("size", len(up.data)).Msg("Processing upload")
	ext, loc, err := s.runExtraction(r.Context(), "http", extract.Input{
		Name:       up.filename,
		Data:       up.data,
		Detections: up.detections,
	})
	if err != nil {
		status, code := extractionStatus(err)
		log.Error().Err(err).Str("filename", up.filename).Msg("Extraction failed")
		writeError(w, status, "Extraction failed: "+err.Error(), code)
		return
	}

	writeJSON(w, http.StatusOK, ExtractResponse{
		Success:               true,
		Message:               fmt.Sprintf("Successfully extracted %d products", ext.TotalProducts),
		Products:              ext.Products,
		TotalProducts:         ext.TotalProducts,
		ProcessingTimeSeconds: ext.ProcessingTimeSeconds,
		JSONFile:              loc,
		ExtractionID:          ext.ID,
		Timestamp:             ext.Timestamp,
	})
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, up *upload) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Asynchronous processing is not configured", CodeQueueUnavailable)
		return
	}
	jobID, err := s.queue.EnqueueFile(r.Context(), up.filename, up.data)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("filename", up.filename).Msg("Failed to enqueue job")
		writeError(w, http.StatusServiceUnavailable, "Failed to enqueue job", CodeQueueUnavailable)
		return
	}
	jobsEnqueued.Inc()
	writeJSON(w, http.StatusAccepted, JobAcceptedResponse{
		Success: true,
		Message: "Extraction job accepted",
		JobID:   jobID,
	})
}

// errBusy is returned when no extraction slot frees up before the deadline.
var errBusy = errors.New("server busy")

// runExtraction acquires a concurrency slot, extracts under the configured
// timeout and stores the result. It returns the storage location.
func (s *Server) runExtraction(ctx context.Context, transport string, in extract.Input) (*product.Extraction, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, "", errBusy
	}

	start := time.Now()
	ext, err := s.extractor.Extract(ctx, in)
	if err != nil {
		recordExtraction(transport, err, time.Since(start), 0)
		return nil, "", err
	}
	recordExtraction(transport, nil, time.Since(start), ext.TotalProducts)

	if s.store == nil {
		return ext, "", nil
	}
	loc, err := s.store.Save(ctx, ext)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errStorage, err)
	}
	return ext, loc, nil
}

var errStorage = errors.New("failed to store extraction")

func extractionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable, CodeBusy
	case errors.Is(err, errStorage):
		return http.StatusInternalServerError, CodeStorageFailed
	}
	return classify(err)
}

// listExtractionsHandler handles GET /extractions?limit=N.
func (s *Server) listExtractionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > store.MaxListLimit {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be an integer between 1 and %d", store.MaxListLimit), CodeInvalidLimit)
			return
		}
		limit = n
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, ListExtractionsResponse{Success: true, Extractions: []product.Summary{}})
		return
	}

	summaries, err := s.store.List(r.Context(), limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to list extractions")
		writeError(w, http.StatusInternalServerError, "Failed to list extractions: "+err.Error(), CodeStorageFailed)
		return
	}
	if summaries == nil {
		summaries = []product.Summary{}
	}
	writeJSON(w, http.StatusOK, ListExtractionsResponse{Success: true, Extractions: summaries, Total: len(summaries)})
}

// getExtractionHandler handles GET /extractions/{id}.
func (s *Server) getExtractionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.store == nil {
		writeError(w, http.StatusNotFound, "Extraction "+id+" not found", CodeNotFound)
		return
	}
	ext, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Extraction "+id+" not found", CodeNotFound)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("extraction_id", id).Msg("Failed to load extraction")
		writeError(w, http.StatusInternalServerError, "Failed to load extraction: "+err.Error(), CodeStorageFailed)
		return
	}
	writeJSON(w, http.StatusOK, GetExtractionResponse{Success: true, Extraction: ext})
}

// jobStatusHandler handles GET /jobs/{id}. Completed jobs include the stored
// extraction when it can be loaded.
func (s *Server) jobStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "Asynchronous processing is not configured", CodeQueueUnavailable)
		return
	}
	st, err := s.queue.Status(id)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "Job "+id+" not found", CodeNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to query job: "+err.Error(), CodeQueueUnavailable)
		return
	}

	resp := JobStatusResponse{Success: true, Job: st}
	if len(st.Result) > 0 {
		var res queue.TaskResult
		if err := json.Unmarshal(st.Result, &res); err == nil {
			resp.Result = &res
			if s.store != nil {
				if ext, err := s.store.Get(r.Context(), res.ExtractionID); err == nil {
					resp.Extraction = ext
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
