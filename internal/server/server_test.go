package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/parser"
	"github.com/MeKo-Tech/leafscan/internal/product"
	"github.com/MeKo-Tech/leafscan/internal/queue"
	"github.com/MeKo-Tech/leafscan/internal/store"
	"github.com/MeKo-Tech/leafscan/internal/testutil"
)

// fakeExtractor returns a canned result or error.
type fakeExtractor struct {
	ext   *product.Extraction
	err   error
	delay time.Duration
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, in extract.Input) (*product.Extraction, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.ext, nil
}

// fakeQueue records enqueued files and serves fixed statuses.
type fakeQueue struct {
	enqueued []string
	statuses map[string]queue.JobStatus
	err      error
}

func (q *fakeQueue) EnqueueFile(_ context.Context, filename string, _ []byte) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.enqueued = append(q.enqueued, filename)
	return "job-test", nil
}

func (q *fakeQueue) Status(jobID string) (queue.JobStatus, error) {
	st, ok := q.statuses[jobID]
	if !ok {
		return queue.JobStatus{}, queue.ErrJobNotFound
	}
	return st, nil
}

func testConfig() Config {
	return Config{
		Environment:    "test",
		CORSOrigins:    []string{"http://localhost:3000"},
		MaxUploadBytes: 1 << 20,
		Timeout:        5 * time.Second,
		MaxConcurrent:  2,
	}
}

// newLeafletExtractor extracts the three default leaflet tiles from any
// upload.
func newLeafletExtractor() *extract.Extractor {
	engine := &ocr.Static{Detections: testutil.LeafletDetections(testutil.DefaultLeafletItems)}
	return extract.New(engine, parser.New(parser.DefaultConfig(), zerolog.Nop()), extract.Options{
		Filter: ocr.FilterOptions{MinConfidence: 0.5},
	}, zerolog.Nop())
}

func newFileStore(t *testing.T) *store.FileStore {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return st
}

func newTestServer(t *testing.T, cfg Config, ex Extractor, st store.Store, q JobQueue) *Server {
	t.Helper()
	return New(cfg, ex, st, q, zerolog.Nop())
}

type part struct {
	field    string
	filename string
	data     []byte
}

func multipartRequest(t *testing.T, target string, parts ...part) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}
