package support

import (
	"net/http/httptest"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/extract"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/parser"
	"github.com/MeKo-Tech/leafscan/internal/server"
	"github.com/MeKo-Tech/leafscan/internal/store"
)

// HTTPTestServerWrapper runs the real server handler on an httptest
// listener. Every upload yields the default leaflet products.
type HTTPTestServerWrapper struct {
	Server    *httptest.Server
	Leafscan  *server.Server
	OutputDir string
}

// ServerOptions tweaks the test server configuration.
type ServerOptions struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	RateLimit      int
}

func (testCtx *TestContext) startTestHTTPServer(opts ServerOptions) error {
	if err := testCtx.StopServer(); err != nil {
		return err
	}

	outDir := filepath.Join(testCtx.TempDir, "server-output")
	st, err := store.NewFileStore(outDir, zerolog.Nop())
	if err != nil {
		return err
	}

	engine := &ocr.Static{Detections: defaultDetections()}
	ex := extract.New(engine, parser.New(parser.DefaultConfig(), zerolog.Nop()), extract.Options{
		Filter: ocr.FilterOptions{MinConfidence: 0.5},
	}, zerolog.Nop())

	cfg := server.Config{
		Environment:    "test",
		CORSOrigins:    opts.CORSOrigins,
		MaxUploadBytes: opts.MaxUploadBytes,
		Timeout:        10 * time.Second,
		MaxConcurrent:  2,
	}
	if opts.RateLimit > 0 {
		cfg.RateLimitEnabled = true
		cfg.RequestsPerMinute = opts.RateLimit
		cfg.RequestsPerHour = opts.RateLimit * 60
	}

	srv := server.New(cfg, ex, st, nil, zerolog.Nop())
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:    httptest.NewServer(srv.Handler()),
		Leafscan:  srv,
		OutputDir: outDir,
	}
	return nil
}

// Close shuts the listener down.
func (w *HTTPTestServerWrapper) Close() {
	w.Server.Close()
}

// URL returns the base URL of the server.
func (w *HTTPTestServerWrapper) URL() string {
	return w.Server.URL
}
