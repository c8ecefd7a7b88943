package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_CORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		origins        []string
		origin         string
		method         string
		expectedCORS   string
		expectedStatus int
		shouldCallNext bool
	}{
		{
			name:           "wildcard origin",
			origins:        []string{"*"},
			origin:         "https://anything.example",
			method:         http.MethodGet,
			expectedCORS:   "*",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "listed origin echoed",
			origins:        []string{"http://localhost:3000", "https://example.com"},
			origin:         "https://example.com",
			method:         http.MethodPost,
			expectedCORS:   "https://example.com",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "unlisted origin gets no header",
			origins:        []string{"http://localhost:3000"},
			origin:         "https://evil.example",
			method:         http.MethodGet,
			expectedCORS:   "",
			expectedStatus: http.StatusOK,
			shouldCallNext: true,
		},
		{
			name:           "preflight",
			origins:        []string{"http://localhost:3000"},
			origin:         "http://localhost:3000",
			method:         http.MethodOptions,
			expectedCORS:   "http://localhost:3000",
			expectedStatus: http.StatusNoContent,
			shouldCallNext: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{cfg: Config{CORSOrigins: tt.origins}}
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/extract", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			s.corsMiddleware(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCORS, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.shouldCallNext, called)
			if tt.expectedCORS != "" {
				assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestServer_LoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	s := &Server{log: zerolog.New(&buf)}

	var ctxLogged bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		ctxLogged = true
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	s.loggingMiddleware(next).ServeHTTP(w, req)

	require.True(t, ctxLogged)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"request_id":"req-42"`)
	assert.Contains(t, lines[0], "inside handler")
	assert.Contains(t, lines[1], `"status":418`)
	assert.Contains(t, lines[1], `"level":"warn"`)
	assert.Contains(t, lines[1], `"path":"/health"`)
}

func TestServer_LoggingMiddleware_GeneratesRequestID(t *testing.T) {
	s := &Server{log: zerolog.Nop()}
	w := httptest.NewRecorder()
	s.loggingMiddleware(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestServer_RecoverMiddleware(t *testing.T) {
	s := &Server{log: zerolog.Nop()}
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := httptest.NewRecorder()
	s.recoverMiddleware(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), CodeInternal)
}

func TestServer_RateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	cfg.RequestsPerMinute = 2
	s := newTestServer(t, cfg, &fakeExtractor{}, nil, nil)
	h := s.Handler()

	send := func(ip string) *httptest.ResponseRecorder {
		req := multipartRequest(t, "/extract", part{field: "other", filename: "a.png", data: []byte("x")})
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusBadRequest, send("10.0.0.1").Code)

	w := send("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "minute", w.Header().Get("X-RateLimit-Type"))
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decode[ErrorResponse](t, w).ErrorCode)

	// Other clients and unlimited routes are unaffected.
	assert.Equal(t, http.StatusBadRequest, send("10.0.0.2").Code)
	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	health.Header.Set("X-Forwarded-For", "10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, health)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 203.0.113.8 "}, "10.0.0.1:1234", "203.0.113.8"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:1234", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"remote addr without port", nil, "192.0.2.11", "192.0.2.11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
