// Package support holds the godog step definitions for the leafscan CLI
// and HTTP feature tests.
package support

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStderr   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	// Test environment
	TempDir string
	EnvVars map[string]string

	// Server state
	HTTPTestServer *HTTPTestServerWrapper

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    http.Header
}

// NewTestContext creates a scenario context with its own temporary
// directory. Commands run inside that directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "leafscan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		TempDir: tempDir,
		EnvVars: map[string]string{},
	}, nil
}

// Cleanup stops the server, restores environment variables and removes the
// temporary directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if err := testCtx.StopServer(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}
	for name := range testCtx.EnvVars {
		_ = os.Unsetenv(name)
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// StopServer closes the test HTTP server if one is running.
func (testCtx *TestContext) StopServer() error {
	if testCtx.HTTPTestServer == nil {
		return nil
	}
	testCtx.HTTPTestServer.Close()
	testCtx.HTTPTestServer = nil
	return nil
}

// SetEnvVar sets a process environment variable for the rest of the
// scenario.
func (testCtx *TestContext) SetEnvVar(name, value string) error {
	testCtx.EnvVars[name] = value
	return os.Setenv(name, value)
}

// Path resolves name relative to the scenario directory.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// substituteVariables expands ${TMP} to the scenario directory.
func (testCtx *TestContext) substituteVariables(s string) string {
	return strings.ReplaceAll(s, "${TMP}", testCtx.TempDir)
}
