// Package queue runs extractions asynchronously as asynq tasks on Redis.
// Uploads are written to a spool directory shared by the API and the
// workers; the task payload only carries the spooled path.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeExtract is the task type of a leaflet extraction.
const TypeExtract = "leafscan:extract"

// ErrInvalidPayload marks tasks that can never succeed.
var ErrInvalidPayload = errors.New("invalid extract payload")

// Config holds queue settings.
type Config struct {
	RedisURL    string
	Queue       string
	Concurrency int
	MaxRetry    int
	Timeout     time.Duration
	SpoolDir    string
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = "extractions"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.SpoolDir == "" {
		c.SpoolDir = os.TempDir()
	}
	return c
}

// ExtractPayload is the JSON body of a TypeExtract task.
type ExtractPayload struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// NewExtractTask builds a task whose id is the job id, so duplicate
// submissions of one job are rejected by asynq.
func NewExtractTask(p ExtractPayload, cfg Config) (*asynq.Task, error) {
	if p.JobID == "" || p.Path == "" {
		return nil, ErrInvalidPayload
	}
	cfg = cfg.withDefaults()
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeExtract, data,
		asynq.TaskID(p.JobID),
		asynq.Queue(cfg.Queue),
		asynq.MaxRetry(cfg.MaxRetry),
		asynq.Timeout(cfg.Timeout),
		asynq.Retention(24*time.Hour),
	), nil
}

// ParseExtractPayload decodes and checks a task payload.
func ParseExtractPayload(data []byte) (ExtractPayload, error) {
	var p ExtractPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.JobID == "" || p.Path == "" {
		return p, fmt.Errorf("%w: job_id and path are required", ErrInvalidPayload)
	}
	return p, nil
}

// NewJobID returns "job-" followed by a random UUID.
func NewJobID() string {
	return "job-" + uuid.NewString()
}

// spool writes data to dir as <jobID><ext of filename>.
func spool(dir, jobID, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("spool: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(dir, jobID+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("spool: %w", err)
	}
	return path, nil
}

// retryDelay backs off exponentially from 5s, capped at one minute.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n > 4 {
		return time.Minute
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second //nolint:gosec // n is bounded above
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
