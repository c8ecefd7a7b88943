package queue

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hibiken/asynq"
)

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	JobID     string `json:"job_id"`
	State     string `json:"state"`
	Retried   int    `json:"retried"`
	LastError string `json:"last_error,omitempty"`
	Result    []byte `json:"-"`
}

// ErrJobNotFound is returned by Status for unknown jobs.
var ErrJobNotFound = errors.New("job not found")

// Client submits extraction jobs.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       Config
}

// NewClient connects to cfg.RedisURL.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Client{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt), cfg: cfg}, nil
}

// EnqueueFile spools data and enqueues its extraction. The returned job id
// identifies the task.
func (c *Client) EnqueueFile(ctx context.Context, filename string, data []byte) (string, error) {
	jobID := NewJobID()
	path, err := spool(c.cfg.SpoolDir, jobID, filename, data)
	if err != nil {
		return "", err
	}
	task, err := NewExtractTask(ExtractPayload{JobID: jobID, Filename: filename, Path: path}, c.cfg)
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("enqueue %s: %w", filename, err)
	}
	return jobID, nil
}

// Status reports the state of a job.
func (c *Client) Status(jobID string) (JobStatus, error) {
	info, err := c.inspector.GetTaskInfo(c.cfg.Queue, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return JobStatus{}, err
	}
	return JobStatus{
		JobID:     jobID,
		State:     info.State.String(),
		Retried:   info.Retried,
		LastError: info.LastErr,
		Result:    info.Result,
	}, nil
}

// Close releases the Redis connections.
func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
