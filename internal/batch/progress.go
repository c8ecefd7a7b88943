package batch

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProgressCallback receives batch progress. Implementations must be safe
// for concurrent use.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnError(path string, err error)
	OnComplete()
}

// ConsoleProgress draws a progress bar with rate and ETA.
type ConsoleProgress struct {
	mu             sync.Mutex
	w              io.Writer
	prefix         string
	width          int
	updateInterval time.Duration
	start          time.Time
	lastUpdate     time.Time
}

// NewConsoleProgress writes to w, typically stderr.
func NewConsoleProgress(w io.Writer, prefix string) *ConsoleProgress {
	return &ConsoleProgress{w: w, prefix: prefix, width: 40, updateInterval: 100 * time.Millisecond}
}

// WithUpdateInterval throttles redraws.
func (c *ConsoleProgress) WithUpdateInterval(d time.Duration) *ConsoleProgress {
	c.updateInterval = d
	return c
}

func (c *ConsoleProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.w, "%s0/%d (0.0%%)\n", c.prefix, total)
}

func (c *ConsoleProgress) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && current < total {
		return
	}
	c.lastUpdate = now
	if total == 0 {
		return
	}

	filled := c.width * current / total
	status := fmt.Sprintf("\r%s[%s%s] %d/%d (%.1f%%)", c.prefix,
		strings.Repeat("█", filled), strings.Repeat("░", c.width-filled),
		current, total, float64(current)/float64(total)*100)

	if elapsed := now.Sub(c.start); elapsed > 0 && current > 0 {
		status += fmt.Sprintf(" %.1f/s", float64(current)/elapsed.Seconds())
		if current < total {
			eta := time.Duration(float64(elapsed) * float64(total-current) / float64(current))
			status += fmt.Sprintf(" ETA: %v", eta.Round(time.Second))
		}
	}
	_, _ = fmt.Fprint(c.w, status)
}

func (c *ConsoleProgress) OnError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sfailed %s: %v\n", c.prefix, path, err)
}

func (c *ConsoleProgress) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sCompleted in %v\n", c.prefix, time.Since(c.start).Round(time.Millisecond))
}

// LogProgress reports progress as structured log lines every interval items.
type LogProgress struct {
	mu       sync.Mutex
	log      zerolog.Logger
	interval int
	lastLog  int
	start    time.Time
}

// NewLogProgress logs every 10 items.
func NewLogProgress(log zerolog.Logger) *LogProgress {
	return &LogProgress{log: log, interval: 10}
}

func (l *LogProgress) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start = time.Now()
	l.lastLog = 0
	l.log.Info().Int("total", total).Msg("batch started")
}

func (l *LogProgress) OnProgress(current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	l.log.Info().Int("current", current).Int("total", total).
		Dur("elapsed", time.Since(l.start)).Msg("batch progress")
}

func (l *LogProgress) OnError(path string, err error) {
	l.log.Warn().Err(err).Str("file", path).Msg("extraction failed")
}

func (l *LogProgress) OnComplete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Info().Dur("elapsed", time.Since(l.start)).Msg("batch finished")
}

type noProgress struct{}

func (noProgress) OnStart(int)           {}
func (noProgress) OnProgress(int, int)   {}
func (noProgress) OnError(string, error) {}
func (noProgress) OnComplete()           {}
