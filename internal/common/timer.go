// Package common provides shared timing helpers.
package common

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stage is one named, measured step of an extraction.
type Stage struct {
	Name     string
	Duration time.Duration
}

// StageTimer records the duration of consecutive named stages. It is safe for
// concurrent use, although stages are normally timed from one goroutine.
type StageTimer struct {
	mu     sync.Mutex
	start  time.Time
	stages []Stage
	now    func() time.Time
}

// NewStageTimer starts a timer at the current time.
func NewStageTimer() *StageTimer {
	return newStageTimer(time.Now)
}

func newStageTimer(now func() time.Time) *StageTimer {
	return &StageTimer{start: now(), now: now}
}

// Start begins timing stage name. Calling the returned function records it;
// further calls are ignored.
func (t *StageTimer) Start(name string) func() time.Duration {
	begin := t.now()
	var once sync.Once
	var d time.Duration
	return func() time.Duration {
		once.Do(func() {
			d = t.now().Sub(begin)
			t.mu.Lock()
			t.stages = append(t.stages, Stage{Name: name, Duration: d})
			t.mu.Unlock()
		})
		return d
	}
}

// Stages returns a copy of the recorded stages in completion order.
func (t *StageTimer) Stages() []Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Stage(nil), t.stages...)
}

// Elapsed is the time since the timer was created.
func (t *StageTimer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// String renders the stages as "load=1ms ocr=20ms".
func (t *StageTimer) String() string {
	stages := t.Stages()
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, fmt.Sprintf("%s=%v", s.Name, s.Duration))
	}
	return strings.Join(parts, " ")
}
