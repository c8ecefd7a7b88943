package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStageTimer(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	timer := newStageTimer(clock.now)

	stop := timer.Start("load")
	clock.advance(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, stop())

	stop = timer.Start("ocr")
	clock.advance(20 * time.Millisecond)
	stop()
	clock.advance(time.Second)
	assert.Equal(t, 20*time.Millisecond, stop(), "second call returns the first measurement")

	stages := timer.Stages()
	require.Len(t, stages, 2)
	assert.Equal(t, "load", stages[0].Name)
	assert.Equal(t, "ocr", stages[1].Name)
	assert.Equal(t, "load=5ms ocr=20ms", timer.String())
	assert.Equal(t, 1025*time.Millisecond, timer.Elapsed())
}

func TestStageTimerEmpty(t *testing.T) {
	timer := NewStageTimer()
	assert.Empty(t, timer.Stages())
	assert.Equal(t, "", timer.String())
	assert.GreaterOrEqual(t, timer.Elapsed(), time.Duration(0))
}
