package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

func newTestProfiler(c *fakeClock, out *bytes.Buffer) *Profiler {
	return NewProfiler(
		WithClock(c.now),
		WithMemoryStats(false),
		WithLogger(common.NewWriterLogger("", false, out, out)),
	)
}

func TestProfiler_PassTiming(t *testing.T) {
	clock := newClock()
	p := newTestProfiler(clock, &bytes.Buffer{})

	for _, d := range []time.Duration{2 * time.Millisecond, 4 * time.Millisecond} {
		endGBuffer := p.StartPass("gbuffer")
		clock.advance(d)
		endGBuffer()
		endShading := p.StartPass("shading")
		clock.advance(time.Millisecond)
		endShading()
	}

	passes := p.Passes()
	require.Len(t, passes, 2)
	assert.Equal(t, "gbuffer", passes[0].Name)
	assert.Equal(t, 2, passes[0].Count)
	assert.Equal(t, 3*time.Millisecond, passes[0].Average())
	assert.Equal(t, "shading", passes[1].Name)
	assert.Equal(t, time.Millisecond, passes[1].Average())
}

func TestProfiler_TickReportsEachInterval(t *testing.T) {
	clock := newClock()
	var out bytes.Buffer
	p := newTestProfiler(clock, &out)

	end := p.StartPass("shading")
	clock.advance(1500 * time.Microsecond)
	end()

	assert.False(t, p.Tick())
	assert.Empty(t, p.Summary())

	clock.advance(time.Second)
	require.True(t, p.Tick())
	assert.Contains(t, p.Summary(), "FPS: 2.00")
	assert.Contains(t, p.Summary(), "shading: 1.50 ms")
	assert.Contains(t, out.String(), "[Profiler]")
	assert.Empty(t, p.Passes(), "a report starts a new interval")
}

func TestPassStat_AverageOfEmptyPass(t *testing.T) {
	assert.Zero(t, PassStat{Name: "bloom"}.Average())
}
