package profiler

import (
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// ProfilerOption is a functional option applied to the profiler during construction.
type ProfilerOption func(*Profiler)

// WithLogger sets the logger the reports are written to.
func WithLogger(logger common.Logger) ProfilerOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInterval sets how often Tick reports. Values <= 0 keep the default.
//
// Parameters:
//   - d: the reporting interval
//
// Returns:
//   - ProfilerOption: a function that applies the interval to the profiler
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithMemoryStats toggles the runtime memory statistics in reports.
// Reading them stops the world briefly.
func WithMemoryStats(enabled bool) ProfilerOption {
	return func(p *Profiler) {
		p.readMem = enabled
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}
