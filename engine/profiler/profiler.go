package profiler

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// PassStat is the accumulated GPU submission time of one render pass over
// the current reporting interval.
type PassStat struct {
	Name  string
	Count int
	Total time.Duration
}

// Average returns the mean duration of the pass, or zero if it never ran.
func (s PassStat) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Profiler tracks the frame rate, memory statistics and per-pass timings of
// the renderer, and reports them through the logger at a fixed interval.
// It satisfies deferred.PassTimer.
type Profiler struct {
	mu             sync.Mutex
	logger         common.Logger
	now            func() time.Time
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	readMem        bool

	passes  map[string]*PassStat
	order   []string
	summary string
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		logger:         common.NewNopLogger(),
		now:            time.Now,
		updateInterval: time.Second,
		readMem:        true,
		passes:         make(map[string]*PassStat),
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// StartPass begins timing a render pass. The returned function ends it.
// Passes are reported in the order they were first seen.
//
// Parameters:
//   - name: the pass name
//
// Returns:
//   - func(): ends the measurement
func (p *Profiler) StartPass(name string) func() {
	start := p.now()
	return func() {
		d := p.now().Sub(start)
		p.mu.Lock()
		defer p.mu.Unlock()
		s, ok := p.passes[name]
		if !ok {
			s = &PassStat{Name: name}
			p.passes[name] = s
			p.order = append(p.order, name)
		}
		s.Count++
		s.Total += d
	}
}

// Passes returns the pass statistics of the current interval in first-seen order.
func (p *Profiler) Passes() []PassStat {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PassStat, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, *p.passes[name])
	}
	return out
}

// Summary returns the last reported line, or an empty string before the first report.
func (p *Profiler) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// Tick should be called once per frame. When the update interval has
// elapsed it logs FPS, heap usage, allocation rate, GC pauses and the average
// time of every pass, then starts a new interval.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FPS: %.2f", float64(p.frameCount)/elapsed.Seconds())
	if p.readMem {
		b.WriteString(" | ")
		b.WriteString(p.memoryLine(elapsed))
	}
	for _, name := range p.order {
		s := p.passes[name]
		fmt.Fprintf(&b, " | %s: %.2f ms", name, float64(s.Average().Microseconds())/1000)
	}
	p.summary = b.String()
	p.logger.Infof("[Profiler] %s", p.summary)

	p.frameCount = 0
	p.lastTime = currentTime
	clear(p.passes)
	p.order = p.order[:0]
	return true
}

// memoryLine reads the runtime memory statistics. Alloc is live heap, Sys
// the process footprint, TotalAlloc grows forever and gives the churn rate.
func (p *Profiler) memoryLine(elapsed time.Duration) string {
	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 GC pauses.
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc

	return fmt.Sprintf("Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)
}
