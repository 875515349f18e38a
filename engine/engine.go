package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
	"github.com/xlab/closer"
)

// ErrNotConfigured is returned by Run when the engine has no window, render
// system or renderer.
var ErrNotConfigured = errors.New("engine needs a window, a render system and a renderer")

var _ deferred.PassTimer = &profiler.Profiler{}

// renderQueueSize bounds the functions queued for the render thread between frames.
const renderQueueSize = 64

// engine implements the Engine interface.
// Coordinates the tick, render and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates
	renderQueue     chan func()

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	logger   common.Logger
	window   window.Window
	rs       renderer.FrameRenderSystem
	renderer deferred.Renderer

	sceneMu sync.RWMutex
	scene   scene.Scene

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)
	keyCallback    func(key common.Key, pressed bool)

	pendingResize atomic.Pointer[common.Size2D]

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	bindShutdown func(cleanup func())
}

// Engine drives a deferred renderer: it ticks the scene at a fixed rate,
// renders it as fast as the frame limit allows, and forwards window events.
type Engine interface {
	// Window returns the underlying window.
	Window() window.Window

	// RenderSystem returns the render system frames are drawn with.
	RenderSystem() renderer.FrameRenderSystem

	// Renderer returns the deferred renderer.
	Renderer() deferred.Renderer

	// Profiler returns the profiler; pass it to deferred.WithPassTimer to get per-pass timings.
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, after the scene update.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called on the render thread after each frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetKeyCallback registers the function called on key presses and releases.
	SetKeyCallback(callback func(key common.Key, pressed bool))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetScene selects the scene to update and render. Scenes implementing
	// scene.Flusher are flushed at the start of every frame.
	//
	// Parameters:
	//   - s: the scene, or nil to render nothing
	SetScene(s scene.Scene)

	// Scene returns the current scene, or nil.
	Scene() scene.Scene

	// RunOnRenderThread queues fn to run before the next frame. Renderer
	// reconfiguration such as GenerateResources must go through it once
	// the engine runs.
	//
	// Parameters:
	//   - fn: the function
	//
	// Returns:
	//   - bool: false if the queue is full and fn was dropped
	RunOnRenderThread(fn func()) bool

	// Run starts the tick and render loops and processes window messages
	// until the window closes. Must be called from the main thread.
	//
	// Returns:
	//   - error: ErrNotConfigured if a window, render system or renderer is missing
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		renderQueue:     make(chan func(), renderQueueSize),
		quitChannel:     make(chan struct{}),
		logger:          common.NewNopLogger(),
		engineTickRate:  time.Second / 60,
		bindShutdown:    closer.Bind,
	}
	for _, opt := range options {
		opt(e)
	}
	// An interrupt stops the loops and closes the window before the
	// process's own cleanups run.
	if e.bindShutdown != nil {
		e.bindShutdown(e.Quit)
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	if e.window != nil {
		// Resizes arrive on the main thread; the render thread applies them.
		e.window.SetResizeCallback(func(size common.Size2D) {
			e.pendingResize.Store(&size)
		})
		e.window.SetKeyCallback(func(key common.Key, pressed bool) {
			if e.keyCallback != nil {
				e.keyCallback(key, pressed)
			}
		})
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) RenderSystem() renderer.FrameRenderSystem {
	return e.rs
}

func (e *engine) Renderer() deferred.Renderer {
	return e.renderer
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run() error {
	if e.window == nil || e.rs == nil || e.renderer == nil {
		return ErrNotConfigured
	}
	e.running.Store(true)
	e.handle()
	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	return nil
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
	if e.window != nil {
		_ = e.window.Close()
	}
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running.Store(false)
		close(e.quitChannel)
	})
}

// handle launches the tick and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate tick loop in its own goroutine.
// Updates the scene then fires the tick callback, and listens for dynamic
// rate changes via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if s := e.Scene(); s != nil {
				s.Update(dt)
			}
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the render loop in its own goroutine until quit.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("render goroutine recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			e.drainRenderQueue()
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			e.renderFrame(dt)

			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// renderFrame runs one frame on the render thread: queued render thread
// work, pending scene changes, a pending resize, then BeginFrame, the
// deferred renderer and Present.
func (e *engine) renderFrame(dt float32) {
	e.drainRenderQueue()

	s := e.Scene()
	if f, ok := s.(scene.Flusher); ok {
		if n := f.Flush(); n > 0 {
			e.logger.Debugf("engine: applied %d queued scene changes", n)
		}
	}

	if size := e.pendingResize.Swap(nil); size != nil {
		e.applyResize(s, *size)
	}

	if s != nil {
		if err := e.rs.BeginFrame(); err != nil {
			e.logger.Debugf("engine: begin frame: %v", err)
		} else {
			e.renderer.RenderScene(s, nil, nil)
			e.rs.EndFrame()
			e.rs.Present()
		}
	}

	if e.renderCallback != nil {
		e.renderCallback(dt)
	}
	if e.profilingEnabled.Load() && e.profiler != nil {
		e.profiler.Tick()
	}
}

// applyResize reconfigures the surface, the renderer's resolution dependent
// resources and the cameras' viewports.
func (e *engine) applyResize(s scene.Scene, size common.Size2D) {
	e.rs.Resize(size.Width, size.Height)
	if err := e.renderer.AdjustResolution(); err != nil {
		e.logger.Errorf("engine: resize to %s: %v", size, err)
	}
	if s == nil {
		return
	}
	for _, c := range s.Cameras() {
		c.SetViewport(size)
	}
}

func (e *engine) drainRenderQueue() {
	for {
		select {
		case fn := <-e.renderQueue:
			fn()
		default:
			return
		}
	}
}

func (e *engine) RunOnRenderThread(fn func()) bool {
	if fn == nil {
		return true
	}
	select {
	case e.renderQueue <- fn:
		return true
	default:
		e.logger.Warnf("engine: render queue full, dropping task")
		return false
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	// Replace a pending update rather than block the caller.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetKeyCallback(callback func(key common.Key, pressed bool)) {
	e.keyCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) SetScene(s scene.Scene) {
	e.sceneMu.Lock()
	defer e.sceneMu.Unlock()
	e.scene = s
}

func (e *engine) Scene() scene.Scene {
	e.sceneMu.RLock()
	defer e.sceneMu.RUnlock()
	return e.scene
}
