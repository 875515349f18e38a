package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
	}
}

// WithProfiler sets the profiler Tick reports through. Share it with the
// renderer through deferred.WithPassTimer to include pass timings.
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets the window the engine processes messages for.
//
// Parameters:
//   - w: an open Window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderSystem sets the render system frames are begun, ended and presented on.
func WithRenderSystem(rs renderer.FrameRenderSystem) EngineBuilderOption {
	return func(e *engine) {
		e.rs = rs
	}
}

// WithRenderer sets the deferred renderer that draws the scene each frame.
// Its resources should be generated before Run.
func WithRenderer(r deferred.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithScene sets the scene to update and render.
//
// Parameters:
//   - s: the Scene
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithLogger sets the logger for engine messages.
func WithLogger(logger common.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithShutdownBinder replaces the hook Quit is registered with at construction.
// The default is closer.Bind, so SIGINT and SIGTERM quit the engine; nil
// disables signal handling.
//
// Parameters:
//   - bind: registers a cleanup function
//
// Returns:
//   - EngineBuilderOption: a function that applies the binder to the engine
func WithShutdownBinder(bind func(cleanup func())) EngineBuilderOption {
	return func(e *engine) {
		e.bindShutdown = bind
	}
}
