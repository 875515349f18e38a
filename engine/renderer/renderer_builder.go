package renderer

import "github.com/Carmen-Shannon/oxy-deferred/common"

// RendererBuilderOption is a functional option applied to the WebGPU render system during
// construction via NewWGPURenderSystem.
type RendererBuilderOption func(*wgpuRenderSystem)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a render system
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *wgpuRenderSystem) {
		r.presentMode = mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a render system
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *wgpuRenderSystem) {
		r.forceFallbackAdapter = force
	}
}

// WithUniformArenaSize sets the size in bytes of the per-frame arena that captures shader
// constants for every draw. Draws beyond the arena's capacity in one frame are skipped
// with a warning.
//
// Parameters:
//   - size: the arena size in bytes
//
// Returns:
//   - RendererBuilderOption: a function that applies the arena size to a render system
func WithUniformArenaSize(size int) RendererBuilderOption {
	return func(r *wgpuRenderSystem) {
		r.arenaSize = size
	}
}

// WithLogger sets the logger used for device and pipeline diagnostics.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger to a render system
func WithLogger(logger common.Logger) RendererBuilderOption {
	return func(r *wgpuRenderSystem) {
		r.logger = logger
	}
}
