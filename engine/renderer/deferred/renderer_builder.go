package deferred

import (
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// RendererBuilderOption is a functional option applied to the deferred renderer during construction.
type RendererBuilderOption func(*deferredRenderer)

// WithLogger sets the logger used by the renderer and all of its passes.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger to the renderer
func WithLogger(logger common.Logger) RendererBuilderOption {
	return func(r *deferredRenderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithVarianceShadowMaps stores depth and squared depth in the shadow maps
// so they can be filtered.
//
// Parameters:
//   - enabled: true for RG16F variance shadow maps, false for R32F depth
//
// Returns:
//   - RendererBuilderOption: a function that applies the option to the renderer
func WithVarianceShadowMaps(enabled bool) RendererBuilderOption {
	return func(r *deferredRenderer) {
		r.vsm = enabled
	}
}

// WithSeed seeds the random source of the jitter and VPL sample patterns.
//
// Parameters:
//   - seed: the seed
//
// Returns:
//   - RendererBuilderOption: a function that applies the seed to the renderer
func WithSeed(seed uint64) RendererBuilderOption {
	return func(r *deferredRenderer) {
		r.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithLightGridWorkers sets the number of goroutines that cull light grid rows.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count to the renderer
func WithLightGridWorkers(n int) RendererBuilderOption {
	return func(r *deferredRenderer) {
		r.gridOpts = append(r.gridOpts, WithGridWorkers(n))
	}
}

// WithReliefParams sets the relief constants used for objects without a material.
func WithReliefParams(p ReliefParams) RendererBuilderOption {
	return func(r *deferredRenderer) {
		r.relief = p
	}
}

// WithResolution sets the initial resolution. Without it GenerateResources
// uses the render system's resolution.
func WithResolution(size common.Size2D) RendererBuilderOption {
	return func(r *deferredRenderer) {
		r.resolution = size
	}
}

// WithDefaultGBufferShader controls whether the G-Buffer shader overrides
// every object's own shader during the geometry pass. Enabled by default.
func WithDefaultGBufferShader(enabled bool) RendererBuilderOption {
	return func(r *deferredRenderer) {
		r.useDefault = enabled
	}
}

// WithPassTimer reports the duration of every pass to t.
func WithPassTimer(t PassTimer) RendererBuilderOption {
	return func(r *deferredRenderer) {
		if t != nil {
			r.timer = t
		}
	}
}

// WithPreProcessor sets the shader pre-processor.
func WithPreProcessor(pp shader.PreProcessor) RendererBuilderOption {
	return func(r *deferredRenderer) {
		r.pp = pp
	}
}
