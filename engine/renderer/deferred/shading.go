package deferred

import (
	_ "embed"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

//go:embed assets/shading.wgsl
var shadingShaderSource string

// ShadingInputs are the components a shading draw reads from. Shadows and
// Grid may be nil when their features are disabled; Bloom may be nil or
// inactive.
type ShadingInputs struct {
	GBuffer *GBuffer
	Shadows *ShadowMapper
	Grid    *TiledLightGrid
	Lights  *LightAggregator
	Bloom   *BloomFilter
}

// ShadingResolve owns the full-screen shading shaders: the main deferred
// shading variant and, with the VPL optimization, the half resolution
// indirect light variant.
type ShadingResolve struct {
	rs     renderer.RenderSystem
	logger common.Logger
	set    resourceSet

	builder PermutationBuilder
	main    *renderer.ShaderClass
	lowRes  *renderer.ShaderClass

	layout       SamplerLayout
	lowResLayout SamplerLayout
}

// NewShadingResolve creates an empty shading resolve. Call Create to build.
func NewShadingResolve(rs renderer.RenderSystem, logger common.Logger) *ShadingResolve {
	return &ShadingResolve{rs: rs, logger: logger, set: newResourceSet(rs)}
}

// Create builds the shading shaders for a configuration. numTilesX and
// numTilesY are baked into the tiled variant and ignored otherwise.
//
// Parameters:
//   - pp: the shader pre-processor
//   - cfg: the normalized renderer configuration
//   - gi: the sample patterns uploaded with shadow mapping
//   - numTilesX: light grid columns
//   - numTilesY: light grid rows
//
// Returns:
//   - error: a creation error, or nil
func (s *ShadingResolve) Create(pp shader.PreProcessor, cfg Config, gi GIConstants, numTilesX, numTilesY int) error {
	s.Release()
	if err := s.create(pp, cfg, gi, numTilesX, numTilesY); err != nil {
		_ = s.Release()
		return fmt.Errorf("shading: %w", err)
	}
	return nil
}

func (s *ShadingResolve) create(pp shader.PreProcessor, cfg Config, gi GIConstants, numTilesX, numTilesY int) error {
	s.builder = NewPermutationBuilder(cfg)
	f := s.builder.Flags()

	blocks := []int{camera.GPUCameraUniformSize}
	if f.Has(FlagShadowMapping) {
		blocks = append(blocks, giConstantsSize)
	}

	options := s.builder.ShadingOptions(false)
	if f.Has(FlagTiledShading) {
		options = append(options, s.builder.TiledOptions(numTilesX, numTilesY, light.TileSize)...)
	}
	s.layout = s.builder.ShadingSamplers(false)

	var err error
	if s.main, err = buildShader(&s.set, pp, shaderSpec{
		name:    "deferred_shading",
		source:  shadingShaderSource,
		options: options,
		layout:  s.layout,
		blocks:  blocks,
		vertex:  renderer.VertexLayoutNone,
	}); err != nil {
		return err
	}
	if f.Has(FlagShadowMapping) {
		if err := s.rs.SetShaderConstants(s.main, 1, gi.Marshal()); err != nil {
			return err
		}
	}

	if f.Has(FlagGlobalIllumination) && f.Has(FlagUseVPLOptimization) {
		s.lowResLayout = s.builder.ShadingSamplers(true)
		if s.lowRes, err = buildShader(&s.set, pp, shaderSpec{
			name:    "deferred_shading_lowres_vpl",
			source:  shadingShaderSource,
			options: s.builder.ShadingOptions(true),
			layout:  s.lowResLayout,
			blocks:  blocks,
			vertex:  renderer.VertexLayoutNone,
		}); err != nil {
			return err
		}
		if err := s.rs.SetShaderConstants(s.lowRes, 1, gi.Marshal()); err != nil {
			return err
		}
	}
	return nil
}

// Release deletes the shading shaders. Safe to call twice.
func (s *ShadingResolve) Release() error {
	err := s.set.release()
	s.main, s.lowRes = nil, nil
	s.layout, s.lowResLayout = SamplerLayout{}, SamplerLayout{}
	return err
}

// Active reports whether the main shading shader exists.
func (s *ShadingResolve) Active() bool {
	return s.main != nil
}

// Shader returns the main shading shader class, or nil.
func (s *ShadingResolve) Shader() *renderer.ShaderClass {
	return s.main
}

// LowResShader returns the indirect light shader class, or nil.
func (s *ShadingResolve) LowResShader() *renderer.ShaderClass {
	return s.lowRes
}

// Layout returns the slot layout of the main shading shader.
func (s *ShadingResolve) Layout() SamplerLayout {
	return s.layout
}

// RenderDeferredShading draws the full-screen shading quad. The result goes
// into the bloom inputs when bloom is active, else into output, or the back
// buffer when output is nil. G-Buffer textures are bound from slot 0, the
// shadow arrays at the shadow slot base, then the light grid and the light
// buffers; everything is unbound in reverse order after the draw.
//
// Parameters:
//   - in: the pass inputs
//   - cam: the viewer camera
//   - output: the destination texture, or nil
//
// Returns:
//   - error: ErrResourceReleased, ErrMissingInput or a binding error
func (s *ShadingResolve) RenderDeferredShading(in ShadingInputs, cam camera.Camera, output *renderer.Texture) error {
	if s.main == nil {
		return ErrResourceReleased
	}
	if in.GBuffer == nil || in.Lights == nil || cam == nil {
		return fmt.Errorf("deferred shading: %w", ErrMissingInput)
	}

	var targets []renderer.RenderTarget
	switch {
	case in.Bloom != nil && in.Bloom.Active():
		targets = in.Bloom.InputTargets()
	case output != nil:
		targets = []renderer.RenderTarget{renderer.Target(output)}
	}
	if err := s.rs.SetRenderTargets(targets...); err != nil {
		return fmt.Errorf("deferred shading: %w", err)
	}
	s.rs.SetRenderMode(renderer.Mode2D)
	s.stageCamera(s.main, cam)

	f := s.builder.Flags()
	in.GBuffer.BindTextures()
	base := s.builder.ShadowMapSlotBase()
	next := base
	if f.Has(FlagShadowMapping) && in.Shadows != nil {
		next = in.Shadows.Bind(base)
	}
	gridBase := next
	if f.Has(FlagTiledShading) && in.Grid != nil {
		next = in.Grid.Bind(gridBase)
	}
	lightBase := next
	in.Lights.Bind(lightBase)

	s.rs.DrawFullscreenQuad(s.main)

	in.Lights.Unbind(lightBase)
	if f.Has(FlagTiledShading) && in.Grid != nil {
		in.Grid.Unbind(gridBase)
	}
	if f.Has(FlagShadowMapping) && in.Shadows != nil {
		in.Shadows.Unbind(base)
	}
	in.GBuffer.UnbindTextures()
	return nil
}

// RenderLowResVPL draws the indirect light of the virtual point lights into
// the G-Buffer's half resolution VPL target. It reads normals and depth at
// slot 0 and the shadow arrays from slot 1.
//
// Parameters:
//   - in: the pass inputs
//   - cam: the viewer camera
//
// Returns:
//   - error: ErrResourceReleased, ErrMissingInput or a binding error
func (s *ShadingResolve) RenderLowResVPL(in ShadingInputs, cam camera.Camera) error {
	if s.lowRes == nil {
		return ErrResourceReleased
	}
	if in.GBuffer == nil || in.GBuffer.LowResVPL() == nil || in.Shadows == nil || in.Lights == nil || cam == nil {
		return fmt.Errorf("low res vpl: %w", ErrMissingInput)
	}
	if err := s.rs.SetRenderTargets(renderer.Target(in.GBuffer.LowResVPL())); err != nil {
		return fmt.Errorf("low res vpl: %w", err)
	}
	s.rs.SetRenderMode(renderer.Mode2D)
	s.stageCamera(s.lowRes, cam)

	s.rs.BindTexture(0, in.GBuffer.NormalAndDepth())
	lightBase := in.Shadows.Bind(1)
	in.Lights.Bind(lightBase)

	s.rs.DrawFullscreenQuad(s.lowRes)

	in.Lights.Unbind(lightBase)
	in.Shadows.Unbind(1)
	s.rs.UnbindTexture(0)
	return nil
}

func (s *ShadingResolve) stageCamera(sc *renderer.ShaderClass, cam camera.Camera) {
	u := camera.UniformFromCamera(cam)
	if err := s.rs.SetShaderConstants(sc, 0, u.Marshal()); err != nil {
		s.logger.Warnf("shading: stage camera: %v", err)
	}
}
