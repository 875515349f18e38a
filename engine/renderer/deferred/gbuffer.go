package deferred

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// gBufferClearColor leaves unwritten pixels with zero depth, which the
// shading and grid passes treat as the far plane.
var gBufferClearColor = mgl32.Vec4{0, 0, 0, 0}

// GBuffer holds the multiple render targets the geometry pass writes and
// the shading pass reads.
type GBuffer struct {
	rs     renderer.RenderSystem
	logger common.Logger
	set    resourceSet

	resolution common.Size2D
	samples    int

	diffuseAndSpecular *renderer.Texture
	normalAndDepth     *renderer.Texture
	illumination       *renderer.Texture
	lowResVPL          *renderer.Texture
	depth              *renderer.Texture
}

// NewGBuffer creates an empty G-Buffer. Call Create to allocate.
func NewGBuffer(rs renderer.RenderSystem, logger common.Logger) *GBuffer {
	return &GBuffer{rs: rs, logger: logger, set: newResourceSet(rs)}
}

// Create allocates the G-Buffer targets for a resolution, replacing any
// previous allocation. On failure nothing stays allocated.
//
// Parameters:
//   - resolution: the target size
//   - multiSampling: the MSAA sample count, zero or one disables it
//   - lightMap: allocate the illumination target
//   - lowResVPL: allocate the half resolution indirect light target
//
// Returns:
//   - error: ErrInvalidResolution or a creation error
func (g *GBuffer) Create(resolution common.Size2D, multiSampling int, lightMap, lowResVPL bool) error {
	g.Release()
	if !resolution.Valid() {
		return fmt.Errorf("g-buffer %s: %w", resolution, ErrInvalidResolution)
	}
	if err := g.create(resolution, multiSampling, lightMap, lowResVPL); err != nil {
		_ = g.Release()
		return fmt.Errorf("g-buffer: %w", err)
	}
	return nil
}

func (g *GBuffer) create(resolution common.Size2D, multiSampling int, lightMap, lowResVPL bool) error {
	g.resolution = resolution
	g.samples = int(renderer.SampleCountFor(multiSampling))
	target := func(label string, format renderer.TextureFormat) renderer.TextureConfig {
		return renderer.TextureConfig{
			Label: label, Size: resolution, Format: format, RenderTarget: true, MultiSamples: g.samples,
		}
	}

	var err error
	if g.diffuseAndSpecular, err = g.set.texture(target("GBuffer Diffuse Specular", renderer.FormatRGBA8)); err != nil {
		return err
	}
	if g.normalAndDepth, err = g.set.texture(target("GBuffer Normal Depth", renderer.FormatRGBA16F)); err != nil {
		return err
	}
	if lightMap {
		if g.illumination, err = g.set.texture(target("GBuffer Illumination", renderer.FormatRGBA8)); err != nil {
			return err
		}
	}
	if lowResVPL {
		if g.lowResVPL, err = g.set.texture(renderer.TextureConfig{
			Label: "GBuffer Low Res VPL", Size: resolution.Half(), Format: renderer.FormatRGBA16F, RenderTarget: true,
		}); err != nil {
			return err
		}
	}
	g.depth, err = g.set.texture(target("GBuffer Depth", renderer.FormatDepth32F))
	return err
}

// Release deletes the G-Buffer targets. Safe to call twice.
func (g *GBuffer) Release() error {
	err := g.set.release()
	g.diffuseAndSpecular, g.normalAndDepth, g.illumination, g.lowResVPL, g.depth = nil, nil, nil, nil, nil
	return err
}

// Resolution returns the size of the full resolution targets.
func (g *GBuffer) Resolution() common.Size2D {
	return g.resolution
}

// Samples returns the effective MSAA sample count.
func (g *GBuffer) Samples() int {
	return g.samples
}

// DiffuseAndSpecular returns the colour target: diffuse in rgb, specular in a.
func (g *GBuffer) DiffuseAndSpecular() *renderer.Texture {
	return g.diffuseAndSpecular
}

// NormalAndDepth returns the view normal and linear depth target.
func (g *GBuffer) NormalAndDepth() *renderer.Texture {
	return g.normalAndDepth
}

// Illumination returns the light map target, or nil.
func (g *GBuffer) Illumination() *renderer.Texture {
	return g.illumination
}

// LowResVPL returns the half resolution indirect light target, or nil.
func (g *GBuffer) LowResVPL() *renderer.Texture {
	return g.lowResVPL
}

// Bind selects the G-Buffer as the set of render targets.
//
// Returns:
//   - error: ErrResourceReleased or a binding error
func (g *GBuffer) Bind() error {
	if g.diffuseAndSpecular == nil {
		return ErrResourceReleased
	}
	targets := []renderer.RenderTarget{renderer.Target(g.diffuseAndSpecular), renderer.Target(g.normalAndDepth)}
	if g.illumination != nil {
		targets = append(targets, renderer.Target(g.illumination))
	}
	targets = append(targets, renderer.Target(g.depth))
	return g.rs.SetRenderTargets(targets...)
}

// RenderScene draws the graph into the G-Buffer. When geometry is non-nil
// it overrides every object's shader for the pass and the previous global
// shader class is restored afterwards.
//
// Parameters:
//   - graph: the scene graph
//   - cam: the camera, or nil for the graph's active camera
//   - geometry: the G-Buffer shader class, or nil to keep the objects' own shaders
//
// Returns:
//   - error: ErrResourceReleased, ErrMissingInput or a binding error
func (g *GBuffer) RenderScene(graph scene.SceneGraph, cam camera.Camera, geometry *renderer.ShaderClass) error {
	if graph == nil {
		return fmt.Errorf("g-buffer pass: %w", ErrMissingInput)
	}
	if err := g.Bind(); err != nil {
		return fmt.Errorf("g-buffer pass: %w", err)
	}
	g.rs.ClearBuffers(gBufferClearColor)
	g.rs.SetRenderMode(renderer.ModeScene)

	if geometry != nil {
		prev := g.rs.GlobalShaderClass()
		g.rs.SetGlobalShaderClass(geometry)
		defer g.rs.SetGlobalShaderClass(prev)
	}
	graph.Render(g.rs, cam)
	return nil
}

// BindTextures binds the G-Buffer textures of the main shading pass from slot 0:
// colour, normal and depth, then the illumination and low resolution VPL
// targets when present. The order matches PermutationBuilder.ShadingSamplers.
//
// Returns:
//   - int: the next free slot
func (g *GBuffer) BindTextures() int {
	slot := 0
	for _, t := range g.shadingTextures() {
		g.rs.BindTexture(slot, t)
		slot++
	}
	return slot
}

// UnbindTextures clears the slots bound by BindTextures in reverse order.
func (g *GBuffer) UnbindTextures() {
	n := len(g.shadingTextures())
	for slot := n - 1; slot >= 0; slot-- {
		g.rs.UnbindTexture(slot)
	}
}

func (g *GBuffer) shadingTextures() []*renderer.Texture {
	if g.diffuseAndSpecular == nil {
		return nil
	}
	out := []*renderer.Texture{g.diffuseAndSpecular, g.normalAndDepth}
	if g.illumination != nil {
		out = append(out, g.illumination)
	}
	if g.lowResVPL != nil {
		out = append(out, g.lowResVPL)
	}
	return out
}
