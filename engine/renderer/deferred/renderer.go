// Package deferred implements a deferred shading renderer on top of the
// engine's RenderSystem: a G-Buffer pass, shadow maps for point, spot and
// directional lights, an optional tiled light grid, a full-screen shading
// resolve with optional one-bounce global illumination from reflective
// shadow maps, and a bloom filter.
package deferred

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed assets/gbuffer.wgsl
var gBufferShaderSource string

// Pass names reported to a PassTimer.
const (
	PassGBuffer   = "gbuffer"
	PassLowResVPL = "lowres_vpl"
	PassLights    = "lights"
	PassShading   = "shading"
	PassBloom     = "bloom"
	PassDebugVPL  = "debug_vpl"
)

// PassTimer measures the passes of a frame. StartPass returns the function
// that ends the measurement.
type PassTimer interface {
	StartPass(name string) func()
}

type nopTimer struct{}

func (nopTimer) StartPass(string) func() { return func() {} }

// deferredRenderer is the implementation of the Renderer interface.
type deferredRenderer struct {
	mu *sync.Mutex

	rs     renderer.RenderSystem
	logger common.Logger
	pp     shader.PreProcessor
	timer  PassTimer
	rng    *rand.Rand

	cfg        Config
	resolution common.Size2D
	vsm        bool
	gridOpts   []GridBuilderOption
	relief     ReliefParams
	useDefault bool
	err        error

	set      resourceSet
	geometry *renderer.ShaderClass
	gi       GIConstants

	gbuffer  *GBuffer
	shadows  *ShadowMapper
	grid     *TiledLightGrid
	lights   *LightAggregator
	shading  *ShadingResolve
	bloom    *BloomFilter
	debugVPL *DebugVPLOverlay
}

// Renderer is a deferred shading renderer.
//
// GenerateResources builds every GPU resource for one feature configuration
// and RenderScene draws a scene graph with it. Until GenerateResources
// succeeds, and after ReleaseResources, RenderScene does nothing.
//
// All methods are expected from the render thread.
type Renderer interface {
	// GenerateResources releases everything and builds the resources for a
	// configuration. Flags with missing prerequisites are cleared, light
	// maxima below one are raised to one, and the point light capacity is
	// raised to at least the spot light capacity. On failure everything
	// created by the attempt is released and the error is kept for Err.
	//
	// Parameters:
	//   - flags: the feature flags
	//   - shadowTexSize: the shadow map edge length, rounded up to a power of two
	//   - maxPointLights: the light buffer and cube shadow map capacity
	//   - maxSpotLights: the extended light buffer and 2D shadow map capacity
	//   - multiSampling: the G-Buffer MSAA sample count
	//
	// Returns:
	//   - bool: true when every resource was created
	GenerateResources(flags Flags, shadowTexSize, maxPointLights, maxSpotLights, multiSampling int) bool

	// Err returns the error of the last failed GenerateResources, or nil.
	Err() error

	// ReleaseResources deletes every GPU resource. Calling it again is a no-op.
	ReleaseResources()

	// RenderScene draws a frame: G-Buffer, low resolution indirect light,
	// lights and shadow maps, the light grid, shading, bloom and the VPL
	// overlay. It does nothing when the graph is nil, the resources are not
	// generated, output is not a render target, or no camera is available.
	//
	// Parameters:
	//   - graph: the scene graph
	//   - cam: the viewer camera, or nil for the graph's active camera
	//   - output: the destination texture, or nil for the back buffer
	RenderScene(graph scene.SceneGraph, cam camera.Camera, output *renderer.Texture)

	// SetGIReflectivity sets the scale of indirect light.
	SetGIReflectivity(f float32)

	// GIReflectivity returns the scale of indirect light.
	GIReflectivity() float32

	// SetAmbientColor sets the ambient term.
	SetAmbientColor(c mgl32.Vec3)

	// AmbientColor returns the ambient term.
	AmbientColor() mgl32.Vec3

	// SetResolution recreates the resolution dependent resources for a new
	// size. Before GenerateResources it only records the size.
	//
	// Parameters:
	//   - size: the new resolution
	//
	// Returns:
	//   - error: ErrInvalidResolution or a creation error
	SetResolution(size common.Size2D) error

	// AdjustResolution calls SetResolution with the render system's current resolution.
	AdjustResolution() error

	// Resolution returns the resolution the resources are built for.
	Resolution() common.Size2D

	// Config returns the normalized configuration of the last GenerateResources.
	Config() Config

	// Active reports whether the shaders exist, meaning RenderScene draws.
	Active() bool

	// LightCounts returns the point light and extended record counts of the last frame.
	LightCounts() (int, int)

	// LightRecords returns the light records of the last frame.
	LightRecords() []light.LightRecord

	// ExtendedLightRecords returns the extended light records of the last frame.
	ExtendedLightRecords() []light.ExtendedLightRecord

	// LightStats returns the light counters of the last frame.
	LightStats() AggregatorStats

	// Grid returns the tiled light grid. It holds no tiles unless tiled shading is enabled.
	Grid() *TiledLightGrid

	// GeometryShader returns the G-Buffer shader class so materials can draw
	// with it when the default G-Buffer shader override is disabled.
	GeometryShader() *renderer.ShaderClass

	// SetDebugVPL toggles the virtual point light overlay.
	SetDebugVPL(enabled bool)

	// SetReliefParams sets the relief constants used for objects without a material.
	SetReliefParams(p ReliefParams)

	// ReliefParams returns the relief constants used for objects without a material.
	ReliefParams() ReliefParams

	// SetBloomFactor sets the strength of the bloom highlights.
	SetBloomFactor(f float32)
}

var _ Renderer = &deferredRenderer{}

// NewRenderer creates a deferred renderer drawing through rs. Resources are
// built by GenerateResources.
//
// Parameters:
//   - rs: the render system
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
func NewRenderer(rs renderer.RenderSystem, options ...RendererBuilderOption) Renderer {
	r := &deferredRenderer{
		mu:         &sync.Mutex{},
		rs:         rs,
		logger:     common.NewNopLogger(),
		timer:      nopTimer{},
		relief:     DefaultReliefParams(),
		useDefault: true,
		cfg:        DefaultConfig().normalize(),
	}
	seed := uint64(0x5eed)
	r.rng = rand.New(rand.NewPCG(seed, seed))
	for _, opt := range options {
		opt(r)
	}
	if r.pp == nil {
		r.pp = shader.NewPreProcessor()
	}

	r.set = newResourceSet(rs)
	r.gbuffer = NewGBuffer(rs, r.logger)
	r.shadows = NewShadowMapper(rs, r.logger)
	r.grid = NewTiledLightGrid(rs, append([]GridBuilderOption{WithGridLogger(r.logger)}, r.gridOpts...)...)
	r.lights = NewLightAggregator(rs, r.logger)
	r.shading = NewShadingResolve(rs, r.logger)
	r.bloom = NewBloomFilter(rs, r.logger)
	r.debugVPL = NewDebugVPLOverlay(rs, r.logger)
	return r
}

func (r *deferredRenderer) GenerateResources(flags Flags, shadowTexSize, maxPointLights, maxSpotLights, multiSampling int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseLocked()
	cfg := Config{
		Flags:              flags,
		ShadowTexSize:      shadowTexSize,
		MaxPointLights:     maxPointLights,
		MaxSpotLights:      maxSpotLights,
		MultiSampling:      multiSampling,
		VarianceShadowMaps: r.vsm,
	}.normalize()
	if cfg.Flags != flags {
		r.logger.Debugf("deferred renderer: flags %s sanitized to %s", flags, cfg.Flags)
	}
	if !r.resolution.Valid() {
		r.resolution = r.rs.Resolution()
	}

	if err := r.generate(cfg); err != nil {
		r.releaseLocked()
		r.err = err
		r.logger.Errorf("deferred renderer: generate resources: %v", err)
		return false
	}
	r.err = nil
	r.logger.Infof("deferred renderer: %s at %s", r.cfg, r.resolution)
	return true
}

func (r *deferredRenderer) generate(cfg Config) error {
	if !r.resolution.Valid() {
		return fmt.Errorf("resolution %s: %w", r.resolution, ErrInvalidResolution)
	}
	r.cfg = cfg
	f := cfg.Flags
	r.gi = NewGIConstants(r.rng, cfg.ShadowTexSize)

	if f.Has(FlagBloom) {
		if err := r.bloom.Create(r.pp, r.resolution, f.Has(FlagAllowOverblending)); err != nil {
			r.logger.Debugf("deferred renderer: bloom disabled: %v", err)
			r.cfg.Flags &^= FlagBloom
		}
	}
	cfg = r.cfg
	builder := NewPermutationBuilder(cfg)

	var err error
	if r.geometry, err = buildShader(&r.set, r.pp, shaderSpec{
		name:    "gbuffer",
		source:  gBufferShaderSource,
		options: builder.GeometryOptions(),
		layout:  builder.GeometryLayout(),
		blocks:  []int{geometryObjectSize, reliefParamsSize},
		vertex:  renderer.VertexLayoutMesh,
		depth:   true,
		object:  renderer.ObjectCallbackFunc(geometryObjectCallback),
		surface: surfaceCallback{defaults: r.reliefParams},
	}); err != nil {
		return err
	}

	if err := r.gbuffer.Create(r.resolution, cfg.MultiSampling, f.Has(FlagHasLightMap), lowResVPLEnabled(f)); err != nil {
		return err
	}

	var shadows *ShadowMapper
	if f.Has(FlagShadowMapping) {
		if err := r.shadows.Create(r.pp, cfg); err != nil {
			return err
		}
		shadows = r.shadows
	}

	var grid *TiledLightGrid
	if f.Has(FlagTiledShading) {
		if err := r.grid.CreateGrid(r.resolution, cfg.MaxPointLights); err != nil {
			return err
		}
		grid = r.grid
	}

	if err := r.lights.Create(cfg, shadows, grid); err != nil {
		return err
	}

	numX, numY := r.grid.NumTiles()
	if err := r.shading.Create(r.pp, cfg, r.gi, numX, numY); err != nil {
		return err
	}

	if f.Has(FlagDebugVirtualPointLights) {
		if err := r.debugVPL.Create(r.pp, cfg, r.gi); err != nil {
			return err
		}
	}
	return nil
}

func lowResVPLEnabled(f Flags) bool {
	return f.Has(FlagGlobalIllumination) && f.Has(FlagUseVPLOptimization)
}

func (r *deferredRenderer) ReleaseResources() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
}

// releaseLocked releases every component in reverse creation order.
func (r *deferredRenderer) releaseLocked() {
	errs := []error{
		r.debugVPL.Release(),
		r.shading.Release(),
		r.lights.Release(),
		r.grid.Release(),
		r.shadows.Release(),
		r.gbuffer.Release(),
		r.set.release(),
		r.bloom.Release(),
	}
	r.geometry = nil
	if err := errors.Join(errs...); err != nil {
		r.logger.Warnf("deferred renderer: release: %v", err)
	}
}

func (r *deferredRenderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *deferredRenderer) RenderScene(graph scene.SceneGraph, cam camera.Camera, output *renderer.Texture) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if graph == nil || r.geometry == nil || !r.shading.Active() {
		r.logger.Debugf("deferred renderer: render skipped, no scene graph or shaders")
		return
	}
	if output != nil && !output.IsRenderTarget() {
		r.logger.Debugf("deferred renderer: render skipped, output %q is not a render target", output.Config().Label)
		return
	}
	if cam == nil {
		cam = graph.ActiveCamera()
	}
	if cam == nil {
		r.logger.Debugf("deferred renderer: render skipped, no camera")
		return
	}

	f := r.cfg.Flags
	in := ShadingInputs{GBuffer: r.gbuffer, Lights: r.lights, Bloom: r.bloom}
	if f.Has(FlagShadowMapping) {
		in.Shadows = r.shadows
	}
	if f.Has(FlagTiledShading) {
		in.Grid = r.grid
	}

	geometry := r.geometry
	if !r.useDefault {
		geometry = nil
	}
	end := r.timer.StartPass(PassGBuffer)
	err := r.gbuffer.RenderScene(graph, cam, geometry)
	end()
	if err != nil {
		r.logger.Debugf("deferred renderer: %v", err)
		return
	}

	// Shadow maps, RSMs, light buffers and the grid must be current before
	// anything samples them, the low-resolution VPL pass included.
	end = r.timer.StartPass(PassLights)
	r.lights.UpdateLightSources(graph, cam, r.gbuffer.NormalAndDepth())
	end()

	if lowResVPLEnabled(f) {
		end = r.timer.StartPass(PassLowResVPL)
		if err := r.shading.RenderLowResVPL(in, cam); err != nil {
			r.logger.Debugf("deferred renderer: %v", err)
		}
		end()
	}

	end = r.timer.StartPass(PassShading)
	err = r.shading.RenderDeferredShading(in, cam, output)
	end()
	if err != nil {
		r.logger.Debugf("deferred renderer: %v", err)
		return
	}

	if f.Has(FlagBloom) && r.bloom.Active() {
		end = r.timer.StartPass(PassBloom)
		if err := r.bloom.Render(output); err != nil {
			r.logger.Debugf("deferred renderer: %v", err)
		}
		end()
	}

	if f.Has(FlagDebugVirtualPointLights) {
		if rec, ext, ok := r.lights.DebugVPLSource(); ok {
			end = r.timer.StartPass(PassDebugVPL)
			r.debugVPL.Render(cam, rec, ext, r.shadows, output)
			end()
		}
	}
}

func (r *deferredRenderer) SetGIReflectivity(f float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lights.SetGIReflectivity(f)
}

func (r *deferredRenderer) GIReflectivity() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lights.GIReflectivity()
}

func (r *deferredRenderer) SetAmbientColor(c mgl32.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lights.SetAmbientColor(c)
}

func (r *deferredRenderer) AmbientColor() mgl32.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lights.AmbientColor()
}

func (r *deferredRenderer) SetResolution(size common.Size2D) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !size.Valid() {
		return fmt.Errorf("deferred renderer %s: %w", size, ErrInvalidResolution)
	}
	if size == r.resolution {
		return nil
	}
	r.resolution = size
	if r.geometry == nil {
		return nil
	}
	if err := r.resize(); err != nil {
		r.releaseLocked()
		r.err = err
		r.logger.Errorf("deferred renderer: resize to %s: %v", size, err)
		return err
	}
	r.logger.Debugf("deferred renderer: resized to %s", size)
	return nil
}

// resize recreates the targets and buffers whose size follows the
// resolution. The tiled shading shader bakes the grid size and is rebuilt
// with it.
func (r *deferredRenderer) resize() error {
	f := r.cfg.Flags
	if err := r.gbuffer.Create(r.resolution, r.cfg.MultiSampling, f.Has(FlagHasLightMap), lowResVPLEnabled(f)); err != nil {
		return err
	}
	if f.Has(FlagBloom) {
		if err := r.bloom.Create(r.pp, r.resolution, f.Has(FlagAllowOverblending)); err != nil {
			return err
		}
	}
	if f.Has(FlagTiledShading) {
		if err := r.grid.CreateGrid(r.resolution, r.cfg.MaxPointLights); err != nil {
			return err
		}
		numX, numY := r.grid.NumTiles()
		if err := r.shading.Create(r.pp, r.cfg, r.gi, numX, numY); err != nil {
			return err
		}
	}
	return nil
}

func (r *deferredRenderer) AdjustResolution() error {
	return r.SetResolution(r.rs.Resolution())
}

func (r *deferredRenderer) Resolution() common.Size2D {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolution
}

func (r *deferredRenderer) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

func (r *deferredRenderer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.geometry != nil && r.shading.Active()
}

func (r *deferredRenderer) LightCounts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lights.Counts()
}

func (r *deferredRenderer) LightRecords() []light.LightRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lights.Records()
}

func (r *deferredRenderer) ExtendedLightRecords() []light.ExtendedLightRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lights.ExtendedRecords()
}

func (r *deferredRenderer) LightStats() AggregatorStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lights.Stats()
}

func (r *deferredRenderer) Grid() *TiledLightGrid {
	return r.grid
}

func (r *deferredRenderer) GeometryShader() *renderer.ShaderClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.geometry
}

func (r *deferredRenderer) SetDebugVPL(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugVPL.SetEnabled(enabled)
}

func (r *deferredRenderer) SetReliefParams(p ReliefParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relief = p
}

func (r *deferredRenderer) ReliefParams() ReliefParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relief
}

// reliefParams is read by the surface callback during a draw, while
// RenderScene holds the lock.
func (r *deferredRenderer) reliefParams() ReliefParams {
	return r.relief
}

func (r *deferredRenderer) SetBloomFactor(f float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bloom.SetFactor(f)
}
