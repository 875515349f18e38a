package deferred

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed assets/shadow.wgsl
var shadowShaderSource string

// shadowClearColor fills unrendered shadow texels with the far distance.
var shadowClearColor = mgl32.Vec4{1, 1, 1, 1}

// ShadowMapper renders shadow maps into two texture arrays: a cube map array
// with one cube per point light slot and a 2D array with one layer per spot or
// directional light slot. With global illumination each array has a matching
// reflective shadow map colour array.
type ShadowMapper struct {
	rs     renderer.RenderSystem
	logger common.Logger
	set    resourceSet

	cfg  Config
	size int

	pointDepth *renderer.Texture
	spotDepth  *renderer.Texture
	pointColor *renderer.Texture
	spotColor  *renderer.Texture
	depth      *renderer.Texture

	shader  *renderer.ShaderClass
	viewCam camera.Camera
}

// NewShadowMapper creates an empty shadow mapper. Call Create to allocate.
//
// Parameters:
//   - rs: the render system
//   - logger: the logger
//
// Returns:
//   - *ShadowMapper: the shadow mapper
func NewShadowMapper(rs renderer.RenderSystem, logger common.Logger) *ShadowMapper {
	return &ShadowMapper{rs: rs, logger: logger, set: newResourceSet(rs)}
}

// Create allocates the shadow arrays and builds the shadow shader for cfg.
// On failure everything created so far is released.
//
// Parameters:
//   - pp: the shader pre-processor
//   - cfg: the normalized renderer configuration
//
// Returns:
//   - error: a creation error, or nil
func (m *ShadowMapper) Create(pp shader.PreProcessor, cfg Config) error {
	m.Release()
	if err := m.create(pp, cfg); err != nil {
		_ = m.Release()
		return fmt.Errorf("shadow mapper: %w", err)
	}
	return nil
}

func (m *ShadowMapper) create(pp shader.PreProcessor, cfg Config) error {
	m.cfg = cfg
	m.size = common.NextPowerOfTwo(cfg.ShadowTexSize)
	size := common.Size2D{Width: m.size, Height: m.size}

	format := renderer.FormatR32F
	if cfg.VarianceShadowMaps {
		format = renderer.FormatRG16F
	}
	gi := cfg.Flags.Has(FlagGlobalIllumination)

	var err error
	if m.pointDepth, err = m.set.texture(renderer.TextureConfig{
		Label: "Shadow Cube Maps", Size: size, Layers: cfg.MaxPointLights * 6,
		Dimension: renderer.TextureCubeArray, Format: format, RenderTarget: true,
	}); err != nil {
		return err
	}
	if m.spotDepth, err = m.set.texture(renderer.TextureConfig{
		Label: "Shadow Maps", Size: size, Layers: cfg.MaxSpotLights,
		Dimension: renderer.Texture2DArray, Format: format, RenderTarget: true,
	}); err != nil {
		return err
	}
	if gi {
		if m.pointColor, err = m.set.texture(renderer.TextureConfig{
			Label: "RSM Cube Maps", Size: size, Layers: cfg.MaxPointLights * 6,
			Dimension: renderer.TextureCubeArray, Format: renderer.FormatRGBA8, RenderTarget: true,
		}); err != nil {
			return err
		}
		if m.spotColor, err = m.set.texture(renderer.TextureConfig{
			Label: "RSM Maps", Size: size, Layers: cfg.MaxSpotLights,
			Dimension: renderer.Texture2DArray, Format: renderer.FormatRGBA8, RenderTarget: true,
		}); err != nil {
			return err
		}
	}
	if m.depth, err = m.set.texture(renderer.TextureConfig{
		Label: "Shadow Depth", Size: size, Format: renderer.FormatDepth32F, RenderTarget: true,
	}); err != nil {
		return err
	}

	var layout SamplerLayout
	if gi {
		layout.Slots = []NamedSlot{{Name: "DiffuseMap", Slot: 0, Kind: renderer.BindTexture2D}}
	}
	m.shader, err = buildShader(&m.set, pp, shaderSpec{
		name:    "shadow",
		source:  shadowShaderSource,
		options: NewPermutationBuilder(cfg).ShadowOptions(),
		layout:  layout,
		blocks:  []int{shadowObjectSize},
		vertex:  renderer.VertexLayoutMesh,
		depth:   true,
		object:  renderer.ObjectCallbackFunc(shadowObjectCallback),
	})
	if err != nil {
		return err
	}

	m.viewCam = camera.NewCamera(camera.WithViewport(size))
	return nil
}

// Release deletes the shadow arrays and the shadow shader. Safe to call twice.
//
// Returns:
//   - error: a joined deletion error, or nil
func (m *ShadowMapper) Release() error {
	err := m.set.release()
	m.pointDepth, m.spotDepth, m.pointColor, m.spotColor, m.depth = nil, nil, nil, nil, nil
	m.shader = nil
	return err
}

// Size returns the edge length of one shadow map slot.
func (m *ShadowMapper) Size() int {
	return m.size
}

// Shader returns the shadow shader class, or nil when released.
func (m *ShadowMapper) Shader() *renderer.ShaderClass {
	return m.shader
}

// PointShadowMaps returns the cube map array.
func (m *ShadowMapper) PointShadowMaps() *renderer.Texture {
	return m.pointDepth
}

// SpotShadowMaps returns the 2D shadow map array.
func (m *ShadowMapper) SpotShadowMaps() *renderer.Texture {
	return m.spotDepth
}

// RenderShadowMap renders the scene from a light into a shadow slot. Point
// lights fill six cube faces, spot and directional lights one 2D layer. A
// spot light whose cone misses the viewer's frustum is not drawn, but its
// slot still counts as used.
//
// The shadow shader is installed as the global shader class for the duration
// of the call; the previous global shader class and camera are restored.
//
// Parameters:
//   - graph: the scene graph to draw
//   - viewer: the viewer camera, used for cone culling and directional framing
//   - l: the light
//   - slot: the cube slot for point lights, else the 2D slot
//
// Returns:
//   - bool: false when the slot is out of range or nothing is allocated
func (m *ShadowMapper) RenderShadowMap(graph scene.SceneGraph, viewer camera.Camera, l light.Light, slot int) bool {
	if m.shader == nil || graph == nil || l == nil || slot < 0 {
		return false
	}
	point := l.Type() == light.LightTypePoint
	if point && slot >= m.cfg.MaxPointLights {
		return false
	}
	if !point && slot >= m.cfg.MaxSpotLights {
		return false
	}

	if l.Type() == light.LightTypeSpot && viewer != nil && !spotConeVisible(l, viewer) {
		m.logger.Debugf("shadow map: spot light %s outside view, slot %d skipped", l.ID(), slot)
		return true
	}

	prevShader := m.rs.GlobalShaderClass()
	prevCam := m.rs.Camera()
	m.rs.SetGlobalShaderClass(m.shader)
	m.rs.SetRenderMode(renderer.ModeScene)
	defer func() {
		m.rs.SetGlobalShaderClass(prevShader)
		m.rs.SetCamera(prevCam)
	}()

	if point {
		m.renderCube(graph, l.Position(), slot)
		return true
	}

	eye, view, proj := lightFrame(l, viewer)
	m.viewCam.SetProjection(&proj)
	m.viewCam.SetUp(upFor(view))
	m.viewCam.LookAt(eye, eye.Add(lightDirection(l)))
	m.renderLayer(graph, m.spotDepth, m.spotColor, slot)
	return true
}

func (m *ShadowMapper) renderCube(graph scene.SceneGraph, pos mgl32.Vec3, slot int) {
	proj := common.Perspective(mgl32.DegToRad(90), 1, light.ShadowNear, light.ShadowFar)
	m.viewCam.SetProjection(&proj)
	for face := range 6 {
		dir, up := light.CubeFaceDirections[face][0], light.CubeFaceDirections[face][1]
		m.viewCam.SetUp(up)
		m.viewCam.LookAt(pos, pos.Add(dir))
		m.renderLayer(graph, m.pointDepth, m.pointColor, slot*6+face)
	}
}

func (m *ShadowMapper) renderLayer(graph scene.SceneGraph, depth, color *renderer.Texture, layer int) {
	targets := []renderer.RenderTarget{{Texture: depth, Layer: layer}}
	if color != nil {
		targets = append(targets, renderer.RenderTarget{Texture: color, Layer: layer})
	}
	targets = append(targets, renderer.Target(m.depth))
	if err := m.rs.SetRenderTargets(targets...); err != nil {
		m.logger.Warnf("shadow map layer %d: %v", layer, err)
		return
	}
	m.rs.ClearBuffers(shadowClearColor)
	graph.Render(m.rs, m.viewCam)
}

// Bind binds the shadow arrays at consecutive slots starting at base: point
// depth, spot depth, then the RSM colour arrays with global illumination.
//
// Parameters:
//   - base: the first slot
//
// Returns:
//   - int: the next free slot
func (m *ShadowMapper) Bind(base int) int {
	next := base
	for _, t := range m.bound() {
		m.rs.BindTexture(next, t)
		next++
	}
	return next
}

// Unbind clears the slots bound by Bind.
//
// Parameters:
//   - base: the first slot passed to Bind
//
// Returns:
//   - int: the next free slot
func (m *ShadowMapper) Unbind(base int) int {
	n := len(m.bound())
	for i := n - 1; i >= 0; i-- {
		m.rs.UnbindTexture(base + i)
	}
	return base + n
}

func (m *ShadowMapper) bound() []*renderer.Texture {
	if m.pointDepth == nil {
		return nil
	}
	textures := []*renderer.Texture{m.pointDepth, m.spotDepth}
	if m.pointColor != nil {
		textures = append(textures, m.pointColor, m.spotColor)
	}
	return textures
}

// lightDirection returns the light's normalized direction, falling back to
// the forward axis for degenerate transforms.
func lightDirection(l light.Light) mgl32.Vec3 {
	d := l.Direction()
	if d.Len() == 0 {
		return common.Forward
	}
	return d.Normalize()
}

// lightFrame returns the shadow camera eye, view and projection of a spot or
// directional light. Directional lights are framed around the viewer.
func lightFrame(l light.Light, viewer camera.Camera) (mgl32.Vec3, mgl32.Mat4, mgl32.Mat4) {
	dir := lightDirection(l)
	if l.Type() == light.LightTypeDirectional {
		var center mgl32.Vec3
		if viewer != nil {
			center = viewer.Position()
		}
		e := light.DirectionalShadowHalfExtent
		eye := center.Sub(dir.Mul(2 * e))
		return eye, common.LookTowards(eye, dir), common.Orthographic(-e, e, -e, e, light.ShadowNear, 4*e)
	}
	_, outer := l.SpotCone()
	fov := min(outer*2, 179)
	eye := l.Position()
	return eye, common.LookTowards(eye, dir), common.Perspective(mgl32.DegToRad(fov), 1, light.ShadowNear, light.ShadowFar)
}

// upFor extracts the up vector a LookAt view matrix was built with.
func upFor(view mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{view[1], view[5], view[9]}
}

// spotConeVisible tests the bounding sphere of a spot light's cone against
// the viewer frustum.
func spotConeVisible(l light.Light, viewer camera.Camera) bool {
	length := light.NonVolumetricRadius
	if l.Volumetric() {
		length = l.VolumetricRadius()
	}
	_, outer := l.SpotCone()
	theta := float64(mgl32.DegToRad(min(outer, 89)))
	dir := lightDirection(l)

	var center mgl32.Vec3
	var radius float32
	if theta <= math.Pi/4 {
		cos := float32(math.Cos(theta))
		radius = length / (2 * cos * cos)
		center = l.Position().Add(dir.Mul(radius))
	} else {
		center = l.Position().Add(dir.Mul(length * float32(math.Cos(theta))))
		radius = length * float32(math.Sin(theta))
	}
	frustum := viewer.Frustum()
	return frustum.SphereVisible(center, radius)
}
