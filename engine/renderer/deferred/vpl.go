package deferred

import (
	_ "embed"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed assets/debug_vpl.wgsl
var debugVPLSource string

const (
	// JitteredOffsetCount is the number of random shadow sample offsets.
	JitteredOffsetCount = 20
	// MaxJitterFactor bounds each jittered offset component.
	MaxJitterFactor float32 = 0.035

	vplRings      = 5
	vplRotations  = 5
	vplBias       = 1.5
	vplJitterBias = 0.05

	// giConstantsSize holds one vec4 per jittered offset and per VPL offset.
	giConstantsSize = (JitteredOffsetCount + VPLCount) * 16
	debugVPLSize    = 160
)

// GIConstants are the sample patterns of the shading shader: jittered
// offsets for soft shadow lookups and the reflective shadow map coordinates
// each virtual point light is taken from.
type GIConstants struct {
	Jitter     [JitteredOffsetCount]mgl32.Vec2
	VPLOffsets [VPLCount]mgl32.Vec2
}

// NewGIConstants draws the sample patterns from rng. VPL offsets are laid
// out on rings around the shadow map center, rotated per ring group, then
// snapped to texel centers of a shadow map of shadowTexSize.
//
// Parameters:
//   - rng: the random source
//   - shadowTexSize: the shadow map edge length
//
// Returns:
//   - GIConstants: the sample patterns
func NewGIConstants(rng *rand.Rand, shadowTexSize int) GIConstants {
	var c GIConstants
	for i := range c.Jitter {
		c.Jitter[i] = mgl32.Vec2{
			randRange(rng, -MaxJitterFactor, MaxJitterFactor),
			randRange(rng, -MaxJitterFactor, MaxJitterFactor),
		}
	}

	texSize := float64(max(shadowTexSize, 1))
	maxRotation := float64(vplRotations) / VPLCount
	for i := range c.VPLOffsets {
		x := (float64(i%vplRings) + vplBias) / (vplRings + 1)
		y := float64(i/vplRings) * maxRotation
		x += float64(randRange(rng, -vplJitterBias, vplJitterBias))
		y += float64(randRange(rng, -vplJitterBias, vplJitterBias))

		angle := y * 2 * math.Pi
		u := x*x*math.Cos(angle)*0.5 + 0.5
		v := x*x*math.Sin(angle)*0.5 + 0.5
		u = (math.Floor(u*texSize) + 0.5) / texSize
		v = (math.Floor(v*texSize) + 0.5) / texSize
		c.VPLOffsets[i] = mgl32.Vec2{float32(u), float32(v)}
	}
	return c
}

func randRange(rng *rand.Rand, lo, hi float32) float32 {
	return lo + rng.Float32()*(hi-lo)
}

// Marshal packs the constants as vec4 arrays, xy set.
//
// Layout:
//
//	array<vec4<f32>, 20>  jittered_offsets (offset    0)
//	array<vec4<f32>, 100> vpl_offsets      (offset  320)
func (c GIConstants) Marshal() []byte {
	buf := make([]byte, giConstantsSize)
	for i, o := range c.Jitter {
		putVec2(buf[i*16:], o)
	}
	base := JitteredOffsetCount * 16
	for i, o := range c.VPLOffsets {
		putVec2(buf[base+i*16:], o)
	}
	return buf
}

// DebugVPLOverlay draws the virtual point lights of one shadowed spot or
// directional light as points on top of the final image.
type DebugVPLOverlay struct {
	rs     renderer.RenderSystem
	logger common.Logger
	set    resourceSet

	shader  *renderer.ShaderClass
	enabled bool
}

// NewDebugVPLOverlay creates an empty overlay. It is enabled by default and
// draws nothing until Create succeeds.
func NewDebugVPLOverlay(rs renderer.RenderSystem, logger common.Logger) *DebugVPLOverlay {
	return &DebugVPLOverlay{rs: rs, logger: logger, set: newResourceSet(rs), enabled: true}
}

// Create builds the overlay shader. The shadow arrays are expected at
// slots 0 to 3 in the order ShadowMapper.Bind uses.
//
// Parameters:
//   - pp: the shader pre-processor
//   - cfg: the normalized renderer configuration
//   - gi: the sample patterns
//
// Returns:
//   - error: a creation error, or nil
func (d *DebugVPLOverlay) Create(pp shader.PreProcessor, cfg Config, gi GIConstants) error {
	d.Release()
	unfilterable := !cfg.VarianceShadowMaps
	layout := SamplerLayout{Slots: []NamedSlot{
		{Name: SlotPointShadowMaps, Slot: 0, Kind: renderer.BindTextureCubeArray, Unfilterable: unfilterable},
		{Name: SlotSpotShadowMaps, Slot: 1, Kind: renderer.BindTexture2DArray, Unfilterable: unfilterable},
		{Name: SlotPointRSMColorMaps, Slot: 2, Kind: renderer.BindTextureCubeArray},
		{Name: SlotSpotRSMColorMaps, Slot: 3, Kind: renderer.BindTexture2DArray},
	}}
	var err error
	d.shader, err = buildShader(&d.set, pp, shaderSpec{
		name:   "debug_vpl",
		source: debugVPLSource,
		layout: layout,
		blocks: []int{debugVPLSize, giConstantsSize},
		vertex: renderer.VertexLayoutNone,
		depth:  true,
	})
	if err == nil {
		err = d.rs.SetShaderConstants(d.shader, 1, gi.Marshal())
	}
	if err != nil {
		_ = d.Release()
		return fmt.Errorf("debug vpl: %w", err)
	}
	return nil
}

// Release deletes the overlay shader. Safe to call twice.
func (d *DebugVPLOverlay) Release() error {
	err := d.set.release()
	d.shader = nil
	return err
}

// SetEnabled toggles drawing without releasing the shader.
func (d *DebugVPLOverlay) SetEnabled(enabled bool) {
	d.enabled = enabled
}

// Enabled reports whether the overlay draws.
func (d *DebugVPLOverlay) Enabled() bool {
	return d.enabled
}

// Render draws VPLCount points for the light into output, or the back
// buffer when output is nil.
//
// Parameters:
//   - cam: the viewer camera
//   - rec: the light record, which must carry a shadow index
//   - ext: the light's extended record
//   - shadows: the shadow mapper whose arrays hold the light's maps
//   - output: the destination texture, or nil
//
// Returns:
//   - bool: true when the points were drawn
func (d *DebugVPLOverlay) Render(cam camera.Camera, rec light.LightRecord, ext light.ExtendedLightRecord, shadows *ShadowMapper, output *renderer.Texture) bool {
	if !d.enabled || d.shader == nil || cam == nil || shadows == nil || rec.ShadowIndex < 0 {
		return false
	}
	var targets []renderer.RenderTarget
	if output != nil {
		targets = append(targets, renderer.Target(output))
	}
	if err := d.rs.SetRenderTargets(targets...); err != nil {
		d.logger.Debugf("debug vpl: %v", err)
		return false
	}

	buf := make([]byte, debugVPLSize)
	putMat4(buf[0:], cam.ViewProjectionMatrix())
	putMat4(buf[64:], ext.InvViewProjection)
	putVec3(buf[128:], rec.Position)
	putU32(buf[140:], uint32(rec.ShadowIndex))
	putVec3(buf[144:], rec.Color)
	if err := d.rs.SetShaderConstants(d.shader, 0, buf); err != nil {
		d.logger.Debugf("debug vpl: %v", err)
		return false
	}

	d.rs.SetCamera(cam)
	d.rs.SetRenderMode(renderer.ModeScene)
	shadows.Bind(0)
	d.rs.DrawProcedural(d.shader, renderer.PrimitivePoints, 1, VPLCount)
	shadows.Unbind(0)
	return true
}
