package deferred

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// shadowObjectSize is the size of the shadow shader's per-object block.
	shadowObjectSize = 144
	// geometryObjectSize is the size of the G-Buffer shader's per-object block.
	geometryObjectSize = 272
	// reliefParamsSize is the size of the G-Buffer shader's surface block.
	reliefParamsSize = 32
)

// ReliefParams are the surface constants of the G-Buffer shader used for
// specular and parallax occlusion mapping. A material's own values win.
type ReliefParams struct {
	SpecularFactor    float32
	HeightMapScale    float32
	ParallaxViewRange float32
	EnablePOM         bool
	MinSamplesPOM     int32
	MaxSamplesPOM     int32
}

// DefaultReliefParams returns the relief constants used when an object has no material.
func DefaultReliefParams() ReliefParams {
	return ReliefParams{
		SpecularFactor:    1.0,
		HeightMapScale:    0.015,
		ParallaxViewRange: 2.0,
		MinSamplesPOM:     0,
		MaxSamplesPOM:     50,
	}
}

// Marshal packs the relief block.
//
// Layout:
//
//	f32 specular_factor      (offset  0)
//	f32 height_map_scale     (offset  4)
//	f32 parallax_view_range  (offset  8)
//	u32 enable_pom           (offset 12)
//	i32 min_samples_pom      (offset 16)
//	i32 max_samples_pom      (offset 20)
//	vec2<f32> _pad0          (offset 24)
func (p ReliefParams) Marshal() []byte {
	buf := make([]byte, reliefParamsSize)
	putF32(buf[0:], p.SpecularFactor)
	putF32(buf[4:], p.HeightMapScale)
	putF32(buf[8:], p.ParallaxViewRange)
	if p.EnablePOM {
		binary.LittleEndian.PutUint32(buf[12:], 1)
	}
	binary.LittleEndian.PutUint32(buf[16:], uint32(p.MinSamplesPOM))
	binary.LittleEndian.PutUint32(buf[20:], uint32(p.MaxSamplesPOM))
	return buf
}

func reliefFromMaterial(mat *renderer.Material) ReliefParams {
	return ReliefParams{
		SpecularFactor:    mat.SpecularFactor,
		HeightMapScale:    mat.HeightScale,
		ParallaxViewRange: mat.ParallaxViewRange,
		EnablePOM:         mat.EnablePOM,
		MinSamplesPOM:     mat.MinSamplesPOM,
		MaxSamplesPOM:     mat.MaxSamplesPOM,
	}
}

// shadowObjectCallback stages the world matrix and the current shadow camera.
//
// Layout:
//
//	mat4x4<f32> world      (offset   0)
//	mat4x4<f32> view_proj  (offset  64)
//	vec3<f32>   light_pos  (offset 128)
//	f32         inv_range  (offset 140)
func shadowObjectCallback(rs renderer.RenderSystem, s *renderer.ShaderClass, obj renderer.DrawObject) {
	cam := rs.Camera()
	if cam == nil {
		return
	}
	buf := make([]byte, shadowObjectSize)
	putMat4(buf[0:], obj.World)
	putMat4(buf[64:], cam.ViewProjectionMatrix())
	putVec3(buf[128:], cam.Position())
	putF32(buf[140:], 1/light.ShadowFar)
	_ = rs.SetShaderConstants(s, 0, buf)
}

// geometryObjectCallback stages the transforms of one G-Buffer draw.
//
// Layout:
//
//	mat4x4<f32> world          (offset   0)
//	mat4x4<f32> world_view_proj(offset  64)
//	mat4x4<f32> normal_matrix  (offset 128)
//	mat4x4<f32> tex_matrix     (offset 192)
//	vec3<f32>   view_position  (offset 256)
//	f32         _pad0          (offset 268)
func geometryObjectCallback(rs renderer.RenderSystem, s *renderer.ShaderClass, obj renderer.DrawObject) {
	cam := rs.Camera()
	if cam == nil {
		return
	}
	buf := make([]byte, geometryObjectSize)
	putMat4(buf[0:], obj.World)
	putMat4(buf[64:], cam.ViewProjectionMatrix().Mul4(obj.World))
	putMat4(buf[128:], obj.World.Inv().Transpose())
	texMatrix := mgl32.Ident4()
	if obj.Material != nil && obj.Material.TextureMatrix != (mgl32.Mat4{}) {
		texMatrix = obj.Material.TextureMatrix
	}
	putMat4(buf[192:], texMatrix)
	putVec3(buf[256:], cam.Position())
	_ = rs.SetShaderConstants(s, 0, buf)
}

// surfaceCallback stages the relief block of the G-Buffer shader from the
// material, or from the renderer defaults for objects without one.
type surfaceCallback struct {
	defaults func() ReliefParams
}

func (c surfaceCallback) OnSurface(rs renderer.RenderSystem, s *renderer.ShaderClass, mat *renderer.Material) {
	params := c.defaults()
	if mat != nil {
		params = reliefFromMaterial(mat)
	}
	_ = rs.SetShaderConstants(s, 1, params.Marshal())
}

func putF32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func putU32(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

func putVec2(buf []byte, v mgl32.Vec2) {
	putF32(buf[0:], v[0])
	putF32(buf[4:], v[1])
}

func putVec3(buf []byte, v mgl32.Vec3) {
	putF32(buf[0:], v[0])
	putF32(buf[4:], v[1])
	putF32(buf[8:], v[2])
}

func putMat4(buf []byte, m mgl32.Mat4) {
	for i, v := range m {
		putF32(buf[i*4:], v)
	}
}
