package camera

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUCameraUniformSize is the size in bytes of the marshaled GPUCameraUniform.
const GPUCameraUniformSize = 224

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the per-frame camera block shared by the G-Buffer,
// shading and tile culling shaders.
//
// Layout:
//
//	mat4x4<f32> view_proj      (64 bytes, offset   0)
//	mat4x4<f32> inv_view_proj  (64 bytes, offset  64)
//	mat4x4<f32> view           (64 bytes, offset 128)
//	vec3<f32>   position       (12 bytes, offset 192)
//	f32         near           ( 4 bytes, offset 204)
//	f32         far            ( 4 bytes, offset 208)
//	f32 + vec2  padding        (12 bytes, offset 212)
type GPUCameraUniform struct {
	ViewProj    mgl32.Mat4
	InvViewProj mgl32.Mat4
	View        mgl32.Mat4
	Position    mgl32.Vec3
	Near        float32
	Far         float32
}

// UniformFromCamera captures the current matrices of a camera.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - GPUCameraUniform: the uniform contents
func UniformFromCamera(c Camera) GPUCameraUniform {
	return GPUCameraUniform{
		ViewProj:    c.ViewProjectionMatrix(),
		InvViewProj: c.InverseViewProjectionMatrix(),
		View:        c.ViewMatrix(),
		Position:    c.Position(),
		Near:        c.Near(),
		Far:         c.Far(),
	}
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, GPUCameraUniformSize)
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.ViewProj[i]))
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.InvViewProj[i]))
		binary.LittleEndian.PutUint32(buf[128+i*4:], math.Float32bits(g.View[i]))
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[192+i*4:], math.Float32bits(g.Position[i]))
	}
	binary.LittleEndian.PutUint32(buf[204:], math.Float32bits(g.Near))
	binary.LittleEndian.PutUint32(buf[208:], math.Float32bits(g.Far))
	return buf
}
