package light

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// LightRecordSize is the size in bytes of one marshaled LightRecord.
const LightRecordSize = 48

// ExtendedLightRecordSize is the size in bytes of one marshaled ExtendedLightRecord.
const ExtendedLightRecordSize = 160

// ShadingDescSize is the size in bytes of the marshaled ShadingDesc.
const ShadingDescSize = 32

// GridDescSize is the size in bytes of the marshaled GridDesc.
const GridDescSize = 32

// LightRecordSource is the canonical WGSL definition of the LightRecord struct.
//
//go:embed assets/light_record.wgsl
var LightRecordSource string

// ExtendedLightRecordSource is the canonical WGSL definition of the LightExRecord struct.
//
//go:embed assets/light_ex_record.wgsl
var ExtendedLightRecordSource string

// ShadingDescSource is the canonical WGSL definition of the ShadingDesc struct.
//
//go:embed assets/shading_desc.wgsl
var ShadingDescSource string

// GridDescSource is the canonical WGSL definition of the GridDesc struct.
//
//go:embed assets/grid_desc.wgsl
var GridDescSource string

// LightRecord is the per-light entry of the light buffer read by the deferred
// shading pass. It is rebuilt every frame.
//
// Layout:
//
//	vec3<f32> position            (12 bytes, offset  0)
//	f32       inv_radius          ( 4 bytes, offset 12)
//	vec3<f32> color               (12 bytes, offset 16)
//	f32       _pad0               ( 4 bytes, offset 28)
//	i32       light_type          ( 4 bytes, offset 32)
//	i32       shadow_index        ( 4 bytes, offset 36)
//	i32       used_for_lightmaps  ( 4 bytes, offset 40)
//	i32       ex_id               ( 4 bytes, offset 44)
type LightRecord struct {
	Position         mgl32.Vec3
	InvRadius        float32 // 1/radius, or 1/NonVolumetricRadius
	Color            mgl32.Vec3
	Type             LightType
	ShadowIndex      int32 // -1 when no shadow map was rendered this frame
	UsedForLightmaps bool
	ExtIndex         int32 // -1 for point lights
}

// Marshal serializes the LightRecord into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (r *LightRecord) Marshal() []byte {
	buf := make([]byte, LightRecordSize)
	r.MarshalInto(buf)
	return buf
}

// MarshalInto writes the record into buf, which must hold LightRecordSize bytes.
//
// Parameters:
//   - buf: destination slice
func (r *LightRecord) MarshalInto(buf []byte) {
	putVec3(buf[0:12], r.Position)
	putF32(buf[12:16], r.InvRadius)
	putVec3(buf[16:28], r.Color)
	putF32(buf[28:32], 0)
	putI32(buf[32:36], int32(r.Type))
	putI32(buf[36:40], r.ShadowIndex)
	putI32(buf[40:44], boolI32(r.UsedForLightmaps))
	putI32(buf[44:48], r.ExtIndex)
}

// ExtendedLightRecord carries the data only spot and directional lights need.
// It lives in a parallel buffer indexed by LightRecord.ExtIndex.
//
// Layout:
//
//	mat4x4<f32> view_projection       (64 bytes, offset   0)
//	mat4x4<f32> inv_view_projection   (64 bytes, offset  64)
//	vec3<f32>   direction             (12 bytes, offset 128)
//	f32         _pad0                 ( 4 bytes, offset 140)
//	f32         spot_theta            ( 4 bytes, offset 144)
//	f32         spot_phi_minus_theta  ( 4 bytes, offset 148)
//	vec2<f32>   _pad1                 ( 8 bytes, offset 152)
type ExtendedLightRecord struct {
	ViewProjection    mgl32.Mat4
	InvViewProjection mgl32.Mat4 // zero unless global illumination is enabled
	Direction         mgl32.Vec3
	SpotTheta         float32 // inner cone angle in radians
	SpotPhiMinusTheta float32 // outer minus inner cone angle in radians
}

// Marshal serializes the ExtendedLightRecord into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 160-byte buffer ready for GPU upload
func (r *ExtendedLightRecord) Marshal() []byte {
	buf := make([]byte, ExtendedLightRecordSize)
	r.MarshalInto(buf)
	return buf
}

// MarshalInto writes the record into buf, which must hold ExtendedLightRecordSize bytes.
//
// Parameters:
//   - buf: destination slice
func (r *ExtendedLightRecord) MarshalInto(buf []byte) {
	putMat4(buf[0:64], r.ViewProjection)
	putMat4(buf[64:128], r.InvViewProjection)
	putVec3(buf[128:140], r.Direction)
	putF32(buf[140:144], 0)
	putF32(buf[144:148], r.SpotTheta)
	putF32(buf[148:152], r.SpotPhiMinusTheta)
	putF32(buf[152:156], 0)
	putF32(buf[156:160], 0)
}

// ShadingDesc holds the shading constants that change rarely (ambient, GI
// reflectivity) together with the per-frame light counts.
//
// Layout:
//
//	vec3<f32> ambient_color    (12 bytes, offset  0)
//	f32       gi_reflectivity  ( 4 bytes, offset 12)
//	u32       light_count      ( 4 bytes, offset 16)
//	u32       ex_light_count   ( 4 bytes, offset 20)
//	vec2<u32> _pad0            ( 8 bytes, offset 24)
type ShadingDesc struct {
	AmbientColor   mgl32.Vec3
	GIReflectivity float32
	LightCount     uint32
	ExLightCount   uint32
}

// Marshal serializes the ShadingDesc into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (d *ShadingDesc) Marshal() []byte {
	buf := make([]byte, ShadingDescSize)
	putVec3(buf[0:12], d.AmbientColor)
	putF32(buf[12:16], d.GIReflectivity)
	binary.LittleEndian.PutUint32(buf[16:20], d.LightCount)
	binary.LittleEndian.PutUint32(buf[20:24], d.ExLightCount)
	return buf
}

// GridDesc describes the tiled light grid dimensions to the shading shader.
//
// Layout:
//
//	vec2<u32> num_tiles       (8 bytes, offset  0)
//	vec2<f32> inv_num_tiles   (8 bytes, offset  8)
//	vec2<f32> inv_resolution  (8 bytes, offset 16)
//	vec2<f32> _pad0           (8 bytes, offset 24)
type GridDesc struct {
	NumTiles      [2]uint32
	InvNumTiles   mgl32.Vec2
	InvResolution mgl32.Vec2
}

// Marshal serializes the GridDesc into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (d *GridDesc) Marshal() []byte {
	buf := make([]byte, GridDescSize)
	binary.LittleEndian.PutUint32(buf[0:4], d.NumTiles[0])
	binary.LittleEndian.PutUint32(buf[4:8], d.NumTiles[1])
	putF32(buf[8:12], d.InvNumTiles[0])
	putF32(buf[12:16], d.InvNumTiles[1])
	putF32(buf[16:20], d.InvResolution[0])
	putF32(buf[20:24], d.InvResolution[1])
	return buf
}

// MarshalLightBuffers packs the first pointCount light records and the first
// extCount extended records into two byte slices sized exactly to the
// populated entries.
//
// Parameters:
//   - records: the light records of the frame
//   - pointCount: number of populated light records
//   - ext: the extended records of the frame
//   - extCount: number of populated extended records
//
// Returns:
//   - []byte: light buffer contents
//   - []byte: extended light buffer contents
func MarshalLightBuffers(records []LightRecord, pointCount int, ext []ExtendedLightRecord, extCount int) ([]byte, []byte) {
	pointCount = min(pointCount, len(records))
	extCount = min(extCount, len(ext))

	lights := make([]byte, pointCount*LightRecordSize)
	for i := 0; i < pointCount; i++ {
		records[i].MarshalInto(lights[i*LightRecordSize : (i+1)*LightRecordSize])
	}
	exLights := make([]byte, extCount*ExtendedLightRecordSize)
	for i := 0; i < extCount; i++ {
		ext[i].MarshalInto(exLights[i*ExtendedLightRecordSize : (i+1)*ExtendedLightRecordSize])
	}
	return lights, exLights
}

func putF32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func putI32(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf, uint32(v))
}

func putVec3(buf []byte, v mgl32.Vec3) {
	putF32(buf[0:4], v[0])
	putF32(buf[4:8], v[1])
	putF32(buf[8:12], v[2])
}

func putMat4(buf []byte, m mgl32.Mat4) {
	for i, v := range m {
		putF32(buf[i*4:i*4+4], v)
	}
}

func boolI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
