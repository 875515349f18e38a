package renderer

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexSize is the size in bytes of one marshaled Vertex.
const VertexSize = 44

// Vertex is the engine vertex format consumed by the G-Buffer and shadow shaders.
//
// Layout:
//
//	vec3<f32> position  (12 bytes, offset  0, location 0)
//	vec3<f32> normal    (12 bytes, offset 12, location 1)
//	vec3<f32> tangent   (12 bytes, offset 24, location 2)
//	vec2<f32> uv        ( 8 bytes, offset 36, location 3)
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Tangent  mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Mesh is indexed triangle geometry. Bounds are computed on construction for
// frustum culling.
type Mesh struct {
	Label    string
	Vertices []Vertex
	Indices  []uint32

	center mgl32.Vec3
	radius float32
	handle Handle
}

// NewMesh creates a mesh and computes its bounding sphere.
//
// Parameters:
//   - label: debug name
//   - vertices: the vertices
//   - indices: triangle list indices
//
// Returns:
//   - *Mesh: the mesh
func NewMesh(label string, vertices []Vertex, indices []uint32) *Mesh {
	m := &Mesh{Label: label, Vertices: vertices, Indices: indices}
	m.computeBounds()
	return m
}

func (m *Mesh) computeBounds() {
	if len(m.Vertices) == 0 {
		return
	}
	lo, hi := m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for i := range 3 {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	m.center = lo.Add(hi).Mul(0.5)
	for _, v := range m.Vertices {
		m.radius = max(m.radius, v.Position.Sub(m.center).Len())
	}
}

// Bounds returns the object-space bounding sphere.
//
// Returns:
//   - mgl32.Vec3: the sphere center
//   - float32: the sphere radius
func (m *Mesh) Bounds() (mgl32.Vec3, float32) {
	return m.center, m.radius
}

// Handle returns the GPU handle assigned by UploadMesh, or the zero handle.
func (m *Mesh) Handle() Handle {
	return m.handle
}

// SetHandle is called by RenderSystem implementations from UploadMesh and DeleteMesh.
func (m *Mesh) SetHandle(h Handle) {
	m.handle = h
}

// MarshalVertices packs the vertices into the GPU vertex buffer layout.
//
// Returns:
//   - []byte: VertexSize bytes per vertex
func (m *Mesh) MarshalVertices() []byte {
	buf := make([]byte, len(m.Vertices)*VertexSize)
	for i, v := range m.Vertices {
		o := i * VertexSize
		floats := [11]float32{
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.Tangent[0], v.Tangent[1], v.Tangent[2],
			v.TexCoord[0], v.TexCoord[1],
		}
		for j, f := range floats {
			binary.LittleEndian.PutUint32(buf[o+j*4:], math.Float32bits(f))
		}
	}
	return buf
}

// MarshalIndices packs the indices as little-endian uint32.
func (m *Mesh) MarshalIndices() []byte {
	buf := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// Material carries the texture layers and shading parameters of an object.
// Layers are bound at resource slots 0..n-1 in order, matching the texture
// layer model of the shader that draws the object.
type Material struct {
	Name   string
	Layers []*Texture
	// Shader draws the object when no global shader class is set.
	Shader *ShaderClass

	// TextureMatrix transforms texture coordinates when the renderer uses
	// texture matrices. The zero matrix means identity.
	TextureMatrix mgl32.Mat4

	SpecularFactor float32
	HeightScale    float32
	// Relief mapping parameters used when parallax mapping is enabled.
	ParallaxViewRange float32
	EnablePOM         bool
	MinSamplesPOM     int32
	MaxSamplesPOM     int32
}

// DefaultMaterial returns a material with the relief defaults of the G-Buffer shader.
func DefaultMaterial(layers ...*Texture) *Material {
	return &Material{
		Layers:            layers,
		TextureMatrix:     mgl32.Ident4(),
		SpecularFactor:    1.0,
		HeightScale:       0.015,
		ParallaxViewRange: 2.0,
		MinSamplesPOM:     0,
		MaxSamplesPOM:     50,
	}
}

// DrawObject is one mesh instance submitted to DrawMesh.
type DrawObject struct {
	Mesh     *Mesh
	World    mgl32.Mat4
	Material *Material
}
