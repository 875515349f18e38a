package renderer

// ShaderBackend selects the shading language a shader class is compiled from.
// It is a bitmask so a descriptor can carry sources for several backends; the
// RenderSystem compiles the one it supports.
type ShaderBackend uint32

const (
	// ShaderBackendWGSL selects WGSL sources compiled by a WebGPU device.
	ShaderBackendWGSL ShaderBackend = 1 << iota
)

// BindingKind describes what a shader expects at a resource slot.
type BindingKind int

const (
	// BindTexture2D is a filterable float 2D texture with a sampler.
	BindTexture2D BindingKind = iota
	// BindTexture2DArray is a 2D texture array with a sampler.
	BindTexture2DArray
	// BindTextureCubeArray is a cube map array with a sampler.
	BindTextureCubeArray
	// BindStorageBuffer is a read-only storage buffer.
	BindStorageBuffer
	// BindUniformBuffer is a uniform buffer bound by slot instead of owned by the shader.
	BindUniformBuffer
)

// Binding names one resource slot of a shader class. Texture slots occupy two
// bindings in group 1 (texture at 2*Slot, sampler at 2*Slot+1); buffer slots
// occupy binding 2*Slot.
type Binding struct {
	Name string
	Slot int
	Kind BindingKind
	// Unfilterable selects an unfilterable float sample type and a non-filtering
	// sampler, required for R32F textures.
	Unfilterable bool
}

// IsTexture reports whether the binding is a texture slot.
func (b Binding) IsTexture() bool {
	return b.Kind == BindTexture2D || b.Kind == BindTexture2DArray || b.Kind == BindTextureCubeArray
}

// VertexLayout selects the vertex input of a shader class.
type VertexLayout int

const (
	// VertexLayoutMesh consumes the engine Vertex format.
	VertexLayoutMesh VertexLayout = iota
	// VertexLayoutNone generates vertices in the shader (full-screen passes, points).
	VertexLayoutNone
)

// Primitive selects the primitive topology of procedural draws.
type Primitive int

const (
	PrimitiveTriangles Primitive = iota
	PrimitivePoints
)

// ShaderClassDescriptor describes a linked vertex+fragment program.
type ShaderClassDescriptor struct {
	// Name identifies the shader class in logs.
	Name string
	// Backend selects the shading language of the sources.
	Backend ShaderBackend
	// Source is the pre-processed shader source holding both entry points.
	Source string
	// VertexEntry and FragmentEntry name the entry points.
	VertexEntry   string
	FragmentEntry string
	// Options are the compiler options the source was pre-processed with.
	Options []string
	// Vertex selects the vertex input.
	Vertex VertexLayout
	// Depth enables depth testing and writing when the bound render targets
	// include a depth attachment. Pipelines are built lazily per attachment
	// layout, so the same shader class can draw into different target sets.
	Depth bool
	// Additive enables additive blending on every target.
	Additive bool
	// ConstantBlocks are the sizes in bytes of the uniform blocks owned by the
	// shader class, bound at group 0 in index order.
	ConstantBlocks []int
	// Bindings are the slot-bound resources, bound at group 1.
	Bindings []Binding
	// ObjectCallback runs before every mesh drawn with this shader class.
	ObjectCallback ObjectCallback
	// SurfaceCallback runs after the object callback with the material's texture layers.
	SurfaceCallback SurfaceCallback
}

// ShaderClass is a compiled shader class owned by a RenderSystem.
type ShaderClass struct {
	handle Handle
	desc   ShaderClassDescriptor
}

// NewShaderClass wraps a handle issued by a RenderSystem implementation.
//
// Parameters:
//   - h: the handle
//   - desc: the descriptor the shader class was built from
//
// Returns:
//   - *ShaderClass: the shader class
func NewShaderClass(h Handle, desc ShaderClassDescriptor) *ShaderClass {
	return &ShaderClass{handle: h, desc: desc}
}

// Handle returns the resource handle, or the zero handle for nil.
func (s *ShaderClass) Handle() Handle {
	if s == nil {
		return Handle{}
	}
	return s.handle
}

// Name returns the descriptor name.
func (s *ShaderClass) Name() string {
	if s == nil {
		return ""
	}
	return s.desc.Name
}

// Descriptor returns the descriptor the shader class was built from.
func (s *ShaderClass) Descriptor() ShaderClassDescriptor {
	if s == nil {
		return ShaderClassDescriptor{}
	}
	return s.desc
}

// ObjectCallback sets per-object shader constants before a mesh is drawn,
// typically the world and world-view-projection matrices.
type ObjectCallback interface {
	OnObject(rs RenderSystem, shader *ShaderClass, obj DrawObject)
}

// SurfaceCallback sets per-material shader constants from the material's
// texture layers before a mesh is drawn.
type SurfaceCallback interface {
	OnSurface(rs RenderSystem, shader *ShaderClass, mat *Material)
}

// ObjectCallbackFunc adapts a function to ObjectCallback.
type ObjectCallbackFunc func(rs RenderSystem, shader *ShaderClass, obj DrawObject)

func (f ObjectCallbackFunc) OnObject(rs RenderSystem, shader *ShaderClass, obj DrawObject) {
	f(rs, shader, obj)
}

// SurfaceCallbackFunc adapts a function to SurfaceCallback.
type SurfaceCallbackFunc func(rs RenderSystem, shader *ShaderClass, mat *Material)

func (f SurfaceCallbackFunc) OnSurface(rs RenderSystem, shader *ShaderClass, mat *Material) {
	f(rs, shader, mat)
}
