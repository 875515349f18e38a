package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrInvalidTextureConfig is returned when a texture configuration cannot be created.
	ErrInvalidTextureConfig = errors.New("invalid texture config")

	// ErrInvalidBufferConfig is returned when a buffer configuration cannot be created.
	ErrInvalidBufferConfig = errors.New("invalid buffer config")

	// ErrStaleHandle is returned when a resource handle no longer resolves, either
	// because the resource was deleted or because it was never issued.
	ErrStaleHandle = errors.New("stale resource handle")

	// ErrUnsupportedBackend is returned when a shader class targets a shading
	// language the render system cannot compile.
	ErrUnsupportedBackend = errors.New("unsupported shader backend")

	// ErrNotRenderTarget is returned when a texture created without the
	// RenderTarget flag is bound as an attachment.
	ErrNotRenderTarget = errors.New("texture is not a render target")

	// ErrNoDepthChannel is returned by ReadDepth for formats that carry no depth.
	ErrNoDepthChannel = errors.New("texture format has no depth channel")
)

// RenderMode selects how subsequent draws are set up.
type RenderMode int

const (
	// ModeScene draws 3D geometry with the camera's view and projection and depth testing.
	ModeScene RenderMode = iota
	// Mode2D draws screen-space passes (full-screen quads) without depth testing.
	Mode2D
)

func (m RenderMode) String() string {
	if m == Mode2D {
		return "2D"
	}
	return "Scene"
}

// RenderSystem is the capability interface the renderer consumes: resource
// creation, render target binding, shader classes with a global override, and
// draw calls.
//
// Every resource is addressed by a generation-counted handle. Deleting a
// resource twice, or using a deleted resource, returns ErrStaleHandle instead of
// touching whatever reused the slot.
//
// Calls are expected from the render thread only.
type RenderSystem interface {
	// Backend reports the shading languages the render system can compile.
	//
	// Returns:
	//   - ShaderBackend: a mask of supported backends
	Backend() ShaderBackend

	// Resolution returns the current size of the back buffer.
	//
	// Returns:
	//   - common.Size2D: the back buffer size in pixels
	Resolution() common.Size2D

	// CreateTexture creates a texture.
	//
	// Parameters:
	//   - cfg: the texture configuration
	//
	// Returns:
	//   - *Texture: the texture
	//   - error: ErrInvalidTextureConfig or a device error
	CreateTexture(cfg TextureConfig) (*Texture, error)

	// WriteTexture uploads RGBA8 pixels into one layer of a texture.
	//
	// Parameters:
	//   - t: the destination texture
	//   - layer: the array layer
	//   - data: the pixels
	//
	// Returns:
	//   - error: ErrStaleHandle or a size mismatch
	WriteTexture(t *Texture, layer int, data common.TextureStagingData) error

	// DeleteTexture releases a texture.
	//
	// Parameters:
	//   - t: the texture
	//
	// Returns:
	//   - error: ErrStaleHandle when the texture was already deleted
	DeleteTexture(t *Texture) error

	// CreateBuffer creates a GPU buffer.
	//
	// Parameters:
	//   - cfg: the buffer configuration
	//
	// Returns:
	//   - *Buffer: the buffer
	//   - error: ErrInvalidBufferConfig or a device error
	CreateBuffer(cfg BufferConfig) (*Buffer, error)

	// WriteBuffer writes data into a buffer at a byte offset.
	//
	// Parameters:
	//   - b: the buffer
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrStaleHandle or an out-of-range write
	WriteBuffer(b *Buffer, offset int, data []byte) error

	// DeleteBuffer releases a buffer.
	//
	// Parameters:
	//   - b: the buffer
	//
	// Returns:
	//   - error: ErrStaleHandle when the buffer was already deleted
	DeleteBuffer(b *Buffer) error

	// CreateShaderClass compiles and links a shader class.
	//
	// Parameters:
	//   - desc: the shader class descriptor
	//
	// Returns:
	//   - *ShaderClass: the shader class
	//   - error: ErrUnsupportedBackend or a compile error
	CreateShaderClass(desc ShaderClassDescriptor) (*ShaderClass, error)

	// DeleteShaderClass releases a shader class. When the shader class is the
	// current global shader class the override is cleared.
	//
	// Parameters:
	//   - s: the shader class
	//
	// Returns:
	//   - error: ErrStaleHandle when the shader class was already deleted
	DeleteShaderClass(s *ShaderClass) error

	// SetShaderConstants stages the contents of one constant block of a shader
	// class. Staged contents are captured by the next draw that uses the shader
	// class, so per-object callbacks can set constants between draws.
	//
	// Parameters:
	//   - s: the shader class
	//   - block: the constant block index
	//   - data: the block contents
	//
	// Returns:
	//   - error: ErrStaleHandle or an invalid block
	SetShaderConstants(s *ShaderClass, block int, data []byte) error

	// GlobalShaderClass returns the shader class that overrides every mesh's own
	// shader, or nil.
	GlobalShaderClass() *ShaderClass

	// SetGlobalShaderClass sets or clears (nil) the global shader override.
	SetGlobalShaderClass(s *ShaderClass)

	// UploadMesh creates the vertex and index buffers of a mesh.
	//
	// Parameters:
	//   - m: the mesh
	//
	// Returns:
	//   - error: an error if buffer creation fails
	UploadMesh(m *Mesh) error

	// DeleteMesh releases the GPU buffers of a mesh.
	//
	// Parameters:
	//   - m: the mesh
	//
	// Returns:
	//   - error: ErrStaleHandle when the mesh was not uploaded
	DeleteMesh(m *Mesh) error

	// SetRenderTargets binds the attachments of subsequent draws. Colour
	// attachments are bound in order, a Depth32F texture becomes the depth
	// attachment. No targets selects the back buffer.
	//
	// Parameters:
	//   - targets: the attachments
	//
	// Returns:
	//   - error: ErrNotRenderTarget or ErrStaleHandle
	SetRenderTargets(targets ...RenderTarget) error

	// ClearBuffers clears every bound colour attachment to color and depth to 1.
	ClearBuffers(color mgl32.Vec4)

	// SetRenderMode selects scene or 2D drawing.
	SetRenderMode(mode RenderMode)

	// RenderMode returns the current render mode.
	RenderMode() RenderMode

	// SetCamera sets the camera used by scene-mode draws and object callbacks.
	SetCamera(c camera.Camera)

	// Camera returns the current camera, or nil.
	Camera() camera.Camera

	// BindTexture binds a texture at a resource slot for subsequent draws.
	BindTexture(slot int, t *Texture)

	// UnbindTexture clears a texture slot.
	UnbindTexture(slot int)

	// BindBuffer binds a storage or uniform buffer at a resource slot.
	BindBuffer(slot int, b *Buffer)

	// UnbindBuffer clears a buffer slot.
	UnbindBuffer(slot int)

	// DrawMesh draws one object. The global shader class wins over the
	// material's shader class; the chosen shader's object and surface callbacks
	// run before the draw, and the material's texture layers are bound at slots
	// 0..n-1 for the duration of the draw.
	//
	// Parameters:
	//   - obj: the object to draw
	DrawMesh(obj DrawObject)

	// DrawFullscreenQuad draws a screen-covering triangle pair with a shader class.
	//
	// Parameters:
	//   - s: the shader class
	DrawFullscreenQuad(s *ShaderClass)

	// DrawProcedural draws vertices generated in the shader.
	//
	// Parameters:
	//   - s: the shader class
	//   - prim: the primitive topology
	//   - vertexCount: vertices per instance
	//   - instanceCount: number of instances
	DrawProcedural(s *ShaderClass, prim Primitive, vertexCount, instanceCount int)
}

// DepthReader is implemented by render systems that can hand the CPU a copy of
// a texture's depth channel, one value per pixel in row-major order. The
// channel is alpha for RGBA16F (the G-Buffer's linear view depth) and the
// first channel otherwise. The tiled light grid uses it to bound each tile's
// depth range.
type DepthReader interface {
	ReadDepth(t *Texture) ([]float32, error)
}

// EffectiveShader picks the shader class a mesh is drawn with.
//
// Parameters:
//   - global: the global override, or nil
//   - mat: the material, or nil
//
// Returns:
//   - *ShaderClass: global when set, else the material's shader class, else nil
func EffectiveShader(global *ShaderClass, mat *Material) *ShaderClass {
	if global != nil {
		return global
	}
	if mat != nil {
		return mat.Shader
	}
	return nil
}

// RunCallbacks invokes the object and surface callbacks of a shader class for
// one draw. RenderSystem implementations call it from DrawMesh.
//
// Parameters:
//   - rs: the render system
//   - s: the shader class
//   - obj: the object being drawn
func RunCallbacks(rs RenderSystem, s *ShaderClass, obj DrawObject) {
	if s == nil {
		return
	}
	if cb := s.desc.ObjectCallback; cb != nil {
		cb.OnObject(rs, s, obj)
	}
	if cb := s.desc.SurfaceCallback; cb != nil {
		cb.OnSurface(rs, s, obj.Material)
	}
}

func wrapConfigErr(label, format string, args ...any) error {
	return fmt.Errorf("texture %q: %s: %w", label, fmt.Sprintf(format, args...), ErrInvalidTextureConfig)
}
