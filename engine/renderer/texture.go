package renderer

import (
	"github.com/Carmen-Shannon/oxy-deferred/common"
)

// TextureFormat is the pixel format of a texture.
type TextureFormat int

const (
	// FormatRGBA8 is 8-bit normalized RGBA, used for colour targets and material textures.
	FormatRGBA8 TextureFormat = iota
	// FormatRGBA16F is half-float RGBA, used for normals, depth and HDR lighting.
	FormatRGBA16F
	// FormatRG16F is half-float two-channel, used for variance shadow maps.
	FormatRG16F
	// FormatR32F is single-channel float, used for plain shadow depth.
	FormatR32F
	// FormatDepth32F is the depth attachment format.
	FormatDepth32F
)

// IsDepth reports whether the format is a depth attachment format.
func (f TextureFormat) IsDepth() bool {
	return f == FormatDepth32F
}

// BytesPerPixel returns the size of one texel.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBA16F:
		return 8
	case FormatRGBA8, FormatRG16F, FormatR32F, FormatDepth32F:
		return 4
	}
	return 4
}

// Filterable reports whether the format can be sampled with a filtering sampler
// without optional device features.
func (f TextureFormat) Filterable() bool {
	return f != FormatR32F && f != FormatDepth32F
}

// TextureDimension is the shape of a texture.
type TextureDimension int

const (
	// Texture2D is a single 2D image.
	Texture2D TextureDimension = iota
	// Texture2DArray is an array of 2D layers.
	Texture2DArray
	// TextureCubeArray is an array of cube maps, six layers per cube.
	TextureCubeArray
)

// TextureConfig describes a texture to create.
type TextureConfig struct {
	// Label names the texture in debug output.
	Label string
	// Size is the width and height of one layer.
	Size common.Size2D
	// Layers is the number of array layers. Zero means one. Cube arrays need a
	// multiple of six.
	Layers int
	// Dimension is the texture shape.
	Dimension TextureDimension
	// Format is the pixel format.
	Format TextureFormat
	// RenderTarget allows the texture to be bound as a render target.
	RenderTarget bool
	// MultiSamples is the MSAA sample count of a render target. Zero or one
	// disables multisampling.
	MultiSamples int
}

// LayerCount returns Layers, treating zero as one.
func (c TextureConfig) LayerCount() int {
	return max(c.Layers, 1)
}

// Validate checks the configuration for values no backend can create.
//
// Returns:
//   - error: ErrInvalidTextureConfig wrapped with the reason, or nil
func (c TextureConfig) Validate() error {
	if !c.Size.Valid() {
		return wrapConfigErr(c.Label, "size %s must be positive", c.Size)
	}
	if c.Dimension == TextureCubeArray && c.LayerCount()%6 != 0 {
		return wrapConfigErr(c.Label, "cube array layers %d must be a multiple of 6", c.Layers)
	}
	if c.MultiSamples > 1 && !c.RenderTarget {
		return wrapConfigErr(c.Label, "multisampled textures must be render targets")
	}
	if c.MultiSamples > 1 && c.Dimension != Texture2D {
		return wrapConfigErr(c.Label, "multisampled textures must be 2D")
	}
	return nil
}

// Texture is a texture owned by a RenderSystem. The zero value and nil are
// both "no texture".
type Texture struct {
	handle Handle
	config TextureConfig
}

// NewTexture wraps a handle issued by a RenderSystem implementation.
//
// Parameters:
//   - h: the handle
//   - cfg: the configuration the texture was created with
//
// Returns:
//   - *Texture: the texture
func NewTexture(h Handle, cfg TextureConfig) *Texture {
	return &Texture{handle: h, config: cfg}
}

// Handle returns the resource handle, or the zero handle for nil.
func (t *Texture) Handle() Handle {
	if t == nil {
		return Handle{}
	}
	return t.handle
}

// Config returns the creation configuration.
func (t *Texture) Config() TextureConfig {
	if t == nil {
		return TextureConfig{}
	}
	return t.config
}

// Size returns the size of one layer.
func (t *Texture) Size() common.Size2D {
	return t.Config().Size
}

// IsRenderTarget reports whether the texture can be bound as a render target.
func (t *Texture) IsRenderTarget() bool {
	return t.Config().RenderTarget
}

// RenderTarget selects one layer of a texture as a render target attachment.
type RenderTarget struct {
	Texture *Texture
	Layer   int
}

// Target selects layer 0 of t.
//
// Parameters:
//   - t: the texture
//
// Returns:
//   - RenderTarget: the attachment
func Target(t *Texture) RenderTarget {
	return RenderTarget{Texture: t}
}

// BufferKind selects how a buffer is bound to shaders.
type BufferKind int

const (
	// BufferUniform is a small constant buffer.
	BufferUniform BufferKind = iota
	// BufferStorage is a read-only storage buffer, used for light lists.
	BufferStorage
)

// BufferConfig describes a GPU buffer to create.
type BufferConfig struct {
	Label string
	Kind  BufferKind
	Size  int
}

// Buffer is a GPU buffer owned by a RenderSystem.
type Buffer struct {
	handle Handle
	config BufferConfig
}

// NewBuffer wraps a handle issued by a RenderSystem implementation.
//
// Parameters:
//   - h: the handle
//   - cfg: the configuration the buffer was created with
//
// Returns:
//   - *Buffer: the buffer
func NewBuffer(h Handle, cfg BufferConfig) *Buffer {
	return &Buffer{handle: h, config: cfg}
}

// Handle returns the resource handle, or the zero handle for nil.
func (b *Buffer) Handle() Handle {
	if b == nil {
		return Handle{}
	}
	return b.handle
}

// Config returns the creation configuration.
func (b *Buffer) Config() BufferConfig {
	if b == nil {
		return BufferConfig{}
	}
	return b.config
}
