package renderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleArena_StaleHandleRejected(t *testing.T) {
	arena := NewHandleArena[string]()

	h := arena.Insert("shadow")
	require.False(t, h.IsZero())

	v, ok := arena.Remove(h)
	require.True(t, ok)
	assert.Equal(t, "shadow", v)

	// Second delete of the same handle must not resolve.
	_, ok = arena.Remove(h)
	assert.False(t, ok)

	// The freed slot is reused with a new generation.
	h2 := arena.Insert("grid")
	assert.NotEqual(t, h, h2)
	_, ok = arena.Get(h)
	assert.False(t, ok)
	v, ok = arena.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "grid", v)
	assert.Equal(t, 1, arena.Len())
}

func TestHandleArena_ZeroHandle(t *testing.T) {
	arena := NewHandleArena[int]()
	arena.Insert(1)

	_, ok := arena.Get(Handle{})
	assert.False(t, ok)
	_, ok = arena.Remove(Handle{})
	assert.False(t, ok)
}

func TestHandleArena_EachVisitsLiveOnly(t *testing.T) {
	arena := NewHandleArena[int]()
	a := arena.Insert(1)
	arena.Insert(2)
	arena.Insert(3)
	arena.Remove(a)

	var seen []int
	arena.Each(func(_ Handle, v int) { seen = append(seen, v) })
	assert.Equal(t, []int{2, 3}, seen)
}

func TestTextureConfig_Validate(t *testing.T) {
	size := common.Size2D{Width: 4, Height: 4}

	assert.NoError(t, TextureConfig{Size: size}.Validate())
	assert.ErrorIs(t, TextureConfig{}.Validate(), ErrInvalidTextureConfig)
	assert.ErrorIs(t, TextureConfig{Size: size, Dimension: TextureCubeArray, Layers: 5}.Validate(), ErrInvalidTextureConfig)
	assert.NoError(t, TextureConfig{Size: size, Dimension: TextureCubeArray, Layers: 12}.Validate())
	assert.ErrorIs(t, TextureConfig{Size: size, MultiSamples: 4}.Validate(), ErrInvalidTextureConfig)
	assert.NoError(t, TextureConfig{Size: size, MultiSamples: 4, RenderTarget: true}.Validate())
}

func TestEffectiveShader(t *testing.T) {
	global := NewShaderClass(Handle{index: 0, generation: 1}, ShaderClassDescriptor{Name: "global"})
	own := NewShaderClass(Handle{index: 1, generation: 1}, ShaderClassDescriptor{Name: "own"})
	mat := &Material{Shader: own}

	assert.Same(t, global, EffectiveShader(global, mat))
	assert.Same(t, own, EffectiveShader(nil, mat))
	assert.Nil(t, EffectiveShader(nil, nil))
}

func TestMesh_Bounds(t *testing.T) {
	m := NewMesh("quad", []Vertex{
		{Position: [3]float32{-1, -1, 0}},
		{Position: [3]float32{1, -1, 0}},
		{Position: [3]float32{1, 1, 0}},
		{Position: [3]float32{-1, 1, 0}},
	}, []uint32{0, 1, 2, 0, 2, 3})

	center, radius := m.Bounds()
	assert.InDelta(t, 0, center.Len(), 1e-6)
	assert.InDelta(t, 1.41421, radius, 1e-4)
	assert.Len(t, m.MarshalVertices(), 4*VertexSize)
	assert.Len(t, m.MarshalIndices(), 6*4)
}

func TestDecodeImage_AndResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 5))
	for y := range 5 {
		for x := range 3 {
			src.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	data, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), data.Width)
	assert.Equal(t, uint32(5), data.Height)
	assert.Len(t, data.Pixels, 3*5*4)

	resized := ResizeToPowerOfTwo(data)
	assert.Equal(t, uint32(4), resized.Width)
	assert.Equal(t, uint32(8), resized.Height)
	assert.Len(t, resized.Pixels, 4*8*4)
	assert.Equal(t, uint8(255), resized.Pixels[3])

	same := ResizeToPowerOfTwo(resized)
	assert.Equal(t, resized.Width, same.Width)
}
