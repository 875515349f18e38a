package deferred

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBloomKernel_Symmetric(t *testing.T) {
	h, v := BloomKernel(common.Size2D{Width: 200, Height: 100})

	mid := BloomFilterSize / 2
	assert.Zero(t, h[mid].Offset.X())
	for i := range mid {
		j := BloomFilterSize - 1 - i
		assert.InDelta(t, h[i].Weight, h[j].Weight, 1e-7)
		assert.InDelta(t, -h[i].Offset.X(), h[j].Offset.X(), 1e-7)
		assert.Less(t, h[i].Weight, h[i+1].Weight, "weights rise towards the centre")
		assert.Zero(t, h[i].Offset.Y())
		assert.Zero(t, v[i].Offset.X())
	}
	// One texel per tap.
	assert.InDelta(t, 1.0/200, h[mid+1].Offset.X(), 1e-7)
	assert.InDelta(t, 1.0/100, v[mid+1].Offset.Y(), 1e-7)
	assert.Equal(t, h[mid].Weight, v[mid].Weight)
}

func newTestBloom(t *testing.T) (*BloomFilter, *renderertest.Recorder) {
	t.Helper()
	rs := renderertest.NewRecorder(testWidth, testHeight)
	b := NewBloomFilter(rs, common.NewNopLogger())
	require.NoError(t, b.Create(shader.NewPreProcessor(), common.Size2D{Width: testWidth, Height: testHeight}, true))
	return b, rs
}

func TestBloomFilter_CreateAndRelease(t *testing.T) {
	b, rs := newTestBloom(t)

	assert.True(t, b.Active())
	assert.Equal(t, 4, rs.LiveTextures())
	assert.Equal(t, 3, rs.LiveShaders())
	targets := b.InputTargets()
	require.Len(t, targets, 2)
	assert.Equal(t, renderer.FormatRGBA16F, targets[0].Texture.Config().Format)

	require.NoError(t, b.Release())
	require.NoError(t, b.Release())
	assert.False(t, b.Active())
	assert.Zero(t, rs.LiveTextures())
	assert.Zero(t, rs.LiveShaders())
	assert.ErrorIs(t, b.Render(nil), ErrResourceReleased)
}

func TestBloomFilter_RenderPasses(t *testing.T) {
	b, rs := newTestBloom(t)
	rs.Reset()

	require.NoError(t, b.Render(nil))

	quads := rs.EventsOf(renderertest.EventDrawQuad)
	require.Len(t, quads, 3)
	assert.Equal(t, "bloom_blur_h", quads[0].Shader.Name())
	assert.Equal(t, "bloom_blur_v", quads[1].Shader.Name())
	assert.Equal(t, "bloom_composite", quads[2].Shader.Name())
	assert.Empty(t, quads[2].Targets, "composite goes to the back buffer")
	for _, q := range quads[:2] {
		require.Len(t, q.Targets, 1)
		assert.Equal(t, common.Size2D{Width: testWidth / 2, Height: testHeight / 2}, q.Targets[0].Texture.Size())
	}
	assert.Empty(t, rs.BoundSlots())
}

func TestBloomFilter_SetFactor(t *testing.T) {
	b, rs := newTestBloom(t)
	b.SetFactor(2.5)

	assert.Equal(t, float32(2.5), b.Factor())
	rs.Reset()
	require.NoError(t, b.Render(nil))
	composite := rs.EventsOf(renderertest.EventDrawQuad)[2].Shader
	data := rs.Constants(composite, 0)
	assert.Equal(t, float32(2.5), math.Float32frombits(binary.LittleEndian.Uint32(data)))
}

func TestBloomFilter_RejectsEmptyResolution(t *testing.T) {
	b := NewBloomFilter(renderertest.NewRecorder(8, 8), common.NewNopLogger())
	assert.ErrorIs(t, b.Create(shader.NewPreProcessor(), common.Size2D{}, false), ErrInvalidResolution)
	assert.False(t, b.Active())
}
