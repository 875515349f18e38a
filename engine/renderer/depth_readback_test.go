package renderer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHalfToFloat32(t *testing.T) {
	cases := map[uint16]float32{
		0x0000: 0,
		0x3c00: 1,
		0xc000: -2,
		0x3800: 0.5,
		0x7bff: 65504,
		0x0001: float32(math.Ldexp(1, -24)),
	}
	for bits, want := range cases {
		assert.Equal(t, want, halfToFloat32(bits), "0x%04x", bits)
	}
	assert.True(t, math.IsInf(float64(halfToFloat32(0x7c00)), 1))
}

func TestDecodeDepth_GBufferAlphaWithRowPadding(t *testing.T) {
	const width, height = 3, 2
	pitch := alignedRowPitch(width, FormatRGBA16F)
	require.Equal(t, 256, pitch)

	// depth 1, 2, 0.5 on row 0 and 4, 8, 16 on row 1, with normals in rgb
	halves := [][]uint16{{0x3c00, 0x4000, 0x3800}, {0x4400, 0x4800, 0x4c00}}
	data := make([]byte, pitch*height)
	for y, row := range halves {
		for x, h := range row {
			texel := data[y*pitch+x*8:]
			binary.LittleEndian.PutUint16(texel[0:], 0x3c00)
			binary.LittleEndian.PutUint16(texel[6:], h)
		}
	}

	depth, err := decodeDepth(data, FormatRGBA16F, width, height, pitch)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 0.5, 4, 8, 16}, depth)
}

func TestDecodeDepth_Float32(t *testing.T) {
	pitch := alignedRowPitch(2, FormatDepth32F)
	data := make([]byte, pitch*2)
	for i, v := range []float32{0.25, 0.75, 0.5, 1} {
		binary.LittleEndian.PutUint32(data[(i/2)*pitch+(i%2)*4:], math.Float32bits(v))
	}

	depth, err := decodeDepth(data, FormatDepth32F, 2, 2, pitch)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.75, 0.5, 1}, depth)
}

func TestDecodeDepth_Rejects(t *testing.T) {
	_, err := decodeDepth(make([]byte, 256), FormatRGBA8, 1, 1, 256)
	assert.ErrorIs(t, err, ErrNoDepthChannel)

	_, err = decodeDepth(make([]byte, 100), FormatRGBA16F, 4, 2, 256)
	assert.Error(t, err)
}
