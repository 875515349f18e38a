package renderer

import (
	"encoding/binary"
	"fmt"
	"math"
)

// copyRowAlignment is the WebGPU bytesPerRow alignment for texture to buffer copies.
const copyRowAlignment = 256

// alignedRowPitch returns the padded row size of a texture copy.
//
// Parameters:
//   - width: the texture width in pixels
//   - format: the texture format
//
// Returns:
//   - int: the row pitch in bytes, a multiple of 256
func alignedRowPitch(width int, format TextureFormat) int {
	return (width*format.BytesPerPixel() + copyRowAlignment - 1) &^ (copyRowAlignment - 1)
}

// depthChannel returns the byte offset and size of the depth value inside one texel.
func depthChannel(format TextureFormat) (offset, size int, err error) {
	switch format {
	case FormatRGBA16F:
		return 6, 2, nil
	case FormatRG16F:
		return 0, 2, nil
	case FormatR32F, FormatDepth32F:
		return 0, 4, nil
	}
	return 0, 0, ErrNoDepthChannel
}

// decodeDepth unpacks the depth channel of a padded texture readback.
//
// Parameters:
//   - data: the mapped readback, rowPitch bytes per row
//   - format: the texture format
//   - width: the texture width in pixels
//   - height: the texture height in pixels
//   - rowPitch: the padded row size in bytes
//
// Returns:
//   - []float32: width*height depth values in row-major order
//   - error: ErrNoDepthChannel, or a size mismatch
func decodeDepth(data []byte, format TextureFormat, width, height, rowPitch int) ([]float32, error) {
	offset, size, err := depthChannel(format)
	if err != nil {
		return nil, err
	}
	texel := format.BytesPerPixel()
	if rowPitch < width*texel || len(data) < (height-1)*rowPitch+width*texel {
		return nil, fmt.Errorf("depth readback of %d bytes too small for %dx%d", len(data), width, height)
	}
	out := make([]float32, width*height)
	for y := range height {
		row := data[y*rowPitch:]
		for x := range width {
			b := row[x*texel+offset:]
			if size == 2 {
				out[y*width+x] = halfToFloat32(binary.LittleEndian.Uint16(b))
			} else {
				out[y*width+x] = math.Float32frombits(binary.LittleEndian.Uint32(b))
			}
		}
	}
	return out, nil
}

// halfToFloat32 widens an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff
	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal: normalize into the float32 range
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}
