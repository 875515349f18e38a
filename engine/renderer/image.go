package renderer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// DecodeImage decodes PNG, JPEG or BMP bytes into RGBA8 staging data.
//
// Parameters:
//   - r: the encoded image
//
// Returns:
//   - common.TextureStagingData: row-major RGBA pixels
//   - error: error if decoding fails
func DecodeImage(r io.Reader) (common.TextureStagingData, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return common.TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}

// LoadImage reads and decodes an image file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - common.TextureStagingData: row-major RGBA pixels
//   - error: error if the file cannot be opened or decoded
func LoadImage(path string) (common.TextureStagingData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("failed to open texture file %s: %w", path, err)
	}
	img, err := DecodeImage(bytes.NewReader(data))
	if err != nil {
		return common.TextureStagingData{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ResizeToPowerOfTwo rescales staging data so both sides are powers of two,
// using Catmull-Rom filtering. Data that already fits is returned unchanged.
//
// Parameters:
//   - data: the source pixels
//
// Returns:
//   - common.TextureStagingData: the rescaled pixels
func ResizeToPowerOfTwo(data common.TextureStagingData) common.TextureStagingData {
	w, h := int(data.Width), int(data.Height)
	pw, ph := common.NextPowerOfTwo(w), common.NextPowerOfTwo(h)
	if w == pw && h == ph {
		return data
	}
	src := &image.RGBA{Pix: data.Pixels, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	dst := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return common.TextureStagingData{Pixels: dst.Pix, Width: uint32(pw), Height: uint32(ph)}
}

// CreateTextureFromImage creates an RGBA8 texture and uploads the pixels.
//
// Parameters:
//   - rs: the render system
//   - label: debug name
//   - data: the pixels
//
// Returns:
//   - *Texture: the texture
//   - error: creation or upload failure
func CreateTextureFromImage(rs RenderSystem, label string, data common.TextureStagingData) (*Texture, error) {
	tex, err := rs.CreateTexture(TextureConfig{
		Label: label,
		Size:  common.Size2D{Width: int(data.Width), Height: int(data.Height)},
	})
	if err != nil {
		return nil, err
	}
	if err := rs.WriteTexture(tex, 0, data); err != nil {
		_ = rs.DeleteTexture(tex)
		return nil, err
	}
	return tex, nil
}
