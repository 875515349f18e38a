// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "fmt"

// Size2D is a width/height pair in pixels, used for screen resolutions,
// render target sizes and shadow map sizes.
type Size2D struct {
	Width  int
	Height int
}

// Valid reports whether both dimensions are positive.
func (s Size2D) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Area returns Width * Height.
func (s Size2D) Area() int {
	return s.Width * s.Height
}

// Aspect returns Width / Height, or 1 when the height is zero.
func (s Size2D) Aspect() float32 {
	if s.Height == 0 {
		return 1
	}
	return float32(s.Width) / float32(s.Height)
}

// Half returns the size divided by two, never below 1x1.
func (s Size2D) Half() Size2D {
	return Size2D{Width: max(s.Width/2, 1), Height: max(s.Height/2, 1)}
}

func (s Size2D) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
type TextureStagingData struct {
	// Pixels is the RGBA8 pixel data, 4 bytes per pixel, row-major.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}
