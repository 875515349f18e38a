package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Forward is the local forward axis of cameras and lights. The engine is
// right-handed, so objects look down -Z in their own space.
var Forward = mgl32.Vec3{0, 0, -1}

// Perspective creates a right-handed perspective projection matrix that maps
// depth into the WebGPU clip range [0, 1].
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the projection matrix (column-major)
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1.0
	m[14] = (near * far) / (near - far)
	return m
}

// Orthographic creates a right-handed orthographic projection matrix with depth
// mapped into [0, 1].
//
// Parameters:
//   - left, right, bottom, top: view volume extents
//   - near, far: clipping plane distances
//
// Returns:
//   - mgl32.Mat4: the projection matrix (column-major)
func Orthographic(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	lr := 1.0 / (left - right)
	bt := 1.0 / (bottom - top)
	nf := 1.0 / (near - far)
	m := mgl32.Ident4()
	m[0] = -2 * lr
	m[5] = -2 * bt
	m[10] = nf
	m[12] = (left + right) * lr
	m[13] = (top + bottom) * bt
	m[14] = near * nf
	return m
}

// TransformPosition returns the translation part of an affine transform.
//
// Parameters:
//   - m: the world transform
//
// Returns:
//   - mgl32.Vec3: the world-space position
func TransformPosition(m mgl32.Mat4) mgl32.Vec3 {
	return m.Col(3).Vec3()
}

// TransformDirection rotates the local Forward axis by a transform and
// normalizes the result. Scale and translation are ignored.
//
// Parameters:
//   - m: the world transform
//
// Returns:
//   - mgl32.Vec3: unit-length world-space direction, or Forward when degenerate
func TransformDirection(m mgl32.Mat4) mgl32.Vec3 {
	d := m.Mat3().Mul3x1(Forward)
	if d.Len() == 0 {
		return Forward
	}
	return d.Normalize()
}

// WithoutTranslation clears the translation column of a matrix.
//
// Parameters:
//   - m: the source matrix
//
// Returns:
//   - mgl32.Mat4: a copy of m with zero translation
func WithoutTranslation(m mgl32.Mat4) mgl32.Mat4 {
	m[12], m[13], m[14] = 0, 0, 0
	return m
}

// LookTowards builds a view matrix for an eye looking along dir. The up vector
// switches to +X when dir is nearly vertical.
//
// Parameters:
//   - eye: the eye position
//   - dir: the view direction (need not be normalized)
//
// Returns:
//   - mgl32.Mat4: the view matrix
func LookTowards(eye, dir mgl32.Vec3) mgl32.Mat4 {
	up := mgl32.Vec3{0, 1, 0}
	if absF32(dir.Normalize().Y()) > 0.99 {
		up = mgl32.Vec3{1, 0, 0}
	}
	return mgl32.LookAtV(eye, eye.Add(dir), up)
}

// NextPowerOfTwo rounds n up to the next power of two. Values below 1 yield 1.
//
// Parameters:
//   - n: the value to round
//
// Returns:
//   - int: the smallest power of two >= n
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// CeilDiv divides a by b rounding up. b must be positive.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// MatrixArray copies a matrix into a plain array for GPU marshaling.
func MatrixArray(m mgl32.Mat4) [16]float32 {
	return [16]float32(m)
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
