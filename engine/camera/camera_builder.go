package camera

import (
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

// CameraBuilderOption is a functional option applied to a camera during NewCamera.
type CameraBuilderOption func(*cameraImpl)

// WithLookAt places the camera at eye looking at target.
//
// Parameters:
//   - eye: the eye position
//   - target: the look-at point
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera pose
func WithLookAt(eye, target mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = eye
		c.target = target
	}
}

// WithUp sets the camera's up vector.
//
// Parameters:
//   - up: the up vector
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's up vector
func WithUp(up mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = up
	}
}

// WithFov sets the camera's vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithRange sets the near and far clipping planes.
//
// Parameters:
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: a function that sets the clipping range
func WithRange(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}

// WithViewport sets the viewport size the camera renders to.
//
// Parameters:
//   - size: the viewport size in pixels
//
// Returns:
//   - CameraBuilderOption: a function that sets the viewport
func WithViewport(size common.Size2D) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.viewport = size
	}
}

// WithProjection replaces the perspective projection with a fixed matrix.
//
// Parameters:
//   - m: the projection matrix
//
// Returns:
//   - CameraBuilderOption: a function that sets the projection override
func WithProjection(m mgl32.Mat4) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.customProjection = &m
	}
}
