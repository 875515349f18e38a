package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	fov      float32
	near     float32
	far      float32
	viewport common.Size2D

	// customProjection replaces the perspective projection when set, e.g. for
	// orthographic shadow cameras.
	customProjection *mgl32.Mat4

	viewMatrix                  mgl32.Mat4
	projectionMatrix            mgl32.Mat4
	viewProjectionMatrix        mgl32.Mat4
	inverseViewProjectionMatrix mgl32.Mat4
}

// Camera defines the interface for a viewer or shadow camera.
// The camera holds a look-at pose and perspective settings and keeps its
// view, projection and view-projection matrices up to date on every change.
type Camera interface {
	// Position returns the world-space eye position.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// Target returns the world-space point the camera looks at.
	//
	// Returns:
	//   - mgl32.Vec3: the look-at target
	Target() mgl32.Vec3

	// Up returns the camera's up vector.
	//
	// Returns:
	//   - mgl32.Vec3: the up vector
	Up() mgl32.Vec3

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: far plane distance
	Far() float32

	// Viewport returns the size in pixels of the area the camera renders to.
	//
	// Returns:
	//   - common.Size2D: the viewport size
	Viewport() common.Size2D

	// ViewMatrix returns the current view matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the view matrix
	ViewMatrix() mgl32.Mat4

	// ProjectionMatrix returns the current projection matrix.
	//
	// Returns:
	//   - mgl32.Mat4: the projection matrix
	ProjectionMatrix() mgl32.Mat4

	// ViewProjectionMatrix returns projection * view.
	//
	// Returns:
	//   - mgl32.Mat4: the combined view-projection matrix
	ViewProjectionMatrix() mgl32.Mat4

	// InverseViewProjectionMatrix returns the inverse of projection * view. Used
	// to reconstruct world positions from depth.
	//
	// Returns:
	//   - mgl32.Mat4: the inverse view-projection matrix
	InverseViewProjectionMatrix() mgl32.Mat4

	// Frustum returns the world-space view frustum.
	//
	// Returns:
	//   - common.Frustum: the frustum planes
	Frustum() common.Frustum

	// LookAt places the camera at eye looking at target.
	//
	// Parameters:
	//   - eye: the eye position
	//   - target: the look-at point
	LookAt(eye, target mgl32.Vec3)

	// SetUp sets the camera's up vector.
	//
	// Parameters:
	//   - up: the up vector
	SetUp(up mgl32.Vec3)

	// SetFov sets the vertical field of view in radians.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// SetRange sets the near and far clipping planes.
	//
	// Parameters:
	//   - near: near plane distance
	//   - far: far plane distance
	SetRange(near, far float32)

	// SetViewport sets the viewport size, which also drives the aspect ratio.
	//
	// Parameters:
	//   - size: the viewport size in pixels
	SetViewport(size common.Size2D)

	// SetProjection overrides the perspective projection with a fixed matrix.
	// Passing nil restores the perspective projection.
	//
	// Parameters:
	//   - m: the projection matrix, or nil
	SetProjection(m *mgl32.Mat4)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera looking down -Z from the origin with a 45
// degree field of view.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		position: mgl32.Vec3{0, 0, 0},
		target:   mgl32.Vec3{0, 0, -1},
		up:       mgl32.Vec3{0, 1, 0},
		fov:      45.0 * (math.Pi / 180.0),
		near:     0.1,
		far:      100.0,
		viewport: common.Size2D{Width: 1280, Height: 720},
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) Viewport() common.Size2D {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

func (c *cameraImpl) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) InverseViewProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseViewProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.ExtractFrustum(c.viewProjectionMatrix)
}

func (c *cameraImpl) LookAt(eye, target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position, c.target = eye, target
	c.updateMatrices()
}

func (c *cameraImpl) SetUp(up mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = up
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetRange(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near, c.far = near, far
	c.updateMatrices()
}

func (c *cameraImpl) SetViewport(size common.Size2D) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = size
	c.updateMatrices()
}

func (c *cameraImpl) SetProjection(m *mgl32.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customProjection = m
	c.updateMatrices()
}

// updateMatrices recalculates the view, projection, view-projection, and inverse
// view-projection matrices. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	c.viewMatrix = mgl32.LookAtV(c.position, c.target, c.up)
	if c.customProjection != nil {
		c.projectionMatrix = *c.customProjection
	} else {
		c.projectionMatrix = common.Perspective(c.fov, c.viewport.Aspect(), c.near, c.far)
	}
	c.viewProjectionMatrix = c.projectionMatrix.Mul4(c.viewMatrix)
	c.inverseViewProjectionMatrix = c.viewProjectionMatrix.Inv()
}
