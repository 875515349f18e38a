package camera

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// orbitController is the implementation of the OrbitController interface.
type orbitController struct {
	mu *sync.Mutex

	target    mgl32.Vec3
	radius    float32
	azimuth   float32 // around +Y, 0 looks down -Z
	elevation float32 // above the horizontal plane

	minRadius, maxRadius       float32
	minElevation, maxElevation float32

	orbitSpeed float32
	zoomSpeed  float32
}

// OrbitController places a camera on a sphere around a target point. Angles
// and radius are clamped to their bounds on every change.
type OrbitController interface {
	// OrbitLeft rotates one orbit step around the target, counter-clockwise seen from above.
	OrbitLeft()

	// OrbitRight rotates one orbit step clockwise.
	OrbitRight()

	// OrbitUp raises the camera by one orbit step.
	OrbitUp()

	// OrbitDown lowers the camera by one orbit step.
	OrbitDown()

	// Zoom moves the camera toward the target by delta zoom steps; negative
	// values move it away.
	//
	// Parameters:
	//   - delta: zoom steps, typically a scroll wheel offset
	Zoom(delta float32)

	// SetTarget moves the orbit center.
	SetTarget(target mgl32.Vec3)

	// Target returns the orbit center.
	Target() mgl32.Vec3

	// Radius returns the distance to the target.
	Radius() float32

	// Eye returns the camera position implied by the orbit.
	Eye() mgl32.Vec3

	// Apply points the camera from Eye at the target.
	//
	// Parameters:
	//   - c: the camera to move
	Apply(c Camera)
}

var _ OrbitController = &orbitController{}

// NewOrbitController creates an orbit 20 units from the origin, 30 degrees
// above the horizon.
//
// Parameters:
//   - options: functional options to configure the orbit
//
// Returns:
//   - OrbitController: the controller
func NewOrbitController(options ...OrbitControllerOption) OrbitController {
	oc := &orbitController{
		mu:           &sync.Mutex{},
		radius:       20,
		elevation:    math.Pi / 6,
		minRadius:    1,
		maxRadius:    500,
		minElevation: 0.05,
		maxElevation: math.Pi/2 - 0.1,
		orbitSpeed:   0.03,
		zoomSpeed:    1.5,
	}
	for _, option := range options {
		option(oc)
	}
	oc.clamp()
	return oc
}

func (oc *orbitController) clamp() {
	oc.radius = min(max(oc.radius, oc.minRadius), oc.maxRadius)
	oc.elevation = min(max(oc.elevation, oc.minElevation), oc.maxElevation)
}

func (oc *orbitController) step(azimuth, elevation float32) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.azimuth += azimuth
	oc.elevation += elevation
	oc.clamp()
}

func (oc *orbitController) OrbitLeft()  { oc.step(-oc.orbitSpeed, 0) }
func (oc *orbitController) OrbitRight() { oc.step(oc.orbitSpeed, 0) }
func (oc *orbitController) OrbitUp()    { oc.step(0, oc.orbitSpeed) }
func (oc *orbitController) OrbitDown()  { oc.step(0, -oc.orbitSpeed) }

func (oc *orbitController) Zoom(delta float32) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.radius -= delta * oc.zoomSpeed
	oc.clamp()
}

func (oc *orbitController) SetTarget(target mgl32.Vec3) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.target = target
}

func (oc *orbitController) Target() mgl32.Vec3 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.target
}

func (oc *orbitController) Radius() float32 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.radius
}

func (oc *orbitController) Eye() mgl32.Vec3 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.eyeLocked()
}

func (oc *orbitController) eyeLocked() mgl32.Vec3 {
	sinElev, cosElev := math.Sincos(float64(oc.elevation))
	sinAzim, cosAzim := math.Sincos(float64(oc.azimuth))
	r := float64(oc.radius)
	return oc.target.Add(mgl32.Vec3{
		float32(r * cosElev * sinAzim),
		float32(r * sinElev),
		float32(r * cosElev * cosAzim),
	})
}

func (oc *orbitController) Apply(c Camera) {
	oc.mu.Lock()
	eye, target := oc.eyeLocked(), oc.target
	oc.mu.Unlock()
	c.LookAt(eye, target)
}
