package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestOrbitController_Eye(t *testing.T) {
	oc := NewOrbitController(WithTarget(mgl32.Vec3{1, 0, 0}), WithRadius(10), WithAngles(0, 0), WithElevationBounds(0, 1))

	eye := oc.Eye()
	assert.True(t, eye.ApproxEqualThreshold(mgl32.Vec3{1, 0, 10}, 1e-4), "got %v", eye)

	oc = NewOrbitController(WithRadius(10), WithAngles(math.Pi/2, 0), WithElevationBounds(0, 1))
	assert.True(t, oc.Eye().ApproxEqualThreshold(mgl32.Vec3{10, 0, 0}, 1e-4), "got %v", oc.Eye())
}

func TestOrbitController_Clamping(t *testing.T) {
	oc := NewOrbitController(
		WithRadius(5),
		WithRadiusBounds(2, 8),
		WithAngles(0, 0.5),
		WithElevationBounds(0.1, 0.6),
		WithOrbitSpeed(0.25),
		WithZoomSpeed(1),
	)

	oc.Zoom(10)
	assert.InDelta(t, 2.0, oc.Radius(), 1e-6)
	oc.Zoom(-100)
	assert.InDelta(t, 8.0, oc.Radius(), 1e-6)

	oc.OrbitUp()
	eye := oc.Eye()
	assert.InDelta(t, 8*math.Sin(0.6), eye.Y(), 1e-4, "elevation stops at the upper bound")
	for range 10 {
		oc.OrbitDown()
	}
	assert.InDelta(t, 8*math.Sin(0.1), oc.Eye().Y(), 1e-4)
	assert.InDelta(t, 8.0, oc.Eye().Len(), 1e-4, "orbiting keeps the radius")
}

func TestOrbitController_OrbitSides(t *testing.T) {
	oc := NewOrbitController(WithAngles(0, 0.2), WithOrbitSpeed(0.5))

	oc.OrbitRight()
	assert.Greater(t, oc.Eye().X(), float32(0))
	oc.OrbitLeft()
	oc.OrbitLeft()
	assert.Less(t, oc.Eye().X(), float32(0))
}

func TestOrbitController_Apply(t *testing.T) {
	target := mgl32.Vec3{0, 1, 0}
	oc := NewOrbitController(WithTarget(target), WithRadius(4))
	cam := NewCamera()

	oc.Apply(cam)

	assert.True(t, cam.Position().ApproxEqualThreshold(oc.Eye(), 1e-5))
	assert.True(t, cam.Target().ApproxEqualThreshold(target, 1e-5))

	oc.SetTarget(mgl32.Vec3{3, 0, 0})
	oc.Apply(cam)
	assert.Equal(t, mgl32.Vec3{3, 0, 0}, cam.Target())
	assert.Equal(t, mgl32.Vec3{3, 0, 0}, oc.Target())
}
