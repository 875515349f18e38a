package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func testFrustum() Frustum {
	view := mgl32.LookAtV(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	proj := Perspective(mgl32.DegToRad(90), 1, 0.1, 100)
	return ExtractFrustum(proj.Mul4(view))
}

func TestExtractFrustum_PlanesNormalized(t *testing.T) {
	f := testFrustum()
	for i, p := range f.Planes {
		assert.InDelta(t, 1, p.Normal.Len(), 1e-5, "plane %d", i)
	}
	// A point straight ahead is inside every plane.
	for i, p := range f.Planes {
		assert.Positive(t, p.SignedDistance(mgl32.Vec3{0, 0, -10}), "plane %d", i)
	}
}

func TestFrustum_SphereVisible(t *testing.T) {
	f := testFrustum()

	tests := []struct {
		name   string
		center mgl32.Vec3
		radius float32
		want   bool
	}{
		{"ahead", mgl32.Vec3{0, 0, -10}, 1, true},
		{"behind", mgl32.Vec3{0, 0, 10}, 1, false},
		{"far to the right", mgl32.Vec3{50, 0, -10}, 1, false},
		{"straddles the right plane", mgl32.Vec3{10.5, 0, -10}, 1, true},
		{"past the far plane", mgl32.Vec3{0, 0, -102}, 1, false},
		{"touches the far plane", mgl32.Vec3{0, 0, -100.5}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.SphereVisible(tt.center, tt.radius))
		})
	}
}
