package common

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestPerspective_DepthRange(t *testing.T) {
	near, far := float32(0.5), float32(50)
	proj := Perspective(mgl32.DegToRad(60), 16.0/9.0, near, far)

	clipNear := proj.Mul4x1(mgl32.Vec4{0, 0, -near, 1})
	clipFar := proj.Mul4x1(mgl32.Vec4{0, 0, -far, 1})

	assert.InDelta(t, 0, clipNear.Z()/clipNear.W(), 1e-6)
	assert.InDelta(t, 1, clipFar.Z()/clipFar.W(), 1e-5)
	assert.InDelta(t, far, clipFar.W(), 1e-5, "w holds the linear view depth")
}

func TestOrthographic_DepthRange(t *testing.T) {
	proj := Orthographic(-10, 10, -5, 5, 1, 21)

	assert.InDelta(t, 0, proj.Mul4x1(mgl32.Vec4{0, 0, -1, 1}).Z(), 1e-6)
	assert.InDelta(t, 1, proj.Mul4x1(mgl32.Vec4{0, 0, -21, 1}).Z(), 1e-6)
	assert.InDelta(t, 1, proj.Mul4x1(mgl32.Vec4{10, 0, -5, 1}).X(), 1e-6)
	assert.Equal(t, float32(1), proj[15])
}

func TestLookTowards_VerticalDirection(t *testing.T) {
	view := LookTowards(mgl32.Vec3{0, 10, 0}, mgl32.Vec3{0, -1, 0})
	for _, v := range view {
		assert.False(t, math.IsNaN(float64(v)))
	}
	p := view.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, -10, p.Z(), 1e-5, "the origin lies ten units ahead")
}

func TestTransformDirection(t *testing.T) {
	assert.Equal(t, Forward, TransformDirection(mgl32.Ident4()))
	assert.Equal(t, Forward, TransformDirection(mgl32.Mat4{}), "degenerate transforms fall back to Forward")

	rot := mgl32.HomogRotate3DY(mgl32.DegToRad(90)).Mul4(mgl32.Scale3D(3, 3, 3))
	d := TransformDirection(rot)
	assert.InDelta(t, -1, d.X(), 1e-6)
	assert.InDelta(t, 1, d.Len(), 1e-6)
}

func TestIntHelpers(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 2: 2, 3: 4, 300: 512, 1024: 1024} {
		assert.Equal(t, want, NextPowerOfTwo(in), "NextPowerOfTwo(%d)", in)
	}
	assert.Equal(t, 32, CeilDiv(1000, 32))
	assert.Equal(t, 22, CeilDiv(700, 32))
	assert.Equal(t, 1, CeilDiv(32, 32))
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, "b", Coalesce("", "b", "c"))
}

func TestSize2D(t *testing.T) {
	s := Size2D{Width: 1001, Height: 701}
	assert.True(t, s.Valid())
	assert.False(t, Size2D{Width: 0, Height: 5}.Valid())
	assert.Equal(t, Size2D{Width: 500, Height: 350}, s.Half())
	assert.Equal(t, 1001*701, s.Area())
}
