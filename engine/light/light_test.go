package light

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLight_Defaults(t *testing.T) {
	l := NewLight(LightTypePoint)

	assert.Equal(t, LightTypePoint, l.Type())
	assert.True(t, l.Visible())
	assert.False(t, l.Shadow())
	assert.False(t, l.Volumetric())
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, l.Color())
	assert.NotEqual(t, NewLight(LightTypePoint).ID(), l.ID(), "every light gets its own id")
}

func TestLight_DirectionFollowsOrientation(t *testing.T) {
	l := NewLight(LightTypeSpot, WithPosition(1, 2, 3), WithDirection(0, -2, 0))

	dir := l.Direction()
	assert.InDelta(t, 1.0, dir.Len(), 1e-5)
	assert.True(t, dir.ApproxEqualThreshold(mgl32.Vec3{0, -1, 0}, 1e-5), "got %v", dir)
	assert.True(t, l.Position().ApproxEqualThreshold(mgl32.Vec3{1, 2, 3}, 1e-5))

	l.SetPosition(mgl32.Vec3{5, 5, 5})
	assert.True(t, l.Direction().ApproxEqualThreshold(mgl32.Vec3{0, -1, 0}, 1e-5), "moving keeps the orientation")

	l.SetDirection(mgl32.Vec3{3, 0, 0})
	assert.True(t, l.Direction().ApproxEqualThreshold(mgl32.Vec3{1, 0, 0}, 1e-5))
	assert.True(t, l.Position().ApproxEqualThreshold(mgl32.Vec3{5, 5, 5}, 1e-4))
}

func TestLightRecord_Layout(t *testing.T) {
	r := LightRecord{
		Position:         mgl32.Vec3{1, 2, 3},
		InvRadius:        0.5,
		Color:            mgl32.Vec3{0.25, 0.5, 0.75},
		Type:             LightTypeSpot,
		ShadowIndex:      -1,
		UsedForLightmaps: true,
		ExtIndex:         4,
	}
	buf := r.Marshal()
	require.Len(t, buf, LightRecordSize)

	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	i32 := func(off int) int32 { return int32(binary.LittleEndian.Uint32(buf[off:])) }

	assert.Equal(t, float32(3), f32(8))
	assert.Equal(t, float32(0.5), f32(12))
	assert.Equal(t, float32(0.75), f32(24))
	assert.Equal(t, int32(LightTypeSpot), i32(32))
	assert.Equal(t, int32(-1), i32(36))
	assert.Equal(t, int32(1), i32(40))
	assert.Equal(t, int32(4), i32(44))
}

func TestExtendedLightRecord_Layout(t *testing.T) {
	r := ExtendedLightRecord{
		ViewProjection:    mgl32.Ident4(),
		Direction:         mgl32.Vec3{0, 0, -1},
		SpotTheta:         0.5,
		SpotPhiMinusTheta: 0.25,
	}
	buf := r.Marshal()
	require.Len(t, buf, ExtendedLightRecordSize)

	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	assert.Equal(t, float32(1), f32(0))
	assert.Equal(t, float32(0), f32(64), "inverse stays zero unless set")
	assert.Equal(t, float32(-1), f32(136))
	assert.Equal(t, float32(0.5), f32(144))
	assert.Equal(t, float32(0.25), f32(148))
}

func TestMarshalLightBuffers_SizesToPopulatedEntries(t *testing.T) {
	records := make([]LightRecord, 8)
	ext := make([]ExtendedLightRecord, 8)

	lights, exLights := MarshalLightBuffers(records, 3, ext, 1)
	assert.Len(t, lights, 3*LightRecordSize)
	assert.Len(t, exLights, ExtendedLightRecordSize)

	lights, exLights = MarshalLightBuffers(records, 20, ext, 0)
	assert.Len(t, lights, 8*LightRecordSize, "count is clamped to the record capacity")
	assert.Empty(t, exLights)
}

func TestTileCounts(t *testing.T) {
	x, y := TileCounts(1280, 720)
	assert.Equal(t, 40, x)
	assert.Equal(t, 23, y)

	x, y = TileCounts(33, 1)
	assert.Equal(t, 2, x)
	assert.Equal(t, 1, y)
}
