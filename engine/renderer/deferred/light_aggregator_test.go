package deferred

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLightAggregator_PointCountBoundedByCapacity(t *testing.T) {
	agg, _, rs := newAggregator(t, Config{MaxPointLights: 4, MaxSpotLights: 1})

	var lights []light.Light
	for i := range 6 {
		lights = append(lights, pointLight(float32(i), 0, 0, false))
	}
	points, ext := agg.UpdateLightSources(testScene(lights...), testViewer(), nil)

	assert.Equal(t, 4, points)
	assert.Equal(t, 0, ext)
	assert.Len(t, agg.Records(), 4)
	assert.Equal(t, AggregatorStats{Considered: 6, Dropped: 2}, agg.Stats())

	// The shading pass reads light_count records, never more.
	writes := rs.EventsOf(renderertest.EventWriteBuffer)
	require.NotEmpty(t, writes)
	for _, w := range writes {
		if w.Buffer.Config().Label == "Light Records" {
			assert.Equal(t, 4*light.LightRecordSize, w.Count)
		}
	}
	desc := rs.BufferContents(writes[len(writes)-1].Buffer)
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(desc[16:]))
}

func TestLightAggregator_ShadowSlotsFollowListOrder(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{Flags: FlagShadowMapping, ShadowTexSize: 64, MaxPointLights: 8, MaxSpotLights: 2})

	lights := []light.Light{
		pointLight(1, 0, 0, true),
		pointLight(2, 0, 0, false),
		pointLight(3, 0, 0, true),
		pointLight(4, 0, 0, true),
	}
	agg.UpdateLightSources(testScene(lights...), testViewer(), nil)

	var got []int32
	for _, rec := range agg.Records() {
		got = append(got, rec.ShadowIndex)
	}
	assert.Equal(t, []int32{0, -1, 1, 2}, got)
	assert.Equal(t, 3, agg.Stats().Shadowed)
}

func TestLightAggregator_ShadowSlotsTruncate(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{Flags: FlagShadowMapping, ShadowTexSize: 64, MaxPointLights: 2, MaxSpotLights: 1})

	agg.UpdateLightSources(testScene(pointLight(0, 0, 0, true), pointLight(1, 0, 0, true), pointLight(2, 0, 0, true)), testViewer(), nil)

	recs := agg.Records()
	require.Len(t, recs, 2, "third light dropped with the record capacity")
	assert.Equal(t, int32(0), recs[0].ShadowIndex)
	assert.Equal(t, int32(1), recs[1].ShadowIndex)
}

func TestLightAggregator_ExtendedRecordsLinked(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{Flags: FlagShadowMapping, ShadowTexSize: 64, MaxPointLights: 4, MaxSpotLights: 3})

	sun := light.NewLight(light.LightTypeDirectional, light.WithDirection(1, -2, 0.5), light.WithShadow(true))
	lights := []light.Light{pointLight(0, 1, 0, false), spotLight(true), sun, spotLight(false)}
	points, ext := agg.UpdateLightSources(testScene(lights...), testViewer(), nil)

	assert.Equal(t, 1, points)
	assert.Equal(t, 3, ext)
	exts := agg.ExtendedRecords()
	for _, rec := range agg.Records() {
		if rec.Type == light.LightTypePoint {
			assert.Equal(t, int32(-1), rec.ExtIndex)
			continue
		}
		require.GreaterOrEqual(t, rec.ExtIndex, int32(0))
		require.Less(t, int(rec.ExtIndex), len(exts))
		assert.InDelta(t, 1.0, exts[rec.ExtIndex].Direction.Len(), 1e-5)
	}

	// Spot and directional lights share the 2D shadow slots.
	recs := agg.Records()
	assert.Equal(t, int32(0), recs[1].ShadowIndex)
	assert.Equal(t, int32(1), recs[2].ShadowIndex)
	assert.Equal(t, int32(-1), recs[3].ShadowIndex)

	_, _, ok := agg.DebugVPLSource()
	assert.False(t, ok, "the last light is an unshadowed spot")
}

func TestLightAggregator_DebugVPLSourceIsLastLight(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{Flags: FlagShadowMapping, ShadowTexSize: 64, MaxPointLights: 4, MaxSpotLights: 3})
	sun := light.NewLight(light.LightTypeDirectional, light.WithDirection(1, -2, 0.5), light.WithShadow(true))

	agg.UpdateLightSources(testScene(spotLight(true), sun), testViewer(), nil)
	rec, ext, ok := agg.DebugVPLSource()
	require.True(t, ok)
	assert.Equal(t, light.LightTypeDirectional, rec.Type)
	assert.Equal(t, agg.ExtendedRecords()[1], ext)

	agg.UpdateLightSources(testScene(spotLight(true), pointLight(0, 0, 0, true)), testViewer(), nil)
	_, _, ok = agg.DebugVPLSource()
	assert.False(t, ok, "a trailing point light has no extended record")

	agg.UpdateLightSources(testScene(spotLight(true), spotLight(false)), testViewer(), nil)
	_, _, ok = agg.DebugVPLSource()
	assert.False(t, ok, "an earlier shadowed spot does not stand in for the last light")

	agg.UpdateLightSources(testScene(), testViewer(), nil)
	_, _, ok = agg.DebugVPLSource()
	assert.False(t, ok)
}

func TestLightAggregator_SpotConeInRadians(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{MaxPointLights: 2, MaxSpotLights: 2})
	agg.UpdateLightSources(testScene(spotLight(false)), testViewer(), nil)

	ext := agg.ExtendedRecords()
	require.Len(t, ext, 1)
	assert.InDelta(t, mgl32.DegToRad(20), ext[0].SpotTheta, 1e-6)
	assert.InDelta(t, mgl32.DegToRad(15), ext[0].SpotPhiMinusTheta, 1e-6)
}

func TestLightAggregator_ExtendedCapacityDropsSpots(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{MaxPointLights: 4, MaxSpotLights: 1})

	points, ext := agg.UpdateLightSources(testScene(spotLight(false), spotLight(false), pointLight(0, 0, 0, false)), testViewer(), nil)

	assert.Equal(t, 1, points)
	assert.Equal(t, 1, ext)
	assert.Equal(t, 2, agg.RecordCount())
	assert.Equal(t, 1, agg.Stats().Dropped)
}

func TestLightAggregator_SkipsInvisibleLights(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{MaxPointLights: 4, MaxSpotLights: 1})

	hidden := light.NewLight(light.LightTypePoint, light.WithVisible(false))
	points, _ := agg.UpdateLightSources(testScene(hidden, pointLight(0, 0, 0, false)), testViewer(), nil)

	assert.Equal(t, 1, points)
	assert.Equal(t, 1, agg.Stats().Invisible)
}

func TestLightAggregator_NoShadowIndexWithoutShadowMapping(t *testing.T) {
	agg, _, _ := newAggregator(t, Config{MaxPointLights: 4, MaxSpotLights: 1})
	agg.UpdateLightSources(testScene(pointLight(0, 0, 0, true)), testViewer(), nil)

	recs := agg.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, int32(-1), recs[0].ShadowIndex)
	assert.False(t, recs[0].UsedForLightmaps, "shadow casters are not baked into light maps")
}

func TestLightAggregator_ShadingDescUpload(t *testing.T) {
	agg, _, rs := newAggregator(t, Config{MaxPointLights: 2, MaxSpotLights: 1})

	agg.SetAmbientColor(mgl32.Vec3{0.2, 0.3, 0.4})
	agg.SetGIReflectivity(0.5)

	writes := rs.EventsOf(renderertest.EventWriteBuffer)
	require.NotEmpty(t, writes)
	desc := rs.BufferContents(writes[len(writes)-1].Buffer)
	assert.Equal(t, float32(0.3), math.Float32frombits(binary.LittleEndian.Uint32(desc[4:])))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(desc[12:])))
}

func TestLightAggregator_ReleaseTwice(t *testing.T) {
	agg, _, rs := newAggregator(t, Config{MaxPointLights: 2, MaxSpotLights: 1})
	require.Equal(t, 3, rs.LiveBuffers())

	assert.NoError(t, agg.Release())
	assert.NoError(t, agg.Release())
	assert.Equal(t, 0, rs.LiveBuffers())

	points, ext := agg.UpdateLightSources(testScene(pointLight(0, 0, 0, false)), testViewer(), nil)
	assert.Zero(t, points)
	assert.Zero(t, ext)
}
