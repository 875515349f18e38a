package deferred

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGIConstants_Ranges(t *testing.T) {
	const texSize = 256
	c := NewGIConstants(rand.New(rand.NewPCG(1, 2)), texSize)

	for _, j := range c.Jitter {
		assert.LessOrEqual(t, float32(math.Abs(float64(j.X()))), MaxJitterFactor)
		assert.LessOrEqual(t, float32(math.Abs(float64(j.Y()))), MaxJitterFactor)
	}
	for _, o := range c.VPLOffsets {
		for _, v := range []float32{o.X(), o.Y()} {
			require.GreaterOrEqual(t, v, float32(0))
			require.LessOrEqual(t, v, float32(1))
			// Snapped to a texel centre.
			texel := float64(v)*texSize - 0.5
			assert.InDelta(t, math.Round(texel), texel, 1e-3)
		}
	}
}

func TestNewGIConstants_Deterministic(t *testing.T) {
	a := NewGIConstants(rand.New(rand.NewPCG(7, 7)), 128)
	b := NewGIConstants(rand.New(rand.NewPCG(7, 7)), 128)
	assert.Equal(t, a, b)
}

func TestGIConstants_Marshal(t *testing.T) {
	c := NewGIConstants(rand.New(rand.NewPCG(3, 4)), 64)
	buf := c.Marshal()
	require.Len(t, buf, giConstantsSize)

	f := func(off int) float32 {
		return math.Float32frombits(uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24)
	}
	assert.Equal(t, c.Jitter[1].X(), f(16))
	assert.Equal(t, c.VPLOffsets[0].Y(), f(JitteredOffsetCount*16+4))
}

func TestDebugVPLOverlay_Render(t *testing.T) {
	cfg := Config{Flags: FlagShadowMapping | FlagGlobalIllumination | FlagDebugVirtualPointLights, ShadowTexSize: 64, MaxPointLights: 2, MaxSpotLights: 2}.normalize()
	rs := renderertest.NewRecorder(testWidth, testHeight)
	pp := shader.NewPreProcessor()
	shadows := NewShadowMapper(rs, common.NewNopLogger())
	require.NoError(t, shadows.Create(pp, cfg))

	d := NewDebugVPLOverlay(rs, common.NewNopLogger())
	assert.False(t, d.Render(testViewer(), light.LightRecord{ShadowIndex: 0}, light.ExtendedLightRecord{}, shadows, nil), "no shader yet")
	require.NoError(t, d.Create(pp, cfg, NewGIConstants(rand.New(rand.NewPCG(1, 1)), cfg.ShadowTexSize)))

	assert.False(t, d.Render(testViewer(), light.LightRecord{ShadowIndex: -1}, light.ExtendedLightRecord{}, shadows, nil))

	rs.Reset()
	require.True(t, d.Render(testViewer(), light.LightRecord{ShadowIndex: 1}, light.ExtendedLightRecord{}, shadows, nil))
	draws := rs.EventsOf(renderertest.EventDrawProcedural)
	require.Len(t, draws, 1)
	assert.Equal(t, VPLCount, draws[0].Count)
	assert.Equal(t, renderer.ModeScene, draws[0].Mode)
	assert.Empty(t, rs.BoundSlots())

	d.SetEnabled(false)
	assert.False(t, d.Render(testViewer(), light.LightRecord{ShadowIndex: 1}, light.ExtendedLightRecord{}, shadows, nil))

	require.NoError(t, d.Release())
	require.NoError(t, shadows.Release())
	assert.Zero(t, rs.LiveShaders())
	assert.Zero(t, rs.LiveTextures())
}
