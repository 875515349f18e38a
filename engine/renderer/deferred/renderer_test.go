package deferred

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passLog struct {
	started []string
	ended   []string
}

func (p *passLog) StartPass(name string) func() {
	p.started = append(p.started, name)
	return func() { p.ended = append(p.ended, name) }
}

// drawnShaders lists the shader names of every full-screen and procedural
// draw in submission order.
func drawnShaders(rs *renderertest.Recorder) []string {
	var names []string
	for _, e := range rs.Events() {
		if e.Kind == renderertest.EventDrawQuad || e.Kind == renderertest.EventDrawProcedural {
			names = append(names, e.Shader.Name())
		}
	}
	return names
}

func liveResources(rs *renderertest.Recorder) int {
	return rs.LiveTextures() + rs.LiveBuffers() + rs.LiveShaders()
}

func newTestRenderer(opts ...RendererBuilderOption) (*deferredRenderer, *renderertest.Recorder) {
	rs := renderertest.NewRecorder(testWidth, testHeight)
	r := NewRenderer(rs, opts...)
	return r.(*deferredRenderer), rs
}

func TestRenderer_ShadowedLightsEndToEnd(t *testing.T) {
	r, _ := newTestRenderer()
	require.True(t, r.GenerateResources(FlagNormalMapping|FlagShadowMapping, 512, 4, 2, 0))
	require.NoError(t, r.Err())

	graph := testScene(pointLight(1, 0, 0, true), pointLight(-1, 0, 0, false), spotLight(true))
	r.RenderScene(graph, nil, nil)

	points, ext := r.LightCounts()
	assert.Equal(t, 2, points)
	assert.Equal(t, 1, ext)

	recs := r.LightRecords()
	require.Len(t, recs, 3)
	assert.Equal(t, int32(0), recs[0].ShadowIndex)
	assert.Equal(t, int32(-1), recs[1].ShadowIndex)
	assert.Equal(t, int32(0), recs[2].ShadowIndex, "spot lights count slots separately from point lights")
	assert.Equal(t, int32(-1), recs[0].ExtIndex)
	assert.Equal(t, int32(0), recs[2].ExtIndex)
	assert.Len(t, r.ExtendedLightRecords(), 1)
}

func TestRenderer_ReleaseTwice(t *testing.T) {
	r, rs := newTestRenderer()
	require.True(t, r.GenerateResources(FlagShadowMapping|FlagTiledShading|FlagBloom, 128, 4, 2, 0))
	require.True(t, r.Active())
	require.Positive(t, liveResources(rs))

	r.ReleaseResources()
	assert.False(t, r.Active())
	assert.Zero(t, liveResources(rs))

	r.ReleaseResources()
	assert.False(t, r.Active())
	assert.Zero(t, liveResources(rs))

	rs.Reset()
	r.RenderScene(testScene(pointLight(0, 0, 0, false)), nil, nil)
	assert.Empty(t, rs.Events())
}

func TestRenderer_GenerateReleasesPreviousResources(t *testing.T) {
	r, rs := newTestRenderer()
	require.True(t, r.GenerateResources(FlagShadowMapping, 128, 4, 2, 0))
	first := liveResources(rs)

	require.True(t, r.GenerateResources(FlagShadowMapping, 128, 4, 2, 0))
	assert.Equal(t, first, liveResources(rs))
}

func TestRenderer_SanitizesConfiguration(t *testing.T) {
	r, _ := newTestRenderer()
	require.True(t, r.GenerateResources(FlagParallaxMapping|FlagGlobalIllumination, 300, 1, 3, -2))

	cfg := r.Config()
	assert.Equal(t, Flags(0), cfg.Flags, "parallax needs normal mapping and GI needs shadow mapping")
	assert.Equal(t, 512, cfg.ShadowTexSize)
	assert.Equal(t, 3, cfg.MaxPointLights)
	assert.Equal(t, 3, cfg.MaxSpotLights)
	assert.Zero(t, cfg.MultiSampling)
}

func TestRenderer_ResizeRebuildsTiledGrid(t *testing.T) {
	r, rs := newTestRenderer()
	require.True(t, r.GenerateResources(FlagTiledShading, 64, 4, 1, 0))

	nx, ny := r.Grid().NumTiles()
	assert.Equal(t, 10, nx)
	assert.Equal(t, 8, ny)

	size := common.Size2D{Width: 1000, Height: 700}
	require.NoError(t, r.SetResolution(size))
	assert.Equal(t, size, r.Resolution())
	nx, ny = r.Grid().NumTiles()
	assert.Equal(t, 32, nx)
	assert.Equal(t, 22, ny)
	assert.Equal(t, 704, r.Grid().TileCount())
	assert.Equal(t, size, r.gbuffer.Resolution())

	opts := r.shading.Shader().Descriptor().Options
	assert.Contains(t, opts, "TILED_LIGHT_GRID_NUM_X 32")
	assert.Contains(t, opts, "TILED_LIGHT_GRID_NUM_Y 22")

	depth := make([]float32, size.Area())
	for i := range depth {
		depth[i] = 5
	}
	rs.SetDepth(r.gbuffer.NormalAndDepth(), depth)
	rs.Reset()

	assert.NotPanics(t, func() {
		r.RenderScene(testScene(pointLight(0, 0, 0, false)), nil, nil)
	})
	assert.Equal(t, []uint32{0}, r.Grid().Tile(16, 11))
	assert.Contains(t, drawnShaders(rs), "deferred_shading")
}

func TestRenderer_SetResolution(t *testing.T) {
	r, rs := newTestRenderer()

	err := r.SetResolution(common.Size2D{Width: 0, Height: 10})
	assert.ErrorIs(t, err, ErrInvalidResolution)

	size := common.Size2D{Width: 640, Height: 480}
	require.NoError(t, r.SetResolution(size))
	assert.Zero(t, liveResources(rs), "nothing is allocated before generate")

	require.True(t, r.GenerateResources(0, 64, 1, 1, 0))
	assert.Equal(t, size, r.gbuffer.Resolution())

	rs.SetResolution(common.Size2D{Width: 800, Height: 600})
	require.NoError(t, r.AdjustResolution())
	assert.Equal(t, common.Size2D{Width: 800, Height: 600}, r.gbuffer.Resolution())
}

func TestRenderer_FailedGenerateLeavesNothingBehind(t *testing.T) {
	r, rs := newTestRenderer()
	boom := errors.New("compile failed")
	rs.FailShader = func(desc renderer.ShaderClassDescriptor) error {
		if desc.Name == "deferred_shading" {
			return boom
		}
		return nil
	}

	ok := r.GenerateResources(FlagShadowMapping|FlagTiledShading|FlagBloom, 128, 4, 2, 0)
	assert.False(t, ok)
	assert.ErrorIs(t, r.Err(), boom)
	assert.False(t, r.Active())
	assert.Zero(t, rs.LiveTextures())
	assert.Zero(t, rs.LiveBuffers())
	assert.Zero(t, rs.LiveShaders())

	rs.Reset()
	r.RenderScene(testScene(pointLight(0, 0, 0, true)), nil, nil)
	assert.Empty(t, rs.Events())

	rs.FailShader = nil
	require.True(t, r.GenerateResources(FlagShadowMapping, 128, 4, 2, 0))
	assert.NoError(t, r.Err())
}

func TestRenderer_BloomFallsBackWhenTargetsFail(t *testing.T) {
	r, rs := newTestRenderer()
	rs.FailTexture = func(cfg renderer.TextureConfig) error {
		if strings.HasPrefix(cfg.Label, "Bloom") {
			return errors.New("out of memory")
		}
		return nil
	}

	require.True(t, r.GenerateResources(FlagBloom|FlagShadowMapping, 64, 2, 1, 0))
	assert.False(t, r.Config().Flags.Has(FlagBloom))
	assert.True(t, r.Config().Flags.Has(FlagShadowMapping))
	assert.NotContains(t, r.shading.Shader().Descriptor().Options, "BLOOM_FILTER")

	rs.Reset()
	r.RenderScene(testScene(pointLight(0, 0, 0, false)), nil, nil)
	assert.Equal(t, []string{"deferred_shading"}, drawnShaders(rs))
}

func TestRenderer_RenderSkipped(t *testing.T) {
	r, rs := newTestRenderer()
	require.True(t, r.GenerateResources(0, 64, 2, 1, 0))

	t.Run("no camera", func(t *testing.T) {
		rs.Reset()
		r.RenderScene(scene.NewScene("empty"), nil, nil)
		assert.Empty(t, rs.Events())
	})

	t.Run("nil graph", func(t *testing.T) {
		rs.Reset()
		r.RenderScene(nil, testViewer(), nil)
		assert.Empty(t, rs.Events())
	})

	t.Run("output not a render target", func(t *testing.T) {
		plain, err := rs.CreateTexture(renderer.TextureConfig{
			Label:  "plain",
			Size:   common.Size2D{Width: testWidth, Height: testHeight},
			Format: renderer.FormatRGBA8,
		})
		require.NoError(t, err)
		rs.Reset()
		r.RenderScene(testScene(), nil, plain)
		assert.Empty(t, rs.Events())
	})
}

func TestRenderer_RendersIntoOutputTexture(t *testing.T) {
	r, rs := newTestRenderer()
	require.True(t, r.GenerateResources(0, 64, 2, 1, 0))
	out, err := rs.CreateTexture(renderer.TextureConfig{
		Label:        "offscreen",
		Size:         common.Size2D{Width: testWidth, Height: testHeight},
		Format:       renderer.FormatRGBA8,
		RenderTarget: true,
	})
	require.NoError(t, err)

	rs.Reset()
	r.RenderScene(testScene(pointLight(0, 0, 0, false)), nil, out)

	quads := rs.EventsOf(renderertest.EventDrawQuad)
	require.Len(t, quads, 1)
	require.Len(t, quads[0].Targets, 1)
	assert.Same(t, out, quads[0].Targets[0].Texture)
}

func TestRenderer_FrameOrder(t *testing.T) {
	timer := &passLog{}
	r, rs := newTestRenderer(WithPassTimer(timer))
	flags := FlagShadowMapping | FlagGlobalIllumination | FlagUseVPLOptimization |
		FlagBloom | FlagDebugVirtualPointLights | FlagTiledShading
	require.True(t, r.GenerateResources(flags, 64, 4, 2, 0))
	require.Equal(t, flags, r.Config().Flags)

	rs.Reset()
	r.RenderScene(testScene(pointLight(0, 0, 0, true), spotLight(true)), nil, nil)

	assert.Equal(t, []string{
		"deferred_shading_lowres_vpl",
		"deferred_shading",
		"bloom_blur_h",
		"bloom_blur_v",
		"bloom_composite",
		"debug_vpl",
	}, drawnShaders(rs))

	want := []string{PassGBuffer, PassLights, PassLowResVPL, PassShading, PassBloom, PassDebugVPL}
	assert.Equal(t, want, timer.started)
	assert.Equal(t, want, timer.ended)

	procs := rs.EventsOf(renderertest.EventDrawProcedural)
	require.Len(t, procs, 1)
	assert.Equal(t, VPLCount, procs[0].Count)
}

func TestRenderer_LowResVPLAfterLightsOfSameFrame(t *testing.T) {
	r, rs := newTestRenderer()
	require.True(t, r.GenerateResources(FlagShadowMapping|FlagGlobalIllumination|FlagUseVPLOptimization, 64, 2, 2, 0))

	rs.Reset()
	r.RenderScene(testScene(pointLight(0, 0, 0, true), spotLight(true)), nil, nil)

	events := rs.Events()
	vpl, shadowPass, lightUpload, extUpload := -1, -1, -1, -1
	for i, e := range events {
		switch {
		case e.Kind == renderertest.EventDrawQuad && e.Shader == r.shading.LowResShader():
			if vpl < 0 {
				vpl = i
			}
		case e.Kind == renderertest.EventSetGlobalShader && e.Shader == r.shadows.Shader():
			shadowPass = i
		case e.Kind == renderertest.EventWriteBuffer && e.Buffer == r.lights.lightBuf:
			lightUpload = i
		case e.Kind == renderertest.EventWriteBuffer && e.Buffer == r.lights.exLightBuf:
			extUpload = i
		}
	}
	require.GreaterOrEqual(t, vpl, 0, "low-res VPL pass drawn")
	require.GreaterOrEqual(t, shadowPass, 0, "shadow maps rendered")
	require.GreaterOrEqual(t, lightUpload, 0)
	require.GreaterOrEqual(t, extUpload, 0)
	assert.Less(t, shadowPass, vpl, "reflective shadow map rendered before VPL sampling")
	assert.Less(t, lightUpload, vpl)
	assert.Less(t, extUpload, vpl)
}

func TestRenderer_DebugVPLToggle(t *testing.T) {
	r, rs := newTestRenderer()
	require.True(t, r.GenerateResources(FlagShadowMapping|FlagGlobalIllumination|FlagDebugVirtualPointLights, 64, 2, 2, 0))

	r.SetDebugVPL(false)
	rs.Reset()
	r.RenderScene(testScene(spotLight(true)), nil, nil)
	assert.Empty(t, rs.EventsOf(renderertest.EventDrawProcedural))

	r.SetDebugVPL(true)
	rs.Reset()
	r.RenderScene(testScene(spotLight(true)), nil, nil)
	assert.Len(t, rs.EventsOf(renderertest.EventDrawProcedural), 1)
}

func TestRenderer_GIConstantsUploaded(t *testing.T) {
	r, rs := newTestRenderer(WithSeed(7))
	require.True(t, r.GenerateResources(FlagShadowMapping|FlagGlobalIllumination|FlagUseVPLOptimization, 256, 2, 2, 0))

	want := r.gi.Marshal()
	assert.Equal(t, want, rs.Constants(r.shading.Shader(), 1))
	assert.Equal(t, want, rs.Constants(r.shading.LowResShader(), 1))

	other, _ := newTestRenderer(WithSeed(7))
	require.True(t, other.GenerateResources(FlagShadowMapping|FlagGlobalIllumination|FlagUseVPLOptimization, 256, 2, 2, 0))
	assert.Equal(t, r.gi, other.gi)
}

func TestRenderer_GeometryShaderOverride(t *testing.T) {
	r, _ := newTestRenderer(WithDefaultGBufferShader(false))
	assert.Nil(t, r.GeometryShader())

	require.True(t, r.GenerateResources(FlagNormalMapping, 64, 1, 1, 0))
	geo := r.GeometryShader()
	require.NotNil(t, geo)
	assert.Equal(t, "gbuffer", geo.Name())
	assert.True(t, slices.Contains(geo.Descriptor().Options, "NORMAL_MAPPING"))
}

func TestRenderer_Setters(t *testing.T) {
	r, _ := newTestRenderer()
	require.True(t, r.GenerateResources(FlagShadowMapping|FlagGlobalIllumination|FlagBloom, 64, 2, 1, 0))

	r.SetAmbientColor(mgl32.Vec3{0.1, 0.2, 0.3})
	assert.Equal(t, mgl32.Vec3{0.1, 0.2, 0.3}, r.AmbientColor())

	r.SetGIReflectivity(0.75)
	assert.Equal(t, float32(0.75), r.GIReflectivity())

	r.SetBloomFactor(2)
	assert.Equal(t, float32(2), r.bloom.Factor())

	p := ReliefParams{HeightMapScale: 0.1, SpecularFactor: 2}
	r.SetReliefParams(p)
	assert.Equal(t, p, r.ReliefParams())

	// Setters survive a rebuild.
	require.True(t, r.GenerateResources(FlagShadowMapping, 64, 2, 1, 0))
	assert.Equal(t, mgl32.Vec3{0.1, 0.2, 0.3}, r.AmbientColor())
	assert.Equal(t, float32(0.75), r.GIReflectivity())
}
