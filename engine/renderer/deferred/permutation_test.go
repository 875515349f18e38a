package deferred

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// canonicalFlags returns every flag set that survives sanitizing unchanged.
func canonicalFlags() []Flags {
	var out []Flags
	for _, f := range allFlags() {
		if f.Sanitize() == f {
			out = append(out, f)
		}
	}
	return out
}

func TestOptionKey(t *testing.T) {
	for name, want := range map[string]string{
		SlotNormalAndDepth:    "NORMAL_AND_DEPTH_MAP",
		SlotVPLColor:          "VPL_COLOR_MAP",
		SlotPointRSMColorMaps: "POINT_RSM_COLOR_MAPS",
		SlotTileLightCounts:   "TILE_LIGHT_COUNT_LIST",
		"DiffuseMap":          "DIFFUSE_MAP",
		"BloomInput":          "BLOOM_INPUT",
	} {
		assert.Equal(t, want, optionKey(name), name)
	}
}

func TestPermutationBuilder_GeometryOptions(t *testing.T) {
	b := NewPermutationBuilder(Config{Flags: FlagNormalMapping | FlagParallaxMapping | FlagShadowMapping | FlagHasSpecularMap})
	assert.Equal(t, []string{"HAS_SPECULAR_MAP", "NORMAL_MAPPING", "PARALLAX_MAPPING", "SHADOW_MAPPING"}, b.GeometryOptions())

	// The builder sanitizes its input.
	b = NewPermutationBuilder(Config{Flags: FlagParallaxMapping})
	assert.Empty(t, b.GeometryOptions())
}

func TestPermutationBuilder_ShadingOptionsEndWithCapacities(t *testing.T) {
	b := NewPermutationBuilder(Config{Flags: FlagShadowMapping | FlagGlobalIllumination | FlagUseVPLOptimization, MaxPointLights: 6, MaxSpotLights: 3})

	main := b.ShadingOptions(false)
	assert.Equal(t, []string{"SHADOW_MAPPING", "GLOBAL_ILLUMINATION", "USE_VPL_OPTIMIZATION", "MAX_LIGHTS 6", "MAX_EX_LIGHTS 3"}, main)

	low := b.ShadingOptions(true)
	assert.Contains(t, low, "USE_LOWRES_VPL_SHADING")
}

func TestPermutationBuilder_ShadowOptions(t *testing.T) {
	assert.Empty(t, NewPermutationBuilder(Config{Flags: FlagShadowMapping}).ShadowOptions())
	assert.Equal(t, []string{"USE_VSM", "USE_TEXTURE", "USE_RSM"},
		NewPermutationBuilder(Config{Flags: FlagShadowMapping | FlagGlobalIllumination, VarianceShadowMaps: true}).ShadowOptions())
}

func TestPermutationBuilder_TextureLayersAreContiguous(t *testing.T) {
	for _, f := range canonicalFlags() {
		b := NewPermutationBuilder(Config{Flags: f})
		m := b.TextureLayers()
		var present []int
		for _, idx := range []int{m.Diffuse, m.Specular, m.Normal, m.Height, m.LightMap} {
			if idx >= 0 {
				present = append(present, idx)
			}
		}
		for i, idx := range present {
			if idx != i {
				t.Fatalf("flags %s: layers %v are not 0..n-1", f, present)
			}
		}
		require.Equal(t, len(present), m.Count())

		layout := b.GeometryLayout()
		for i, s := range layout.Slots {
			require.Equal(t, i, s.Slot, "flags %s", f)
		}
	}
}

func TestPermutationBuilder_HeightLayer(t *testing.T) {
	m := NewPermutationBuilder(Config{Flags: FlagNormalMapping | FlagParallaxMapping | FlagHasLightMap}).TextureLayers()
	assert.Equal(t, TextureLayerModel{Diffuse: 0, Specular: -1, Normal: 1, Height: 2, LightMap: 3}, m)

	m = NewPermutationBuilder(Config{Flags: FlagNormalMapping | FlagParallaxMapping | FlagNormalMapXYZH}).TextureLayers()
	assert.Equal(t, -1, m.Height, "height packed into the normal map")
}

func TestPermutationBuilder_ShadowSlotBaseMatchesLayout(t *testing.T) {
	for _, f := range canonicalFlags() {
		b := NewPermutationBuilder(Config{Flags: f})
		layout := b.ShadingSamplers(false)
		names := layout.Names()

		// Every G-Buffer texture comes before the shadow slot base.
		gbufferSlots := 0
		for _, n := range names {
			if n == SlotDiffuseAndSpecular || n == SlotNormalAndDepth || n == SlotIllumination || n == SlotVPLColor {
				gbufferSlots++
			}
		}
		require.Equal(t, b.ShadowMapSlotBase(), gbufferSlots, "flags %s", f)
		if f.Has(FlagShadowMapping) {
			require.Equal(t, b.ShadowMapSlotBase(), layout.Slot(SlotPointShadowMaps), "flags %s", f)
		}
		require.Equal(t, len(names)-1, layout.Slot(SlotShadingDesc), "flags %s", f)
	}
}

func TestSamplerLayout_Options(t *testing.T) {
	layout := NewPermutationBuilder(Config{Flags: FlagTiledShading}).ShadingSamplers(false)
	opts := layout.Options()
	assert.Contains(t, opts, "DIFFUSE_AND_SPECULAR_MAP_BINDING 0")
	assert.Contains(t, opts, "DIFFUSE_AND_SPECULAR_MAP_SAMPLER 1")
	assert.Contains(t, opts, "TILE_LIGHT_COUNT_LIST_BINDING 4")
	assert.NotContains(t, opts, "TILE_LIGHT_COUNT_LIST_SAMPLER 5", "buffers have no sampler")
}

// Every shader source must pre-process for every flag set the renderer can
// be configured with, so no substitution is left without a binding option.
func TestShaderSources_PreProcessForEveryPermutation(t *testing.T) {
	pp := shader.NewPreProcessor()
	process := func(t *testing.T, name, source string, options []string) string {
		t.Helper()
		out, err := pp.Process(source, options)
		require.NoError(t, err, "%s with %v", name, options)
		require.NotContains(t, out, "${", name)
		require.NotContains(t, out, "//@oxy:", name)
		return out
	}

	for _, f := range canonicalFlags() {
		for _, vsm := range []bool{false, true} {
			if vsm && !f.Has(FlagShadowMapping) {
				continue
			}
			cfg := Config{Flags: f, MaxPointLights: 8, MaxSpotLights: 4, VarianceShadowMaps: vsm}
			b := NewPermutationBuilder(cfg)

			process(t, "gbuffer", gBufferShaderSource, append(b.GeometryOptions(), b.GeometryLayout().Options()...))

			opts := append(b.ShadingOptions(false), b.ShadingSamplers(false).Options()...)
			if f.Has(FlagTiledShading) {
				opts = append(opts, b.TiledOptions(40, 23, light.TileSize)...)
			}
			process(t, "shading", shadingShaderSource, opts)

			if !f.Has(FlagShadowMapping) {
				continue
			}
			var shadowLayout SamplerLayout
			if f.Has(FlagGlobalIllumination) {
				shadowLayout.Slots = []NamedSlot{{Name: "DiffuseMap", Slot: 0, Kind: renderer.BindTexture2D}}
			}
			process(t, "shadow", shadowShaderSource, append(b.ShadowOptions(), shadowLayout.Options()...))

			if f.Has(FlagGlobalIllumination) && f.Has(FlagUseVPLOptimization) {
				out := process(t, "shading lowres", shadingShaderSource, append(b.ShadingOptions(true), b.ShadingSamplers(true).Options()...))
				assert.False(t, strings.Contains(out, "diffuse_and_specular_map"), "low res variant reads no albedo")
			}
		}
	}
}
