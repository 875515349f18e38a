package deferred

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
)

// Shading slot names. Each shading shader variant binds a subset of them in
// the order they are listed here.
const (
	SlotDiffuseAndSpecular = "DiffuseAndSpecularMap"
	SlotNormalAndDepth     = "NormalAndDepthMap"
	SlotIllumination       = "IlluminationMap"
	SlotVPLColor           = "VPLColorMap"
	SlotPointShadowMaps    = "PointShadowMaps"
	SlotSpotShadowMaps     = "SpotShadowMaps"
	SlotPointRSMColorMaps  = "PointRSMColorMaps"
	SlotSpotRSMColorMaps   = "SpotRSMColorMaps"
	SlotTileLightCounts    = "TileLightCountList"
	SlotTileLightIndices   = "TileLightIndexList"
	SlotGridDesc           = "GridDesc"
	SlotLightRecords       = "LightRecords"
	SlotExtLightRecords    = "ExtLightRecords"
	SlotShadingDesc        = "ShadingDesc"
)

// TextureLayerModel holds the material texture layer index of each surface
// map the G-Buffer shader samples. Absent layers are -1.
type TextureLayerModel struct {
	Diffuse  int
	Specular int
	Normal   int
	Height   int
	LightMap int
}

// Count returns the number of layers the G-Buffer shader samples.
func (m TextureLayerModel) Count() int {
	n := 0
	for _, idx := range []int{m.Diffuse, m.Specular, m.Normal, m.Height, m.LightMap} {
		if idx >= 0 {
			n++
		}
	}
	return n
}

// NamedSlot is one resource slot of a shader variant.
type NamedSlot struct {
	Name string
	Slot int
	Kind renderer.BindingKind
	// Unfilterable marks R32F shadow arrays.
	Unfilterable bool
}

// SamplerLayout is the ordered slot list of a shader variant.
type SamplerLayout struct {
	Slots []NamedSlot
}

// Slot returns the slot bound under name, or -1.
func (l SamplerLayout) Slot(name string) int {
	for _, s := range l.Slots {
		if s.Name == name {
			return s.Slot
		}
	}
	return -1
}

// Names returns the slot names in slot order.
func (l SamplerLayout) Names() []string {
	names := make([]string, len(l.Slots))
	for i, s := range l.Slots {
		names[i] = s.Name
	}
	return names
}

// Bindings converts the layout into shader class bindings.
func (l SamplerLayout) Bindings() []renderer.Binding {
	out := make([]renderer.Binding, len(l.Slots))
	for i, s := range l.Slots {
		out[i] = renderer.Binding{Name: s.Name, Slot: s.Slot, Kind: s.Kind, Unfilterable: s.Unfilterable}
	}
	return out
}

// Options returns the valued compiler options that place each slot in the
// shader: NAME_BINDING for the resource and NAME_SAMPLER for texture samplers.
func (l SamplerLayout) Options() []string {
	var out []string
	for _, s := range l.Slots {
		out = append(out, slotOptions(s)...)
	}
	return out
}

func slotOptions(s NamedSlot) []string {
	key := optionKey(s.Name)
	opts := []string{fmt.Sprintf("%s_BINDING %d", key, s.Slot*2)}
	if (renderer.Binding{Kind: s.Kind}).IsTexture() {
		opts = append(opts, fmt.Sprintf("%s_SAMPLER %d", key, s.Slot*2+1))
	}
	return opts
}

// optionKey turns "NormalAndDepthMap" into "NORMAL_AND_DEPTH_MAP" and
// "VPLColorMap" into "VPL_COLOR_MAP".
func optionKey(name string) string {
	isUpper := func(c byte) bool { return c >= 'A' && c <= 'Z' }
	isLower := func(c byte) bool { return c >= 'a' && c <= 'z' }
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if i > 0 && isUpper(c) {
			prev := name[i-1]
			acronymEnd := isUpper(prev) && i+1 < len(name) && isLower(name[i+1])
			if isLower(prev) || acronymEnd {
				b.WriteByte('_')
			}
		}
		b.WriteByte(c)
	}
	return strings.ToUpper(b.String())
}

// PermutationBuilder derives every compiler option list of the renderer from
// one normalized configuration. It has no side effects.
type PermutationBuilder struct {
	cfg Config
}

// NewPermutationBuilder creates a builder for cfg. The configuration is
// normalized first, so the flag set is always consistent.
//
// Parameters:
//   - cfg: the renderer configuration
//
// Returns:
//   - PermutationBuilder: the builder
func NewPermutationBuilder(cfg Config) PermutationBuilder {
	return PermutationBuilder{cfg: cfg.normalize()}
}

// Flags returns the sanitized flag set.
func (b PermutationBuilder) Flags() Flags {
	return b.cfg.Flags
}

// GeometryOptions returns the G-Buffer shader options.
//
// Returns:
//   - []string: options in fixed order
func (b PermutationBuilder) GeometryOptions() []string {
	f := b.cfg.Flags
	var opts []string
	add := func(flag Flags, name string) {
		if f.Has(flag) {
			opts = append(opts, name)
		}
	}
	add(FlagUseTextureMatrix, "USE_TEXTURE_MATRIX")
	add(FlagHasSpecularMap, "HAS_SPECULAR_MAP")
	add(FlagHasLightMap, "HAS_LIGHT_MAP")
	if f.Has(FlagNormalMapping) {
		opts = append(opts, "NORMAL_MAPPING")
		if f.Has(FlagParallaxMapping) {
			opts = append(opts, "PARALLAX_MAPPING")
			add(FlagNormalMapXYZH, "NORMALMAP_XYZ_H")
		}
	}
	if f.Has(FlagDebugGBuffer) {
		opts = append(opts, "DEBUG_GBUFFER")
		add(FlagDebugGBufferTexCoords, "DEBUG_GBUFFER_TEXCOORDS")
	}
	add(FlagShadowMapping, "SHADOW_MAPPING")
	return opts
}

// ShadingOptions returns the deferred shading shader options.
//
// Parameters:
//   - lowResVPL: true for the half resolution indirect light variant
//
// Returns:
//   - []string: options in fixed order, ending with the light capacities
func (b PermutationBuilder) ShadingOptions(lowResVPL bool) []string {
	f := b.cfg.Flags
	var opts []string
	add := func(flag Flags, name string) {
		if f.Has(flag) {
			opts = append(opts, name)
		}
	}
	add(FlagHasLightMap, "HAS_LIGHT_MAP")
	add(FlagAllowOverblending, "ALLOW_OVERBLENDING")
	if f.Has(FlagDebugGBuffer) {
		opts = append(opts, "DEBUG_GBUFFER")
		add(FlagDebugGBufferWorldPos, "DEBUG_GBUFFER_WORLDPOS")
	}
	add(FlagBloom, "BLOOM_FILTER")
	if f.Has(FlagShadowMapping) {
		opts = append(opts, "SHADOW_MAPPING")
		if f.Has(FlagGlobalIllumination) {
			opts = append(opts, "GLOBAL_ILLUMINATION")
			add(FlagUseVPLOptimization, "USE_VPL_OPTIMIZATION")
			if lowResVPL {
				opts = append(opts, "USE_LOWRES_VPL_SHADING")
			}
		}
	}
	add(FlagTiledShading, "TILED_SHADING")
	opts = append(opts,
		fmt.Sprintf("MAX_LIGHTS %d", b.cfg.MaxPointLights),
		fmt.Sprintf("MAX_EX_LIGHTS %d", b.cfg.MaxSpotLights),
	)
	return opts
}

// ShadowOptions returns the shadow map shader options.
func (b PermutationBuilder) ShadowOptions() []string {
	var opts []string
	if b.cfg.VarianceShadowMaps {
		opts = append(opts, "USE_VSM")
	}
	if b.cfg.Flags.Has(FlagGlobalIllumination) {
		opts = append(opts, "USE_TEXTURE", "USE_RSM")
	}
	return opts
}

// TiledOptions returns the light grid dimensions as compiler options.
//
// Parameters:
//   - numTilesX: tile columns
//   - numTilesY: tile rows
//   - tileSize: tile edge length in pixels
//
// Returns:
//   - []string: the grid options
func (b PermutationBuilder) TiledOptions(numTilesX, numTilesY, tileSize int) []string {
	return []string{
		fmt.Sprintf("TILED_LIGHT_GRID_NUM_X %d", numTilesX),
		fmt.Sprintf("TILED_LIGHT_GRID_NUM_Y %d", numTilesY),
		fmt.Sprintf("TILED_LIGHT_GRID_WIDTH %d", tileSize),
		fmt.Sprintf("TILED_LIGHT_GRID_HEIGHT %d", tileSize),
	}
}

// TextureLayers returns the material layer index of each surface map.
// The diffuse map is always layer 0. A separate height layer exists only with
// parallax mapping when the height is not packed into the normal map's alpha.
func (b PermutationBuilder) TextureLayers() TextureLayerModel {
	f := b.cfg.Flags
	m := TextureLayerModel{Diffuse: 0, Specular: -1, Normal: -1, Height: -1, LightMap: -1}
	next := 1
	if f.Has(FlagHasSpecularMap) {
		m.Specular = next
		next++
	}
	if f.Has(FlagNormalMapping) {
		m.Normal = next
		next++
		if f.Has(FlagParallaxMapping) && !f.Has(FlagNormalMapXYZH) {
			m.Height = next
			next++
		}
	}
	if f.Has(FlagHasLightMap) {
		m.LightMap = next
	}
	return m
}

// GeometryLayout returns the G-Buffer shader slots, one per texture layer.
func (b PermutationBuilder) GeometryLayout() SamplerLayout {
	m := b.TextureLayers()
	var l SamplerLayout
	for _, layer := range []struct {
		name string
		idx  int
	}{
		{"DiffuseMap", m.Diffuse},
		{"SpecularMap", m.Specular},
		{"NormalMap", m.Normal},
		{"HeightMap", m.Height},
		{"LightMap", m.LightMap},
	} {
		if layer.idx >= 0 {
			l.Slots = append(l.Slots, NamedSlot{Name: layer.name, Slot: layer.idx, Kind: renderer.BindTexture2D})
		}
	}
	return l
}

// ShadowMapSlotBase returns the first slot of the shadow arrays in the main
// shading pass: after the two G-Buffer maps, the illumination map and the
// VPL colour map when present.
func (b PermutationBuilder) ShadowMapSlotBase() int {
	base := 2
	if b.cfg.Flags.Has(FlagHasLightMap) {
		base++
	}
	if b.cfg.Flags.Has(FlagUseVPLOptimization) {
		base++
	}
	return base
}

// ShadingSamplers returns the slot layout of a shading variant. The low
// resolution VPL variant reads only normals and depth before the shadow arrays.
//
// Parameters:
//   - lowResVPL: true for the half resolution indirect light variant
//
// Returns:
//   - SamplerLayout: the ordered slots
func (b PermutationBuilder) ShadingSamplers(lowResVPL bool) SamplerLayout {
	f := b.cfg.Flags
	var l SamplerLayout
	push := func(name string, kind renderer.BindingKind, unfilterable bool) {
		l.Slots = append(l.Slots, NamedSlot{Name: name, Slot: len(l.Slots), Kind: kind, Unfilterable: unfilterable})
	}

	if !lowResVPL {
		push(SlotDiffuseAndSpecular, renderer.BindTexture2D, false)
	}
	push(SlotNormalAndDepth, renderer.BindTexture2D, false)
	if !lowResVPL {
		if f.Has(FlagHasLightMap) {
			push(SlotIllumination, renderer.BindTexture2D, false)
		}
		if f.Has(FlagUseVPLOptimization) {
			push(SlotVPLColor, renderer.BindTexture2D, false)
		}
	}
	if f.Has(FlagShadowMapping) {
		depthUnfilterable := !b.cfg.VarianceShadowMaps
		push(SlotPointShadowMaps, renderer.BindTextureCubeArray, depthUnfilterable)
		push(SlotSpotShadowMaps, renderer.BindTexture2DArray, depthUnfilterable)
		if f.Has(FlagGlobalIllumination) {
			push(SlotPointRSMColorMaps, renderer.BindTextureCubeArray, false)
			push(SlotSpotRSMColorMaps, renderer.BindTexture2DArray, false)
		}
	}
	if f.Has(FlagTiledShading) && !lowResVPL {
		push(SlotTileLightCounts, renderer.BindStorageBuffer, false)
		push(SlotTileLightIndices, renderer.BindStorageBuffer, false)
		push(SlotGridDesc, renderer.BindUniformBuffer, false)
	}
	push(SlotLightRecords, renderer.BindStorageBuffer, false)
	push(SlotExtLightRecords, renderer.BindStorageBuffer, false)
	push(SlotShadingDesc, renderer.BindUniformBuffer, false)
	return l
}
