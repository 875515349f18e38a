package deferred

import "strings"

// Flags selects the feature set of the deferred renderer. Each flag maps to a
// shader compiler option, so every distinct flag set is a distinct shader
// permutation.
type Flags uint32

const (
	// FlagUseTextureMatrix transforms texture coordinates by the material's texture matrix.
	FlagUseTextureMatrix Flags = 0x00001
	// FlagHasSpecularMap samples a specular map layer.
	FlagHasSpecularMap Flags = 0x00002
	// FlagHasLightMap samples a light map layer and writes the illumination target.
	FlagHasLightMap Flags = 0x00004
	// FlagAllowOverblending lets lit colours exceed 1.0 before output.
	FlagAllowOverblending Flags = 0x00008
	// FlagNormalMapping samples a tangent-space normal map layer.
	FlagNormalMapping Flags = 0x00010
	// FlagParallaxMapping offsets texture coordinates by a height map. Requires FlagNormalMapping.
	FlagParallaxMapping Flags = 0x00020
	// FlagNormalMapXYZH reads the height from the normal map's alpha. Requires FlagParallaxMapping.
	FlagNormalMapXYZH Flags = 0x00040
	// FlagShadowMapping renders shadow maps for shadow-casting lights.
	FlagShadowMapping Flags = 0x00080
	// FlagGlobalIllumination adds reflective shadow maps and virtual point lights. Requires FlagShadowMapping.
	FlagGlobalIllumination Flags = 0x00100
	// FlagBloom adds a blurred glow of bright pixels.
	FlagBloom Flags = 0x00200
	// FlagDebugGBuffer shows the G-Buffer contents instead of the lit image.
	FlagDebugGBuffer Flags = 0x01000
	// FlagDebugGBufferWorldPos shows world positions in the G-Buffer debug view.
	FlagDebugGBufferWorldPos Flags = 0x02000
	// FlagDebugGBufferTexCoords shows texture coordinates in the G-Buffer debug view.
	FlagDebugGBufferTexCoords Flags = 0x04000
	// FlagDebugVirtualPointLights draws the virtual point lights of the last shadowed light. Requires FlagGlobalIllumination.
	FlagDebugVirtualPointLights Flags = 0x08000
	// FlagTiledShading restricts per-pixel point light evaluation to a screen-space light grid.
	FlagTiledShading Flags = 0x10000
	// FlagUseVPLOptimization shades indirect light at half resolution. Requires FlagGlobalIllumination.
	FlagUseVPLOptimization Flags = 0x20000
)

// flagNames lists the flags in bit order with their compiler option names.
var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagUseTextureMatrix, "USE_TEXTURE_MATRIX"},
	{FlagHasSpecularMap, "HAS_SPECULAR_MAP"},
	{FlagHasLightMap, "HAS_LIGHT_MAP"},
	{FlagAllowOverblending, "ALLOW_OVERBLENDING"},
	{FlagNormalMapping, "NORMAL_MAPPING"},
	{FlagParallaxMapping, "PARALLAX_MAPPING"},
	{FlagNormalMapXYZH, "NORMALMAP_XYZ_H"},
	{FlagShadowMapping, "SHADOW_MAPPING"},
	{FlagGlobalIllumination, "GLOBAL_ILLUMINATION"},
	{FlagBloom, "BLOOM_FILTER"},
	{FlagDebugGBuffer, "DEBUG_GBUFFER"},
	{FlagDebugGBufferWorldPos, "DEBUG_GBUFFER_WORLDPOS"},
	{FlagDebugGBufferTexCoords, "DEBUG_GBUFFER_TEXCOORDS"},
	{FlagDebugVirtualPointLights, "DEBUG_VIRTUAL_POINTLIGHTS"},
	{FlagTiledShading, "TILED_SHADING"},
	{FlagUseVPLOptimization, "USE_VPL_OPTIMIZATION"},
}

// flagRequires maps each dependent flag to its prerequisite.
var flagRequires = []struct {
	dependent, prerequisite Flags
}{
	{FlagParallaxMapping, FlagNormalMapping},
	{FlagNormalMapXYZH, FlagParallaxMapping},
	{FlagGlobalIllumination, FlagShadowMapping},
	{FlagDebugVirtualPointLights, FlagGlobalIllumination},
	{FlagUseVPLOptimization, FlagGlobalIllumination},
}

// Has reports whether every bit of other is set.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

// Sanitize clears every flag whose prerequisite is missing. Clearing is
// repeated until nothing changes, so removing NormalMapping also removes
// ParallaxMapping and NormalMapXYZH.
//
// Returns:
//   - Flags: the consistent flag set
func (f Flags) Sanitize() Flags {
	for {
		next := f
		for _, r := range flagRequires {
			if next&r.dependent != 0 && next&r.prerequisite == 0 {
				next &^= r.dependent
			}
		}
		if next == f {
			return f
		}
		f = next
	}
}

// String joins the option names of the set flags with "|".
func (f Flags) String() string {
	if f == 0 {
		return "NONE"
	}
	var names []string
	for _, n := range flagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}
