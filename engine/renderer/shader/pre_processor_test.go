package shader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = `//@oxy:include light_record
fn shade() -> f32 {
    var v = 0.0;
    //@oxy:if SHADOW_MAPPING
    v = shadow();
    //@oxy:if GLOBAL_ILLUMINATION
    v = v + gi();
    //@oxy:endif
    //@oxy:else
    v = 1.0;
    //@oxy:endif
    //@oxy:if !TILED_SHADING
    v = v + all_lights();
    //@oxy:endif
    return v;
}`

func TestPreProcessor_SelectsBlocks(t *testing.T) {
	pp := NewPreProcessor()

	out, err := pp.Process(testSource, []string{"SHADOW_MAPPING", "MAX_LIGHTS 8"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "const MAX_LIGHTS: u32 = 8u;"))
	assert.Contains(t, out, "struct LightRecord")
	assert.Contains(t, out, "v = shadow();")
	assert.NotContains(t, out, "gi()")
	assert.NotContains(t, out, "v = 1.0;")
	assert.Contains(t, out, "all_lights()")
	assert.NotContains(t, out, "@oxy:")
	assert.True(t, pp.Defined("MAX_LIGHTS"))
	assert.False(t, pp.Defined("TILED_SHADING"))
}

func TestPreProcessor_ElseAndNested(t *testing.T) {
	pp := NewPreProcessor()

	out, err := pp.Process(testSource, []string{"GLOBAL_ILLUMINATION", "TILED_SHADING"})
	require.NoError(t, err)
	// GI sits inside the inactive SHADOW_MAPPING block and stays out.
	assert.NotContains(t, out, "gi()")
	assert.Contains(t, out, "v = 1.0;")
	assert.NotContains(t, out, "all_lights()")
}

func TestPreProcessor_Errors(t *testing.T) {
	pp := NewPreProcessor()

	_, err := pp.Process("//@oxy:if A\nfoo", nil)
	assert.ErrorContains(t, err, "unterminated")

	_, err = pp.Process("//@oxy:endif", nil)
	assert.Error(t, err)

	_, err = pp.Process("//@oxy:include nope", nil)
	assert.ErrorContains(t, err, "unknown @oxy:include")

	_, err = pp.Process("//@oxy:frobnicate", nil)
	assert.ErrorContains(t, err, "unknown annotation type")

	_, err = pp.Process("", []string{"MAX_LIGHTS eight"})
	assert.Error(t, err)
}

func TestNewPermutation_Key(t *testing.T) {
	p, err := NewPermutation(NewPreProcessor(), "shading", "fn main() {}", []string{"BLOOM_FILTER", "MAX_LIGHTS 4"})
	require.NoError(t, err)
	assert.Equal(t, "shading[BLOOM_FILTER,MAX_LIGHTS 4]", p.Key)
	assert.Contains(t, p.Source, "const MAX_LIGHTS: u32 = 4u;")
}

func TestPreProcessor_SubstitutesValuedOptions(t *testing.T) {
	pp := NewPreProcessor()
	src := "@group(1) @binding(${NORMAL_BINDING}) var normal_map: texture_2d<f32>;"

	out, err := pp.Process(src, []string{"NORMAL_BINDING 4"})
	require.NoError(t, err)
	assert.Contains(t, out, "@binding(4) var normal_map")

	_, err = pp.Process(src, []string{"NORMAL_BINDING"})
	assert.ErrorContains(t, err, "needs a valued option")

	_, err = pp.Process("@binding(${OPEN", nil)
	assert.ErrorContains(t, err, "unterminated substitution")
}
