package deferred

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// allFlags enumerates every combination of the defined flag bits.
func allFlags() []Flags {
	out := make([]Flags, 0, 1<<len(flagNames))
	for mask := 0; mask < 1<<len(flagNames); mask++ {
		var f Flags
		for i, n := range flagNames {
			if mask&(1<<i) != 0 {
				f |= n.flag
			}
		}
		out = append(out, f)
	}
	return out
}

func TestFlags_SanitizeIsIdempotent(t *testing.T) {
	for _, f := range allFlags() {
		once := f.Sanitize()
		if once.Sanitize() != once {
			t.Fatalf("sanitize(%s) not idempotent: %s", f, once)
		}
	}
}

func TestFlags_SanitizeIsPrerequisiteClosed(t *testing.T) {
	for _, f := range allFlags() {
		s := f.Sanitize()
		for _, r := range flagRequires {
			if s.Has(r.dependent) && !s.Has(r.prerequisite) {
				t.Fatalf("sanitize(%s) kept %s without its prerequisite", f, r.dependent)
			}
		}
		// Sanitizing only ever clears bits.
		assert.Equal(t, s, s&f)
	}
}

// Dependent flags without a prerequisite are cleared without any error. This
// is permissive: a caller asking for parallax mapping alone silently gets
// neither.
func TestFlags_SanitizeClearsSilently(t *testing.T) {
	assert.Equal(t, Flags(0), FlagParallaxMapping.Sanitize())
	assert.Equal(t, FlagNormalMapping, (FlagNormalMapping | FlagNormalMapXYZH).Sanitize())
	assert.Equal(t, FlagBloom, (FlagBloom | FlagGlobalIllumination | FlagUseVPLOptimization | FlagDebugVirtualPointLights).Sanitize())

	full := FlagShadowMapping | FlagGlobalIllumination | FlagUseVPLOptimization | FlagDebugVirtualPointLights
	assert.Equal(t, full, full.Sanitize())
}

func TestFlags_String(t *testing.T) {
	assert.Equal(t, "NONE", Flags(0).String())
	assert.Equal(t, "NORMAL_MAPPING|SHADOW_MAPPING", (FlagShadowMapping | FlagNormalMapping).String())
}
