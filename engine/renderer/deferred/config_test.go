package deferred

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Normalize(t *testing.T) {
	cfg := Config{
		Flags:          FlagParallaxMapping | FlagShadowMapping,
		ShadowTexSize:  300,
		MaxPointLights: 2,
		MaxSpotLights:  5,
		MultiSampling:  -1,
	}.normalize()

	assert.Equal(t, FlagShadowMapping, cfg.Flags)
	assert.Equal(t, 512, cfg.ShadowTexSize)
	assert.Equal(t, 5, cfg.MaxPointLights, "point capacity raised to the spot capacity")
	assert.Equal(t, 5, cfg.MaxSpotLights)
	assert.Equal(t, 0, cfg.MultiSampling)
}

func TestConfig_NormalizeRaisesZeroCapacities(t *testing.T) {
	cfg := Config{}.normalize()
	assert.Equal(t, 1, cfg.MaxPointLights)
	assert.Equal(t, 1, cfg.MaxSpotLights)
	assert.Positive(t, cfg.ShadowTexSize)
}
