package deferred

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrInvalidResolution is returned when a render target size is not positive.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrInvalidLightCount is returned when a light capacity is not positive.
	ErrInvalidLightCount = errors.New("invalid light count")

	// ErrResourceReleased is returned when a pass is used after its resources were released.
	ErrResourceReleased = errors.New("resources released")

	// ErrMissingInput is returned when a pass is missing its scene graph, camera or depth input.
	ErrMissingInput = errors.New("missing pass input")
)

const (
	// DefaultGIReflectivity scales indirect light from virtual point lights.
	DefaultGIReflectivity float32 = 0.1

	// VPLCount is the number of virtual point lights sampled per shadowed light.
	VPLCount = 100
)

// DefaultAmbientColor is the ambient term added to every lit pixel.
var DefaultAmbientColor = mgl32.Vec3{0.07, 0.07, 0.07}

// Config is the resource configuration of one GenerateResources call.
type Config struct {
	// Flags selects the shader permutations and optional passes.
	Flags Flags
	// ShadowTexSize is the edge length of one shadow map slot, rounded up to a power of two.
	ShadowTexSize int
	// MaxPointLights is the capacity of the light buffer and the cube shadow map array.
	MaxPointLights int
	// MaxSpotLights is the capacity of the extended light buffer and the 2D shadow map array.
	MaxSpotLights int
	// MultiSampling is the G-Buffer MSAA sample count. Zero or one disables it.
	MultiSampling int
	// VarianceShadowMaps stores depth and squared depth for filtered shadows.
	VarianceShadowMaps bool
}

// DefaultConfig returns the configuration used when the caller passes no overrides.
//
// Returns:
//   - Config: 256 texel shadow maps, 8 point and 8 spot lights, no flags
func DefaultConfig() Config {
	return Config{
		ShadowTexSize:  light.DefaultShadowTexSize,
		MaxPointLights: light.DefaultMaxPointLights,
		MaxSpotLights:  light.DefaultMaxSpotLights,
	}
}

// normalize returns the configuration the renderer actually builds: flags
// sanitized, light maxima clamped to at least one, the point light capacity
// raised to cover every spot light, and the shadow size a power of two.
func (c Config) normalize() Config {
	c.Flags = c.Flags.Sanitize()
	c.MaxPointLights = max(c.MaxPointLights, 1)
	c.MaxSpotLights = max(c.MaxSpotLights, 1)
	c.MaxPointLights = max(c.MaxPointLights, c.MaxSpotLights)
	if c.ShadowTexSize <= 0 {
		c.ShadowTexSize = light.DefaultShadowTexSize
	}
	c.ShadowTexSize = common.NextPowerOfTwo(c.ShadowTexSize)
	c.MultiSampling = max(c.MultiSampling, 0)
	return c
}

func (c Config) String() string {
	return fmt.Sprintf("flags=%s shadow=%d lights=%d/%d msaa=%d vsm=%t",
		c.Flags, c.ShadowTexSize, c.MaxPointLights, c.MaxSpotLights, c.MultiSampling, c.VarianceShadowMaps)
}
