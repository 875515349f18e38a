package light

import "github.com/go-gl/mathgl/mgl32"

// LightBuilderOption is a function that configures a Light instance during construction.
type LightBuilderOption func(*lightImpl)

// WithPosition is an option builder that sets the world-space position of the light.
//
// Parameters:
//   - x: the x position component
//   - y: the y position component
//   - z: the z position component
//
// Returns:
//   - LightBuilderOption: a function that applies the position option to a lightImpl
func WithPosition(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.transform.SetCol(3, mgl32.Vec4{x, y, z, 1})
	}
}

// WithDirection is an option builder that orients the light along a direction.
// Apply it after WithPosition; the position is kept.
//
// Parameters:
//   - x: the x direction component
//   - y: the y direction component
//   - z: the z direction component
//
// Returns:
//   - LightBuilderOption: a function that applies the direction option to a lightImpl
func WithDirection(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		pos := l.transform.Col(3).Vec3()
		l.transform = orientTowards(pos, mgl32.Vec3{x, y, z})
	}
}

// WithTransform is an option builder that sets the full world transform.
//
// Parameters:
//   - m: the world transform
//
// Returns:
//   - LightBuilderOption: a function that applies the transform option to a lightImpl
func WithTransform(m mgl32.Mat4) LightBuilderOption {
	return func(l *lightImpl) {
		l.transform = m
	}
}

// WithColor is an option builder that sets the RGB color of the light.
//
// Parameters:
//   - r: the red color component
//   - g: the green color component
//   - b: the blue color component
//
// Returns:
//   - LightBuilderOption: a function that applies the color option to a lightImpl
func WithColor(r, g, b float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.color = mgl32.Vec3{r, g, b}
	}
}

// WithVolumetricRadius is an option builder that makes the light volumetric with
// the given falloff radius.
//
// Parameters:
//   - radius: the falloff radius in world units
//
// Returns:
//   - LightBuilderOption: a function that applies the radius option to a lightImpl
func WithVolumetricRadius(radius float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.volumetric = true
		l.radius = radius
	}
}

// WithSpotCone is an option builder that sets the inner and outer cone angles for
// spot lights, in degrees.
//
// Parameters:
//   - inner: inner cone angle in degrees
//   - outer: outer cone angle in degrees
//
// Returns:
//   - LightBuilderOption: a function that applies the spot cone option to a lightImpl
func WithSpotCone(inner, outer float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.innerCone = inner
		l.outerCone = outer
	}
}

// WithVisible is an option builder that sets whether the light is rendered.
//
// Parameters:
//   - visible: true to render the light
//
// Returns:
//   - LightBuilderOption: a function that applies the visibility option to a lightImpl
func WithVisible(visible bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.visible = visible
	}
}

// WithShadow is an option builder that sets whether the light is eligible for
// shadow map rendering.
//
// Parameters:
//   - shadow: true to enable shadow casting
//
// Returns:
//   - LightBuilderOption: a function that applies the shadow option to a lightImpl
func WithShadow(shadow bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.shadow = shadow
	}
}
