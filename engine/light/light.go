package light

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// LightType identifies the kind of light source. The numeric values are part of
// the GPU light record layout and must match the shading shader.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Used for large distant sources like the sun or moon. Affects all fragments
	// uniformly with no distance attenuation.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position.
	// Attenuates with distance when volumetric. Shadows go into a cube map slot.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position along a direction.
	// Attenuates with both distance and angle from the cone axis, controlled by
	// inner and outer cone angles. Shadows go into a 2D shadow map slot.
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "Directional"
	case LightTypePoint:
		return "Point"
	case LightTypeSpot:
		return "Spot"
	}
	return "Unknown"
}

// NonVolumetricRadius is the falloff radius assumed for lights that are not
// volumetric. The GPU record stores its reciprocal.
const NonVolumetricRadius float32 = 1000.0

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu *sync.RWMutex

	id        uuid.UUID
	lightType LightType
	transform mgl32.Mat4
	color     mgl32.Vec3

	visible    bool
	shadow     bool
	volumetric bool
	radius     float32

	innerCone float32 // degrees
	outerCone float32 // degrees
}

// Light defines the interface for a light source consumed by the deferred renderer.
//
// All light types share this interface; type-specific properties (e.g. cone
// angles for spot lights) are ignored where they do not apply. The renderer
// reads lights once per frame from the scene graph and packs them into
// fixed-size GPU records, so implementations must be safe to read while the
// owning application mutates them from another goroutine.
type Light interface {
	// ID returns the unique identity of the light.
	//
	// Returns:
	//   - uuid.UUID: the light identity
	ID() uuid.UUID

	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type (directional, point, or spot)
	Type() LightType

	// Visible returns whether the light takes part in rendering this frame.
	// Invisible lights are skipped by the light aggregator.
	//
	// Returns:
	//   - bool: true if the light is visible
	Visible() bool

	// Position returns the world-space position of the light, the translation
	// part of its transform. Directional lights only use it as the shadow
	// camera origin.
	//
	// Returns:
	//   - mgl32.Vec3: position as (x, y, z)
	Position() mgl32.Vec3

	// Direction returns the normalized world-space direction of the light,
	// derived from the transform's rotation applied to the local -Z axis.
	//
	// Returns:
	//   - mgl32.Vec3: unit-length direction
	Direction() mgl32.Vec3

	// Transform returns the world transformation matrix of the light.
	//
	// Returns:
	//   - mgl32.Mat4: the world transform
	Transform() mgl32.Mat4

	// Color returns the linear RGB diffuse color of the light.
	//
	// Returns:
	//   - mgl32.Vec3: color as (r, g, b)
	Color() mgl32.Vec3

	// Shadow returns whether the light is eligible for shadow map rendering.
	//
	// Returns:
	//   - bool: true if the light casts shadows
	Shadow() bool

	// Volumetric returns whether the light attenuates with distance.
	//
	// Returns:
	//   - bool: true if the light has a finite falloff radius
	Volumetric() bool

	// VolumetricRadius returns the falloff radius used when the light is volumetric.
	//
	// Returns:
	//   - float32: the radius in world units
	VolumetricRadius() float32

	// SpotCone returns the inner and outer cone angles of a spot light in degrees.
	//
	// Returns:
	//   - inner: angle of full intensity
	//   - outer: angle beyond which the light contributes nothing
	SpotCone() (inner, outer float32)

	// SetVisible shows or hides the light.
	//
	// Parameters:
	//   - visible: true to include the light in rendering
	SetVisible(visible bool)

	// SetPosition moves the light, keeping its orientation.
	//
	// Parameters:
	//   - pos: new world-space position
	SetPosition(pos mgl32.Vec3)

	// SetDirection re-orients the light so that it points along dir, keeping
	// its position.
	//
	// Parameters:
	//   - dir: new direction (will be normalized)
	SetDirection(dir mgl32.Vec3)

	// SetTransform replaces the world transform.
	//
	// Parameters:
	//   - m: the new world transform
	SetTransform(m mgl32.Mat4)

	// SetColor sets the RGB color of the light.
	//
	// Parameters:
	//   - c: color as (r, g, b)
	SetColor(c mgl32.Vec3)

	// SetShadow enables or disables shadow casting.
	//
	// Parameters:
	//   - shadow: true to cast shadows
	SetShadow(shadow bool)

	// SetVolumetric enables or disables distance attenuation.
	//
	// Parameters:
	//   - volumetric: true to attenuate with distance
	SetVolumetric(volumetric bool)

	// SetVolumetricRadius sets the falloff radius.
	//
	// Parameters:
	//   - radius: radius in world units
	SetVolumetricRadius(radius float32)

	// SetSpotCone sets the inner and outer cone angles in degrees.
	//
	// Parameters:
	//   - inner: inner cone angle in degrees
	//   - outer: outer cone angle in degrees
	SetSpotCone(inner, outer float32)
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the specified type with sensible defaults and
// any provided options applied.
//
// Parameters:
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:        &sync.RWMutex{},
		id:        uuid.New(),
		lightType: lightType,
		transform: mgl32.Ident4(),
		color:     mgl32.Vec3{1, 1, 1},
		visible:   true,
		radius:    10.0,
		innerCone: 30.0,
		outerCone: 60.0,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) ID() uuid.UUID {
	return l.id
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Visible() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.visible
}

func (l *lightImpl) Position() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return common.TransformPosition(l.transform)
}

func (l *lightImpl) Direction() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return common.TransformDirection(l.transform)
}

func (l *lightImpl) Transform() mgl32.Mat4 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.transform
}

func (l *lightImpl) Color() mgl32.Vec3 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.color
}

func (l *lightImpl) Shadow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.shadow
}

func (l *lightImpl) Volumetric() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.volumetric
}

func (l *lightImpl) VolumetricRadius() float32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.radius
}

func (l *lightImpl) SpotCone() (inner, outer float32) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.innerCone, l.outerCone
}

func (l *lightImpl) SetVisible(visible bool) {
	l.mu.Lock()
	l.visible = visible
	l.mu.Unlock()
}

func (l *lightImpl) SetPosition(pos mgl32.Vec3) {
	l.mu.Lock()
	l.transform.SetCol(3, pos.Vec4(1))
	l.mu.Unlock()
}

func (l *lightImpl) SetDirection(dir mgl32.Vec3) {
	l.mu.Lock()
	l.transform = orientTowards(common.TransformPosition(l.transform), dir)
	l.mu.Unlock()
}

func (l *lightImpl) SetTransform(m mgl32.Mat4) {
	l.mu.Lock()
	l.transform = m
	l.mu.Unlock()
}

func (l *lightImpl) SetColor(c mgl32.Vec3) {
	l.mu.Lock()
	l.color = c
	l.mu.Unlock()
}

func (l *lightImpl) SetShadow(shadow bool) {
	l.mu.Lock()
	l.shadow = shadow
	l.mu.Unlock()
}

func (l *lightImpl) SetVolumetric(volumetric bool) {
	l.mu.Lock()
	l.volumetric = volumetric
	l.mu.Unlock()
}

func (l *lightImpl) SetVolumetricRadius(radius float32) {
	l.mu.Lock()
	l.radius = radius
	l.mu.Unlock()
}

func (l *lightImpl) SetSpotCone(inner, outer float32) {
	l.mu.Lock()
	l.innerCone, l.outerCone = inner, outer
	l.mu.Unlock()
}

// orientTowards builds a world transform at pos whose local -Z axis points
// along dir. A zero direction keeps the identity orientation.
func orientTowards(pos, dir mgl32.Vec3) mgl32.Mat4 {
	if dir.Len() == 0 {
		return mgl32.Translate3D(pos.X(), pos.Y(), pos.Z())
	}
	view := common.LookTowards(pos, dir)
	return view.Inv()
}
