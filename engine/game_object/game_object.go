package game_object

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// gameObject is the implementation of the GameObject interface.
type gameObject struct {
	mu            sync.RWMutex
	id            uuid.UUID
	enabled       atomic.Bool
	mesh          *renderer.Mesh
	material      *renderer.Material
	attachedLight light.Light

	position      mgl32.Vec3
	scale         mgl32.Vec3
	rotation      mgl32.Vec3 // Euler angles in radians, applied X then Y then Z
	rotationSpeed mgl32.Vec3 // radians per second

	world       mgl32.Mat4
	worldCenter mgl32.Vec3
	worldRadius float32
	dirty       bool
}

// GameObject is a renderable scene entity: a mesh with a material and a
// transform. An attached light follows the object's position.
// Thread-safe for concurrent access.
type GameObject interface {
	// ID returns the object's unique identifier.
	//
	// Returns:
	//   - uuid.UUID: the object ID
	ID() uuid.UUID

	// Enabled returns whether this object is enabled for rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// Mesh returns the object's geometry, or nil.
	Mesh() *renderer.Mesh

	// Material returns the object's material, or nil.
	Material() *renderer.Material

	// Position returns the world position.
	Position() mgl32.Vec3

	// Rotation returns the Euler rotation in radians.
	Rotation() mgl32.Vec3

	// RotationSpeed returns the spin in radians per second applied by Update.
	RotationSpeed() mgl32.Vec3

	// Scale returns the per-axis scale.
	Scale() mgl32.Vec3

	// World returns the object-to-world matrix.
	//
	// Returns:
	//   - mgl32.Mat4: translation * rotation * scale
	World() mgl32.Mat4

	// WorldBounds returns the world-space bounding sphere of the mesh.
	//
	// Returns:
	//   - mgl32.Vec3: the sphere center
	//   - float32: the sphere radius, zero without a mesh
	WorldBounds() (mgl32.Vec3, float32)

	// Update advances the rotation by the rotation speed and refreshes the cached
	// world matrix and bounds. The attached light is moved to the object position.
	//
	// Parameters:
	//   - deltaTime: elapsed seconds
	Update(deltaTime float32)

	// DrawObject returns the draw call data of the object.
	//
	// Returns:
	//   - renderer.DrawObject: mesh, world matrix and material
	DrawObject() renderer.DrawObject

	// SetEnabled sets whether the object is enabled for rendering.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetMesh assigns the object's geometry.
	SetMesh(m *renderer.Mesh)

	// SetMaterial assigns the object's material.
	SetMaterial(m *renderer.Material)

	// SetPosition moves the object.
	//
	// Parameters:
	//   - x, y, z: new position components
	SetPosition(x, y, z float32)

	// SetRotation sets the Euler rotation in radians.
	//
	// Parameters:
	//   - rx, ry, rz: new rotation angles
	SetRotation(rx, ry, rz float32)

	// SetRotationSpeed sets the spin in radians per second.
	//
	// Parameters:
	//   - rx, ry, rz: new rotation speed values
	SetRotationSpeed(rx, ry, rz float32)

	// SetScale sets the per-axis scale.
	//
	// Parameters:
	//   - sx, sy, sz: new scale factors
	SetScale(sx, sy, sz float32)

	// Light returns the Light attached to this object, or nil if none is set.
	//
	// Returns:
	//   - light.Light: the attached light or nil
	Light() light.Light

	// SetLight attaches a Light to this object. Pass nil to detach.
	//
	// Parameters:
	//   - l: the Light to attach, or nil to detach
	SetLight(l light.Light)
}

var _ GameObject = &gameObject{}

// NewGameObject creates a new enabled GameObject with unit scale, configured with the given options.
//
// Parameters:
//   - options: functional options to configure the object
//
// Returns:
//   - GameObject: the newly created object
func NewGameObject(options ...GameObjectBuilderOption) GameObject {
	obj := &gameObject{
		id:    uuid.New(),
		scale: mgl32.Vec3{1, 1, 1},
		dirty: true,
	}
	obj.enabled.Store(true)
	for _, option := range options {
		option(obj)
	}
	obj.refresh()
	return obj
}

func (g *gameObject) ID() uuid.UUID {
	return g.id
}

func (g *gameObject) Enabled() bool {
	return g.enabled.Load()
}

func (g *gameObject) Mesh() *renderer.Mesh {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mesh
}

func (g *gameObject) Material() *renderer.Material {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.material
}

func (g *gameObject) Position() mgl32.Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.position
}

func (g *gameObject) Rotation() mgl32.Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rotation
}

func (g *gameObject) RotationSpeed() mgl32.Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rotationSpeed
}

func (g *gameObject) Scale() mgl32.Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.scale
}

func (g *gameObject) World() mgl32.Mat4 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshLocked()
	return g.world
}

func (g *gameObject) WorldBounds() (mgl32.Vec3, float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshLocked()
	return g.worldCenter, g.worldRadius
}

func (g *gameObject) Update(deltaTime float32) {
	g.mu.Lock()
	if g.rotationSpeed != (mgl32.Vec3{}) {
		g.rotation = g.rotation.Add(g.rotationSpeed.Mul(deltaTime))
		g.dirty = true
	}
	g.refreshLocked()
	pos, l := g.position, g.attachedLight
	g.mu.Unlock()

	if l != nil {
		l.SetPosition(pos)
	}
}

func (g *gameObject) DrawObject() renderer.DrawObject {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshLocked()
	return renderer.DrawObject{Mesh: g.mesh, World: g.world, Material: g.material}
}

func (g *gameObject) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

func (g *gameObject) SetMesh(m *renderer.Mesh) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mesh = m
	g.dirty = true
}

func (g *gameObject) SetMaterial(m *renderer.Material) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.material = m
}

func (g *gameObject) SetPosition(x, y, z float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.position = mgl32.Vec3{x, y, z}
	g.dirty = true
}

func (g *gameObject) SetRotation(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotation = mgl32.Vec3{rx, ry, rz}
	g.dirty = true
}

func (g *gameObject) SetRotationSpeed(rx, ry, rz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rotationSpeed = mgl32.Vec3{rx, ry, rz}
}

func (g *gameObject) SetScale(sx, sy, sz float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scale = mgl32.Vec3{sx, sy, sz}
	g.dirty = true
}

func (g *gameObject) Light() light.Light {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.attachedLight
}

func (g *gameObject) SetLight(l light.Light) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attachedLight = l
}

func (g *gameObject) refresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshLocked()
}

func (g *gameObject) refreshLocked() {
	if !g.dirty {
		return
	}
	rot := mgl32.HomogRotate3DZ(g.rotation[2]).
		Mul4(mgl32.HomogRotate3DY(g.rotation[1])).
		Mul4(mgl32.HomogRotate3DX(g.rotation[0]))
	g.world = mgl32.Translate3D(g.position[0], g.position[1], g.position[2]).
		Mul4(rot).
		Mul4(mgl32.Scale3D(g.scale[0], g.scale[1], g.scale[2]))

	g.worldCenter, g.worldRadius = g.position, 0
	if g.mesh != nil {
		center, radius := g.mesh.Bounds()
		g.worldCenter = mgl32.TransformCoordinate(center, g.world)
		maxScale := max(abs(g.scale[0]), abs(g.scale[1]), abs(g.scale[2]))
		g.worldRadius = radius * maxScale
	}
	g.dirty = false
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
