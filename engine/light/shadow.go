package light

import "github.com/go-gl/mathgl/mgl32"

// DefaultShadowTexSize is the default width and height in texels of each shadow
// map slot. The renderer rounds the configured size up to a power of two.
const DefaultShadowTexSize = 256

// DefaultMaxPointLights is the default capacity of the point light buffer and
// the cube shadow map array.
const DefaultMaxPointLights = 8

// DefaultMaxSpotLights is the default capacity of the extended light buffer and
// the 2D shadow map array.
const DefaultMaxSpotLights = 8

// ShadowNear is the near plane of every shadow projection.
const ShadowNear float32 = 0.01

// ShadowFar is the far plane of every shadow projection.
const ShadowFar float32 = 1000.0

// DirectionalShadowHalfExtent is the orthographic half-extent in world units
// of a directional light's shadow frustum, centered on the viewer.
const DirectionalShadowHalfExtent float32 = 40.0

// CubeFaceDirections holds the look direction and up vector of each cube map
// face in +X, -X, +Y, -Y, +Z, -Z order.
var CubeFaceDirections = [6][2]mgl32.Vec3{
	{{1, 0, 0}, {0, -1, 0}},
	{{-1, 0, 0}, {0, -1, 0}},
	{{0, 1, 0}, {0, 0, 1}},
	{{0, -1, 0}, {0, 0, -1}},
	{{0, 0, 1}, {0, -1, 0}},
	{{0, 0, -1}, {0, -1, 0}},
}

// CubeFaceView builds the view matrix for one face of a point light's cube map.
//
// Parameters:
//   - pos: the light position
//   - face: the cube face index in [0, 6)
//
// Returns:
//   - mgl32.Mat4: the face view matrix
func CubeFaceView(pos mgl32.Vec3, face int) mgl32.Mat4 {
	dir, up := CubeFaceDirections[face][0], CubeFaceDirections[face][1]
	return mgl32.LookAtV(pos, pos.Add(dir), up)
}
