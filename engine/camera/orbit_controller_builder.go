package camera

import "github.com/go-gl/mathgl/mgl32"

// OrbitControllerOption is a functional option applied to an orbit controller during construction.
type OrbitControllerOption func(*orbitController)

// WithRadius sets the initial distance from the target.
//
// Parameters:
//   - radius: the distance, clamped to the radius bounds
//
// Returns:
//   - OrbitControllerOption: a function that sets the radius
func WithRadius(radius float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.radius = radius
	}
}

// WithAngles sets the initial azimuth and elevation in radians.
func WithAngles(azimuth, elevation float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.azimuth = azimuth
		oc.elevation = elevation
	}
}

// WithTarget sets the orbit center.
func WithTarget(target mgl32.Vec3) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.target = target
	}
}

// WithRadiusBounds sets the closest and farthest zoom distances.
//
// Parameters:
//   - minRadius: the closest distance
//   - maxRadius: the farthest distance
//
// Returns:
//   - OrbitControllerOption: a function that sets the radius bounds
func WithRadiusBounds(minRadius, maxRadius float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.minRadius, oc.maxRadius = minRadius, maxRadius
	}
}

// WithElevationBounds sets the lowest and highest elevation in radians.
func WithElevationBounds(minElevation, maxElevation float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.minElevation, oc.maxElevation = minElevation, maxElevation
	}
}

// WithOrbitSpeed sets the angle of one orbit step in radians.
func WithOrbitSpeed(speed float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the distance of one zoom step.
func WithZoomSpeed(speed float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.zoomSpeed = speed
	}
}
