package scene

import (
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithObjects adds initial objects to the scene. Attached lights are registered.
//
// Parameters:
//   - objects: the objects to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithObjects(objects ...game_object.GameObject) SceneBuilderOption {
	return func(s *scene) {
		for _, obj := range objects {
			if obj == nil {
				continue
			}
			if _, ok := s.index[obj.ID()]; ok {
				continue
			}
			s.objects = append(s.objects, obj)
			s.index[obj.ID()] = obj
			if l := obj.Light(); l != nil {
				s.addLightLocked(l)
			}
		}
	}
}

// WithLights appends initial lights to the light list in order.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			if l != nil {
				s.addLightLocked(l)
			}
		}
	}
}

// WithCamera registers a camera and makes it active.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		if cam != nil {
			s.addCameraLocked(cam)
			s.active = cam
		}
	}
}

// WithUpdateWorkers sets the number of worker goroutines used by Update.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithUpdateWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.updateWorkers = n
	}
}

// WithFrustumCulling enables or disables CPU frustum culling in Render. Enabled by default.
//
// Parameters:
//   - enabled: true to cull objects outside the camera frustum
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithFrustumCulling(enabled bool) SceneBuilderOption {
	return func(s *scene) {
		s.frustumCulling = enabled
	}
}

// WithLogger sets the scene's logger.
func WithLogger(logger common.Logger) SceneBuilderOption {
	return func(s *scene) {
		s.logger = logger
	}
}
