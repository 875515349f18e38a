package scene

import (
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/google/uuid"
)

// SceneGraph is the view of a scene the deferred renderer consumes: an ordered
// light list, the cameras, and a render entry point that draws every visible
// object through a RenderSystem.
type SceneGraph interface {
	// Lights returns the scene's lights in graph order. The renderer does not
	// reorder them; any priority policy belongs to the graph.
	//
	// Returns:
	//   - []light.Light: the light list
	Lights() []light.Light

	// Cameras returns every camera registered with the scene.
	//
	// Returns:
	//   - []camera.Camera: the camera list
	Cameras() []camera.Camera

	// ActiveCamera returns the camera used when the renderer is given none.
	//
	// Returns:
	//   - camera.Camera: the active camera, or nil
	ActiveCamera() camera.Camera

	// Render draws every enabled object whose bounds intersect the camera frustum.
	// Objects are drawn with rs.DrawMesh so a global shader class set by the caller
	// applies to all of them.
	//
	// Parameters:
	//   - rs: the render system
	//   - cam: the camera, or nil for the active camera
	Render(rs renderer.RenderSystem, cam camera.Camera)
}

// Scene manages game objects, lights and cameras and renders them as a SceneGraph.
// Thread-safe for concurrent access.
type Scene interface {
	SceneGraph

	// Name returns the scene's identifier.
	Name() string

	// Count returns the number of objects in the scene.
	//
	// Returns:
	//   - int: the object count
	Count() int

	// Add adds a GameObject to the scene. A light attached to the object is
	// registered with the scene's light list.
	//
	// Parameters:
	//   - obj: the GameObject to add
	Add(obj game_object.GameObject)

	// Get retrieves a GameObject by its ID. Returns nil if not found.
	//
	// Parameters:
	//   - id: the object's unique ID
	//
	// Returns:
	//   - game_object.GameObject: the object or nil
	Get(id uuid.UUID) game_object.GameObject

	// Remove removes a GameObject, and its attached light, by ID.
	//
	// Parameters:
	//   - id: the object's unique ID
	Remove(id uuid.UUID)

	// Objects returns the objects in insertion order.
	Objects() []game_object.GameObject

	// AddLight appends a light source to the light list.
	//
	// Parameters:
	//   - l: the Light to add
	AddLight(l light.Light)

	// RemoveLight removes a light source by ID.
	//
	// Parameters:
	//   - id: the light ID
	RemoveLight(id uuid.UUID)

	// AddCamera registers a camera. The first camera added becomes active.
	//
	// Parameters:
	//   - cam: the camera
	AddCamera(cam camera.Camera)

	// SetActiveCamera selects the active camera; it is registered if needed.
	//
	// Parameters:
	//   - cam: the camera
	SetActiveCamera(cam camera.Camera)

	// Update advances every object by deltaTime. Objects are updated in parallel on
	// the scene's worker pool; attached lights follow their objects.
	//
	// Parameters:
	//   - deltaTime: elapsed seconds
	Update(deltaTime float32)

	// Clear removes all objects, lights and cameras.
	Clear()
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu      *sync.RWMutex
	name    string
	objects []game_object.GameObject
	index   map[uuid.UUID]game_object.GameObject
	lights  []light.Light
	cameras []camera.Camera
	active  camera.Camera
	logger  common.Logger

	// updatePool runs the parallel per-object update. Workers persist across
	// frames, avoiding per-frame goroutine spawn/teardown overhead.
	updatePool    worker.DynamicWorkerPool
	updateWorkers int
	// chunkSize is the number of objects per update task.
	chunkSize int
	// frustumCulling skips objects whose bounds miss the camera frustum.
	frustumCulling bool
}

var _ Scene = &scene{}

// NewScene creates a new Scene.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		index:          make(map[uuid.UUID]game_object.GameObject),
		logger:         common.NewNopLogger(),
		updateWorkers:  max(runtime.NumCPU()-1, 1),
		chunkSize:      64,
		frustumCulling: true,
	}
	for _, option := range options {
		option(s)
	}
	// Initialize the pool after options so WithUpdateWorkers can override the default.
	s.updatePool = worker.NewDynamicWorkerPool(s.updateWorkers, 256, 1*time.Second)
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *scene) Add(obj game_object.GameObject) {
	if obj == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[obj.ID()]; ok {
		return
	}
	s.objects = append(s.objects, obj)
	s.index[obj.ID()] = obj
	if l := obj.Light(); l != nil {
		s.addLightLocked(l)
	}
}

func (s *scene) Get(id uuid.UUID) game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[id]
}

func (s *scene) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.index[id]
	if !ok {
		return
	}
	delete(s.index, id)
	s.objects = slices.DeleteFunc(s.objects, func(o game_object.GameObject) bool { return o.ID() == id })
	if l := obj.Light(); l != nil {
		s.removeLightLocked(l.ID())
	}
}

func (s *scene) Objects() []game_object.GameObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.objects)
}

func (s *scene) AddLight(l light.Light) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLightLocked(l)
}

func (s *scene) addLightLocked(l light.Light) {
	for _, existing := range s.lights {
		if existing.ID() == l.ID() {
			return
		}
	}
	s.lights = append(s.lights, l)
}

func (s *scene) RemoveLight(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLightLocked(id)
}

func (s *scene) removeLightLocked(id uuid.UUID) {
	s.lights = slices.DeleteFunc(s.lights, func(l light.Light) bool { return l.ID() == id })
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lights)
}

func (s *scene) AddCamera(cam camera.Camera) {
	if cam == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCameraLocked(cam)
}

func (s *scene) addCameraLocked(cam camera.Camera) {
	if !slices.Contains(s.cameras, cam) {
		s.cameras = append(s.cameras, cam)
	}
	if s.active == nil {
		s.active = cam
	}
}

func (s *scene) SetActiveCamera(cam camera.Camera) {
	if cam == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCameraLocked(cam)
	s.active = cam
}

func (s *scene) Cameras() []camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cameras)
}

func (s *scene) ActiveCamera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) Update(deltaTime float32) {
	objects := s.Objects()
	if len(objects) == 0 {
		return
	}

	// Fan the objects out over the update pool in fixed-size chunks. A WaitGroup
	// provides the per-frame barrier since the pool's own Wait blocks until
	// workers idle-exit.
	var wg sync.WaitGroup
	taskID := 0
	for start := 0; start < len(objects); start += s.chunkSize {
		chunk := objects[start:min(start+s.chunkSize, len(objects))]
		wg.Add(1)
		s.updatePool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				for _, obj := range chunk {
					if obj.Enabled() {
						obj.Update(deltaTime)
					}
				}
				return nil, nil
			},
		})
		taskID++
	}
	wg.Wait()
}

func (s *scene) Render(rs renderer.RenderSystem, cam camera.Camera) {
	if rs == nil {
		return
	}
	if cam == nil {
		cam = s.ActiveCamera()
	}
	if cam == nil {
		s.logger.Debugf("scene %s: render skipped, no camera", s.name)
		return
	}
	rs.SetCamera(cam)

	frustum := cam.Frustum()
	for _, obj := range s.Objects() {
		if !obj.Enabled() || obj.Mesh() == nil {
			continue
		}
		if s.frustumCulling {
			center, radius := obj.WorldBounds()
			if !frustum.SphereVisible(center, radius) {
				continue
			}
		}
		if err := rs.UploadMesh(obj.Mesh()); err != nil {
			s.logger.Warnf("scene %s: %v", s.name, err)
			continue
		}
		rs.DrawMesh(obj.DrawObject())
	}
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = nil
	s.index = make(map[uuid.UUID]game_object.GameObject)
	s.lights = nil
	s.cameras = nil
	s.active = nil
}
