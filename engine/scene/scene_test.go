package scene

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubeMesh() *renderer.Mesh {
	return renderer.NewMesh("cube", []renderer.Vertex{
		{Position: mgl32.Vec3{-1, -1, -1}},
		{Position: mgl32.Vec3{1, 1, 1}},
		{Position: mgl32.Vec3{1, -1, 1}},
	}, []uint32{0, 1, 2})
}

func testCamera() camera.Camera {
	return camera.NewCamera(
		camera.WithLookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 0}),
		camera.WithViewport(common.Size2D{Width: 640, Height: 480}),
	)
}

func TestScene_RenderCullsAgainstFrustum(t *testing.T) {
	mesh := cubeMesh()
	visible := game_object.NewGameObject(game_object.WithMesh(mesh))
	behind := game_object.NewGameObject(game_object.WithMesh(mesh), game_object.WithPosition(0, 0, 50))
	disabled := game_object.NewGameObject(game_object.WithMesh(mesh), game_object.WithEnabled(false))

	s := NewScene("test", WithObjects(visible, behind, disabled), WithCamera(testCamera()))
	rs := renderertest.NewRecorder(640, 480)

	s.Render(rs, nil)

	draws := rs.EventsOf(renderertest.EventDrawMesh)
	require.Len(t, draws, 1)
	assert.Equal(t, visible.World(), draws[0].Object.World)
	assert.False(t, mesh.Handle().IsZero(), "mesh uploaded lazily")
}

func TestScene_RenderWithoutCameraIsNoOp(t *testing.T) {
	s := NewScene("test", WithObjects(game_object.NewGameObject(game_object.WithMesh(cubeMesh()))))
	rs := renderertest.NewRecorder(64, 64)

	s.Render(rs, nil)
	assert.Empty(t, rs.Events())
}

func TestScene_AttachedLightsFollowObjects(t *testing.T) {
	l := light.NewLight(light.LightTypePoint)
	obj := game_object.NewGameObject(game_object.WithLight(l), game_object.WithPosition(1, 2, 3))
	s := NewScene("test", WithUpdateWorkers(2))

	s.Add(obj)
	require.Len(t, s.Lights(), 1)

	s.Update(0.016)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, l.Position())

	s.Remove(obj.ID())
	assert.Empty(t, s.Lights())
	assert.Equal(t, 0, s.Count())
}

func TestScene_LightOrderPreserved(t *testing.T) {
	a := light.NewLight(light.LightTypePoint)
	b := light.NewLight(light.LightTypeSpot)
	c := light.NewLight(light.LightTypeDirectional)
	s := NewScene("test", WithLights(a, b, c))

	lights := s.Lights()
	require.Len(t, lights, 3)
	assert.Equal(t, a.ID(), lights[0].ID())
	assert.Equal(t, b.ID(), lights[1].ID())
	assert.Equal(t, c.ID(), lights[2].ID())

	s.RemoveLight(b.ID())
	assert.Len(t, s.Lights(), 2)
}

func TestScene_UpdateManyObjectsInParallel(t *testing.T) {
	s := NewScene("test", WithUpdateWorkers(4))
	for range 300 {
		s.Add(game_object.NewGameObject(game_object.WithRotationSpeed(0, 1, 0)))
	}

	s.Update(0.5)
	for _, obj := range s.Objects() {
		assert.InDelta(t, 0.5, obj.Rotation()[1], 1e-6)
	}
}

func TestStreamingScene_ChangesApplyOnFlush(t *testing.T) {
	s := NewStreamingScene("stream")
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.QueueAdd(game_object.NewGameObject())
			s.QueueAddLight(light.NewLight(light.LightTypePoint))
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, s.Count(), "nothing visible before flush")
	assert.Equal(t, 16, s.Pending())

	assert.Equal(t, 16, s.Flush())
	assert.Equal(t, 8, s.Count())
	assert.Len(t, s.Lights(), 8)
	assert.Equal(t, 0, s.Pending())

	obj := s.Objects()[0]
	s.QueueRemove(obj.ID())
	s.Flush()
	assert.Nil(t, s.Get(obj.ID()))
}
