package engine

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameRecorder adds the frame bracket of a presentable surface to a Recorder.
type frameRecorder struct {
	*renderertest.Recorder
	begun, ended, presented int
	failBegin              error
}

func (f *frameRecorder) BeginFrame() error {
	if f.failBegin != nil {
		return f.failBegin
	}
	f.begun++
	return nil
}

func (f *frameRecorder) EndFrame() { f.ended++ }

func (f *frameRecorder) Present() { f.presented++ }

func (f *frameRecorder) Resize(width, height int) {
	f.SetResolution(common.Size2D{Width: width, Height: height})
}

func (f *frameRecorder) SetPresentMode(renderer.PresentMode) {}

func (f *frameRecorder) Release() {}

var _ renderer.FrameRenderSystem = &frameRecorder{}

func newTestEngine(t *testing.T, options ...EngineBuilderOption) (*engine, *frameRecorder, *scene.StreamingScene) {
	t.Helper()
	rs := &frameRecorder{Recorder: renderertest.NewRecorder(320, 240)}
	p := profiler.NewProfiler(profiler.WithMemoryStats(false))
	r := deferred.NewRenderer(rs, deferred.WithPassTimer(p))
	require.True(t, r.GenerateResources(deferred.FlagShadowMapping, 64, 2, 1, 0))

	cam := camera.NewCamera(
		camera.WithLookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}),
		camera.WithViewport(common.Size2D{Width: 320, Height: 240}),
	)
	s := scene.NewStreamingScene("engine-test", scene.WithCamera(cam))

	opts := append([]EngineBuilderOption{
		WithRenderSystem(rs),
		WithRenderer(r),
		WithScene(s),
		WithProfiler(p),
		WithShutdownBinder(nil),
	}, options...)
	return NewEngine(opts...).(*engine), rs, s
}

func TestEngine_RunNeedsConfiguration(t *testing.T) {
	e := NewEngine()
	assert.ErrorIs(t, e.Run(), ErrNotConfigured)
}

func TestEngine_RenderFrame(t *testing.T) {
	e, rs, s := newTestEngine(t)
	s.QueueAddLight(light.NewLight(light.LightTypePoint, light.WithPosition(0, 1, 0)))

	e.renderFrame(1.0 / 60)

	assert.Zero(t, s.Pending(), "queued changes are flushed before the frame")
	assert.Len(t, s.Lights(), 1)
	assert.Equal(t, 1, rs.begun)
	assert.Equal(t, 1, rs.ended)
	assert.Equal(t, 1, rs.presented)
	assert.Len(t, rs.EventsOf(renderertest.EventDrawQuad), 1)

	points, _ := e.Renderer().LightCounts()
	assert.Equal(t, 1, points)

	var names []string
	for _, pass := range e.Profiler().Passes() {
		names = append(names, pass.Name)
	}
	assert.Equal(t, []string{deferred.PassGBuffer, deferred.PassLights, deferred.PassShading}, names)
}

func TestEngine_RenderFrameAppliesResize(t *testing.T) {
	e, _, s := newTestEngine(t)
	size := common.Size2D{Width: 640, Height: 360}
	e.pendingResize.Store(&size)

	e.renderFrame(0)

	assert.Equal(t, size, e.Renderer().Resolution())
	assert.Equal(t, size, e.RenderSystem().Resolution())
	assert.Equal(t, size, s.ActiveCamera().Viewport())
	assert.Nil(t, e.pendingResize.Load())
}

func TestEngine_RenderThreadQueue(t *testing.T) {
	e, _, _ := newTestEngine(t)

	var ran []int
	require.True(t, e.RunOnRenderThread(func() { ran = append(ran, 1) }))
	require.True(t, e.RunOnRenderThread(func() {
		ran = append(ran, 2)
		e.Renderer().GenerateResources(deferred.FlagBloom, 64, 2, 1, 0)
	}))
	assert.Empty(t, ran, "nothing runs before the frame")

	e.renderFrame(0)
	assert.Equal(t, []int{1, 2}, ran)
	assert.True(t, e.Renderer().Config().Flags.Has(deferred.FlagBloom))

	for range renderQueueSize {
		e.RunOnRenderThread(func() {})
	}
	assert.False(t, e.RunOnRenderThread(func() {}))
}

func TestEngine_BeginFrameFailureSkipsRendering(t *testing.T) {
	e, rs, _ := newTestEngine(t)
	rs.failBegin = errors.New("surface lost")

	rendered := false
	e.SetRenderCallback(func(float32) { rendered = true })
	e.renderFrame(0)

	assert.Zero(t, rs.presented)
	assert.Empty(t, rs.EventsOf(renderertest.EventDrawQuad))
	assert.True(t, rendered, "the render callback runs every frame")
}

func TestEngine_NoSceneDrawsNothing(t *testing.T) {
	e, rs, _ := newTestEngine(t)
	e.SetScene(nil)

	e.renderFrame(0)
	assert.Zero(t, rs.begun)
	assert.Nil(t, e.Scene())
}

func TestEngine_QuitIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Quit()
	e.Quit()
	assert.False(t, e.running.Load())
	select {
	case <-e.quitChannel:
	default:
		t.Fatal("quit channel still open")
	}
}

func TestEngine_ShutdownHookQuits(t *testing.T) {
	var hooks []func()
	e, _, _ := newTestEngine(t, WithShutdownBinder(func(cleanup func()) {
		hooks = append(hooks, cleanup)
	}))
	require.Len(t, hooks, 1)

	hooks[0]()
	select {
	case <-e.quitChannel:
	default:
		t.Fatal("shutdown hook did not quit the engine")
	}
}

func TestEngine_TickRate(t *testing.T) {
	e, _, _ := newTestEngine(t, WithTickRate(30))
	assert.Equal(t, int64(33333333), e.engineTickRate.Nanoseconds())

	e.SetTickRate(0)
	assert.Equal(t, int64(16666666), e.engineTickRate.Nanoseconds())

	e.SetRenderFrameLimit(120)
	assert.Equal(t, int64(8333333), e.renderFrameLimit.Nanoseconds())
	e.SetRenderFrameLimit(0)
	assert.Zero(t, e.renderFrameLimit)
}
