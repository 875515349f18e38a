package deferred

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

const (
	testWidth  = 320
	testHeight = 240
)

func testViewer() camera.Camera {
	return camera.NewCamera(
		camera.WithLookAt(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 0}),
		camera.WithViewport(common.Size2D{Width: testWidth, Height: testHeight}),
	)
}

func pointLight(x, y, z float32, shadow bool) light.Light {
	return light.NewLight(light.LightTypePoint, light.WithPosition(x, y, z), light.WithShadow(shadow))
}

func spotLight(shadow bool) light.Light {
	return light.NewLight(light.LightTypeSpot,
		light.WithPosition(0, 4, 4),
		light.WithDirection(0, -1, -1),
		light.WithSpotCone(20, 35),
		light.WithShadow(shadow),
	)
}

func testScene(lights ...light.Light) scene.Scene {
	return scene.NewScene("deferred-test", scene.WithLights(lights...), scene.WithCamera(testViewer()))
}

// newAggregator builds a light aggregator with a shadow mapper for cfg on a
// fresh recorder.
func newAggregator(t *testing.T, cfg Config) (*LightAggregator, *ShadowMapper, *renderertest.Recorder) {
	t.Helper()
	cfg = cfg.normalize()
	rs := renderertest.NewRecorder(testWidth, testHeight)
	logger := common.NewNopLogger()

	var shadows *ShadowMapper
	if cfg.Flags.Has(FlagShadowMapping) {
		shadows = NewShadowMapper(rs, logger)
		require.NoError(t, shadows.Create(shader.NewPreProcessor(), cfg))
	}
	agg := NewLightAggregator(rs, logger)
	require.NoError(t, agg.Create(cfg, shadows, nil))
	return agg, shadows, rs
}
