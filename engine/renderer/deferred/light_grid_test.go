package deferred

import (
	"math"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGrid(t *testing.T, size common.Size2D, maxLights int) (*TiledLightGrid, *renderertest.Recorder, *renderer.Texture) {
	t.Helper()
	rs := renderertest.NewRecorder(size.Width, size.Height)
	g := NewTiledLightGrid(rs, WithGridWorkers(2))
	require.NoError(t, g.CreateGrid(size, maxLights))
	depth, err := rs.CreateTexture(renderer.TextureConfig{Label: "depth", Size: size, Format: renderer.FormatRGBA16F, RenderTarget: true})
	require.NoError(t, err)
	return g, rs, depth
}

func fillDepth(size common.Size2D, d float32) []float32 {
	values := make([]float32, size.Area())
	for i := range values {
		values[i] = d
	}
	return values
}

func TestTiledLightGrid_TileCounts(t *testing.T) {
	for _, size := range []common.Size2D{{Width: 320, Height: 240}, {Width: 1000, Height: 700}, {Width: 31, Height: 33}} {
		g, _, _ := newTestGrid(t, size, 4)
		numX, numY := g.NumTiles()
		assert.Equal(t, common.CeilDiv(size.Width, light.TileSize), numX)
		assert.Equal(t, common.CeilDiv(size.Height, light.TileSize), numY)
		assert.Equal(t, numX*numY, g.TileCount())
	}
}

func TestTiledLightGrid_CreateRejectsBadInput(t *testing.T) {
	g := NewTiledLightGrid(renderertest.NewRecorder(8, 8))
	assert.ErrorIs(t, g.CreateGrid(common.Size2D{}, 4), ErrInvalidResolution)
	assert.ErrorIs(t, g.CreateGrid(common.Size2D{Width: 8, Height: 8}, 0), ErrInvalidLightCount)
}

func TestTiledLightGrid_CullsAgainstTileFrustums(t *testing.T) {
	size := common.Size2D{Width: testWidth, Height: testHeight}
	g, _, depth := newTestGrid(t, size, 4)

	g.UpdateLights([]mgl32.Vec4{
		{0, 0, 0, 1},
		{0, 0, 0, float32(math.Inf(1))},
	})
	require.NoError(t, g.Build(testScene(), testViewer(), depth))

	assert.Equal(t, []uint32{0, 1}, g.Tile(5, 3), "centre tile sees the small light")
	assert.Equal(t, []uint32{1}, g.Tile(0, 0), "corner tile sees only the directional light")
	assert.Nil(t, g.Tile(-1, 0))
	assert.Nil(t, g.Tile(g.numX, 0))
}

func TestTiledLightGrid_CullsAgainstTileDepth(t *testing.T) {
	size := common.Size2D{Width: testWidth, Height: testHeight}
	g, rs, depth := newTestGrid(t, size, 4)
	g.UpdateLights([]mgl32.Vec4{{0, 0, 0, 1}})

	rs.SetDepth(depth, fillDepth(size, 50))
	require.NoError(t, g.Build(testScene(), testViewer(), depth))
	assert.Empty(t, g.Tile(5, 3), "light in front of every surface of the tile")

	rs.SetDepth(depth, fillDepth(size, 10))
	require.NoError(t, g.Build(testScene(), testViewer(), depth))
	assert.Equal(t, []uint32{0}, g.Tile(5, 3))
}

func TestTiledLightGrid_PerTileCapacity(t *testing.T) {
	size := common.Size2D{Width: 64, Height: 64}
	g, rs, depth := newTestGrid(t, size, 2)
	inf := float32(math.Inf(1))
	g.UpdateLights([]mgl32.Vec4{{0, 0, 0, inf}, {0, 0, 0, inf}, {0, 0, 0, inf}})
	require.NoError(t, g.Build(testScene(), testViewer(), depth))

	for y := range 2 {
		for x := range 2 {
			assert.Equal(t, []uint32{0, 1}, g.Tile(x, y))
		}
	}
	writes := rs.EventsOf(renderertest.EventWriteBuffer)
	idx := slices.IndexFunc(writes, func(e renderertest.Event) bool { return e.Buffer.Config().Label == "Light Grid Indices" })
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 4*2*4, writes[idx].Count)
}

func TestTiledLightGrid_BuildNeedsInputs(t *testing.T) {
	g, _, depth := newTestGrid(t, common.Size2D{Width: 64, Height: 64}, 2)
	assert.ErrorIs(t, g.Build(nil, testViewer(), depth), ErrMissingInput)
	assert.ErrorIs(t, g.Build(testScene(), nil, depth), ErrMissingInput)

	require.NoError(t, g.Release())
	assert.ErrorIs(t, g.Build(testScene(), testViewer(), depth), ErrResourceReleased)
}

func TestTiledLightGrid_BindOrder(t *testing.T) {
	g, rs, _ := newTestGrid(t, common.Size2D{Width: 64, Height: 64}, 2)
	rs.Reset()

	assert.Equal(t, 7, g.Bind(4))
	assert.Len(t, rs.BoundSlots(), 3)
	assert.Equal(t, 7, g.Unbind(4))
	assert.Empty(t, rs.BoundSlots())
}
