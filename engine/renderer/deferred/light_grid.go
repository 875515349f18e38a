package deferred

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// GridBuilderOption is a functional option for configuring a TiledLightGrid.
type GridBuilderOption func(*TiledLightGrid)

// WithGridWorkers sets the number of worker goroutines that cull tile rows.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - GridBuilderOption: option function to apply
func WithGridWorkers(n int) GridBuilderOption {
	return func(g *TiledLightGrid) {
		g.workers = max(n, 1)
	}
}

// WithGridLogger sets the grid's logger.
func WithGridLogger(logger common.Logger) GridBuilderOption {
	return func(g *TiledLightGrid) {
		g.logger = logger
	}
}

// TiledLightGrid partitions the screen into light.TileSize tiles and stores,
// per tile, the indices of the lights whose bounding sphere reaches into the
// tile's slice of the view frustum. The shading pass only evaluates the
// lights listed for the pixel's tile.
//
// The grid is built on the CPU. Each tile's depth range comes from the
// linear depth of the G-Buffer when the render system can read it back,
// otherwise it spans the whole camera range.
type TiledLightGrid struct {
	rs      renderer.RenderSystem
	logger  common.Logger
	set     resourceSet
	pool    worker.DynamicWorkerPool
	workers int

	resolution common.Size2D
	maxLights  int
	numX, numY int

	// tiles holds an offset and a count per tile; indices holds maxLights
	// slots per tile.
	tiles   []uint32
	indices []uint32
	lights  []mgl32.Vec4

	tileBuf  *renderer.Buffer
	indexBuf *renderer.Buffer
	descBuf  *renderer.Buffer
}

// NewTiledLightGrid creates an empty grid. Call CreateGrid to allocate.
//
// Parameters:
//   - rs: the render system
//   - options: functional options
//
// Returns:
//   - *TiledLightGrid: the grid
func NewTiledLightGrid(rs renderer.RenderSystem, options ...GridBuilderOption) *TiledLightGrid {
	g := &TiledLightGrid{
		rs:      rs,
		logger:  common.NewNopLogger(),
		set:     newResourceSet(rs),
		workers: max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(g)
	}
	g.pool = worker.NewDynamicWorkerPool(g.workers, 256, 1*time.Second)
	return g
}

// CreateGrid (re)allocates the grid for a resolution. Any previous storage
// is released first. On failure nothing stays allocated.
//
// Parameters:
//   - resolution: the screen size in pixels
//   - maxLights: the per-tile light capacity
//
// Returns:
//   - error: ErrInvalidResolution, ErrInvalidLightCount or a creation error
func (g *TiledLightGrid) CreateGrid(resolution common.Size2D, maxLights int) error {
	g.Release()
	if !resolution.Valid() {
		return fmt.Errorf("light grid %s: %w", resolution, ErrInvalidResolution)
	}
	if maxLights <= 0 {
		return fmt.Errorf("light grid max lights %d: %w", maxLights, ErrInvalidLightCount)
	}
	if err := g.create(resolution, maxLights); err != nil {
		_ = g.Release()
		return fmt.Errorf("light grid: %w", err)
	}
	return nil
}

func (g *TiledLightGrid) create(resolution common.Size2D, maxLights int) error {
	numX, numY := light.TileCounts(resolution.Width, resolution.Height)
	numTiles := numX * numY

	var err error
	if g.tileBuf, err = g.set.buffer(renderer.BufferConfig{
		Label: "Light Grid Tiles", Kind: renderer.BufferStorage, Size: numTiles * 2 * 4,
	}); err != nil {
		return err
	}
	if g.indexBuf, err = g.set.buffer(renderer.BufferConfig{
		Label: "Light Grid Indices", Kind: renderer.BufferStorage, Size: numTiles * maxLights * 4,
	}); err != nil {
		return err
	}
	if g.descBuf, err = g.set.buffer(renderer.BufferConfig{
		Label: "Light Grid Desc", Kind: renderer.BufferUniform, Size: light.GridDescSize,
	}); err != nil {
		return err
	}

	g.resolution = resolution
	g.maxLights = maxLights
	g.numX, g.numY = numX, numY
	g.tiles = make([]uint32, numTiles*2)
	g.indices = make([]uint32, numTiles*maxLights)

	desc := light.GridDesc{
		NumTiles:      [2]uint32{uint32(numX), uint32(numY)},
		InvNumTiles:   mgl32.Vec2{1 / float32(numX), 1 / float32(numY)},
		InvResolution: mgl32.Vec2{1 / float32(resolution.Width), 1 / float32(resolution.Height)},
	}
	return g.rs.WriteBuffer(g.descBuf, 0, desc.Marshal())
}

// Release deletes the grid buffers. Safe to call twice.
//
// Returns:
//   - error: a joined deletion error, or nil
func (g *TiledLightGrid) Release() error {
	err := g.set.release()
	g.tileBuf, g.indexBuf, g.descBuf = nil, nil, nil
	g.tiles, g.indices = nil, nil
	g.numX, g.numY = 0, 0
	return err
}

// NumTiles returns the grid dimensions.
//
// Returns:
//   - int: tile columns
//   - int: tile rows
func (g *TiledLightGrid) NumTiles() (int, int) {
	return g.numX, g.numY
}

// TileCount returns the total number of tiles.
func (g *TiledLightGrid) TileCount() int {
	return g.numX * g.numY
}

// MaxLights returns the per-tile light capacity.
func (g *TiledLightGrid) MaxLights() int {
	return g.maxLights
}

// Resolution returns the size the grid was created for.
func (g *TiledLightGrid) Resolution() common.Size2D {
	return g.resolution
}

// UpdateLights replaces the light list used by the next Build. Each entry is
// a world-space position and a radius; the entry index is the light record
// index written into the tiles. A radius of +Inf reaches every tile.
//
// Parameters:
//   - posRadius: position in xyz, radius in w
func (g *TiledLightGrid) UpdateLights(posRadius []mgl32.Vec4) {
	g.lights = append(g.lights[:0], posRadius...)
}

// Build culls the lights against every tile and uploads the result.
//
// Parameters:
//   - graph: the scene graph of the frame
//   - viewer: the camera the G-Buffer was rendered with
//   - depth: the texture holding linear view depth
//
// Returns:
//   - error: ErrMissingInput or ErrResourceReleased, or an upload error
func (g *TiledLightGrid) Build(graph scene.SceneGraph, viewer camera.Camera, depth *renderer.Texture) error {
	if graph == nil || viewer == nil || depth == nil {
		g.logger.Debugf("light grid: build skipped, missing graph, camera or depth")
		return ErrMissingInput
	}
	if g.tileBuf == nil {
		return ErrResourceReleased
	}

	view := viewer.ViewMatrix()
	spheres := make([]mgl32.Vec4, len(g.lights))
	for i, l := range g.lights {
		c := view.Mul4x1(l.Vec3().Vec4(1)).Vec3()
		spheres[i] = c.Vec4(l.W())
	}
	depths := g.readDepth(depth)
	proj := viewer.ProjectionMatrix()
	near, far := viewer.Near(), viewer.Far()

	// Rows are independent, each task writes only its own tiles.
	var wg sync.WaitGroup
	for ty := range g.numY {
		wg.Add(1)
		g.pool.SubmitTask(worker.Task{
			ID: ty,
			Do: func() (any, error) {
				defer wg.Done()
				for tx := range g.numX {
					g.cullTile(tx, ty, proj, near, far, depths, spheres)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	if err := g.rs.WriteBuffer(g.tileBuf, 0, marshalU32(g.tiles)); err != nil {
		return fmt.Errorf("upload light grid tiles: %w", err)
	}
	if err := g.rs.WriteBuffer(g.indexBuf, 0, marshalU32(g.indices)); err != nil {
		return fmt.Errorf("upload light grid indices: %w", err)
	}
	return nil
}

// readDepth fetches the linear depth of the frame, or nil when unavailable.
func (g *TiledLightGrid) readDepth(depth *renderer.Texture) []float32 {
	reader, ok := g.rs.(renderer.DepthReader)
	if !ok {
		return nil
	}
	values, err := reader.ReadDepth(depth)
	if err != nil {
		g.logger.Debugf("light grid: read depth: %v", err)
		return nil
	}
	size := depth.Size()
	if len(values) != size.Area() || size != g.resolution {
		return nil
	}
	return values
}

// tileDepthRange returns the min and max linear depth over a tile. Pixels
// without geometry count as far.
func (g *TiledLightGrid) tileDepthRange(tx, ty int, near, far float32, depths []float32) (float32, float32) {
	if depths == nil {
		return near, far
	}
	x0, y0 := tx*light.TileSize, ty*light.TileSize
	x1 := min(x0+light.TileSize, g.resolution.Width)
	y1 := min(y0+light.TileSize, g.resolution.Height)
	lo, hi := float32(math.MaxFloat32), float32(0)
	for y := y0; y < y1; y++ {
		for _, d := range depths[y*g.resolution.Width+x0 : y*g.resolution.Width+x1] {
			if d <= 0 {
				d = far
			}
			lo = min(lo, d)
			hi = max(hi, d)
		}
	}
	return lo, hi
}

func (g *TiledLightGrid) cullTile(tx, ty int, proj mgl32.Mat4, near, far float32, depths []float32, spheres []mgl32.Vec4) {
	t := ty*g.numX + tx
	offset := t * g.maxLights
	zMin, zMax := g.tileDepthRange(tx, ty, near, far, depths)
	planes, perspective := g.tilePlanes(tx, ty, proj)

	n := 0
	for i, s := range spheres {
		if n == g.maxLights {
			break
		}
		c, r := s.Vec3(), s.W()
		if r < 0 {
			continue
		}
		if !math.IsInf(float64(r), 1) {
			z := -c.Z()
			if z+r < zMin || z-r > zMax {
				continue
			}
			if perspective && !sphereInside(planes, c, r) {
				continue
			}
		}
		g.indices[offset+n] = uint32(i)
		n++
	}
	g.tiles[t*2] = uint32(offset)
	g.tiles[t*2+1] = uint32(n)
}

// tilePlanes builds the four side planes of a tile's view-space frustum
// slice. Normals point inside and every plane passes through the eye. Only
// perspective projections are supported; other projections skip side culling.
func (g *TiledLightGrid) tilePlanes(tx, ty int, proj mgl32.Mat4) ([4]mgl32.Vec3, bool) {
	var planes [4]mgl32.Vec3
	if proj[11] != -1 || proj[15] != 0 {
		return planes, false
	}
	w, h := float32(g.resolution.Width), float32(g.resolution.Height)
	x0 := float32(tx * light.TileSize)
	x1 := float32(min((tx+1)*light.TileSize, g.resolution.Width))
	y0 := float32(ty * light.TileSize)
	y1 := float32(min((ty+1)*light.TileSize, g.resolution.Height))

	left, right := 2*x0/w-1, 2*x1/w-1
	top, bottom := 1-2*y0/h, 1-2*y1/h

	planes[0] = mgl32.Vec3{proj[0], 0, proj[8] + left}
	planes[1] = mgl32.Vec3{-proj[0], 0, -(proj[8] + right)}
	planes[2] = mgl32.Vec3{0, proj[5], proj[9] + bottom}
	planes[3] = mgl32.Vec3{0, -proj[5], -(proj[9] + top)}
	for i := range planes {
		planes[i] = planes[i].Normalize()
	}
	return planes, true
}

func sphereInside(planes [4]mgl32.Vec3, c mgl32.Vec3, r float32) bool {
	for _, p := range planes {
		if p.Dot(c) < -r {
			return false
		}
	}
	return true
}

// Tile returns a copy of the light indices listed for a tile.
//
// Parameters:
//   - x: tile column
//   - y: tile row
//
// Returns:
//   - []uint32: the light record indices, nil when out of range
func (g *TiledLightGrid) Tile(x, y int) []uint32 {
	if x < 0 || y < 0 || x >= g.numX || y >= g.numY {
		return nil
	}
	t := y*g.numX + x
	offset, count := g.tiles[t*2], g.tiles[t*2+1]
	return slices.Clone(g.indices[offset : offset+count])
}

// Bind binds the tile table, the index list and the grid description at
// consecutive slots starting at base.
//
// Parameters:
//   - base: the first slot
//
// Returns:
//   - int: the next free slot
func (g *TiledLightGrid) Bind(base int) int {
	if g.tileBuf == nil {
		return base
	}
	g.rs.BindBuffer(base, g.tileBuf)
	g.rs.BindBuffer(base+1, g.indexBuf)
	g.rs.BindBuffer(base+2, g.descBuf)
	return base + 3
}

// Unbind clears the slots bound by Bind.
//
// Parameters:
//   - base: the first slot passed to Bind
//
// Returns:
//   - int: the next free slot
func (g *TiledLightGrid) Unbind(base int) int {
	if g.tileBuf == nil {
		return base
	}
	g.rs.UnbindBuffer(base + 2)
	g.rs.UnbindBuffer(base + 1)
	g.rs.UnbindBuffer(base)
	return base + 3
}

func marshalU32(values []uint32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}
