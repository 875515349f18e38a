package deferred

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// AggregatorStats counts what happened to the scene's lights in the last frame.
type AggregatorStats struct {
	// Considered is the number of lights in the graph's light list.
	Considered int
	// Invisible is the number of lights skipped because they were hidden.
	Invisible int
	// Dropped is the number of visible lights that did not fit the buffers.
	Dropped int
	// Shadowed is the number of lights that received a shadow slot.
	Shadowed int
}

// LightAggregator turns the scene graph's light list into the per-frame GPU
// light buffers. It dispatches shadow map rendering for shadow-casting
// lights and feeds the tiled light grid.
//
// The light buffer holds at most MaxPointLights records of any light type;
// spot and directional lights also take one of MaxSpotLights extended
// records. Lights beyond either capacity are dropped without error.
type LightAggregator struct {
	rs     renderer.RenderSystem
	logger common.Logger
	set    resourceSet
	cfg    Config

	shadows *ShadowMapper
	grid    *TiledLightGrid

	lightBuf   *renderer.Buffer
	exLightBuf *renderer.Buffer
	descBuf    *renderer.Buffer

	records    []light.LightRecord
	ext        []light.ExtendedLightRecord
	posRadius  []mgl32.Vec4
	numRecords int
	numPoint   int
	numExt     int

	ambient        mgl32.Vec3
	giReflectivity float32

	stats AggregatorStats
}

// NewLightAggregator creates an empty aggregator. Call Create to allocate.
//
// Parameters:
//   - rs: the render system
//   - logger: the logger
//
// Returns:
//   - *LightAggregator: the aggregator
func NewLightAggregator(rs renderer.RenderSystem, logger common.Logger) *LightAggregator {
	return &LightAggregator{
		rs:             rs,
		logger:         logger,
		set:            newResourceSet(rs),
		ambient:        DefaultAmbientColor,
		giReflectivity: DefaultGIReflectivity,
	}
}

// Create allocates the light buffers for cfg. shadows and grid may be nil
// when shadow mapping or tiled shading is disabled.
//
// Parameters:
//   - cfg: the normalized renderer configuration
//   - shadows: the shadow mapper, or nil
//   - grid: the light grid, or nil
//
// Returns:
//   - error: a creation error, or nil
func (a *LightAggregator) Create(cfg Config, shadows *ShadowMapper, grid *TiledLightGrid) error {
	a.Release()
	if cfg.MaxPointLights <= 0 || cfg.MaxSpotLights <= 0 {
		return fmt.Errorf("light aggregator %d/%d: %w", cfg.MaxPointLights, cfg.MaxSpotLights, ErrInvalidLightCount)
	}
	if err := a.create(cfg); err != nil {
		_ = a.Release()
		return fmt.Errorf("light aggregator: %w", err)
	}
	a.shadows, a.grid = shadows, grid
	return nil
}

func (a *LightAggregator) create(cfg Config) error {
	a.cfg = cfg
	var err error
	if a.lightBuf, err = a.set.buffer(renderer.BufferConfig{
		Label: "Light Records", Kind: renderer.BufferStorage, Size: cfg.MaxPointLights * light.LightRecordSize,
	}); err != nil {
		return err
	}
	if a.exLightBuf, err = a.set.buffer(renderer.BufferConfig{
		Label: "Extended Light Records", Kind: renderer.BufferStorage, Size: cfg.MaxSpotLights * light.ExtendedLightRecordSize,
	}); err != nil {
		return err
	}
	if a.descBuf, err = a.set.buffer(renderer.BufferConfig{
		Label: "Shading Desc", Kind: renderer.BufferUniform, Size: light.ShadingDescSize,
	}); err != nil {
		return err
	}
	a.records = make([]light.LightRecord, cfg.MaxPointLights)
	a.ext = make([]light.ExtendedLightRecord, cfg.MaxSpotLights)
	a.posRadius = make([]mgl32.Vec4, cfg.MaxPointLights)
	a.numRecords, a.numPoint, a.numExt = 0, 0, 0
	return a.writeDesc()
}

// Release deletes the light buffers. Safe to call twice.
//
// Returns:
//   - error: a joined deletion error, or nil
func (a *LightAggregator) Release() error {
	err := a.set.release()
	a.lightBuf, a.exLightBuf, a.descBuf = nil, nil, nil
	a.records, a.ext, a.posRadius = nil, nil, nil
	a.numRecords, a.numPoint, a.numExt = 0, 0, 0
	a.shadows, a.grid = nil, nil
	return err
}

// UpdateLightSources rebuilds the light buffers from the graph's light list in
// graph order, rendering shadow maps on the way, then rebuilds the light grid.
//
// Parameters:
//   - graph: the scene graph
//   - viewer: the viewer camera
//   - depth: the linear depth texture handed to the light grid
//
// Returns:
//   - int: the number of point light records
//   - int: the number of extended records
func (a *LightAggregator) UpdateLightSources(graph scene.SceneGraph, viewer camera.Camera, depth *renderer.Texture) (int, int) {
	if a.lightBuf == nil || graph == nil {
		return 0, 0
	}
	lights := graph.Lights()
	useShadow := a.cfg.Flags.Has(FlagShadowMapping) && a.shadows != nil
	gi := a.cfg.Flags.Has(FlagGlobalIllumination)

	a.stats = AggregatorStats{Considered: len(lights)}
	n, numPoint, numExt := 0, 0, 0
	cubeSlot, layerSlot := 0, 0

	for _, l := range lights {
		if l == nil || !l.Visible() {
			a.stats.Invisible++
			continue
		}
		point := l.Type() == light.LightTypePoint
		if n >= len(a.records) || (!point && numExt >= len(a.ext)) {
			a.stats.Dropped++
			continue
		}

		rec := &a.records[n]
		*rec = light.LightRecord{
			Position:         l.Position(),
			InvRadius:        invRadius(l),
			Color:            l.Color(),
			Type:             l.Type(),
			ShadowIndex:      -1,
			UsedForLightmaps: !l.Shadow(),
			ExtIndex:         -1,
		}

		if useShadow && l.Shadow() {
			slot := &layerSlot
			if point {
				slot = &cubeSlot
			}
			if a.shadows.RenderShadowMap(graph, viewer, l, *slot) {
				rec.ShadowIndex = int32(*slot)
				a.stats.Shadowed++
			}
			*slot++
		}

		if !point {
			rec.ExtIndex = int32(numExt)
			a.ext[numExt] = extendedRecord(l, viewer, gi)
			numExt++
		} else {
			numPoint++
		}

		radius := l.VolumetricRadius() * 2
		if l.Type() == light.LightTypeDirectional {
			radius = float32(math.Inf(1))
		}
		a.posRadius[n] = rec.Position.Vec4(radius)
		n++
	}
	a.numRecords, a.numPoint, a.numExt = n, numPoint, numExt

	if a.stats.Dropped > 0 {
		a.logger.Debugf("light aggregator: %d of %d lights dropped (capacity %d/%d)",
			a.stats.Dropped, a.stats.Considered, a.cfg.MaxPointLights, a.cfg.MaxSpotLights)
	}

	lightBytes, exBytes := light.MarshalLightBuffers(a.records, n, a.ext, numExt)
	if len(lightBytes) > 0 {
		if err := a.rs.WriteBuffer(a.lightBuf, 0, lightBytes); err != nil {
			a.logger.Warnf("light aggregator: upload lights: %v", err)
		}
	}
	if len(exBytes) > 0 {
		if err := a.rs.WriteBuffer(a.exLightBuf, 0, exBytes); err != nil {
			a.logger.Warnf("light aggregator: upload extended lights: %v", err)
		}
	}
	if err := a.writeDesc(); err != nil {
		a.logger.Warnf("light aggregator: upload shading desc: %v", err)
	}

	if a.grid != nil && a.cfg.Flags.Has(FlagTiledShading) {
		a.grid.UpdateLights(a.posRadius[:n])
		if err := a.grid.Build(graph, viewer, depth); err != nil {
			a.logger.Debugf("light aggregator: %v", err)
		}
	}
	return numPoint, numExt
}

// invRadius returns the reciprocal falloff radius stored in the light record.
func invRadius(l light.Light) float32 {
	if l.Volumetric() && l.VolumetricRadius() > 0 {
		return 1 / l.VolumetricRadius()
	}
	return 1 / light.NonVolumetricRadius
}

// extendedRecord fills the shadow projection and cone data of a spot or
// directional light. The inverse view-projection, used to reconstruct world
// positions from the reflective shadow map, omits the view translation and
// is only computed with global illumination.
func extendedRecord(l light.Light, viewer camera.Camera, gi bool) light.ExtendedLightRecord {
	_, view, proj := lightFrame(l, viewer)
	inner, outer := l.SpotCone()
	rec := light.ExtendedLightRecord{
		ViewProjection:    proj.Mul4(view),
		Direction:         lightDirection(l),
		SpotTheta:         mgl32.DegToRad(inner),
		SpotPhiMinusTheta: mgl32.DegToRad(outer) - mgl32.DegToRad(inner),
	}
	if gi {
		rec.InvViewProjection = proj.Mul4(common.WithoutTranslation(view)).Inv()
	}
	return rec
}

// SetAmbientColor sets the ambient term and uploads it.
func (a *LightAggregator) SetAmbientColor(c mgl32.Vec3) {
	a.ambient = c
	if err := a.writeDesc(); err != nil {
		a.logger.Warnf("light aggregator: upload shading desc: %v", err)
	}
}

// SetGIReflectivity sets the indirect light scale and uploads it.
func (a *LightAggregator) SetGIReflectivity(f float32) {
	a.giReflectivity = f
	if err := a.writeDesc(); err != nil {
		a.logger.Warnf("light aggregator: upload shading desc: %v", err)
	}
}

// AmbientColor returns the ambient term.
func (a *LightAggregator) AmbientColor() mgl32.Vec3 {
	return a.ambient
}

// GIReflectivity returns the indirect light scale.
func (a *LightAggregator) GIReflectivity() float32 {
	return a.giReflectivity
}

func (a *LightAggregator) writeDesc() error {
	if a.descBuf == nil {
		return nil
	}
	desc := light.ShadingDesc{
		AmbientColor:   a.ambient,
		GIReflectivity: a.giReflectivity,
		LightCount:     uint32(a.numRecords),
		ExLightCount:   uint32(a.numExt),
	}
	return a.rs.WriteBuffer(a.descBuf, 0, desc.Marshal())
}

// Counts returns the point light and extended record counts of the last frame.
func (a *LightAggregator) Counts() (int, int) {
	return a.numPoint, a.numExt
}

// RecordCount returns the number of light records of the last frame, of every type.
func (a *LightAggregator) RecordCount() int {
	return a.numRecords
}

// Records returns a copy of the light records of the last frame.
func (a *LightAggregator) Records() []light.LightRecord {
	return append([]light.LightRecord(nil), a.records[:a.numRecords]...)
}

// ExtendedRecords returns a copy of the extended records of the last frame.
func (a *LightAggregator) ExtendedRecords() []light.ExtendedLightRecord {
	return append([]light.ExtendedLightRecord(nil), a.ext[:a.numExt]...)
}

// DebugVPLSource returns the light the VPL debug overlay visualizes: the last
// light recorded this frame, provided it is a spot or directional light that
// received a shadow map. An earlier shadowed light does not stand in for it.
//
// Returns:
//   - light.LightRecord: the light record
//   - light.ExtendedLightRecord: its extended record
//   - bool: false when the last light has no shadowed extended record
func (a *LightAggregator) DebugVPLSource() (light.LightRecord, light.ExtendedLightRecord, bool) {
	if a.numRecords == 0 {
		return light.LightRecord{}, light.ExtendedLightRecord{}, false
	}
	rec := a.records[a.numRecords-1]
	if rec.ShadowIndex < 0 || rec.ExtIndex < 0 || int(rec.ExtIndex) >= a.numExt {
		return light.LightRecord{}, light.ExtendedLightRecord{}, false
	}
	return rec, a.ext[rec.ExtIndex], true
}

// Stats returns the counters of the last frame.
func (a *LightAggregator) Stats() AggregatorStats {
	return a.stats
}

// Bind binds the light buffer, the extended light buffer and the shading
// description at consecutive slots starting at base.
//
// Parameters:
//   - base: the first slot
//
// Returns:
//   - int: the next free slot
func (a *LightAggregator) Bind(base int) int {
	if a.lightBuf == nil {
		return base
	}
	a.rs.BindBuffer(base, a.lightBuf)
	a.rs.BindBuffer(base+1, a.exLightBuf)
	a.rs.BindBuffer(base+2, a.descBuf)
	return base + 3
}

// Unbind clears the slots bound by Bind.
//
// Parameters:
//   - base: the first slot passed to Bind
//
// Returns:
//   - int: the next free slot
func (a *LightAggregator) Unbind(base int) int {
	if a.lightBuf == nil {
		return base
	}
	a.rs.UnbindBuffer(base + 2)
	a.rs.UnbindBuffer(base + 1)
	a.rs.UnbindBuffer(base)
	return base + 3
}
