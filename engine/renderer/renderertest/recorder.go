// Package renderertest provides a RenderSystem that records calls instead of
// talking to a GPU. Tests use it to check pass ordering, slot layouts and
// resource ownership.
package renderertest

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// EventKind classifies a recorded call.
type EventKind int

const (
	EventSetTargets EventKind = iota
	EventClear
	EventSetMode
	EventSetGlobalShader
	EventBindTexture
	EventUnbindTexture
	EventBindBuffer
	EventUnbindBuffer
	EventDrawMesh
	EventDrawQuad
	EventDrawProcedural
	EventWriteBuffer
	EventSetConstants
)

func (k EventKind) String() string {
	switch k {
	case EventSetTargets:
		return "SetTargets"
	case EventClear:
		return "Clear"
	case EventSetMode:
		return "SetMode"
	case EventSetGlobalShader:
		return "SetGlobalShader"
	case EventBindTexture:
		return "BindTexture"
	case EventUnbindTexture:
		return "UnbindTexture"
	case EventBindBuffer:
		return "BindBuffer"
	case EventUnbindBuffer:
		return "UnbindBuffer"
	case EventDrawMesh:
		return "DrawMesh"
	case EventDrawQuad:
		return "DrawQuad"
	case EventDrawProcedural:
		return "DrawProcedural"
	case EventWriteBuffer:
		return "WriteBuffer"
	case EventSetConstants:
		return "SetConstants"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one recorded call. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Slot    int
	Texture *renderer.Texture
	Buffer  *renderer.Buffer
	Shader  *renderer.ShaderClass
	Targets []renderer.RenderTarget
	Mode    renderer.RenderMode
	Object  renderer.DrawObject
	Count   int
}

// Recorder is an in-memory RenderSystem. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	resolution common.Size2D
	backend    renderer.ShaderBackend

	textures *renderer.HandleArena[renderer.TextureConfig]
	buffers  *renderer.HandleArena[[]byte]
	shaders  *renderer.HandleArena[renderer.ShaderClassDescriptor]
	meshes   *renderer.HandleArena[*renderer.Mesh]

	constants map[renderer.Handle][][]byte
	depth     map[renderer.Handle][]float32

	events  []Event
	targets []renderer.RenderTarget
	mode    renderer.RenderMode
	global  *renderer.ShaderClass
	cam     camera.Camera
	slots   map[int]any

	// FailTexture, when set, is consulted by CreateTexture; a non-nil result fails the call.
	FailTexture func(cfg renderer.TextureConfig) error
	// FailBuffer, when set, is consulted by CreateBuffer.
	FailBuffer func(cfg renderer.BufferConfig) error
	// FailShader, when set, is consulted by CreateShaderClass.
	FailShader func(desc renderer.ShaderClassDescriptor) error
}

var (
	_ renderer.RenderSystem = &Recorder{}
	_ renderer.DepthReader  = &Recorder{}
)

// NewRecorder creates a Recorder with a back buffer of the given size that
// accepts WGSL shader classes.
//
// Parameters:
//   - width: back buffer width
//   - height: back buffer height
//
// Returns:
//   - *Recorder: the recorder
func NewRecorder(width, height int) *Recorder {
	return &Recorder{
		resolution: common.Size2D{Width: width, Height: height},
		backend:    renderer.ShaderBackendWGSL,
		textures:   renderer.NewHandleArena[renderer.TextureConfig](),
		buffers:    renderer.NewHandleArena[[]byte](),
		shaders:    renderer.NewHandleArena[renderer.ShaderClassDescriptor](),
		meshes:     renderer.NewHandleArena[*renderer.Mesh](),
		constants:  make(map[renderer.Handle][][]byte),
		depth:      make(map[renderer.Handle][]float32),
		slots:      make(map[int]any),
	}
}

// SetResolution changes the size reported by Resolution.
func (r *Recorder) SetResolution(size common.Size2D) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolution = size
}

// SetBackend changes the shader backends the recorder accepts.
func (r *Recorder) SetBackend(b renderer.ShaderBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend = b
}

// SetDepth stores the linear depth values ReadDepth returns for t.
func (r *Recorder) SetDepth(t *renderer.Texture, values []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth[t.Handle()] = values
}

// Events returns a copy of the recorded calls.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsOf returns the recorded calls of one kind.
func (r *Recorder) EventsOf(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recorded calls, keeping resources.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
}

// LiveTextures returns the number of textures not yet deleted.
func (r *Recorder) LiveTextures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.textures.Len()
}

// LiveBuffers returns the number of buffers not yet deleted.
func (r *Recorder) LiveBuffers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffers.Len()
}

// LiveShaders returns the number of shader classes not yet deleted.
func (r *Recorder) LiveShaders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shaders.Len()
}

// BufferContents returns a copy of a buffer's bytes.
func (r *Recorder) BufferContents(b *renderer.Buffer) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, _ := r.buffers.Get(b.Handle())
	return append([]byte(nil), data...)
}

// Constants returns a copy of the staged contents of one constant block.
func (r *Recorder) Constants(s *renderer.ShaderClass, block int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	blocks := r.constants[s.Handle()]
	if block < 0 || block >= len(blocks) {
		return nil
	}
	return append([]byte(nil), blocks[block]...)
}

// ShaderClasses returns the descriptors of every live shader class.
func (r *Recorder) ShaderClasses() []renderer.ShaderClassDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []renderer.ShaderClassDescriptor
	r.shaders.Each(func(_ renderer.Handle, d renderer.ShaderClassDescriptor) {
		out = append(out, d)
	})
	return out
}

// BoundSlots returns the currently bound slot indices mapped to their *Texture or *Buffer.
func (r *Recorder) BoundSlots() map[int]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]any, len(r.slots))
	for k, v := range r.slots {
		out[k] = v
	}
	return out
}

func (r *Recorder) record(e Event) {
	r.events = append(r.events, e)
}

func (r *Recorder) Backend() renderer.ShaderBackend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend
}

func (r *Recorder) Resolution() common.Size2D {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolution
}

func (r *Recorder) CreateTexture(cfg renderer.TextureConfig) (*renderer.Texture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r.FailTexture != nil {
		if err := r.FailTexture(cfg); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return renderer.NewTexture(r.textures.Insert(cfg), cfg), nil
}

func (r *Recorder) WriteTexture(t *renderer.Texture, layer int, data common.TextureStagingData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.textures.Get(t.Handle())
	if !ok {
		return renderer.ErrStaleHandle
	}
	if layer < 0 || layer >= cfg.LayerCount() {
		return fmt.Errorf("layer %d out of range", layer)
	}
	return nil
}

func (r *Recorder) DeleteTexture(t *renderer.Texture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.textures.Remove(t.Handle()); !ok {
		return renderer.ErrStaleHandle
	}
	delete(r.depth, t.Handle())
	return nil
}

func (r *Recorder) CreateBuffer(cfg renderer.BufferConfig) (*renderer.Buffer, error) {
	if cfg.Size <= 0 {
		return nil, renderer.ErrInvalidBufferConfig
	}
	if r.FailBuffer != nil {
		if err := r.FailBuffer(cfg); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return renderer.NewBuffer(r.buffers.Insert(make([]byte, cfg.Size)), cfg), nil
}

func (r *Recorder) WriteBuffer(b *renderer.Buffer, offset int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	contents, ok := r.buffers.Get(b.Handle())
	if !ok {
		return renderer.ErrStaleHandle
	}
	if offset < 0 || offset+len(data) > len(contents) {
		return fmt.Errorf("write of %d bytes at %d exceeds buffer size %d", len(data), offset, len(contents))
	}
	copy(contents[offset:], data)
	r.record(Event{Kind: EventWriteBuffer, Buffer: b, Count: len(data)})
	return nil
}

func (r *Recorder) DeleteBuffer(b *renderer.Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buffers.Remove(b.Handle()); !ok {
		return renderer.ErrStaleHandle
	}
	return nil
}

func (r *Recorder) CreateShaderClass(desc renderer.ShaderClassDescriptor) (*renderer.ShaderClass, error) {
	r.mu.Lock()
	backend := r.backend
	r.mu.Unlock()
	if desc.Backend&backend == 0 {
		return nil, renderer.ErrUnsupportedBackend
	}
	if r.FailShader != nil {
		if err := r.FailShader(desc); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.shaders.Insert(desc)
	blocks := make([][]byte, len(desc.ConstantBlocks))
	for i, size := range desc.ConstantBlocks {
		blocks[i] = make([]byte, size)
	}
	r.constants[h] = blocks
	return renderer.NewShaderClass(h, desc), nil
}

func (r *Recorder) DeleteShaderClass(s *renderer.ShaderClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shaders.Remove(s.Handle()); !ok {
		return renderer.ErrStaleHandle
	}
	delete(r.constants, s.Handle())
	if r.global.Handle() == s.Handle() {
		r.global = nil
	}
	return nil
}

func (r *Recorder) SetShaderConstants(s *renderer.ShaderClass, block int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	blocks, ok := r.constants[s.Handle()]
	if !ok {
		return renderer.ErrStaleHandle
	}
	if block < 0 || block >= len(blocks) {
		return fmt.Errorf("block %d out of range", block)
	}
	copy(blocks[block], data)
	r.record(Event{Kind: EventSetConstants, Shader: s, Slot: block, Count: len(data)})
	return nil
}

func (r *Recorder) GlobalShaderClass() *renderer.ShaderClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global
}

func (r *Recorder) SetGlobalShaderClass(s *renderer.ShaderClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = s
	r.record(Event{Kind: EventSetGlobalShader, Shader: s})
}

func (r *Recorder) UploadMesh(m *renderer.Mesh) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meshes.Get(m.Handle()); ok {
		return nil
	}
	m.SetHandle(r.meshes.Insert(m))
	return nil
}

func (r *Recorder) DeleteMesh(m *renderer.Mesh) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meshes.Remove(m.Handle()); !ok {
		return renderer.ErrStaleHandle
	}
	m.SetHandle(renderer.Handle{})
	return nil
}

func (r *Recorder) SetRenderTargets(targets ...renderer.RenderTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range targets {
		cfg, ok := r.textures.Get(t.Texture.Handle())
		if !ok {
			return renderer.ErrStaleHandle
		}
		if !cfg.RenderTarget {
			return renderer.ErrNotRenderTarget
		}
	}
	r.targets = append([]renderer.RenderTarget(nil), targets...)
	r.record(Event{Kind: EventSetTargets, Targets: r.targets})
	return nil
}

// Targets returns the currently bound render targets.
func (r *Recorder) Targets() []renderer.RenderTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderer.RenderTarget(nil), r.targets...)
}

func (r *Recorder) ClearBuffers(color mgl32.Vec4) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Event{Kind: EventClear, Targets: r.targets})
}

func (r *Recorder) SetRenderMode(mode renderer.RenderMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	r.record(Event{Kind: EventSetMode, Mode: mode})
}

func (r *Recorder) RenderMode() renderer.RenderMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *Recorder) SetCamera(c camera.Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cam = c
}

func (r *Recorder) Camera() camera.Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cam
}

func (r *Recorder) BindTexture(slot int, t *renderer.Texture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = t
	r.record(Event{Kind: EventBindTexture, Slot: slot, Texture: t})
}

func (r *Recorder) UnbindTexture(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, slot)
	r.record(Event{Kind: EventUnbindTexture, Slot: slot})
}

func (r *Recorder) BindBuffer(slot int, b *renderer.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = b
	r.record(Event{Kind: EventBindBuffer, Slot: slot, Buffer: b})
}

func (r *Recorder) UnbindBuffer(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, slot)
	r.record(Event{Kind: EventUnbindBuffer, Slot: slot})
}

func (r *Recorder) DrawMesh(obj renderer.DrawObject) {
	r.mu.Lock()
	s := renderer.EffectiveShader(r.global, obj.Material)
	r.mu.Unlock()

	renderer.RunCallbacks(r, s, obj)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Event{Kind: EventDrawMesh, Shader: s, Object: obj, Targets: r.targets, Mode: r.mode})
}

func (r *Recorder) DrawFullscreenQuad(s *renderer.ShaderClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Event{Kind: EventDrawQuad, Shader: s, Targets: r.targets, Mode: r.mode})
}

func (r *Recorder) DrawProcedural(s *renderer.ShaderClass, prim renderer.Primitive, vertexCount, instanceCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Event{Kind: EventDrawProcedural, Shader: s, Targets: r.targets, Mode: r.mode, Count: vertexCount * instanceCount})
}

// ReadDepth returns the values stored with SetDepth.
func (r *Recorder) ReadDepth(t *renderer.Texture) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.textures.Get(t.Handle()); !ok {
		return nil, renderer.ErrStaleHandle
	}
	values, ok := r.depth[t.Handle()]
	if !ok {
		return nil, nil
	}
	return append([]float32(nil), values...), nil
}
