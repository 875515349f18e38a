package renderer

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

// uniformAlignment is the WebGPU default minUniformBufferOffsetAlignment.
const uniformAlignment = 256

// defaultArenaSize holds 16384 aligned constant blocks per frame.
const defaultArenaSize = 4 << 20

type wgpuTexture struct {
	cfg     TextureConfig
	texture *wgpu.Texture
	view    *wgpu.TextureView // sampling view
	msaa    *wgpu.Texture     // multisampled attachment, resolved into texture
	// per-layer attachment views, created on first use
	layerViews map[int]*wgpu.TextureView
	msaaView   *wgpu.TextureView
}

type wgpuBuffer struct {
	cfg BufferConfig
	buf *wgpu.Buffer
}

type wgpuMesh struct {
	vertex     *wgpu.Buffer
	index      *wgpu.Buffer
	indexCount uint32
}

type wgpuShader struct {
	desc      ShaderClassDescriptor
	module    *wgpu.ShaderModule
	layouts   [2]*wgpu.BindGroupLayout
	layout    *wgpu.PipelineLayout
	constants *wgpu.BindGroup // group 0 over the uniform arena, dynamic offsets
	staged    [][]byte
	pipelines map[string]*wgpu.RenderPipeline
}

type boundSlot struct {
	texture *Texture
	buffer  *Buffer
}

// wgpuRenderSystem implements FrameRenderSystem on top of cogentcore/webgpu.
//
// Every draw captures the staged constant blocks of its shader class into a
// per-frame uniform arena and binds them with dynamic offsets, so object
// callbacks can change constants between draws within one command buffer.
// Slot-bound resources form bind group 1, built per draw from the current slots.
type wgpuRenderSystem struct {
	mu     *sync.Mutex
	logger common.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat        wgpu.TextureFormat
	resolution           common.Size2D
	presentMode          PresentMode
	forceFallbackAdapter bool

	textures *HandleArena[*wgpuTexture]
	buffers  *HandleArena[*wgpuBuffer]
	meshes   *HandleArena[*wgpuMesh]
	shaders  *HandleArena[*wgpuShader]

	arena       *wgpu.Buffer
	arenaSize   int
	arenaOffset int

	filterSampler  *wgpu.Sampler
	nearestSampler *wgpu.Sampler
	dummy2D        *Texture
	dummyArray     *Texture
	dummyCubeArray *Texture
	dummyBuffer    *Buffer

	// frame state
	frameEncoder *wgpu.CommandEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	pass         *wgpu.RenderPassEncoder
	garbage      []*wgpu.BindGroup

	// readback staging for ReadDepth, grown on demand
	readback     *wgpu.Buffer
	readbackSize uint64

	targets      []RenderTarget
	pendingClear *mgl32.Vec4
	mode         RenderMode
	global       *ShaderClass
	cam          camera.Camera
	slots        map[int]boundSlot
}

var (
	_ FrameRenderSystem = &wgpuRenderSystem{}
	_ DepthReader       = &wgpuRenderSystem{}
)

// NewWGPURenderSystem creates a WebGPU render system for a window surface. The surface descriptor is
// platform-specific and is typically obtained from Window.SurfaceDescriptor().
//
// Parameters:
//   - surfaceDescriptor: the platform-specific surface descriptor for WebGPU surface creation
//   - width: the initial back buffer width
//   - height: the initial back buffer height
//   - options: variadic list of RendererBuilderOption functions to configure the render system
//
// Returns:
//   - FrameRenderSystem: the render system
//   - error: an error if no adapter or device could be acquired
func NewWGPURenderSystem(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, options ...RendererBuilderOption) (FrameRenderSystem, error) {
	runtime.LockOSThread()
	r := &wgpuRenderSystem{
		mu:          &sync.Mutex{},
		logger:      common.NewNopLogger(),
		presentMode: PresentModeUncapped,
		arenaSize:   defaultArenaSize,
		textures:    NewHandleArena[*wgpuTexture](),
		buffers:     NewHandleArena[*wgpuBuffer](),
		meshes:      NewHandleArena[*wgpuMesh](),
		shaders:     NewHandleArena[*wgpuShader](),
		slots:       make(map[int]boundSlot),
	}
	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before requesting a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	r.instance = wgpu.CreateInstance(nil)
	r.surface = r.instance.CreateSurface(surfaceDescriptor)

	a, err := r.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: r.forceFallbackAdapter,
		CompatibleSurface:    r.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	r.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Deferred Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	r.device = d
	r.queue = d.GetQueue()

	if err := r.createDefaults(); err != nil {
		return nil, err
	}
	r.Resize(width, height)
	return r, nil
}

func (r *wgpuRenderSystem) createDefaults() error {
	var err error
	r.arena, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Uniform Arena",
		Size:  uint64(r.arenaSize),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform arena: %w", err)
	}
	r.filterSampler, err = r.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Filtering Sampler",
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   32.0,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	r.nearestSampler, err = r.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Nearest Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32.0,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}

	one := common.Size2D{Width: 1, Height: 1}
	white := common.TextureStagingData{Pixels: []byte{255, 255, 255, 255}, Width: 1, Height: 1}
	if r.dummy2D, err = r.CreateTexture(TextureConfig{Label: "Dummy 2D", Size: one}); err != nil {
		return err
	}
	if r.dummyArray, err = r.CreateTexture(TextureConfig{Label: "Dummy Array", Size: one, Dimension: Texture2DArray}); err != nil {
		return err
	}
	if r.dummyCubeArray, err = r.CreateTexture(TextureConfig{Label: "Dummy Cube Array", Size: one, Layers: 6, Dimension: TextureCubeArray}); err != nil {
		return err
	}
	_ = r.WriteTexture(r.dummy2D, 0, white)
	_ = r.WriteTexture(r.dummyArray, 0, white)
	for layer := range 6 {
		_ = r.WriteTexture(r.dummyCubeArray, layer, white)
	}
	r.dummyBuffer, err = r.CreateBuffer(BufferConfig{Label: "Dummy Storage", Kind: BufferStorage, Size: 64})
	return err
}

func (r *wgpuRenderSystem) Backend() ShaderBackend {
	return ShaderBackendWGSL
}

func (r *wgpuRenderSystem) Resolution() common.Size2D {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolution
}

func (r *wgpuRenderSystem) SetPresentMode(mode PresentMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presentMode = mode
}

func (r *wgpuRenderSystem) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if width <= 0 || height <= 0 {
		return
	}
	capabilities := r.surface.GetCapabilities(r.adapter)
	r.surfaceFormat = capabilities.Formats[0]

	mode := wgpu.PresentModeImmediate
	if r.presentMode == PresentModeVSync {
		mode = wgpu.PresentModeFifo
	}
	r.surface.Configure(r.adapter, r.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      r.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: mode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	r.resolution = common.Size2D{Width: width, Height: height}
}

func toWGPUFormat(f TextureFormat) wgpu.TextureFormat {
	switch f {
	case FormatRGBA16F:
		return wgpu.TextureFormatRGBA16Float
	case FormatRG16F:
		return wgpu.TextureFormatRG16Float
	case FormatR32F:
		return wgpu.TextureFormatR32Float
	case FormatDepth32F:
		return wgpu.TextureFormatDepth32Float
	}
	return wgpu.TextureFormatRGBA8Unorm
}

func toViewDimension(d TextureDimension) wgpu.TextureViewDimension {
	switch d {
	case Texture2DArray:
		return wgpu.TextureViewDimension2DArray
	case TextureCubeArray:
		return wgpu.TextureViewDimensionCubeArray
	}
	return wgpu.TextureViewDimension2D
}

func (r *wgpuRenderSystem) CreateTexture(cfg TextureConfig) (*Texture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst
	if cfg.RenderTarget {
		usage |= wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc
	}
	size := wgpu.Extent3D{
		Width:              uint32(cfg.Size.Width),
		Height:             uint32(cfg.Size.Height),
		DepthOrArrayLayers: uint32(cfg.LayerCount()),
	}
	tex, err := r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         cfg.Label,
		Usage:         usage,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        toWGPUFormat(cfg.Format),
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", cfg.Label, err)
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           cfg.Label + " View",
		Format:          toWGPUFormat(cfg.Format),
		Dimension:       toViewDimension(cfg.Dimension),
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: uint32(cfg.LayerCount()),
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create texture view %q: %w", cfg.Label, err)
	}

	entry := &wgpuTexture{cfg: cfg, texture: tex, view: view, layerViews: make(map[int]*wgpu.TextureView)}
	if cfg.MultiSamples > 1 {
		entry.msaa, err = r.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         cfg.Label + " MSAA",
			Usage:         wgpu.TextureUsageRenderAttachment,
			Dimension:     wgpu.TextureDimension2D,
			Size:          size,
			Format:        toWGPUFormat(cfg.Format),
			MipLevelCount: 1,
			SampleCount:   uint32(SampleCountFor(cfg.MultiSamples)),
		})
		if err != nil {
			view.Release()
			tex.Release()
			return nil, fmt.Errorf("create msaa texture %q: %w", cfg.Label, err)
		}
		if entry.msaaView, err = entry.msaa.CreateView(nil); err != nil {
			entry.release()
			return nil, fmt.Errorf("create msaa view %q: %w", cfg.Label, err)
		}
	}
	return NewTexture(r.textures.Insert(entry), cfg), nil
}

func (t *wgpuTexture) attachmentView(layer int) (*wgpu.TextureView, error) {
	if v, ok := t.layerViews[layer]; ok {
		return v, nil
	}
	v, err := t.texture.CreateView(&wgpu.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s Layer %d", t.cfg.Label, layer),
		Format:          toWGPUFormat(t.cfg.Format),
		Dimension:       wgpu.TextureViewDimension2D,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  uint32(layer),
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	})
	if err != nil {
		return nil, err
	}
	t.layerViews[layer] = v
	return v, nil
}

func (t *wgpuTexture) release() {
	for _, v := range t.layerViews {
		v.Release()
	}
	if t.msaaView != nil {
		t.msaaView.Release()
	}
	if t.msaa != nil {
		t.msaa.Release()
	}
	t.view.Release()
	t.texture.Release()
}

func (r *wgpuRenderSystem) WriteTexture(t *Texture, layer int, data common.TextureStagingData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.textures.Get(t.Handle())
	if !ok {
		return fmt.Errorf("write texture: %w", ErrStaleHandle)
	}
	if entry.cfg.Format != FormatRGBA8 {
		return fmt.Errorf("write texture %q: only RGBA8 uploads are supported", entry.cfg.Label)
	}
	if int(data.Width) != entry.cfg.Size.Width || int(data.Height) != entry.cfg.Size.Height {
		return fmt.Errorf("write texture %q: staging size %dx%d does not match %s",
			entry.cfg.Label, data.Width, data.Height, entry.cfg.Size)
	}
	if layer < 0 || layer >= entry.cfg.LayerCount() {
		return fmt.Errorf("write texture %q: layer %d out of range", entry.cfg.Label, layer)
	}
	r.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  entry.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: uint32(layer)},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (r *wgpuRenderSystem) DeleteTexture(t *Texture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.textures.Remove(t.Handle())
	if !ok {
		return fmt.Errorf("delete texture: %w", ErrStaleHandle)
	}
	entry.release()
	return nil
}

func (r *wgpuRenderSystem) CreateBuffer(cfg BufferConfig) (*Buffer, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("buffer %q: size %d: %w", cfg.Label, cfg.Size, ErrInvalidBufferConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	usage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	if cfg.Kind == BufferUniform {
		usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	}
	// WebGPU requires sizes in multiples of 4.
	size := (cfg.Size + 3) &^ 3
	buf, err := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: cfg.Label,
		Size:  uint64(size),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", cfg.Label, err)
	}
	return NewBuffer(r.buffers.Insert(&wgpuBuffer{cfg: cfg, buf: buf}), cfg), nil
}

func (r *wgpuRenderSystem) WriteBuffer(b *Buffer, offset int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.buffers.Get(b.Handle())
	if !ok {
		return fmt.Errorf("write buffer: %w", ErrStaleHandle)
	}
	if offset < 0 || offset+len(data) > entry.cfg.Size {
		return fmt.Errorf("write buffer %q: %d bytes at offset %d exceed size %d",
			entry.cfg.Label, len(data), offset, entry.cfg.Size)
	}
	if len(data) == 0 {
		return nil
	}
	padded := data
	if len(data)%4 != 0 {
		padded = make([]byte, (len(data)+3)&^3)
		copy(padded, data)
	}
	r.queue.WriteBuffer(entry.buf, uint64(offset), padded)
	return nil
}

func (r *wgpuRenderSystem) DeleteBuffer(b *Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.buffers.Remove(b.Handle())
	if !ok {
		return fmt.Errorf("delete buffer: %w", ErrStaleHandle)
	}
	entry.buf.Release()
	return nil
}

func (r *wgpuRenderSystem) UploadMesh(m *Mesh) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.meshes.Get(m.Handle()); ok {
		return nil
	}
	vertex, err := r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    m.Label + " Vertex Buffer",
		Contents: m.MarshalVertices(),
		Usage:    wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("upload mesh %q: %w", m.Label, err)
	}
	index, err := r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    m.Label + " Index Buffer",
		Contents: m.MarshalIndices(),
		Usage:    wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		vertex.Release()
		return fmt.Errorf("upload mesh %q: %w", m.Label, err)
	}
	m.SetHandle(r.meshes.Insert(&wgpuMesh{vertex: vertex, index: index, indexCount: uint32(len(m.Indices))}))
	return nil
}

func (r *wgpuRenderSystem) DeleteMesh(m *Mesh) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.meshes.Remove(m.Handle())
	if !ok {
		return fmt.Errorf("delete mesh %q: %w", m.Label, ErrStaleHandle)
	}
	entry.vertex.Release()
	entry.index.Release()
	m.SetHandle(Handle{})
	return nil
}

func alignUniform(n int) int {
	return (n + uniformAlignment - 1) / uniformAlignment * uniformAlignment
}

func (r *wgpuRenderSystem) CreateShaderClass(desc ShaderClassDescriptor) (*ShaderClass, error) {
	if desc.Backend&ShaderBackendWGSL == 0 {
		return nil, fmt.Errorf("shader class %q: %w", desc.Name, ErrUnsupportedBackend)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	module, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compile shader class %q: %w", desc.Name, err)
	}
	s := &wgpuShader{
		desc:      desc,
		module:    module,
		staged:    make([][]byte, len(desc.ConstantBlocks)),
		pipelines: make(map[string]*wgpu.RenderPipeline),
	}
	if err := r.buildShaderLayouts(s); err != nil {
		s.release()
		return nil, fmt.Errorf("link shader class %q: %w", desc.Name, err)
	}
	for i, size := range desc.ConstantBlocks {
		s.staged[i] = make([]byte, size)
	}
	return NewShaderClass(r.shaders.Insert(s), desc), nil
}

func (r *wgpuRenderSystem) buildShaderLayouts(s *wgpuShader) error {
	visibility := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment

	constEntries := make([]wgpu.BindGroupLayoutEntry, len(s.desc.ConstantBlocks))
	groupEntries := make([]wgpu.BindGroupEntry, len(s.desc.ConstantBlocks))
	for i, size := range s.desc.ConstantBlocks {
		constEntries[i] = wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: visibility,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   uint64(size),
			},
		}
		groupEntries[i] = wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  r.arena,
			Offset:  0,
			Size:    uint64(alignUniform(size)),
		}
	}
	var err error
	s.layouts[0], err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   s.desc.Name + " Constants",
		Entries: constEntries,
	})
	if err != nil {
		return fmt.Errorf("constants layout: %w", err)
	}
	s.constants, err = r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.desc.Name + " Constants",
		Layout:  s.layouts[0],
		Entries: groupEntries,
	})
	if err != nil {
		return fmt.Errorf("constants bind group: %w", err)
	}

	var slotEntries []wgpu.BindGroupLayoutEntry
	for _, b := range s.desc.Bindings {
		base := uint32(b.Slot * 2)
		switch {
		case b.IsTexture():
			sampleType := wgpu.TextureSampleTypeFloat
			samplerType := wgpu.SamplerBindingTypeFiltering
			if b.Unfilterable {
				sampleType = wgpu.TextureSampleTypeUnfilterableFloat
				samplerType = wgpu.SamplerBindingTypeNonFiltering
			}
			dim := wgpu.TextureViewDimension2D
			switch b.Kind {
			case BindTexture2DArray:
				dim = wgpu.TextureViewDimension2DArray
			case BindTextureCubeArray:
				dim = wgpu.TextureViewDimensionCubeArray
			}
			slotEntries = append(slotEntries,
				wgpu.BindGroupLayoutEntry{
					Binding:    base,
					Visibility: visibility,
					Texture:    wgpu.TextureBindingLayout{SampleType: sampleType, ViewDimension: dim},
				},
				wgpu.BindGroupLayoutEntry{
					Binding:    base + 1,
					Visibility: visibility,
					Sampler:    wgpu.SamplerBindingLayout{Type: samplerType},
				},
			)
		case b.Kind == BindUniformBuffer:
			slotEntries = append(slotEntries, wgpu.BindGroupLayoutEntry{
				Binding:    base,
				Visibility: visibility,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			})
		default:
			slotEntries = append(slotEntries, wgpu.BindGroupLayoutEntry{
				Binding:    base,
				Visibility: visibility,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			})
		}
	}
	s.layouts[1], err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   s.desc.Name + " Slots",
		Entries: slotEntries,
	})
	if err != nil {
		return fmt.Errorf("slot layout: %w", err)
	}
	s.layout, err = r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            s.desc.Name,
		BindGroupLayouts: s.layouts[:],
	})
	if err != nil {
		return fmt.Errorf("pipeline layout: %w", err)
	}
	return nil
}

func (s *wgpuShader) release() {
	for _, p := range s.pipelines {
		p.Release()
	}
	if s.layout != nil {
		s.layout.Release()
	}
	if s.constants != nil {
		s.constants.Release()
	}
	for _, l := range s.layouts {
		if l != nil {
			l.Release()
		}
	}
	s.module.Release()
}

func (r *wgpuRenderSystem) DeleteShaderClass(s *ShaderClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.shaders.Remove(s.Handle())
	if !ok {
		return fmt.Errorf("delete shader class %q: %w", s.Name(), ErrStaleHandle)
	}
	if r.global.Handle() == s.Handle() {
		r.global = nil
	}
	entry.release()
	return nil
}

func (r *wgpuRenderSystem) SetShaderConstants(s *ShaderClass, block int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.shaders.Get(s.Handle())
	if !ok {
		return fmt.Errorf("set constants of %q: %w", s.Name(), ErrStaleHandle)
	}
	if block < 0 || block >= len(entry.staged) {
		return fmt.Errorf("set constants of %q: block %d out of range", s.Name(), block)
	}
	copy(entry.staged[block], data)
	return nil
}

func (r *wgpuRenderSystem) GlobalShaderClass() *ShaderClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global
}

func (r *wgpuRenderSystem) SetGlobalShaderClass(s *ShaderClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = s
}

func (r *wgpuRenderSystem) SetRenderTargets(targets ...RenderTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range targets {
		entry, ok := r.textures.Get(t.Texture.Handle())
		if !ok {
			return fmt.Errorf("set render targets: %w", ErrStaleHandle)
		}
		if !entry.cfg.RenderTarget {
			return fmt.Errorf("set render targets %q: %w", entry.cfg.Label, ErrNotRenderTarget)
		}
	}
	r.flushClear()
	r.endPass()
	r.targets = append(r.targets[:0], targets...)
	return nil
}

func (r *wgpuRenderSystem) ClearBuffers(color mgl32.Vec4) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A clear is folded into the load op of the next pass on the current targets.
	r.endPass()
	r.pendingClear = &color
}

func (r *wgpuRenderSystem) SetRenderMode(mode RenderMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

func (r *wgpuRenderSystem) RenderMode() RenderMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *wgpuRenderSystem) SetCamera(c camera.Camera) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cam = c
}

func (r *wgpuRenderSystem) Camera() camera.Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cam
}

func (r *wgpuRenderSystem) BindTexture(slot int, t *Texture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = boundSlot{texture: t}
}

func (r *wgpuRenderSystem) UnbindTexture(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, slot)
}

func (r *wgpuRenderSystem) BindBuffer(slot int, b *Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = boundSlot{buffer: b}
}

func (r *wgpuRenderSystem) UnbindBuffer(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, slot)
}

func (r *wgpuRenderSystem) DrawMesh(obj DrawObject) {
	r.mu.Lock()
	s := EffectiveShader(r.global, obj.Material)
	r.mu.Unlock()
	if s == nil || obj.Mesh == nil {
		return
	}

	// Material layers occupy slots 0..n-1 for this draw only.
	var saved map[int]boundSlot
	if obj.Material != nil && len(obj.Material.Layers) > 0 {
		r.mu.Lock()
		saved = make(map[int]boundSlot, len(obj.Material.Layers))
		for i, layer := range obj.Material.Layers {
			saved[i] = r.slots[i]
			r.slots[i] = boundSlot{texture: layer}
		}
		r.mu.Unlock()
	}

	RunCallbacks(r, s, obj)

	r.mu.Lock()
	defer r.mu.Unlock()
	mesh, ok := r.meshes.Get(obj.Mesh.Handle())
	if ok {
		r.draw(s, PrimitiveTriangles, func(pass *wgpu.RenderPassEncoder) {
			pass.SetVertexBuffer(0, mesh.vertex, 0, wgpu.WholeSize)
			pass.SetIndexBuffer(mesh.index, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
			pass.DrawIndexed(mesh.indexCount, 1, 0, 0, 0)
		})
	} else {
		r.logger.Debugf("draw mesh %q: not uploaded", obj.Mesh.Label)
	}
	for slot, prev := range saved {
		if prev.texture == nil && prev.buffer == nil {
			delete(r.slots, slot)
		} else {
			r.slots[slot] = prev
		}
	}
}

func (r *wgpuRenderSystem) DrawFullscreenQuad(s *ShaderClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draw(s, PrimitiveTriangles, func(pass *wgpu.RenderPassEncoder) {
		pass.Draw(6, 1, 0, 0)
	})
}

func (r *wgpuRenderSystem) DrawProcedural(s *ShaderClass, prim Primitive, vertexCount, instanceCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draw(s, prim, func(pass *wgpu.RenderPassEncoder) {
		pass.Draw(uint32(vertexCount), uint32(instanceCount), 0, 0)
	})
}

// draw encodes one draw with s. Must be called with r.mu held.
func (r *wgpuRenderSystem) draw(s *ShaderClass, prim Primitive, encode func(pass *wgpu.RenderPassEncoder)) {
	if r.frameEncoder == nil {
		return
	}
	entry, ok := r.shaders.Get(s.Handle())
	if !ok {
		r.logger.Debugf("draw with %q: %v", s.Name(), ErrStaleHandle)
		return
	}
	if err := r.beginPass(); err != nil {
		r.logger.Warnf("begin render pass: %v", err)
		return
	}
	pipeline, err := r.pipelineFor(entry, prim)
	if err != nil {
		r.logger.Warnf("pipeline for %q: %v", s.Name(), err)
		return
	}
	offsets, ok := r.captureConstants(entry)
	if !ok {
		r.logger.Warnf("uniform arena exhausted, skipping draw with %q", s.Name())
		return
	}
	slots, err := r.slotBindGroup(entry)
	if err != nil {
		r.logger.Warnf("bind resources of %q: %v", s.Name(), err)
		return
	}
	r.pass.SetPipeline(pipeline)
	r.pass.SetBindGroup(0, entry.constants, offsets)
	r.pass.SetBindGroup(1, slots, nil)
	encode(r.pass)
}

func (r *wgpuRenderSystem) captureConstants(s *wgpuShader) ([]uint32, bool) {
	offsets := make([]uint32, len(s.staged))
	for i, data := range s.staged {
		size := alignUniform(len(data))
		if r.arenaOffset+size > r.arenaSize {
			return nil, false
		}
		r.queue.WriteBuffer(r.arena, uint64(r.arenaOffset), data)
		offsets[i] = uint32(r.arenaOffset)
		r.arenaOffset += size
	}
	return offsets, true
}

func (r *wgpuRenderSystem) slotBindGroup(s *wgpuShader) (*wgpu.BindGroup, error) {
	var entries []wgpu.BindGroupEntry
	for _, b := range s.desc.Bindings {
		base := uint32(b.Slot * 2)
		bound := r.slots[b.Slot]
		if b.IsTexture() {
			tex, ok := r.textures.Get(bound.texture.Handle())
			if !ok {
				tex = r.dummyFor(b.Kind)
			}
			sampler := r.filterSampler
			if b.Unfilterable {
				sampler = r.nearestSampler
			}
			entries = append(entries,
				wgpu.BindGroupEntry{Binding: base, TextureView: tex.view},
				wgpu.BindGroupEntry{Binding: base + 1, Sampler: sampler},
			)
			continue
		}
		buf, ok := r.buffers.Get(bound.buffer.Handle())
		if !ok {
			buf, _ = r.buffers.Get(r.dummyBuffer.Handle())
		}
		entries = append(entries, wgpu.BindGroupEntry{Binding: base, Buffer: buf.buf, Offset: 0, Size: wgpu.WholeSize})
	}
	group, err := r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   s.desc.Name + " Slots",
		Layout:  s.layouts[1],
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	r.garbage = append(r.garbage, group)
	return group, nil
}

func (r *wgpuRenderSystem) dummyFor(kind BindingKind) *wgpuTexture {
	h := r.dummy2D.Handle()
	switch kind {
	case BindTexture2DArray:
		h = r.dummyArray.Handle()
	case BindTextureCubeArray:
		h = r.dummyCubeArray.Handle()
	}
	tex, _ := r.textures.Get(h)
	return tex
}

// attachmentLayout describes the current targets for pipeline caching.
func (r *wgpuRenderSystem) attachmentLayout() (colors []wgpu.TextureFormat, depth bool, samples uint32) {
	samples = 1
	if len(r.targets) == 0 {
		return []wgpu.TextureFormat{r.surfaceFormat}, false, 1
	}
	for _, t := range r.targets {
		cfg := t.Texture.Config()
		if cfg.Format.IsDepth() {
			depth = true
		} else {
			colors = append(colors, toWGPUFormat(cfg.Format))
		}
		samples = uint32(SampleCountFor(cfg.MultiSamples))
	}
	return colors, depth, samples
}

func (r *wgpuRenderSystem) pipelineFor(s *wgpuShader, prim Primitive) (*wgpu.RenderPipeline, error) {
	colors, depth, samples := r.attachmentLayout()
	depthTest := depth && s.desc.Depth && r.mode == ModeScene

	var key strings.Builder
	for _, c := range colors {
		fmt.Fprintf(&key, "%d,", c)
	}
	fmt.Fprintf(&key, "d%t/%t s%d p%d", depth, depthTest, samples, prim)
	if p, ok := s.pipelines[key.String()]; ok {
		return p, nil
	}

	targets := make([]wgpu.ColorTargetState, len(colors))
	for i, c := range colors {
		targets[i] = wgpu.ColorTargetState{Format: c, WriteMask: wgpu.ColorWriteMaskAll}
		if s.desc.Additive {
			targets[i].Blend = &wgpu.BlendState{
				Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: wgpu.BlendOperationAdd},
				Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: wgpu.BlendOperationAdd},
			}
		}
	}

	var buffers []wgpu.VertexBufferLayout
	if s.desc.Vertex == VertexLayoutMesh {
		buffers = []wgpu.VertexBufferLayout{{
			ArrayStride: VertexSize,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
				{Format: wgpu.VertexFormatFloat32x3, Offset: 24, ShaderLocation: 2},
				{Format: wgpu.VertexFormatFloat32x2, Offset: 36, ShaderLocation: 3},
			},
		}}
	}

	topology := wgpu.PrimitiveTopologyTriangleList
	if prim == PrimitivePoints {
		topology = wgpu.PrimitiveTopologyPointList
	}

	var depthState *wgpu.DepthStencilState
	if depth {
		compare := wgpu.CompareFunctionAlways
		if depthTest {
			compare = wgpu.CompareFunctionLess
		}
		depthState = &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled: depthTest,
			DepthCompare:      compare,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		}
	}

	created, err := r.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  s.desc.Name + " Render Pipeline",
		Layout: s.layout,
		Vertex: wgpu.VertexState{
			Module:     s.module,
			EntryPoint: s.desc.VertexEntry,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     s.module,
			EntryPoint: s.desc.FragmentEntry,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthState,
	})
	if err != nil {
		return nil, err
	}
	s.pipelines[key.String()] = created
	return created, nil
}

// beginPass opens a render pass over the current targets if none is open.
func (r *wgpuRenderSystem) beginPass() error {
	if r.pass != nil {
		return nil
	}
	load := wgpu.LoadOpLoad
	clear := wgpu.Color{}
	if r.pendingClear != nil {
		load = wgpu.LoadOpClear
		c := *r.pendingClear
		clear = wgpu.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
		r.pendingClear = nil
	}

	desc := &wgpu.RenderPassDescriptor{}
	if len(r.targets) == 0 {
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{{
			View:       r.frameView,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clear,
		}}
	}
	for _, t := range r.targets {
		entry, ok := r.textures.Get(t.Texture.Handle())
		if !ok {
			return ErrStaleHandle
		}
		view, err := entry.attachmentView(t.Layer)
		if err != nil {
			return err
		}
		if entry.cfg.Format.IsDepth() {
			if entry.msaaView != nil {
				view = entry.msaaView
			}
			desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
				View:            view,
				DepthLoadOp:     load,
				DepthStoreOp:    wgpu.StoreOpStore,
				DepthClearValue: 1.0,
			}
			continue
		}
		attachment := wgpu.RenderPassColorAttachment{
			View:       view,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clear,
		}
		if entry.msaaView != nil {
			attachment.View = entry.msaaView
			attachment.ResolveTarget = view
		}
		desc.ColorAttachments = append(desc.ColorAttachments, attachment)
	}
	r.pass = r.frameEncoder.BeginRenderPass(desc)
	return nil
}

// flushClear executes a pending clear that no draw picked up.
func (r *wgpuRenderSystem) flushClear() {
	if r.pendingClear == nil || r.frameEncoder == nil {
		return
	}
	if err := r.beginPass(); err != nil {
		r.logger.Warnf("clear render targets: %v", err)
		r.pendingClear = nil
		return
	}
	r.endPass()
}

func (r *wgpuRenderSystem) endPass() {
	if r.pass == nil {
		return
	}
	r.pass.End()
	r.pass.Release()
	r.pass = nil
}

func (r *wgpuRenderSystem) BeginFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frameSurface != nil {
		return fmt.Errorf("previous frame surface not yet presented")
	}

	surfaceTexture, err := r.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}
	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	r.frameEncoder = encoder
	r.frameSurface = surfaceTexture
	r.frameView = view
	r.arenaOffset = 0
	r.targets = r.targets[:0]
	return nil
}

func (r *wgpuRenderSystem) EndFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frameEncoder == nil {
		return
	}
	r.flushClear()
	r.endPass()

	commandBuffer, err := r.frameEncoder.Finish(nil)
	if err != nil {
		r.logger.Errorf("finish frame: %v", err)
	} else {
		r.queue.Submit(commandBuffer)
		commandBuffer.Release()
	}
	r.frameEncoder.Release()
	r.frameEncoder = nil
	for _, g := range r.garbage {
		g.Release()
	}
	r.garbage = r.garbage[:0]
}

func (r *wgpuRenderSystem) Present() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frameSurface == nil {
		return
	}
	r.surface.Present()

	if r.frameView != nil {
		r.frameView.Release()
		r.frameView = nil
	}
	r.frameSurface.Release()
	r.frameSurface = nil
}

func (r *wgpuRenderSystem) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.readback != nil {
		r.readback.Release()
		r.readback, r.readbackSize = nil, 0
	}

	r.shaders.Each(func(_ Handle, s *wgpuShader) { s.release() })
	r.textures.Each(func(_ Handle, t *wgpuTexture) { t.release() })
	r.buffers.Each(func(_ Handle, b *wgpuBuffer) { b.buf.Release() })
	r.meshes.Each(func(_ Handle, m *wgpuMesh) {
		m.vertex.Release()
		m.index.Release()
	})
	r.shaders = NewHandleArena[*wgpuShader]()
	r.textures = NewHandleArena[*wgpuTexture]()
	r.buffers = NewHandleArena[*wgpuBuffer]()
	r.meshes = NewHandleArena[*wgpuMesh]()

	r.arena.Release()
	r.filterSampler.Release()
	r.nearestSampler.Release()
	r.queue.Release()
	r.device.Release()
	r.adapter.Release()
	r.surface.Release()
	r.instance.Release()
}

// ReadDepth copies layer 0 of t into a mapped staging buffer and returns its
// depth channel. Work recorded so far in the frame is submitted first so the
// copy sees it; the frame continues on a fresh encoder. Multisampled targets
// are read from their resolved texture.
func (r *wgpuRenderSystem) ReadDepth(t *Texture) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.textures.Get(t.Handle())
	if !ok {
		return nil, fmt.Errorf("read depth: %w", ErrStaleHandle)
	}
	cfg := entry.cfg
	if !cfg.RenderTarget {
		return nil, fmt.Errorf("read depth %q: %w", cfg.Label, ErrNotRenderTarget)
	}
	if _, _, err := depthChannel(cfg.Format); err != nil {
		return nil, fmt.Errorf("read depth %q: %w", cfg.Label, err)
	}
	if cfg.Format.IsDepth() && cfg.MultiSamples > 1 {
		return nil, fmt.Errorf("read depth %q: multisampled depth attachments are not resolved", cfg.Label)
	}

	if err := r.submitPending(); err != nil {
		return nil, fmt.Errorf("read depth %q: %w", cfg.Label, err)
	}

	width, height := cfg.Size.Width, cfg.Size.Height
	pitch := alignedRowPitch(width, cfg.Format)
	size := uint64(pitch * height)
	if err := r.ensureReadback(size); err != nil {
		return nil, fmt.Errorf("read depth %q: %w", cfg.Label, err)
	}

	aspect := wgpu.TextureAspectAll
	if cfg.Format.IsDepth() {
		aspect = wgpu.TextureAspectDepthOnly
	}
	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("read depth %q: %w", cfg.Label, err)
	}
	defer encoder.Release()
	err = encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: entry.texture, Aspect: aspect},
		&wgpu.ImageCopyBuffer{
			Buffer: r.readback,
			Layout: wgpu.TextureDataLayout{BytesPerRow: uint32(pitch), RowsPerImage: uint32(height)},
		},
		&wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return nil, fmt.Errorf("read depth %q: copy: %w", cfg.Label, err)
	}
	commands, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("read depth %q: %w", cfg.Label, err)
	}
	r.queue.Submit(commands)
	commands.Release()

	status := wgpu.BufferMapAsyncStatusUnknown
	if err := r.readback.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, fmt.Errorf("read depth %q: map: %w", cfg.Label, err)
	}
	r.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("read depth %q: map status %v", cfg.Label, status)
	}
	defer r.readback.Unmap()
	return decodeDepth(r.readback.GetMappedRange(0, uint(size)), cfg.Format, width, height, pitch)
}

// submitPending closes the open pass and submits the frame's commands so far,
// then continues the frame on a new encoder.
func (r *wgpuRenderSystem) submitPending() error {
	if r.frameEncoder == nil {
		return nil
	}
	r.flushClear()
	r.endPass()
	commands, err := r.frameEncoder.Finish(nil)
	r.frameEncoder.Release()
	r.frameEncoder = nil
	if err != nil {
		return err
	}
	r.queue.Submit(commands)
	commands.Release()

	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	r.frameEncoder = encoder
	return nil
}

func (r *wgpuRenderSystem) ensureReadback(size uint64) error {
	if r.readback != nil && r.readbackSize >= size {
		return nil
	}
	if r.readback != nil {
		r.readback.Release()
		r.readback, r.readbackSize = nil, 0
	}
	buf, err := r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Depth Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	r.readback, r.readbackSize = buf, size
	return nil
}
