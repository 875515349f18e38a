package deferred

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed assets/bloom_blur.wgsl
var bloomBlurSource string

//go:embed assets/bloom_composite.wgsl
var bloomCompositeSource string

const (
	// BloomFilterSize is the number of taps of the separable blur.
	BloomFilterSize = 9

	// DefaultBloomFactor scales the blurred highlights added back to the image.
	DefaultBloomFactor float32 = 1.0

	bloomDeviation     = 0.8
	bloomWeightScale   = 0.6
	bloomTapBlockSize  = BloomFilterSize * 16
	bloomCompositeSize = 16
)

// BloomTap is one sample of the blur kernel: a texture coordinate offset
// along the blur direction and its weight.
type BloomTap struct {
	Offset mgl32.Vec2
	Weight float32
}

// BloomKernel returns the horizontal and vertical blur taps for a target
// size. Weights follow a gaussian over [-1, 1] with standard deviation 0.8,
// scaled by 0.6; offsets step one texel per tap.
//
// Parameters:
//   - size: the size of the blurred target
//
// Returns:
//   - [BloomFilterSize]BloomTap: the horizontal taps
//   - [BloomFilterSize]BloomTap: the vertical taps
func BloomKernel(size common.Size2D) ([BloomFilterSize]BloomTap, [BloomFilterSize]BloomTap) {
	var h, v [BloomFilterSize]BloomTap
	half := float32(BloomFilterSize / 2)
	for i := range BloomFilterSize {
		f := (float32(i) - half) / half
		w := float32(gaussian(float64(f), 0, bloomDeviation)) * bloomWeightScale
		h[i] = BloomTap{Offset: mgl32.Vec2{f * half / float32(size.Width), 0}, Weight: w}
		v[i] = BloomTap{Offset: mgl32.Vec2{0, f * half / float32(size.Height)}, Weight: w}
	}
	return h, v
}

func gaussian(x, mean, deviation float64) float64 {
	d := x - mean
	return 1 / math.Sqrt(2*math.Pi*deviation*deviation) * math.Exp(-(d*d)/(2*deviation*deviation))
}

// marshalTaps packs the kernel as an array of vec4: xy offset, z weight.
func marshalTaps(taps [BloomFilterSize]BloomTap) []byte {
	buf := make([]byte, bloomTapBlockSize)
	for i, t := range taps {
		putVec2(buf[i*16:], t.Offset)
		putF32(buf[i*16+8:], t.Weight)
	}
	return buf
}

// BloomFilter blurs the highlights written by the shading pass and adds
// them back on top of the shaded image. The shading pass renders into the
// filter's colour and gloss inputs; Render blurs the gloss input in two
// separable passes at half resolution and composites into the output.
type BloomFilter struct {
	rs     renderer.RenderSystem
	logger common.Logger
	set    resourceSet

	resolution common.Size2D
	factor     float32

	color *renderer.Texture
	gloss *renderer.Texture
	pass1 *renderer.Texture
	pass2 *renderer.Texture

	blurH     *renderer.ShaderClass
	blurV     *renderer.ShaderClass
	composite *renderer.ShaderClass
}

// NewBloomFilter creates an empty bloom filter. Call Create to allocate.
func NewBloomFilter(rs renderer.RenderSystem, logger common.Logger) *BloomFilter {
	return &BloomFilter{rs: rs, logger: logger, set: newResourceSet(rs), factor: DefaultBloomFactor}
}

// Create allocates the bloom targets and shaders for a resolution.
//
// Parameters:
//   - pp: the shader pre-processor
//   - resolution: the size of the shaded image
//   - hdr: store the colour input as RGBA16F so overblended values survive
//
// Returns:
//   - error: ErrInvalidResolution or a creation error
func (b *BloomFilter) Create(pp shader.PreProcessor, resolution common.Size2D, hdr bool) error {
	b.Release()
	if !resolution.Valid() {
		return fmt.Errorf("bloom %s: %w", resolution, ErrInvalidResolution)
	}
	if err := b.create(pp, resolution, hdr); err != nil {
		_ = b.Release()
		return fmt.Errorf("bloom: %w", err)
	}
	return nil
}

func (b *BloomFilter) create(pp shader.PreProcessor, resolution common.Size2D, hdr bool) error {
	b.resolution = resolution
	colorFormat := renderer.FormatRGBA8
	if hdr {
		colorFormat = renderer.FormatRGBA16F
	}
	half := resolution.Half()

	var err error
	for _, t := range []struct {
		dst **renderer.Texture
		cfg renderer.TextureConfig
	}{
		{&b.color, renderer.TextureConfig{Label: "Bloom Input Color", Size: resolution, Format: colorFormat, RenderTarget: true}},
		{&b.gloss, renderer.TextureConfig{Label: "Bloom Input Gloss", Size: resolution, Format: renderer.FormatRGBA8, RenderTarget: true}},
		{&b.pass1, renderer.TextureConfig{Label: "Bloom Pass 1", Size: half, Format: renderer.FormatRGBA8, RenderTarget: true}},
		{&b.pass2, renderer.TextureConfig{Label: "Bloom Pass 2", Size: half, Format: renderer.FormatRGBA8, RenderTarget: true}},
	} {
		if *t.dst, err = b.set.texture(t.cfg); err != nil {
			return err
		}
	}

	blurLayout := SamplerLayout{Slots: []NamedSlot{{Name: "BloomInput", Slot: 0, Kind: renderer.BindTexture2D}}}
	if b.blurH, err = buildShader(&b.set, pp, shaderSpec{
		name: "bloom_blur_h", source: bloomBlurSource, layout: blurLayout,
		blocks: []int{bloomTapBlockSize}, vertex: renderer.VertexLayoutNone,
	}); err != nil {
		return err
	}
	if b.blurV, err = buildShader(&b.set, pp, shaderSpec{
		name: "bloom_blur_v", source: bloomBlurSource, layout: blurLayout,
		blocks: []int{bloomTapBlockSize}, vertex: renderer.VertexLayoutNone,
	}); err != nil {
		return err
	}
	if b.composite, err = buildShader(&b.set, pp, shaderSpec{
		name:   "bloom_composite",
		source: bloomCompositeSource,
		layout: SamplerLayout{Slots: []NamedSlot{
			{Name: "BloomColor", Slot: 0, Kind: renderer.BindTexture2D},
			{Name: "BloomBlur", Slot: 1, Kind: renderer.BindTexture2D},
		}},
		blocks: []int{bloomCompositeSize},
		vertex: renderer.VertexLayoutNone,
	}); err != nil {
		return err
	}

	h, v := BloomKernel(half)
	if err := b.rs.SetShaderConstants(b.blurH, 0, marshalTaps(h)); err != nil {
		return err
	}
	if err := b.rs.SetShaderConstants(b.blurV, 0, marshalTaps(v)); err != nil {
		return err
	}
	return b.writeFactor()
}

// Release deletes the bloom targets and shaders. Safe to call twice.
func (b *BloomFilter) Release() error {
	err := b.set.release()
	b.color, b.gloss, b.pass1, b.pass2 = nil, nil, nil, nil
	b.blurH, b.blurV, b.composite = nil, nil, nil
	return err
}

// Active reports whether the filter is allocated.
func (b *BloomFilter) Active() bool {
	return b.composite != nil
}

// InputTargets returns the render targets the shading pass writes when
// bloom is enabled: the shaded colour and the highlights to blur.
func (b *BloomFilter) InputTargets() []renderer.RenderTarget {
	if b.color == nil {
		return nil
	}
	return []renderer.RenderTarget{renderer.Target(b.color), renderer.Target(b.gloss)}
}

// SetFactor sets the strength of the added highlights.
func (b *BloomFilter) SetFactor(f float32) {
	b.factor = f
	if err := b.writeFactor(); err != nil {
		b.logger.Warnf("bloom: %v", err)
	}
}

// Factor returns the strength of the added highlights.
func (b *BloomFilter) Factor() float32 {
	return b.factor
}

func (b *BloomFilter) writeFactor() error {
	if b.composite == nil {
		return nil
	}
	buf := make([]byte, bloomCompositeSize)
	putF32(buf, b.factor)
	return b.rs.SetShaderConstants(b.composite, 0, buf)
}

// Render blurs the gloss input horizontally then vertically and composites
// the result with the colour input into output, or the back buffer when
// output is nil.
//
// Parameters:
//   - output: the destination texture, or nil
//
// Returns:
//   - error: ErrResourceReleased or a binding error
func (b *BloomFilter) Render(output *renderer.Texture) error {
	if !b.Active() {
		return ErrResourceReleased
	}
	b.rs.SetRenderMode(renderer.Mode2D)
	if err := b.blur(b.blurH, b.gloss, b.pass1); err != nil {
		return err
	}
	if err := b.blur(b.blurV, b.pass1, b.pass2); err != nil {
		return err
	}

	var targets []renderer.RenderTarget
	if output != nil {
		targets = append(targets, renderer.Target(output))
	}
	if err := b.rs.SetRenderTargets(targets...); err != nil {
		return fmt.Errorf("bloom composite: %w", err)
	}
	b.rs.BindTexture(0, b.color)
	b.rs.BindTexture(1, b.pass2)
	b.rs.DrawFullscreenQuad(b.composite)
	b.rs.UnbindTexture(1)
	b.rs.UnbindTexture(0)
	return nil
}

func (b *BloomFilter) blur(s *renderer.ShaderClass, src, dst *renderer.Texture) error {
	if err := b.rs.SetRenderTargets(renderer.Target(dst)); err != nil {
		return fmt.Errorf("bloom blur: %w", err)
	}
	b.rs.BindTexture(0, src)
	b.rs.DrawFullscreenQuad(s)
	b.rs.UnbindTexture(0)
	return nil
}
