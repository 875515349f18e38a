package deferred

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// resourceSet tracks every GPU resource a component created so the whole set
// can be released as a unit, either on teardown or when a later step of the
// same creation fails.
type resourceSet struct {
	rs       renderer.RenderSystem
	textures []*renderer.Texture
	buffers  []*renderer.Buffer
	shaders  []*renderer.ShaderClass
}

func newResourceSet(rs renderer.RenderSystem) resourceSet {
	return resourceSet{rs: rs}
}

func (s *resourceSet) texture(cfg renderer.TextureConfig) (*renderer.Texture, error) {
	t, err := s.rs.CreateTexture(cfg)
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", cfg.Label, err)
	}
	s.textures = append(s.textures, t)
	return t, nil
}

func (s *resourceSet) buffer(cfg renderer.BufferConfig) (*renderer.Buffer, error) {
	b, err := s.rs.CreateBuffer(cfg)
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", cfg.Label, err)
	}
	s.buffers = append(s.buffers, b)
	return b, nil
}

func (s *resourceSet) shader(desc renderer.ShaderClassDescriptor) (*renderer.ShaderClass, error) {
	sc, err := s.rs.CreateShaderClass(desc)
	if err != nil {
		return nil, fmt.Errorf("create shader class %q: %w", desc.Name, err)
	}
	s.shaders = append(s.shaders, sc)
	return sc, nil
}

// empty reports whether nothing is tracked.
func (s *resourceSet) empty() bool {
	return len(s.textures) == 0 && len(s.buffers) == 0 && len(s.shaders) == 0
}

// release deletes every tracked resource, newest first, and forgets them. A
// second call is a no-op.
func (s *resourceSet) release() error {
	var errs []error
	for _, sc := range slices.Backward(s.shaders) {
		if err := s.rs.DeleteShaderClass(sc); err != nil {
			errs = append(errs, fmt.Errorf("delete shader class %q: %w", sc.Name(), err))
		}
	}
	for _, b := range slices.Backward(s.buffers) {
		if err := s.rs.DeleteBuffer(b); err != nil {
			errs = append(errs, fmt.Errorf("delete buffer %q: %w", b.Config().Label, err))
		}
	}
	for _, t := range slices.Backward(s.textures) {
		if err := s.rs.DeleteTexture(t); err != nil {
			errs = append(errs, fmt.Errorf("delete texture %q: %w", t.Config().Label, err))
		}
	}
	s.textures, s.buffers, s.shaders = nil, nil, nil
	return errors.Join(errs...)
}

// shaderSpec describes one shader permutation to build.
type shaderSpec struct {
	name      string
	source    string
	options   []string
	layout    SamplerLayout
	blocks    []int
	vertex    renderer.VertexLayout
	depth     bool
	additive  bool
	object    renderer.ObjectCallback
	surface   renderer.SurfaceCallback
	fragEntry string
}

// buildShader pre-processes spec.source with its options plus the layout's
// binding options and creates the shader class in set.
func buildShader(set *resourceSet, pp shader.PreProcessor, spec shaderSpec) (*renderer.ShaderClass, error) {
	options := append(slices.Clone(spec.options), spec.layout.Options()...)
	perm, err := shader.NewPermutation(pp, spec.name, spec.source, options)
	if err != nil {
		return nil, err
	}
	frag := spec.fragEntry
	if frag == "" {
		frag = "fs_main"
	}
	return set.shader(renderer.ShaderClassDescriptor{
		Name:            spec.name,
		Backend:         renderer.ShaderBackendWGSL,
		Source:          perm.Source,
		VertexEntry:     "vs_main",
		FragmentEntry:   frag,
		Options:         perm.Options,
		Vertex:          spec.vertex,
		Depth:           spec.depth,
		Additive:        spec.additive,
		ConstantBlocks:  spec.blocks,
		Bindings:        spec.layout.Bindings(),
		ObjectCallback:  spec.object,
		SurfaceCallback: spec.surface,
	})
}
