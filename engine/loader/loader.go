package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/deferred"
)

// ErrModelNotLoaded is returned by Instantiate for names that were never loaded.
var ErrModelNotLoaded = errors.New("model not loaded")

// Model is a static glTF scene flattened into parts.
type Model struct {
	Name      string
	Parts     []Part
	Materials []*MaterialSource
}

// uploadKey identifies the GPU materials of a model for one texture layer model.
type uploadKey struct {
	model  string
	layers deferred.TextureLayerModel
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.Mutex

	logger     common.Logger
	powerOfTwo bool

	models   map[string]*Model
	uploads  map[uploadKey][]*renderer.Material
	textures []*renderer.Texture
}

// Loader imports static glTF 2.0 scenes (.gltf or .glb) and turns them into
// game objects for the deferred renderer. Models are cached by name, and the
// textures of a model are uploaded once per texture layer model.
type Loader interface {
	// Load imports a model file and caches it by path. A cached model is
	// returned without reading the file again.
	//
	// Parameters:
	//   - path: the .gltf or .glb file
	//
	// Returns:
	//   - *Model: the model
	//   - error: error if reading or decoding fails
	Load(path string) (*Model, error)

	// LoadReader imports a self-contained model from a stream and caches it
	// by name. External buffer and image URIs are not resolvable this way.
	//
	// Parameters:
	//   - name: the cache key
	//   - r: the glTF JSON or GLB data
	//   - isGLB: true for GLB containers
	//
	// Returns:
	//   - *Model: the model
	//   - error: error if decoding fails
	LoadReader(name string, r io.Reader, isGLB bool) (*Model, error)

	// Get returns a cached model, or nil.
	Get(name string) *Model

	// Models returns a copy of the model cache.
	Models() map[string]*Model

	// Instantiate creates one game object per part of a loaded model. The
	// material textures are arranged in the layer order the G-Buffer shader
	// samples, with neutral textures standing in for maps the model lacks.
	// Options apply to every created object.
	//
	// Parameters:
	//   - name: the model's cache key
	//   - rs: the render system the textures are created on
	//   - layers: the layer model of the renderer's G-Buffer shader
	//   - options: game object options such as a position
	//
	// Returns:
	//   - []game_object.GameObject: the objects, in part order
	//   - error: ErrModelNotLoaded or a texture creation error
	Instantiate(name string, rs renderer.RenderSystem, layers deferred.TextureLayerModel, options ...game_object.GameObjectBuilderOption) ([]game_object.GameObject, error)

	// Release deletes every texture the loader uploaded and the GPU buffers
	// of every model mesh. Models stay cached and can be instantiated again.
	Release(rs renderer.RenderSystem)
}

var _ Loader = &loader{}

// NewLoader creates a Loader with the given options applied.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions
//
// Returns:
//   - Loader: the loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		logger:  common.NewNopLogger(),
		models:  make(map[string]*Model),
		uploads: make(map[uploadKey][]*renderer.Material),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (*Model, error) {
	if m := l.Get(path); m != nil {
		return m, nil
	}
	var p gltfParser
	if err := p.parseFile(path); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return l.build(path, &p)
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	var p gltfParser
	if err := p.parse(bytes.Clone(data), isGLB); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	return l.build(name, &p)
}

func (l *loader) build(name string, p *gltfParser) (*Model, error) {
	parts, err := p.extractParts(name)
	if err != nil {
		return nil, fmt.Errorf("%s: mesh extraction failed: %w", name, err)
	}
	materials, err := p.extractMaterials(l.powerOfTwo)
	if err != nil {
		return nil, fmt.Errorf("%s: material extraction failed: %w", name, err)
	}
	for i := range parts {
		if parts[i].Material >= len(materials) {
			l.logger.Warnf("loader: %s: part %s references missing material %d", name, parts[i].Mesh.Label, parts[i].Material)
			parts[i].Material = -1
		}
	}

	m := &Model{Name: name, Parts: parts, Materials: materials}
	l.mu.Lock()
	l.models[name] = m
	l.mu.Unlock()
	l.logger.Debugf("loader: %s: %d parts, %d materials", name, len(parts), len(materials))
	return m, nil
}

func (l *loader) Get(name string) *Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.models[name]
}

func (l *loader) Models() map[string]*Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]*Model, len(l.models))
	for k, v := range l.models {
		out[k] = v
	}
	return out
}

func (l *loader) Instantiate(name string, rs renderer.RenderSystem, layers deferred.TextureLayerModel, options ...game_object.GameObjectBuilderOption) ([]game_object.GameObject, error) {
	m := l.Get(name)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, name)
	}
	materials, err := l.materials(m, rs, layers)
	if err != nil {
		return nil, err
	}

	objects := make([]game_object.GameObject, 0, len(m.Parts))
	for _, part := range m.Parts {
		mat := materials[len(materials)-1]
		if part.Material >= 0 {
			mat = materials[part.Material]
		}
		opts := append([]game_object.GameObjectBuilderOption{
			game_object.WithMesh(part.Mesh),
			game_object.WithMaterial(mat),
		}, options...)
		objects = append(objects, game_object.NewGameObject(opts...))
	}
	return objects, nil
}

// materials returns the uploaded materials of a model for a layer model,
// one per MaterialSource followed by the default material.
func (l *loader) materials(m *Model, rs renderer.RenderSystem, layers deferred.TextureLayerModel) ([]*renderer.Material, error) {
	key := uploadKey{model: m.Name, layers: layers}
	l.mu.Lock()
	defer l.mu.Unlock()
	if mats, ok := l.uploads[key]; ok {
		return mats, nil
	}

	u := uploader{rs: rs, fallbacks: make(map[string]*renderer.Texture)}
	sources := append(append([]*MaterialSource(nil), m.Materials...), &MaterialSource{Name: "default"})
	mats := make([]*renderer.Material, 0, len(sources))
	for _, src := range sources {
		mat, err := u.material(m.Name, src, layers)
		if err != nil {
			u.rollback()
			return nil, fmt.Errorf("%s: material %q: %w", m.Name, src.Name, err)
		}
		mats = append(mats, mat)
	}
	l.textures = append(l.textures, u.created...)
	l.uploads[key] = mats
	return mats, nil
}

func (l *loader) Release(rs renderer.RenderSystem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.textures {
		if err := rs.DeleteTexture(t); err != nil {
			l.logger.Debugf("loader: delete texture: %v", err)
		}
	}
	l.textures = nil
	clear(l.uploads)
	for _, m := range l.models {
		for _, part := range m.Parts {
			if !part.Mesh.Handle().IsZero() {
				_ = rs.DeleteMesh(part.Mesh)
			}
		}
	}
}

// uploader creates the textures of one batch of materials so a failure can
// delete everything the batch created.
type uploader struct {
	rs        renderer.RenderSystem
	fallbacks map[string]*renderer.Texture
	created   []*renderer.Texture
}

// neutral maps stand in for absent surface maps.
var neutral = map[string]*common.TextureStagingData{
	"diffuse":  solid(255, 255, 255, 255),
	"specular": solid(0, 0, 0, 255),
	"normal":   solid(128, 128, 255, 255),
	"height":   solid(128, 128, 128, 255),
	"lightmap": solid(0, 0, 0, 255),
}

func (u *uploader) material(model string, src *MaterialSource, layers deferred.TextureLayerModel) (*renderer.Material, error) {
	slots := []struct {
		kind  string
		index int
		data  *common.TextureStagingData
	}{
		{"diffuse", layers.Diffuse, src.Diffuse},
		{"specular", layers.Specular, src.Specular},
		{"normal", layers.Normal, src.Normal},
		{"height", layers.Height, nil},
		{"lightmap", layers.LightMap, src.LightMap},
	}
	count := 0
	for _, s := range slots {
		count = max(count, s.index+1)
	}

	textures := make([]*renderer.Texture, count)
	for _, s := range slots {
		if s.index < 0 {
			continue
		}
		var err error
		if s.data == nil {
			textures[s.index], err = u.fallback(s.kind)
		} else {
			textures[s.index], err = u.upload(fmt.Sprintf("%s/%s/%s", model, src.Name, s.kind), *s.data)
		}
		if err != nil {
			return nil, err
		}
	}
	mat := renderer.DefaultMaterial(textures...)
	mat.Name = src.Name
	return mat, nil
}

func (u *uploader) fallback(kind string) (*renderer.Texture, error) {
	if t, ok := u.fallbacks[kind]; ok {
		return t, nil
	}
	t, err := u.upload("loader/neutral/"+kind, *neutral[kind])
	if err != nil {
		return nil, err
	}
	u.fallbacks[kind] = t
	return t, nil
}

func (u *uploader) upload(label string, data common.TextureStagingData) (*renderer.Texture, error) {
	t, err := renderer.CreateTextureFromImage(u.rs, label, data)
	if err != nil {
		return nil, err
	}
	u.created = append(u.created, t)
	return t, nil
}

func (u *uploader) rollback() {
	for _, t := range u.created {
		_ = u.rs.DeleteTexture(t)
	}
	u.created = nil
}
