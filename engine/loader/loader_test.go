package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/game_object"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/deferred"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/renderertest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allLayers = deferred.TextureLayerModel{Diffuse: 0, Specular: 1, Normal: 2, Height: 3, LightMap: 4}

// quadBuffer packs a unit quad in the XY plane: positions, texcoords, uint16 indices.
func quadBuffer() []byte {
	var buf bytes.Buffer
	for _, p := range [][3]float32{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}} {
		_ = binary.Write(&buf, binary.LittleEndian, p)
	}
	for _, uv := range [][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}} {
		_ = binary.Write(&buf, binary.LittleEndian, uv)
	}
	_ = binary.Write(&buf, binary.LittleEndian, []uint16{0, 1, 2, 0, 2, 3})
	return buf.Bytes()
}

func whitePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			img.Set(x, y, color.White)
		}
	}
	var out bytes.Buffer
	require.NoError(t, png.Encode(&out, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(out.Bytes())
}

// quadDocument returns a scene with the quad under a translated parent and a
// scaled child. bufferURI empty means the GLB binary chunk.
func quadDocument(t *testing.T, bufferURI string) []byte {
	t.Helper()
	buffer := map[string]any{"byteLength": 92}
	if bufferURI != "" {
		buffer["uri"] = bufferURI
	}
	doc := map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"nodes": []any{
			map[string]any{"name": "root", "translation": []float32{0, 2, 0}, "children": []int{1}},
			map[string]any{"name": "child", "mesh": 0, "scale": []float32{2, 2, 2}},
		},
		"meshes": []any{map[string]any{
			"name": "quad",
			"primitives": []any{map[string]any{
				"attributes": map[string]int{"POSITION": 0, "TEXCOORD_0": 1},
				"indices":    2,
				"material":   0,
			}},
		}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": 5126, "count": 4, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": 5126, "count": 4, "type": "VEC2"},
			map[string]any{"bufferView": 2, "componentType": 5123, "count": 6, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 48},
			map[string]any{"buffer": 0, "byteOffset": 48, "byteLength": 32},
			map[string]any{"buffer": 0, "byteOffset": 80, "byteLength": 12},
		},
		"buffers": []any{buffer},
		"materials": []any{map[string]any{
			"name": "painted",
			"pbrMetallicRoughness": map[string]any{
				"baseColorFactor":  []float32{1, 0.5, 0, 1},
				"baseColorTexture": map[string]any{"index": 0},
				"roughnessFactor":  0.25,
			},
			"emissiveFactor": []float32{1, 1, 1},
		}},
		"textures": []any{map[string]any{"source": 0}},
		"images":   []any{map[string]any{"uri": whitePNG(t)}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func embeddedQuad(t *testing.T) []byte {
	return quadDocument(t, "data:application/octet-stream;base64,"+base64.StdEncoding.EncodeToString(quadBuffer()))
}

func glb(jsonChunk, binChunk []byte) []byte {
	pad := func(b []byte, fill byte) []byte {
		for len(b)%4 != 0 {
			b = append(b, fill)
		}
		return b
	}
	jsonChunk, binChunk = pad(jsonChunk, ' '), pad(binChunk, 0)
	var out bytes.Buffer
	total := 12 + 8 + len(jsonChunk) + 8 + len(binChunk)
	_ = binary.Write(&out, binary.LittleEndian, []uint32{gltfGLBMagic, gltfGLBVersion, uint32(total)})
	_ = binary.Write(&out, binary.LittleEndian, []uint32{uint32(len(jsonChunk)), gltfGLBChunkJSON})
	out.Write(jsonChunk)
	_ = binary.Write(&out, binary.LittleEndian, []uint32{uint32(len(binChunk)), gltfGLBChunkBIN})
	out.Write(binChunk)
	return out.Bytes()
}

func assertVec3(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range 3 {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d of %v", i, got)
	}
}

func TestLoader_LoadReaderBakesNodeTransforms(t *testing.T) {
	l := NewLoader()
	m, err := l.LoadReader("scene", bytes.NewReader(embeddedQuad(t)), false)
	require.NoError(t, err)

	require.Len(t, m.Parts, 1)
	part := m.Parts[0]
	assert.Equal(t, "scene/quad", part.Mesh.Label)
	assert.Equal(t, 0, part.Material)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, part.Mesh.Indices)

	require.Len(t, part.Mesh.Vertices, 4)
	assertVec3(t, mgl32.Vec3{-2, 0, 0}, part.Mesh.Vertices[0].Position)
	assertVec3(t, mgl32.Vec3{2, 4, 0}, part.Mesh.Vertices[2].Position)
	for _, v := range part.Mesh.Vertices {
		assertVec3(t, mgl32.Vec3{0, 0, 1}, v.Normal)
		assertVec3(t, mgl32.Vec3{1, 0, 0}, v.Tangent)
	}

	center, radius := part.Mesh.Bounds()
	assertVec3(t, mgl32.Vec3{0, 2, 0}, center)
	assert.InDelta(t, 2*math.Sqrt2, radius, 1e-5)
	assert.Same(t, m, l.Get("scene"))
}

func TestLoader_MaterialChannels(t *testing.T) {
	m, err := NewLoader().LoadReader("scene", bytes.NewReader(embeddedQuad(t)), false)
	require.NoError(t, err)
	require.Len(t, m.Materials, 1)

	src := m.Materials[0]
	assert.Equal(t, "painted", src.Name)
	require.NotNil(t, src.Diffuse)
	assert.Equal(t, uint32(2), src.Diffuse.Width)
	assert.Equal(t, []byte{255, 128, 0, 255}, src.Diffuse.Pixels[:4], "base color factor tints the texture")
	assert.Equal(t, []byte{191, 191, 191, 255}, src.Specular.Pixels, "specular is 1 - roughness")
	assert.Equal(t, []byte{255, 255, 255, 255}, src.LightMap.Pixels)
	assert.Nil(t, src.Normal)
}

func TestLoader_GLBContainer(t *testing.T) {
	m, err := NewLoader().LoadReader("glb", bytes.NewReader(glb(quadDocument(t, ""), quadBuffer())), true)
	require.NoError(t, err)
	require.Len(t, m.Parts, 1)
	assertVec3(t, mgl32.Vec3{2, 4, 0}, m.Parts[0].Mesh.Vertices[2].Position)
}

func TestLoader_LoadFileIsCached(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.bin"), quadBuffer(), 0o644))
	path := filepath.Join(dir, "quad.gltf")
	require.NoError(t, os.WriteFile(path, quadDocument(t, "quad.bin"), 0o644))

	l := NewLoader(WithPowerOfTwoTextures(true))
	first, err := l.Load(path)
	require.NoError(t, err)
	second, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, l.Models(), 1)
}

func TestLoader_RejectsInvalidDocuments(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadReader("v1", strings.NewReader(`{"asset":{"version":"1.0"}}`), false)
	assert.ErrorIs(t, err, ErrInvalidGLTF)

	_, err = l.LoadReader("magic", bytes.NewReader(make([]byte, 20)), true)
	assert.ErrorIs(t, err, ErrInvalidGLTF)

	_, err = l.LoadReader("missing", bytes.NewReader(quadDocument(t, "")), false)
	assert.Error(t, err, "a JSON document has no binary chunk")
	assert.Nil(t, l.Get("missing"))
}

func TestLoader_InstantiateFollowsLayerModel(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadReader("scene", bytes.NewReader(embeddedQuad(t)), false)
	require.NoError(t, err)
	rs := renderertest.NewRecorder(64, 64)

	objects, err := l.Instantiate("scene", rs, allLayers, game_object.WithPosition(5, 0, 0))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, mgl32.Vec3{5, 0, 0}, objects[0].Position())

	mat := objects[0].Material()
	require.Len(t, mat.Layers, 5)
	for i, layer := range mat.Layers {
		assert.NotNil(t, layer, "layer %d", i)
	}
	assert.Equal(t, "painted", mat.Name)
	assert.Equal(t, "scene/painted/diffuse", mat.Layers[0].Config().Label)
	assert.Equal(t, "loader/neutral/normal", mat.Layers[2].Config().Label)

	// Five for the material, three more neutral maps for the default material.
	assert.Equal(t, 8, rs.LiveTextures())
	_, err = l.Instantiate("scene", rs, allLayers)
	require.NoError(t, err)
	assert.Equal(t, 8, rs.LiveTextures(), "materials are uploaded once per layer model")

	diffuseOnly, err := l.Instantiate("scene", rs, deferred.TextureLayerModel{Diffuse: 0, Specular: -1, Normal: -1, Height: -1, LightMap: -1})
	require.NoError(t, err)
	assert.Len(t, diffuseOnly[0].Material().Layers, 1)

	require.NoError(t, rs.UploadMesh(objects[0].Mesh()))
	l.Release(rs)
	assert.Zero(t, rs.LiveTextures())
	assert.True(t, objects[0].Mesh().Handle().IsZero())
}

func TestLoader_InstantiateFailureRollsBack(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadReader("scene", bytes.NewReader(embeddedQuad(t)), false)
	require.NoError(t, err)

	rs := renderertest.NewRecorder(64, 64)
	rs.FailTexture = func(cfg renderer.TextureConfig) error {
		if strings.HasSuffix(cfg.Label, "lightmap") {
			return errors.New("out of memory")
		}
		return nil
	}
	_, err = l.Instantiate("scene", rs, allLayers)
	assert.Error(t, err)
	assert.Zero(t, rs.LiveTextures())

	_, err = l.Instantiate("nope", rs, allLayers)
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestGenerateTangentsFallsBackWithoutUVs(t *testing.T) {
	vertices := []renderer.Vertex{
		{Position: mgl32.Vec3{0, 0, 0}},
		{Position: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0, 0, -1}},
	}
	indices := []uint32{0, 1, 2}
	generateNormals(vertices, indices)
	generateTangents(vertices, indices)
	for _, v := range vertices {
		assertVec3(t, mgl32.Vec3{0, 1, 0}, v.Normal)
		assert.InDelta(t, 0, v.Tangent.Dot(v.Normal), 1e-5)
		assert.InDelta(t, 1, v.Tangent.Len(), 1e-5)
	}
}

func TestTransformVerticesFlipsMirroredWinding(t *testing.T) {
	vertices := []renderer.Vertex{{Normal: mgl32.Vec3{0, 0, 1}, Tangent: mgl32.Vec3{1, 0, 0}}}
	indices := []uint32{0, 1, 2}
	transformVertices(vertices, indices, mgl32.Scale3D(-1, 1, 1))
	assert.Equal(t, []uint32{0, 2, 1}, indices)
	assertVec3(t, mgl32.Vec3{-1, 0, 0}, vertices[0].Tangent)
}
