package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// maxNodeDepth bounds scene graph recursion so a cyclic document cannot hang the loader.
const maxNodeDepth = 64

// Part is one triangle primitive of a model with its node transform baked in.
type Part struct {
	Mesh *renderer.Mesh
	// Material indexes Model.Materials; -1 selects the default material.
	Material int
}

// extractParts walks the document's default scene and returns every
// triangle primitive in model space. Documents without scenes use every
// node that is not another node's child as a root.
func (p *gltfParser) extractParts(name string) ([]Part, error) {
	var parts []Part
	for _, root := range p.rootNodes() {
		if err := p.extractNode(name, root, mgl32.Ident4(), 0, &parts); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

func (p *gltfParser) rootNodes() []int {
	doc := p.doc
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			scene = *doc.Scene
		}
		return doc.Scenes[scene].Nodes
	}
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots
}

func (p *gltfParser) extractNode(name string, index int, parent mgl32.Mat4, depth int, parts *[]Part) error {
	if index < 0 || index >= len(p.doc.Nodes) {
		return fmt.Errorf("node index %d out of range", index)
	}
	if depth > maxNodeDepth {
		return fmt.Errorf("%w: node hierarchy deeper than %d", ErrInvalidGLTF, maxNodeDepth)
	}
	node := &p.doc.Nodes[index]
	world := parent.Mul4(nodeMatrix(node))

	if node.Mesh != nil {
		if *node.Mesh < 0 || *node.Mesh >= len(p.doc.Meshes) {
			return fmt.Errorf("mesh index %d out of range", *node.Mesh)
		}
		mesh := &p.doc.Meshes[*node.Mesh]
		for i := range mesh.Primitives {
			prim := &mesh.Primitives[i]
			label := fmt.Sprintf("%s/%s", name, primitiveLabel(node, mesh, *node.Mesh, i))
			m, err := p.extractPrimitive(prim, label, world)
			if err != nil {
				return fmt.Errorf("%s: %w", label, err)
			}
			material := -1
			if prim.Material != nil {
				material = *prim.Material
			}
			*parts = append(*parts, Part{Mesh: m, Material: material})
		}
	}

	for _, c := range node.Children {
		if err := p.extractNode(name, c, world, depth+1, parts); err != nil {
			return err
		}
	}
	return nil
}

func primitiveLabel(node *gltfNode, mesh *gltfMesh, meshIndex, prim int) string {
	label := mesh.Name
	if label == "" {
		label = node.Name
	}
	if label == "" {
		label = fmt.Sprintf("mesh_%d", meshIndex)
	}
	if prim > 0 {
		label = fmt.Sprintf("%s_prim%d", label, prim)
	}
	return label
}

// nodeMatrix returns a node's local transform: its matrix, or T * R * S.
func nodeMatrix(n *gltfNode) mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}
	m := mgl32.Ident4()
	if n.Translation != nil {
		t := n.Translation
		m = m.Mul4(mgl32.Translate3D(t[0], t[1], t[2]))
	}
	if n.Rotation != nil {
		r := n.Rotation
		m = m.Mul4(mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}.Normalize().Mat4())
	}
	if n.Scale != nil {
		s := n.Scale
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

// extractPrimitive reads one triangle primitive into an engine mesh
// transformed by world. Missing normals and tangents are generated from the
// geometry. Tangent handedness is dropped; the G-Buffer shader derives the
// bitangent as cross(normal, tangent).
func (p *gltfParser) extractPrimitive(prim *gltfPrimitive, label string, world mgl32.Mat4) (*renderer.Mesh, error) {
	if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
		return nil, fmt.Errorf("unsupported primitive mode %d (only triangles)", *prim.Mode)
	}
	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := p.readFloats(posAccessor, 3)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	vertices := make([]renderer.Vertex, len(positions)/3)
	for i := range vertices {
		vertices[i].Position = mgl32.Vec3{positions[i*3], positions[i*3+1], positions[i*3+2]}
	}

	hasNormals, err := p.readVertexAttribute(prim, "NORMAL", 3, vertices, func(v *renderer.Vertex, c []float32) {
		v.Normal = mgl32.Vec3{c[0], c[1], c[2]}
	})
	if err != nil {
		return nil, err
	}
	if _, err := p.readVertexAttribute(prim, "TEXCOORD_0", 2, vertices, func(v *renderer.Vertex, c []float32) {
		v.TexCoord = mgl32.Vec2{c[0], c[1]}
	}); err != nil {
		return nil, err
	}
	hasTangents, err := p.readVertexAttribute(prim, "TANGENT", 4, vertices, func(v *renderer.Vertex, c []float32) {
		v.Tangent = mgl32.Vec3{c[0], c[1], c[2]}
	})
	if err != nil {
		return nil, err
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = p.readIndices(*prim.Indices); err != nil {
			return nil, fmt.Errorf("indices: %w", err)
		}
		for _, idx := range indices {
			if int(idx) >= len(vertices) {
				return nil, fmt.Errorf("%w: index %d with %d vertices", ErrInvalidGLTF, idx, len(vertices))
			}
		}
	} else {
		indices = make([]uint32, len(vertices))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	indices = indices[:len(indices)/3*3]

	if !hasNormals {
		generateNormals(vertices, indices)
	}
	if !hasTangents {
		generateTangents(vertices, indices)
	}
	transformVertices(vertices, indices, world)
	return renderer.NewMesh(label, vertices, indices), nil
}

// readVertexAttribute copies an optional attribute into the vertices.
//
// Returns:
//   - bool: whether the attribute was present
//   - error: error if the accessor cannot be read
func (p *gltfParser) readVertexAttribute(prim *gltfPrimitive, attr string, components int, vertices []renderer.Vertex, set func(*renderer.Vertex, []float32)) (bool, error) {
	index, ok := prim.Attributes[attr]
	if !ok {
		return false, nil
	}
	values, err := p.readFloats(index, components)
	if err != nil {
		return false, fmt.Errorf("%s: %w", attr, err)
	}
	for i := range vertices {
		if (i+1)*components > len(values) {
			break
		}
		set(&vertices[i], values[i*components:(i+1)*components])
	}
	return true, nil
}

// transformVertices bakes a node transform into positions, normals and
// tangents. A mirroring transform reverses the triangle winding so front
// faces stay front facing.
func transformVertices(vertices []renderer.Vertex, indices []uint32, world mgl32.Mat4) {
	if world == mgl32.Ident4() {
		return
	}
	linear := world.Mat3()
	normalMatrix := linear.Inv().Transpose()
	for i := range vertices {
		v := &vertices[i]
		v.Position = world.Mul4x1(v.Position.Vec4(1)).Vec3()
		v.Normal = safeNormalize(normalMatrix.Mul3x1(v.Normal), mgl32.Vec3{0, 1, 0})
		v.Tangent = safeNormalize(linear.Mul3x1(v.Tangent), mgl32.Vec3{1, 0, 0})
	}
	if linear.Det() < 0 {
		for i := 0; i+2 < len(indices); i += 3 {
			indices[i+1], indices[i+2] = indices[i+2], indices[i+1]
		}
	}
}

func safeNormalize(v, fallback mgl32.Vec3) mgl32.Vec3 {
	if l := v.Len(); l > 1e-6 {
		return v.Mul(1 / l)
	}
	return fallback
}

// generateNormals computes smooth vertex normals by accumulating the
// area-weighted face normal of every triangle onto its vertices.
//
// Parameters:
//   - vertices: the vertex slice to write normal data into
//   - indices: the triangle index buffer
func generateNormals(vertices []renderer.Vertex, indices []uint32) {
	accum := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := vertices[i0].Position
		face := vertices[i1].Position.Sub(p0).Cross(vertices[i2].Position.Sub(p0))
		accum[i0] = accum[i0].Add(face)
		accum[i1] = accum[i1].Add(face)
		accum[i2] = accum[i2].Add(face)
	}
	for i := range vertices {
		vertices[i].Normal = safeNormalize(accum[i], mgl32.Vec3{0, 1, 0})
	}
}

// generateTangents derives per-vertex tangents from the UV gradients of each
// triangle, then Gram-Schmidt orthonormalizes them against the vertex normal.
// Normals must be present first.
//
// Parameters:
//   - vertices: the vertex slice to write tangent data into
//   - indices: the triangle index buffer
func generateTangents(vertices []renderer.Vertex, indices []uint32) {
	accum := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		v0, v1, v2 := vertices[i0], vertices[i1], vertices[i2]

		edge1, edge2 := v1.Position.Sub(v0.Position), v2.Position.Sub(v0.Position)
		duv1, duv2 := v1.TexCoord.Sub(v0.TexCoord), v2.TexCoord.Sub(v0.TexCoord)
		det := duv1[0]*duv2[1] - duv1[1]*duv2[0]
		if det == 0 {
			continue
		}
		t := edge1.Mul(duv2[1]).Sub(edge2.Mul(duv1[1])).Mul(1 / det)
		accum[i0] = accum[i0].Add(t)
		accum[i1] = accum[i1].Add(t)
		accum[i2] = accum[i2].Add(t)
	}
	for i := range vertices {
		n := vertices[i].Normal
		t := accum[i].Sub(n.Mul(n.Dot(accum[i])))
		fallback := mgl32.Vec3{1, 0, 0}
		if abs(n.Dot(fallback)) > 0.9 {
			fallback = mgl32.Vec3{0, 0, 1}
		}
		fallback = fallback.Sub(n.Mul(n.Dot(fallback))).Normalize()
		vertices[i].Tangent = safeNormalize(t, fallback)
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
