package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidGLTF is returned for documents that are not glTF 2.0 or GLB 2.
	ErrInvalidGLTF = errors.New("invalid glTF document")
	// ErrUnsupportedAccessor is returned for sparse accessors and component
	// layouts the loader does not read.
	ErrUnsupportedAccessor = errors.New("unsupported glTF accessor")
)

// gltfParser holds a decoded document and its loaded buffers.
type gltfParser struct {
	baseDir  string
	doc      *gltfDocument
	glbChunk []byte
}

// parseFile reads a .gltf or .glb file. GLB is detected by extension or magic.
func (p *gltfParser) parseFile(path string) error {
	p.baseDir = filepath.Dir(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	isGLB := strings.EqualFold(filepath.Ext(path), ".glb") ||
		(len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic)
	return p.parse(data, isGLB)
}

// parse decodes glTF JSON or a GLB container. External buffer URIs are
// resolved against baseDir.
func (p *gltfParser) parse(data []byte, isGLB bool) error {
	jsonData := data
	if isGLB {
		var err error
		if jsonData, p.glbChunk, err = splitGLB(data); err != nil {
			return err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return fmt.Errorf("%w: asset version %q", ErrInvalidGLTF, doc.Asset.Version)
	}
	for i := range doc.Buffers {
		if err := p.loadBuffer(i, &doc.Buffers[i]); err != nil {
			return fmt.Errorf("buffer %d: %w", i, err)
		}
	}
	p.doc = &doc
	return nil
}

// splitGLB returns the JSON and BIN chunks of a GLB container.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
func splitGLB(data []byte) (jsonChunk, binChunk []byte, err error) {
	r := bytes.NewReader(data)
	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: GLB header: %v", ErrInvalidGLTF, err)
	}
	if header.Magic != gltfGLBMagic || header.Version != gltfGLBVersion {
		return nil, nil, fmt.Errorf("%w: GLB magic %#x version %d", ErrInvalidGLTF, header.Magic, header.Version)
	}

	for {
		var chunk gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("failed to read chunk header: %w", err)
		}
		payload := make([]byte, chunk.ChunkLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("failed to read chunk data: %w", err)
		}
		switch chunk.ChunkType {
		case gltfGLBChunkJSON:
			jsonChunk = payload
		case gltfGLBChunkBIN:
			binChunk = payload
		}
	}
	if jsonChunk == nil {
		return nil, nil, fmt.Errorf("%w: GLB has no JSON chunk", ErrInvalidGLTF)
	}
	return jsonChunk, binChunk, nil
}

func (p *gltfParser) loadBuffer(i int, buf *gltfBuffer) error {
	switch {
	case buf.URI == "" && i == 0 && p.glbChunk != nil:
		buf.Data = p.glbChunk
	case buf.URI == "":
		return errors.New("no URI and no GLB binary chunk")
	default:
		data, _, err := p.readURI(buf.URI)
		if err != nil {
			return err
		}
		buf.Data = data
	}
	if len(buf.Data) < buf.ByteLength {
		return fmt.Errorf("%w: buffer holds %d bytes, declares %d", ErrInvalidGLTF, len(buf.Data), buf.ByteLength)
	}
	return nil
}

// readURI loads a base64 data URI or a file relative to the document.
//
// Returns:
//   - []byte: the contents
//   - string: the data URI media type, empty for files
//   - error: error if decoding or reading fails
func (p *gltfParser) readURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		data, err := os.ReadFile(filepath.Join(p.baseDir, uri))
		if err != nil {
			return nil, "", fmt.Errorf("failed to load %q: %w", uri, err)
		}
		return data, "", nil
	}

	// data:[<mediatype>][;base64],<data>
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data URI", ErrInvalidGLTF)
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("unsupported data URI encoding: %s", header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, mediaType, nil
}

// bufferView returns the bytes of a buffer view.
func (p *gltfParser) bufferView(index int) ([]byte, error) {
	if index < 0 || index >= len(p.doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", index)
	}
	bv := &p.doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(p.doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}
	data := p.doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("%w: bufferView %d exceeds its buffer", ErrInvalidGLTF, index)
	}
	return data[bv.ByteOffset:end], nil
}

// accessorElements calls fn with the bytes of every element of an accessor,
// honoring the buffer view stride.
func (p *gltfParser) accessorElements(index int, fn func(i int, elem []byte)) (*gltfAccessor, error) {
	if index < 0 || index >= len(p.doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", index)
	}
	acc := &p.doc.Accessors[index]
	if acc.Sparse != nil {
		return nil, fmt.Errorf("%w: sparse accessor %d", ErrUnsupportedAccessor, index)
	}
	if acc.BufferView == nil {
		return nil, fmt.Errorf("%w: accessor %d has no bufferView", ErrUnsupportedAccessor, index)
	}
	view, err := p.bufferView(*acc.BufferView)
	if err != nil {
		return nil, err
	}

	elemSize := gltfComponentSize(acc.ComponentType) * gltfComponentCount(acc.Type)
	if elemSize == 0 {
		return nil, fmt.Errorf("%w: component type %d type %q", ErrUnsupportedAccessor, acc.ComponentType, acc.Type)
	}
	stride := elemSize
	if bv := p.doc.BufferViews[*acc.BufferView]; bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}
	if acc.Count > 0 && acc.ByteOffset+(acc.Count-1)*stride+elemSize > len(view) {
		return nil, fmt.Errorf("%w: accessor %d exceeds its bufferView", ErrInvalidGLTF, index)
	}
	for i := range acc.Count {
		o := acc.ByteOffset + i*stride
		fn(i, view[o:o+elemSize])
	}
	return acc, nil
}

// readFloats reads an accessor with the given component count as floats.
// Normalized integer components are mapped to [0,1] or [-1,1].
func (p *gltfParser) readFloats(index, components int) ([]float32, error) {
	if index >= 0 && index < len(p.doc.Accessors) {
		if n := gltfComponentCount(p.doc.Accessors[index].Type); n != components {
			return nil, fmt.Errorf("%w: accessor %d has %d components, want %d", ErrUnsupportedAccessor, index, n, components)
		}
	}
	var out []float32
	acc, err := p.accessorElements(index, func(i int, elem []byte) {
		if out == nil {
			out = make([]float32, 0, p.doc.Accessors[index].Count*components)
		}
		out = appendComponents(out, p.doc.Accessors[index].ComponentType, elem)
	})
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != gltfComponentTypeFloat && !acc.Normalized {
		return nil, fmt.Errorf("%w: accessor %d is not float or normalized", ErrUnsupportedAccessor, index)
	}
	return out, nil
}

func appendComponents(out []float32, componentType int, elem []byte) []float32 {
	switch componentType {
	case gltfComponentTypeFloat:
		for o := 0; o+4 <= len(elem); o += 4 {
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(elem[o:])))
		}
	case gltfComponentTypeUnsignedByte:
		for _, b := range elem {
			out = append(out, float32(b)/255)
		}
	case gltfComponentTypeByte:
		for _, b := range elem {
			out = append(out, max(float32(int8(b))/127, -1))
		}
	case gltfComponentTypeUnsignedShort:
		for o := 0; o+2 <= len(elem); o += 2 {
			out = append(out, float32(binary.LittleEndian.Uint16(elem[o:]))/65535)
		}
	case gltfComponentTypeShort:
		for o := 0; o+2 <= len(elem); o += 2 {
			out = append(out, max(float32(int16(binary.LittleEndian.Uint16(elem[o:])))/32767, -1))
		}
	}
	return out
}

// readIndices reads an unsigned scalar accessor as uint32 indices.
func (p *gltfParser) readIndices(index int) ([]uint32, error) {
	if index < 0 || index >= len(p.doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", index)
	}
	acc := p.doc.Accessors[index]
	if acc.Type != "SCALAR" {
		return nil, fmt.Errorf("%w: index accessor type %q", ErrUnsupportedAccessor, acc.Type)
	}
	out := make([]uint32, acc.Count)
	var read func([]byte) uint32
	switch acc.ComponentType {
	case gltfComponentTypeUnsignedByte:
		read = func(b []byte) uint32 { return uint32(b[0]) }
	case gltfComponentTypeUnsignedShort:
		read = func(b []byte) uint32 { return uint32(binary.LittleEndian.Uint16(b)) }
	case gltfComponentTypeUnsignedInt:
		read = binary.LittleEndian.Uint32
	default:
		return nil, fmt.Errorf("%w: index component type %d", ErrUnsupportedAccessor, acc.ComponentType)
	}
	if _, err := p.accessorElements(index, func(i int, elem []byte) { out[i] = read(elem) }); err != nil {
		return nil, err
	}
	return out, nil
}
