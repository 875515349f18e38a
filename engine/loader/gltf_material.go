package loader

import (
	"bytes"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
)

// MaterialSource holds the decoded surface maps of a glTF material, already
// converted to the channels the G-Buffer shader samples. Nil maps are absent
// and replaced by neutral 1x1 textures when the material is uploaded.
type MaterialSource struct {
	Name string
	// Diffuse is the base color texture tinted by the base color factor.
	Diffuse *common.TextureStagingData
	// Specular carries 1 - roughness in every channel.
	Specular *common.TextureStagingData
	Normal   *common.TextureStagingData
	// LightMap is the emissive texture scaled by the emissive factor.
	LightMap *common.TextureStagingData
}

// extractMaterials decodes every material of the document. Images shared by
// several textures are decoded once.
func (p *gltfParser) extractMaterials(powerOfTwo bool) ([]*MaterialSource, error) {
	images := make(map[int]common.TextureStagingData)
	load := func(info *gltfTextureInfo) (*common.TextureStagingData, error) {
		if info == nil {
			return nil, nil
		}
		img, err := p.loadTexture(info.Index, images)
		if err != nil || img == nil {
			return nil, err
		}
		if powerOfTwo {
			resized := renderer.ResizeToPowerOfTwo(*img)
			img = &resized
		}
		return img, nil
	}

	out := make([]*MaterialSource, len(p.doc.Materials))
	for i := range p.doc.Materials {
		mat := &p.doc.Materials[i]
		src := &MaterialSource{Name: mat.Name}
		if src.Name == "" {
			src.Name = fmt.Sprintf("material_%d", i)
		}

		baseColor := [4]float32{1, 1, 1, 1}
		roughness := float32(1)
		var baseTex, mrTex *gltfTextureInfo
		if pbr := mat.PbrMetallicRoughness; pbr != nil {
			if pbr.BaseColorFactor != nil {
				baseColor = *pbr.BaseColorFactor
			}
			if pbr.RoughnessFactor != nil {
				roughness = *pbr.RoughnessFactor
			}
			baseTex, mrTex = pbr.BaseColorTexture, pbr.MetallicRoughnessTexture
		}

		diffuse, err := load(baseTex)
		if err != nil {
			return nil, fmt.Errorf("material %q: base color texture: %w", src.Name, err)
		}
		src.Diffuse = tinted(diffuse, baseColor)

		mr, err := load(mrTex)
		if err != nil {
			return nil, fmt.Errorf("material %q: metallic-roughness texture: %w", src.Name, err)
		}
		src.Specular = specularFromRoughness(mr, roughness)

		if src.Normal, err = load(mat.NormalTexture); err != nil {
			return nil, fmt.Errorf("material %q: normal texture: %w", src.Name, err)
		}

		emissive, err := load(mat.EmissiveTexture)
		if err != nil {
			return nil, fmt.Errorf("material %q: emissive texture: %w", src.Name, err)
		}
		factor := [3]float32{0, 0, 0}
		if mat.EmissiveFactor != nil {
			factor = *mat.EmissiveFactor
		} else if emissive != nil {
			factor = [3]float32{1, 1, 1}
		}
		if factor != [3]float32{} {
			src.LightMap = tinted(emissive, [4]float32{factor[0], factor[1], factor[2], 1})
		}
		out[i] = src
	}
	return out, nil
}

// loadTexture decodes the image behind a glTF texture from a buffer view, a
// data URI or a file next to the document.
func (p *gltfParser) loadTexture(index int, cache map[int]common.TextureStagingData) (*common.TextureStagingData, error) {
	if index < 0 || index >= len(p.doc.Textures) {
		return nil, fmt.Errorf("texture index %d out of range", index)
	}
	source := p.doc.Textures[index].Source
	if source == nil {
		return nil, nil
	}
	if img, ok := cache[*source]; ok {
		return &img, nil
	}
	if *source < 0 || *source >= len(p.doc.Images) {
		return nil, fmt.Errorf("image index %d out of range", *source)
	}

	image := &p.doc.Images[*source]
	var data []byte
	var err error
	switch {
	case image.BufferView != nil:
		data, err = p.bufferView(*image.BufferView)
	case image.URI != "":
		data, _, err = p.readURI(image.URI)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", *source, err)
	}
	img, err := renderer.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", *source, err)
	}
	cache[*source] = img
	return &img, nil
}

// tinted multiplies every pixel by factor, or returns a 1x1 texture of factor
// when img is nil. The source pixels are not modified.
func tinted(img *common.TextureStagingData, factor [4]float32) *common.TextureStagingData {
	if img == nil {
		return solid(toByte(factor[0]), toByte(factor[1]), toByte(factor[2]), toByte(factor[3]))
	}
	if factor == [4]float32{1, 1, 1, 1} {
		return img
	}
	out := &common.TextureStagingData{Pixels: make([]byte, len(img.Pixels)), Width: img.Width, Height: img.Height}
	for i, v := range img.Pixels {
		out.Pixels[i] = toByte(float32(v) / 255 * factor[i%4])
	}
	return out
}

// specularFromRoughness converts the green roughness channel of a
// metallic-roughness texture into a grey specular intensity.
func specularFromRoughness(img *common.TextureStagingData, factor float32) *common.TextureStagingData {
	if img == nil {
		s := toByte(1 - factor)
		return solid(s, s, s, 255)
	}
	out := &common.TextureStagingData{Pixels: make([]byte, len(img.Pixels)), Width: img.Width, Height: img.Height}
	for o := 0; o+3 < len(img.Pixels); o += 4 {
		s := toByte(1 - float32(img.Pixels[o+1])/255*factor)
		out.Pixels[o], out.Pixels[o+1], out.Pixels[o+2], out.Pixels[o+3] = s, s, s, 255
	}
	return out
}

func solid(r, g, b, a byte) *common.TextureStagingData {
	return &common.TextureStagingData{Pixels: []byte{r, g, b, a}, Width: 1, Height: 1}
}

func toByte(f float32) byte {
	return byte(min(max(f, 0), 1)*255 + 0.5)
}
