// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"sort"

	"github.com/gogpu/gputypes"
)

// SampleKind classifies the values a format produces when
// sampled.
type SampleKind int

// Sample kinds.
const (
	SampleFloat SampleKind = iota
	SampleUnfilterable
	SampleSint
	SampleUint
	SampleDepth
)

// FormatCaps describes the capabilities of a TextureFormat.
type FormatCaps struct {
	Name string
	// Size of a texel in bytes.
	// Zero indicates that the format cannot be copied
	// to or from buffers.
	TexelSize   uint32
	Kind        SampleKind
	Depth       bool
	Stencil     bool
	Renderable  bool
	Blendable   bool
	Storage     bool
	Multisample bool
	// Format that differs only in sRGB encoding,
	// or TextureFormatUndefined.
	SRGBPair TextureFormat
}

var formats = map[TextureFormat]FormatCaps{
	gputypes.TextureFormatR8Unorm:             {"r8unorm", 1, SampleFloat, false, false, true, true, false, true, 0},
	gputypes.TextureFormatRG8Unorm:            {"rg8unorm", 2, SampleFloat, false, false, true, true, false, true, 0},
	gputypes.TextureFormatRGBA8Unorm:          {"rgba8unorm", 4, SampleFloat, false, false, true, true, true, true, gputypes.TextureFormatRGBA8UnormSrgb},
	gputypes.TextureFormatRGBA8UnormSrgb:      {"rgba8unorm-srgb", 4, SampleFloat, false, false, true, true, false, true, gputypes.TextureFormatRGBA8Unorm},
	gputypes.TextureFormatRGBA8Snorm:          {"rgba8snorm", 4, SampleFloat, false, false, false, false, true, false, 0},
	gputypes.TextureFormatRGBA8Uint:           {"rgba8uint", 4, SampleUint, false, false, true, false, true, true, 0},
	gputypes.TextureFormatRGBA8Sint:           {"rgba8sint", 4, SampleSint, false, false, true, false, true, true, 0},
	gputypes.TextureFormatBGRA8Unorm:          {"bgra8unorm", 4, SampleFloat, false, false, true, true, false, true, gputypes.TextureFormatBGRA8UnormSrgb},
	gputypes.TextureFormatBGRA8UnormSrgb:      {"bgra8unorm-srgb", 4, SampleFloat, false, false, true, true, false, true, gputypes.TextureFormatBGRA8Unorm},
	gputypes.TextureFormatR16Uint:             {"r16uint", 2, SampleUint, false, false, true, false, false, true, 0},
	gputypes.TextureFormatR16Sint:             {"r16sint", 2, SampleSint, false, false, true, false, false, true, 0},
	gputypes.TextureFormatRGBA16Uint:          {"rgba16uint", 8, SampleUint, false, false, true, false, true, true, 0},
	gputypes.TextureFormatRGBA16Sint:          {"rgba16sint", 8, SampleSint, false, false, true, false, true, true, 0},
	gputypes.TextureFormatRGBA16Float:         {"rgba16float", 8, SampleFloat, false, false, true, true, true, true, 0},
	gputypes.TextureFormatR32Float:            {"r32float", 4, SampleUnfilterable, false, false, true, false, true, false, 0},
	gputypes.TextureFormatR32Uint:             {"r32uint", 4, SampleUint, false, false, true, false, true, false, 0},
	gputypes.TextureFormatR32Sint:             {"r32sint", 4, SampleSint, false, false, true, false, true, false, 0},
	gputypes.TextureFormatRG32Float:           {"rg32float", 8, SampleUnfilterable, false, false, true, false, true, false, 0},
	gputypes.TextureFormatRG32Uint:            {"rg32uint", 8, SampleUint, false, false, true, false, true, false, 0},
	gputypes.TextureFormatRG32Sint:            {"rg32sint", 8, SampleSint, false, false, true, false, true, false, 0},
	gputypes.TextureFormatRGBA32Float:         {"rgba32float", 16, SampleUnfilterable, false, false, true, false, true, false, 0},
	gputypes.TextureFormatRGBA32Uint:          {"rgba32uint", 16, SampleUint, false, false, true, false, true, false, 0},
	gputypes.TextureFormatRGBA32Sint:          {"rgba32sint", 16, SampleSint, false, false, true, false, true, false, 0},
	gputypes.TextureFormatDepth16Unorm:        {"depth16unorm", 2, SampleDepth, true, false, true, false, false, true, 0},
	gputypes.TextureFormatDepth24Plus:         {"depth24plus", 0, SampleDepth, true, false, true, false, false, true, 0},
	gputypes.TextureFormatDepth24PlusStencil8: {"depth24plus-stencil8", 0, SampleDepth, true, true, true, false, false, true, 0},
	gputypes.TextureFormatDepth32Float:        {"depth32float", 4, SampleDepth, true, false, true, false, false, true, 0},
}

// Caps returns the capabilities of f.
// It returns false if f is not a known format.
func Caps(f TextureFormat) (FormatCaps, bool) {
	c, ok := formats[f]
	return c, ok
}

// Formats returns every known format, sorted by name.
func Formats() []TextureFormat {
	fs := make([]TextureFormat, 0, len(formats))
	for f := range formats {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return formats[fs[i]].Name < formats[fs[j]].Name })
	return fs
}

// FormatName returns the canonical name of f.
func FormatName(f TextureFormat) string {
	if c, ok := formats[f]; ok {
		return c.Name
	}
	return "undefined"
}

// IsDepthStencil reports whether f has a depth or a
// stencil aspect.
func IsDepthStencil(f TextureFormat) bool {
	c := formats[f]
	return c.Depth || c.Stencil
}

// viewCompatible reports whether a view of format v can be
// created from a texture of format t.
func viewCompatible(t, v TextureFormat) bool {
	return t == v || formats[t].SRGBPair == v && v != 0
}

// VertexFormatInfo describes a VertexFormat.
type VertexFormatInfo struct {
	Name       string
	Size       uint64
	Components int
	Kind       SampleKind
	// Whether components are normalized integers.
	Normalized bool
	// Size of a single component in bytes.
	ComponentSize int
}

var vertexFormats = map[VertexFormat]VertexFormatInfo{
	gputypes.VertexFormatUnorm8x4:  {"unorm8x4", 4, 4, SampleFloat, true, 1},
	gputypes.VertexFormatFloat16x2: {"float16x2", 4, 2, SampleFloat, false, 2},
	gputypes.VertexFormatFloat16x4: {"float16x4", 8, 4, SampleFloat, false, 2},
	gputypes.VertexFormatFloat32:   {"float32", 4, 1, SampleFloat, false, 4},
	gputypes.VertexFormatFloat32x2: {"float32x2", 8, 2, SampleFloat, false, 4},
	gputypes.VertexFormatFloat32x3: {"float32x3", 12, 3, SampleFloat, false, 4},
	gputypes.VertexFormatFloat32x4: {"float32x4", 16, 4, SampleFloat, false, 4},
	gputypes.VertexFormatUint32:    {"uint32", 4, 1, SampleUint, false, 4},
	gputypes.VertexFormatUint32x2:  {"uint32x2", 8, 2, SampleUint, false, 4},
	gputypes.VertexFormatUint32x3:  {"uint32x3", 12, 3, SampleUint, false, 4},
	gputypes.VertexFormatUint32x4:  {"uint32x4", 16, 4, SampleUint, false, 4},
	gputypes.VertexFormatSint32:    {"sint32", 4, 1, SampleSint, false, 4},
	gputypes.VertexFormatSint32x2:  {"sint32x2", 8, 2, SampleSint, false, 4},
	gputypes.VertexFormatSint32x3:  {"sint32x3", 12, 3, SampleSint, false, 4},
	gputypes.VertexFormatSint32x4:  {"sint32x4", 16, 4, SampleSint, false, 4},
}

// VertexFormatOf returns information about f.
// It returns false if f is not a known format.
func VertexFormatOf(f VertexFormat) (VertexFormatInfo, bool) {
	v, ok := vertexFormats[f]
	return v, ok
}

// indexSize returns the size in bytes of an index of format
// f, or 0 if f is not valid.
func indexSize(f IndexFormat) uint64 {
	switch f {
	case gputypes.IndexFormatUint16:
		return 2
	case gputypes.IndexFormatUint32:
		return 4
	}
	return 0
}

// IndexSize returns the size in bytes of an index of
// format f, or 0 if f is not valid.
func IndexSize(f IndexFormat) uint64 { return indexSize(f) }

// mipExtent returns the extent of mip level lvl.
func mipExtent(dim TextureDimension, size Extent3D, lvl uint32) Extent3D {
	e := Extent3D{
		Width:              max(size.Width>>lvl, 1),
		Height:             max(size.Height>>lvl, 1),
		DepthOrArrayLayers: size.DepthOrArrayLayers,
	}
	switch dim {
	case gputypes.TextureDimension1D:
		e.Height = 1
	case gputypes.TextureDimension3D:
		e.DepthOrArrayLayers = max(size.DepthOrArrayLayers>>lvl, 1)
	}
	return e
}

// MipExtent returns the extent of mip level lvl of a
// texture with dimension dim and base size size.
func MipExtent(dim TextureDimension, size Extent3D, lvl uint32) Extent3D {
	return mipExtent(dim, size, lvl)
}

// maxMipLevels returns the number of levels in a complete
// mip chain.
func maxMipLevels(dim TextureDimension, size Extent3D) uint32 {
	m := size.Width
	if dim != gputypes.TextureDimension1D {
		m = max(m, size.Height)
	}
	if dim == gputypes.TextureDimension3D {
		m = max(m, size.DepthOrArrayLayers)
	}
	var n uint32
	for ; m > 0; m >>= 1 {
		n++
	}
	return n
}
