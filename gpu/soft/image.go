// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"encoding/binary"
	"math"
	"runtime"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"

	"github.com/gviegas/hal/gpu"
)

// texture implements gpu.TextureHandle.
// Each mip level stores its slices (array layers or depth)
// one after another, rows top to bottom and the samples of
// a texel contiguously.
type texture struct {
	desc   gpu.TextureDescriptor
	texel  int
	levels [][]byte
}

// texelSize returns the number of bytes that a texel of f
// (one sample) occupies in memory.
func texelSize(f gpu.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatDepth24Plus:
		return 4
	case gputypes.TextureFormatDepth24PlusStencil8:
		return 8
	}
	caps, _ := gpu.Caps(f)
	return int(caps.TexelSize)
}

// NewTexture implements gpu.Backend.
func (d *Driver) NewTexture(desc *gpu.TextureDescriptor) (gpu.TextureHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return newTexture(desc), nil
}

func newTexture(desc *gpu.TextureDescriptor) *texture {
	t := &texture{
		desc:   *desc,
		texel:  texelSize(desc.Format),
		levels: make([][]byte, desc.MipLevelCount),
	}
	for i := range t.levels {
		e := t.extent(i)
		n := int(e.Width) * int(e.Height) * int(e.DepthOrArrayLayers) * int(desc.SampleCount) * t.texel
		t.levels[i] = make([]byte, n)
	}
	return t
}

// Destroy implements gpu.Destroyer.
func (t *texture) Destroy() { t.levels = nil }

func (t *texture) extent(level int) gpu.Extent3D {
	return gpu.MipExtent(t.desc.Dimension, t.desc.Size, uint32(level))
}

// offset returns the position of texel (x, y, z) of level.
func (t *texture) offset(level int, x, y, z uint32) int {
	e := t.extent(level)
	i := (int(z)*int(e.Height)+int(y))*int(e.Width) + int(x)
	return i * int(t.desc.SampleCount) * t.texel
}

// slice returns the memory of slice z of level.
func (t *texture) slice(level int, z uint32) []byte {
	e := t.extent(level)
	n := int(e.Width) * int(e.Height) * int(t.desc.SampleCount) * t.texel
	off := int(z) * n
	return t.levels[level][off : off+n]
}

func textureOf(t *gpu.Texture) *texture { return t.Handle().(*texture) }

// textureView implements gpu.TextureViewHandle.
type textureView struct {
	tex  *texture
	desc gpu.TextureViewDescriptor
}

// NewTextureView implements gpu.Backend.
func (d *Driver) NewTextureView(tex gpu.TextureHandle, desc *gpu.TextureViewDescriptor) (gpu.TextureViewHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &textureView{tex: tex.(*texture), desc: *desc}, nil
}

// Destroy implements gpu.Destroyer.
func (v *textureView) Destroy() {}

func viewOf(v *gpu.TextureView) *textureView { return v.Handle().(*textureView) }

// target returns the memory that a view used as attachment
// renders to.
func (v *textureView) target() []byte {
	return v.tex.slice(int(v.desc.BaseMipLevel), v.desc.BaseArrayLayer)
}

type compKind int

const (
	compUnorm compKind = iota
	compSnorm
	compUint
	compSint
	compFloat
)

// codec describes the memory layout of a color format.
type codec struct {
	comps int
	size  int
	kind  compKind
	bgra  bool
	srgb  bool
}

var codecs = map[gpu.TextureFormat]codec{
	gputypes.TextureFormatR8Unorm:        {1, 1, compUnorm, false, false},
	gputypes.TextureFormatRG8Unorm:       {2, 1, compUnorm, false, false},
	gputypes.TextureFormatRGBA8Unorm:     {4, 1, compUnorm, false, false},
	gputypes.TextureFormatRGBA8UnormSrgb: {4, 1, compUnorm, false, true},
	gputypes.TextureFormatRGBA8Snorm:     {4, 1, compSnorm, false, false},
	gputypes.TextureFormatRGBA8Uint:      {4, 1, compUint, false, false},
	gputypes.TextureFormatRGBA8Sint:      {4, 1, compSint, false, false},
	gputypes.TextureFormatBGRA8Unorm:     {4, 1, compUnorm, true, false},
	gputypes.TextureFormatBGRA8UnormSrgb: {4, 1, compUnorm, true, true},
	gputypes.TextureFormatR16Uint:        {1, 2, compUint, false, false},
	gputypes.TextureFormatR16Sint:        {1, 2, compSint, false, false},
	gputypes.TextureFormatRGBA16Uint:     {4, 2, compUint, false, false},
	gputypes.TextureFormatRGBA16Sint:     {4, 2, compSint, false, false},
	gputypes.TextureFormatRGBA16Float:    {4, 2, compFloat, false, false},
	gputypes.TextureFormatR32Float:       {1, 4, compFloat, false, false},
	gputypes.TextureFormatR32Uint:        {1, 4, compUint, false, false},
	gputypes.TextureFormatR32Sint:        {1, 4, compSint, false, false},
	gputypes.TextureFormatRG32Float:      {2, 4, compFloat, false, false},
	gputypes.TextureFormatRG32Uint:       {2, 4, compUint, false, false},
	gputypes.TextureFormatRG32Sint:       {2, 4, compSint, false, false},
	gputypes.TextureFormatRGBA32Float:    {4, 4, compFloat, false, false},
	gputypes.TextureFormatRGBA32Uint:     {4, 4, compUint, false, false},
	gputypes.TextureFormatRGBA32Sint:     {4, 4, compSint, false, false},
}

// encodeColor returns the texel of format f that holds c.
func encodeColor(f gpu.TextureFormat, c gpu.Color) []byte {
	cd, ok := codecs[f]
	if !ok {
		return make([]byte, texelSize(f))
	}
	vals := [4]float64{c.R, c.G, c.B, c.A}
	if cd.bgra {
		vals[0], vals[2] = vals[2], vals[0]
	}
	out := make([]byte, cd.comps*cd.size)
	bits := uint(cd.size * 8)
	for i := range cd.comps {
		v := float32(vals[i])
		var u uint64
		switch cd.kind {
		case compUnorm:
			if cd.srgb && i < 3 {
				v = linearToSRGB(v)
			}
			u = uint64(math32.Round(clamp(v, 0, 1) * float32(uint64(1)<<bits-1)))
		case compSnorm:
			m := float32(uint64(1)<<(bits-1) - 1)
			u = uint64(int64(math32.Round(clamp(v, -1, 1) * m)))
		case compUint:
			u = uint64(math.Min(math.Max(math.Round(vals[i]), 0), float64(uint64(1)<<bits-1)))
		case compSint:
			m := float64(uint64(1)<<(bits-1) - 1)
			u = uint64(int64(math.Min(math.Max(math.Round(vals[i]), -m-1), m)))
		case compFloat:
			if cd.size == 2 {
				u = uint64(float16(v))
			} else {
				u = uint64(math.Float32bits(v))
			}
		}
		putComp(out[i*cd.size:], cd.size, u)
	}
	return out
}

func putComp(b []byte, size int, u uint64) {
	switch size {
	case 1:
		b[0] = byte(u)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(u))
	default:
		binary.LittleEndian.PutUint32(b, uint32(u))
	}
}

func clamp(v, lo, hi float32) float32 { return math32.Max(lo, math32.Min(v, hi)) }

func linearToSRGB(v float32) float32 {
	v = clamp(v, 0, 1)
	if v <= 0.0031308 {
		return v * 12.92
	}
	return 1.055*math32.Pow(v, 1/2.4) - 0.055
}

// float16 converts f to IEEE 754 binary16, truncating the
// mantissa.
func float16(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xff) - 127 + 15
	mant := b & 0x7fffff
	switch {
	case b&0x7fffffff == 0:
		return sign
	case b&0x7f800000 == 0x7f800000:
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		return sign | uint16(mant>>uint32(14-exp))
	}
	return sign | uint16(exp)<<10 | uint16(mant>>13)
}

// depthTexel returns the texel of format f that holds the
// given depth and stencil values.
func depthTexel(f gpu.TextureFormat, depth float32, stencil uint32) []byte {
	out := make([]byte, texelSize(f))
	switch f {
	case gputypes.TextureFormatDepth16Unorm:
		binary.LittleEndian.PutUint16(out, uint16(math32.Round(clamp(depth, 0, 1)*0xffff)))
	case gputypes.TextureFormatDepth24PlusStencil8:
		binary.LittleEndian.PutUint32(out, math.Float32bits(depth))
		out[4] = byte(stencil)
	default:
		binary.LittleEndian.PutUint32(out, math.Float32bits(depth))
	}
	return out
}

// fillTexels writes pattern into every texel of dst.
// Large fills are split across goroutines.
func fillTexels(dst, pattern []byte) error {
	n := len(pattern)
	if n == 0 {
		return nil
	}
	const chunk = 1 << 14
	count := len(dst) / n
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < count; lo += chunk {
		hi := min(lo+chunk, count)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				copy(dst[i*n:], pattern)
			}
			return nil
		})
	}
	return g.Wait()
}

// fillAspect writes the bytes [off, off+len(pattern)) of
// every texel of dst from pattern, leaving the other
// bytes of the texel unchanged.
func fillAspect(dst, pattern []byte, texel, off int) {
	for i := 0; i+texel <= len(dst); i += texel {
		copy(dst[i+off:], pattern)
	}
}

// resolve averages the samples of src into dst.
// Formats that do not hold 8-bit normalized components
// resolve to the first sample.
func resolve(dst, src *textureView) error {
	f := src.tex.desc.Format
	samples := int(src.tex.desc.SampleCount)
	texel := src.tex.texel
	in, out := src.target(), dst.target()
	cd := codecs[f]
	average := cd.kind == compUnorm && cd.size == 1
	count := len(out) / texel
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	const chunk = 1 << 12
	for lo := 0; lo < count; lo += chunk {
		hi := min(lo+chunk, count)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				s := in[i*samples*texel:]
				d := out[i*texel : (i+1)*texel]
				if !average {
					copy(d, s[:texel])
					continue
				}
				for b := range d {
					sum := 0
					for k := range samples {
						sum += int(s[k*texel+b])
					}
					d[b] = byte((sum + samples/2) / samples)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) copyBufferToTexture(c *gpu.CopyBufferToTextureCmd) {
	t := textureOf(c.Dst.Texture)
	mem := bufferOf(c.Src.Buffer)
	d.eachRow(&c.Src, &c.Dst, c.Size, func(buf, img []byte) { copy(img, buf) }, mem, t)
}

func (d *Driver) copyTextureToBuffer(c *gpu.CopyTextureToBufferCmd) {
	t := textureOf(c.Src.Texture)
	mem := bufferOf(c.Dst.Buffer)
	d.eachRow(&c.Dst, &c.Src, c.Size, func(buf, img []byte) { copy(buf, img) }, mem, t)
}

// eachRow calls fn with every pair of buffer and texture
// rows that a buffer/texture copy touches.
func (d *Driver) eachRow(ib *gpu.ImageCopyBuffer, it *gpu.ImageCopyTexture, size gpu.Extent3D, fn func(buf, img []byte), mem []byte, t *texture) {
	lvl := int(it.MipLevel)
	row := int(size.Width) * t.texel
	for z := range size.DepthOrArrayLayers {
		for y := range size.Height {
			boff := int(ib.Offset) + int(z)*int(ib.BytesPerRow)*int(ib.RowsPerImage) + int(y)*int(ib.BytesPerRow)
			toff := t.offset(lvl, it.Origin.X, it.Origin.Y+y, it.Origin.Z+z)
			fn(mem[boff:boff+row], t.levels[lvl][toff:toff+row])
		}
	}
}

func (d *Driver) copyTextureToTexture(c *gpu.CopyTextureToTextureCmd) {
	src, dst := textureOf(c.Src.Texture), textureOf(c.Dst.Texture)
	sl, dl := int(c.Src.MipLevel), int(c.Dst.MipLevel)
	row := int(c.Size.Width) * int(src.desc.SampleCount) * src.texel
	for z := range c.Size.DepthOrArrayLayers {
		for y := range c.Size.Height {
			so := src.offset(sl, c.Src.Origin.X, c.Src.Origin.Y+y, c.Src.Origin.Z+z)
			do := dst.offset(dl, c.Dst.Origin.X, c.Dst.Origin.Y+y, c.Dst.Origin.Z+z)
			copy(dst.levels[dl][do:do+row], src.levels[sl][so:so+row])
		}
	}
}
