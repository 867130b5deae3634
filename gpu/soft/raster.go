// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"

	"github.com/gviegas/hal/gpu"
)

// The rasterizer computes coverage only. It reads clip-space
// positions from the attribute at shader location 0 and
// counts the samples of pixel centers that primitives
// cover within the viewport and scissor rectangles, after
// face culling. Depth and stencil tests are not performed.

type vec4 struct{ x, y, z, w float32 }

type vertexBinding struct {
	buf *gpu.Buffer
	off uint64
}

type indexBinding struct {
	buf    *gpu.Buffer
	format gpu.IndexFormat
	off    uint64
}

// raster is the draw state of a render pass.
type raster struct {
	pipeline *gpu.RenderPipeline
	vertex   map[uint32]vertexBinding
	index    indexBinding
	viewport gpu.Viewport
	scissor  gpu.Scissor
	width    uint32
	height   uint32
	samples  uint32
}

func newRaster(width, height, samples uint32) *raster {
	return &raster{
		vertex:   make(map[uint32]vertexBinding),
		viewport: gpu.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1},
		scissor:  gpu.Scissor{Width: width, Height: height},
		width:    width,
		height:   height,
		samples:  max(samples, 1),
	}
}

// position describes where positions are fetched from.
type position struct {
	buf      []byte
	off      uint64
	stride   uint64
	instance bool
	info     gpu.VertexFormatInfo
}

func (r *raster) position() (position, bool) {
	desc := r.pipeline.Descriptor()
	vs := &desc.Vertex
	for slot, vbl := range vs.Buffers {
		for _, a := range vbl.Attributes {
			if a.ShaderLocation != 0 {
				continue
			}
			vb, ok := r.vertex[uint32(slot)]
			if !ok {
				return position{}, false
			}
			info, ok := gpu.VertexFormatOf(a.Format)
			if !ok {
				return position{}, false
			}
			return position{
				buf:      bufferOf(vb.buf),
				off:      vb.off + a.Offset,
				stride:   vbl.ArrayStride,
				instance: vbl.StepMode != 0 && vbl.StepMode != gputypes.VertexStepModeVertex,
				info:     info,
			}, true
		}
	}
	return position{}, false
}

// fetch returns the position of element i.
func (p *position) fetch(i int64) (vec4, bool) {
	if i < 0 {
		return vec4{}, false
	}
	off := p.off + uint64(i)*p.stride
	if off+p.info.Size > uint64(len(p.buf)) {
		return vec4{}, false
	}
	v := [4]float32{0, 0, 0, 1}
	cs := p.info.ComponentSize
	for c := range p.info.Components {
		b := p.buf[off+uint64(c*cs):]
		switch {
		case p.info.Kind == gpu.SampleFloat && cs == 4:
			v[c] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case p.info.Kind == gpu.SampleFloat && cs == 2:
			v[c] = float32from16(binary.LittleEndian.Uint16(b))
		case p.info.Normalized:
			v[c] = float32(b[0]) / 255
		case p.info.Kind == gpu.SampleSint:
			v[c] = float32(int32(binary.LittleEndian.Uint32(b)))
		default:
			v[c] = float32(binary.LittleEndian.Uint32(b))
		}
	}
	return vec4{v[0], v[1], v[2], v[3]}, true
}

func float32from16(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)
	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		f := float32(mant) / (1 << 24)
		if sign != 0 {
			f = -f
		}
		return f
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}

// point is a vertex in framebuffer coordinates.
type point struct {
	x, y float32
	ndcX float32
	ndcY float32
}

func (r *raster) project(v vec4) (point, bool) {
	if v.w <= 0 || math32.IsNaN(v.w) {
		return point{}, false
	}
	nx, ny := v.x/v.w, v.y/v.w
	vp := &r.viewport
	return point{
		x:    vp.X + (nx+1)/2*vp.Width,
		y:    vp.Y + (1-ny)/2*vp.Height,
		ndcX: nx,
		ndcY: ny,
	}, true
}

// bounds returns the pixel rectangle that coverage is
// limited to.
func (r *raster) bounds() (x0, y0, x1, y1 int) {
	vp, sc := &r.viewport, &r.scissor
	x0 = max(int(math32.Floor(vp.X)), int(sc.X), 0)
	y0 = max(int(math32.Floor(vp.Y)), int(sc.Y), 0)
	x1 = min(int(math32.Ceil(vp.X+vp.Width)), int(sc.X+sc.Width), int(r.width))
	y1 = min(int(math32.Ceil(vp.Y+vp.Height)), int(sc.Y+sc.Height), int(r.height))
	return
}

// restartIndex marks a strip restart in a vertex list.
const restartIndex = math.MinInt64

// vertices lists the vertex or index stream of a draw.
type vertices struct {
	elems   []int64
	restart bool
}

// coverage returns the number of samples that a draw
// covers.
func (r *raster) coverage(vs vertices, instanceCount, firstInstance uint32) uint64 {
	if r.pipeline == nil {
		return 0
	}
	pos, ok := r.position()
	if !ok {
		return 0
	}
	var n uint64
	for inst := range instanceCount {
		get := func(e int64) (point, bool) {
			i := e
			if pos.instance {
				i = int64(firstInstance + inst)
			}
			v, ok := pos.fetch(i)
			if !ok {
				return point{}, false
			}
			return r.project(v)
		}
		n += r.primitives(vs, get)
	}
	return n * uint64(r.samples)
}

func (r *raster) primitives(vs vertices, get func(int64) (point, bool)) uint64 {
	ps := r.pipeline.Descriptor()
	var n uint64
	// Split into runs at strip restarts.
	runs := [][]int64{vs.elems}
	if vs.restart {
		runs = runs[:0]
		start := 0
		for i, e := range vs.elems {
			if e == restartIndex {
				runs = append(runs, vs.elems[start:i])
				start = i + 1
			}
		}
		runs = append(runs, vs.elems[start:])
	}
	for _, run := range runs {
		switch ps.Primitive.Topology {
		case gputypes.PrimitiveTopologyPointList:
			for _, e := range run {
				if p, ok := get(e); ok {
					n += r.pointCoverage(p)
				}
			}
		case gputypes.PrimitiveTopologyLineList, gputypes.PrimitiveTopologyLineStrip:
			step := 2
			if ps.Primitive.Topology == gputypes.PrimitiveTopologyLineStrip {
				step = 1
			}
			for i := 0; i+1 < len(run); i += step {
				a, ok1 := get(run[i])
				b, ok2 := get(run[i+1])
				if ok1 && ok2 {
					n += r.lineCoverage(a, b)
				}
			}
		case gputypes.PrimitiveTopologyTriangleStrip:
			for i := 0; i+2 < len(run); i++ {
				a, ok1 := get(run[i])
				b, ok2 := get(run[i+1])
				c, ok3 := get(run[i+2])
				if i%2 == 1 {
					a, b = b, a
				}
				if ok1 && ok2 && ok3 {
					n += r.triangleCoverage(a, b, c, &ps.Rasterization)
				}
			}
		default:
			for i := 0; i+2 < len(run); i += 3 {
				a, ok1 := get(run[i])
				b, ok2 := get(run[i+1])
				c, ok3 := get(run[i+2])
				if ok1 && ok2 && ok3 {
					n += r.triangleCoverage(a, b, c, &ps.Rasterization)
				}
			}
		}
	}
	return n
}

func (r *raster) inside(x, y int) bool {
	x0, y0, x1, y1 := r.bounds()
	return x >= x0 && x < x1 && y >= y0 && y < y1
}

func (r *raster) pointCoverage(p point) uint64 {
	if r.inside(int(math32.Floor(p.x)), int(math32.Floor(p.y))) {
		return 1
	}
	return 0
}

func (r *raster) lineCoverage(a, b point) uint64 {
	dx, dy := b.x-a.x, b.y-a.y
	steps := int(math32.Ceil(math32.Max(math32.Abs(dx), math32.Abs(dy))))
	if steps == 0 {
		return r.pointCoverage(a)
	}
	var n uint64
	px, py := math.MinInt, math.MinInt
	for i := range steps {
		t := float32(i) / float32(steps)
		x := int(math32.Floor(a.x + dx*t))
		y := int(math32.Floor(a.y + dy*t))
		if x == px && y == py {
			continue
		}
		px, py = x, y
		if r.inside(x, y) {
			n++
		}
	}
	return n
}

func edge(a, b point, x, y float32) float32 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

func (r *raster) triangleCoverage(a, b, c point, rs *gpu.RasterizationState) uint64 {
	// Orientation in normalized device coordinates,
	// where y points up.
	ndc := (b.ndcX-a.ndcX)*(c.ndcY-a.ndcY) - (c.ndcX-a.ndcX)*(b.ndcY-a.ndcY)
	if ndc == 0 || math32.IsNaN(ndc) {
		return 0
	}
	ccw := ndc > 0
	front := ccw
	if rs.FrontFace == gputypes.FrontFaceCW {
		front = !ccw
	}
	switch rs.CullMode {
	case gputypes.CullModeFront:
		if front {
			return 0
		}
	case gputypes.CullModeBack:
		if !front {
			return 0
		}
	}
	area := edge(a, b, c.x, c.y)
	x0, y0, x1, y1 := r.bounds()
	x0 = max(x0, int(math32.Floor(math32.Min(a.x, math32.Min(b.x, c.x)))))
	y0 = max(y0, int(math32.Floor(math32.Min(a.y, math32.Min(b.y, c.y)))))
	x1 = min(x1, int(math32.Ceil(math32.Max(a.x, math32.Max(b.x, c.x)))))
	y1 = min(y1, int(math32.Ceil(math32.Max(a.y, math32.Max(b.y, c.y)))))
	var n uint64
	for y := y0; y < y1; y++ {
		py := float32(y) + 0.5
		for x := x0; x < x1; x++ {
			px := float32(x) + 0.5
			w0 := edge(b, c, px, py)
			w1 := edge(c, a, px, py)
			w2 := edge(a, b, px, py)
			if area > 0 && w0 >= 0 && w1 >= 0 && w2 >= 0 ||
				area < 0 && w0 <= 0 && w1 <= 0 && w2 <= 0 {
				n++
			}
		}
	}
	return n
}

// drawVertices lists the vertices of a non-indexed draw.
func drawVertices(count, first uint32) vertices {
	vs := vertices{elems: make([]int64, count)}
	for i := range vs.elems {
		vs.elems[i] = int64(first) + int64(i)
	}
	return vs
}

// indexedVertices lists the vertices of an indexed draw.
// Out-of-range indices are dropped.
func (r *raster) indexedVertices(count, first uint32, base int32) vertices {
	ib := r.index
	if ib.buf == nil {
		return vertices{}
	}
	mem := bufferOf(ib.buf)
	size := gpu.IndexSize(ib.format)
	vs := vertices{elems: make([]int64, 0, count)}
	top := r.pipeline.Descriptor().Primitive.Topology
	vs.restart = top == gputypes.PrimitiveTopologyLineStrip || top == gputypes.PrimitiveTopologyTriangleStrip
	for i := range count {
		off := ib.off + (uint64(first)+uint64(i))*size
		if off+size > uint64(len(mem)) {
			break
		}
		var idx uint32
		restart := false
		if size == 2 {
			idx = uint32(binary.LittleEndian.Uint16(mem[off:]))
			restart = idx == 0xffff
		} else {
			idx = binary.LittleEndian.Uint32(mem[off:])
			restart = idx == 0xffffffff
		}
		if restart && vs.restart {
			vs.elems = append(vs.elems, restartIndex)
			continue
		}
		vs.elems = append(vs.elems, int64(idx)+int64(base))
	}
	return vs
}
