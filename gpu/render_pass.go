// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"strconv"

	"github.com/gogpu/gputypes"
)

// Sizes of indirect argument records.
const (
	DrawIndirectSize        = 16
	DrawIndexedIndirectSize = 20
	DispatchIndirectSize    = 12
)

type vertexBinding struct {
	buf       *Buffer
	off, size uint64
}

type indexBinding struct {
	buf       *Buffer
	format    IndexFormat
	off, size uint64
}

// RenderPassEncoder records the commands of a render pass.
// It is obtained from CommandEncoder.BeginRenderPass and is
// valid until End.
type RenderPassEncoder struct {
	enc   *CommandEncoder
	label string
	ended bool

	colors  []TextureFormat
	depth   TextureFormat
	samples uint32
	width   uint32
	height  uint32

	pipeline *RenderPipeline
	binds    bindState
	vertex   []vertexBinding
	index    *indexBinding

	occlusion   *QuerySet
	queryActive bool
	query       uint32
	queriesUsed map[uint32]struct{}
	timestamps  *PassTimestampWrites
}

// BeginRenderPass begins a render pass.
// The encoder accepts no other commands until the pass
// ends.
func (e *CommandEncoder) BeginRenderPass(desc *RenderPassDescriptor) (*RenderPassEncoder, error) {
	rp, err := e.beginRenderPass(desc)
	if err != nil {
		return nil, e.poison(err)
	}
	return rp, nil
}

func (e *CommandEncoder) beginRenderPass(desc *RenderPassDescriptor) (*RenderPassEncoder, error) {
	const op = "CommandEncoder.BeginRenderPass"
	if err := e.recording(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	ncolor := len(desc.ColorAttachments)
	switch {
	case ncolor == 0 && desc.DepthStencilAttachment == nil:
		return nil, configErr(op, wrapf(ErrInvalidValue, "render pass has no attachments"))
	case uint32(ncolor) > e.dev.limits.MaxColorAttachments:
		return nil, configErr(op, wrapf(ErrLimit, "%d color attachments", ncolor))
	}
	rp := &RenderPassEncoder{
		enc:         e,
		label:       desc.Label,
		colors:      make([]TextureFormat, 0, ncolor),
		queriesUsed: make(map[uint32]struct{}),
	}
	c := &BeginRenderPassCmd{
		Label:            desc.Label,
		ColorAttachments: make([]RenderPassColorAttachment, 0, ncolor),
	}
	for i := range desc.ColorAttachments {
		ca := desc.ColorAttachments[i]
		if err := rp.attach(op, ca.View, i); err != nil {
			return nil, err
		}
		caps, _ := Caps(ca.View.desc.Format)
		switch {
		case caps.Depth || caps.Stencil:
			return nil, configErr(op, wrapf(ErrUnsupported, "color attachment %d: %s", i, caps.Name))
		case ca.LoadOp > LoadClear || ca.StoreOp > StoreStore:
			return nil, configErr(op, wrapf(ErrInvalidValue, "color attachment %d: load/store op", i))
		}
		if ca.ResolveTarget != nil {
			if err := rp.resolveTarget(op, &ca, i); err != nil {
				return nil, err
			}
		}
		rp.colors = append(rp.colors, ca.View.desc.Format)
		c.ColorAttachments = append(c.ColorAttachments, ca)
	}
	if desc.DepthStencilAttachment != nil {
		ds := *desc.DepthStencilAttachment
		if err := rp.attach(op, ds.View, -1); err != nil {
			return nil, err
		}
		caps, _ := Caps(ds.View.desc.Format)
		switch {
		case !caps.Depth && !caps.Stencil:
			return nil, configErr(op, wrapf(ErrUnsupported, "depth/stencil attachment: %s", caps.Name))
		case ds.DepthLoadOp > LoadClear || ds.DepthStoreOp > StoreStore ||
			ds.StencilLoadOp > LoadClear || ds.StencilStoreOp > StoreStore:
			return nil, configErr(op, wrapf(ErrInvalidValue, "depth/stencil attachment: load/store op"))
		case ds.DepthReadOnly && ds.DepthLoadOp == LoadClear,
			ds.StencilReadOnly && ds.StencilLoadOp == LoadClear:
			return nil, configErr(op, wrapf(ErrInvalidValue, "read-only depth/stencil aspect cannot be cleared"))
		case ds.DepthClearValue < 0 || ds.DepthClearValue > 1:
			return nil, configErr(op, wrapf(ErrInvalidValue, "depth clear value %g", ds.DepthClearValue))
		}
		rp.depth = ds.View.desc.Format
		c.DepthStencilAttachment = &ds
	}
	if qs := desc.OcclusionQuerySet; qs != nil {
		if err := e.use(op, qs); err != nil {
			return nil, err
		}
		if qs.typ != QueryOcclusion {
			return nil, configErr(op, wrapf(ErrInvalidValue, "%v query set for occlusion", qs.typ))
		}
		rp.occlusion = qs
		c.OcclusionQuerySet = qs
	}
	tw, err := e.timestamps(op, desc.TimestampWrites)
	if err != nil {
		return nil, err
	}
	rp.timestamps = tw
	c.TimestampWrites = tw
	c.Width, c.Height, c.SampleCount = rp.width, rp.height, rp.samples
	rp.vertex = make([]vertexBinding, e.dev.limits.MaxVertexBuffers)

	var setPipeline *SetRenderPipelineCmd
	if p := desc.Pipeline; p != nil {
		if err := e.use(op, p); err != nil {
			return nil, err
		}
		if err := rp.compatible(op, p); err != nil {
			return nil, err
		}
		rp.pipeline = p
		setPipeline = &SetRenderPipelineCmd{Pipeline: p}
	}
	e.record(c)
	if setPipeline != nil {
		e.record(setPipeline)
	}
	e.state = encPassOpen
	slogger().Debug("gpu: render pass begun",
		"label", desc.Label,
		"colors", ncolor,
		"depth", desc.DepthStencilAttachment != nil,
		"width", rp.width,
		"height", rp.height)
	return rp, nil
}

// attach validates an attachment view, checking that its
// size and sample count agree with the previous ones.
// Color attachments are identified by i, depth/stencil
// by -1.
func (rp *RenderPassEncoder) attach(op string, v *TextureView, i int) error {
	what := "depth/stencil attachment"
	if i >= 0 {
		what = "color attachment " + strconv.Itoa(i)
	}
	if v == nil {
		return configErr(op, wrapf(ErrNilResource, "%s", what))
	}
	if err := rp.enc.use(op, v); err != nil {
		return err
	}
	t := v.tex
	switch {
	case t.desc.Usage&gputypes.TextureUsageRenderAttachment == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "%s lacks render-attachment", what))
	case v.desc.MipLevelCount != 1 || v.desc.ArrayLayerCount != 1:
		return configErr(op, wrapf(ErrInvalidValue, "%s must view one mip level and layer", what))
	}
	ext := v.Extent()
	if rp.samples == 0 {
		rp.width, rp.height, rp.samples = ext.Width, ext.Height, t.desc.SampleCount
		return nil
	}
	switch {
	case ext.Width != rp.width || ext.Height != rp.height:
		return configErr(op, wrapf(ErrInvalidValue, "%s is %dx%d, want %dx%d", what, ext.Width, ext.Height, rp.width, rp.height))
	case t.desc.SampleCount != rp.samples:
		return configErr(op, wrapf(ErrInvalidValue, "%s has %d samples, want %d", what, t.desc.SampleCount, rp.samples))
	}
	return nil
}

func (rp *RenderPassEncoder) resolveTarget(op string, ca *RenderPassColorAttachment, i int) error {
	r := ca.ResolveTarget
	if err := rp.enc.use(op, r); err != nil {
		return err
	}
	ext, rext := ca.View.Extent(), r.Extent()
	switch {
	case ca.View.tex.desc.SampleCount == 1:
		return configErr(op, wrapf(ErrInvalidValue, "color attachment %d: resolve of single-sampled view", i))
	case r.tex.desc.SampleCount != 1:
		return configErr(op, wrapf(ErrInvalidValue, "color attachment %d: multisampled resolve target", i))
	case r.desc.Format != ca.View.desc.Format:
		return configErr(op, wrapf(ErrUnsupported, "color attachment %d: resolve format %s", i, FormatName(r.desc.Format)))
	case r.tex.desc.Usage&gputypes.TextureUsageRenderAttachment == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "color attachment %d: resolve target lacks render-attachment", i))
	case r.desc.MipLevelCount != 1 || r.desc.ArrayLayerCount != 1:
		return configErr(op, wrapf(ErrInvalidValue, "color attachment %d: resolve target must view one mip level and layer", i))
	case rext.Width != ext.Width || rext.Height != ext.Height:
		return configErr(op, wrapf(ErrInvalidValue, "color attachment %d: resolve target is %dx%d", i, rext.Width, rext.Height))
	}
	return nil
}

// compatible checks that p can draw into the pass's
// attachments.
func (rp *RenderPassEncoder) compatible(op string, p *RenderPipeline) error {
	desc := &p.desc
	var targets []ColorTargetState
	if desc.Fragment != nil {
		targets = desc.Fragment.Targets
	}
	if len(targets) != len(rp.colors) {
		return stateErr(op, wrapf(ErrIncompatible, "%d color targets for %d attachments", len(targets), len(rp.colors)))
	}
	for i := range targets {
		if targets[i].Format != rp.colors[i] {
			return stateErr(op, wrapf(ErrIncompatible, "color target %d: %s for %s attachment",
				i, FormatName(targets[i].Format), FormatName(rp.colors[i])))
		}
	}
	hasDepth := rp.depth != gputypes.TextureFormatUndefined
	switch {
	case desc.DepthStencil == nil && hasDepth:
		return stateErr(op, wrapf(ErrIncompatible, "pipeline has no depth/stencil state for %s attachment", FormatName(rp.depth)))
	case desc.DepthStencil != nil && !hasDepth:
		return stateErr(op, wrapf(ErrIncompatible, "pipeline depth/stencil state without attachment"))
	case desc.DepthStencil != nil && desc.DepthStencil.Format != rp.depth:
		return stateErr(op, wrapf(ErrIncompatible, "depth/stencil %s for %s attachment",
			FormatName(desc.DepthStencil.Format), FormatName(rp.depth)))
	case p.SampleCount() != rp.samples:
		return stateErr(op, wrapf(ErrIncompatible, "pipeline sample count %d for %d", p.SampleCount(), rp.samples))
	}
	return nil
}

// Label returns the pass's debug label.
func (rp *RenderPassEncoder) Label() string { return rp.label }

func (rp *RenderPassEncoder) check(op string) error { return passCheck(op, rp.enc, rp.ended) }

// SetPipeline binds a render pipeline.
func (rp *RenderPassEncoder) SetPipeline(p *RenderPipeline) error {
	return rp.enc.poison(rp.setPipeline(p))
}

func (rp *RenderPassEncoder) setPipeline(p *RenderPipeline) error {
	const op = "RenderPassEncoder.SetPipeline"
	if err := rp.check(op); err != nil {
		return err
	}
	if p == nil {
		return configErr(op, ErrNilResource)
	}
	if err := rp.enc.use(op, p); err != nil {
		return err
	}
	if err := rp.compatible(op, p); err != nil {
		return err
	}
	rp.pipeline = p
	rp.enc.record(&SetRenderPipelineCmd{Pipeline: p})
	return nil
}

// SetBindingGroup binds g at index, with one dynamic offset
// per dynamic buffer binding of its layout.
func (rp *RenderPassEncoder) SetBindingGroup(index uint32, g *BindingGroup, dynamicOffsets []uint32) error {
	const op = "RenderPassEncoder.SetBindingGroup"
	if err := rp.check(op); err != nil {
		return rp.enc.poison(err)
	}
	return rp.enc.poison(rp.binds.set(op, rp.enc, index, g, dynamicOffsets))
}

// SetVertexBuffer binds a range of buf to a vertex buffer
// slot. size 0 binds the rest of the buffer.
func (rp *RenderPassEncoder) SetVertexBuffer(slot uint32, buf *Buffer, offset, size uint64) error {
	return rp.enc.poison(rp.setVertexBuffer(slot, buf, offset, size))
}

func (rp *RenderPassEncoder) setVertexBuffer(slot uint32, buf *Buffer, offset, size uint64) error {
	const op = "RenderPassEncoder.SetVertexBuffer"
	if err := rp.check(op); err != nil {
		return err
	}
	if slot >= uint32(len(rp.vertex)) {
		return configErr(op, wrapf(ErrLimit, "vertex buffer slot %d", slot))
	}
	if buf == nil {
		return configErr(op, ErrNilResource)
	}
	if err := rp.enc.use(op, buf); err != nil {
		return err
	}
	if size == 0 && offset <= buf.size {
		size = buf.size - offset
	}
	switch {
	case buf.usage&gputypes.BufferUsageVertex == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "vertex"))
	case offset%4 != 0:
		return configErr(op, wrapf(ErrAlignment, "vertex buffer offset %d", offset))
	case offset > buf.size || size > buf.size-offset:
		return configErr(op, wrapf(ErrOutOfBounds, "vertex buffer [%d, +%d) of %d", offset, size, buf.size))
	}
	rp.enc.useBuffer(op, buf, false)
	rp.vertex[slot] = vertexBinding{buf, offset, size}
	rp.enc.record(&SetVertexBufferCmd{Slot: slot, Buffer: buf, Offset: offset, Size: size})
	return nil
}

// SetIndexBuffer binds a range of buf as the index buffer.
// size 0 binds the rest of the buffer.
func (rp *RenderPassEncoder) SetIndexBuffer(buf *Buffer, format IndexFormat, offset, size uint64) error {
	return rp.enc.poison(rp.setIndexBuffer(buf, format, offset, size))
}

func (rp *RenderPassEncoder) setIndexBuffer(buf *Buffer, format IndexFormat, offset, size uint64) error {
	const op = "RenderPassEncoder.SetIndexBuffer"
	if err := rp.check(op); err != nil {
		return err
	}
	if buf == nil {
		return configErr(op, ErrNilResource)
	}
	if err := rp.enc.use(op, buf); err != nil {
		return err
	}
	n := indexSize(format)
	if n == 0 {
		return configErr(op, wrapf(ErrInvalidValue, "index format %d", format))
	}
	if size == 0 && offset <= buf.size {
		size = buf.size - offset
	}
	switch {
	case buf.usage&gputypes.BufferUsageIndex == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "index"))
	case offset%n != 0:
		return configErr(op, wrapf(ErrAlignment, "index buffer offset %d", offset))
	case offset > buf.size || size > buf.size-offset:
		return configErr(op, wrapf(ErrOutOfBounds, "index buffer [%d, +%d) of %d", offset, size, buf.size))
	}
	rp.enc.useBuffer(op, buf, false)
	rp.index = &indexBinding{buf, format, offset, size}
	rp.enc.record(&SetIndexBufferCmd{Buffer: buf, Format: format, Offset: offset, Size: size})
	return nil
}

// SetViewport sets the viewport.
// It must lie within the attachments and
// 0 <= MinDepth <= MaxDepth <= 1.
func (rp *RenderPassEncoder) SetViewport(v Viewport) error {
	return rp.enc.poison(rp.setViewport(v))
}

func (rp *RenderPassEncoder) setViewport(v Viewport) error {
	const op = "RenderPassEncoder.SetViewport"
	if err := rp.check(op); err != nil {
		return err
	}
	w, h := float32(rp.width), float32(rp.height)
	switch {
	case v.Width <= 0 || v.Height <= 0:
		return configErr(op, wrapf(ErrInvalidValue, "viewport size %gx%g", v.Width, v.Height))
	case v.X < 0 || v.Y < 0 || v.X+v.Width > w || v.Y+v.Height > h:
		return configErr(op, wrapf(ErrOutOfBounds, "viewport (%g,%g)+%gx%g", v.X, v.Y, v.Width, v.Height))
	case v.MinDepth < 0 || v.MaxDepth > 1 || v.MinDepth > v.MaxDepth:
		return configErr(op, wrapf(ErrInvalidValue, "viewport depth [%g, %g]", v.MinDepth, v.MaxDepth))
	}
	rp.enc.record(&SetViewportCmd{Viewport: v})
	return nil
}

// SetScissor sets the scissor rectangle.
func (rp *RenderPassEncoder) SetScissor(s Scissor) error {
	return rp.enc.poison(rp.setScissor(s))
}

func (rp *RenderPassEncoder) setScissor(s Scissor) error {
	const op = "RenderPassEncoder.SetScissor"
	if err := rp.check(op); err != nil {
		return err
	}
	if uint64(s.X)+uint64(s.Width) > uint64(rp.width) || uint64(s.Y)+uint64(s.Height) > uint64(rp.height) {
		return configErr(op, wrapf(ErrOutOfBounds, "scissor (%d,%d)+%dx%d", s.X, s.Y, s.Width, s.Height))
	}
	rp.enc.record(&SetScissorCmd{Scissor: s})
	return nil
}

// SetBlendConstant sets the constant used by the
// BlendFactorConstant factors.
func (rp *RenderPassEncoder) SetBlendConstant(c Color) error {
	const op = "RenderPassEncoder.SetBlendConstant"
	if err := rp.check(op); err != nil {
		return rp.enc.poison(err)
	}
	rp.enc.record(&SetBlendConstantCmd{Color: c})
	return nil
}

// SetStencilReference sets the stencil reference value.
func (rp *RenderPassEncoder) SetStencilReference(ref uint32) error {
	const op = "RenderPassEncoder.SetStencilReference"
	if err := rp.check(op); err != nil {
		return rp.enc.poison(err)
	}
	rp.enc.record(&SetStencilReferenceCmd{Reference: ref})
	return nil
}

// drawable checks the state that every draw needs.
func (rp *RenderPassEncoder) drawable(op string) error {
	p := rp.pipeline
	if p == nil {
		return protoErr(op, ErrNoPipeline)
	}
	if err := rp.binds.check(op, rp.enc.dev, p.layout); err != nil {
		return err
	}
	for slot, vbl := range p.desc.Vertex.Buffers {
		if len(vbl.Attributes) == 0 {
			continue
		}
		if rp.vertex[slot].buf == nil {
			return stateErr(op, wrapf(ErrUnbound, "vertex buffer %d", slot))
		}
	}
	return nil
}

// fetchable checks that the bound vertex buffers hold
// enough elements for the given vertex and instance
// ranges. A negative vertex end skips per-vertex buffers.
func (rp *RenderPassEncoder) fetchable(op string, vertexEnd, instanceEnd int64) error {
	p := rp.pipeline
	for slot, vbl := range p.desc.Vertex.Buffers {
		if len(vbl.Attributes) == 0 {
			continue
		}
		end := vertexEnd
		if vbl.StepMode != 0 && vbl.StepMode != gputypes.VertexStepModeVertex {
			end = instanceEnd
		}
		if end <= 0 {
			continue
		}
		need := p.fetch[slot]
		if vbl.ArrayStride != 0 {
			need += uint64(end-1) * vbl.ArrayStride
		}
		if vb := rp.vertex[slot]; need > vb.size {
			return configErr(op, wrapf(ErrOutOfBounds, "vertex buffer %d: %d bytes needed, %d bound", slot, need, vb.size))
		}
	}
	return nil
}

// Draw draws vertexCount vertices of instanceCount
// instances.
func (rp *RenderPassEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	return rp.enc.poison(rp.draw(vertexCount, instanceCount, firstVertex, firstInstance))
}

func (rp *RenderPassEncoder) draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	const op = "RenderPassEncoder.Draw"
	if err := rp.check(op); err != nil {
		return err
	}
	if err := rp.drawable(op); err != nil {
		return err
	}
	vend, iend := int64(firstVertex)+int64(vertexCount), int64(firstInstance)+int64(instanceCount)
	if vertexCount == 0 {
		vend = 0
	}
	if instanceCount == 0 {
		iend = 0
	}
	if err := rp.fetchable(op, vend, iend); err != nil {
		return err
	}
	rp.enc.record(&DrawCmd{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	})
	return nil
}

// DrawIndexed draws indexCount indices of instanceCount
// instances, adding baseVertex to each index.
func (rp *RenderPassEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	return rp.enc.poison(rp.drawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance))
}

func (rp *RenderPassEncoder) drawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	const op = "RenderPassEncoder.DrawIndexed"
	if err := rp.check(op); err != nil {
		return err
	}
	if err := rp.drawable(op); err != nil {
		return err
	}
	if err := rp.indexable(op); err != nil {
		return err
	}
	ib := rp.index
	if need := (uint64(firstIndex) + uint64(indexCount)) * indexSize(ib.format); indexCount > 0 && need > ib.size {
		return configErr(op, wrapf(ErrOutOfBounds, "index range needs %d bytes, %d bound", need, ib.size))
	}
	iend := int64(firstInstance) + int64(instanceCount)
	if instanceCount == 0 {
		iend = 0
	}
	if err := rp.fetchable(op, -1, iend); err != nil {
		return err
	}
	rp.enc.record(&DrawIndexedCmd{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
	})
	return nil
}

func (rp *RenderPassEncoder) indexable(op string) error {
	ib := rp.index
	if ib == nil {
		return stateErr(op, wrapf(ErrUnbound, "index buffer"))
	}
	ps := &rp.pipeline.desc.Primitive
	strip := ps.Topology == gputypes.PrimitiveTopologyLineStrip || ps.Topology == gputypes.PrimitiveTopologyTriangleStrip
	if strip && ps.StripIndexFormat != 0 && ps.StripIndexFormat != ib.format {
		return stateErr(op, wrapf(ErrIncompatible, "strip index format %d for %d index buffer", ps.StripIndexFormat, ib.format))
	}
	return nil
}

// DrawIndirect draws with DrawCmd arguments read from buf
// at offset. It requires FeatureIndirect.
func (rp *RenderPassEncoder) DrawIndirect(buf *Buffer, offset uint64) error {
	return rp.enc.poison(rp.drawIndirect("RenderPassEncoder.DrawIndirect", buf, offset, false))
}

// DrawIndexedIndirect draws with DrawIndexedCmd arguments
// read from buf at offset. It requires FeatureIndirect.
func (rp *RenderPassEncoder) DrawIndexedIndirect(buf *Buffer, offset uint64) error {
	return rp.enc.poison(rp.drawIndirect("RenderPassEncoder.DrawIndexedIndirect", buf, offset, true))
}

func (rp *RenderPassEncoder) drawIndirect(op string, buf *Buffer, offset uint64, indexed bool) error {
	if err := rp.check(op); err != nil {
		return err
	}
	if err := rp.drawable(op); err != nil {
		return err
	}
	if indexed {
		if err := rp.indexable(op); err != nil {
			return err
		}
	}
	n := uint64(DrawIndirectSize)
	if indexed {
		n = DrawIndexedIndirectSize
	}
	if err := indirectArgs(op, rp.enc, buf, offset, n); err != nil {
		return err
	}
	rp.enc.record(&DrawIndirectCmd{Indexed: indexed, Buffer: buf, Offset: offset})
	return nil
}

// indirectArgs validates an indirect argument record of n
// bytes.
func indirectArgs(op string, e *CommandEncoder, buf *Buffer, offset, n uint64) error {
	if !e.dev.features.Has(FeatureIndirect) {
		return configErr(op, wrapf(ErrMissingFeature, "indirect"))
	}
	if buf == nil {
		return configErr(op, ErrNilResource)
	}
	if err := e.use(op, buf); err != nil {
		return err
	}
	switch {
	case buf.usage&gputypes.BufferUsageIndirect == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "indirect"))
	case offset%4 != 0:
		return configErr(op, wrapf(ErrAlignment, "indirect offset %d", offset))
	case offset > buf.size || n > buf.size-offset:
		return configErr(op, wrapf(ErrOutOfBounds, "indirect [%d, +%d) of %d", offset, n, buf.size))
	}
	e.useBuffer(op, buf, false)
	return nil
}

// BeginOcclusionQuery starts counting the samples that pass
// the per-fragment tests into query index of the pass's
// occlusion query set.
// Each index can be used once per pass, and queries cannot
// nest.
func (rp *RenderPassEncoder) BeginOcclusionQuery(index uint32) error {
	return rp.enc.poison(rp.beginOcclusionQuery(index))
}

func (rp *RenderPassEncoder) beginOcclusionQuery(index uint32) error {
	const op = "RenderPassEncoder.BeginOcclusionQuery"
	if err := rp.check(op); err != nil {
		return err
	}
	qs := rp.occlusion
	if qs == nil {
		return configErr(op, wrapf(ErrInvalidValue, "pass has no occlusion query set"))
	}
	if index >= qs.count {
		return configErr(op, wrapf(ErrOutOfBounds, "query %d of %d", index, qs.count))
	}
	if rp.queryActive {
		return protoErr(op, wrapf(ErrQueryActive, "query %d", rp.query))
	}
	if _, ok := rp.queriesUsed[index]; ok {
		return stateErr(op, wrapf(ErrQueryUsed, "query %d", index))
	}
	rp.queryActive = true
	rp.query = index
	rp.queriesUsed[index] = struct{}{}
	rp.enc.record(&BeginOcclusionQueryCmd{QuerySet: qs, Index: index})
	return nil
}

// EndOcclusionQuery ends the active occlusion query.
func (rp *RenderPassEncoder) EndOcclusionQuery() error {
	return rp.enc.poison(rp.endOcclusionQuery())
}

func (rp *RenderPassEncoder) endOcclusionQuery() error {
	const op = "RenderPassEncoder.EndOcclusionQuery"
	if err := rp.check(op); err != nil {
		return err
	}
	if !rp.queryActive {
		return protoErr(op, ErrQueryInactive)
	}
	rp.queryActive = false
	rp.enc.record(&EndOcclusionQueryCmd{QuerySet: rp.occlusion, Index: rp.query})
	return nil
}

// End ends the pass.
// The encoder returns to recording even if End fails.
func (rp *RenderPassEncoder) End() error {
	const op = "RenderPassEncoder.End"
	e := rp.enc
	if rp.ended {
		return e.poison(protoErr(op, ErrPassEnded))
	}
	rp.ended = true
	if e.state == encPassOpen {
		e.state = encRecording
	}
	if err := e.dev.check(op); err != nil {
		return e.poison(err)
	}
	if e.state == encFinished {
		return protoErr(op, ErrEncoderFinished)
	}
	if rp.queryActive {
		return e.poison(protoErr(op, wrapf(ErrQueryActive, "query %d", rp.query)))
	}
	if e.err == nil {
		e.record(&EndRenderPassCmd{TimestampWrites: rp.timestamps})
	}
	return nil
}
