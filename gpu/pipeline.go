// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"slices"

	"github.com/gogpu/gputypes"
)

// PipelineLayoutDescriptor describes a PipelineLayout.
// Layouts[i] is the layout of group index i.
type PipelineLayoutDescriptor struct {
	Label   string
	Layouts []*BindingGroupLayout
}

// PipelineLayout is an ordered list of binding group
// layouts. It retains every layout.
type PipelineLayout struct {
	object
	h       PipelineLayoutHandle
	layouts []*BindingGroupLayout
	handles []LayoutHandle
}

// CreatePipelineLayout creates a new pipeline layout.
func (d *Device) CreatePipelineLayout(desc *PipelineLayoutDescriptor) (*PipelineLayout, error) {
	const op = "Device.CreatePipelineLayout"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	if n := len(desc.Layouts); n > int(d.limits.MaxBindGroups) {
		return nil, configErr(op, wrapf(ErrLimit, "%d binding group layouts", n))
	}
	pl := &PipelineLayout{
		layouts: slices.Clone(desc.Layouts),
		handles: make([]LayoutHandle, len(desc.Layouts)),
	}
	hs := make([]BindingGroupLayoutHandle, len(desc.Layouts))
	deps := make([]resource, len(desc.Layouts))
	for i, l := range pl.layouts {
		if l == nil {
			return nil, configErr(op, wrapf(ErrNilLayout, "group %d", i))
		}
		if err := d.owned(l); err != nil {
			return nil, stateErr(op, err)
		}
		pl.handles[i] = l.handle
		hs[i] = l.h
		deps[i] = l
	}
	if err := d.validatePipelineLayout(pl.layouts); err != nil {
		return nil, configErr(op, err)
	}
	if err := retainAll(deps...); err != nil {
		return nil, stateErr(op, err)
	}
	h, err := d.be.NewPipelineLayout(hs)
	if err != nil {
		releaseAll(deps...)
		return nil, d.fail(op, err)
	}
	pl.h = h
	pl.init(d, desc.Label)
	d.created()
	return pl, nil
}

// validatePipelineLayout checks the per-stage and dynamic
// binding limits across every group.
func (d *Device) validatePipelineLayout(ls []*BindingGroupLayout) error {
	lim := &d.limits
	var dynUniform, dynStorage uint32
	var uniform, storage, samplers, textures [3]uint32
	stages := [3]ShaderStage{gputypes.ShaderStageVertex, gputypes.ShaderStageFragment, gputypes.ShaderStageCompute}
	count := func(n *[3]uint32, vis ShaderStage) {
		for i, s := range stages {
			if vis&s != 0 {
				n[i]++
			}
		}
	}
	for _, l := range ls {
		for _, b := range l.desc.Buffers {
			uni := b.Type == gputypes.BufferBindingTypeUniform
			switch {
			case uni && b.HasDynamicOffset:
				dynUniform++
			case b.HasDynamicOffset:
				dynStorage++
			}
			if uni {
				count(&uniform, b.Visibility)
			} else {
				count(&storage, b.Visibility)
			}
		}
		for _, s := range l.desc.Samplers {
			count(&samplers, s.Visibility)
		}
		for _, t := range l.desc.Textures {
			count(&textures, t.Visibility)
		}
	}
	switch {
	case dynUniform > lim.MaxDynamicUniformBuffersPerPipelineLayout:
		return wrapf(ErrLimit, "%d dynamic uniform buffers", dynUniform)
	case dynStorage > lim.MaxDynamicStorageBuffersPerPipelineLayout:
		return wrapf(ErrLimit, "%d dynamic storage buffers", dynStorage)
	}
	for i := range stages {
		switch {
		case uniform[i] > lim.MaxUniformBuffersPerShaderStage:
			return wrapf(ErrLimit, "%d uniform buffers in one stage", uniform[i])
		case storage[i] > lim.MaxStorageBuffersPerShaderStage:
			return wrapf(ErrLimit, "%d storage buffers in one stage", storage[i])
		case samplers[i] > lim.MaxSamplersPerShaderStage:
			return wrapf(ErrLimit, "%d samplers in one stage", samplers[i])
		case textures[i] > lim.MaxSampledTexturesPerShaderStage:
			return wrapf(ErrLimit, "%d sampled textures in one stage", textures[i])
		}
	}
	return nil
}

// Layouts returns the handles of the group layouts, in
// group index order.
func (pl *PipelineLayout) Layouts() []LayoutHandle { return slices.Clone(pl.handles) }

// GroupCount returns the number of group layouts.
func (pl *PipelineLayout) GroupCount() int { return len(pl.handles) }

// Handle returns the backend's handle.
func (pl *PipelineLayout) Handle() PipelineLayoutHandle { return pl.h }

// Destroy destroys the pipeline layout, releasing its group
// layouts.
func (pl *PipelineLayout) Destroy() error {
	if err := pl.kill("PipelineLayout.Destroy"); err != nil {
		return err
	}
	pl.h.Destroy()
	for _, l := range pl.layouts {
		l.release()
	}
	pl.dev.forget()
	return nil
}

// VertexAttribute describes a vertex attribute.
type VertexAttribute struct {
	Format         VertexFormat
	Offset         uint64
	ShaderLocation uint32
}

// VertexBufferLayout describes the vertex buffer bound at
// the slot given by its index in VertexState.Buffers.
type VertexBufferLayout struct {
	// Zero means that every vertex (or instance) reads
	// the same element.
	ArrayStride uint64
	StepMode    VertexStepMode
	Attributes  []VertexAttribute
}

// VertexState describes the vertex stage.
type VertexState struct {
	Module     *ShaderModule
	EntryPoint string
	Buffers    []VertexBufferLayout
}

// PrimitiveState describes input assembly.
type PrimitiveState struct {
	Topology PrimitiveTopology
	// Index format of indexed strip draws.
	// Ignored for list topologies.
	StripIndexFormat IndexFormat
}

// RasterizationState describes rasterization.
// SampleCount 0 means 1.
type RasterizationState struct {
	SampleCount uint32
	CullMode    CullMode
	FrontFace   FrontFace
}

// BlendComponent describes the blending of either the color
// or the alpha channel.
type BlendComponent struct {
	SrcFactor BlendFactor
	DstFactor BlendFactor
	Operation BlendOperation
}

// BlendState describes color and alpha blending.
type BlendState struct {
	Color BlendComponent
	Alpha BlendComponent
}

// ColorTargetState describes a color attachment of the
// pipeline. A nil Blend disables blending.
type ColorTargetState struct {
	Format    TextureFormat
	Blend     *BlendState
	WriteMask ColorWriteMask
}

// FragmentState describes the fragment stage.
type FragmentState struct {
	Module     *ShaderModule
	EntryPoint string
	Targets    []ColorTargetState
}

// DepthStencilState describes the depth/stencil attachment
// of the pipeline.
type DepthStencilState struct {
	Format TextureFormat
}

// RenderPipelineDescriptor describes a RenderPipeline.
// Fragment may be nil only if DepthStencil is not.
// A pipeline without DepthStencil cannot be used in render
// passes that have a depth/stencil attachment, and vice
// versa.
type RenderPipelineDescriptor struct {
	Label         string
	Layout        *PipelineLayout
	Primitive     PrimitiveState
	Vertex        VertexState
	Rasterization RasterizationState
	Fragment      *FragmentState
	DepthStencil  *DepthStencilState
}

// RenderPipeline is a frozen graphics configuration.
type RenderPipeline struct {
	object
	h      RenderPipelineHandle
	layout *PipelineLayout
	desc   RenderPipelineDescriptor
	deps   []resource
	// Minimum number of bytes of each vertex buffer slot
	// that a single element reads.
	fetch []uint64
}

// CreateRenderPipeline creates a new render pipeline.
func (d *Device) CreateRenderPipeline(desc *RenderPipelineDescriptor) (*RenderPipeline, error) {
	const op = "Device.CreateRenderPipeline"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	dc := cloneRenderPipeline(desc)
	p := &RenderPipeline{layout: dc.Layout}
	if err := d.validateRenderPipeline(&dc, p); err != nil {
		return nil, err
	}
	if err := retainAll(p.deps...); err != nil {
		return nil, stateErr(op, err)
	}
	h, err := d.be.NewRenderPipeline(dc.Layout.h, &dc)
	if err != nil {
		releaseAll(p.deps...)
		return nil, d.fail(op, err)
	}
	p.h = h
	p.desc = dc
	p.init(d, dc.Label)
	d.created()
	slogger().Debug("gpu: render pipeline created", "label", dc.Label)
	return p, nil
}

func cloneRenderPipeline(desc *RenderPipelineDescriptor) RenderPipelineDescriptor {
	dc := *desc
	dc.Vertex.Buffers = slices.Clone(desc.Vertex.Buffers)
	for i := range dc.Vertex.Buffers {
		dc.Vertex.Buffers[i].Attributes = slices.Clone(dc.Vertex.Buffers[i].Attributes)
	}
	if desc.Fragment != nil {
		fs := *desc.Fragment
		fs.Targets = slices.Clone(fs.Targets)
		for i := range fs.Targets {
			if b := fs.Targets[i].Blend; b != nil {
				bc := *b
				fs.Targets[i].Blend = &bc
			}
		}
		dc.Fragment = &fs
	}
	if desc.DepthStencil != nil {
		ds := *desc.DepthStencil
		dc.DepthStencil = &ds
	}
	return dc
}

func (d *Device) validateRenderPipeline(desc *RenderPipelineDescriptor, p *RenderPipeline) error {
	const op = "Device.CreateRenderPipeline"
	if desc.Layout == nil {
		return configErr(op, ErrNilLayout)
	}
	if err := d.owned(desc.Layout); err != nil {
		return stateErr(op, err)
	}
	p.deps = append(p.deps, desc.Layout)
	if err := d.validateStage(op, desc.Vertex.Module, desc.Vertex.EntryPoint); err != nil {
		return err
	}
	p.deps = append(p.deps, desc.Vertex.Module)
	if err := d.validatePrimitive(&desc.Primitive); err != nil {
		return configErr(op, err)
	}
	fetch, err := d.validateVertexBuffers(desc.Vertex.Buffers)
	if err != nil {
		return configErr(op, err)
	}
	p.fetch = fetch
	rs := &desc.Rasterization
	if rs.SampleCount == 0 {
		rs.SampleCount = 1
	}
	if rs.SampleCount != 1 && rs.SampleCount != 4 {
		return configErr(op, wrapf(ErrUnsupported, "sample count %d", rs.SampleCount))
	}
	if desc.Fragment == nil && desc.DepthStencil == nil {
		return configErr(op, wrapf(ErrInvalidValue, "pipeline has neither fragment stage nor depth/stencil state"))
	}
	if fs := desc.Fragment; fs != nil {
		if err := d.validateStage(op, fs.Module, fs.EntryPoint); err != nil {
			return err
		}
		if fs.Module != desc.Vertex.Module {
			p.deps = append(p.deps, fs.Module)
		}
		if err := d.validateTargets(fs.Targets); err != nil {
			return configErr(op, err)
		}
	}
	if ds := desc.DepthStencil; ds != nil {
		if !IsDepthStencil(ds.Format) {
			return configErr(op, wrapf(ErrUnsupported, "depth/stencil format %s", FormatName(ds.Format)))
		}
	}
	return nil
}

func (d *Device) validateStage(op string, m *ShaderModule, entry string) error {
	switch {
	case m == nil:
		return configErr(op, ErrNilModule)
	case entry == "":
		return configErr(op, ErrNoEntryPoint)
	}
	if err := d.owned(m); err != nil {
		return stateErr(op, err)
	}
	return nil
}

func (d *Device) validatePrimitive(ps *PrimitiveState) error {
	switch ps.Topology {
	case gputypes.PrimitiveTopologyPointList, gputypes.PrimitiveTopologyLineList, gputypes.PrimitiveTopologyTriangleList:
	case gputypes.PrimitiveTopologyLineStrip, gputypes.PrimitiveTopologyTriangleStrip:
		if ps.StripIndexFormat != 0 && indexSize(ps.StripIndexFormat) == 0 {
			return wrapf(ErrInvalidValue, "strip index format %d", ps.StripIndexFormat)
		}
	default:
		return wrapf(ErrInvalidValue, "primitive topology %d", ps.Topology)
	}
	return nil
}

// validateVertexBuffers checks the vertex buffer layouts and
// returns, for each slot, the number of bytes that the last
// element fetched by a draw reads.
func (d *Device) validateVertexBuffers(vbs []VertexBufferLayout) ([]uint64, error) {
	lim := &d.limits
	if len(vbs) > int(lim.MaxVertexBuffers) {
		return nil, wrapf(ErrLimit, "%d vertex buffers", len(vbs))
	}
	locs := make(map[uint32]bool)
	fetch := make([]uint64, len(vbs))
	for i := range vbs {
		vb := &vbs[i]
		switch {
		case vb.ArrayStride > uint64(lim.MaxVertexBufferArrayStride):
			return nil, wrapf(ErrLimit, "slot %d: stride %d", i, vb.ArrayStride)
		case vb.ArrayStride%4 != 0:
			return nil, wrapf(ErrAlignment, "slot %d: stride %d", i, vb.ArrayStride)
		}
		for _, a := range vb.Attributes {
			info, ok := VertexFormatOf(a.Format)
			if !ok {
				return nil, wrapf(ErrUnsupported, "slot %d: vertex format %d", i, a.Format)
			}
			end := a.Offset + info.Size
			switch {
			case a.ShaderLocation >= lim.MaxVertexAttributes:
				return nil, wrapf(ErrLimit, "shader location %d", a.ShaderLocation)
			case locs[a.ShaderLocation]:
				return nil, wrapf(ErrDuplicateBinding, "shader location %d", a.ShaderLocation)
			case a.Offset%4 != 0:
				return nil, wrapf(ErrAlignment, "location %d: offset %d", a.ShaderLocation, a.Offset)
			case vb.ArrayStride != 0 && end > vb.ArrayStride:
				return nil, wrapf(ErrOutOfBounds, "location %d: [%d, %d) exceeds stride %d", a.ShaderLocation, a.Offset, end, vb.ArrayStride)
			case end > uint64(lim.MaxVertexBufferArrayStride):
				return nil, wrapf(ErrOutOfBounds, "location %d: [%d, %d)", a.ShaderLocation, a.Offset, end)
			}
			locs[a.ShaderLocation] = true
			fetch[i] = max(fetch[i], end)
		}
	}
	if len(locs) > int(lim.MaxVertexAttributes) {
		return nil, wrapf(ErrLimit, "%d vertex attributes", len(locs))
	}
	return fetch, nil
}

func (d *Device) validateTargets(ts []ColorTargetState) error {
	if len(ts) > int(d.limits.MaxColorAttachments) {
		return wrapf(ErrLimit, "%d color targets", len(ts))
	}
	for i, t := range ts {
		caps, ok := Caps(t.Format)
		switch {
		case !ok || !caps.Renderable || caps.Depth || caps.Stencil:
			return wrapf(ErrUnsupported, "target %d: format %s is not color renderable", i, FormatName(t.Format))
		case t.Blend != nil && !caps.Blendable:
			return wrapf(ErrUnsupported, "target %d: format %s is not blendable", i, caps.Name)
		case t.WriteMask&^gputypes.ColorWriteMaskAll != 0:
			return wrapf(ErrInvalidValue, "target %d: write mask %#x", i, uint32(t.WriteMask))
		}
		if t.Blend != nil {
			for _, c := range []BlendComponent{t.Blend.Color, t.Blend.Alpha} {
				if err := validateBlend(c); err != nil {
					return wrapf(err, "target %d", i)
				}
			}
		}
	}
	return nil
}

func validateBlend(c BlendComponent) error {
	switch c.Operation {
	case gputypes.BlendOperationMin, gputypes.BlendOperationMax:
		if c.SrcFactor != gputypes.BlendFactorOne || c.DstFactor != gputypes.BlendFactorOne {
			return wrapf(ErrInvalidValue, "min/max blend requires factors of one")
		}
	}
	return nil
}

// Layout returns the pipeline layout.
func (p *RenderPipeline) Layout() *PipelineLayout { return p.layout }

// Descriptor returns the pipeline's descriptor, with
// defaults applied.
func (p *RenderPipeline) Descriptor() RenderPipelineDescriptor { return p.desc }

// SampleCount returns the rasterization sample count.
func (p *RenderPipeline) SampleCount() uint32 { return p.desc.Rasterization.SampleCount }

// Handle returns the backend's handle.
func (p *RenderPipeline) Handle() RenderPipelineHandle { return p.h }

// Destroy destroys the pipeline.
func (p *RenderPipeline) Destroy() error {
	if err := p.kill("RenderPipeline.Destroy"); err != nil {
		return err
	}
	p.h.Destroy()
	releaseAll(p.deps...)
	p.dev.forget()
	return nil
}

// ProgrammableStage describes a shader entry point.
type ProgrammableStage struct {
	Module     *ShaderModule
	EntryPoint string
}

// ComputePipelineDescriptor describes a ComputePipeline.
type ComputePipelineDescriptor struct {
	Label   string
	Layout  *PipelineLayout
	Compute ProgrammableStage
}

// ComputePipeline is a frozen compute configuration.
type ComputePipeline struct {
	object
	h      ComputePipelineHandle
	layout *PipelineLayout
	module *ShaderModule
}

// CreateComputePipeline creates a new compute pipeline.
func (d *Device) CreateComputePipeline(desc *ComputePipelineDescriptor) (*ComputePipeline, error) {
	const op = "Device.CreateComputePipeline"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	dc := *desc
	if dc.Layout == nil {
		return nil, configErr(op, ErrNilLayout)
	}
	if err := d.owned(dc.Layout); err != nil {
		return nil, stateErr(op, err)
	}
	if err := d.validateStage(op, dc.Compute.Module, dc.Compute.EntryPoint); err != nil {
		return nil, err
	}
	if err := retainAll(dc.Layout, dc.Compute.Module); err != nil {
		return nil, stateErr(op, err)
	}
	h, err := d.be.NewComputePipeline(dc.Layout.h, &dc)
	if err != nil {
		releaseAll(dc.Layout, dc.Compute.Module)
		return nil, d.fail(op, err)
	}
	p := &ComputePipeline{h: h, layout: dc.Layout, module: dc.Compute.Module}
	p.init(d, dc.Label)
	d.created()
	return p, nil
}

// Layout returns the pipeline layout.
func (p *ComputePipeline) Layout() *PipelineLayout { return p.layout }

// Handle returns the backend's handle.
func (p *ComputePipeline) Handle() ComputePipelineHandle { return p.h }

// Destroy destroys the pipeline.
func (p *ComputePipeline) Destroy() error {
	if err := p.kill("ComputePipeline.Destroy"); err != nil {
		return err
	}
	p.h.Destroy()
	releaseAll(p.layout, p.module)
	p.dev.forget()
	return nil
}
