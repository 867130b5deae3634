// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"errors"
	"slices"
	"sort"

	"github.com/gogpu/gputypes"

	"github.com/gviegas/hal/internal/arena"
)

const stageMask = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute

// BufferBindingLayout declares a buffer slot.
type BufferBindingLayout struct {
	Binding          uint32
	Visibility       ShaderStage
	Type             BufferBindingType
	HasDynamicOffset bool
	// Minimum size of bound ranges.
	// Zero means no minimum.
	MinBindingSize uint64
}

// SamplerBindingLayout declares a sampler slot.
type SamplerBindingLayout struct {
	Binding    uint32
	Visibility ShaderStage
	// Whether the slot takes comparison samplers.
	Comparison bool
}

// TextureBindingLayout declares a sampled texture slot.
// An undefined SampleType means float and an undefined
// ViewDimension means 2D.
type TextureBindingLayout struct {
	Binding       uint32
	Visibility    ShaderStage
	SampleType    TextureSampleType
	ViewDimension TextureViewDimension
	Multisampled  bool
}

// BindingGroupLayoutDescriptor describes a
// BindingGroupLayout.
// Binding indices are unique across the three lists.
type BindingGroupLayoutDescriptor struct {
	Label    string
	Buffers  []BufferBindingLayout
	Samplers []SamplerBindingLayout
	Textures []TextureBindingLayout
}

type slotKind int

const (
	slotBuffer slotKind = iota
	slotSampler
	slotTexture
)

func (k slotKind) String() string {
	switch k {
	case slotBuffer:
		return "buffer"
	case slotSampler:
		return "sampler"
	default:
		return "texture"
	}
}

type slot struct {
	kind slotKind
	// Index in the descriptor's list of kind.
	index int
}

// LayoutHandle identifies a BindingGroupLayout in its
// device's arena.
// Equal handles denote the same layout.
type LayoutHandle struct{ h arena.Handle }

// IsZero reports whether h is the zero handle.
func (h LayoutHandle) IsZero() bool { return h.h.IsZero() }

// BindingGroupLayout is the schema of a binding group.
type BindingGroupLayout struct {
	object
	h      BindingGroupLayoutHandle
	handle LayoutHandle
	desc   BindingGroupLayoutDescriptor
	slots  map[uint32]slot
	// Dynamic buffer slots, in binding order.
	dynamic []int
}

// CreateBindingGroupLayout creates a new binding group
// layout.
func (d *Device) CreateBindingGroupLayout(desc *BindingGroupLayoutDescriptor) (*BindingGroupLayout, error) {
	const op = "Device.CreateBindingGroupLayout"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	dc := BindingGroupLayoutDescriptor{
		Label:    desc.Label,
		Buffers:  slices.Clone(desc.Buffers),
		Samplers: slices.Clone(desc.Samplers),
		Textures: slices.Clone(desc.Textures),
	}
	l := &BindingGroupLayout{slots: make(map[uint32]slot)}
	if err := d.validateLayout(&dc, l); err != nil {
		return nil, configErr(op, err)
	}
	h, err := d.be.NewBindingGroupLayout(&dc)
	if err != nil {
		return nil, d.fail(op, err)
	}
	l.h = h
	l.desc = dc
	l.init(d, dc.Label)
	d.mu.Lock()
	l.handle = LayoutHandle{d.layouts.Insert(l)}
	d.mu.Unlock()
	d.created()
	slogger().Debug("gpu: binding group layout created",
		"label", dc.Label,
		"buffers", len(dc.Buffers),
		"samplers", len(dc.Samplers),
		"textures", len(dc.Textures))
	return l, nil
}

func (d *Device) validateLayout(desc *BindingGroupLayoutDescriptor, l *BindingGroupLayout) error {
	add := func(binding uint32, vis ShaderStage, s slot) error {
		if binding >= d.limits.MaxBindingsPerBindGroup {
			return wrapf(ErrLimit, "binding %d", binding)
		}
		if _, dup := l.slots[binding]; dup {
			return wrapf(ErrDuplicateBinding, "binding %d", binding)
		}
		if vis == 0 || vis&^stageMask != 0 {
			return wrapf(ErrInvalidValue, "binding %d visibility %#x", binding, uint32(vis))
		}
		l.slots[binding] = s
		return nil
	}
	var dynUniform, dynStorage uint32
	for i := range desc.Buffers {
		b := &desc.Buffers[i]
		if err := add(b.Binding, b.Visibility, slot{slotBuffer, i}); err != nil {
			return err
		}
		switch b.Type {
		case gputypes.BufferBindingTypeUniform:
			if b.HasDynamicOffset {
				dynUniform++
			}
		case gputypes.BufferBindingTypeStorage:
			if b.Visibility&gputypes.ShaderStageVertex != 0 {
				return wrapf(ErrUnsupported, "binding %d: writable storage visible to vertex stage", b.Binding)
			}
			fallthrough
		case gputypes.BufferBindingTypeReadOnlyStorage:
			if b.HasDynamicOffset {
				dynStorage++
			}
		default:
			return wrapf(ErrUnsupported, "binding %d: buffer binding type %d", b.Binding, b.Type)
		}
	}
	for i := range desc.Samplers {
		s := &desc.Samplers[i]
		if err := add(s.Binding, s.Visibility, slot{slotSampler, i}); err != nil {
			return err
		}
	}
	for i := range desc.Textures {
		t := &desc.Textures[i]
		if err := add(t.Binding, t.Visibility, slot{slotTexture, i}); err != nil {
			return err
		}
		if t.SampleType == gputypes.TextureSampleTypeUndefined {
			t.SampleType = gputypes.TextureSampleTypeFloat
		}
		if t.ViewDimension == gputypes.TextureViewDimensionUndefined {
			t.ViewDimension = gputypes.TextureViewDimension2D
		}
		if t.Multisampled && t.ViewDimension != gputypes.TextureViewDimension2D {
			return wrapf(ErrInvalidValue, "binding %d: multisampled texture must be 2D", t.Binding)
		}
	}
	if dynUniform > d.limits.MaxDynamicUniformBuffersPerPipelineLayout {
		return wrapf(ErrLimit, "%d dynamic uniform buffers", dynUniform)
	}
	if dynStorage > d.limits.MaxDynamicStorageBuffersPerPipelineLayout {
		return wrapf(ErrLimit, "%d dynamic storage buffers", dynStorage)
	}
	for i := range desc.Buffers {
		if desc.Buffers[i].HasDynamicOffset {
			l.dynamic = append(l.dynamic, i)
		}
	}
	sort.Slice(l.dynamic, func(i, j int) bool {
		return desc.Buffers[l.dynamic[i]].Binding < desc.Buffers[l.dynamic[j]].Binding
	})
	return nil
}

// Handle returns the layout's arena handle.
func (l *BindingGroupLayout) Handle() LayoutHandle { return l.handle }

// Backend returns the backend's handle.
func (l *BindingGroupLayout) Backend() BindingGroupLayoutHandle { return l.h }

// Descriptor returns the layout's descriptor, with defaults
// applied.
func (l *BindingGroupLayout) Descriptor() BindingGroupLayoutDescriptor { return l.desc }

// DynamicOffsetCount returns the number of dynamic-offset
// buffer slots.
func (l *BindingGroupLayout) DynamicOffsetCount() int { return len(l.dynamic) }

// Destroy destroys the layout.
// It fails while groups or pipeline layouts reference it.
func (l *BindingGroupLayout) Destroy() error {
	if err := l.kill("BindingGroupLayout.Destroy"); err != nil {
		return err
	}
	d := l.dev
	d.mu.Lock()
	d.layouts.Remove(l.handle.h)
	d.mu.Unlock()
	l.h.Destroy()
	d.forget()
	return nil
}

// Layout resolves a layout handle.
// It fails with ErrDestroyed if the layout no longer exists.
func (d *Device) Layout(h LayoutHandle) (*BindingGroupLayout, error) {
	d.mu.Lock()
	l, ok := d.layouts.Get(h.h)
	d.mu.Unlock()
	if !ok {
		return nil, stateErr("Device.Layout", ErrDestroyed)
	}
	return l, nil
}

// BufferBinding binds a range of a buffer.
// Size 0 binds the rest of the buffer.
type BufferBinding struct {
	Binding uint32
	Buffer  *Buffer
	Offset  uint64
	Size    uint64
}

// SamplerBinding binds a sampler.
type SamplerBinding struct {
	Binding uint32
	Sampler *Sampler
}

// TextureBinding binds a texture view.
type TextureBinding struct {
	Binding uint32
	View    *TextureView
}

// BindingGroupDescriptor describes a BindingGroup.
// It must supply exactly one entry for each slot of Layout.
type BindingGroupDescriptor struct {
	Label    string
	Layout   *BindingGroupLayout
	Buffers  []BufferBinding
	Samplers []SamplerBinding
	Textures []TextureBinding
}

// BindingGroup is a set of resources conforming to a
// BindingGroupLayout.
// It retains its layout and every bound resource.
type BindingGroup struct {
	object
	h      BindingGroupHandle
	layout *BindingGroupLayout
	lh     LayoutHandle
	desc   BindingGroupDescriptor
	// Dynamic buffer bindings, in binding order.
	dynamic []dynamicBinding
	// Buffers written through storage bindings.
	writes []*Buffer
	deps   []resource
}

type dynamicBinding struct {
	buf   *Buffer
	off   uint64
	size  uint64
	align uint32
}

// CreateBindingGroup creates a new binding group.
func (d *Device) CreateBindingGroup(desc *BindingGroupDescriptor) (*BindingGroup, error) {
	const op = "Device.CreateBindingGroup"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	if desc.Layout == nil {
		return nil, configErr(op, ErrNilLayout)
	}
	if err := d.owned(desc.Layout); err != nil {
		return nil, stateErr(op, err)
	}
	dc := BindingGroupDescriptor{
		Label:    desc.Label,
		Layout:   desc.Layout,
		Buffers:  slices.Clone(desc.Buffers),
		Samplers: slices.Clone(desc.Samplers),
		Textures: slices.Clone(desc.Textures),
	}
	g := &BindingGroup{layout: dc.Layout, lh: dc.Layout.handle}
	if err := d.validateGroup(&dc, g); err != nil {
		return nil, err
	}
	g.deps = append(g.deps, dc.Layout)
	for i := range dc.Buffers {
		g.deps = append(g.deps, dc.Buffers[i].Buffer)
	}
	for i := range dc.Samplers {
		g.deps = append(g.deps, dc.Samplers[i].Sampler)
	}
	for i := range dc.Textures {
		g.deps = append(g.deps, dc.Textures[i].View)
	}
	if err := retainAll(g.deps...); err != nil {
		return nil, stateErr(op, err)
	}
	h, err := d.be.NewBindingGroup(dc.Layout.h, &dc)
	if err != nil {
		releaseAll(g.deps...)
		return nil, d.fail(op, err)
	}
	g.h = h
	g.desc = dc
	g.init(d, dc.Label)
	d.created()
	return g, nil
}

func (d *Device) validateGroup(desc *BindingGroupDescriptor, g *BindingGroup) error {
	const op = "Device.CreateBindingGroup"
	l := desc.Layout
	seen := make(map[uint32]bool, len(l.slots))
	check := func(binding uint32, kind slotKind) (int, error) {
		s, ok := l.slots[binding]
		switch {
		case !ok:
			return 0, configErr(op, wrapf(ErrUnknownBinding, "binding %d", binding))
		case seen[binding]:
			return 0, configErr(op, wrapf(ErrDuplicateBinding, "binding %d", binding))
		case s.kind != kind:
			return 0, configErr(op, wrapf(ErrBindingType, "binding %d: %v given for %v slot", binding, kind, s.kind))
		}
		seen[binding] = true
		return s.index, nil
	}
	dynamic := make(map[int]dynamicBinding)
	for i := range desc.Buffers {
		b := &desc.Buffers[i]
		li, err := check(b.Binding, slotBuffer)
		if err != nil {
			return err
		}
		if b.Buffer == nil {
			return configErr(op, wrapf(ErrNilResource, "binding %d", b.Binding))
		}
		if err := d.owned(b.Buffer); err != nil {
			return stateErr(op, err)
		}
		bl := &l.desc.Buffers[li]
		if err := d.validateBufferBinding(b, bl); err != nil {
			return bindingErr(op, err)
		}
		if bl.HasDynamicOffset {
			dynamic[li] = dynamicBinding{b.Buffer, b.Offset, b.Size, d.bindingAlignment(bl.Type)}
		}
		if bl.Type == gputypes.BufferBindingTypeStorage {
			g.writes = append(g.writes, b.Buffer)
		}
	}
	for i := range desc.Samplers {
		s := &desc.Samplers[i]
		li, err := check(s.Binding, slotSampler)
		if err != nil {
			return err
		}
		if s.Sampler == nil {
			return configErr(op, wrapf(ErrNilResource, "binding %d", s.Binding))
		}
		if err := d.owned(s.Sampler); err != nil {
			return stateErr(op, err)
		}
		if l.desc.Samplers[li].Comparison != s.Sampler.IsComparison() {
			return configErr(op, wrapf(ErrBindingType, "binding %d: sampler comparison mismatch", s.Binding))
		}
	}
	for i := range desc.Textures {
		t := &desc.Textures[i]
		li, err := check(t.Binding, slotTexture)
		if err != nil {
			return err
		}
		if t.View == nil {
			return configErr(op, wrapf(ErrNilResource, "binding %d", t.Binding))
		}
		if err := d.owned(t.View); err != nil {
			return stateErr(op, err)
		}
		if err := validateTextureBinding(t, &l.desc.Textures[li]); err != nil {
			return bindingErr(op, err)
		}
	}
	for b := range l.slots {
		if !seen[b] {
			return configErr(op, wrapf(ErrMissingBinding, "binding %d", b))
		}
	}
	for _, li := range l.dynamic {
		g.dynamic = append(g.dynamic, dynamic[li])
	}
	return nil
}

func (d *Device) bindingAlignment(t BufferBindingType) uint32 {
	if t == gputypes.BufferBindingTypeUniform {
		return d.limits.MinUniformBufferOffsetAlignment
	}
	return d.limits.MinStorageBufferOffsetAlignment
}

// bindingErr classifies a binding validation error.
// Usage mismatches are resource-state errors wherever they
// are detected.
func bindingErr(op string, err error) error {
	if errors.Is(err, ErrMissingUsage) {
		return stateErr(op, err)
	}
	return configErr(op, err)
}

func (d *Device) validateBufferBinding(b *BufferBinding, bl *BufferBindingLayout) error {
	buf := b.Buffer
	uniform := bl.Type == gputypes.BufferBindingTypeUniform
	need, maxSize := gputypes.BufferUsageStorage, d.limits.MaxStorageBufferBindingSize
	if uniform {
		need, maxSize = gputypes.BufferUsageUniform, d.limits.MaxUniformBufferBindingSize
	}
	if buf.usage&need == 0 {
		return wrapf(ErrMissingUsage, "binding %d", b.Binding)
	}
	if align := uint64(d.bindingAlignment(bl.Type)); b.Offset%align != 0 {
		return wrapf(ErrAlignment, "binding %d: offset %d (alignment %d)", b.Binding, b.Offset, align)
	}
	if b.Offset >= buf.size {
		return wrapf(ErrOutOfBounds, "binding %d: offset %d of %d", b.Binding, b.Offset, buf.size)
	}
	if b.Size == 0 {
		b.Size = buf.size - b.Offset
	}
	switch {
	case b.Size > buf.size-b.Offset:
		return wrapf(ErrOutOfBounds, "binding %d: range [%d, +%d) of %d", b.Binding, b.Offset, b.Size, buf.size)
	case b.Size < bl.MinBindingSize:
		return wrapf(ErrOutOfBounds, "binding %d: size %d below minimum %d", b.Binding, b.Size, bl.MinBindingSize)
	case b.Size > maxSize:
		return wrapf(ErrLimit, "binding %d: size %d", b.Binding, b.Size)
	case !uniform && b.Size%4 != 0:
		return wrapf(ErrAlignment, "binding %d: storage size %d", b.Binding, b.Size)
	}
	return nil
}

func validateTextureBinding(t *TextureBinding, tl *TextureBindingLayout) error {
	v := t.View
	tex := v.tex
	if tex.desc.Usage&gputypes.TextureUsageTextureBinding == 0 {
		return wrapf(ErrMissingUsage, "binding %d", t.Binding)
	}
	if v.desc.Dimension != tl.ViewDimension {
		return wrapf(ErrBindingType, "binding %d: view dimension %d, want %d", t.Binding, v.desc.Dimension, tl.ViewDimension)
	}
	if (tex.desc.SampleCount > 1) != tl.Multisampled {
		return wrapf(ErrBindingType, "binding %d: sample count %d", t.Binding, tex.desc.SampleCount)
	}
	kind := formats[v.desc.Format].Kind
	ok := false
	switch tl.SampleType {
	case gputypes.TextureSampleTypeFloat:
		ok = kind == SampleFloat
	case gputypes.TextureSampleTypeUnfilterableFloat:
		ok = kind == SampleFloat || kind == SampleUnfilterable || kind == SampleDepth
	case gputypes.TextureSampleTypeDepth:
		ok = kind == SampleDepth
	case gputypes.TextureSampleTypeSint:
		ok = kind == SampleSint
	case gputypes.TextureSampleTypeUint:
		ok = kind == SampleUint
	}
	if !ok {
		return wrapf(ErrBindingType, "binding %d: format %s for sample type %d", t.Binding, FormatName(v.desc.Format), tl.SampleType)
	}
	return nil
}

// Layout returns the group's layout.
func (g *BindingGroup) Layout() *BindingGroupLayout { return g.layout }

// LayoutHandle returns the handle of the group's layout.
func (g *BindingGroup) LayoutHandle() LayoutHandle { return g.lh }

// Descriptor returns the group's descriptor, with defaults
// applied.
func (g *BindingGroup) Descriptor() BindingGroupDescriptor { return g.desc }

// Handle returns the backend's handle.
func (g *BindingGroup) Handle() BindingGroupHandle { return g.h }

// Destroy destroys the group, releasing its layout and
// resources.
func (g *BindingGroup) Destroy() error {
	if err := g.kill("BindingGroup.Destroy"); err != nil {
		return err
	}
	g.h.Destroy()
	releaseAll(g.deps...)
	g.dev.forget()
	return nil
}
