// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu_test

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/hal/gpu"
)

// bindingFixture holds a layout with one slot of each kind
// and resources that satisfy it.
type bindingFixture struct {
	layout  *gpu.BindingGroupLayout
	buf     *gpu.Buffer
	sampler *gpu.Sampler
	view    *gpu.TextureView
}

func newBindingFixture(t *testing.T, dev *gpu.Device) *bindingFixture {
	t.Helper()
	l, err := dev.CreateBindingGroupLayout(&gpu.BindingGroupLayoutDescriptor{
		Label: "material",
		Buffers: []gpu.BufferBindingLayout{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Type:       gputypes.BufferBindingTypeUniform,
		}},
		Samplers: []gpu.SamplerBindingLayout{{Binding: 1, Visibility: gputypes.ShaderStageFragment}},
		Textures: []gpu.TextureBindingLayout{{Binding: 2, Visibility: gputypes.ShaderStageFragment}},
	})
	require.NoError(t, err)
	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{Size: 512, Usage: gputypes.BufferUsageUniform})
	require.NoError(t, err)
	s, err := dev.CreateSampler(&gpu.SamplerDescriptor{})
	require.NoError(t, err)
	tex, err := dev.CreateTexture(&gpu.TextureDescriptor{
		Size:      gpu.Extent3D{Width: 4, Height: 4},
		Dimension: gputypes.TextureDimension2D,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageTextureBinding,
	})
	require.NoError(t, err)
	v, err := tex.CreateView(nil)
	require.NoError(t, err)
	return &bindingFixture{l, buf, s, v}
}

func (f *bindingFixture) desc() *gpu.BindingGroupDescriptor {
	return &gpu.BindingGroupDescriptor{
		Layout:   f.layout,
		Buffers:  []gpu.BufferBinding{{Binding: 0, Buffer: f.buf}},
		Samplers: []gpu.SamplerBinding{{Binding: 1, Sampler: f.sampler}},
		Textures: []gpu.TextureBinding{{Binding: 2, View: f.view}},
	}
}

func TestBindingGroupLayoutDefaults(t *testing.T) {
	dev, _ := newDevice(t)
	f := newBindingFixture(t, dev)
	desc := f.layout.Descriptor()
	require.Len(t, desc.Textures, 1)
	assert.Equal(t, gputypes.TextureSampleTypeFloat, desc.Textures[0].SampleType)
	assert.Equal(t, gputypes.TextureViewDimension2D, desc.Textures[0].ViewDimension)
	assert.Zero(t, f.layout.DynamicOffsetCount())

	l, err := dev.Layout(f.layout.Handle())
	require.NoError(t, err)
	assert.Same(t, f.layout, l)
}

func TestCreateBindingGroupLayout(t *testing.T) {
	dev, _ := newDevice(t)
	vis := gputypes.ShaderStageFragment
	uniform := func(binding uint32, dynamic bool) gpu.BufferBindingLayout {
		return gpu.BufferBindingLayout{
			Binding:          binding,
			Visibility:       vis,
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: dynamic,
		}
	}
	var manyDynamic []gpu.BufferBindingLayout
	for i := range dev.Limits().MaxDynamicUniformBuffersPerPipelineLayout + 1 {
		manyDynamic = append(manyDynamic, uniform(i, true))
	}

	for _, x := range [...]struct {
		name string
		desc gpu.BindingGroupLayoutDescriptor
		err  error
	}{
		{"empty", gpu.BindingGroupLayoutDescriptor{}, nil},
		{"dynamic", gpu.BindingGroupLayoutDescriptor{Buffers: []gpu.BufferBindingLayout{uniform(3, true), uniform(1, true)}}, nil},
		{"duplicate across kinds", gpu.BindingGroupLayoutDescriptor{
			Buffers:  []gpu.BufferBindingLayout{uniform(0, false)},
			Samplers: []gpu.SamplerBindingLayout{{Binding: 0, Visibility: vis}},
		}, gpu.ErrDuplicateBinding},
		{"no visibility", gpu.BindingGroupLayoutDescriptor{
			Samplers: []gpu.SamplerBindingLayout{{Binding: 0}},
		}, gpu.ErrInvalidValue},
		{"binding index limit", gpu.BindingGroupLayoutDescriptor{
			Buffers: []gpu.BufferBindingLayout{uniform(dev.Limits().MaxBindingsPerBindGroup, false)},
		}, gpu.ErrLimit},
		{"writable storage in vertex stage", gpu.BindingGroupLayoutDescriptor{
			Buffers: []gpu.BufferBindingLayout{{
				Visibility: gputypes.ShaderStageVertex,
				Type:       gputypes.BufferBindingTypeStorage,
			}},
		}, gpu.ErrUnsupported},
		{"too many dynamic buffers", gpu.BindingGroupLayoutDescriptor{Buffers: manyDynamic}, gpu.ErrLimit},
		{"multisampled cube", gpu.BindingGroupLayoutDescriptor{
			Textures: []gpu.TextureBindingLayout{{
				Visibility:    vis,
				ViewDimension: gputypes.TextureViewDimensionCube,
				Multisampled:  true,
			}},
		}, gpu.ErrInvalidValue},
	} {
		t.Run(x.name, func(t *testing.T) {
			l, err := dev.CreateBindingGroupLayout(&x.desc)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				assert.ErrorIs(t, err, gpu.ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(x.desc.Buffers), l.DynamicOffsetCount())
			require.NoError(t, l.Destroy())
		})
	}
}

func TestCreateBindingGroup(t *testing.T) {
	dev, _ := newDevice(t)
	f := newBindingFixture(t, dev)
	cmp, err := dev.CreateSampler(&gpu.SamplerDescriptor{Compare: gputypes.CompareFunctionAlways})
	require.NoError(t, err)
	plain, err := dev.CreateBuffer(&gpu.BufferDescriptor{Size: 256, Usage: gputypes.BufferUsageVertex})
	require.NoError(t, err)

	for _, x := range [...]struct {
		name string
		edit func(*gpu.BindingGroupDescriptor)
		err  error
	}{
		{"complete", func(*gpu.BindingGroupDescriptor) {}, nil},
		{"empty", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers, d.Samplers, d.Textures = nil, nil, nil
		}, gpu.ErrMissingBinding},
		{"missing texture", func(d *gpu.BindingGroupDescriptor) { d.Textures = nil }, gpu.ErrMissingBinding},
		{"unknown index", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers = append(d.Buffers, gpu.BufferBinding{Binding: 5, Buffer: f.buf})
		}, gpu.ErrUnknownBinding},
		{"duplicate", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers = append(d.Buffers, d.Buffers[0])
		}, gpu.ErrDuplicateBinding},
		{"wrong kind", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers = nil
			d.Samplers = append(d.Samplers, gpu.SamplerBinding{Binding: 0, Sampler: f.sampler})
		}, gpu.ErrBindingType},
		{"comparison sampler", func(d *gpu.BindingGroupDescriptor) {
			d.Samplers[0].Sampler = cmp
		}, gpu.ErrBindingType},
		{"missing usage", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers[0].Buffer = plain
		}, gpu.ErrMissingUsage},
		{"misaligned offset", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers[0].Offset = 4
		}, gpu.ErrAlignment},
		{"range out of bounds", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers[0].Offset = 256
			d.Buffers[0].Size = 512
		}, gpu.ErrOutOfBounds},
		{"nil buffer", func(d *gpu.BindingGroupDescriptor) {
			d.Buffers[0].Buffer = nil
		}, gpu.ErrNilResource},
	} {
		t.Run(x.name, func(t *testing.T) {
			desc := f.desc()
			x.edit(desc)
			g, err := dev.CreateBindingGroup(desc)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				if x.err == gpu.ErrMissingUsage {
					assert.ErrorIs(t, err, gpu.ErrResourceState)
					assert.NotErrorIs(t, err, gpu.ErrConfig)
				} else {
					assert.ErrorIs(t, err, gpu.ErrConfig)
				}
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			assert.Same(t, f.layout, g.Layout())
			assert.Equal(t, f.layout.Handle(), g.LayoutHandle())
			require.NoError(t, g.Destroy())
		})
	}

	_, err = dev.CreateBindingGroup(&gpu.BindingGroupDescriptor{})
	assert.ErrorIs(t, err, gpu.ErrNilLayout)
	_, err = dev.CreateBindingGroup(nil)
	assert.ErrorIs(t, err, gpu.ErrNilDescriptor)
}

func TestBindingGroupLifetime(t *testing.T) {
	dev, _ := newDevice(t)
	f := newBindingFixture(t, dev)
	g, err := dev.CreateBindingGroup(f.desc())
	require.NoError(t, err)

	assert.ErrorIs(t, f.buf.Destroy(), gpu.ErrInUse)
	assert.ErrorIs(t, f.sampler.Destroy(), gpu.ErrInUse)
	assert.ErrorIs(t, f.view.Destroy(), gpu.ErrInUse)
	assert.ErrorIs(t, f.layout.Destroy(), gpu.ErrInUse)
	assert.ErrorIs(t, f.view.Texture().Destroy(), gpu.ErrInUse)

	require.NoError(t, g.Destroy())
	assert.ErrorIs(t, g.Destroy(), gpu.ErrDestroyed)

	tex := f.view.Texture()
	require.NoError(t, f.view.Destroy())
	require.NoError(t, tex.Destroy())
	require.NoError(t, f.sampler.Destroy())
	require.NoError(t, f.buf.Destroy())

	h := f.layout.Handle()
	require.NoError(t, f.layout.Destroy())
	_, err = dev.Layout(h)
	assert.ErrorIs(t, err, gpu.ErrDestroyed)
	assert.Zero(t, dev.LiveObjects())

	_, err = dev.CreateBindingGroup(f.desc())
	assert.ErrorIs(t, err, gpu.ErrDestroyed)
}

func TestPipelineLayout(t *testing.T) {
	dev, _ := newDevice(t)
	f := newBindingFixture(t, dev)

	pl := newPipelineLayout(t, dev, f.layout, f.layout)
	assert.Equal(t, 2, pl.GroupCount())
	assert.Equal(t, []gpu.LayoutHandle{f.layout.Handle(), f.layout.Handle()}, pl.Layouts())
	assert.ErrorIs(t, f.layout.Destroy(), gpu.ErrInUse)
	require.NoError(t, pl.Destroy())

	ls := make([]*gpu.BindingGroupLayout, dev.Limits().MaxBindGroups+1)
	for i := range ls {
		ls[i] = f.layout
	}
	_, err := dev.CreatePipelineLayout(&gpu.PipelineLayoutDescriptor{Layouts: ls})
	assert.ErrorIs(t, err, gpu.ErrLimit)
	_, err = dev.CreatePipelineLayout(&gpu.PipelineLayoutDescriptor{Layouts: []*gpu.BindingGroupLayout{nil}})
	assert.ErrorIs(t, err, gpu.ErrNilLayout)

	other, _ := newDevice(t)
	_, err = other.CreatePipelineLayout(&gpu.PipelineLayoutDescriptor{Layouts: []*gpu.BindingGroupLayout{f.layout}})
	assert.ErrorIs(t, err, gpu.ErrWrongDevice)
}
