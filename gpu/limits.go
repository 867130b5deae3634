// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import "fmt"

// Limits describes the implementation limits.
// Backends report their own; a Config may request lower
// maximums (or greater alignments) for a Device.
type Limits struct {
	// Maximum width of 1D textures.
	MaxTextureDimension1D uint32 `toml:"max_texture_dimension_1d" yaml:"max_texture_dimension_1d"`
	// Maximum width and height of 2D textures.
	MaxTextureDimension2D uint32 `toml:"max_texture_dimension_2d" yaml:"max_texture_dimension_2d"`
	// Maximum width, height and depth of 3D textures.
	MaxTextureDimension3D uint32 `toml:"max_texture_dimension_3d" yaml:"max_texture_dimension_3d"`
	// Maximum number of layers in a 2D texture.
	MaxTextureArrayLayers uint32 `toml:"max_texture_array_layers" yaml:"max_texture_array_layers"`

	// Maximum number of binding groups in a pipeline
	// layout.
	MaxBindGroups uint32 `toml:"max_bind_groups" yaml:"max_bind_groups"`
	// Binding indices must be less than this value.
	MaxBindingsPerBindGroup uint32 `toml:"max_bindings_per_bind_group" yaml:"max_bindings_per_bind_group"`
	// Maximum number of dynamic-offset buffers of each
	// type in a pipeline layout.
	MaxDynamicUniformBuffersPerPipelineLayout uint32 `toml:"max_dynamic_uniform_buffers_per_pipeline_layout" yaml:"max_dynamic_uniform_buffers_per_pipeline_layout"`
	MaxDynamicStorageBuffersPerPipelineLayout uint32 `toml:"max_dynamic_storage_buffers_per_pipeline_layout" yaml:"max_dynamic_storage_buffers_per_pipeline_layout"`
	// Maximum number of bindings of each type visible
	// to a single shader stage in a pipeline layout.
	MaxSampledTexturesPerShaderStage uint32 `toml:"max_sampled_textures_per_shader_stage" yaml:"max_sampled_textures_per_shader_stage"`
	MaxSamplersPerShaderStage        uint32 `toml:"max_samplers_per_shader_stage" yaml:"max_samplers_per_shader_stage"`
	MaxStorageBuffersPerShaderStage  uint32 `toml:"max_storage_buffers_per_shader_stage" yaml:"max_storage_buffers_per_shader_stage"`
	MaxUniformBuffersPerShaderStage  uint32 `toml:"max_uniform_buffers_per_shader_stage" yaml:"max_uniform_buffers_per_shader_stage"`
	// Maximum size of buffer bindings.
	MaxUniformBufferBindingSize uint64 `toml:"max_uniform_buffer_binding_size" yaml:"max_uniform_buffer_binding_size"`
	MaxStorageBufferBindingSize uint64 `toml:"max_storage_buffer_binding_size" yaml:"max_storage_buffer_binding_size"`
	// Required alignment of buffer binding offsets
	// (static and dynamic).
	MinUniformBufferOffsetAlignment uint32 `toml:"min_uniform_buffer_offset_alignment" yaml:"min_uniform_buffer_offset_alignment"`
	MinStorageBufferOffsetAlignment uint32 `toml:"min_storage_buffer_offset_alignment" yaml:"min_storage_buffer_offset_alignment"`

	// Maximum number of vertex buffer slots.
	MaxVertexBuffers uint32 `toml:"max_vertex_buffers" yaml:"max_vertex_buffers"`
	// Maximum number of vertex attributes.
	// Shader locations must be less than this value.
	MaxVertexAttributes uint32 `toml:"max_vertex_attributes" yaml:"max_vertex_attributes"`
	// Maximum stride of a vertex buffer layout.
	MaxVertexBufferArrayStride uint32 `toml:"max_vertex_buffer_array_stride" yaml:"max_vertex_buffer_array_stride"`
	// Maximum number of color attachments.
	MaxColorAttachments uint32 `toml:"max_color_attachments" yaml:"max_color_attachments"`

	// Maximum size of a buffer.
	MaxBufferSize uint64 `toml:"max_buffer_size" yaml:"max_buffer_size"`
	// Maximum number of workgroups in each dimension
	// of a dispatch.
	MaxComputeWorkgroupsPerDimension uint32 `toml:"max_compute_workgroups_per_dimension" yaml:"max_compute_workgroups_per_dimension"`
}

// DefaultLimits returns the baseline limits that every
// backend must support.
func DefaultLimits() Limits {
	return Limits{
		MaxTextureDimension1D:                     8192,
		MaxTextureDimension2D:                     8192,
		MaxTextureDimension3D:                     2048,
		MaxTextureArrayLayers:                     256,
		MaxBindGroups:                             4,
		MaxBindingsPerBindGroup:                   1000,
		MaxDynamicUniformBuffersPerPipelineLayout: 8,
		MaxDynamicStorageBuffersPerPipelineLayout: 4,
		MaxSampledTexturesPerShaderStage:          16,
		MaxSamplersPerShaderStage:                 16,
		MaxStorageBuffersPerShaderStage:           8,
		MaxUniformBuffersPerShaderStage:           12,
		MaxUniformBufferBindingSize:               64 << 10,
		MaxStorageBufferBindingSize:               128 << 20,
		MinUniformBufferOffsetAlignment:           256,
		MinStorageBufferOffsetAlignment:           256,
		MaxVertexBuffers:                          8,
		MaxVertexAttributes:                       16,
		MaxVertexBufferArrayStride:                2048,
		MaxColorAttachments:                       8,
		MaxBufferSize:                             256 << 20,
		MaxComputeWorkgroupsPerDimension:          65535,
	}
}

type limitField struct {
	name  string
	req   uint64
	have  uint64
	align bool
	out   func(uint64)
}

func (l *Limits) fields(have *Limits) []limitField {
	u32 := func(p *uint32) func(uint64) { return func(v uint64) { *p = uint32(v) } }
	u64 := func(p *uint64) func(uint64) { return func(v uint64) { *p = v } }
	return []limitField{
		{"MaxTextureDimension1D", uint64(l.MaxTextureDimension1D), uint64(have.MaxTextureDimension1D), false, u32(&l.MaxTextureDimension1D)},
		{"MaxTextureDimension2D", uint64(l.MaxTextureDimension2D), uint64(have.MaxTextureDimension2D), false, u32(&l.MaxTextureDimension2D)},
		{"MaxTextureDimension3D", uint64(l.MaxTextureDimension3D), uint64(have.MaxTextureDimension3D), false, u32(&l.MaxTextureDimension3D)},
		{"MaxTextureArrayLayers", uint64(l.MaxTextureArrayLayers), uint64(have.MaxTextureArrayLayers), false, u32(&l.MaxTextureArrayLayers)},
		{"MaxBindGroups", uint64(l.MaxBindGroups), uint64(have.MaxBindGroups), false, u32(&l.MaxBindGroups)},
		{"MaxBindingsPerBindGroup", uint64(l.MaxBindingsPerBindGroup), uint64(have.MaxBindingsPerBindGroup), false, u32(&l.MaxBindingsPerBindGroup)},
		{"MaxDynamicUniformBuffersPerPipelineLayout", uint64(l.MaxDynamicUniformBuffersPerPipelineLayout), uint64(have.MaxDynamicUniformBuffersPerPipelineLayout), false, u32(&l.MaxDynamicUniformBuffersPerPipelineLayout)},
		{"MaxDynamicStorageBuffersPerPipelineLayout", uint64(l.MaxDynamicStorageBuffersPerPipelineLayout), uint64(have.MaxDynamicStorageBuffersPerPipelineLayout), false, u32(&l.MaxDynamicStorageBuffersPerPipelineLayout)},
		{"MaxSampledTexturesPerShaderStage", uint64(l.MaxSampledTexturesPerShaderStage), uint64(have.MaxSampledTexturesPerShaderStage), false, u32(&l.MaxSampledTexturesPerShaderStage)},
		{"MaxSamplersPerShaderStage", uint64(l.MaxSamplersPerShaderStage), uint64(have.MaxSamplersPerShaderStage), false, u32(&l.MaxSamplersPerShaderStage)},
		{"MaxStorageBuffersPerShaderStage", uint64(l.MaxStorageBuffersPerShaderStage), uint64(have.MaxStorageBuffersPerShaderStage), false, u32(&l.MaxStorageBuffersPerShaderStage)},
		{"MaxUniformBuffersPerShaderStage", uint64(l.MaxUniformBuffersPerShaderStage), uint64(have.MaxUniformBuffersPerShaderStage), false, u32(&l.MaxUniformBuffersPerShaderStage)},
		{"MaxUniformBufferBindingSize", l.MaxUniformBufferBindingSize, have.MaxUniformBufferBindingSize, false, u64(&l.MaxUniformBufferBindingSize)},
		{"MaxStorageBufferBindingSize", l.MaxStorageBufferBindingSize, have.MaxStorageBufferBindingSize, false, u64(&l.MaxStorageBufferBindingSize)},
		{"MinUniformBufferOffsetAlignment", uint64(l.MinUniformBufferOffsetAlignment), uint64(have.MinUniformBufferOffsetAlignment), true, u32(&l.MinUniformBufferOffsetAlignment)},
		{"MinStorageBufferOffsetAlignment", uint64(l.MinStorageBufferOffsetAlignment), uint64(have.MinStorageBufferOffsetAlignment), true, u32(&l.MinStorageBufferOffsetAlignment)},
		{"MaxVertexBuffers", uint64(l.MaxVertexBuffers), uint64(have.MaxVertexBuffers), false, u32(&l.MaxVertexBuffers)},
		{"MaxVertexAttributes", uint64(l.MaxVertexAttributes), uint64(have.MaxVertexAttributes), false, u32(&l.MaxVertexAttributes)},
		{"MaxVertexBufferArrayStride", uint64(l.MaxVertexBufferArrayStride), uint64(have.MaxVertexBufferArrayStride), false, u32(&l.MaxVertexBufferArrayStride)},
		{"MaxColorAttachments", uint64(l.MaxColorAttachments), uint64(have.MaxColorAttachments), false, u32(&l.MaxColorAttachments)},
		{"MaxBufferSize", l.MaxBufferSize, have.MaxBufferSize, false, u64(&l.MaxBufferSize)},
		{"MaxComputeWorkgroupsPerDimension", uint64(l.MaxComputeWorkgroupsPerDimension), uint64(have.MaxComputeWorkgroupsPerDimension), false, u32(&l.MaxComputeWorkgroupsPerDimension)},
	}
}

// Resolve returns the limits that result from requesting l
// from a backend that supports have.
// Zero fields in l select the backend's value.
// Maximums above have and alignments below have (or not a
// power of two) are errors.
func (l Limits) Resolve(have Limits) (Limits, error) {
	res := l
	for _, f := range res.fields(&have) {
		switch {
		case f.req == 0:
			f.out(f.have)
		case f.align && f.req&(f.req-1) != 0:
			return Limits{}, wrapf(ErrAlignment, "%s (%d) is not a power of two", f.name, f.req)
		case f.align && f.req < f.have:
			return Limits{}, wrapf(ErrLimit, "%s (%d) below backend minimum (%d)", f.name, f.req, f.have)
		case !f.align && f.req > f.have:
			return Limits{}, wrapf(ErrLimit, "%s (%d) above backend maximum (%d)", f.name, f.req, f.have)
		}
	}
	return res, nil
}

// String implements fmt.Stringer.
func (l Limits) String() string {
	var s string
	for _, f := range l.fields(&l) {
		s += fmt.Sprintf("%s: %d\n", f.name, f.req)
	}
	return s
}
