// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package gpu

import "github.com/gviegas/hal/wsi"

// Backend is the interface to an underlying implementation.
// It is obtained from a call to Driver.Open, and wrapped by
// a Device. Descriptors passed to Backend methods have been
// validated and have every documented default applied.
// Backends report device loss by returning an error that
// wraps ErrDeviceLost.
type Backend interface {
	// Driver returns the Driver that owns the Backend.
	Driver() Driver

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the Backend.
	Limits() Limits

	// Features returns the supported optional features.
	Features() Features

	// NewBuffer creates a new buffer.
	NewBuffer(desc *BufferDescriptor) (BufferHandle, error)

	// NewTexture creates a new texture.
	NewTexture(desc *TextureDescriptor) (TextureHandle, error)

	// NewTextureView creates a new view of tex.
	NewTextureView(tex TextureHandle, desc *TextureViewDescriptor) (TextureViewHandle, error)

	// NewSampler creates a new sampler.
	NewSampler(desc *SamplerDescriptor) (SamplerHandle, error)

	// NewShaderModule creates a new shader module.
	// The code is opaque to the model.
	NewShaderModule(desc *ShaderModuleDescriptor) (ShaderModuleHandle, error)

	// NewQuerySet creates a new query set.
	NewQuerySet(desc *QuerySetDescriptor) (QuerySetHandle, error)

	// NewBindingGroupLayout creates a new binding group
	// layout.
	NewBindingGroupLayout(desc *BindingGroupLayoutDescriptor) (BindingGroupLayoutHandle, error)

	// NewBindingGroup creates a new binding group.
	NewBindingGroup(layout BindingGroupLayoutHandle, desc *BindingGroupDescriptor) (BindingGroupHandle, error)

	// NewPipelineLayout creates a new pipeline layout.
	NewPipelineLayout(layouts []BindingGroupLayoutHandle) (PipelineLayoutHandle, error)

	// NewRenderPipeline creates a new render pipeline.
	NewRenderPipeline(layout PipelineLayoutHandle, desc *RenderPipelineDescriptor) (RenderPipelineHandle, error)

	// NewComputePipeline creates a new compute pipeline.
	NewComputePipeline(layout PipelineLayoutHandle, desc *ComputePipelineDescriptor) (ComputePipelineHandle, error)

	// SurfaceFormats returns the formats that swapchains
	// of win support.
	SurfaceFormats(win wsi.Window) []TextureFormat

	// PresentModes returns the presentation modes that
	// swapchains of win support.
	PresentModes(win wsi.Window) []PresentMode

	// NewSwapchain creates a new swapchain.
	// old, if not nil, is the handle of the swapchain
	// being replaced. It remains valid until destroyed.
	NewSwapchain(win wsi.Window, desc *SwapchainDescriptor, old SwapchainHandle) (SwapchainHandle, error)

	// Execute executes a batch of command buffers in order.
	// It returns when every command completes.
	// Calls are serialized per queue; calls from
	// different queues may run concurrently.
	Execute(cbs []*CommandBuffer) error

	// WriteBuffer writes data to buf at offset.
	// It is ordered with respect to Execute calls of the
	// same queue.
	WriteBuffer(buf BufferHandle, offset uint64, data []byte) error
}

// Destroyer is the interface that wraps the Destroy method.
// Handles may allocate external memory that is not managed
// by GC, so Destroy must be called to release it.
// The model calls Destroy exactly once per handle.
type Destroyer interface {
	Destroy()
}

// BufferHandle is the backend's buffer.
type BufferHandle interface {
	Destroyer

	// Bytes returns a slice referring to the buffer's
	// host-visible memory, or nil if the buffer is not
	// host visible.
	Bytes() []byte
}

// TextureHandle is the backend's texture.
type TextureHandle interface{ Destroyer }

// TextureViewHandle is the backend's texture view.
type TextureViewHandle interface{ Destroyer }

// SamplerHandle is the backend's sampler.
type SamplerHandle interface{ Destroyer }

// ShaderModuleHandle is the backend's shader module.
type ShaderModuleHandle interface{ Destroyer }

// QuerySetHandle is the backend's query set.
type QuerySetHandle interface{ Destroyer }

// BindingGroupLayoutHandle is the backend's binding group
// layout.
type BindingGroupLayoutHandle interface{ Destroyer }

// BindingGroupHandle is the backend's binding group.
type BindingGroupHandle interface{ Destroyer }

// PipelineLayoutHandle is the backend's pipeline layout.
type PipelineLayoutHandle interface{ Destroyer }

// RenderPipelineHandle is the backend's render pipeline.
type RenderPipelineHandle interface{ Destroyer }

// ComputePipelineHandle is the backend's compute pipeline.
type ComputePipelineHandle interface{ Destroyer }

// SwapchainHandle is the backend's swapchain.
type SwapchainHandle interface {
	Destroyer

	// Textures returns the presentable textures.
	// The model does not destroy them: they are released
	// with the swapchain.
	Textures() []TextureHandle

	// Present displays the texture at index.
	Present(index int) error
}
