// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"sync"
	"sync/atomic"
)

// Command is a recorded command.
// The concrete types are the *Cmd pointer types of this
// package; backends switch on them in Execute.
type Command interface {
	command()
}

type cmd struct{}

func (cmd) command() {}

// BeginRenderPassCmd begins a render pass.
// Attachment lists are copies of the ones given to
// BeginRenderPass, with defaults applied.
type BeginRenderPassCmd struct {
	cmd
	Label                  string
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
	OcclusionQuerySet      *QuerySet
	TimestampWrites        *PassTimestampWrites
	Width, Height          uint32
	SampleCount            uint32
}

// EndRenderPassCmd ends the current render pass.
type EndRenderPassCmd struct {
	cmd
	TimestampWrites *PassTimestampWrites
}

// BeginComputePassCmd begins a compute pass.
type BeginComputePassCmd struct {
	cmd
	Label           string
	TimestampWrites *PassTimestampWrites
}

// EndComputePassCmd ends the current compute pass.
type EndComputePassCmd struct {
	cmd
	TimestampWrites *PassTimestampWrites
}

// SetRenderPipelineCmd binds a render pipeline.
type SetRenderPipelineCmd struct {
	cmd
	Pipeline *RenderPipeline
}

// SetComputePipelineCmd binds a compute pipeline.
type SetComputePipelineCmd struct {
	cmd
	Pipeline *ComputePipeline
}

// SetBindingGroupCmd binds a binding group.
type SetBindingGroupCmd struct {
	cmd
	Index          uint32
	Group          *BindingGroup
	DynamicOffsets []uint32
}

// SetVertexBufferCmd binds a vertex buffer range.
type SetVertexBufferCmd struct {
	cmd
	Slot   uint32
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

// SetIndexBufferCmd binds an index buffer range.
type SetIndexBufferCmd struct {
	cmd
	Buffer *Buffer
	Format IndexFormat
	Offset uint64
	Size   uint64
}

// SetViewportCmd sets the viewport.
type SetViewportCmd struct {
	cmd
	Viewport Viewport
}

// SetScissorCmd sets the scissor rectangle.
type SetScissorCmd struct {
	cmd
	Scissor Scissor
}

// SetBlendConstantCmd sets the blend constant.
type SetBlendConstantCmd struct {
	cmd
	Color Color
}

// SetStencilReferenceCmd sets the stencil reference value.
type SetStencilReferenceCmd struct {
	cmd
	Reference uint32
}

// DrawCmd draws primitives.
type DrawCmd struct {
	cmd
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// DrawIndexedCmd draws indexed primitives.
type DrawIndexedCmd struct {
	cmd
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// DrawIndirectCmd draws primitives with arguments read from
// a buffer at execution time.
// The arguments are laid out as DrawCmd's (or
// DrawIndexedCmd's if Indexed is set) fields, in order,
// as 32-bit little-endian integers.
type DrawIndirectCmd struct {
	cmd
	Indexed bool
	Buffer  *Buffer
	Offset  uint64
}

// DispatchCmd dispatches compute workgroups.
type DispatchCmd struct {
	cmd
	X, Y, Z uint32
}

// DispatchIndirectCmd dispatches compute workgroups with
// counts read from a buffer at execution time.
type DispatchIndirectCmd struct {
	cmd
	Buffer *Buffer
	Offset uint64
}

// BeginOcclusionQueryCmd begins an occlusion query.
type BeginOcclusionQueryCmd struct {
	cmd
	QuerySet *QuerySet
	Index    uint32
}

// EndOcclusionQueryCmd ends the active occlusion query.
type EndOcclusionQueryCmd struct {
	cmd
	QuerySet *QuerySet
	Index    uint32
}

// CopyBufferToBufferCmd copies between buffers.
type CopyBufferToBufferCmd struct {
	cmd
	Src       *Buffer
	SrcOffset uint64
	Dst       *Buffer
	DstOffset uint64
	Size      uint64
}

// CopyBufferToTextureCmd copies from a buffer to a texture.
type CopyBufferToTextureCmd struct {
	cmd
	Src  ImageCopyBuffer
	Dst  ImageCopyTexture
	Size Extent3D
}

// CopyTextureToBufferCmd copies from a texture to a buffer.
type CopyTextureToBufferCmd struct {
	cmd
	Src  ImageCopyTexture
	Dst  ImageCopyBuffer
	Size Extent3D
}

// CopyTextureToTextureCmd copies between textures.
type CopyTextureToTextureCmd struct {
	cmd
	Src  ImageCopyTexture
	Dst  ImageCopyTexture
	Size Extent3D
}

// FillBufferCmd fills a buffer range with a byte value.
type FillBufferCmd struct {
	cmd
	Buffer *Buffer
	Offset uint64
	Size   uint64
	Value  byte
}

// ResolveQuerySetCmd copies query results to a buffer.
type ResolveQuerySetCmd struct {
	cmd
	QuerySet   *QuerySet
	FirstQuery uint32
	QueryCount uint32
	Dst        *Buffer
	DstOffset  uint64
}

// WriteTimestampCmd writes a timestamp.
type WriteTimestampCmd struct {
	cmd
	QuerySet *QuerySet
	Index    uint32
}

type cbState int32

const (
	cbReady cbState = iota
	cbSubmitted
	cbDestroyed
)

// CommandBuffer is a finished, immutable recording.
// It is consumed by exactly one Queue.Submit call.
// It retains every object that its commands mention until
// the submission completes.
type CommandBuffer struct {
	dev   *Device
	label string
	cmds  []Command
	refs  map[*object]struct{}
	bufs  map[*Buffer]bool
	state atomic.Int32
	once  sync.Once
}

// Commands returns the recorded commands.
// The slice must not be modified.
func (cb *CommandBuffer) Commands() []Command { return cb.cmds }

// Label returns the debug label.
func (cb *CommandBuffer) Label() string { return cb.label }

// Submitted reports whether cb was submitted.
func (cb *CommandBuffer) Submitted() bool { return cbState(cb.state.Load()) == cbSubmitted }

// Destroy discards a command buffer that was not submitted,
// releasing the objects it references.
func (cb *CommandBuffer) Destroy() error {
	const op = "CommandBuffer.Destroy"
	if !cb.state.CompareAndSwap(int32(cbReady), int32(cbDestroyed)) {
		if cbState(cb.state.Load()) == cbSubmitted {
			return stateErr(op, ErrConsumed)
		}
		return stateErr(op, ErrDestroyed)
	}
	cb.releaseRefs()
	return nil
}

func (cb *CommandBuffer) releaseRefs() {
	cb.once.Do(func() {
		for o := range cb.refs {
			o.release()
		}
		cb.refs = nil
	})
}
