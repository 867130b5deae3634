// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gviegas/hal/gpu"
)

// renderPass is the execution state of a render pass.
type renderPass struct {
	begin  *gpu.BeginRenderPassCmd
	r      *raster
	query  *querySet
	active bool
	count  uint64
}

func (p *renderPass) draw(vs vertices, instanceCount, firstInstance uint32) {
	if p.active {
		p.count += p.r.coverage(vs, instanceCount, firstInstance)
	}
}

// Execute implements gpu.Backend.
func (d *Driver) Execute(cbs []*gpu.CommandBuffer) error {
	if err := d.check(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cb := range cbs {
		if err := d.execute(cb); err != nil {
			return fmt.Errorf("soft: command buffer %q: %w", cb.Label(), err)
		}
	}
	return nil
}

func (d *Driver) execute(cb *gpu.CommandBuffer) error {
	var rp *renderPass
	for _, c := range cb.Commands() {
		switch c := c.(type) {
		case *gpu.BeginRenderPassCmd:
			if err := beginRenderPass(c); err != nil {
				return err
			}
			rp = &renderPass{begin: c, r: newRaster(c.Width, c.Height, c.SampleCount)}
			if c.OcclusionQuerySet != nil {
				rp.query = querySetOf(c.OcclusionQuerySet)
			}
			d.writeTimestamps(c.TimestampWrites, false)
		case *gpu.EndRenderPassCmd:
			if err := endRenderPass(rp.begin); err != nil {
				return err
			}
			d.writeTimestamps(c.TimestampWrites, true)
			rp = nil
		case *gpu.BeginComputePassCmd:
			d.writeTimestamps(c.TimestampWrites, false)
		case *gpu.EndComputePassCmd:
			d.writeTimestamps(c.TimestampWrites, true)
		case *gpu.SetRenderPipelineCmd:
			rp.r.pipeline = c.Pipeline
		case *gpu.SetVertexBufferCmd:
			rp.r.vertex[c.Slot] = vertexBinding{c.Buffer, c.Offset}
		case *gpu.SetIndexBufferCmd:
			rp.r.index = indexBinding{c.Buffer, c.Format, c.Offset}
		case *gpu.SetViewportCmd:
			rp.r.viewport = c.Viewport
		case *gpu.SetScissorCmd:
			rp.r.scissor = c.Scissor
		case *gpu.SetComputePipelineCmd, *gpu.SetBindingGroupCmd,
			*gpu.SetBlendConstantCmd, *gpu.SetStencilReferenceCmd:
			// Only consumed by shaders.
		case *gpu.DrawCmd:
			rp.draw(drawVertices(c.VertexCount, c.FirstVertex), c.InstanceCount, c.FirstInstance)
		case *gpu.DrawIndexedCmd:
			rp.draw(rp.r.indexedVertices(c.IndexCount, c.FirstIndex, c.BaseVertex), c.InstanceCount, c.FirstInstance)
		case *gpu.DrawIndirectCmd:
			if err := rp.drawIndirect(c); err != nil {
				return err
			}
		case *gpu.DispatchCmd:
			d.logger().Debug("soft: dispatch", "x", c.X, "y", c.Y, "z", c.Z)
		case *gpu.DispatchIndirectCmd:
			args, err := indirect(c.Buffer, c.Offset, 3)
			if err != nil {
				return err
			}
			d.logger().Debug("soft: dispatch", "x", args[0], "y", args[1], "z", args[2])
		case *gpu.BeginOcclusionQueryCmd:
			rp.active = true
			rp.count = 0
		case *gpu.EndOcclusionQueryCmd:
			rp.query.vals[c.Index] = rp.count
			rp.active = false
		case *gpu.CopyBufferToBufferCmd:
			d.copyBufferToBuffer(c)
		case *gpu.CopyBufferToTextureCmd:
			d.copyBufferToTexture(c)
		case *gpu.CopyTextureToBufferCmd:
			d.copyTextureToBuffer(c)
		case *gpu.CopyTextureToTextureCmd:
			d.copyTextureToTexture(c)
		case *gpu.FillBufferCmd:
			d.fillBuffer(c)
		case *gpu.ResolveQuerySetCmd:
			d.resolveQuerySet(c)
		case *gpu.WriteTimestampCmd:
			querySetOf(c.QuerySet).vals[c.Index] = d.timestamp()
		default:
			return fmt.Errorf("soft: unknown command %T", c)
		}
	}
	return nil
}

func (p *renderPass) drawIndirect(c *gpu.DrawIndirectCmd) error {
	if !c.Indexed {
		args, err := indirect(c.Buffer, c.Offset, 4)
		if err != nil {
			return err
		}
		p.draw(drawVertices(args[0], args[2]), args[1], args[3])
		return nil
	}
	args, err := indirect(c.Buffer, c.Offset, 5)
	if err != nil {
		return err
	}
	p.draw(p.r.indexedVertices(args[0], args[2], int32(args[3])), args[1], args[4])
	return nil
}

// beginRenderPass applies the load operations of the
// pass's attachments.
func beginRenderPass(c *gpu.BeginRenderPassCmd) error {
	for i := range c.ColorAttachments {
		ca := &c.ColorAttachments[i]
		if ca.LoadOp != gpu.LoadClear {
			continue
		}
		v := viewOf(ca.View)
		if err := fillTexels(v.target(), encodeColor(v.desc.Format, ca.ClearValue)); err != nil {
			return err
		}
	}
	ds := c.DepthStencilAttachment
	if ds == nil {
		return nil
	}
	v := viewOf(ds.View)
	f := v.desc.Format
	texel := depthTexel(f, ds.DepthClearValue, ds.StencilClearValue)
	clearDepth := ds.DepthLoadOp == gpu.LoadClear && !ds.DepthReadOnly
	clearStencil := ds.StencilLoadOp == gpu.LoadClear && !ds.StencilReadOnly
	if f != gputypes.TextureFormatDepth24PlusStencil8 {
		if clearDepth {
			return fillTexels(v.target(), texel)
		}
		return nil
	}
	switch {
	case clearDepth && clearStencil:
		return fillTexels(v.target(), texel)
	case clearDepth:
		fillAspect(v.target(), texel[:4], len(texel), 0)
	case clearStencil:
		fillAspect(v.target(), texel[4:5], len(texel), 4)
	}
	return nil
}

// endRenderPass resolves multisampled color attachments.
func endRenderPass(c *gpu.BeginRenderPassCmd) error {
	for i := range c.ColorAttachments {
		ca := &c.ColorAttachments[i]
		if ca.ResolveTarget == nil {
			continue
		}
		if err := resolve(viewOf(ca.ResolveTarget), viewOf(ca.View)); err != nil {
			return err
		}
	}
	return nil
}
