// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu_test

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/hal/gpu"
)

// Positions, in clip space, of triangles drawn into
// 8x8 targets.
var (
	// Covers the whole target.
	fullScreen = []float32{-1, -1, 3, -1, -1, 3}
	// Covers the lower-left half, diagonal included.
	halfScreen = []float32{-1, -1, 1, -1, -1, 1}
	// Lies outside of the target.
	offScreen = []float32{2, 2, 3, 2, 2, 3}
)

func newDataBuffer(t *testing.T, dev *gpu.Device, usage gpu.BufferUsage, data []byte) *gpu.Buffer {
	t.Helper()
	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Size:             uint64(len(data)),
		Usage:            usage,
		MappedAtCreation: true,
	})
	require.NoError(t, err)
	copy(buf.MappedRange(), data)
	require.NoError(t, buf.Unmap())
	return buf
}

func newDepthTarget(t *testing.T, dev *gpu.Device, f gpu.TextureFormat, w, h uint32) *gpu.TextureView {
	t.Helper()
	tex, err := dev.CreateTexture(&gpu.TextureDescriptor{
		Label:     "depth",
		Size:      gpu.Extent3D{Width: w, Height: h},
		Dimension: gputypes.TextureDimension2D,
		Format:    f,
		Usage:     gputypes.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	v, err := tex.CreateView(nil)
	require.NoError(t, err)
	return v
}

func newMultisampledTarget(t *testing.T, dev *gpu.Device, f gpu.TextureFormat, w, h uint32) *gpu.TextureView {
	t.Helper()
	tex, err := dev.CreateTexture(&gpu.TextureDescriptor{
		Label:       "msaa",
		Size:        gpu.Extent3D{Width: w, Height: h},
		Dimension:   gputypes.TextureDimension2D,
		Format:      f,
		Usage:       gputypes.TextureUsageRenderAttachment,
		SampleCount: 4,
	})
	require.NoError(t, err)
	v, err := tex.CreateView(nil)
	require.NoError(t, err)
	return v
}

func depthPass(color, depth *gpu.TextureView) *gpu.RenderPassDescriptor {
	desc := colorPass(color)
	desc.DepthStencilAttachment = &gpu.RenderPassDepthStencilAttachment{
		View:            depth,
		DepthLoadOp:     gpu.LoadClear,
		DepthStoreOp:    gpu.StoreStore,
		DepthClearValue: 1,
	}
	return desc
}

func TestRenderPassCompatibility(t *testing.T) {
	dev, _ := newDevice(t)
	const rgba, bgra = gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm
	_, color := newTarget(t, dev, rgba, 8, 8)
	_, color2 := newTarget(t, dev, rgba, 8, 8)
	_, other := newTarget(t, dev, bgra, 8, 8)
	d32 := newDepthTarget(t, dev, gputypes.TextureFormatDepth32Float, 8, 8)
	d24 := newDepthTarget(t, dev, gputypes.TextureFormatDepth24Plus, 8, 8)
	ms := newMultisampledTarget(t, dev, rgba, 8, 8)

	plain := newPipeline(t, dev, pipelineDesc(t, dev, rgba))
	desc := pipelineDesc(t, dev, rgba)
	desc.DepthStencil = &gpu.DepthStencilState{Format: gputypes.TextureFormatDepth32Float}
	depth := newPipeline(t, dev, desc)

	two := colorPass(color)
	two.ColorAttachments = append(two.ColorAttachments, gpu.RenderPassColorAttachment{
		View:    color2,
		LoadOp:  gpu.LoadLoad,
		StoreOp: gpu.StoreStore,
	})

	for _, x := range [...]struct {
		name     string
		pass     *gpu.RenderPassDescriptor
		pipeline *gpu.RenderPipeline
		err      error
	}{
		{"color", colorPass(color), plain, nil},
		{"color and depth", depthPass(color, d32), depth, nil},
		{"depth attachment without depth state", depthPass(color, d32), plain, gpu.ErrIncompatible},
		{"depth state without attachment", colorPass(color), depth, gpu.ErrIncompatible},
		{"depth format", depthPass(color, d24), depth, gpu.ErrIncompatible},
		{"color format", colorPass(other), plain, gpu.ErrIncompatible},
		{"color count", two, plain, gpu.ErrIncompatible},
		{"sample count", colorPass(ms), plain, gpu.ErrIncompatible},
	} {
		t.Run(x.name, func(t *testing.T) {
			// Through the pass descriptor.
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			pass := *x.pass
			pass.Pipeline = x.pipeline
			rp, err := e.BeginRenderPass(&pass)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				assert.ErrorIs(t, err, gpu.ErrResourceState)
				assert.Nil(t, rp)
				_, err = e.Finish()
				assert.ErrorIs(t, err, x.err)
			} else {
				require.NoError(t, err)
				require.NoError(t, rp.End())
				cb, err := e.Finish()
				require.NoError(t, err)
				require.NoError(t, cb.Destroy())
			}

			// Through SetPipeline.
			e, err = dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			rp, err = e.BeginRenderPass(x.pass)
			require.NoError(t, err)
			err = rp.SetPipeline(x.pipeline)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				assert.ErrorIs(t, e.Err(), x.err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, rp.End())
			_, err = e.Finish()
			require.NoError(t, err)
		})
	}
}

func TestRenderPassAttachments(t *testing.T) {
	dev, _ := newDevice(t)
	const rgba = gputypes.TextureFormatRGBA8Unorm
	_, small := newTarget(t, dev, rgba, 4, 4)
	_, large := newTarget(t, dev, rgba, 8, 8)
	d32 := newDepthTarget(t, dev, gputypes.TextureFormatDepth32Float, 8, 8)
	sampled, err := dev.CreateTexture(&gpu.TextureDescriptor{
		Size:      gpu.Extent3D{Width: 8, Height: 8},
		Dimension: gputypes.TextureDimension2D,
		Format:    rgba,
		Usage:     gputypes.TextureUsageTextureBinding,
	})
	require.NoError(t, err)
	sv, err := sampled.CreateView(nil)
	require.NoError(t, err)

	mismatch := colorPass(large)
	mismatch.ColorAttachments = append(mismatch.ColorAttachments, gpu.RenderPassColorAttachment{View: small})
	readOnlyClear := depthPass(large, d32)
	readOnlyClear.DepthStencilAttachment.DepthReadOnly = true
	badClear := depthPass(large, d32)
	badClear.DepthStencilAttachment.DepthClearValue = 2

	for _, x := range [...]struct {
		name string
		desc *gpu.RenderPassDescriptor
		err  error
	}{
		{"no attachments", &gpu.RenderPassDescriptor{}, gpu.ErrInvalidValue},
		{"nil view", colorPass(nil), gpu.ErrNilResource},
		{"size mismatch", mismatch, gpu.ErrInvalidValue},
		{"depth as color", colorPass(d32), gpu.ErrUnsupported},
		{"color as depth", depthPass(large, large), gpu.ErrUnsupported},
		{"missing usage", colorPass(sv), gpu.ErrMissingUsage},
		{"read-only depth cleared", readOnlyClear, gpu.ErrInvalidValue},
		{"depth clear value", badClear, gpu.ErrInvalidValue},
	} {
		t.Run(x.name, func(t *testing.T) {
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			_, err = e.BeginRenderPass(x.desc)
			assert.ErrorIs(t, err, x.err)
			assert.Error(t, e.Err())
		})
	}

	// Depth-only passes are allowed.
	e, err := dev.CreateCommandEncoder("depth only")
	require.NoError(t, err)
	rp, err := e.BeginRenderPass(&gpu.RenderPassDescriptor{
		DepthStencilAttachment: depthPass(large, d32).DepthStencilAttachment,
	})
	require.NoError(t, err)
	require.NoError(t, rp.End())
	cb, err := e.Finish()
	require.NoError(t, err)
	submit(t, dev, cb)
}

func TestClearColor(t *testing.T) {
	dev, _ := newDevice(t)
	const w, h = 4, 4
	tex, view := newTarget(t, dev, gputypes.TextureFormatRGBA8Unorm, w, h)
	dst := newCopyBuffer(t, dev, gpu.BytesPerRowAlignment*h)

	cb, err := dev.CreateCommandBuffer("clear", func(e *gpu.CommandEncoder) error {
		desc := colorPass(view)
		desc.ColorAttachments[0].ClearValue = gpu.Color{R: 0, G: 1, B: 0, A: 1}
		rp, err := e.BeginRenderPass(desc)
		if err != nil {
			return err
		}
		if err := rp.End(); err != nil {
			return err
		}
		return e.CopyTextureToBuffer(
			&gpu.ImageCopyTexture{Texture: tex},
			&gpu.ImageCopyBuffer{Buffer: dst, BytesPerRow: gpu.BytesPerRowAlignment},
			gpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1})
	})
	require.NoError(t, err)
	submit(t, dev, cb)

	got := readBuffer(t, dev, dst, gpu.BytesPerRowAlignment*h)
	for y := range h {
		row := got[y*gpu.BytesPerRowAlignment:]
		for x := range w {
			assert.Equal(t, []byte{0, 255, 0, 255}, row[x*4:x*4+4], "texel (%d, %d)", x, y)
		}
	}
}

func TestVertexBufferBounds(t *testing.T) {
	dev, _ := newDevice(t)
	const f = gputypes.TextureFormatRGBA8Unorm
	_, view := newTarget(t, dev, f, 8, 8)
	desc := pipelineDesc(t, dev, f)
	desc.Vertex.Buffers = []gpu.VertexBufferLayout{{
		ArrayStride: 4,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  []gpu.VertexAttribute{{Format: gputypes.VertexFormatFloat32}},
	}}
	p := newPipeline(t, dev, desc)
	vb := newVertexBuffer(t, dev, 0, 0, 0)

	for _, x := range [...]struct {
		name        string
		count       uint32
		first       uint32
		instances   uint32
		err         error
		bindVertices bool
	}{
		{"one vertex", 1, 0, 1, nil, true},
		{"every vertex", 3, 0, 1, nil, true},
		{"last vertex", 1, 2, 1, nil, true},
		{"past the end", 4, 0, 1, gpu.ErrOutOfBounds, true},
		{"first past the end", 1, 3, 1, gpu.ErrOutOfBounds, true},
		{"no vertices", 0, 100, 1, nil, true},
		{"many instances", 3, 0, 100, nil, true},
		{"unbound", 1, 0, 1, gpu.ErrUnbound, false},
	} {
		t.Run(x.name, func(t *testing.T) {
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			desc := colorPass(view)
			desc.Pipeline = p
			rp, err := e.BeginRenderPass(desc)
			require.NoError(t, err)
			if x.bindVertices {
				require.NoError(t, rp.SetVertexBuffer(0, vb, 0, 0))
			}
			err = rp.Draw(x.count, x.instances, x.first, 0)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, rp.End())
			cb, err := e.Finish()
			require.NoError(t, err)
			submit(t, dev, cb)
		})
	}
}

func TestSetVertexBufferErrors(t *testing.T) {
	dev, _ := newDevice(t)
	_, view := newTarget(t, dev, gputypes.TextureFormatRGBA8Unorm, 8, 8)
	vb := newVertexBuffer(t, dev, fullScreen...)
	cpy := newCopyBuffer(t, dev, 64)

	for _, x := range [...]struct {
		name string
		slot uint32
		buf  *gpu.Buffer
		off  uint64
		size uint64
		err  error
	}{
		{"slot limit", dev.Limits().MaxVertexBuffers, vb, 0, 0, gpu.ErrLimit},
		{"nil buffer", 0, nil, 0, 0, gpu.ErrNilResource},
		{"missing usage", 0, cpy, 0, 0, gpu.ErrMissingUsage},
		{"unaligned offset", 0, vb, 2, 0, gpu.ErrAlignment},
		{"out of bounds", 0, vb, 8, 24, gpu.ErrOutOfBounds},
	} {
		t.Run(x.name, func(t *testing.T) {
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			rp, err := e.BeginRenderPass(colorPass(view))
			require.NoError(t, err)
			assert.ErrorIs(t, rp.SetVertexBuffer(x.slot, x.buf, x.off, x.size), x.err)
		})
	}
}

func TestDrawBindings(t *testing.T) {
	dev, _ := newDevice(t)
	const f = gputypes.TextureFormatRGBA8Unorm
	_, view := newTarget(t, dev, f, 8, 8)
	fx := newBindingFixture(t, dev)
	group, err := dev.CreateBindingGroup(fx.desc())
	require.NoError(t, err)

	// A layout equal in content is still a distinct layout.
	ld := fx.layout.Descriptor()
	otherLayout, err := dev.CreateBindingGroupLayout(&ld)
	require.NoError(t, err)
	otherDesc := fx.desc()
	otherDesc.Layout = otherLayout
	other, err := dev.CreateBindingGroup(otherDesc)
	require.NoError(t, err)

	desc := pipelineDesc(t, dev, f)
	desc.Layout = newPipelineLayout(t, dev, fx.layout)
	p := newPipeline(t, dev, desc)
	vb := newVertexBuffer(t, dev, fullScreen...)

	for _, x := range [...]struct {
		name  string
		group *gpu.BindingGroup
		err   error
	}{
		{"bound", group, nil},
		{"unbound", nil, gpu.ErrUnbound},
		{"other layout", other, gpu.ErrLayoutMismatch},
	} {
		t.Run(x.name, func(t *testing.T) {
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			rp, err := e.BeginRenderPass(colorPass(view))
			require.NoError(t, err)
			require.NoError(t, rp.SetPipeline(p))
			require.NoError(t, rp.SetVertexBuffer(0, vb, 0, 0))
			if x.group != nil {
				require.NoError(t, rp.SetBindingGroup(0, x.group, nil))
			}
			err = rp.Draw(3, 1, 0, 0)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				assert.ErrorIs(t, err, gpu.ErrResourceState)
				return
			}
			require.NoError(t, err)
			require.NoError(t, rp.End())
			cb, err := e.Finish()
			require.NoError(t, err)
			submit(t, dev, cb)
		})
	}

	e, err := dev.CreateCommandEncoder("")
	require.NoError(t, err)
	rp, err := e.BeginRenderPass(colorPass(view))
	require.NoError(t, err)
	assert.ErrorIs(t, rp.SetBindingGroup(dev.Limits().MaxBindGroups, group, nil), gpu.ErrLimit)
}

func TestViewportScissor(t *testing.T) {
	dev, _ := newDevice(t)
	_, view := newTarget(t, dev, gputypes.TextureFormatRGBA8Unorm, 8, 8)

	for _, x := range [...]struct {
		name string
		rec  func(*gpu.RenderPassEncoder) error
		err  error
	}{
		{"viewport", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetViewport(gpu.Viewport{X: 2, Y: 2, Width: 4, Height: 4, MaxDepth: 1})
		}, nil},
		{"empty viewport", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetViewport(gpu.Viewport{Width: 0, Height: 4, MaxDepth: 1})
		}, gpu.ErrInvalidValue},
		{"viewport out of bounds", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetViewport(gpu.Viewport{X: 4, Width: 8, Height: 8, MaxDepth: 1})
		}, gpu.ErrOutOfBounds},
		{"negative viewport origin", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetViewport(gpu.Viewport{X: -1, Width: 4, Height: 4, MaxDepth: 1})
		}, gpu.ErrOutOfBounds},
		{"inverted depth range", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetViewport(gpu.Viewport{Width: 8, Height: 8, MinDepth: 1, MaxDepth: 0.5})
		}, gpu.ErrInvalidValue},
		{"scissor", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetScissor(gpu.Scissor{X: 4, Y: 4, Width: 4, Height: 4})
		}, nil},
		{"empty scissor", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetScissor(gpu.Scissor{})
		}, nil},
		{"scissor out of bounds", func(rp *gpu.RenderPassEncoder) error {
			return rp.SetScissor(gpu.Scissor{X: 4, Width: 8, Height: 8})
		}, gpu.ErrOutOfBounds},
	} {
		t.Run(x.name, func(t *testing.T) {
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			rp, err := e.BeginRenderPass(colorPass(view))
			require.NoError(t, err)
			err = x.rec(rp)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				assert.ErrorIs(t, err, gpu.ErrConfig)
				return
			}
			require.NoError(t, err)
			require.NoError(t, rp.End())
			_, err = e.Finish()
			require.NoError(t, err)
		})
	}
}

// occlusion draws with rec inside query 0 of an occlusion
// query set and returns the resolved sample count.
func occlusion(t *testing.T, dev *gpu.Device, pass *gpu.RenderPassDescriptor, rec func(*gpu.RenderPassEncoder) error) uint64 {
	t.Helper()
	qs, err := dev.CreateQuerySet(&gpu.QuerySetDescriptor{Type: gpu.QueryOcclusion, Count: 1})
	require.NoError(t, err)
	defer qs.Destroy()
	res, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Size:  gpu.QuerySize,
		Usage: gputypes.BufferUsageQueryResolve | gputypes.BufferUsageMapRead,
	})
	require.NoError(t, err)
	defer res.Destroy()

	cb, err := dev.CreateCommandBuffer("occlusion", func(e *gpu.CommandEncoder) error {
		desc := *pass
		desc.OcclusionQuerySet = qs
		rp, err := e.BeginRenderPass(&desc)
		if err != nil {
			return err
		}
		if err := rp.BeginOcclusionQuery(0); err != nil {
			return err
		}
		if err := rec(rp); err != nil {
			return err
		}
		if err := rp.EndOcclusionQuery(); err != nil {
			return err
		}
		if err := rp.End(); err != nil {
			return err
		}
		return e.ResolveQuerySet(qs, 0, 1, res, 0)
	})
	require.NoError(t, err)
	submit(t, dev, cb)
	return binary.LittleEndian.Uint64(mapRead(t, res))
}

func TestOcclusion(t *testing.T) {
	dev, _ := newDevice(t)
	const f = gputypes.TextureFormatRGBA8Unorm
	_, view := newTarget(t, dev, f, 8, 8)

	positions := append(append(append([]float32{}, fullScreen...), halfScreen...), offScreen...)
	vb := newVertexBuffer(t, dev, positions...)
	ib := newDataBuffer(t, dev, gputypes.BufferUsageIndex, []byte{0, 0, 1, 0, 2, 0, 0, 0})
	args := make([]byte, gpu.DrawIndirectSize)
	binary.LittleEndian.PutUint32(args[0:], 3)
	binary.LittleEndian.PutUint32(args[4:], 1)
	binary.LittleEndian.PutUint32(args[8:], 3)
	indirect := newDataBuffer(t, dev, gputypes.BufferUsageIndirect, args)

	plain := pipelineDesc(t, dev, f)
	p := newPipeline(t, dev, plain)
	culled := pipelineDesc(t, dev, f)
	culled.Rasterization.CullMode = gputypes.CullModeBack
	culled.Rasterization.FrontFace = gputypes.FrontFaceCW
	pc := newPipeline(t, dev, culled)

	draw := func(p *gpu.RenderPipeline, then func(*gpu.RenderPassEncoder) error) func(*gpu.RenderPassEncoder) error {
		return func(rp *gpu.RenderPassEncoder) error {
			if err := rp.SetPipeline(p); err != nil {
				return err
			}
			if err := rp.SetVertexBuffer(0, vb, 0, 0); err != nil {
				return err
			}
			return then(rp)
		}
	}

	for _, x := range [...]struct {
		name string
		rec  func(*gpu.RenderPassEncoder) error
		want uint64
	}{
		{"nothing drawn", func(*gpu.RenderPassEncoder) error { return nil }, 0},
		{"full screen", draw(p, func(rp *gpu.RenderPassEncoder) error {
			return rp.Draw(3, 1, 0, 0)
		}), 64},
		{"half screen", draw(p, func(rp *gpu.RenderPassEncoder) error {
			return rp.Draw(3, 1, 3, 0)
		}), 36},
		{"off screen", draw(p, func(rp *gpu.RenderPassEncoder) error {
			return rp.Draw(3, 1, 6, 0)
		}), 0},
		{"instanced", draw(p, func(rp *gpu.RenderPassEncoder) error {
			return rp.Draw(3, 2, 0, 0)
		}), 128},
		{"two draws", draw(p, func(rp *gpu.RenderPassEncoder) error {
			if err := rp.Draw(3, 1, 0, 0); err != nil {
				return err
			}
			return rp.Draw(3, 1, 3, 0)
		}), 100},
		{"indexed", draw(p, func(rp *gpu.RenderPassEncoder) error {
			if err := rp.SetIndexBuffer(ib, gputypes.IndexFormatUint16, 0, 0); err != nil {
				return err
			}
			return rp.DrawIndexed(3, 1, 0, 3, 0)
		}), 36},
		{"indirect", draw(p, func(rp *gpu.RenderPassEncoder) error {
			return rp.DrawIndirect(indirect, 0)
		}), 36},
		{"scissor", draw(p, func(rp *gpu.RenderPassEncoder) error {
			if err := rp.SetScissor(gpu.Scissor{Width: 4, Height: 2}); err != nil {
				return err
			}
			return rp.Draw(3, 1, 0, 0)
		}), 8},
		{"viewport", draw(p, func(rp *gpu.RenderPassEncoder) error {
			if err := rp.SetViewport(gpu.Viewport{Width: 4, Height: 4, MaxDepth: 1}); err != nil {
				return err
			}
			return rp.Draw(3, 1, 0, 0)
		}), 16},
		// Counter-clockwise is the back face with FrontFaceCW.
		{"culled", draw(pc, func(rp *gpu.RenderPassEncoder) error {
			return rp.Draw(3, 1, 0, 0)
		}), 0},
	} {
		t.Run(x.name, func(t *testing.T) {
			assert.Equal(t, x.want, occlusion(t, dev, colorPass(view), x.rec))
		})
	}
}

func TestOcclusionMultisampled(t *testing.T) {
	dev, _ := newDevice(t)
	const f = gputypes.TextureFormatRGBA8Unorm
	ms := newMultisampledTarget(t, dev, f, 8, 8)
	_, resolved := newTarget(t, dev, f, 8, 8)
	desc := pipelineDesc(t, dev, f)
	desc.Rasterization.SampleCount = 4
	p := newPipeline(t, dev, desc)
	vb := newVertexBuffer(t, dev, fullScreen...)

	pass := colorPass(ms)
	pass.ColorAttachments[0].ResolveTarget = resolved
	pass.ColorAttachments[0].ClearValue = gpu.Color{R: 1, A: 1}
	n := occlusion(t, dev, pass, func(rp *gpu.RenderPassEncoder) error {
		if err := rp.SetPipeline(p); err != nil {
			return err
		}
		if err := rp.SetVertexBuffer(0, vb, 0, 0); err != nil {
			return err
		}
		return rp.Draw(3, 1, 0, 0)
	})
	assert.Equal(t, uint64(4*64), n)
}

func TestOcclusionQueryErrors(t *testing.T) {
	dev, _ := newDevice(t)
	_, view := newTarget(t, dev, gputypes.TextureFormatRGBA8Unorm, 8, 8)
	qs, err := dev.CreateQuerySet(&gpu.QuerySetDescriptor{Type: gpu.QueryOcclusion, Count: 2})
	require.NoError(t, err)
	ts, err := dev.CreateQuerySet(&gpu.QuerySetDescriptor{Type: gpu.QueryTimestamp, Count: 2})
	require.NoError(t, err)

	withQueries := func() *gpu.RenderPassDescriptor {
		desc := colorPass(view)
		desc.OcclusionQuerySet = qs
		return desc
	}

	for _, x := range [...]struct {
		name string
		desc *gpu.RenderPassDescriptor
		rec  func(*gpu.RenderPassEncoder) error
		err  error
	}{
		{"no query set", colorPass(view), func(rp *gpu.RenderPassEncoder) error {
			return rp.BeginOcclusionQuery(0)
		}, gpu.ErrInvalidValue},
		{"index out of bounds", withQueries(), func(rp *gpu.RenderPassEncoder) error {
			return rp.BeginOcclusionQuery(2)
		}, gpu.ErrOutOfBounds},
		{"nested", withQueries(), func(rp *gpu.RenderPassEncoder) error {
			if err := rp.BeginOcclusionQuery(0); err != nil {
				return err
			}
			return rp.BeginOcclusionQuery(1)
		}, gpu.ErrQueryActive},
		{"reused", withQueries(), func(rp *gpu.RenderPassEncoder) error {
			if err := rp.BeginOcclusionQuery(0); err != nil {
				return err
			}
			if err := rp.EndOcclusionQuery(); err != nil {
				return err
			}
			return rp.BeginOcclusionQuery(0)
		}, gpu.ErrQueryUsed},
		{"end inactive", withQueries(), func(rp *gpu.RenderPassEncoder) error {
			return rp.EndOcclusionQuery()
		}, gpu.ErrQueryInactive},
		{"pass ends with active query", withQueries(), func(rp *gpu.RenderPassEncoder) error {
			if err := rp.BeginOcclusionQuery(1); err != nil {
				return err
			}
			return rp.End()
		}, gpu.ErrQueryActive},
	} {
		t.Run(x.name, func(t *testing.T) {
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			rp, err := e.BeginRenderPass(x.desc)
			require.NoError(t, err)
			assert.ErrorIs(t, x.rec(rp), x.err)
			_, err = e.Finish()
			assert.ErrorIs(t, err, x.err)
		})
	}

	e, err := dev.CreateCommandEncoder("")
	require.NoError(t, err)
	desc := colorPass(view)
	desc.OcclusionQuerySet = ts
	_, err = e.BeginRenderPass(desc)
	assert.ErrorIs(t, err, gpu.ErrInvalidValue)
}

func TestIndexedDrawErrors(t *testing.T) {
	dev, _ := newDevice(t)
	const f = gputypes.TextureFormatRGBA8Unorm
	_, view := newTarget(t, dev, f, 8, 8)
	p := newPipeline(t, dev, pipelineDesc(t, dev, f))
	vb := newVertexBuffer(t, dev, fullScreen...)
	ib := newDataBuffer(t, dev, gputypes.BufferUsageIndex, []byte{0, 0, 1, 0, 2, 0, 0, 0})
	args := newDataBuffer(t, dev, gputypes.BufferUsageIndirect, make([]byte, gpu.DrawIndexedIndirectSize))

	strip := pipelineDesc(t, dev, f)
	strip.Primitive = gpu.PrimitiveState{
		Topology:         gputypes.PrimitiveTopologyTriangleStrip,
		StripIndexFormat: gputypes.IndexFormatUint32,
	}
	ps := newPipeline(t, dev, strip)

	for _, x := range [...]struct {
		name     string
		pipeline *gpu.RenderPipeline
		rec      func(*gpu.RenderPassEncoder) error
		err      error
	}{
		{"unbound index buffer", p, func(rp *gpu.RenderPassEncoder) error {
			return rp.DrawIndexed(3, 1, 0, 0, 0)
		}, gpu.ErrUnbound},
		{"index range", p, func(rp *gpu.RenderPassEncoder) error {
			if err := rp.SetIndexBuffer(ib, gputypes.IndexFormatUint16, 0, 0); err != nil {
				return err
			}
			return rp.DrawIndexed(4, 1, 1, 0, 0)
		}, gpu.ErrOutOfBounds},
		{"unaligned index offset", p, func(rp *gpu.RenderPassEncoder) error {
			return rp.SetIndexBuffer(ib, gputypes.IndexFormatUint32, 2, 0)
		}, gpu.ErrAlignment},
		{"index usage", p, func(rp *gpu.RenderPassEncoder) error {
			return rp.SetIndexBuffer(vb, gputypes.IndexFormatUint16, 0, 0)
		}, gpu.ErrMissingUsage},
		{"strip index format", ps, func(rp *gpu.RenderPassEncoder) error {
			if err := rp.SetIndexBuffer(ib, gputypes.IndexFormatUint16, 0, 0); err != nil {
				return err
			}
			return rp.DrawIndexed(3, 1, 0, 0, 0)
		}, gpu.ErrIncompatible},
		{"indirect usage", p, func(rp *gpu.RenderPassEncoder) error {
			return rp.DrawIndirect(vb, 0)
		}, gpu.ErrMissingUsage},
		{"indirect out of bounds", p, func(rp *gpu.RenderPassEncoder) error {
			return rp.DrawIndirect(args, 8)
		}, gpu.ErrOutOfBounds},
		{"indirect unaligned", p, func(rp *gpu.RenderPassEncoder) error {
			return rp.DrawIndirect(args, 2)
		}, gpu.ErrAlignment},
		{"indexed indirect", p, func(rp *gpu.RenderPassEncoder) error {
			if err := rp.SetIndexBuffer(ib, gputypes.IndexFormatUint16, 0, 0); err != nil {
				return err
			}
			return rp.DrawIndexedIndirect(args, 0)
		}, nil},
	} {
		t.Run(x.name, func(t *testing.T) {
			e, err := dev.CreateCommandEncoder(x.name)
			require.NoError(t, err)
			desc := colorPass(view)
			desc.Pipeline = x.pipeline
			rp, err := e.BeginRenderPass(desc)
			require.NoError(t, err)
			require.NoError(t, rp.SetVertexBuffer(0, vb, 0, 0))
			err = x.rec(rp)
			if x.err != nil {
				assert.ErrorIs(t, err, x.err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, rp.End())
			cb, err := e.Finish()
			require.NoError(t, err)
			submit(t, dev, cb)
		})
	}
}

func TestIndirectFeature(t *testing.T) {
	_, drv := newDevice(t)
	be, err := drv.Open()
	require.NoError(t, err)
	cfg := gpu.DefaultConfig()
	cfg.Features = gpu.FeatureTimestampQuery
	dev, err := gpu.NewDevice(be, cfg)
	require.NoError(t, err)

	const f = gputypes.TextureFormatRGBA8Unorm
	_, view := newTarget(t, dev, f, 8, 8)
	p := newPipeline(t, dev, pipelineDesc(t, dev, f))
	vb := newVertexBuffer(t, dev, fullScreen...)
	args := newDataBuffer(t, dev, gputypes.BufferUsageIndirect, make([]byte, gpu.DrawIndirectSize))

	e, err := dev.CreateCommandEncoder("")
	require.NoError(t, err)
	desc := colorPass(view)
	desc.Pipeline = p
	rp, err := e.BeginRenderPass(desc)
	require.NoError(t, err)
	require.NoError(t, rp.SetVertexBuffer(0, vb, 0, 0))
	err = rp.DrawIndirect(args, 0)
	assert.ErrorIs(t, err, gpu.ErrMissingFeature)
	assert.ErrorIs(t, err, gpu.ErrConfig)
}
