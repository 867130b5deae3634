// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu_test

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/hal/gpu"
	"github.com/gviegas/hal/gpu/soft"
)

// newDevice creates a device on a fresh soft driver, so
// that device loss does not leak across tests.
func newDevice(t *testing.T) (*gpu.Device, *soft.Driver) {
	t.Helper()
	drv := soft.New()
	be, err := drv.Open()
	require.NoError(t, err)
	t.Cleanup(drv.Close)
	dev, err := gpu.NewDevice(be, gpu.DefaultConfig())
	require.NoError(t, err)
	return dev, drv
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Opaque shader code.
var shaderCode = []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}

func newShader(t *testing.T, dev *gpu.Device) *gpu.ShaderModule {
	t.Helper()
	m, err := dev.CreateShaderModule(&gpu.ShaderModuleDescriptor{Label: "shader", Code: shaderCode})
	require.NoError(t, err)
	return m
}

func newPipelineLayout(t *testing.T, dev *gpu.Device, ls ...*gpu.BindingGroupLayout) *gpu.PipelineLayout {
	t.Helper()
	pl, err := dev.CreatePipelineLayout(&gpu.PipelineLayoutDescriptor{Layouts: ls})
	require.NoError(t, err)
	return pl
}

// pipelineDesc describes a triangle-list pipeline that reads
// float32x2 positions from slot 0 and draws into one color
// target of format f.
func pipelineDesc(t *testing.T, dev *gpu.Device, f gpu.TextureFormat) *gpu.RenderPipelineDescriptor {
	t.Helper()
	m := newShader(t, dev)
	return &gpu.RenderPipelineDescriptor{
		Label:     "pipeline",
		Layout:    newPipelineLayout(t, dev),
		Primitive: gpu.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		Vertex: gpu.VertexState{
			Module:     m,
			EntryPoint: "vs",
			Buffers: []gpu.VertexBufferLayout{{
				ArrayStride: 8,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes:  []gpu.VertexAttribute{{Format: gputypes.VertexFormatFloat32x2}},
			}},
		},
		Rasterization: gpu.RasterizationState{
			CullMode:  gputypes.CullModeNone,
			FrontFace: gputypes.FrontFaceCCW,
		},
		Fragment: &gpu.FragmentState{
			Module:     m,
			EntryPoint: "fs",
			Targets:    []gpu.ColorTargetState{{Format: f, WriteMask: gputypes.ColorWriteMaskAll}},
		},
	}
}

func newPipeline(t *testing.T, dev *gpu.Device, desc *gpu.RenderPipelineDescriptor) *gpu.RenderPipeline {
	t.Helper()
	p, err := dev.CreateRenderPipeline(desc)
	require.NoError(t, err)
	return p
}

// newTarget creates a single-sampled render target and a
// view of it.
func newTarget(t *testing.T, dev *gpu.Device, f gpu.TextureFormat, w, h uint32) (*gpu.Texture, *gpu.TextureView) {
	t.Helper()
	tex, err := dev.CreateTexture(&gpu.TextureDescriptor{
		Label:     "target",
		Size:      gpu.Extent3D{Width: w, Height: h},
		Dimension: gputypes.TextureDimension2D,
		Format:    f,
		Usage:     gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	require.NoError(t, err)
	v, err := tex.CreateView(nil)
	require.NoError(t, err)
	return tex, v
}

func float32Bytes(vs ...float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

// newVertexBuffer creates a vertex buffer holding vs.
func newVertexBuffer(t *testing.T, dev *gpu.Device, vs ...float32) *gpu.Buffer {
	t.Helper()
	data := float32Bytes(vs...)
	buf, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Label:            "vertices",
		Size:             uint64(len(data)),
		Usage:            gputypes.BufferUsageVertex,
		MappedAtCreation: true,
	})
	require.NoError(t, err)
	copy(buf.MappedRange(), data)
	require.NoError(t, buf.Unmap())
	return buf
}

// submit submits cbs to the default queue and waits for
// completion.
func submit(t *testing.T, dev *gpu.Device, cbs ...*gpu.CommandBuffer) {
	t.Helper()
	f, err := dev.Queue().Submit(cbs, nil)
	require.NoError(t, err)
	require.NoError(t, f.Wait(testContext(t)))
}

// readBuffer copies size bytes of buf, which must have
// copy-src usage, into a staging buffer and returns them.
func readBuffer(t *testing.T, dev *gpu.Device, buf *gpu.Buffer, size uint64) []byte {
	t.Helper()
	stg, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Label: "staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	require.NoError(t, err)
	defer stg.Destroy()
	cb, err := dev.CreateCommandBuffer("readback", func(e *gpu.CommandEncoder) error {
		return e.CopyBufferToBuffer(buf, 0, stg, 0, size)
	})
	require.NoError(t, err)
	submit(t, dev, cb)
	return mapRead(t, stg)
}

func mapRead(t *testing.T, buf *gpu.Buffer) []byte {
	t.Helper()
	mem, err := buf.Map(testContext(t), gputypes.MapModeRead, 0, 0)
	require.NoError(t, err)
	data := append([]byte(nil), mem...)
	require.NoError(t, buf.Unmap())
	return data
}
