// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"

	"github.com/gviegas/hal/gpu"
	"github.com/gviegas/hal/wsi"
)

type smokeOptions struct {
	width, height int
	timeout       time.Duration
}

func newSmokeCmd(opts *options) *cobra.Command {
	var so smokeOptions
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Render and present a headless frame",
		Long: "Smoke clears a swapchain image of a headless window, draws a triangle\n" +
			"covering the lower left half of it under an occlusion query, presents\n" +
			"the image and prints the number of samples that passed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := opts.openDevice(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), so.timeout)
			defer cancel()
			res, err := smoke(ctx, dev, so.width, so.height)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "format: %s\n", gpu.FormatName(res.format))
			fmt.Fprintf(w, "size: %dx%d\n", res.width, res.height)
			fmt.Fprintf(w, "frames: %d\n", res.frames)
			fmt.Fprintf(w, "pixel: %d %d %d %d\n", res.pixel.R, res.pixel.G, res.pixel.B, res.pixel.A)
			fmt.Fprintf(w, "occlusion: %d\n", res.samples)
			return dev.Destroy()
		},
	}
	f := cmd.Flags()
	f.IntVar(&so.width, "width", 8, "window width")
	f.IntVar(&so.height, "height", 8, "window height")
	f.DurationVar(&so.timeout, "timeout", 10*time.Second, "time limit for GPU work")
	return cmd
}

var (
	// Clear color of the smoke frame.
	smokeColor = gpu.Color{R: 0.2, G: 0.4, B: 0.6, A: 1}
	// Triangle covering the lower left half of the target.
	smokeTriangle = []float32{-1, -1, 1, -1, -1, 1}
)

type smokeResult struct {
	format        gpu.TextureFormat
	width, height uint32
	frames        int
	pixel         struct{ R, G, B, A uint8 }
	samples       uint64
}

// smoke renders a single frame on dev.
// Every object it creates is destroyed before it returns.
func smoke(ctx context.Context, dev *gpu.Device, width, height int) (res smokeResult, err error) {
	var undo []func() error
	defer func() {
		for i := len(undo) - 1; i >= 0; i-- {
			err = errors.Join(err, undo[i]())
		}
	}()

	win, err := wsi.NewHeadless(width, height, "gpuinfo")
	if err != nil {
		return
	}
	undo = append(undo, func() error { win.Close(); return nil })
	sc, err := dev.CreateSwapchain(win, nil)
	if err != nil {
		return
	}
	undo = append(undo, sc.Destroy)

	m, err := dev.CreateShaderModule(&gpu.ShaderModuleDescriptor{Label: "smoke", Code: []byte{0x03, 0x02, 0x23, 0x07}})
	if err != nil {
		return
	}
	undo = append(undo, m.Destroy)
	pl, err := dev.CreatePipelineLayout(&gpu.PipelineLayoutDescriptor{Label: "smoke"})
	if err != nil {
		return
	}
	undo = append(undo, pl.Destroy)
	pipe, err := dev.CreateRenderPipeline(&gpu.RenderPipelineDescriptor{
		Label:     "smoke",
		Layout:    pl,
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
			Targets:    []gpu.ColorTargetState{{Format: sc.Format(), WriteMask: gputypes.ColorWriteMaskAll}},
		},
	})
	if err != nil {
		return
	}
	undo = append(undo, pipe.Destroy)

	vb, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Label:            "smoke vertices",
		Size:             uint64(4 * len(smokeTriangle)),
		Usage:            gputypes.BufferUsageVertex,
		MappedAtCreation: true,
	})
	if err != nil {
		return
	}
	undo = append(undo, vb.Destroy)
	for i, v := range smokeTriangle {
		binary.LittleEndian.PutUint32(vb.MappedRange()[4*i:], math.Float32bits(v))
	}
	if err = vb.Unmap(); err != nil {
		return
	}

	qs, err := dev.CreateQuerySet(&gpu.QuerySetDescriptor{Label: "smoke", Type: gpu.QueryOcclusion, Count: 1})
	if err != nil {
		return
	}
	undo = append(undo, qs.Destroy)
	qbuf, err := dev.CreateBuffer(&gpu.BufferDescriptor{
		Label: "smoke queries",
		Size:  gpu.QuerySize,
		Usage: gputypes.BufferUsageQueryResolve | gputypes.BufferUsageMapRead,
	})
	if err != nil {
		return
	}
	undo = append(undo, qbuf.Destroy)

	view, err := sc.AcquireNextTexture(ctx)
	if err != nil {
		return
	}
	cb, err := dev.CreateCommandBuffer("smoke", func(e *gpu.CommandEncoder) error {
		rp, err := e.BeginRenderPass(&gpu.RenderPassDescriptor{
			Label: "smoke",
			ColorAttachments: []gpu.RenderPassColorAttachment{{
				View:       view,
				LoadOp:     gpu.LoadClear,
				StoreOp:    gpu.StoreStore,
				ClearValue: smokeColor,
			}},
			OcclusionQuerySet: qs,
			Pipeline:          pipe,
		})
		if err != nil {
			return err
		}
		if err := rp.SetVertexBuffer(0, vb, 0, 0); err != nil {
			return err
		}
		if err := rp.BeginOcclusionQuery(0); err != nil {
			return err
		}
		if err := rp.Draw(3, 1, 0, 0); err != nil {
			return err
		}
		if err := rp.EndOcclusionQuery(); err != nil {
			return err
		}
		if err := rp.End(); err != nil {
			return err
		}
		return e.ResolveQuerySet(qs, 0, 1, qbuf, 0)
	})
	if err != nil {
		// The image stays acquired; presenting releases it.
		err = errors.Join(err, sc.Present())
		return
	}
	if _, err = dev.Queue().Submit([]*gpu.CommandBuffer{cb}, sc); err != nil {
		err = errors.Join(err, cb.Destroy(), sc.Present())
		return
	}
	if err = sc.Present(); err != nil {
		return
	}
	if err = dev.Queue().WaitIdle(ctx); err != nil {
		return
	}

	mem, err := qbuf.Map(ctx, gputypes.MapModeRead, 0, 0)
	if err != nil {
		return
	}
	res.samples = binary.LittleEndian.Uint64(mem)
	if err = qbuf.Unmap(); err != nil {
		return
	}
	img := win.LastFrame()
	if img == nil {
		err = errors.New("smoke: nothing was presented")
		return
	}
	px := img.RGBAAt(0, 0)
	res.pixel.R, res.pixel.G, res.pixel.B, res.pixel.A = px.R, px.G, px.B, px.A
	res.format = sc.Format()
	res.width, res.height = sc.Width(), sc.Height()
	res.frames = win.FrameCount()
	if res.samples == 0 {
		err = errors.New("smoke: no samples passed the occlusion query")
	}
	return
}
