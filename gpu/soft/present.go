// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gviegas/hal/gpu"
	"github.com/gviegas/hal/wsi"
)

var surfaceFormats = []gpu.TextureFormat{
	gputypes.TextureFormatBGRA8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb,
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb,
}

var presentModes = []gpu.PresentMode{
	gpu.PresentFIFO,
	gpu.PresentFIFORelaxed,
	gpu.PresentMailbox,
	gpu.PresentImmediate,
}

// SurfaceFormats implements gpu.Backend.
func (d *Driver) SurfaceFormats(wsi.Window) []gpu.TextureFormat {
	return append([]gpu.TextureFormat(nil), surfaceFormats...)
}

// PresentModes implements gpu.Backend.
func (d *Driver) PresentModes(wsi.Window) []gpu.PresentMode {
	return append([]gpu.PresentMode(nil), presentModes...)
}

// swapchain implements gpu.SwapchainHandle.
// Windows that implement wsi.FrameSink receive a copy of
// every presented texture; presentation to other windows
// has no visible effect.
type swapchain struct {
	d    *Driver
	win  wsi.Window
	texs []*texture
}

// NewSwapchain implements gpu.Backend.
func (d *Driver) NewSwapchain(win wsi.Window, desc *gpu.SwapchainDescriptor, _ gpu.SwapchainHandle) (gpu.SwapchainHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	sc := &swapchain{d: d, win: win}
	td := gpu.TextureDescriptor{
		Size:          gpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	}
	for range desc.MinImageCount {
		sc.texs = append(sc.texs, newTexture(&td))
	}
	return sc, nil
}

// Textures implements gpu.SwapchainHandle.
func (s *swapchain) Textures() []gpu.TextureHandle {
	hs := make([]gpu.TextureHandle, len(s.texs))
	for i, t := range s.texs {
		hs[i] = t
	}
	return hs
}

// Present implements gpu.SwapchainHandle.
func (s *swapchain) Present(index int) error {
	if err := s.d.check(); err != nil {
		return err
	}
	sink, ok := s.win.(wsi.FrameSink)
	if !ok {
		return nil
	}
	s.d.mu.Lock()
	img := frame(s.texs[index])
	s.d.mu.Unlock()
	return sink.PresentFrame(img)
}

// frame copies the first level of t into an RGBA image.
func frame(t *texture) *image.RGBA {
	w, h := int(t.desc.Size.Width), int(t.desc.Size.Height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, t.levels[0])
	if codecs[t.desc.Format].bgra {
		for i := 0; i+3 < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img
}

// Destroy implements gpu.Destroyer.
func (s *swapchain) Destroy() {
	for _, t := range s.texs {
		t.Destroy()
	}
	s.texs = nil
}
