// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"context"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gviegas/hal/wsi"
)

// Limits on the number of swapchain images.
const (
	MinSwapchainImages = 2
	MaxSwapchainImages = 8
)

// SwapchainDescriptor describes a Swapchain.
// Zero values select defaults: the first format and the
// present mode of the device's platform profile that the
// surface supports, RenderAttachment usage, the window's
// size and the profile's image count.
type SwapchainDescriptor struct {
	Label         string
	Format        TextureFormat
	Usage         TextureUsage
	Width         uint32
	Height        uint32
	PresentMode   PresentMode
	MinImageCount uint32
	// Swapchain being replaced.
	// It is retired by a successful creation.
	OldSwapchain *Swapchain
}

// Swapchain is a rotating set of presentable textures.
type Swapchain struct {
	object
	h     SwapchainHandle
	win   wsi.Window
	desc  SwapchainDescriptor
	texs  []*Texture
	views []*TextureView
	free  chan int

	// Guarded by object.mu.
	queue    *Queue
	acquired int
	held     int
	retired  bool
}

// CreateSwapchain creates a new swapchain that presents to
// win.
func (d *Device) CreateSwapchain(win wsi.Window, desc *SwapchainDescriptor) (*Swapchain, error) {
	const op = "Device.CreateSwapchain"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if win == nil {
		return nil, configErr(op, wrapf(ErrNilResource, "window"))
	}
	var dc SwapchainDescriptor
	if desc != nil {
		dc = *desc
	}
	if err := d.resolveSwapchain(win, &dc); err != nil {
		return nil, configErr(op, err)
	}
	old := dc.OldSwapchain
	var oldh SwapchainHandle
	if old != nil {
		if err := d.owned(old); err != nil {
			return nil, stateErr(op, err)
		}
		old.mu.Lock()
		retired := old.retired
		old.mu.Unlock()
		if retired {
			return nil, stateErr(op, ErrRetired)
		}
		oldh = old.h
	}
	h, err := d.be.NewSwapchain(win, &dc, oldh)
	if err != nil {
		return nil, d.fail(op, err)
	}
	sc := &Swapchain{
		h:        h,
		win:      win,
		desc:     dc,
		queue:    d.queue,
		acquired: -1,
		held:     -1,
	}
	sc.init(d, dc.Label)
	hs := h.Textures()
	sc.free = make(chan int, len(hs))
	for i, th := range hs {
		t := &Texture{
			h: th,
			desc: TextureDescriptor{
				Label:         dc.Label,
				Size:          Extent3D{Width: dc.Width, Height: dc.Height, DepthOrArrayLayers: 1},
				MipLevelCount: 1,
				SampleCount:   1,
				Dimension:     gputypes.TextureDimension2D,
				Format:        dc.Format,
				Usage:         dc.Usage,
			},
			owner: sc,
		}
		t.init(d, dc.Label)
		v, err := t.createView(op, nil, true)
		if err != nil {
			for _, v := range sc.views {
				v.destroy(op)
			}
			h.Destroy()
			return nil, err
		}
		sc.texs = append(sc.texs, t)
		sc.views = append(sc.views, v)
		sc.free <- i
	}
	if old != nil {
		old.retire()
	}
	d.created()
	slogger().Debug("gpu: swapchain created",
		"label", dc.Label,
		"format", FormatName(dc.Format),
		"present_mode", dc.PresentMode.String(),
		"images", len(hs))
	return sc, nil
}

func (d *Device) resolveSwapchain(win wsi.Window, desc *SwapchainDescriptor) error {
	formats := d.be.SurfaceFormats(win)
	modes := d.be.PresentModes(win)
	p := &d.profile
	if desc.Format == gputypes.TextureFormatUndefined {
		for _, f := range p.SurfaceFormats {
			if slices.Contains(formats, f) {
				desc.Format = f
				break
			}
		}
		if desc.Format == gputypes.TextureFormatUndefined && len(formats) > 0 {
			desc.Format = formats[0]
		}
	}
	if !slices.Contains(formats, desc.Format) {
		return wrapf(ErrUnsupported, "surface format %s", FormatName(desc.Format))
	}
	if desc.PresentMode == 0 {
		desc.PresentMode = p.PresentMode
		if !slices.Contains(modes, desc.PresentMode) {
			desc.PresentMode = PresentFIFO
		}
	}
	if !slices.Contains(modes, desc.PresentMode) {
		return wrapf(ErrUnsupported, "present mode %v", desc.PresentMode)
	}
	if desc.Usage == 0 {
		desc.Usage = gputypes.TextureUsageRenderAttachment
	}
	const usage = gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc |
		gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding
	if desc.Usage&gputypes.TextureUsageRenderAttachment == 0 || desc.Usage&^usage != 0 {
		return wrapf(ErrUnsupported, "swapchain usage %#x", uint32(desc.Usage))
	}
	if desc.Width == 0 {
		desc.Width = uint32(max(win.Width(), 0))
	}
	if desc.Height == 0 {
		desc.Height = uint32(max(win.Height(), 0))
	}
	if desc.Width == 0 || desc.Height == 0 {
		return wrapf(ErrZeroSize, "swapchain extent %dx%d", desc.Width, desc.Height)
	}
	if desc.Width > d.limits.MaxTextureDimension2D || desc.Height > d.limits.MaxTextureDimension2D {
		return wrapf(ErrLimit, "swapchain extent %dx%d", desc.Width, desc.Height)
	}
	if desc.MinImageCount == 0 {
		desc.MinImageCount = p.ImageCount
	}
	if desc.MinImageCount < MinSwapchainImages || desc.MinImageCount > MaxSwapchainImages {
		return wrapf(ErrLimit, "image count %d", desc.MinImageCount)
	}
	return nil
}

// Format returns the texture format.
func (sc *Swapchain) Format() TextureFormat { return sc.desc.Format }

// Width returns the width of the textures.
func (sc *Swapchain) Width() uint32 { return sc.desc.Width }

// Height returns the height of the textures.
func (sc *Swapchain) Height() uint32 { return sc.desc.Height }

// PresentMode returns the presentation mode.
func (sc *Swapchain) PresentMode() PresentMode { return sc.desc.PresentMode }

// ImageCount returns the number of textures.
func (sc *Swapchain) ImageCount() int { return len(sc.texs) }

// Window returns the window presented to.
func (sc *Swapchain) Window() wsi.Window { return sc.win }

// Retired reports whether sc was replaced by another
// swapchain.
func (sc *Swapchain) Retired() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.retired
}

func (sc *Swapchain) retire() {
	sc.mu.Lock()
	sc.retired = true
	sc.mu.Unlock()
	slogger().Warn("gpu: swapchain retired", "label", sc.label)
}

// AcquireNextTexture returns a view of the next presentable
// texture. It blocks until a texture is free or ctx is done.
// Only one texture can be acquired at a time.
func (sc *Swapchain) AcquireNextTexture(ctx context.Context) (*TextureView, error) {
	const op = "Swapchain.AcquireNextTexture"
	if err := sc.dev.check(op); err != nil {
		return nil, err
	}
	sc.mu.Lock()
	switch {
	case sc.dead:
		sc.mu.Unlock()
		return nil, stateErr(op, ErrDestroyed)
	case sc.retired:
		sc.mu.Unlock()
		return nil, stateErr(op, ErrRetired)
	case sc.acquired >= 0:
		sc.mu.Unlock()
		return nil, stateErr(op, ErrAlreadyAcquired)
	}
	sc.mu.Unlock()

	var i int
	select {
	case i = <-sc.free:
	case <-ctx.Done():
		return nil, stateErr(op, ctx.Err())
	case <-sc.dev.lost:
		return nil, sc.dev.check(op)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.acquired >= 0 || sc.retired || sc.dead {
		sc.free <- i
		if sc.acquired >= 0 {
			return nil, stateErr(op, ErrAlreadyAcquired)
		}
		return nil, stateErr(op, ErrRetired)
	}
	sc.acquired = i
	return sc.views[i], nil
}

// submittable checks that sc has an acquired texture for a
// submission to q.
func (sc *Swapchain) submittable(op string, q *Queue) error {
	if sc.dev != q.dev {
		return stateErr(op, ErrWrongDevice)
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	switch {
	case sc.dead:
		return stateErr(op, ErrDestroyed)
	case sc.retired:
		return stateErr(op, ErrRetired)
	case sc.acquired < 0:
		return stateErr(op, ErrNotAcquired)
	}
	return nil
}

// setQueue orders the next Present after submissions to q.
func (sc *Swapchain) setQueue(q *Queue) {
	sc.mu.Lock()
	sc.queue = q
	sc.mu.Unlock()
}

// Present enqueues the display of the acquired texture.
// It is ordered after every prior submission to the queue
// that sc was last submitted with (the default queue if
// none).
func (sc *Swapchain) Present() error {
	const op = "Swapchain.Present"
	if err := sc.dev.check(op); err != nil {
		return err
	}
	sc.mu.Lock()
	switch {
	case sc.dead:
		sc.mu.Unlock()
		return stateErr(op, ErrDestroyed)
	case sc.retired:
		sc.mu.Unlock()
		return stateErr(op, ErrRetired)
	case sc.acquired < 0:
		sc.mu.Unlock()
		return stateErr(op, ErrNotAcquired)
	}
	i := sc.acquired
	sc.acquired = -1
	q := sc.queue
	sc.mu.Unlock()

	fifo := sc.desc.PresentMode == PresentFIFO || sc.desc.PresentMode == PresentFIFORelaxed
	err := q.enqueue(op, func() {
		if err := sc.h.Present(i); err != nil {
			sc.dev.fail(op, err)
			slogger().Warn("gpu: present failed", "label", sc.label, "err", err)
		}
		if fifo {
			sc.mu.Lock()
			prev := sc.held
			sc.held = i
			sc.mu.Unlock()
			if prev >= 0 {
				sc.free <- prev
			}
		} else {
			sc.free <- i
		}
	})
	if err != nil {
		sc.free <- i
		return err
	}
	slogger().Debug("gpu: present", "label", sc.label, "image", i)
	return nil
}

// Destroy destroys the swapchain and its textures.
// It waits for pending presentation first.
func (sc *Swapchain) Destroy() error {
	const op = "Swapchain.Destroy"
	sc.mu.Lock()
	q := sc.queue
	sc.mu.Unlock()
	q.WaitIdle(context.Background())
	for i, t := range sc.texs {
		t.mu.Lock()
		refs := t.refs
		t.mu.Unlock()
		v := sc.views[i]
		v.mu.Lock()
		refs += v.refs
		v.mu.Unlock()
		if refs > 1 {
			return stateErr(op, wrapf(ErrInUse, "swapchain texture in use"))
		}
	}
	if err := sc.kill(op); err != nil {
		return err
	}
	for _, v := range sc.views {
		v.destroy(op)
	}
	for _, t := range sc.texs {
		t.mu.Lock()
		t.dead = true
		t.mu.Unlock()
	}
	sc.h.Destroy()
	sc.dev.forget()
	return nil
}
