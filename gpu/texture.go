// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"slices"

	"github.com/gogpu/gputypes"
)

// TextureDescriptor describes a Texture.
// Zero MipLevelCount, SampleCount and
// Size.DepthOrArrayLayers mean 1.
type TextureDescriptor struct {
	Label         string
	Size          Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Dimension     TextureDimension
	Format        TextureFormat
	Usage         TextureUsage
	// Formats other than Format that views may use.
	// Only the sRGB counterpart of Format is allowed.
	ViewFormats []TextureFormat
}

// Texture is image memory.
type Texture struct {
	object
	h     TextureHandle
	desc  TextureDescriptor
	owner *Swapchain
}

const textureUsageMask = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
	gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding |
	gputypes.TextureUsageRenderAttachment

// CreateTexture creates a new texture.
func (d *Device) CreateTexture(desc *TextureDescriptor) (*Texture, error) {
	const op = "Device.CreateTexture"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	dc := *desc
	dc.ViewFormats = slices.Clone(desc.ViewFormats)
	if err := d.validateTexture(&dc); err != nil {
		return nil, configErr(op, err)
	}
	h, err := d.be.NewTexture(&dc)
	if err != nil {
		return nil, d.fail(op, err)
	}
	t := &Texture{h: h, desc: dc}
	t.init(d, dc.Label)
	d.created()
	slogger().Debug("gpu: texture created",
		"label", dc.Label,
		"format", FormatName(dc.Format),
		"width", dc.Size.Width,
		"height", dc.Size.Height)
	return t, nil
}

func (d *Device) validateTexture(desc *TextureDescriptor) error {
	if desc.MipLevelCount == 0 {
		desc.MipLevelCount = 1
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	if desc.Size.DepthOrArrayLayers == 0 {
		desc.Size.DepthOrArrayLayers = 1
	}
	sz := desc.Size
	if sz.Width == 0 || sz.Height == 0 {
		return wrapf(ErrZeroSize, "texture extent %dx%d", sz.Width, sz.Height)
	}
	caps, ok := Caps(desc.Format)
	if !ok {
		return wrapf(ErrUnsupported, "texture format %d", desc.Format)
	}
	if desc.Usage == 0 || desc.Usage&^textureUsageMask != 0 {
		return wrapf(ErrUnsupported, "texture usage %#x", uint32(desc.Usage))
	}
	l := &d.limits
	switch desc.Dimension {
	case gputypes.TextureDimension1D:
		if sz.Width > l.MaxTextureDimension1D {
			return wrapf(ErrLimit, "1D texture width %d", sz.Width)
		}
		if sz.Height != 1 || sz.DepthOrArrayLayers != 1 {
			return wrapf(ErrInvalidValue, "1D texture extent %dx%dx%d", sz.Width, sz.Height, sz.DepthOrArrayLayers)
		}
		if caps.Depth || caps.Stencil || desc.SampleCount != 1 {
			return wrapf(ErrUnsupported, "1D texture format/sample count")
		}
	case gputypes.TextureDimension2D:
		if sz.Width > l.MaxTextureDimension2D || sz.Height > l.MaxTextureDimension2D {
			return wrapf(ErrLimit, "2D texture extent %dx%d", sz.Width, sz.Height)
		}
		if sz.DepthOrArrayLayers > l.MaxTextureArrayLayers {
			return wrapf(ErrLimit, "2D texture layers %d", sz.DepthOrArrayLayers)
		}
	case gputypes.TextureDimension3D:
		if max(sz.Width, sz.Height, sz.DepthOrArrayLayers) > l.MaxTextureDimension3D {
			return wrapf(ErrLimit, "3D texture extent %dx%dx%d", sz.Width, sz.Height, sz.DepthOrArrayLayers)
		}
		if caps.Depth || caps.Stencil || desc.SampleCount != 1 {
			return wrapf(ErrUnsupported, "3D texture format/sample count")
		}
	default:
		return wrapf(ErrInvalidValue, "texture dimension %d", desc.Dimension)
	}
	if n := maxMipLevels(desc.Dimension, sz); desc.MipLevelCount > n {
		return wrapf(ErrInvalidValue, "mip level count %d (max %d)", desc.MipLevelCount, n)
	}
	if desc.Usage&gputypes.TextureUsageRenderAttachment != 0 && !caps.Renderable {
		return wrapf(ErrUnsupported, "%s is not renderable", caps.Name)
	}
	if desc.Usage&gputypes.TextureUsageStorageBinding != 0 && !caps.Storage {
		return wrapf(ErrUnsupported, "%s is not storage capable", caps.Name)
	}
	switch desc.SampleCount {
	case 1:
	case 4:
		switch {
		case !caps.Multisample:
			return wrapf(ErrUnsupported, "%s cannot be multisampled", caps.Name)
		case desc.MipLevelCount != 1 || sz.DepthOrArrayLayers != 1:
			return wrapf(ErrInvalidValue, "multisampled texture must have one level and layer")
		case desc.Usage&gputypes.TextureUsageRenderAttachment == 0:
			return wrapf(ErrUnsupported, "multisampled texture requires render attachment usage")
		case desc.Usage&gputypes.TextureUsageStorageBinding != 0:
			return wrapf(ErrUnsupported, "multisampled texture cannot have storage binding usage")
		}
	default:
		return wrapf(ErrUnsupported, "sample count %d", desc.SampleCount)
	}
	for _, f := range desc.ViewFormats {
		if !viewCompatible(desc.Format, f) {
			return wrapf(ErrUnsupported, "view format %s for %s", FormatName(f), caps.Name)
		}
	}
	return nil
}

// Width returns the width of mip level 0.
func (t *Texture) Width() uint32 { return t.desc.Size.Width }

// Height returns the height of mip level 0.
func (t *Texture) Height() uint32 { return t.desc.Size.Height }

// DepthOrArrayLayers returns the depth (3D) or the number
// of array layers.
func (t *Texture) DepthOrArrayLayers() uint32 { return t.desc.Size.DepthOrArrayLayers }

// Size returns the extent of mip level 0.
func (t *Texture) Size() Extent3D { return t.desc.Size }

// MipLevelCount returns the number of mip levels.
func (t *Texture) MipLevelCount() uint32 { return t.desc.MipLevelCount }

// SampleCount returns the number of samples per texel.
func (t *Texture) SampleCount() uint32 { return t.desc.SampleCount }

// Dimension returns the texture dimension.
func (t *Texture) Dimension() TextureDimension { return t.desc.Dimension }

// Format returns the texel format.
func (t *Texture) Format() TextureFormat { return t.desc.Format }

// Usage returns the texture usage.
func (t *Texture) Usage() TextureUsage { return t.desc.Usage }

// Handle returns the backend's handle.
func (t *Texture) Handle() TextureHandle { return t.h }

// Destroy destroys the texture.
// Textures owned by a swapchain cannot be destroyed
// directly.
func (t *Texture) Destroy() error {
	const op = "Texture.Destroy"
	if t.owner != nil {
		return stateErr(op, wrapf(ErrInUse, "owned by swapchain"))
	}
	if err := t.kill(op); err != nil {
		return err
	}
	t.h.Destroy()
	t.dev.forget()
	slogger().Debug("gpu: texture destroyed", "label", t.label)
	return nil
}

// TextureViewDescriptor describes a TextureView.
// Zero values select defaults: the texture's format, the
// dimension implied by the texture and every remaining mip
// level and array layer.
type TextureViewDescriptor struct {
	Label           string
	Format          TextureFormat
	Dimension       TextureViewDimension
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

// TextureView is a typed view of a texture's subresources.
// It retains its texture until destroyed.
type TextureView struct {
	object
	h     TextureViewHandle
	tex   *Texture
	desc  TextureViewDescriptor
	owned bool
}

// CreateView creates a new view of the texture.
// desc may be nil.
func (t *Texture) CreateView(desc *TextureViewDescriptor) (*TextureView, error) {
	return t.createView("Texture.CreateView", desc, false)
}

func (t *Texture) createView(op string, desc *TextureViewDescriptor, owned bool) (*TextureView, error) {
	d := t.dev
	if err := d.check(op); err != nil {
		return nil, err
	}
	var dc TextureViewDescriptor
	if desc != nil {
		dc = *desc
	}
	if err := t.resolveView(&dc); err != nil {
		return nil, configErr(op, err)
	}
	if err := t.retain(); err != nil {
		return nil, stateErr(op, err)
	}
	h, err := d.be.NewTextureView(t.h, &dc)
	if err != nil {
		t.release()
		return nil, d.fail(op, err)
	}
	v := &TextureView{h: h, tex: t, desc: dc, owned: owned}
	v.init(d, dc.Label)
	if !owned {
		d.created()
	}
	return v, nil
}

func (t *Texture) resolveView(desc *TextureViewDescriptor) error {
	td := &t.desc
	if desc.Format == gputypes.TextureFormatUndefined {
		desc.Format = td.Format
	}
	if !viewCompatible(td.Format, desc.Format) {
		return wrapf(ErrUnsupported, "view format %s for %s", FormatName(desc.Format), FormatName(td.Format))
	}
	if desc.Format != td.Format && !slices.Contains(td.ViewFormats, desc.Format) {
		return wrapf(ErrUnsupported, "view format %s not in texture's view formats", FormatName(desc.Format))
	}
	layers := td.Size.DepthOrArrayLayers
	if td.Dimension == gputypes.TextureDimension3D {
		layers = 1
	}
	if desc.Dimension == gputypes.TextureViewDimensionUndefined {
		switch td.Dimension {
		case gputypes.TextureDimension1D:
			desc.Dimension = gputypes.TextureViewDimension1D
		case gputypes.TextureDimension3D:
			desc.Dimension = gputypes.TextureViewDimension3D
		default:
			if layers == 1 {
				desc.Dimension = gputypes.TextureViewDimension2D
			} else {
				desc.Dimension = gputypes.TextureViewDimension2DArray
			}
		}
	}
	if desc.BaseMipLevel >= td.MipLevelCount {
		return wrapf(ErrOutOfBounds, "base mip level %d", desc.BaseMipLevel)
	}
	if desc.MipLevelCount == 0 {
		desc.MipLevelCount = td.MipLevelCount - desc.BaseMipLevel
	}
	if desc.MipLevelCount > td.MipLevelCount-desc.BaseMipLevel {
		return wrapf(ErrOutOfBounds, "mip levels [%d, +%d)", desc.BaseMipLevel, desc.MipLevelCount)
	}
	if desc.BaseArrayLayer >= layers {
		return wrapf(ErrOutOfBounds, "base array layer %d", desc.BaseArrayLayer)
	}
	if desc.ArrayLayerCount == 0 {
		desc.ArrayLayerCount = layers - desc.BaseArrayLayer
		if desc.Dimension == gputypes.TextureViewDimension2D || desc.Dimension == gputypes.TextureViewDimension1D {
			desc.ArrayLayerCount = 1
		}
	}
	if desc.ArrayLayerCount > layers-desc.BaseArrayLayer {
		return wrapf(ErrOutOfBounds, "array layers [%d, +%d)", desc.BaseArrayLayer, desc.ArrayLayerCount)
	}
	n := desc.ArrayLayerCount
	ok := false
	switch desc.Dimension {
	case gputypes.TextureViewDimension1D:
		ok = td.Dimension == gputypes.TextureDimension1D && n == 1
	case gputypes.TextureViewDimension2D:
		ok = td.Dimension == gputypes.TextureDimension2D && n == 1
	case gputypes.TextureViewDimension2DArray:
		ok = td.Dimension == gputypes.TextureDimension2D
	case gputypes.TextureViewDimensionCube:
		ok = td.Dimension == gputypes.TextureDimension2D && n == 6 && td.Size.Width == td.Size.Height
	case gputypes.TextureViewDimensionCubeArray:
		ok = td.Dimension == gputypes.TextureDimension2D && n%6 == 0 && td.Size.Width == td.Size.Height
	case gputypes.TextureViewDimension3D:
		ok = td.Dimension == gputypes.TextureDimension3D
	}
	if !ok {
		return wrapf(ErrInvalidValue, "view dimension %d with %d layers", desc.Dimension, n)
	}
	return nil
}

// Texture returns the viewed texture.
func (v *TextureView) Texture() *Texture { return v.tex }

// Format returns the view's format.
func (v *TextureView) Format() TextureFormat { return v.desc.Format }

// Dimension returns the view's dimension.
func (v *TextureView) Dimension() TextureViewDimension { return v.desc.Dimension }

// BaseMipLevel returns the first viewed mip level.
func (v *TextureView) BaseMipLevel() uint32 { return v.desc.BaseMipLevel }

// MipLevelCount returns the number of viewed mip levels.
func (v *TextureView) MipLevelCount() uint32 { return v.desc.MipLevelCount }

// BaseArrayLayer returns the first viewed array layer.
func (v *TextureView) BaseArrayLayer() uint32 { return v.desc.BaseArrayLayer }

// ArrayLayerCount returns the number of viewed array layers.
func (v *TextureView) ArrayLayerCount() uint32 { return v.desc.ArrayLayerCount }

// Extent returns the size of the view's base mip level.
func (v *TextureView) Extent() Extent3D {
	return mipExtent(v.tex.desc.Dimension, v.tex.desc.Size, v.desc.BaseMipLevel)
}

// Handle returns the backend's handle.
func (v *TextureView) Handle() TextureViewHandle { return v.h }

// Destroy destroys the view, releasing its texture.
func (v *TextureView) Destroy() error {
	const op = "TextureView.Destroy"
	if v.owned {
		return stateErr(op, wrapf(ErrInUse, "owned by swapchain"))
	}
	return v.destroy(op)
}

func (v *TextureView) destroy(op string) error {
	if err := v.kill(op); err != nil {
		return err
	}
	v.h.Destroy()
	v.tex.release()
	if !v.owned {
		v.dev.forget()
	}
	return nil
}
