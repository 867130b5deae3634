// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"github.com/gogpu/gputypes"
)

// QuerySkip as a PassTimestampWrites index means that the
// timestamp is not written.
const QuerySkip = ^uint32(0)

// RenderPassColorAttachment describes a color attachment of
// a render pass.
type RenderPassColorAttachment struct {
	View *TextureView
	// Single-sampled view that receives the resolved
	// contents of a multisampled View.
	ResolveTarget *TextureView
	LoadOp        LoadOp
	StoreOp       StoreOp
	ClearValue    Color
}

// RenderPassDepthStencilAttachment describes the
// depth/stencil attachment of a render pass.
// Read-only aspects cannot be cleared.
type RenderPassDepthStencilAttachment struct {
	View              *TextureView
	DepthLoadOp       LoadOp
	DepthStoreOp      StoreOp
	DepthClearValue   float32
	DepthReadOnly     bool
	StencilLoadOp     LoadOp
	StencilStoreOp    StoreOp
	StencilClearValue uint32
	StencilReadOnly   bool
}

// PassTimestampWrites selects the queries that receive the
// timestamps at the beginning and at the end of a pass.
type PassTimestampWrites struct {
	QuerySet   *QuerySet
	BeginIndex uint32
	EndIndex   uint32
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Label                  string
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
	OcclusionQuerySet      *QuerySet
	TimestampWrites        *PassTimestampWrites
	// Pipeline, if not nil, is bound at the start of the
	// pass.
	Pipeline *RenderPipeline
}

// ComputePassDescriptor describes a compute pass.
type ComputePassDescriptor struct {
	Label           string
	TimestampWrites *PassTimestampWrites
}

// ImageCopyBuffer describes the buffer side of a
// buffer/texture copy.
// BytesPerRow must be a multiple of 256. It can be zero
// only if the copy is a single row. RowsPerImage zero
// means the copy height.
type ImageCopyBuffer struct {
	Buffer       *Buffer
	Offset       uint64
	BytesPerRow  uint32
	RowsPerImage uint32
}

// ImageCopyTexture describes the texture side of a copy.
type ImageCopyTexture struct {
	Texture  *Texture
	MipLevel uint32
	Origin   Origin3D
}

// BytesPerRowAlignment is the required alignment of
// ImageCopyBuffer.BytesPerRow.
const BytesPerRowAlignment = 256

type encState int

const (
	encRecording encState = iota
	encPassOpen
	encFinished
)

// CommandEncoder records commands into a CommandBuffer.
// A CommandEncoder must be used by a single goroutine.
// The first error it reports invalidates it; Finish
// then returns that error.
type CommandEncoder struct {
	dev   *Device
	label string
	state encState
	err   error
	cmds  []Command
	refs  map[*object]struct{}
	bufs  map[*Buffer]bool
}

// CreateCommandEncoder creates a new command encoder.
func (d *Device) CreateCommandEncoder(label string) (*CommandEncoder, error) {
	const op = "Device.CreateCommandEncoder"
	if err := d.check(op); err != nil {
		return nil, err
	}
	return &CommandEncoder{
		dev:   d,
		label: label,
		refs:  make(map[*object]struct{}),
		bufs:  make(map[*Buffer]bool),
	}, nil
}

// CreateCommandBuffer records a command buffer by calling fn
// with a new encoder, then finishing it.
func (d *Device) CreateCommandBuffer(label string, fn func(*CommandEncoder) error) (*CommandBuffer, error) {
	e, err := d.CreateCommandEncoder(label)
	if err != nil {
		return nil, err
	}
	if err := fn(e); err != nil {
		return nil, err
	}
	return e.Finish()
}

// Label returns the debug label.
func (e *CommandEncoder) Label() string { return e.label }

// Err returns the error that invalidated e, or nil.
func (e *CommandEncoder) Err() error { return e.err }

func (e *CommandEncoder) poison(err error) error {
	if err != nil && e.err == nil {
		e.err = err
	}
	return err
}

// recording checks that e accepts commands outside of a
// pass.
func (e *CommandEncoder) recording(op string) error {
	if err := e.dev.check(op); err != nil {
		return err
	}
	switch {
	case e.state == encFinished:
		return protoErr(op, ErrEncoderFinished)
	case e.err != nil:
		return protoErr(op, wrapf(ErrInvalidEncoder, "%v", e.err))
	case e.state == encPassOpen:
		return protoErr(op, ErrPassOpen)
	}
	return nil
}

// use records references to rs, which must be live objects
// of e's device.
func (e *CommandEncoder) use(op string, rs ...resource) error {
	for _, r := range rs {
		if err := e.dev.owned(r); err != nil {
			return stateErr(op, err)
		}
		e.refs[r.obj()] = struct{}{}
	}
	return nil
}

func (e *CommandEncoder) useBuffer(op string, b *Buffer, write bool) error {
	if err := e.use(op, b); err != nil {
		return err
	}
	e.bufs[b] = e.bufs[b] || write
	return nil
}

func (e *CommandEncoder) record(c Command) { e.cmds = append(e.cmds, c) }

// Finish ends recording and returns the command buffer.
// It fails with the first error reported by e, if any.
func (e *CommandEncoder) Finish() (*CommandBuffer, error) {
	const op = "CommandEncoder.Finish"
	if err := e.dev.check(op); err != nil {
		return nil, err
	}
	switch e.state {
	case encFinished:
		return nil, protoErr(op, ErrEncoderFinished)
	case encPassOpen:
		e.poison(protoErr(op, ErrPassOpen))
	}
	e.state = encFinished
	if e.err != nil {
		return nil, e.err
	}
	var held []*object
	for o := range e.refs {
		if err := o.retain(); err != nil {
			for _, o := range held {
				o.release()
			}
			return nil, e.poison(stateErr(op, err))
		}
		held = append(held, o)
	}
	cb := &CommandBuffer{
		dev:   e.dev,
		label: e.label,
		cmds:  e.cmds,
		refs:  e.refs,
		bufs:  e.bufs,
	}
	e.cmds, e.refs, e.bufs = nil, nil, nil
	slogger().Debug("gpu: command buffer finished", "label", cb.label, "commands", len(cb.cmds))
	return cb, nil
}

// CopyBufferToBuffer copies size bytes from src to dst.
// Offsets and size must be multiples of 4.
func (e *CommandEncoder) CopyBufferToBuffer(src *Buffer, srcOffset uint64, dst *Buffer, dstOffset, size uint64) error {
	return e.poison(e.copyBufferToBuffer(src, srcOffset, dst, dstOffset, size))
}

func (e *CommandEncoder) copyBufferToBuffer(src *Buffer, srcOffset uint64, dst *Buffer, dstOffset, size uint64) error {
	const op = "CommandEncoder.CopyBufferToBuffer"
	if err := e.recording(op); err != nil {
		return err
	}
	if src == nil || dst == nil {
		return configErr(op, ErrNilResource)
	}
	if err := e.use(op, src, dst); err != nil {
		return err
	}
	switch {
	case src.usage&gputypes.BufferUsageCopySrc == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "source lacks copy-src"))
	case dst.usage&gputypes.BufferUsageCopyDst == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "destination lacks copy-dst"))
	case srcOffset%4 != 0 || dstOffset%4 != 0 || size%4 != 0:
		return configErr(op, wrapf(ErrAlignment, "copy [%d, +%d) to [%d, +%d)", srcOffset, size, dstOffset, size))
	case src == dst:
		return configErr(op, wrapf(ErrInvalidValue, "source and destination are the same buffer"))
	case srcOffset > src.size || size > src.size-srcOffset:
		return configErr(op, wrapf(ErrOutOfBounds, "source [%d, +%d) of %d", srcOffset, size, src.size))
	case dstOffset > dst.size || size > dst.size-dstOffset:
		return configErr(op, wrapf(ErrOutOfBounds, "destination [%d, +%d) of %d", dstOffset, size, dst.size))
	}
	e.useBuffer(op, src, false)
	e.useBuffer(op, dst, true)
	e.record(&CopyBufferToBufferCmd{
		Src:       src,
		SrcOffset: srcOffset,
		Dst:       dst,
		DstOffset: dstOffset,
		Size:      size,
	})
	return nil
}

// CopyBufferToTexture copies from a buffer to a texture.
func (e *CommandEncoder) CopyBufferToTexture(src *ImageCopyBuffer, dst *ImageCopyTexture, size Extent3D) error {
	return e.poison(e.copyBufferTexture("CommandEncoder.CopyBufferToTexture", src, dst, size, true))
}

// CopyTextureToBuffer copies from a texture to a buffer.
func (e *CommandEncoder) CopyTextureToBuffer(src *ImageCopyTexture, dst *ImageCopyBuffer, size Extent3D) error {
	return e.poison(e.copyBufferTexture("CommandEncoder.CopyTextureToBuffer", dst, src, size, false))
}

func (e *CommandEncoder) copyBufferTexture(op string, ib *ImageCopyBuffer, it *ImageCopyTexture, size Extent3D, toTex bool) error {
	if err := e.recording(op); err != nil {
		return err
	}
	if ib == nil || it == nil {
		return configErr(op, ErrNilDescriptor)
	}
	if ib.Buffer == nil || it.Texture == nil {
		return configErr(op, ErrNilResource)
	}
	buf, tex := ib.Buffer, it.Texture
	if err := e.use(op, buf, tex); err != nil {
		return err
	}
	bufUsage, texUsage := gputypes.BufferUsageCopySrc, gputypes.TextureUsageCopyDst
	if !toTex {
		bufUsage, texUsage = gputypes.BufferUsageCopyDst, gputypes.TextureUsageCopySrc
	}
	switch {
	case buf.usage&bufUsage == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "buffer usage %#x", uint32(buf.usage)))
	case tex.desc.Usage&texUsage == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "texture usage %#x", uint32(tex.desc.Usage)))
	case tex.desc.SampleCount != 1:
		return configErr(op, wrapf(ErrInvalidValue, "multisampled texture"))
	}
	caps, _ := Caps(tex.desc.Format)
	if caps.TexelSize == 0 {
		return configErr(op, wrapf(ErrUnsupported, "%s is not copyable", caps.Name))
	}
	if err := validateRegion(it, size); err != nil {
		return configErr(op, err)
	}
	layout := *ib
	if err := resolveLayout(&layout, caps.TexelSize, size); err != nil {
		return configErr(op, err)
	}
	if buf.size < layout.Offset || requiredBytes(&layout, caps.TexelSize, size) > buf.size-layout.Offset {
		return configErr(op, wrapf(ErrOutOfBounds, "copy of %dx%dx%d at buffer offset %d",
			size.Width, size.Height, size.DepthOrArrayLayers, layout.Offset))
	}
	e.useBuffer(op, buf, !toTex)
	if toTex {
		e.record(&CopyBufferToTextureCmd{Src: layout, Dst: *it, Size: size})
	} else {
		e.record(&CopyTextureToBufferCmd{Src: *it, Dst: layout, Size: size})
	}
	return nil
}

// validateRegion checks that a copy region lies within a
// mip level of the texture.
func validateRegion(it *ImageCopyTexture, size Extent3D) error {
	td := &it.Texture.desc
	if it.MipLevel >= td.MipLevelCount {
		return wrapf(ErrOutOfBounds, "mip level %d", it.MipLevel)
	}
	ext := mipExtent(td.Dimension, td.Size, it.MipLevel)
	o := it.Origin
	if uint64(o.X)+uint64(size.Width) > uint64(ext.Width) ||
		uint64(o.Y)+uint64(size.Height) > uint64(ext.Height) ||
		uint64(o.Z)+uint64(size.DepthOrArrayLayers) > uint64(ext.DepthOrArrayLayers) {
		return wrapf(ErrOutOfBounds, "region (%d,%d,%d)+%dx%dx%d of %dx%dx%d",
			o.X, o.Y, o.Z, size.Width, size.Height, size.DepthOrArrayLayers,
			ext.Width, ext.Height, ext.DepthOrArrayLayers)
	}
	if IsDepthStencil(td.Format) && (o.X != 0 || o.Y != 0 || size.Width != ext.Width || size.Height != ext.Height) {
		return wrapf(ErrInvalidValue, "partial depth/stencil copy")
	}
	return nil
}

// resolveLayout validates the buffer layout of a
// buffer/texture copy and fills in its defaults.
func resolveLayout(l *ImageCopyBuffer, texel uint32, size Extent3D) error {
	row := uint64(size.Width) * uint64(texel)
	switch {
	case l.Offset%uint64(texel) != 0:
		return wrapf(ErrAlignment, "buffer offset %d for texel size %d", l.Offset, texel)
	case l.BytesPerRow == 0:
		if size.Height > 1 || size.DepthOrArrayLayers > 1 {
			return wrapf(ErrInvalidValue, "bytes per row required")
		}
		l.BytesPerRow = uint32(row)
	case l.BytesPerRow%BytesPerRowAlignment != 0:
		return wrapf(ErrAlignment, "bytes per row %d", l.BytesPerRow)
	case uint64(l.BytesPerRow) < row:
		return wrapf(ErrInvalidValue, "bytes per row %d for %d-byte row", l.BytesPerRow, row)
	}
	switch {
	case l.RowsPerImage == 0:
		l.RowsPerImage = size.Height
	case l.RowsPerImage < size.Height:
		return wrapf(ErrInvalidValue, "rows per image %d for height %d", l.RowsPerImage, size.Height)
	}
	return nil
}

// requiredBytes returns the number of buffer bytes that a
// copy of size touches, starting at the layout's offset.
func requiredBytes(l *ImageCopyBuffer, texel uint32, size Extent3D) uint64 {
	if size.Width == 0 || size.Height == 0 || size.DepthOrArrayLayers == 0 {
		return 0
	}
	bpr := uint64(l.BytesPerRow)
	img := bpr * uint64(l.RowsPerImage)
	return img*uint64(size.DepthOrArrayLayers-1) + bpr*uint64(size.Height-1) + uint64(size.Width)*uint64(texel)
}

// CopyTextureToTexture copies between textures.
// The formats must be equal except for sRGB-ness.
func (e *CommandEncoder) CopyTextureToTexture(src, dst *ImageCopyTexture, size Extent3D) error {
	return e.poison(e.copyTextureToTexture(src, dst, size))
}

func (e *CommandEncoder) copyTextureToTexture(src, dst *ImageCopyTexture, size Extent3D) error {
	const op = "CommandEncoder.CopyTextureToTexture"
	if err := e.recording(op); err != nil {
		return err
	}
	if src == nil || dst == nil {
		return configErr(op, ErrNilDescriptor)
	}
	if src.Texture == nil || dst.Texture == nil {
		return configErr(op, ErrNilResource)
	}
	s, d := src.Texture, dst.Texture
	if err := e.use(op, s, d); err != nil {
		return err
	}
	switch {
	case s.desc.Usage&gputypes.TextureUsageCopySrc == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "source lacks copy-src"))
	case d.desc.Usage&gputypes.TextureUsageCopyDst == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "destination lacks copy-dst"))
	case !viewCompatible(s.desc.Format, d.desc.Format) && !viewCompatible(d.desc.Format, s.desc.Format):
		return configErr(op, wrapf(ErrUnsupported, "copy from %s to %s", FormatName(s.desc.Format), FormatName(d.desc.Format)))
	case s.desc.SampleCount != d.desc.SampleCount:
		return configErr(op, wrapf(ErrInvalidValue, "sample count %d to %d", s.desc.SampleCount, d.desc.SampleCount))
	case s == d && src.MipLevel == dst.MipLevel:
		return configErr(op, wrapf(ErrInvalidValue, "copy within the same subresource"))
	}
	if err := validateRegion(src, size); err != nil {
		return configErr(op, err)
	}
	if err := validateRegion(dst, size); err != nil {
		return configErr(op, err)
	}
	e.record(&CopyTextureToTextureCmd{Src: *src, Dst: *dst, Size: size})
	return nil
}

// FillBuffer sets size bytes of buf, starting at offset,
// to value. size 0 fills the rest of the buffer.
// offset and size must be multiples of 4.
func (e *CommandEncoder) FillBuffer(buf *Buffer, offset, size uint64, value byte) error {
	return e.poison(e.fillBuffer(buf, offset, size, value))
}

func (e *CommandEncoder) fillBuffer(buf *Buffer, offset, size uint64, value byte) error {
	const op = "CommandEncoder.FillBuffer"
	if err := e.recording(op); err != nil {
		return err
	}
	if buf == nil {
		return configErr(op, ErrNilResource)
	}
	if err := e.use(op, buf); err != nil {
		return err
	}
	if size == 0 && offset <= buf.size {
		size = buf.size - offset
	}
	switch {
	case buf.usage&gputypes.BufferUsageCopyDst == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "copy-dst"))
	case offset%4 != 0 || size%4 != 0:
		return configErr(op, wrapf(ErrAlignment, "fill [%d, +%d)", offset, size))
	case offset > buf.size || size > buf.size-offset:
		return configErr(op, wrapf(ErrOutOfBounds, "fill [%d, +%d) of %d", offset, size, buf.size))
	}
	e.useBuffer(op, buf, true)
	e.record(&FillBufferCmd{Buffer: buf, Offset: offset, Size: size, Value: value})
	return nil
}

// ResolveQuerySet copies the results of count queries,
// starting at first, into dst at dstOffset.
// Each result is a 64-bit little-endian integer.
func (e *CommandEncoder) ResolveQuerySet(set *QuerySet, first, count uint32, dst *Buffer, dstOffset uint64) error {
	return e.poison(e.resolveQuerySet(set, first, count, dst, dstOffset))
}

func (e *CommandEncoder) resolveQuerySet(set *QuerySet, first, count uint32, dst *Buffer, dstOffset uint64) error {
	const op = "CommandEncoder.ResolveQuerySet"
	if err := e.recording(op); err != nil {
		return err
	}
	if set == nil || dst == nil {
		return configErr(op, ErrNilResource)
	}
	if err := e.use(op, set, dst); err != nil {
		return err
	}
	n := uint64(count) * QuerySize
	switch {
	case dst.usage&gputypes.BufferUsageQueryResolve == 0:
		return stateErr(op, wrapf(ErrMissingUsage, "query-resolve"))
	case uint64(first)+uint64(count) > uint64(set.count):
		return configErr(op, wrapf(ErrOutOfBounds, "queries [%d, +%d) of %d", first, count, set.count))
	case dstOffset%QueryResolveAlignment != 0:
		return configErr(op, wrapf(ErrAlignment, "resolve offset %d", dstOffset))
	case dstOffset > dst.size || n > dst.size-dstOffset:
		return configErr(op, wrapf(ErrOutOfBounds, "resolve [%d, +%d) of %d", dstOffset, n, dst.size))
	}
	e.useBuffer(op, dst, true)
	e.record(&ResolveQuerySetCmd{
		QuerySet:   set,
		FirstQuery: first,
		QueryCount: count,
		Dst:        dst,
		DstOffset:  dstOffset,
	})
	return nil
}

// WriteTimestamp writes a timestamp into a query.
// It requires FeatureTimestampQuery.
func (e *CommandEncoder) WriteTimestamp(set *QuerySet, index uint32) error {
	return e.poison(e.writeTimestamp(set, index))
}

func (e *CommandEncoder) writeTimestamp(set *QuerySet, index uint32) error {
	const op = "CommandEncoder.WriteTimestamp"
	if err := e.recording(op); err != nil {
		return err
	}
	if !e.dev.features.Has(FeatureTimestampQuery) {
		return configErr(op, wrapf(ErrMissingFeature, "timestamp-query"))
	}
	if set == nil {
		return configErr(op, ErrNilResource)
	}
	if err := e.use(op, set); err != nil {
		return err
	}
	switch {
	case set.typ != QueryTimestamp:
		return configErr(op, wrapf(ErrInvalidValue, "%v query set", set.typ))
	case index >= set.count:
		return configErr(op, wrapf(ErrOutOfBounds, "query %d of %d", index, set.count))
	}
	e.record(&WriteTimestampCmd{QuerySet: set, Index: index})
	return nil
}

// timestamps validates the timestamp writes of a pass and
// returns a copy of them.
func (e *CommandEncoder) timestamps(op string, tw *PassTimestampWrites) (*PassTimestampWrites, error) {
	if tw == nil {
		return nil, nil
	}
	if !e.dev.features.Has(FeatureTimestampQuery) {
		return nil, configErr(op, wrapf(ErrMissingFeature, "timestamp-query"))
	}
	if tw.QuerySet == nil {
		return nil, configErr(op, ErrNilResource)
	}
	if err := e.use(op, tw.QuerySet); err != nil {
		return nil, err
	}
	set := tw.QuerySet
	switch {
	case set.typ != QueryTimestamp:
		return nil, configErr(op, wrapf(ErrInvalidValue, "%v query set", set.typ))
	case tw.BeginIndex == QuerySkip && tw.EndIndex == QuerySkip:
		return nil, configErr(op, wrapf(ErrInvalidValue, "no timestamp selected"))
	case tw.BeginIndex == tw.EndIndex:
		return nil, configErr(op, wrapf(ErrInvalidValue, "begin and end timestamps share query %d", tw.BeginIndex))
	case tw.BeginIndex != QuerySkip && tw.BeginIndex >= set.count,
		tw.EndIndex != QuerySkip && tw.EndIndex >= set.count:
		return nil, configErr(op, wrapf(ErrOutOfBounds, "timestamp queries %d, %d of %d", tw.BeginIndex, tw.EndIndex, set.count))
	}
	c := *tw
	return &c, nil
}
