// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"context"

	"github.com/gogpu/gputypes"
)

// BufferDescriptor describes a Buffer.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
	// MappedAtCreation creates the buffer mapped for
	// writing. Size must be a multiple of 4.
	MappedAtCreation bool
	// DeviceLocal requests memory that the host cannot
	// map. Buffers are host visible otherwise.
	DeviceLocal bool
}

type mapState int

const (
	unmapped mapState = iota
	mapPending
	mapped
)

// Buffer is linear GPU memory.
// Host-visible buffers can be mapped for host access.
type Buffer struct {
	object
	h     BufferHandle
	size  uint64
	usage BufferUsage
	local bool

	// Guarded by object.mu.
	state     mapState
	mapMode   MapMode
	mapOff    uint64
	mapSize   uint64
	lastUse   *Fence
	lastWrite *Fence
}

// CreateBuffer creates a new buffer.
func (d *Device) CreateBuffer(desc *BufferDescriptor) (*Buffer, error) {
	const op = "Device.CreateBuffer"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	dc := *desc
	if err := d.validateBuffer(&dc); err != nil {
		return nil, configErr(op, err)
	}
	h, err := d.be.NewBuffer(&dc)
	if err != nil {
		return nil, d.fail(op, err)
	}
	b := &Buffer{
		h:     h,
		size:  dc.Size,
		usage: dc.Usage,
		local: dc.DeviceLocal,
	}
	b.init(d, dc.Label)
	if dc.MappedAtCreation {
		b.state = mapped
		b.mapMode = gputypes.MapModeWrite
		b.mapSize = dc.Size
	}
	d.created()
	slogger().Debug("gpu: buffer created", "label", dc.Label, "size", dc.Size, "usage", uint32(dc.Usage))
	return b, nil
}

const bufferUsageMask = gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite |
	gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
	gputypes.BufferUsageIndex | gputypes.BufferUsageVertex |
	gputypes.BufferUsageUniform | gputypes.BufferUsageStorage |
	gputypes.BufferUsageIndirect | gputypes.BufferUsageQueryResolve

func (d *Device) validateBuffer(desc *BufferDescriptor) error {
	switch {
	case desc.Size == 0:
		return ErrZeroSize
	case desc.Size > d.limits.MaxBufferSize:
		return wrapf(ErrLimit, "buffer size %d", desc.Size)
	case desc.Usage == 0 || desc.Usage&^bufferUsageMask != 0:
		return wrapf(ErrUnsupported, "buffer usage %#x", uint32(desc.Usage))
	case desc.MappedAtCreation && desc.Size%4 != 0:
		return wrapf(ErrAlignment, "mapped at creation size %d", desc.Size)
	}
	if desc.DeviceLocal {
		if desc.MappedAtCreation || desc.Usage&(gputypes.BufferUsageMapRead|gputypes.BufferUsageMapWrite) != 0 {
			return wrapf(ErrUnsupported, "device-local buffer cannot be mapped")
		}
	}
	return nil
}

// Size returns the size of the buffer in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the buffer usage.
func (b *Buffer) Usage() BufferUsage { return b.usage }

// HostVisible reports whether the buffer can be mapped.
func (b *Buffer) HostVisible() bool { return !b.local }

// Handle returns the backend's handle.
func (b *Buffer) Handle() BufferHandle { return b.h }

// Map maps a range of the buffer for host access.
// size 0 maps the rest of the buffer. offset must be a
// multiple of 8 and size a multiple of 4.
// Reading maps wait until submissions that write to the
// buffer complete; writing maps wait until every submission
// that uses the buffer completes.
// The returned slice must not be used after Unmap.
func (b *Buffer) Map(ctx context.Context, mode MapMode, offset, size uint64) ([]byte, error) {
	const op = "Buffer.Map"
	if err := b.dev.check(op); err != nil {
		return nil, err
	}
	if size == 0 && offset <= b.size {
		size = b.size - offset
	}
	switch {
	case mode != gputypes.MapModeRead && mode != gputypes.MapModeWrite:
		return nil, configErr(op, wrapf(ErrInvalidValue, "map mode %#x", uint32(mode)))
	case offset%8 != 0 || size%4 != 0:
		return nil, configErr(op, wrapf(ErrAlignment, "map range [%d, +%d)", offset, size))
	case offset > b.size || size > b.size-offset:
		return nil, configErr(op, wrapf(ErrOutOfBounds, "map range [%d, +%d) of %d", offset, size, b.size))
	}

	b.mu.Lock()
	switch {
	case b.dead:
		b.mu.Unlock()
		return nil, stateErr(op, ErrDestroyed)
	case b.local:
		b.mu.Unlock()
		return nil, stateErr(op, ErrNotMappable)
	case b.state != unmapped:
		b.mu.Unlock()
		return nil, stateErr(op, ErrAlreadyMapped)
	case !b.modeAllowed(mode):
		b.mu.Unlock()
		return nil, stateErr(op, wrapf(ErrMissingUsage, "map mode %#x", uint32(mode)))
	}
	wait := b.lastUse
	if mode == gputypes.MapModeRead {
		wait = b.lastWrite
	}
	b.state = mapPending
	b.mu.Unlock()

	if wait != nil {
		if err := wait.Wait(ctx); err != nil && ctx.Err() != nil {
			b.mu.Lock()
			b.state = unmapped
			b.mu.Unlock()
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead {
		return nil, stateErr(op, ErrDestroyed)
	}
	b.state = mapped
	b.mapMode = mode
	b.mapOff = offset
	b.mapSize = size
	return b.rangeLocked(), nil
}

// modeAllowed reports whether the usage permits mode.
// Buffers created without map usages can be mapped in
// either mode.
func (b *Buffer) modeAllowed(mode MapMode) bool {
	u := b.usage & (gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite)
	switch {
	case u == 0:
		return true
	case mode == gputypes.MapModeRead:
		return u&gputypes.BufferUsageMapRead != 0
	default:
		return u&gputypes.BufferUsageMapWrite != 0
	}
}

func (b *Buffer) rangeLocked() []byte {
	mem := b.h.Bytes()
	if mem == nil {
		return nil
	}
	return mem[b.mapOff : b.mapOff+b.mapSize : b.mapOff+b.mapSize]
}

// MappedRange returns the mapped range, or nil if the
// buffer is not mapped.
func (b *Buffer) MappedRange() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != mapped {
		return nil
	}
	return b.rangeLocked()
}

// Mapped reports whether the buffer is mapped.
func (b *Buffer) Mapped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == mapped
}

// Unmap unmaps the buffer.
func (b *Buffer) Unmap() error {
	const op = "Buffer.Unmap"
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.dead:
		return stateErr(op, ErrDestroyed)
	case b.state != mapped:
		return stateErr(op, ErrNotMapped)
	}
	b.state = unmapped
	b.mapOff, b.mapSize = 0, 0
	return nil
}

// bufferUse is the hazard state of a buffer before a
// submission marked it.
type bufferUse struct {
	buf       *Buffer
	lastUse   *Fence
	lastWrite *Fence
}

// use records that a submission signaling f uses the
// buffer, and writes to it if write is set.
// It fails if the buffer is mapped.
func (b *Buffer) use(f *Fence, write bool) (bufferUse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.dead:
		return bufferUse{}, ErrDestroyed
	case b.state != unmapped:
		return bufferUse{}, wrapf(ErrMapped, "buffer %q", b.label)
	}
	prev := bufferUse{b, b.lastUse, b.lastWrite}
	b.lastUse = f
	if write {
		b.lastWrite = f
	}
	return prev, nil
}

// unuse undoes use for a submission signaling f that was
// not enqueued.
func (u bufferUse) unuse(f *Fence) {
	b := u.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastUse == f {
		b.lastUse = u.lastUse
	}
	if b.lastWrite == f {
		b.lastWrite = u.lastWrite
	}
}

// Destroy destroys the buffer.
// A mapped buffer is unmapped first.
func (b *Buffer) Destroy() error {
	const op = "Buffer.Destroy"
	if err := b.kill(op); err != nil {
		return err
	}
	b.mu.Lock()
	b.state = unmapped
	b.mapOff, b.mapSize = 0, 0
	b.mu.Unlock()
	b.h.Destroy()
	b.dev.forget()
	slogger().Debug("gpu: buffer destroyed", "label", b.label)
	return nil
}
