// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"encoding/binary"
	"fmt"

	"github.com/gviegas/hal/gpu"
)

// buffer implements gpu.BufferHandle.
type buffer struct {
	mem []byte
}

// NewBuffer implements gpu.Backend.
func (d *Driver) NewBuffer(desc *gpu.BufferDescriptor) (gpu.BufferHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &buffer{mem: make([]byte, desc.Size)}, nil
}

// Bytes implements gpu.BufferHandle.
// Device-local buffers are host memory too; the model never
// maps them.
func (b *buffer) Bytes() []byte { return b.mem }

// Destroy implements gpu.Destroyer.
func (b *buffer) Destroy() { b.mem = nil }

// WriteBuffer implements gpu.Backend.
func (d *Driver) WriteBuffer(buf gpu.BufferHandle, offset uint64, data []byte) error {
	if err := d.check(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(buf.(*buffer).mem[offset:], data)
	return nil
}

func bufferOf(b *gpu.Buffer) []byte { return b.Handle().(*buffer).mem }

// u32 reads the little-endian uint32 at index i of a record
// starting at off.
func u32(mem []byte, off uint64, i int) uint32 {
	return binary.LittleEndian.Uint32(mem[off+uint64(i)*4:])
}

// querySet implements gpu.QuerySetHandle.
type querySet struct {
	typ  gpu.QueryType
	vals []uint64
}

// NewQuerySet implements gpu.Backend.
func (d *Driver) NewQuerySet(desc *gpu.QuerySetDescriptor) (gpu.QuerySetHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &querySet{typ: desc.Type, vals: make([]uint64, desc.Count)}, nil
}

// Destroy implements gpu.Destroyer.
func (q *querySet) Destroy() { q.vals = nil }

func querySetOf(q *gpu.QuerySet) *querySet { return q.Handle().(*querySet) }

func (d *Driver) resolveQuerySet(c *gpu.ResolveQuerySetCmd) {
	q := querySetOf(c.QuerySet)
	dst := bufferOf(c.Dst)[c.DstOffset:]
	for i := range c.QueryCount {
		binary.LittleEndian.PutUint64(dst[i*gpu.QuerySize:], q.vals[c.FirstQuery+i])
	}
}

func (d *Driver) writeTimestamps(tw *gpu.PassTimestampWrites, end bool) {
	if tw == nil {
		return
	}
	i := tw.BeginIndex
	if end {
		i = tw.EndIndex
	}
	if i != gpu.QuerySkip {
		querySetOf(tw.QuerySet).vals[i] = d.timestamp()
	}
}

func (d *Driver) fillBuffer(c *gpu.FillBufferCmd) {
	mem := bufferOf(c.Buffer)[c.Offset : c.Offset+c.Size]
	for i := range mem {
		mem[i] = c.Value
	}
}

func (d *Driver) copyBufferToBuffer(c *gpu.CopyBufferToBufferCmd) {
	copy(bufferOf(c.Dst)[c.DstOffset:c.DstOffset+c.Size], bufferOf(c.Src)[c.SrcOffset:c.SrcOffset+c.Size])
}

// indirect reads n 32-bit arguments from buf at off.
func indirect(buf *gpu.Buffer, off uint64, n int) ([]uint32, error) {
	mem := bufferOf(buf)
	if off+uint64(n)*4 > uint64(len(mem)) {
		return nil, fmt.Errorf("soft: indirect arguments out of range")
	}
	args := make([]uint32, n)
	for i := range args {
		args[i] = u32(mem, off, i)
	}
	return args, nil
}
