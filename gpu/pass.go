// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import "slices"

type boundGroup struct {
	g       *BindingGroup
	offsets []uint32
}

// bindState tracks the binding groups set in a pass.
type bindState struct {
	groups []boundGroup
}

func (s *bindState) set(op string, e *CommandEncoder, index uint32, g *BindingGroup, offsets []uint32) error {
	if index >= e.dev.limits.MaxBindGroups {
		return configErr(op, wrapf(ErrLimit, "group index %d", index))
	}
	if g == nil {
		return configErr(op, ErrNilResource)
	}
	if err := e.use(op, g); err != nil {
		return err
	}
	if len(offsets) != len(g.dynamic) {
		return configErr(op, wrapf(ErrInvalidValue, "%d dynamic offsets for %d dynamic bindings", len(offsets), len(g.dynamic)))
	}
	for i, off := range offsets {
		db := &g.dynamic[i]
		switch {
		case off%db.align != 0:
			return configErr(op, wrapf(ErrAlignment, "dynamic offset %d (alignment %d)", off, db.align))
		case db.off+uint64(off)+db.size > db.buf.size:
			return configErr(op, wrapf(ErrOutOfBounds, "dynamic offset %d: [%d, +%d) of %d",
				off, db.off+uint64(off), db.size, db.buf.size))
		}
	}
	for i := range g.desc.Buffers {
		if err := e.useBuffer(op, g.desc.Buffers[i].Buffer, false); err != nil {
			return err
		}
	}
	for _, b := range g.writes {
		e.useBuffer(op, b, true)
	}
	if int(index) >= len(s.groups) {
		s.groups = append(s.groups, make([]boundGroup, int(index)+1-len(s.groups))...)
	}
	offsets = slices.Clone(offsets)
	s.groups[index] = boundGroup{g, offsets}
	e.record(&SetBindingGroupCmd{Index: index, Group: g, DynamicOffsets: offsets})
	return nil
}

// check verifies that the bound groups match the layouts of
// pl, index for index.
func (s *bindState) check(op string, d *Device, pl *PipelineLayout) error {
	for i, h := range pl.handles {
		if i >= len(s.groups) || s.groups[i].g == nil {
			return stateErr(op, wrapf(ErrUnbound, "binding group %d", i))
		}
		if s.groups[i].g.lh != h {
			return stateErr(op, wrapf(ErrLayoutMismatch, "binding group %d", i))
		}
		if _, err := d.Layout(h); err != nil {
			return stateErr(op, wrapf(ErrLayoutMismatch, "binding group %d: layout destroyed", i))
		}
	}
	return nil
}

// passCheck is the state check shared by pass encoders.
func passCheck(op string, e *CommandEncoder, ended bool) error {
	if err := e.dev.check(op); err != nil {
		return err
	}
	switch {
	case ended:
		return protoErr(op, ErrPassEnded)
	case e.state == encFinished:
		return protoErr(op, ErrEncoderFinished)
	case e.err != nil:
		return protoErr(op, wrapf(ErrInvalidEncoder, "%v", e.err))
	}
	return nil
}
