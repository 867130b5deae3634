// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

// ComputePassEncoder records the commands of a compute
// pass.
type ComputePassEncoder struct {
	enc        *CommandEncoder
	label      string
	ended      bool
	pipeline   *ComputePipeline
	binds      bindState
	timestamps *PassTimestampWrites
}

// BeginComputePass begins a compute pass.
// desc may be nil.
func (e *CommandEncoder) BeginComputePass(desc *ComputePassDescriptor) (*ComputePassEncoder, error) {
	const op = "CommandEncoder.BeginComputePass"
	if err := e.recording(op); err != nil {
		return nil, e.poison(err)
	}
	var dc ComputePassDescriptor
	if desc != nil {
		dc = *desc
	}
	tw, err := e.timestamps(op, dc.TimestampWrites)
	if err != nil {
		return nil, e.poison(err)
	}
	e.record(&BeginComputePassCmd{Label: dc.Label, TimestampWrites: tw})
	e.state = encPassOpen
	return &ComputePassEncoder{enc: e, label: dc.Label, timestamps: tw}, nil
}

// Label returns the pass's debug label.
func (cp *ComputePassEncoder) Label() string { return cp.label }

// SetPipeline binds a compute pipeline.
func (cp *ComputePassEncoder) SetPipeline(p *ComputePipeline) error {
	const op = "ComputePassEncoder.SetPipeline"
	e := cp.enc
	if err := passCheck(op, e, cp.ended); err != nil {
		return e.poison(err)
	}
	if p == nil {
		return e.poison(configErr(op, ErrNilResource))
	}
	if err := e.use(op, p); err != nil {
		return e.poison(err)
	}
	cp.pipeline = p
	e.record(&SetComputePipelineCmd{Pipeline: p})
	return nil
}

// SetBindingGroup binds g at index.
func (cp *ComputePassEncoder) SetBindingGroup(index uint32, g *BindingGroup, dynamicOffsets []uint32) error {
	const op = "ComputePassEncoder.SetBindingGroup"
	if err := passCheck(op, cp.enc, cp.ended); err != nil {
		return cp.enc.poison(err)
	}
	return cp.enc.poison(cp.binds.set(op, cp.enc, index, g, dynamicOffsets))
}

func (cp *ComputePassEncoder) dispatchable(op string) error {
	if err := passCheck(op, cp.enc, cp.ended); err != nil {
		return err
	}
	if cp.pipeline == nil {
		return protoErr(op, ErrNoPipeline)
	}
	return cp.binds.check(op, cp.enc.dev, cp.pipeline.layout)
}

// Dispatch dispatches x*y*z workgroups.
func (cp *ComputePassEncoder) Dispatch(x, y, z uint32) error {
	const op = "ComputePassEncoder.Dispatch"
	e := cp.enc
	if err := cp.dispatchable(op); err != nil {
		return e.poison(err)
	}
	if n := e.dev.limits.MaxComputeWorkgroupsPerDimension; x > n || y > n || z > n {
		return e.poison(configErr(op, wrapf(ErrLimit, "workgroups %dx%dx%d", x, y, z)))
	}
	e.record(&DispatchCmd{X: x, Y: y, Z: z})
	return nil
}

// DispatchIndirect dispatches with workgroup counts read
// from buf at offset. It requires FeatureIndirect.
func (cp *ComputePassEncoder) DispatchIndirect(buf *Buffer, offset uint64) error {
	const op = "ComputePassEncoder.DispatchIndirect"
	e := cp.enc
	if err := cp.dispatchable(op); err != nil {
		return e.poison(err)
	}
	if err := indirectArgs(op, e, buf, offset, DispatchIndirectSize); err != nil {
		return e.poison(err)
	}
	e.record(&DispatchIndirectCmd{Buffer: buf, Offset: offset})
	return nil
}

// End ends the pass.
func (cp *ComputePassEncoder) End() error {
	const op = "ComputePassEncoder.End"
	e := cp.enc
	if cp.ended {
		return e.poison(protoErr(op, ErrPassEnded))
	}
	cp.ended = true
	if e.state == encPassOpen {
		e.state = encRecording
	}
	if err := e.dev.check(op); err != nil {
		return e.poison(err)
	}
	if e.state == encFinished {
		return protoErr(op, ErrEncoderFinished)
	}
	if e.err == nil {
		e.record(&EndComputePassCmd{TimestampWrites: cp.timestamps})
	}
	return nil
}
