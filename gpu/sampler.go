// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import "github.com/gogpu/gputypes"

// SamplerDescriptor describes a Sampler.
// LodMaxClamp 0 means 32 and MaxAnisotropy 0 means 1.
// A zero Compare creates a non-comparison sampler.
type SamplerDescriptor struct {
	Label        string
	AddressModeU AddressMode
	AddressModeV AddressMode
	AddressModeW AddressMode
	MagFilter    FilterMode
	MinFilter    FilterMode
	MipmapFilter FilterMode
	LodMinClamp  float32
	LodMaxClamp  float32
	Compare      CompareFunction
	// Values greater than 1 require linear filters.
	MaxAnisotropy uint16
}

// Sampler holds texture sampling state.
type Sampler struct {
	object
	h    SamplerHandle
	desc SamplerDescriptor
}

// CreateSampler creates a new sampler.
func (d *Device) CreateSampler(desc *SamplerDescriptor) (*Sampler, error) {
	const op = "Device.CreateSampler"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	dc := *desc
	if dc.LodMaxClamp == 0 {
		dc.LodMaxClamp = 32
	}
	if dc.MaxAnisotropy == 0 {
		dc.MaxAnisotropy = 1
	}
	switch {
	case dc.LodMinClamp < 0 || dc.LodMaxClamp < dc.LodMinClamp:
		return nil, configErr(op, wrapf(ErrInvalidValue, "LOD clamp [%g, %g]", dc.LodMinClamp, dc.LodMaxClamp))
	case dc.MaxAnisotropy > 16:
		return nil, configErr(op, wrapf(ErrLimit, "max anisotropy %d", dc.MaxAnisotropy))
	case dc.MaxAnisotropy > 1 && (dc.MagFilter != gputypes.FilterModeLinear ||
		dc.MinFilter != gputypes.FilterModeLinear || dc.MipmapFilter != gputypes.FilterModeLinear):
		return nil, configErr(op, wrapf(ErrInvalidValue, "anisotropic filtering requires linear filters"))
	}
	h, err := d.be.NewSampler(&dc)
	if err != nil {
		return nil, d.fail(op, err)
	}
	s := &Sampler{h: h, desc: dc}
	s.init(d, dc.Label)
	d.created()
	return s, nil
}

// IsComparison reports whether s is a comparison sampler.
func (s *Sampler) IsComparison() bool { return s.desc.Compare != 0 }

// Descriptor returns the sampler's descriptor, with
// defaults applied.
func (s *Sampler) Descriptor() SamplerDescriptor { return s.desc }

// Handle returns the backend's handle.
func (s *Sampler) Handle() SamplerHandle { return s.h }

// Destroy destroys the sampler.
func (s *Sampler) Destroy() error {
	if err := s.kill("Sampler.Destroy"); err != nil {
		return err
	}
	s.h.Destroy()
	s.dev.forget()
	return nil
}
