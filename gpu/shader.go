// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"bytes"
	"slices"
)

// ShaderModuleDescriptor describes a ShaderModule.
// Code is opaque bytecode. If it starts with the SPIR-V
// magic number, its length must be a multiple of 4.
type ShaderModuleDescriptor struct {
	Label string
	Code  []byte
}

// ShaderModule is pre-compiled shader bytecode.
type ShaderModule struct {
	object
	h    ShaderModuleHandle
	size int
}

// Little-endian SPIR-V magic number.
var spirvMagic = []byte{0x03, 0x02, 0x23, 0x07}

// IsSPIRV reports whether code starts with the SPIR-V magic
// number.
func IsSPIRV(code []byte) bool { return bytes.HasPrefix(code, spirvMagic) }

// CreateShaderModule creates a new shader module.
func (d *Device) CreateShaderModule(desc *ShaderModuleDescriptor) (*ShaderModule, error) {
	const op = "Device.CreateShaderModule"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, configErr(op, ErrNilDescriptor)
	}
	if len(desc.Code) == 0 {
		return nil, configErr(op, ErrZeroSize)
	}
	if IsSPIRV(desc.Code) && len(desc.Code)%4 != 0 {
		return nil, configErr(op, wrapf(ErrAlignment, "SPIR-V code size %d", len(desc.Code)))
	}
	dc := ShaderModuleDescriptor{Label: desc.Label, Code: slices.Clone(desc.Code)}
	h, err := d.be.NewShaderModule(&dc)
	if err != nil {
		return nil, d.fail(op, err)
	}
	m := &ShaderModule{h: h, size: len(dc.Code)}
	m.init(d, dc.Label)
	d.created()
	slogger().Debug("gpu: shader module created", "label", dc.Label, "size", m.size)
	return m, nil
}

// CodeSize returns the size of the code in bytes.
func (m *ShaderModule) CodeSize() int { return m.size }

// Handle returns the backend's handle.
func (m *ShaderModule) Handle() ShaderModuleHandle { return m.h }

// Destroy destroys the shader module.
func (m *ShaderModule) Destroy() error {
	if err := m.kill("ShaderModule.Destroy"); err != nil {
		return err
	}
	m.h.Destroy()
	m.dev.forget()
	return nil
}
