// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// WebGPU enumerations.
// These are the stable integer tags shared with backends.
type (
	TextureFormat        = gputypes.TextureFormat
	TextureUsage         = gputypes.TextureUsage
	TextureDimension     = gputypes.TextureDimension
	TextureViewDimension = gputypes.TextureViewDimension
	TextureSampleType    = gputypes.TextureSampleType
	BufferUsage          = gputypes.BufferUsage
	BufferBindingType    = gputypes.BufferBindingType
	ShaderStage          = gputypes.ShaderStage
	VertexFormat         = gputypes.VertexFormat
	VertexStepMode       = gputypes.VertexStepMode
	PrimitiveTopology    = gputypes.PrimitiveTopology
	IndexFormat          = gputypes.IndexFormat
	CullMode             = gputypes.CullMode
	FrontFace            = gputypes.FrontFace
	BlendFactor          = gputypes.BlendFactor
	BlendOperation       = gputypes.BlendOperation
	ColorWriteMask       = gputypes.ColorWriteMask
	CompareFunction      = gputypes.CompareFunction
	AddressMode          = gputypes.AddressMode
	FilterMode           = gputypes.FilterMode
	MapMode              = gputypes.MapMode
	Extent3D             = gputypes.Extent3D
)

// LoadOp is the type of an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LoadDontCare LoadOp = iota
	LoadLoad
	LoadClear
)

// String implements fmt.Stringer.
func (op LoadOp) String() string {
	switch op {
	case LoadDontCare:
		return "dont-care"
	case LoadLoad:
		return "load"
	case LoadClear:
		return "clear"
	}
	return fmt.Sprintf("LoadOp(%d)", int(op))
}

// StoreOp is the type of an attachment's store operation.
type StoreOp int

// Store operations.
const (
	StoreDontCare StoreOp = iota
	StoreStore
)

// String implements fmt.Stringer.
func (op StoreOp) String() string {
	switch op {
	case StoreDontCare:
		return "dont-care"
	case StoreStore:
		return "store"
	}
	return fmt.Sprintf("StoreOp(%d)", int(op))
}

// QueryType is the type of a query set.
type QueryType int

// Query types.
const (
	QueryOcclusion QueryType = iota
	QueryTimestamp
)

// String implements fmt.Stringer.
func (t QueryType) String() string {
	switch t {
	case QueryOcclusion:
		return "occlusion"
	case QueryTimestamp:
		return "timestamp"
	}
	return fmt.Sprintf("QueryType(%d)", int(t))
}

// PresentMode is the type of swapchain presentation modes.
// The zero value selects the platform profile's default.
type PresentMode int

// Presentation modes.
const (
	PresentFIFO PresentMode = iota + 1
	PresentFIFORelaxed
	PresentMailbox
	PresentImmediate
)

// String implements fmt.Stringer.
func (m PresentMode) String() string {
	switch m {
	case 0:
		return "default"
	case PresentFIFO:
		return "fifo"
	case PresentFIFORelaxed:
		return "fifo-relaxed"
	case PresentMailbox:
		return "mailbox"
	case PresentImmediate:
		return "immediate"
	}
	return fmt.Sprintf("PresentMode(%d)", int(m))
}

// ParsePresentMode parses the String form of a PresentMode.
func ParsePresentMode(s string) (PresentMode, error) {
	for m := PresentMode(0); m <= PresentImmediate; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, wrapf(ErrInvalidValue, "present mode %q", s)
}

// Features is a mask of optional device capabilities.
type Features uint32

// Optional features.
const (
	// FeatureTimestampQuery enables timestamp query sets.
	FeatureTimestampQuery Features = 1 << iota
	// FeatureIndirect enables DrawIndirect,
	// DrawIndexedIndirect and DispatchIndirect.
	FeatureIndirect
)

// Has reports whether every feature in x is set in f.
func (f Features) Has(x Features) bool { return f&x == x }

// Color is an RGBA color value.
type Color struct {
	R, G, B, A float64
}

// Origin3D is a three-dimensional texel offset.
type Origin3D struct {
	X, Y, Z uint32
}

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height uint32
}
