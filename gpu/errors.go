// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"errors"
	"fmt"
)

// Kind classifies the errors returned by this package.
type Kind int

// Error kinds.
const (
	// KindConfig is a configuration error: the object
	// described by a descriptor cannot be created.
	KindConfig Kind = iota + 1
	// KindProtocol is a recording protocol error: a
	// method was called in the wrong encoder state.
	// It is fatal to the encoder.
	KindProtocol
	// KindResourceState is a resource-state error: the
	// call conflicts with the current state of a resource.
	KindResourceState
	// KindDeviceLost means that the device is gone.
	KindDeviceLost
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindProtocol:
		return "protocol"
	case KindResourceState:
		return "resource state"
	case KindDeviceLost:
		return "device lost"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the type of every error returned by the model.
// errors.Is matches both the kind sentinels (ErrConfig,
// ErrProtocol, ErrResourceState, ErrDeviceLost) and the
// wrapped cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrProtocol:
		return e.Kind == KindProtocol
	case ErrResourceState:
		return e.Kind == KindResourceState
	case ErrDeviceLost:
		return e.Kind == KindDeviceLost
	}
	return false
}

// Kind sentinels.
var (
	ErrConfig        = errors.New("gpu: configuration error")
	ErrProtocol      = errors.New("gpu: protocol error")
	ErrResourceState = errors.New("gpu: resource state error")
	// ErrDeviceLost means that the underlying device was
	// lost. Backends return it (possibly wrapped) from any
	// call; the device then becomes unusable and every
	// object created from it must be discarded.
	ErrDeviceLost = errors.New("gpu: device lost")
)

// Configuration errors.
var (
	ErrNilDescriptor    = errors.New("gpu: nil descriptor")
	ErrNilLayout        = errors.New("gpu: nil layout")
	ErrNilModule        = errors.New("gpu: nil shader module")
	ErrNilResource      = errors.New("gpu: nil resource")
	ErrZeroSize         = errors.New("gpu: zero size")
	ErrUnsupported      = errors.New("gpu: unsupported format or usage")
	ErrLimit            = errors.New("gpu: limit exceeded")
	ErrAlignment        = errors.New("gpu: misaligned offset or size")
	ErrOutOfBounds      = errors.New("gpu: range out of bounds")
	ErrDuplicateBinding = errors.New("gpu: duplicate binding index")
	ErrMissingBinding   = errors.New("gpu: missing binding")
	ErrUnknownBinding   = errors.New("gpu: binding not declared in layout")
	ErrBindingType      = errors.New("gpu: binding type mismatch")
	ErrNoEntryPoint     = errors.New("gpu: missing entry point")
	ErrInvalidValue     = errors.New("gpu: invalid value")
	ErrMissingFeature   = errors.New("gpu: feature not enabled")
	ErrNoDriver         = errors.New("gpu: driver not found")
)

// Protocol errors.
var (
	ErrPassOpen        = errors.New("gpu: a pass is open")
	ErrPassEnded       = errors.New("gpu: pass has ended")
	ErrEncoderFinished = errors.New("gpu: encoder already finished")
	ErrNoPipeline      = errors.New("gpu: no pipeline bound")
	ErrQueryActive     = errors.New("gpu: occlusion query already active")
	ErrQueryInactive   = errors.New("gpu: no occlusion query active")
	ErrInvalidEncoder  = errors.New("gpu: encoder is invalid")
)

// Resource-state errors.
var (
	ErrAlreadyMapped   = errors.New("gpu: buffer already mapped")
	ErrNotMapped       = errors.New("gpu: buffer not mapped")
	ErrNotMappable     = errors.New("gpu: buffer is not host visible")
	ErrMapped          = errors.New("gpu: buffer is mapped")
	ErrMissingUsage    = errors.New("gpu: resource lacks required usage")
	ErrLayoutMismatch  = errors.New("gpu: binding group layout mismatch")
	ErrIncompatible    = errors.New("gpu: pipeline incompatible with render pass")
	ErrUnbound         = errors.New("gpu: required binding not set")
	ErrInUse           = errors.New("gpu: object still in use")
	ErrDestroyed       = errors.New("gpu: object destroyed")
	ErrConsumed        = errors.New("gpu: command buffer already submitted")
	ErrWrongDevice     = errors.New("gpu: object belongs to another device")
	ErrNotAcquired     = errors.New("gpu: no swapchain texture acquired")
	ErrAlreadyAcquired = errors.New("gpu: swapchain texture already acquired")
	ErrRetired         = errors.New("gpu: swapchain retired")
	ErrQueryUsed       = errors.New("gpu: query index already used in this pass")
)

func newError(op string, kind Kind, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindDeviceLost {
		return err
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

func configErr(op string, err error) error { return newError(op, KindConfig, err) }

func protoErr(op string, err error) error { return newError(op, KindProtocol, err) }

func stateErr(op string, err error) error { return newError(op, KindResourceState, err) }

// lostErr wraps a backend failure. Errors that do not
// represent device loss are reported as configuration
// errors, since the object was not produced.
func lostErr(op string, err error) error {
	if errors.Is(err, ErrDeviceLost) {
		return &Error{Op: op, Kind: KindDeviceLost, Err: err}
	}
	return configErr(op, err)
}

// wrapf annotates a sentinel with formatted detail.
func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}
