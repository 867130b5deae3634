// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package soft implements gpu.Backend on the CPU.
//
// Resources live in host memory. Command buffers execute
// copies, fills, attachment clears and resolves, query
// writes and presentation; shader code is opaque, so draws
// only feed occlusion queries (through a coverage
// rasterizer that reads positions from vertex attribute
// location 0) and dispatches have no effect.
//
// Importing the package registers a driver named "soft".
package soft

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gviegas/hal/gpu"
)

const driverName = "soft"

// Driver implements gpu.Driver and gpu.Backend.
type Driver struct {
	// Guards the contents of every resource during
	// execution.
	mu sync.Mutex

	open  bool
	lim   gpu.Limits
	feat  gpu.Features
	start time.Time
	log   atomic.Pointer[slog.Logger]

	lost    atomic.Bool
	lostErr atomic.Pointer[error]
}

func init() {
	gpu.Register(New())
}

// New returns a new, unregistered Driver.
// Tests use it to obtain backends with independent device
// loss state.
func New() *Driver {
	d := &Driver{}
	d.log.Store(gpu.Logger())
	return d
}

// Open implements gpu.Driver.
func (d *Driver) Open() (gpu.Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return d, nil
	}
	d.lim = gpu.DefaultLimits()
	d.lim.MaxBindGroups = 8
	d.lim.MaxColorAttachments = 8
	d.lim.MaxBufferSize = 1 << 30
	d.lim.MaxStorageBufferBindingSize = 1 << 30
	d.feat = gpu.FeatureTimestampQuery | gpu.FeatureIndirect
	d.start = time.Now()
	d.open = true
	d.logger().Info("soft: driver opened", "limits", d.lim.String())
	return d, nil
}

// Name implements gpu.Driver.
func (d *Driver) Name() string { return driverName }

// Close implements gpu.Driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return
	}
	d.open = false
	d.logger().Info("soft: driver closed")
}

// SetLogger sets the driver's logger.
// It is called by gpu.SetLogger.
func (d *Driver) SetLogger(l *slog.Logger) {
	if l == nil {
		l = gpu.Logger()
	}
	d.log.Store(l)
}

func (d *Driver) logger() *slog.Logger { return d.log.Load() }

// Driver implements gpu.Backend.
func (d *Driver) Driver() gpu.Driver { return d }

// Limits implements gpu.Backend.
func (d *Driver) Limits() gpu.Limits { return d.lim }

// Features implements gpu.Backend.
func (d *Driver) Features() gpu.Features { return d.feat }

// Lose simulates the loss of the device.
// Every later backend call fails with an error wrapping
// gpu.ErrDeviceLost and err.
func (d *Driver) Lose(err error) {
	if err == nil {
		err = errors.New("soft: device removed")
	}
	e := errors.Join(gpu.ErrDeviceLost, err)
	if d.lostErr.CompareAndSwap(nil, &e) {
		d.lost.Store(true)
		d.logger().Warn("soft: device lost", "err", err)
	}
}

// check fails if the device was lost.
func (d *Driver) check() error {
	if d.lost.Load() {
		return *d.lostErr.Load()
	}
	return nil
}

// timestamp returns the nanoseconds elapsed since Open.
func (d *Driver) timestamp() uint64 { return uint64(time.Since(d.start).Nanoseconds()) }

// handle is the handle of objects that need no backend
// state.
type handle struct{}

func (handle) Destroy() {}

// NewSampler implements gpu.Backend.
func (d *Driver) NewSampler(*gpu.SamplerDescriptor) (gpu.SamplerHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return handle{}, nil
}

// NewShaderModule implements gpu.Backend.
func (d *Driver) NewShaderModule(*gpu.ShaderModuleDescriptor) (gpu.ShaderModuleHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return handle{}, nil
}

// NewBindingGroupLayout implements gpu.Backend.
func (d *Driver) NewBindingGroupLayout(*gpu.BindingGroupLayoutDescriptor) (gpu.BindingGroupLayoutHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return handle{}, nil
}

// NewBindingGroup implements gpu.Backend.
func (d *Driver) NewBindingGroup(gpu.BindingGroupLayoutHandle, *gpu.BindingGroupDescriptor) (gpu.BindingGroupHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return handle{}, nil
}

// NewPipelineLayout implements gpu.Backend.
func (d *Driver) NewPipelineLayout([]gpu.BindingGroupLayoutHandle) (gpu.PipelineLayoutHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return handle{}, nil
}

// NewRenderPipeline implements gpu.Backend.
func (d *Driver) NewRenderPipeline(gpu.PipelineLayoutHandle, *gpu.RenderPipelineDescriptor) (gpu.RenderPipelineHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return handle{}, nil
}

// NewComputePipeline implements gpu.Backend.
func (d *Driver) NewComputePipeline(gpu.PipelineLayoutHandle, *gpu.ComputePipelineDescriptor) (gpu.ComputePipelineHandle, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return handle{}, nil
}
