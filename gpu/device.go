// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package gpu implements a WebGPU-style device, resource and
// command model on top of pluggable backends.
//
// A Device validates descriptors, creates resources through
// its Backend and tracks their lifetimes. Work is recorded
// with a CommandEncoder, finished into a CommandBuffer and
// submitted to a Queue. Backends register themselves as
// Drivers; package gpu/soft provides a CPU implementation.
package gpu

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gviegas/hal/internal/arena"
)

// Device is the root factory.
// It creates every other object, validating descriptors
// before they reach its Backend.
// Its methods are safe for concurrent use.
type Device struct {
	be       Backend
	cfg      Config
	limits   Limits
	features Features
	profile  PlatformProfile

	live  atomic.Int64
	queue *Queue

	mu      sync.Mutex
	layouts arena.Arena[*BindingGroupLayout]

	lostOnce  sync.Once
	lost      chan struct{}
	lostErr   error
	destroyed atomic.Bool
}

// NewDevice creates a Device from a Backend.
// It fails if cfg requests limits or features that be
// cannot provide.
func NewDevice(be Backend, cfg Config) (*Device, error) {
	const op = "NewDevice"
	if be == nil {
		return nil, configErr(op, ErrNilResource)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limits, err := cfg.Limits.Resolve(be.Limits())
	if err != nil {
		return nil, configErr(op, err)
	}
	features := be.Features()
	if cfg.Features != 0 {
		if !features.Has(cfg.Features) {
			return nil, configErr(op, wrapf(ErrMissingFeature, "%v", FeatureNames(cfg.Features&^features)))
		}
		features = cfg.Features
	}
	d := &Device{
		be:       be,
		cfg:      cfg,
		limits:   limits,
		features: features,
		profile:  cfg.Profile(),
		lost:     make(chan struct{}),
	}
	d.queue = newQueue(d, "default", cfg.QueueDepth)
	slogger().Info("gpu: device created",
		"driver", be.Driver().Name(),
		"profile", d.profile.Name,
		"features", FeatureNames(features))
	return d, nil
}

// Backend returns the device's Backend.
func (d *Device) Backend() Backend { return d.be }

// Limits returns the limits in effect for the device.
func (d *Device) Limits() Limits { return d.limits }

// Features returns the enabled features.
func (d *Device) Features() Features { return d.features }

// Profile returns the platform profile in use.
func (d *Device) Profile() PlatformProfile { return d.profile }

// Queue returns the default queue.
// It lives as long as the device does.
func (d *Device) Queue() *Queue { return d.queue }

// Lost returns a channel that is closed when the device
// is lost.
func (d *Device) Lost() <-chan struct{} { return d.lost }

// Err returns the error that caused the device to be lost,
// or nil.
func (d *Device) Err() error {
	select {
	case <-d.lost:
		return d.lostErr
	default:
		return nil
	}
}

// LiveObjects returns the number of objects created by d
// that were not destroyed yet.
func (d *Device) LiveObjects() int { return int(d.live.Load()) }

// Destroy destroys the device.
// It fails with ErrInUse while objects created by d remain.
func (d *Device) Destroy() error {
	const op = "Device.Destroy"
	if n := d.live.Load(); n > 0 {
		return stateErr(op, wrapf(ErrInUse, "%d live objects", n))
	}
	if !d.destroyed.CompareAndSwap(false, true) {
		return stateErr(op, ErrDestroyed)
	}
	d.queue.stop()
	slogger().Info("gpu: device destroyed", "driver", d.be.Driver().Name())
	return nil
}

// check returns the error that every operation reports once
// the device is gone.
func (d *Device) check(op string) error {
	if d.destroyed.Load() {
		return stateErr(op, ErrDestroyed)
	}
	select {
	case <-d.lost:
		return &Error{Op: op, Kind: KindDeviceLost, Err: d.lostErr}
	default:
		return nil
	}
}

// fail converts a backend error, marking the device as lost
// if the error says so.
func (d *Device) fail(op string, err error) error {
	if errors.Is(err, ErrDeviceLost) {
		d.loseDevice(err)
	}
	return lostErr(op, err)
}

func (d *Device) loseDevice(err error) {
	d.lostOnce.Do(func() {
		if !errors.Is(err, ErrDeviceLost) {
			err = wrapf(ErrDeviceLost, "%v", err)
		}
		d.lostErr = err
		close(d.lost)
		slogger().Warn("gpu: device lost", "err", err)
	})
}

func (d *Device) created() { d.live.Add(1) }

func (d *Device) forget() { d.live.Add(-1) }
