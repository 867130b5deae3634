// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import "sync"

// object is embedded in every Device-created type.
// It tracks the number of live dependents (views, groups,
// pipelines, command buffers) that reference the object.
type object struct {
	dev   *Device
	label string
	mu    sync.Mutex
	refs  int
	dead  bool
}

// resource is implemented by every type that embeds object.
type resource interface {
	obj() *object
}

func (o *object) obj() *object { return o }

func (o *object) init(dev *Device, label string) {
	o.dev = dev
	o.label = label
}

// Label returns the debug label.
func (o *object) Label() string { return o.label }

// Device returns the Device that created the object.
func (o *object) Device() *Device { return o.dev }

// retain adds a dependent.
// It fails if the object was destroyed.
func (o *object) retain() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dead {
		return ErrDestroyed
	}
	o.refs++
	return nil
}

func (o *object) release() {
	o.mu.Lock()
	o.refs--
	o.mu.Unlock()
}

// kill marks the object as destroyed.
// It fails if the object has live dependents or was
// destroyed already.
func (o *object) kill(op string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.dead:
		return stateErr(op, ErrDestroyed)
	case o.refs > 0:
		return stateErr(op, wrapf(ErrInUse, "%d dependents", o.refs))
	}
	o.dead = true
	return nil
}

func (o *object) alive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.dead
}

// retainAll retains each of rs, releasing those already
// retained if one fails.
func retainAll(rs ...resource) error {
	for i, r := range rs {
		if err := r.obj().retain(); err != nil {
			releaseAll(rs[:i]...)
			return err
		}
	}
	return nil
}

func releaseAll(rs ...resource) {
	for _, r := range rs {
		r.obj().release()
	}
}

// owned checks that r is a live object of d.
func (d *Device) owned(r resource) error {
	o := r.obj()
	if o.dev != d {
		return ErrWrongDevice
	}
	if !o.alive() {
		return ErrDestroyed
	}
	return nil
}
