// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package gpu

import "sync"

// Driver is the interface that provides methods for
// loading and unloading a backend implementation.
type Driver interface {
	// Open initializes the driver.
	// If it succeeds, further calls with the same receiver
	// have no effect and must return the same Backend.
	// Callers should assume that Open is not safe for
	// parallel execution.
	Open() (Backend, error)

	// Name returns the name of the driver.
	// It must not cause the driver to be opened.
	Name() string

	// Close deinitializes the driver.
	// Closing a driver that is not open has no effect.
	Close()
}

// Drivers returns the registered Drivers.
// Client code imports specific driver packages, and then
// calls this function. Drivers that do not register
// themselves on init will not be considered for selection.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, len(drivers))
	copy(drv, drivers)
	return drv
}

// Register registers a Driver.
// Driver implementations are expected to call Register
// exactly once, from an init function.
// If a driver with the same name has already been
// registered, it will be replaced by drv.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	propagateLogger(drv, slogger())
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			slogger().Warn("gpu: driver replaced", "name", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
	slogger().Info("gpu: driver registered", "name", drv.Name())
}

// Lookup returns the registered driver with the given name.
// The empty string selects the first registered driver.
func Lookup(name string) (Driver, error) {
	mu.Lock()
	defer mu.Unlock()
	for _, d := range drivers {
		if name == "" || d.Name() == name {
			return d, nil
		}
	}
	if name == "" {
		return nil, configErr("Lookup", ErrNoDriver)
	}
	return nil, configErr("Lookup", wrapf(ErrNoDriver, "%q", name))
}

// Open opens the named driver and creates a Device from it.
// If name is empty, cfg.Driver is used instead.
func Open(name string, cfg Config) (*Device, error) {
	if name == "" {
		name = cfg.Driver
	}
	drv, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	be, err := drv.Open()
	if err != nil {
		return nil, lostErr("Open", err)
	}
	return NewDevice(be, cfg)
}

// Variables used for driver registration.
var (
	mu      sync.Mutex
	drivers = make([]Driver, 0, 1)
)
