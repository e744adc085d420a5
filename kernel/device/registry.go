package device

import (
	"unsafe"

	"hadron/kernel"
	"hadron/kernel/cap"
	"hadron/kernel/sync"
)

var (
	// ErrAlreadyRegistered is returned when a descriptor names a driver
	// that is already active.
	ErrAlreadyRegistered = &kernel.Error{Module: "device", Message: "driver already registered"}

	// ErrNotFound is returned when looking up a driver that was never
	// probed successfully.
	ErrNotFound = &kernel.Error{Module: "device", Message: "driver not found"}
)

// Registry tracks every probed driver by name, under a single leveled lock
// (spec.md §4.E, level device-registry).
type Registry struct {
	lock    *sync.SpinLock
	drivers map[string]Driver
}

var global = newRegistry()

func newRegistry() *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	r.lock = sync.NewSpinLock(uintptr(unsafe.Pointer(r)), "device-registry", sync.LevelDeviceRegistry, sync.KindSpinLock)
	return r
}

// Probe mints exactly the capability tokens desc declares, constructs the
// driver, and runs its DriverInit. This is the sole integration point
// between the capability system (kernel/cap) and drivers: a driver never
// sees a capability it did not declare in its Descriptor.
func Probe(desc Descriptor, bdf cap.PCIAddress) *kernel.Error {
	return global.Probe(desc, bdf)
}

// Probe is the method form of the package-level function.
func (r *Registry) Probe(desc Descriptor, bdf cap.PCIAddress) *kernel.Error {
	r.lock.Acquire()
	if _, exists := r.drivers[desc.Name]; exists {
		r.lock.Release()
		return ErrAlreadyRegistered
	}
	r.lock.Release()

	ctx := cap.Mint(desc.Needs, bdf)
	drv := desc.New(ctx)

	if err := drv.DriverInit(); err != nil {
		return err
	}

	r.lock.Acquire()
	r.drivers[desc.Name] = drv
	r.lock.Release()
	return nil
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, *kernel.Error) {
	return global.Lookup(name)
}

// Lookup is the method form of the package-level function.
func (r *Registry) Lookup(name string) (Driver, *kernel.Error) {
	r.lock.Acquire()
	defer r.lock.Release()

	drv, ok := r.drivers[name]
	if !ok {
		return nil, ErrNotFound
	}
	return drv, nil
}

// Count returns the number of drivers currently registered.
func Count() int {
	return global.Count()
}

// Count is the method form of the package-level function.
func (r *Registry) Count() int {
	r.lock.Acquire()
	defer r.lock.Release()
	return len(r.drivers)
}
