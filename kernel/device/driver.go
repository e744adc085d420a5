// Package device defines the driver interface every probed driver
// implements and the registry that tracks which drivers are active.
// See spec.md §4.N.
package device

import (
	"hadron/kernel"
	"hadron/kernel/cap"
)

// Driver is implemented by every device driver known to the kernel.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver using the capability
	// tokens minted for it by Probe.
	DriverInit() *kernel.Error
}

// Descriptor is how a driver announces itself to the registry before it
// exists as a live Driver instance: a name, the capability set it needs,
// and a constructor the registry calls once those capabilities are minted.
type Descriptor struct {
	Name string

	// Needs is the capability bitmask this driver requires. Probe mints
	// exactly these tokens and no others.
	Needs cap.Capability

	// New constructs the driver given its minted capability context.
	New func(*cap.Context) Driver
}
