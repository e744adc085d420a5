// Package cap mints the capability tokens that gate what a device driver is
// allowed to touch. A driver never receives a universal service handle;
// instead it declares a Capability bitmask and the registry (kernel/device)
// mints a Context exposing only the tokens for the capabilities declared.
// See spec.md §4.F.
package cap

// Capability is a bitmask of the six token kinds a driver may declare.
type Capability uint8

const (
	IRQ Capability = 1 << iota
	MMIO
	DMA
	PCIConfig
	TaskSpawner
	Timer
)

// Has reports whether every bit in want is set in c.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Context is the set of tokens minted for one driver instance. Only the
// fields corresponding to the driver's declared Capability bitmask are
// non-nil; dereferencing an undeclared one panics immediately rather than
// silently granting access, which is the runtime analogue of the compile-time
// "driver only implements HasCapability<C> for its declared capabilities"
// check the token types themselves cannot express in Go.
type Context struct {
	// Declared records the bitmask this Context was minted for, retained
	// for audit logs.
	Declared Capability

	IRQ         *IRQToken
	MMIO        *MMIOToken
	DMA         *DMAToken
	PCIConfig   *PCIConfigToken
	TaskSpawner *TaskSpawnerToken
	Timer       *TimerToken
}

// Mint builds a Context exposing exactly the tokens named by declared. Only
// the kernel's device registry calls this. The token types themselves are
// exported and their zero values are usable, so Mint limits which tokens a
// Context hands out but does not stop a package that names a token type
// directly from constructing one.
func Mint(declared Capability, bdf PCIAddress) *Context {
	ctx := &Context{Declared: declared}
	if declared.Has(IRQ) {
		ctx.IRQ = &irqToken
	}
	if declared.Has(MMIO) {
		ctx.MMIO = &mmioToken
	}
	if declared.Has(DMA) {
		ctx.DMA = &dmaToken
	}
	if declared.Has(PCIConfig) {
		ctx.PCIConfig = &PCIConfigToken{bdf: bdf}
	}
	if declared.Has(TaskSpawner) {
		ctx.TaskSpawner = &taskSpawnerToken
	}
	if declared.Has(Timer) {
		ctx.Timer = &timerToken
	}
	return ctx
}
