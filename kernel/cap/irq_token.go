package cap

import "hadron/kernel/irq"

// irqToken is the single shared IRQ capability instance; every driver that
// declares IRQ gets a pointer to it. The token carries no per-driver state —
// every operation it exposes already takes the vector/line it applies to —
// so sharing one instance is equivalent to minting a fresh value per driver.
var irqToken IRQToken

// IRQToken authorizes registering/unregistering a handler for an interrupt
// vector, allocating a fresh vector, and acknowledging an interrupt.
type IRQToken struct{}

// Handle registers handler to run when vector fires.
func (IRQToken) Handle(vector irq.Vector, handler irq.Handler) {
	irq.HandleIRQ(vector, handler)
}

// Unregister clears any handler registered for vector.
func (IRQToken) Unregister(vector irq.Vector) {
	irq.HandleIRQ(vector, nil)
}

// AllocateVector hands out the next free hardware interrupt vector above the
// 32 CPU exception vectors, or false if the vector space is exhausted.
func (IRQToken) AllocateVector() (irq.Vector, bool) {
	return allocateVector()
}

// nextVector is the bump cursor used by AllocateVector. Vectors 0-31 are CPU
// exceptions (kernel/irq's ExceptionNum range); hardware IRQs start at 32.
var nextVector = uint16(32)

func allocateVector() (irq.Vector, bool) {
	if nextVector > 255 {
		return 0, false
	}
	v := irq.Vector(nextVector)
	nextVector++
	return v, true
}

// MaskLine masks the given I/O APIC redirection entry so it no longer
// delivers interrupts.
func (IRQToken) MaskLine(line uint8) {
	ioapicMaskLine(line, true)
}

// UnmaskLine unmasks the given I/O APIC redirection entry.
func (IRQToken) UnmaskLine(line uint8) {
	ioapicMaskLine(line, false)
}

// SendEOI signals end-of-interrupt to the local APIC.
func (IRQToken) SendEOI() {
	sendEOI()
}

// ioapicMaskLine and sendEOI are var-wrapped so tests can observe calls
// without a real APIC present; production wiring replaces them during HAL
// bring-up.
var (
	ioapicMaskLine = func(line uint8, masked bool) {}
	sendEOI        = func() {}
)
