package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the contents of the CR2 register, which the CPU populates
// with the faulting virtual address on a page fault.
func ReadCR2() uint64

// Outb writes a byte to the given I/O port.
func Outb(port uint16, value uint8)

// Inb reads a byte from the given I/O port.
func Inb(port uint16) uint8

// EnterUserMode performs the architecture's ring 0 -> ring 3 transition,
// loading the user data/code segment selectors, pointing RSP at the
// supplied stack and jumping to entry. It does not return: control only
// comes back to kernel code through a later interrupt or syscall trap.
func EnterUserMode(entry, rsp uintptr)

// ReadBasePointer returns the caller's current RBP, the head of the frame
// pointer chain a panic backtrace walks.
func ReadBasePointer() uintptr
