package kmain

import (
	"unsafe"

	"hadron/kernel"
	"hadron/kernel/async"
	"hadron/kernel/backtrace"
	"hadron/kernel/bootinfo"
	"hadron/kernel/cpu"
	"hadron/kernel/driver/uart"
	"hadron/kernel/goruntime"
	"hadron/kernel/hal"
	"hadron/kernel/hal/multiboot"
	"hadron/kernel/klog"
	"hadron/kernel/mem"
	"hadron/kernel/mem/heap"
	"hadron/kernel/mem/hhdm"
	"hadron/kernel/mem/pmm"
	"hadron/kernel/mem/vmm"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// initialHeapSize is mapped and handed to the heap allocator before
	// any other subsystem may allocate. Subsequent growth goes through
	// growHeap.
	initialHeapSize = 256 * mem.Kb
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	bootInfo := multiboot.ToBootInfo()
	hhdm.Init(bootInfo.DirectMapBase)

	var err *kernel.Error
	if err = pmm.Init(bootInfo, kernelStart, kernelEnd); err != nil {
		panic(err)
	}
	vmm.SetFrameAllocator(pmm.AllocateFrame)

	if err = vmm.Init(); err != nil {
		panic(err)
	} else if err = goruntime.Init(); err != nil {
		panic(err)
	}

	initBacktrace(bootInfo)

	if err = bootstrapHeap(); err != nil {
		panic(err)
	}

	serial := uart.New(uart.COM1)
	if err := serial.Init(uart.Baud115200); err == nil {
		klog.AddSink(serial)
	}
	klog.Infof("kernel heap ready, entering the async executor")

	async.Init()
	async.Run(cpu.Halt)

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it. async.Run
	// never returns, so this is unreachable in practice.
	kernel.Panic(errKmainReturned)
}

// bootstrapHeap maps the heap's initial region and installs a grow callback
// so later allocations can extend it on demand. Both the initial region and
// every later growth come from vmm.EarlyReserveRegion: this kernel has no
// separate "general purpose kernel region" allocator, and a heap that only
// ever grows for the life of the kernel has no use for one either.
func bootstrapHeap() *kernel.Error {
	base, err := mapFreshRegion(initialHeapSize)
	if err != nil {
		return err
	}
	heap.Init(base, initialHeapSize)
	heap.RegisterGrowFunc(growHeap)
	return nil
}

func growHeap(minSize mem.Size) (uintptr, mem.Size, *kernel.Error) {
	size := minSize.AlignUp(mem.PageSize)
	base, err := mapFreshRegion(size)
	if err != nil {
		return 0, 0, err
	}
	return base, size, nil
}

// initBacktrace installs panic symbolication from the bootloader-supplied
// HBTF/HKIF module, if one was provided. A missing module only disables
// symbol/line resolution in panic output; it is never fatal.
func initBacktrace(bootInfo *bootinfo.Info) {
	if !bootInfo.HasBacktrace || bootInfo.Backtrace.Size == 0 {
		return
	}

	virtAddr := hhdm.ToVirtual(uintptr(bootInfo.Backtrace.Address))
	data := unsafe.Slice((*byte)(unsafe.Pointer(virtAddr)), int(bootInfo.Backtrace.Size))
	if err := backtrace.Init(uint64(bootInfo.KernelVirtBase), data); err != nil {
		klog.Warnf("backtrace: %s", err)
	}
}

// mapFreshRegion reserves size bytes of virtual address space and maps a
// freshly allocated, zero-filled physical frame behind every page of it.
func mapFreshRegion(size mem.Size) (uintptr, *kernel.Error) {
	base, err := vmm.EarlyReserveRegion(size)
	if err != nil {
		return 0, err
	}

	pages := size.Pages()
	for i := uint32(0); i < pages; i++ {
		frame, err := pmm.AllocateFrame()
		if err != nil {
			return 0, err
		}
		pageAddr := base + uintptr(i)*uintptr(mem.PageSize)
		page := vmm.PageFromAddress(pageAddr)
		if err := vmm.Map(page, frame, vmm.FlagPresent|vmm.FlagRW, pmm.AllocateFrame); err != nil {
			return 0, err
		}
		mem.Memset(pageAddr, 0, mem.PageSize)
	}
	return base, nil
}
