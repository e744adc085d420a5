package multiboot

import "hadron/kernel/bootinfo"

// typeToBootinfo maps a Multiboot2 memory region type to the bootloader-
// neutral bootinfo.MemoryEntryType the rest of the kernel consumes.
func typeToBootinfo(t MemoryEntryType) bootinfo.MemoryEntryType {
	switch t {
	case MemAvailable:
		return bootinfo.MemUsable
	case MemAcpiReclaimable:
		return bootinfo.MemAcpiReclaimable
	case MemNvs:
		return bootinfo.MemAcpiNvs
	default:
		return bootinfo.MemReserved
	}
}

// ToBootInfo walks the Multiboot2 tags that SetInfoPtr pointed us at and
// assembles the bootloader-neutral bootinfo.Info the rest of the kernel is
// written against. Multiboot2 does not supply most of the fields spec.md §6
// lists (no HHDM offset, no RSDP tag parsed here, no initrd location) — this
// adapter leaves those as the zero value, matching a real Multiboot2 boot
// path, which is weaker than the Limine-style protocol the rest of this
// specification assumes. A production bootloader stub would populate those
// fields directly instead of going through this adapter.
func ToBootInfo() *bootinfo.Info {
	var regions []bootinfo.MemoryMapEntry
	VisitMemRegions(func(e *MemoryMapEntry) bool {
		regions = append(regions, bootinfo.MemoryMapEntry{
			PhysAddress: e.PhysAddress,
			Length:      e.Length,
			Type:        typeToBootinfo(e.Type),
		})
		return true
	})

	info := bootinfo.NewInfo(regions)

	if fb := GetFramebufferInfo(); fb != nil {
		info.Framebuffers = []bootinfo.Framebuffer{{
			PhysAddress: fb.PhysAddr,
			Width:       fb.Width,
			Height:      fb.Height,
			Pitch:       fb.Pitch,
			Bpp:         fb.Bpp,
		}}
	}

	return info
}
