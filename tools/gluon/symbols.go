package main

import (
	"debug/elf"

	"github.com/pkg/errors"
)

// funcSymbol is a function symbol extracted from the kernel ELF, with its
// address already rebased to an offset from the kernel's virtual base (the
// form the runtime backtrace lookup in kernel/backtrace expects).
type funcSymbol struct {
	Addr uint64
	Size uint32
	Name string
}

// kernelVirtBase returns the lowest PT_LOAD segment's virtual address, the
// same base every offset stored in the HBTF/HKIF output is computed
// against.
func kernelVirtBase(f *elf.File) uint64 {
	base := f.Entry
	haveLoad := false
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if !haveLoad || prog.Vaddr < base {
			base = prog.Vaddr
			haveLoad = true
		}
	}
	return base
}

// kernelImageSize returns the span covered by every PT_LOAD segment,
// measured from virtBase.
func kernelImageSize(f *elf.File, virtBase uint64) uint64 {
	var high uint64
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if end := prog.Vaddr + prog.Memsz; end > high {
			high = end
		}
	}
	if high < virtBase {
		return 0
	}
	return high - virtBase
}

// extractSymbols walks the ELF symbol table for defined STT_FUNC symbols at
// or above virtBase. Unlike the Rust original this codebase was ported
// from, Go symbol names need no demangling step: the Go linker already
// emits human-readable names (hadron/kernel.Panic, not a mangled form).
func extractSymbols(f *elf.File, virtBase uint64) ([]funcSymbol, error) {
	syms, err := f.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading ELF symbol table")
	}

	var result []funcSymbol
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Section == elf.SHN_UNDEF {
			continue
		}
		if sym.Value == 0 || sym.Value < virtBase {
			continue
		}
		if sym.Name == "" {
			continue
		}

		result = append(result, funcSymbol{
			Addr: sym.Value - virtBase,
			Size: uint32(sym.Size),
			Name: sym.Name,
		})
	}
	return result, nil
}
