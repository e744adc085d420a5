package main

import (
	"testing"

	"hadron/kernel/backtrace"
)

func TestBuildHKIFRoundTripsThroughParser(t *testing.T) {
	params := hkifParams{
		KernelVirtBase:  0xffffffff80000000,
		KernelImageSize: 0x40000,
		EntryPoint:      0xffffffff80001000,
	}
	syms := []funcSymbol{
		{Addr: 0x1000, Size: 0x40, Name: "hadron/kernel.Panic"},
	}
	lines := []lineInfo{
		{Addr: 0x1010, File: "kernel/panic.go", Line: 42},
	}

	payload := buildHKIF(params, syms, lines)

	img, err := backtrace.ParseHKIF(payload)
	if err != nil {
		t.Fatalf("ParseHKIF() error = %v", err)
	}
	if img.KernelVirtBase != params.KernelVirtBase {
		t.Fatalf("KernelVirtBase = %#x, want %#x", img.KernelVirtBase, params.KernelVirtBase)
	}
	if img.KernelImageSize != params.KernelImageSize {
		t.Fatalf("KernelImageSize = %#x, want %#x", img.KernelImageSize, params.KernelImageSize)
	}
	if img.EntryPoint != params.EntryPoint {
		t.Fatalf("EntryPoint = %#x, want %#x", img.EntryPoint, params.EntryPoint)
	}
	if !img.HasBacktrace {
		t.Fatalf("HasBacktrace = false, want true")
	}

	name, funcOff, ok := img.Table.LookupSymbol(0x1020)
	if !ok || name != "hadron/kernel.Panic" || funcOff != 0x20 {
		t.Fatalf("LookupSymbol(0x1020) = (%q, %#x, %v), want (hadron/kernel.Panic, 0x20, true)", name, funcOff, ok)
	}
}

func TestBuildHKIFDetectsCorruption(t *testing.T) {
	payload := buildHKIF(hkifParams{KernelVirtBase: 0x1000}, nil, nil)
	payload[hkifHeaderSize] ^= 0xff

	if _, err := backtrace.ParseHKIF(payload); err == nil {
		t.Fatalf("ParseHKIF() on a corrupted payload should fail its checksum check")
	}
}
