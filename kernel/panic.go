package kernel

import (
	"hadron/kernel/backtrace"
	"hadron/kernel/cpu"
	"hadron/kernel/kfmt/early"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic)
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	printBacktrace()
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}

// printBacktrace walks the caller's frame-pointer chain and prints a
// symbol/file/line for each frame backtrace.Init was able to resolve.
// Unresolved frames still print their raw address so the trace stays
// usable even against a kernel built without backtrace data.
func printBacktrace() {
	early.Printf("\nbacktrace:\n")
	backtrace.Walk(func(pc uintptr) bool {
		if f, ok := backtrace.Symbolicate(pc); ok {
			if f.File != "" {
				early.Printf("  %s+0x%x (%s:%d)\n", f.Symbol, f.FuncOffset, f.File, f.Line)
			} else {
				early.Printf("  %s+0x%x\n", f.Symbol, f.FuncOffset)
			}
		} else {
			early.Printf("  0x%x\n", pc)
		}
		return true
	})
}
