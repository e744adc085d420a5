package backtrace

// current holds whatever backtrace data Init last installed. nil until
// Init succeeds, in which case every lookup degrades to "not found" rather
// than panicking — a crash while printing a panic must never itself panic.
var current *Image

// Init parses a backtrace payload (either a standalone HBTF module or a
// full HKIF image) read from bootloader-supplied memory and installs it as
// the table Symbolicate consults. data must already be addressable (the
// caller has translated the module's physical address through the direct
// map); Init makes no assumption about how it got there.
func Init(kernelVirtBase uint64, data []byte) error {
	if img, err := ParseHKIF(data); err == nil {
		current = img
		return nil
	}

	table, err := ParseHBTF(data)
	if err != nil {
		return err
	}
	current = &Image{KernelVirtBase: kernelVirtBase, Table: table}
	return nil
}

// Frame is one resolved stack frame.
type Frame struct {
	PC         uintptr
	Symbol     string
	FuncOffset uint64
	File       string
	Line       uint32
}

// Symbolicate resolves a raw program counter against the installed table.
// ok is false if no table is installed or pc falls outside every known
// symbol (e.g. it points into Go runtime code the build step didn't cover).
func Symbolicate(pc uintptr) (f Frame, ok bool) {
	if current == nil || current.Table == nil {
		return Frame{}, false
	}

	offset := uint64(pc) - current.KernelVirtBase
	name, funcOffset, symOK := current.Table.LookupSymbol(offset)
	if !symOK {
		return Frame{}, false
	}

	f = Frame{PC: pc, Symbol: name, FuncOffset: funcOffset}
	if file, line, lineOK := current.Table.LookupLine(offset); lineOK {
		f.File = file
		f.Line = line
	}
	return f, true
}
