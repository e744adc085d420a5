package backtrace

import "testing"

func TestInitAndSymbolicateViaHBTF(t *testing.T) {
	data := buildHBTF(t, []testSym{{"handle_fault", 0x4000, 0x50}}, []testLine{{"irq.rs", 0x4010, 22}})

	if err := Init(0xffff_ffff_8000_0000, data); err != nil {
		t.Fatal(err)
	}
	defer func() { current = nil }()

	pc := uintptr(0xffff_ffff_8000_0000 + 0x4010)
	f, ok := Symbolicate(pc)
	if !ok {
		t.Fatal("expected the frame to resolve")
	}
	if f.Symbol != "handle_fault" || f.FuncOffset != 0x10 {
		t.Fatalf("unexpected symbol resolution: %+v", f)
	}
	if f.File != "irq.rs" || f.Line != 22 {
		t.Fatalf("unexpected line resolution: %+v", f)
	}
}

func TestSymbolicateWithoutInitFails(t *testing.T) {
	current = nil
	if _, ok := Symbolicate(0x1234); ok {
		t.Fatal("expected Symbolicate to fail before Init is called")
	}
}

func TestSymbolicateOutsideKnownRangeFails(t *testing.T) {
	data := buildHBTF(t, []testSym{{"handle_fault", 0x4000, 0x50}}, nil)
	if err := Init(0x1000, data); err != nil {
		t.Fatal(err)
	}
	defer func() { current = nil }()

	if _, ok := Symbolicate(0x1000 + 0x9000); ok {
		t.Fatal("expected an address with no covering symbol to fail")
	}
}
