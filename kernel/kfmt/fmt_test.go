package kfmt

import (
	"bytes"
	"testing"
)

func TestFprintfStringAndWidth(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "[%5s]", "ab")
	if got, want := buf.String(), "[   ab]"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFprintfIntBases(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%d %x %o", 42, 255, 8)
	if got, want := buf.String(), "42 ff 10"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFprintfNegativeInt(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%d", -7)
	if got, want := buf.String(), "-7"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFprintfBool(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%t %t", true, false)
	if got, want := buf.String(), "true false"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFprintfMissingAndExtraArgs(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%s %s", "only")
	if got, want := buf.String(), "only (MISSING)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	buf.Reset()
	Fprintf(&buf, "%s", "a", "b")
	if got, want := buf.String(), "a%!(EXTRA)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFprintfWrongArgType(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%d", "not an int")
	if got, want := buf.String(), "%!(WRONGTYPE)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFprintfLiteralPercent(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "100%%")
	if got, want := buf.String(), "100%"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPrintfBuffersUntilSinkInstalled(t *testing.T) {
	prevPending, prevSink := pending, sink
	defer func() { pending, sink = prevPending, prevSink }()

	pending = ringBuffer{}
	sink = nil
	Printf("hi")

	var buf bytes.Buffer
	SetOutputSink(&buf)
	if got, want := buf.String(), "hi"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
