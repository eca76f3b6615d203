package ansiline

import (
	"fmt"
	"strings"
	"testing"
)

func TestStripANSI_Basic(t *testing.T) {
	in := "hello\x1b[31mworld\x1b[0m!"
	want := "helloworld!"
	if got := StripANSI(in); got != want {
		t.Errorf("StripANSI(%q) = %q, want %q", in, got, want)
	}
}

func TestStripANSI_BareEscape(t *testing.T) {
	in := "a\x1bb"
	want := "ab"
	if got := StripANSI(in); got != want {
		t.Errorf("StripANSI(%q) = %q, want %q", in, got, want)
	}
}

func TestStripANSI_CarriageReturn(t *testing.T) {
	in := "foo\rbar"
	want := "foobar"
	if got := StripANSI(in); got != want {
		t.Errorf("StripANSI(%q) = %q, want %q", in, got, want)
	}
}

func TestStripANSI_IdentityWithoutEscape(t *testing.T) {
	in := "plain text, no escapes here!"
	if got := StripANSI(in); got != in {
		t.Errorf("StripANSI(%q) = %q, want identity", in, got)
	}
}

func TestStripANSI_Idempotent(t *testing.T) {
	in := "\x1b[1;32mgreen\x1b[0m and \x1bnormal"
	once := StripANSI(in)
	twice := StripANSI(once)
	if once != twice {
		t.Errorf("StripANSI not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestBuffer_LineAppending(t *testing.T) {
	b := New()
	b.Append([]byte("foo"))
	b.Append([]byte("bar\nbaz"))
	b.Append([]byte("qux\n"))

	// "baz" opens a new line that "qux" extends; the trailing newline
	// leaves an empty open last line.
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	if got := b.Line(0); got != "foobar" {
		t.Errorf("Line(0) = %q, want %q", got, "foobar")
	}
	if got := b.Line(1); got != "bazqux" {
		t.Errorf("Line(1) = %q, want %q", got, "bazqux")
	}
}

func TestBuffer_Eviction(t *testing.T) {
	b := New()
	for i := 0; i < MaxLines+100; i++ {
		b.Append([]byte(fmt.Sprintf("line%d\n", i)))
	}
	if b.Len() > MaxLines {
		t.Fatalf("Len() = %d, exceeds cap %d", b.Len(), MaxLines)
	}
	// 5,100 complete lines plus the empty open last line make 5,101, so
	// 101 lines are evicted and the oldest survivor is line101.
	if got := b.Line(0); !strings.Contains(got, "line101") {
		t.Errorf("Line(0) = %q, want it to contain line101", got)
	}
}

func TestBuffer_CharacterGrowth(t *testing.T) {
	b := New()
	before := b.TotalChars()
	n := b.Append([]byte("hello\nworld"))
	after := b.TotalChars()
	if after-before != n {
		t.Errorf("TotalChars grew by %d, Append reported %d", after-before, n)
	}
	if n != len("hello\nworld") {
		t.Errorf("Append returned %d, want %d", n, len("hello\nworld"))
	}
}

func TestBuffer_Clamp(t *testing.T) {
	b := New()
	b.Append([]byte("a\nb\nc\n"))
	if got := b.Clamp(-5); got != 0 {
		t.Errorf("Clamp(-5) = %d, want 0", got)
	}
	if got := b.Clamp(1000); got != b.Len()-1 {
		t.Errorf("Clamp(1000) = %d, want %d", got, b.Len()-1)
	}
}
