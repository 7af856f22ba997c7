// dos_syscalls_test.go - int 21h handlers exercised end-to-end through
// the fetch/decode/execute loop.

package blink16

import (
	"io"
	"os"
	"testing"
)

// redirectFd swaps fildes's backing host fd for the write end of a fresh
// pipe and returns a function that closes the write end and returns
// everything written to it.
func redirectFd(t *testing.T, sys *System, fildes int32) func() []byte {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	fd := sys.fds.Get(fildes)
	fd.setSystemFD(int32(w.Fd()))
	return func() []byte {
		w.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("reading redirected fd: %v", err)
		}
		r.Close()
		return out
	}
}

// runUntilHalt single-steps cpu until it halts, returning the exit code.
func runUntilHalt(t *testing.T, cpu *CPU8086) int32 {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if err := cpu.Step(); err != nil {
			code, ok := ExitCode(err)
			if !ok {
				t.Fatalf("machine faulted instead of halting cleanly: %v", err)
			}
			return code
		}
	}
	t.Fatalf("machine never halted within the step budget")
	return 0
}

// TestDOSHelloWorld builds a tiny .com image that prints a $-terminated
// string via int 21h/ah=09h and exits via ah=4Ch, matching the end-to-end
// "hello world" scenario for the DOS loader.
func TestDOSHelloWorld(t *testing.T) {
	code := []byte{
		0xBA, 0x10, 0x01, // mov dx, 0x0110
		0xB4, 0x09, // mov ah, 0x09
		0xCD, 0x21, // int 21h
		0xB4, 0x4C, // mov ah, 0x4Ch
		0xCD, 0x21, // int 21h
	}
	image := make([]byte, 0x10+4)
	copy(image, code)
	copy(image[0x10:], "Hi!$")

	sys, _, cpu, err := LoadImage(loaderDOS, image, []string{"hello.com"})
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	collect := redirectFd(t, sys, 1)
	code32 := runUntilHalt(t, cpu)
	if code32 != 0 {
		t.Fatalf("expected exit code 0, got %d", code32)
	}
	if got := string(collect()); got != "Hi!" {
		t.Fatalf("expected stdout %q, got %q", "Hi!", got)
	}
}

// TestDOSGetVersion checks int 21h/ah=30h returns the fixed version this
// core reports, matching syscall-dos.c's hardcoded response.
func TestDOSGetVersion(t *testing.T) {
	code := []byte{
		0xB4, 0x30, // mov ah, 0x30
		0xCD, 0x21, // int 21h
		0xB4, 0x4C, // mov ah, 0x4Ch
		0xCD, 0x21, // int 21h
	}
	_, m, cpu, err := LoadImage(loaderDOS, code, []string{"ver.com"})
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	// Step past "mov ah, 0x30" and then the int 21h that services it,
	// leaving the exit call unexecuted so AX/BX can still be inspected.
	for i := 0; i < 2; i++ {
		if err := cpu.Step(); err != nil {
			t.Fatalf("unexpected halt: %v", err)
		}
	}
	if m.ax() != 0x1403 {
		t.Fatalf("expected AX=0x1403, got %#x", m.ax())
	}
	if m.bx() != 0xFF00 {
		t.Fatalf("expected BX=0xFF00, got %#x", m.bx())
	}
}
