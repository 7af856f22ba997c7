// elks_syscalls_test.go - int 80h handlers exercised end-to-end through
// the fetch/decode/execute loop against an ELKS a.out image.

package blink16

import "testing"

// buildELKSImage assembles a minimal a.out image: a two-paragraph text
// segment holding code, followed immediately by a small data segment
// holding payload, per the minix_exec_hdr layout in loader_elks.go.
func buildELKSImage(code, data []byte) []byte {
	const tsegParagraphs = 2
	tseg := tsegParagraphs * 16
	if len(code) > tseg {
		panic("test code exceeds reserved text segment")
	}
	header := make([]byte, elksHeaderLen)
	putU32 := func(off int, v uint32) {
		header[off], header[off+1], header[off+2], header[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	putU16 := func(off int, v uint16) { header[off], header[off+1] = byte(v), byte(v>>8) }
	putU32(0, elksMagic) // typ
	header[4] = elksHeaderLen
	header[5] = 0
	putU16(6, 1)              // version
	putU32(8, uint32(tseg))   // tseg
	putU32(12, uint32(len(data))) // dseg
	putU32(16, 0)             // bseg
	putU32(20, 0)             // entry
	putU16(24, 0)             // chmem -> default
	putU16(26, 0)             // minstack -> default
	putU32(28, 0)             // syms

	body := make([]byte, tseg+len(data))
	copy(body, code)
	copy(body[tseg:], data)
	return append(header, body...)
}

// TestELKSWrite builds an ELKS program that writes a fixed string to
// stdout (int 80h, ax=4) and exits cleanly (ax=1), matching the ELKS
// write-syscall end-to-end scenario.
func TestELKSWrite(t *testing.T) {
	payload := []byte("ok\n")
	code := []byte{
		0xB8, 0x04, 0x00, // mov ax, 4 (write)
		0xBB, 0x01, 0x00, // mov bx, 1 (stdout)
		0xB9, 0x00, 0x00, // mov cx, 0 (SS:0, payload)
		0xBA, 0x03, 0x00, // mov dx, 3 (length)
		0xCD, 0x80, // int 80h
		0xB8, 0x01, 0x00, // mov ax, 1 (exit)
		0xBB, 0x00, 0x00, // mov bx, 0 (exit code)
		0xCD, 0x80, // int 80h
	}
	image := buildELKSImage(code, payload)

	sys, _, cpu, err := LoadImage(loaderELKS, image, []string{"w.run"})
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	collect := redirectFd(t, sys, 1)
	gotCode := runUntilHalt(t, cpu)
	if gotCode != 0 {
		t.Fatalf("expected exit code 0, got %d", gotCode)
	}
	if got := string(collect()); got != "ok\n" {
		t.Fatalf("expected stdout %q, got %q", "ok\n", got)
	}
}

// TestELKSBrkRejectsBelowEndData checks SysBreak's lower-bound invariant:
// a newbrk below t_enddata is rejected with -ENOMEM, leaving endBrk
// unchanged.
func TestELKSBrkRejectsBelowEndData(t *testing.T) {
	m := &Machine{endData: 100, begStack: 10000, minStack: 0x1000}
	m.endBrk = 100
	if rc := elksBreak(m, 50); rc >= 0 {
		t.Fatalf("expected a negative errno for newbrk below endData, got %d", rc)
	}
	if m.endBrk != 100 {
		t.Fatalf("endBrk must be unchanged after a rejected brk, got %d", m.endBrk)
	}
	if rc := elksBreak(m, 200); rc != 0 {
		t.Fatalf("expected brk growth to succeed, got rc=%d", rc)
	}
	if m.endBrk != 200 {
		t.Fatalf("expected endBrk=200 after growth, got %d", m.endBrk)
	}
}
