// cpu8086_test.go - fetch/decode/execute engine: flag arithmetic, the
// REP string-op state machine, and DIV/IDIV's INT0 vectoring.

package blink16

import "testing"

// TestAddFlags checks the ADD-family flag formulas (doCFAdd/doAF/
// setOFAdd) against the classic byte-overflow case 0x7F+0x01=0x80:
// signed overflow into the sign bit, a nibble carry, no unsigned
// carry.
func TestAddFlags(t *testing.T) {
	_, m, cpu, err := LoadImage(loaderBoot, nil, nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	res := cpu.add(0x7F, 0x01, false)
	if res != 0x80 {
		t.Fatalf("expected result 0x80, got %#x", res)
	}
	if !m.flagSet(flagOF) {
		t.Fatalf("expected OF set")
	}
	if !m.flagSet(flagSF) {
		t.Fatalf("expected SF set")
	}
	if !m.flagSet(flagAF) {
		t.Fatalf("expected AF set")
	}
	if m.flagSet(flagCF) {
		t.Fatalf("expected CF clear")
	}
	if m.flagSet(flagPF) {
		t.Fatalf("expected PF clear (0x80 has odd parity)")
	}
}

// TestSubBorrowSetsCF checks sub's unsigned-borrow CF formula: 0-1
// borrows.
func TestSubBorrowSetsCF(t *testing.T) {
	_, m, cpu, err := LoadImage(loaderBoot, nil, nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	res := cpu.sub(0, 1, false)
	if res != 0xFF {
		t.Fatalf("expected result 0xFF, got %#x", res)
	}
	if !m.flagSet(flagCF) {
		t.Fatalf("expected CF set on borrow")
	}
}

// TestAddWordCarrySetsCF checks the 16-bit carry-out path of doCFAdd.
func TestAddWordCarrySetsCF(t *testing.T) {
	_, m, cpu, err := LoadImage(loaderBoot, nil, nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	res := cpu.add(0xFFFF, 0x0001, true)
	if res != 0 {
		t.Fatalf("expected wraparound to 0, got %#x", res)
	}
	if !m.flagSet(flagCF) {
		t.Fatalf("expected CF set")
	}
	if !m.flagSet(flagZF) {
		t.Fatalf("expected ZF set")
	}
}

// TestDivByZeroVectorsINT0 checks that DIV by zero raises a recoverable
// guest INT0 instead of a fatal halt: Step returns nil, and CS:IP lands
// on the vector 0 handler (installDefaultVectors' iret stub) rather
// than continuing past the DIV.
func TestDivByZeroVectorsINT0(t *testing.T) {
	// DIV CL (0xF6 /6, modrm 0xF1 selects CL as rm=1).
	_, m, cpu, err := LoadImage(loaderBoot, []byte{0xF6, 0xF1}, nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	m.setAX(0x1234)
	m.setCL(0)
	if err := cpu.Step(); err != nil {
		t.Fatalf("expected a recoverable INT0, got fatal error: %v", err)
	}
	if m.ax() != 0x1234 {
		t.Fatalf("AX must be left untouched by a faulted DIV, got %#x", m.ax())
	}
	if m.cs() != 0 || m.ip != 0x0500 {
		t.Fatalf("expected CS:IP parked at the INT0 vector stub (0:0x500), got %#x:%#x", m.cs(), m.ip)
	}
}

// TestDivOverflowVectorsINT0 checks the quotient-too-large case of DIV
// also vectors INT0 rather than halting.
func TestDivOverflowVectorsINT0(t *testing.T) {
	// DIV CL (0xF6 /6, modrm 0xF1).
	_, m, cpu, err := LoadImage(loaderBoot, []byte{0xF6, 0xF1}, nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	m.setAX(0x1000)
	m.setCL(1) // quotient 0x1000 doesn't fit in AL
	if err := cpu.Step(); err != nil {
		t.Fatalf("expected a recoverable INT0, got fatal error: %v", err)
	}
	if m.ax() != 0x1000 {
		t.Fatalf("AX must be left untouched by a faulted DIV, got %#x", m.ax())
	}
	if m.cs() != 0 || m.ip != 0x0500 {
		t.Fatalf("expected CS:IP parked at the INT0 vector stub (0:0x500), got %#x:%#x", m.cs(), m.ip)
	}
}

// TestRepMovsbOneIterationPerStep is the spec §4.1 state-machine check:
// a REP MOVSB over CX=3 bytes must take exactly three Step calls, one
// element copied per call, with the CPU reporting repeating until the
// last element and IP parked at the same place across the whole run.
func TestRepMovsbOneIterationPerStep(t *testing.T) {
	sys, m, cpu, err := LoadImage(loaderBoot, []byte{0xF3, 0xA4}, nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	const src, dst = 0x200, 0x300
	srcBytes := []byte{0xAA, 0xBB, 0xCC}
	for i, b := range srcBytes {
		if err := sys.writeByte(m, b, src+uint16(i), 0); err != nil {
			t.Fatalf("seeding source byte %d: %v", i, err)
		}
	}
	m.setCX(uint16(len(srcBytes)))
	m.setSI(src)
	m.setDI(dst)

	parkedIP := m.ip + 2 // past the F3 prefix and the A4 opcode
	for i, want := range srcBytes {
		if err := cpu.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if m.ip != parkedIP {
			t.Fatalf("Step %d: expected IP parked at %#x, got %#x", i, parkedIP, m.ip)
		}
		got, err := sys.readByte(m, dst+uint16(i), 0)
		if err != nil {
			t.Fatalf("reading copied byte %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("Step %d: expected byte %#x copied, got %#x", i, want, got)
		}
		wantCX := uint16(len(srcBytes) - i - 1)
		if m.cx() != wantCX {
			t.Fatalf("Step %d: expected CX=%d, got %d", i, wantCX, m.cx())
		}
		wantRepeating := i != len(srcBytes)-1
		if cpu.isRepeating() != wantRepeating {
			t.Fatalf("Step %d: expected repeating=%v, got %v", i, wantRepeating, cpu.isRepeating())
		}
	}
}

// TestRepWithZeroCountDoesNothing checks REP MOVSB with CX==0 at entry
// is a single no-op Step, matching the original's "REP with CX==0 does
// nothing" semantics rather than looping forever or copying one byte.
func TestRepWithZeroCountDoesNothing(t *testing.T) {
	sys, m, cpu, err := LoadImage(loaderBoot, []byte{0xF3, 0xA4}, nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if err := sys.writeByte(m, 0x11, 0x300, 0); err != nil {
		t.Fatalf("seeding dest byte: %v", err)
	}
	m.setCX(0)
	m.setSI(0x200)
	m.setDI(0x300)
	if err := cpu.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if cpu.isRepeating() {
		t.Fatalf("expected no repeat with CX==0 at entry")
	}
	got, err := sys.readByte(m, 0x300, 0)
	if err != nil {
		t.Fatalf("reading dest byte: %v", err)
	}
	if got != 0x11 {
		t.Fatalf("expected dest byte untouched, got %#x", got)
	}
}
