// loader_dos_test.go - DOS .com/.exe loader placement and relocation.

package blink16

import "testing"

// TestLoadDOSCom verifies a .com image lands at CS:0100 with CS=DS=ES=SS
// all equal to the same load segment and SP set to the top of the segment.
func TestLoadDOSCom(t *testing.T) {
	sys, m, _, err := LoadImage(loaderDOS, []byte{0x90, 0x90}, []string{"a.com"})
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if m.cs() != dosLoadSegment || m.ds() != dosLoadSegment || m.es() != dosLoadSegment || m.ss() != dosLoadSegment {
		t.Fatalf("expected all segment registers == %#x, got cs=%#x ds=%#x es=%#x ss=%#x",
			dosLoadSegment, m.cs(), m.ds(), m.es(), m.ss())
	}
	if m.ip != 0x100 {
		t.Fatalf("expected IP=0x100, got %#x", m.ip)
	}
	if m.sp() != 0xFFFE {
		t.Fatalf("expected SP=0xFFFE, got %#x", m.sp())
	}
	base := physicalAddress(dosLoadSegment, 0x100)
	if sys.rawRead(base) != 0x90 || sys.rawRead(base+1) != 0x90 {
		t.Fatalf("program bytes not copied to CS:0100")
	}
}

// TestLoadDOSExeRelocation builds a minimal MZ header with one relocation
// entry and checks the loader adds imageSegment into the target word, per
// the standard DOS EXE fixup algorithm.
func TestLoadDOSExeRelocation(t *testing.T) {
	header := make([]byte, 28)
	putW := func(off int, v uint16) { header[off], header[off+1] = byte(v), byte(v>>8) }
	putW(0, mzHeaderMagic)
	putW(2, 2)  // cblp: 2 bytes used in the last page
	putW(4, 2)  // cp: 2 pages total -> totalImageBytes = 1*512+2 = 514
	putW(6, 1)  // crlc: one relocation entry
	putW(8, 2)  // cparhdr: 2 paragraphs (32 bytes) of header
	putW(14, 0) // ss
	putW(16, 0) // sp
	putW(20, 0) // ip
	putW(22, 0) // cs
	putW(24, 28) // lfarlc: relocation table starts right after this 28-byte header

	// Relocation table: one entry (r_offset=0, r_seg=0) -> word at
	// imageSegment:0000 gets imageSegment added to it.
	reloc := []byte{0x00, 0x00, 0x00, 0x00}

	// Header is cparhdr*16 = 32 bytes; pad 28+4=32 exactly.
	image := append(header, reloc...)
	codeSize := 514 - 32
	code := make([]byte, codeSize)
	// Seed the word at code[0:2] (imageSegment:0000) with zero so the
	// relocation's add is directly observable.
	image = append(image, code...)

	sys, m, _, err := LoadImage(loaderDOS, image, []string{"a.exe"})
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	imageSegment := uint16(dosLoadSegment) + 2 // cparhdr paragraphs
	if m.cs() != imageSegment {
		t.Fatalf("expected CS=%#x, got %#x", imageSegment, m.cs())
	}
	addr := physicalAddress(imageSegment, 0)
	word := uint16(sys.rawRead(addr)) | uint16(sys.rawRead(addr+1))<<8
	if word != imageSegment {
		t.Fatalf("relocation fixup: expected word == imageSegment (%#x), got %#x", imageSegment, word)
	}
}

// TestBuildCommandTail checks the PSP command-tail quoting rule: an
// argument containing a space is wrapped in double quotes.
func TestBuildCommandTail(t *testing.T) {
	got := buildCommandTail([]string{"prog.exe", "one", "two words"})
	want := `one "two words"`
	if got != want {
		t.Fatalf("buildCommandTail: got %q, want %q", got, want)
	}
}
