// loader_dos.go - the DOS MZ (.exe) and .com loader (spec §4.3, §6).
//
// Grounded on original_source/blink16/dos.c's LoadExe/LoadCom and the
// MZ header layout in original_source/blink16/dos.h.

package blink16

import "bytes"

// dosLoadSegment is where the DOS loader places a program's code. For an
// .exe the PSP is built 0x10 paragraphs (256 bytes) below it and the
// image starts at dosLoadSegment plus the header paragraphs, matching
// end-to-end scenario 5 (imageSegment 0x1010 with a 0x10-paragraph
// header); a .com program shares this segment with its PSP and starts
// at offset 0x100.
const dosLoadSegment = 0x1000

const (
	pspSize        = 0x100
	pspCmdTailOff  = 0x80
	pspEnvSegOff   = 0x2C
	mzHeaderMagic  = 0x5A4D // "MZ"
)

type dosLoader struct{}

func (dosLoader) Load(sys *System, m *Machine, image []byte, args []string) error {
	if len(image) >= 2 && le16(image, 0) == mzHeaderMagic {
		return loadDOSExe(sys, m, image, args)
	}
	return loadDOSCom(sys, m, image, args)
}

func le16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func loadDOSExe(sys *System, m *Machine, image []byte, args []string) error {
	if len(image) < 28 {
		return ErrImageTooLarge
	}
	cblp := le16(image, 2)
	cp := le16(image, 4)
	crlc := le16(image, 6)
	cparhdr := le16(image, 8)
	eSS := le16(image, 14)
	eSP := le16(image, 16)
	eIP := le16(image, 20)
	eCS := le16(image, 22)
	lfarlc := le16(image, 24)

	headerSize := uint32(cparhdr) * 16
	totalImageBytes := uint32(cp) * 512
	if cblp != 0 {
		totalImageBytes = uint32(cp-1)*512 + uint32(cblp)
	}
	if headerSize > totalImageBytes || int(totalImageBytes) > len(image) {
		return ErrImageTooLarge
	}
	codeSize := totalImageBytes - headerSize
	if codeSize > 0xFFFF {
		return ErrImageTooLarge
	}

	initMachine(sys, m)
	installDefaultVectors(sys)
	biosDataAreaStub(sys)

	imageSegment := uint16(dosLoadSegment) + uint16(cparhdr)
	codeBase := physicalAddress(imageSegment, 0)
	code := image[headerSize:totalImageBytes]
	for i, b := range code {
		sys.rawWrite(codeBase+uint32(i), b)
	}
	sys.setShadowFlags(codeBase, len(code), shadowRead|shadowWrite)

	// Relocations: each is (r_offset uint16, r_seg uint16); add
	// imageSegment into the word at [imageSegment+r_seg : r_offset].
	for i := uint16(0); i < crlc; i++ {
		entryOff := uint32(lfarlc) + uint32(i)*4
		if entryOff+4 > uint32(len(image)) {
			break
		}
		rOffset := le16(image, int(entryOff))
		rSeg := le16(image, int(entryOff+2))
		targetSeg := imageSegment + rSeg
		addr := physicalAddress(targetSeg, rOffset)
		word := uint16(sys.rawRead(addr)) | uint16(sys.rawRead(addr+1))<<8
		word += imageSegment
		sys.rawWrite(addr, byte(word))
		sys.rawWrite(addr+1, byte(word>>8))
	}

	pspSeg := uint16(dosLoadSegment - 0x10)
	envSeg := buildDOSEnvironment(sys, pspSeg)
	buildPSP(sys, pspSeg, envSeg, args)

	m.setCS(imageSegment + eCS)
	m.ip = eIP
	m.setSS(imageSegment + eSS)
	m.setSP(eSP)
	m.setES(pspSeg)
	m.setDS(pspSeg)
	m.flags = initialFlags
	m.kind = loaderDOS
	m.stackLow = physicalAddress(imageSegment+eSS, 0)
	return nil
}

func loadDOSCom(sys *System, m *Machine, image []byte, args []string) error {
	if len(image) > 0xFF00 {
		return ErrImageTooLarge
	}
	initMachine(sys, m)
	installDefaultVectors(sys)
	biosDataAreaStub(sys)

	seg := uint16(dosLoadSegment)
	base := physicalAddress(seg, 0x100)
	for i, b := range image {
		sys.rawWrite(base+uint32(i), b)
	}
	sys.setShadowFlags(physicalAddress(seg, 0), 0x10000, shadowRead|shadowWrite)

	envSeg := buildDOSEnvironment(sys, seg)
	buildPSP(sys, seg, envSeg, args)

	m.setCS(seg)
	m.setDS(seg)
	m.setES(seg)
	m.setSS(seg)
	m.ip = 0x100
	m.setSP(0xFFFE)
	m.flags = initialFlags
	m.kind = loaderDOS
	m.stackLow = physicalAddress(seg, 0)
	return nil
}

// buildDOSEnvironment writes a minimal double-NUL-terminated environment
// block 0x10 paragraphs (256 bytes) below pspSeg and returns its
// segment. Real DOS environment content (COMSPEC=, PATH=, etc.) is out
// of scope; an empty block is a legal DOS environment.
func buildDOSEnvironment(sys *System, pspSeg uint16) uint16 {
	envSeg := pspSeg - 0x10
	addr := physicalAddress(envSeg, 0)
	sys.rawWrite(addr, 0)
	sys.rawWrite(addr+1, 0)
	sys.setShadowFlags(addr, 2, shadowRead|shadowWrite)
	return envSeg
}

// buildPSP builds the 256-byte Program Segment Prefix at pspSeg: the
// INT 20h exit stub at offset 0, the environment segment pointer at
// 0x2C, and the command tail at 0x80 (spec §4.3, §8 "the byte at
// PSP:0x80 equals the length of PSP:0x81.. in bytes... is a CR").
func buildPSP(sys *System, pspSeg, envSeg uint16, args []string) {
	base := physicalAddress(pspSeg, 0)
	sys.setShadowFlags(base, pspSize, shadowRead|shadowWrite)

	sys.rawWrite(base, 0xCD) // INT 20h exit stub
	sys.rawWrite(base+1, 0x20)

	envAddr := base + pspEnvSegOff
	sys.rawWrite(envAddr, byte(envSeg))
	sys.rawWrite(envAddr+1, byte(envSeg>>8))

	tail := buildCommandTail(args)
	tailAddr := base + pspCmdTailOff
	sys.rawWrite(tailAddr, byte(len(tail)))
	for i, b := range []byte(tail) {
		sys.rawWrite(tailAddr+1+uint32(i), b)
	}
	sys.rawWrite(tailAddr+1+uint32(len(tail)), '\r')
}

// buildCommandTail concatenates args[1:] (argv[0] is the program name,
// excluded per spec's "argv[2..]" — the caller's argv[1] is this
// program's own path), quoting arguments containing a space or
// backslash and backslash-escaping embedded `"` characters.
func buildCommandTail(args []string) string {
	if len(args) <= 1 {
		return ""
	}
	var buf bytes.Buffer
	for i, a := range args[1:] {
		if i > 0 {
			buf.WriteByte(' ')
		}
		needsQuote := bytes.ContainsAny([]byte(a), " \\")
		if needsQuote {
			buf.WriteByte('"')
		}
		for _, r := range a {
			if r == '"' {
				buf.WriteByte('\\')
			}
			buf.WriteRune(r)
		}
		if needsQuote {
			buf.WriteByte('"')
		}
	}
	return buf.String()
}

// biosDataAreaStub populates the handful of BIOS data area fields DOS
// programs commonly peek at: the INT 1Ah tick counter word at 0040:006C
// and a far-jump stub at the canonical F000:FFF0 reset vector, per spec
// §4.3 "Populate a stubbed BIOS data area".
func biosDataAreaStub(sys *System) {
	tickAddr := physicalAddress(0x0040, 0x006C)
	sys.rawWrite(tickAddr, 0)
	sys.rawWrite(tickAddr+1, 0)
	sys.rawWrite(tickAddr+2, 0)
	sys.rawWrite(tickAddr+3, 0)
	sys.setShadowFlags(tickAddr, 4, shadowRead|shadowWrite)

	resetAddr := physicalAddress(0xF000, 0xFFF0)
	sys.rawWrite(resetAddr, 0xEA) // JMP FAR
	sys.rawWrite(resetAddr+1, 0x00)
	sys.rawWrite(resetAddr+2, 0x00)
	sys.rawWrite(resetAddr+3, 0x00)
	sys.rawWrite(resetAddr+4, 0xF0)
	sys.setShadowFlags(resetAddr, 5, shadowRead)
}
