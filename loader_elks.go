// loader_elks.go - the ELKS a.out loader (spec §4.3, §6).
//
// Grounded on original_source/blink16/loader-elks.c's
// loadExecutableElks/calc_environ/write_environ and exe.h's
// minix_exec_hdr layout.

package blink16

import "encoding/binary"

const elksMagic = 0x0301
const elksHeaderLen = 32
const elksLoadSegment = 0x1000

type elksLoader struct{}

// elksHeader mirrors minix_exec_hdr: type(4) hlen(1) reserved(1)
// version(2) tseg(4) dseg(4) bseg(4) entry(4) chmem(2) minstack(2)
// syms(4), 32 bytes total.
type elksHeader struct {
	typ      uint32
	hlen     byte
	reserved byte
	version  uint16
	tseg     uint32
	dseg     uint32
	bseg     uint32
	entry    uint32
	chmem    uint16
	minstack uint16
	syms     uint32
}

func parseELKSHeader(b []byte) (elksHeader, bool) {
	if len(b) < elksHeaderLen {
		return elksHeader{}, false
	}
	h := elksHeader{
		typ:      binary.LittleEndian.Uint32(b[0:]),
		hlen:     b[4],
		reserved: b[5],
		version:  binary.LittleEndian.Uint16(b[6:]),
		tseg:     binary.LittleEndian.Uint32(b[8:]),
		dseg:     binary.LittleEndian.Uint32(b[12:]),
		bseg:     binary.LittleEndian.Uint32(b[16:]),
		entry:    binary.LittleEndian.Uint32(b[20:]),
		chmem:    binary.LittleEndian.Uint16(b[24:]),
		minstack: binary.LittleEndian.Uint16(b[26:]),
		syms:     binary.LittleEndian.Uint32(b[28:]),
	}
	if h.typ&0xFFFF != elksMagic || h.hlen != elksHeaderLen || h.version != 1 {
		return elksHeader{}, false
	}
	return h, true
}

func (elksLoader) Load(sys *System, m *Machine, image []byte, args []string) error {
	h, ok := parseELKSHeader(image)
	if !ok {
		return ErrBadRange
	}

	filesize := uint32(len(image)) - h.syms - uint32(elksHeaderLen)
	loadOffset := uint32(elksLoadSegment) << 4
	if filesize > ramSize-loadOffset {
		return ErrImageTooLarge
	}

	initMachine(sys, m)
	installDefaultVectors(sys)

	body := image[elksHeaderLen:]
	if uint32(len(body)) > filesize {
		body = body[:filesize]
	}
	for i, b := range body {
		sys.rawWrite(loadOffset+uint32(i), b)
	}

	tseg := (h.tseg + 15) &^ 15
	dseg := h.dseg
	bseg := h.bseg
	stack := uint32(h.minstack)
	if stack == 0 {
		stack = 0x1000
	}

	envp := elksEnviron(args)
	slen := elksCalcEnviron(args, envp)
	total := dseg + bseg + stack + slen

	heap := uint32(h.chmem)
	if heap == 0 {
		heap = 0x1000
	}
	if heap >= 0xFFF0 {
		if total < 0xFFF0 {
			total = 0xFFF0
		}
	} else {
		total += heap
	}
	total = (total + 15) &^ 15
	if total > 0xFFFF {
		return ErrImageTooLarge
	}

	textBase := physicalAddress(uint16(elksLoadSegment), 0)
	sys.setShadowFlags(textBase, int(tseg), shadowRead)

	dataSeg := uint16(elksLoadSegment) + uint16(tseg>>4)
	m.setES(dataSeg)
	m.setSS(dataSeg)
	m.setDS(dataSeg)
	sys.setShadowFlags(physicalAddress(dataSeg, 0), int(total), shadowRead|shadowWrite)

	m.setCS(uint16(elksLoadSegment))
	m.ip = uint16(h.entry)

	beginStack := total - slen
	minstack := stack
	endData := dseg + bseg
	endBrk := endData
	beginStack &^= 1
	if endBrk&1 != 0 {
		endBrk++
	}
	m.setSP(uint16(beginStack))

	m.endSeg = total
	m.begStack = beginStack
	m.minStack = minstack
	m.endData = endData
	m.endBrk = endBrk
	m.stackLow = physicalAddress(dataSeg, 0) + beginStack - minstack

	elksWriteEnviron(sys, m, args, envp)

	m.setES(m.ds())
	m.setAX(0)
	m.setBX(0)
	m.setCX(0)
	m.setDX(0)
	m.setBP(0)
	m.setSI(0)
	m.setDI(0)
	m.flags = initialFlags
	m.kind = loaderELKS
	return nil
}

// elksEnviron returns the process environment strings to pack, kept
// separate from argv (args[1:], argv[0] is this core's own argv[0])
// per original_source's argv/envp split. The core consumes no
// environment variables itself (spec §6 "none consumed by the core");
// an empty envp is a legal a.out environment.
func elksEnviron(args []string) []string {
	return nil
}

func elksCalcEnviron(args []string, envp []string) uint32 {
	argv := args[1:]
	argvLen, envpLen := 0, 0
	for _, a := range argv {
		argvLen += len(a) + 1
	}
	for _, e := range envp {
		envpLen += len(e) + 1
	}
	n := 2 + (len(argv)*2 + 2) + argvLen + (len(envp)*2 + 2) + envpLen
	return uint32((n + 1) &^ 1)
}

// elksWriteEnviron packs argc, argv pointer array (NUL-terminated),
// envp pointer array (NUL-terminated), then the concatenated strings,
// directly below SP, per write_environ's pip/pcp layout with baseoff=0
// (pointers are plain segment-relative offsets).
func elksWriteEnviron(sys *System, m *Machine, args []string, envp []string) {
	argv := args[1:]
	slen := elksCalcEnviron(args, envp)
	m.setSP(m.sp() - uint16(slen))
	stkPtr := m.sp()

	pip := stkPtr
	pcp := stkPtr + uint16(2*(1+len(argv)+1+len(envp)+1))

	ss := m.ss()
	writeW := func(v, off uint16) {
		mustOKErr(sys.writeWord(m, v, off, ss))
	}
	writeB := func(v byte, off uint16) {
		mustOKErr(sys.writeByte(m, v, off, ss))
	}

	writeW(uint16(len(argv)), pip)
	pip += 2
	for _, a := range argv {
		writeW(pcp, pip)
		pip += 2
		for i := 0; i < len(a); i++ {
			writeB(a[i], pcp+uint16(i))
		}
		writeB(0, pcp+uint16(len(a)))
		pcp += uint16(len(a)) + 1
	}
	writeW(0, pip)
	pip += 2

	for _, e := range envp {
		writeW(pcp, pip)
		pip += 2
		for i := 0; i < len(e); i++ {
			writeB(e[i], pcp+uint16(i))
		}
		writeB(0, pcp+uint16(len(e)))
		pcp += uint16(len(e)) + 1
	}
	writeW(0, pip)
}
