// guest_memory.go - the 1 MiB real-mode address space and its
// byte-parallel shadow permission bitmap (spec §4.2, §3 "Shadow memory").
//
// Grounded directly on original_source/blink16/8086.c's readByte/
// readWord/writeByte/writeWord/physicalAddress/setShadowFlags.

package blink16

const ramSize = 0x100000 // 1 MiB, original RAMSIZE

const (
	shadowRead  byte = 0x01 // fRead
	shadowWrite byte = 0x02 // fWrite
)

// physicalAddress computes (segment<<4)+offset, the real-mode address
// formula from spec §4.2. seg is resolved by the caller: either an
// explicit segment value or one of CS/SS/DS/ES chosen by instruction
// default and possibly overridden by the active segment prefix.
func physicalAddress(seg, offset uint16) uint32 {
	return (uint32(seg) << 4) + uint32(offset)
}

// checkShadow enforces the shadow-memory access protocol: a write
// without the writable bit, or a read without the readable bit, is
// fatal (spec §3, §4.2). A successful read lazily sets the readable
// bit. Disabled entirely when doShadowCheck is false (boot-sector
// loader, spec §4.3).
func (s *System) checkShadow(addr uint32, write bool) error {
	if !s.doShadowCheck {
		return nil
	}
	if write {
		if s.shadow[addr]&shadowWrite == 0 {
			return &RuntimeFault{Reason: "write to non-writable shadow byte"}
		}
		return nil
	}
	if s.shadow[addr]&shadowRead == 0 {
		return &RuntimeFault{Reason: "read from non-readable shadow byte"}
	}
	return nil
}

func (s *System) markShadowReadable(addr uint32) {
	s.shadow[addr] |= shadowRead
}

// setShadowFlags marks [addr, addr+n) with the given permission bits,
// used by loaders to establish the initial readable/writable regions
// (spec §4.3: "tseg... marked read-only", "shadow flags fRead|fWrite
// over data+bss+heap+stack+env region").
func (s *System) setShadowFlags(addr uint32, n int, flags byte) {
	end := addr + uint32(n)
	if end > ramSize {
		end = ramSize
	}
	for a := addr; a < end; a++ {
		s.shadow[a] = flags
	}
}

func (s *System) resetRAMAndShadow() {
	for i := range s.ram {
		s.ram[i] = 0
		s.shadow[i] = 0
	}
}

func inRange(addr uint32) error {
	if addr >= ramSize {
		return &RuntimeFault{Reason: "address outside 1 MiB real-mode RAM"}
	}
	return nil
}

// readByte reads one byte at offset:seg, recording the read tap on m
// (spec §4.2 "every non-instruction-fetch access also updates the
// Machine's read-tap").
func (s *System) readByte(m *Machine, offset, seg uint16) (byte, error) {
	addr := physicalAddress(seg, offset)
	if err := inRange(addr); err != nil {
		return 0, err
	}
	if err := s.checkShadow(addr, false); err != nil {
		return 0, err
	}
	s.markShadowReadable(addr)
	if m != nil {
		m.lastReadAddr, m.lastReadSize = addr, 1
	}
	return s.ram[addr], nil
}

func (s *System) readWord(m *Machine, offset, seg uint16) (uint16, error) {
	lo, err := s.readByte(m, offset, seg)
	if err != nil {
		return 0, err
	}
	hi, err := s.readByte(m, offset+1, seg)
	if err != nil {
		return 0, err
	}
	if m != nil {
		m.lastReadSize = 2
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (s *System) writeByte(m *Machine, value byte, offset, seg uint16) error {
	addr := physicalAddress(seg, offset)
	if err := inRange(addr); err != nil {
		return err
	}
	if err := s.checkShadow(addr, true); err != nil {
		return err
	}
	s.ram[addr] = value
	if m != nil {
		m.lastWriteAddr, m.lastWriteSize = addr, 1
	}
	return nil
}

func (s *System) writeWord(m *Machine, value, offset, seg uint16) error {
	if err := s.writeByte(m, byte(value), offset, seg); err != nil {
		return err
	}
	if err := s.writeByte(m, byte(value>>8), offset+1, seg); err != nil {
		return err
	}
	if m != nil {
		m.lastWriteSize = 2
	}
	return nil
}

// fetchByte reads the next instruction byte at CS:IP without disturbing
// the observational read tap (instruction fetches aren't "non-fetch
// accesses" per spec §4.2) and without the lazy-readable-bit side
// effect skipped — fetches still need the readable bit, since code
// pages are explicitly marked read-only+readable, not implicitly exempt.
func (s *System) fetchByte(m *Machine) (byte, error) {
	addr := physicalAddress(m.cs(), m.ip)
	if err := inRange(addr); err != nil {
		return 0, err
	}
	if err := s.checkShadow(addr, false); err != nil {
		return 0, err
	}
	s.markShadowReadable(addr)
	b := s.ram[addr]
	m.ip++
	return b, nil
}

// rawRead/rawWrite bypass the shadow check entirely; used by the
// loaders to install images and by the Linux syscall layer's
// LookupAddress path where the host, not the guest, performs the
// access and shadow permissions are established separately.
func (s *System) rawRead(addr uint32) byte  { return s.ram[addr] }
func (s *System) rawWrite(addr uint32, v byte) { s.ram[addr] = v }

func (s *System) rawReadSlice(addr uint32, n int) []byte {
	end := addr + uint32(n)
	if end > ramSize {
		end = ramSize
	}
	return s.ram[addr:end]
}
