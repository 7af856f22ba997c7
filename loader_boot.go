// loader_boot.go - the bare boot-sector loader (spec §4.3, §6).
//
// Grounded on original_source/blink16/dos.c's LoadBootSector: up to one
// 512-byte sector copied to physical 0x7C00, CS=DS=ES=SS=0, IP=0x7C00,
// SP=0, shadow-checking disabled for bare-metal images.

package blink16

const bootSectorAddr = 0x7C00
const bootSectorSize = 512

type bootLoader struct{}

func (bootLoader) Load(sys *System, m *Machine, image []byte, args []string) error {
	initMachine(sys, m)
	installDefaultVectors(sys)

	n := len(image)
	if n > bootSectorSize {
		n = bootSectorSize
	}
	for i := 0; i < n; i++ {
		sys.rawWrite(bootSectorAddr+uint32(i), image[i])
	}
	// A boot sector owns its whole addressable world; mark everything
	// readable+writable instead of threading a precise per-region map,
	// since shadow-checking is disabled for this loader anyway.
	sys.setShadowFlags(0, ramSize, shadowRead|shadowWrite)
	sys.doShadowCheck = false

	m.setCS(0)
	m.setDS(0)
	m.setES(0)
	m.setSS(0)
	m.setSP(0)
	m.ip = bootSectorAddr
	m.flags = initialFlags
	m.kind = loaderBoot
	m.stackLow = 0 // unchecked, per spec §4.5
	return nil
}
