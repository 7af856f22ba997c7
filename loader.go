// loader.go - shared loader bootstrap (spec §4.3 "All begin by
// initMachine").
//
// Grounded on original_source/blink16/dos.c's initMachine and
// original_source/blink16/main.c's per-format dispatch, reshaped into
// the teacher's ProgramExecutor dispatch-by-extension idiom
// (program_executor.go) as a small loaderKind-tagged table instead of a
// switch on file extension, since here the caller already knows which
// of the three binary formats it has.

package blink16

// Loader parses one guest image and populates a freshly zeroed Machine
// and System ready to run. Implemented by bootLoader, dosLoader and
// elksLoader.
type Loader interface {
	Load(sys *System, m *Machine, image []byte, args []string) error
}

// initMachine zeroes RAM and the shadow and installs the INT-vector
// defaults, the common prologue named in spec §4.3. The C original also
// wires byte-register alias pointers via an endianness probe; Go's
// direct bit-shift register accessors (machine.go) make that probe
// unnecessary, a simplification recorded in DESIGN.md.
func initMachine(sys *System, m *Machine) {
	sys.resetRAMAndShadow()
	m.regs = [regCount]uint16{}
	m.ip = 0
	m.flags = initialFlags
	m.prefixSeg = segNone
	m.rep = repNone
	m.repeating = false
}

// installDefaultVectors points every one of the 256 real-mode interrupt
// vectors at a single iret-only stub at physical address vecStub, so
// that an unhandled INT started by guest code (rather than by the
// loader's own short-circuit hook) returns harmlessly instead of
// faulting on a 0000:0000 vector.
func installDefaultVectors(sys *System) {
	const vecStub = 0x00500 // arbitrary low, unused paragraph
	sys.rawWrite(vecStub, 0xCF) // IRET
	for i := 0; i < 256; i++ {
		addr := uint32(i) * 4
		sys.rawWrite(addr, uint32ToLo(vecStub))
		sys.rawWrite(addr+1, uint32ToHi(vecStub))
		sys.rawWrite(addr+2, 0)
		sys.rawWrite(addr+3, 0)
	}
	sys.setShadowFlags(vecStub, 1, shadowRead)
}

func uint32ToLo(v uint32) byte { return byte(v) }
func uint32ToHi(v uint32) byte { return byte(v >> 8) }

// newLoadedSystem wires a fresh System/Machine pair tagged with kind and
// its CPU8086; LoadImage installs the loader's interrupt short-circuit
// on that CPU once loading succeeds, matching spec §4.3's "install
// handleSyscall and checkStack... on the exe record" and §4.1's
// loaderKind-dispatched INT hook.
func newLoadedSystem(kind loaderKind) (*System, *Machine, *CPU8086) {
	sys := NewSystem()
	m := sys.spawnMachine()
	m.kind = kind
	cpu := NewCPU8086(sys, m)
	return sys, m, cpu
}

// loaderTable and syscallHandlerTable, per loaderKind, are the
// concrete table behind the §9 "variant tag... dispatched per
// interrupt" design note.
var loaderTable = [loaderKindCount]Loader{
	loaderBoot: bootLoader{},
	loaderDOS:  dosLoader{},
	loaderELKS: elksLoader{},
}

var syscallHandlerTable = [loaderKindCount]interruptHandler{
	loaderBoot: nil,
	loaderDOS:  dosSyscalls{},
	loaderELKS: elksSyscalls{},
}

// LoadImage parses image as the given loaderKind and returns a fully
// wired System/Machine/CPU8086 ready to Step, matching spec §4.3's
// post-conditions ("install handleSyscall and checkStack... on the exe
// record"). args mirrors host argv, with args[0] conventionally the
// guest program's own path (spec §4.3 "concatenating argv[2..]").
func LoadImage(kind loaderKind, image []byte, args []string) (*System, *Machine, *CPU8086, error) {
	sys, m, cpu := newLoadedSystem(kind)
	if err := loaderTable[kind].Load(sys, m, image, args); err != nil {
		return nil, nil, nil, err
	}
	if h := syscallHandlerTable[kind]; h != nil {
		cpu.installInterruptHandler(kind, h)
	}
	return sys, m, cpu, nil
}
