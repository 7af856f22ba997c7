// interrupts.go - INT/IRET and the DOS/ELKS syscall short-circuit hook
// (spec §4.1 "A per-instruction hook may short-circuit INT by consulting
// a collaborator", §4.3).
//
// Grounded on original_source/blink16/8086.c's performInterrupt(): push
// FLAGS, CS, IP; clear IF and TF; fetch the vector from physical address
// intno*4; reject vector 0:0 as a fatal bad-vector fault.

package blink16

// Interrupt runs one INT intno, first offering the loader-installed
// handler (if any) the chance to service it directly — DOS int 21h and
// ELKS int 80h never touch the real-mode IVT — and otherwise performing
// a real 8086 interrupt: push FLAGS/CS/IP, clear IF/TF, load CS:IP from
// the vector table entry at physical address intno*4.
func (c *CPU8086) Interrupt(intno int) {
	if h := c.interrupts[c.m.kind]; h != nil && h.CanHandle(intno) {
		if h.Handle(c, intno) {
			return
		}
	}
	c.performInterrupt(intno)
}

func (c *CPU8086) performInterrupt(intno int) {
	vecAddr := uint32(intno) * 4
	if vecAddr+4 > ramSize {
		panic(haltSignal{fault: ErrBadVector})
	}
	newIP := uint16(c.sys.rawRead(vecAddr)) | uint16(c.sys.rawRead(vecAddr+1))<<8
	newCS := uint16(c.sys.rawRead(vecAddr+2)) | uint16(c.sys.rawRead(vecAddr+3))<<8
	if newCS == 0 && newIP == 0 {
		panic(haltSignal{fault: ErrBadVector})
	}

	c.push(c.m.flags)
	c.push(c.m.cs())
	c.push(c.m.ip)
	c.m.setFlagBit(flagIF, false)
	c.m.setFlagBit(flagTF, false)
	c.m.setCS(newCS)
	c.m.ip = newIP
}

func (c *CPU8086) iret() {
	c.m.ip = c.pop()
	c.m.setCS(c.pop())
	c.m.setFlags(c.pop())
}

// installInterruptHandler wires a loader's syscall emulator into the
// CPU's INT short-circuit for the given loaderKind, per spec §4.3's
// "installs the interrupt hook appropriate to its variant".
func (c *CPU8086) installInterruptHandler(kind loaderKind, h interruptHandler) {
	c.interrupts[kind] = h
}
