// elks_syscalls.go - the ELKS int 80h syscall emulator (spec §4.5).
//
// Grounded directly on original_source/blink16/syscall-elks.c's
// handleSyscallElks: syscall number in AX, args in BX/CX/DX, buffer
// pointers resolved against SS (rptr/wptr macros), and the brk/sbrk
// break-bookkeeping pair (SysBreak/SysSbrk).

package blink16

import "golang.org/x/sys/unix"

// elksSyscalls is the loaderELKS interruptHandler installed by
// elksLoader.
type elksSyscalls struct{}

func (elksSyscalls) CanHandle(intno int) bool { return intno == 0x80 }

func elksFatal(c *CPU8086, reason string) {
	panic(haltSignal{fault: &RuntimeFault{CS: c.m.cs(), IP: c.m.ip, Reason: reason}})
}

// elksFd resolves a BX file handle the same way the Linux side does
// (spec's single System-wide FdTable), rather than reintroducing the
// original's bare host-fd-number convention; see DESIGN.md.
func elksFd(bx uint16, sys *System) (*Fd, bool) {
	fd := sys.fds.Get(int32(bx))
	if fd == nil || fd.SystemFD() < 0 {
		return nil, false
	}
	return fd, true
}

// elksBreak implements SysBreak: validate against t_enddata/t_begstack-
// t_minstack and update m.endBrk, returning a negated errno on failure
// per the original's "return -ENOMEM" convention (an int32 that the
// caller truncates to 16 bits when storing it in AX).
func elksBreak(m *Machine, newbrk uint32) int32 {
	if newbrk < m.endData {
		return -int32(enomem)
	}
	if newbrk > m.begStack-uint32(m.minStack) {
		return -int32(enomem)
	}
	m.endBrk = newbrk
	return 0
}

func (elksSyscalls) Handle(c *CPU8086, intno int) bool {
	m, sys := c.m, c.sys
	ax, bx, cx, dx := m.ax(), m.bx(), m.cx(), m.dx()

	switch ax {
	case 1: // exit
		panic(haltSignal{exitCode: int32(int16(bx))})

	case 3: // read(fd=bx, buf=SS:cx, n=dx)
		fd, ok := elksFd(bx, sys)
		if !ok {
			m.setAX(0x10000 - ebadf) // -EBADF in 16 bits
			break
		}
		n := int(dx)
		buf := make([]byte, n)
		got, err := fd.ops.Readv(fd.SystemFD(), [][]byte{buf})
		if err != nil {
			m.setAX(uint16(int16(xlatErrno(err))))
			break
		}
		writeGuestBytes(sys, m, m.ss(), cx, buf[:got])
		m.setAX(uint16(got))

	case 4: // write(fd=bx, buf=SS:cx, n=dx)
		fd, ok := elksFd(bx, sys)
		if !ok {
			m.setAX(0x10000 - ebadf) // -EBADF in 16 bits
			break
		}
		buf := readGuestBytes(sys, m, m.ss(), cx, int(dx))
		got, err := fd.ops.Writev(fd.SystemFD(), [][]byte{buf})
		if err != nil {
			m.setAX(uint16(int16(xlatErrno(err))))
			break
		}
		m.setAX(uint16(got))

	case 5: // open(path=SS:bx, oflag=cx, mode=dx)
		path := readGuestASCIIZ(sys, m, m.ss(), bx)
		hostFD, err := unix.Open(path, int(cx), uint32(dx))
		if err != nil {
			m.setAX(uint16(int16(xlatErrno(err))))
			break
		}
		fd, _ := sys.fds.Allocate(-1, 0)
		fd.setSystemFD(int32(hostFD))
		fd.ops = makeRawIfTerminal(int32(hostFD))
		m.setAX(uint16(fd.fildes))

	case 6: // close(fd=bx)
		fd, ok := elksFd(bx, sys)
		if !ok {
			m.setAX(0x10000 - ebadf) // -EBADF in 16 bits
			break
		}
		if err := sys.fds.Free(fd.fildes); err != nil {
			m.setAX(0x10000 - eio) // -EIO in 16 bits
			break
		}
		m.setAX(0)

	case 17: // brk(newbrk=bx)
		m.setAX(uint16(elksBreak(m, uint32(bx))))

	case 54: // ioctl, stubbed per syscall-elks.c ("FIXME"): 0 for std streams
		if bx < 3 {
			m.setAX(0)
		} else {
			m.setAX(0xFFFF) // -1 in 16 bits
		}

	case 69: // sbrk(incr=bx); old break written into the SS:cx result word
		oldBrk := m.endBrk
		if bx != 0 {
			if errc := elksBreak(m, oldBrk+uint32(int16(bx))); errc != 0 {
				m.setAX(uint16(errc))
				break
			}
		}
		mustOKErr(sys.writeWord(m, uint16(oldBrk), cx, m.ss()))
		m.setAX(0)

	default:
		elksFatal(c, "unknown ELKS syscall")
	}
	return true
}
