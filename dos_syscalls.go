// dos_syscalls.go - the DOS int 21h syscall emulator (spec §4.5).
//
// Grounded directly on original_source/blink16/syscall-dos.c's
// handleSyscallDOS: dispatch on (intno<<8 | ah()), DS:DX as the default
// ASCIIZ-path/buffer pointer (dsdx()), and the CF/AX DOS error
// convention (dosError: ENOENT -> 2, anything else fatal).
//
// Unlike the original's private fileDescriptors[] array, guest
// descriptors here are allocated from the same System-wide FdTable the
// Linux syscall layer uses (spec §3 describes one FdTable per System);
// see DESIGN.md for why a second, DOS-private table was not
// reintroduced.

package blink16

import (
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// dosSyscalls is the loaderDOS interruptHandler installed by dosLoader
// (spec §4.3 "installs handleSyscall... on the exe record").
type dosSyscalls struct{}

func (dosSyscalls) CanHandle(intno int) bool { return intno == 0x21 || intno == 0x1A }

// dosFatal and dosErrorCode implement syscall-dos.c's dosError: ENOENT maps to DOS
// error code 2; every other host error is fatal (spec §4.5 "ENOENT → 2,
// otherwise fatal").
func dosFatal(c *CPU8086, err error) {
	panic(haltSignal{fault: &RuntimeFault{CS: c.m.cs(), IP: c.m.ip, Reason: err.Error()}})
}

func dosErrorCode(c *CPU8086, err error) int {
	if errno, ok := err.(unix.Errno); ok && errno == unix.ENOENT {
		return 2
	}
	dosFatal(c, err)
	return 0
}

// readGuestASCIIZ reads a NUL-terminated string at seg:off, capped at 64
// KiB, matching syscall-dos.c's dsdx()/initString read path.
func readGuestASCIIZ(sys *System, m *Machine, seg, off uint16) string {
	buf := make([]byte, 0, 64)
	for i := 0; i < 0x10000; i++ {
		b := mustOK(sys.readByte(m, off+uint16(i), seg))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

func readGuestBytes(sys *System, m *Machine, seg, off uint16, n int) []byte {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = mustOK(sys.readByte(m, off+uint16(i), seg))
	}
	return buf
}

func writeGuestBytes(sys *System, m *Machine, seg, off uint16, data []byte) {
	for i, b := range data {
		mustOKErr(sys.writeByte(m, b, off+uint16(i), seg))
	}
}

// dosFd resolves a DOS file handle in BX to the System's shared Fd,
// setting CF+AX=6 ("Invalid handle") per syscall-dos.c and returning ok=false
// if it doesn't exist or was already closed.
func dosFd(c *CPU8086, fildes uint16) (*Fd, bool) {
	fd := c.sys.fds.Get(int32(fildes))
	if fd == nil || fd.SystemFD() < 0 {
		c.m.setCF(true)
		c.m.setAX(6)
		return nil, false
	}
	return fd, true
}

func (dosSyscalls) Handle(c *CPU8086, intno int) bool {
	m, sys := c.m, c.sys

	switch intno<<8 | int(m.ah()) {
	case 0x1a00: // get tick count
		m.setDX(uint16(sys.rawRead(0x046C)) | uint16(sys.rawRead(0x046D))<<8)
		m.setCX(uint16(sys.rawRead(0x046E)) | uint16(sys.rawRead(0x046F))<<8)
		m.setAL(sys.rawRead(0x0470))

	case 0x2109: // write $-terminated string at DS:DX to stdout
		addr := m.dx()
		var buf []byte
		for i := 0; i < 0x10000; i++ {
			b := mustOK(sys.readByte(m, addr+uint16(i), m.ds()))
			if b == '$' {
				break
			}
			buf = append(buf, b)
		}
		fd, ok := dosFd(c, 1)
		if ok {
			if _, err := fd.ops.Writev(fd.SystemFD(), [][]byte{buf}); err != nil {
				dosFatal(c, err)
			}
		}

	case 0x2130: // get DOS version, constants per syscall-dos.c
		m.setAX(0x1403)
		m.setBX(0xFF00)
		m.setCX(0)

	case 0x2139: // mkdir
		path := readGuestASCIIZ(sys, m, m.ds(), m.dx())
		if err := unix.Mkdir(path, 0700); err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
		} else {
			m.setCF(false)
		}

	case 0x213a: // rmdir
		path := readGuestASCIIZ(sys, m, m.ds(), m.dx())
		if err := unix.Rmdir(path); err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
		} else {
			m.setCF(false)
		}

	case 0x213b: // chdir
		path := readGuestASCIIZ(sys, m, m.ds(), m.dx())
		if err := unix.Chdir(path); err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
		} else {
			m.setCF(false)
		}

	case 0x213c: // creat
		path := readGuestASCIIZ(sys, m, m.ds(), m.dx())
		hostFD, err := unix.Open(path, unix.O_CREAT|unix.O_WRONLY|unix.O_TRUNC, 0700)
		if err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
			break
		}
		fd, _ := sys.fds.Allocate(-1, 0)
		fd.setSystemFD(int32(hostFD))
		fd.ops = makeRawIfTerminal(int32(hostFD))
		m.setCF(false)
		m.setAX(uint16(fd.fildes))

	case 0x213d: // open
		path := readGuestASCIIZ(sys, m, m.ds(), m.dx())
		mode := int(m.al() & 3)
		var hostFlag int
		switch mode {
		case 1:
			hostFlag = unix.O_WRONLY
		case 2:
			hostFlag = unix.O_RDWR
		default:
			hostFlag = unix.O_RDONLY
		}
		hostFD, err := unix.Open(path, hostFlag, 0700)
		if err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
			break
		}
		fd, _ := sys.fds.Allocate(-1, 0)
		fd.setSystemFD(int32(hostFD))
		fd.ops = makeRawIfTerminal(int32(hostFD))
		m.setCF(false)
		m.setAX(uint16(fd.fildes))

	case 0x213e: // close
		fd, ok := dosFd(c, m.bx())
		if !ok {
			break
		}
		// Standard streams (0,1,2) are never actually closed at the
		// host level, matching syscall-dos.c's "fileDescriptor >= 5"
		// guard against tearing down its preloaded stdio aliases.
		if m.bx() >= 3 {
			if err := sys.fds.Free(fd.fildes); err != nil {
				m.setCF(true)
				m.setAX(uint16(dosErrorCode(c, err)))
				break
			}
		}
		m.setCF(false)

	case 0x213f: // read
		fd, ok := dosFd(c, m.bx())
		if !ok {
			break
		}
		n := int(m.cx())
		buf := make([]byte, n)
		got, err := fd.ops.Readv(fd.SystemFD(), [][]byte{buf})
		if err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
			break
		}
		writeGuestBytes(sys, m, m.ds(), m.dx(), buf[:got])
		m.setCF(false)
		m.setAX(uint16(got))

	case 0x2140: // write
		fd, ok := dosFd(c, m.bx())
		if !ok {
			break
		}
		n := int(m.cx())
		buf := readGuestBytes(sys, m, m.ds(), m.dx(), n)
		got, err := fd.ops.Writev(fd.SystemFD(), [][]byte{buf})
		if err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
			break
		}
		m.setCF(false)
		m.setAX(uint16(got))

	case 0x2141: // unlink
		path := readGuestASCIIZ(sys, m, m.ds(), m.dx())
		if err := unix.Unlink(path); err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
		} else {
			m.setCF(false)
		}

	case 0x2142: // lseek
		fd, ok := dosFd(c, m.bx())
		if !ok {
			break
		}
		offset := int64(m.cx())<<16 | int64(m.dx())
		newOff, err := unix.Seek(int(fd.SystemFD()), offset, int(m.al()))
		if err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
			break
		}
		m.setCF(false)
		m.setDX(uint16(newOff >> 16))
		m.setAX(uint16(newOff))

	case 0x2144: // ioctl, subfunction 0 ("get device information") only
		if m.al() != 0 {
			dosFatal(c, &RuntimeFault{CS: m.cs(), IP: m.ip, Reason: "unknown ioctl subfunction for int 21h/ah=44h"})
		}
		fd, ok := dosFd(c, m.bx())
		if !ok {
			break
		}
		if term.IsTerminal(int(fd.SystemFD())) {
			m.setDX(0x80)
			m.setCF(false)
		} else {
			m.setDX(0)
			m.setCF(false)
		}

	case 0x2147: // getcwd
		cwd, err := unix.Getwd()
		if err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
			break
		}
		out := append([]byte(cwd), 0)
		writeGuestBytes(sys, m, m.ds(), m.si(), out)
		m.setCF(false)

	case 0x214a: // "resize" PSP - validated only, per syscall-dos.c
		memEnd := (uint32(m.es()) + uint32(m.bx())) << 4
		if m.es() == dosLoadSegment-0x10 &&
			physicalAddress(m.cs(), m.ip) < memEnd &&
			physicalAddress(m.ss(), m.sp()-1) < memEnd {
			m.setCF(false)
			break
		}
		dosFatal(c, &RuntimeFault{CS: m.cs(), IP: m.ip, Reason: "bad attempt to resize DOS memory block"})

	case 0x214c: // exit; the original hardcodes rc=0 regardless of AL
		panic(haltSignal{exitCode: 0})

	case 0x2156: // rename
		oldPath := readGuestASCIIZ(sys, m, m.ds(), m.dx())
		newPath := readGuestASCIIZ(sys, m, m.es(), m.di())
		if err := unix.Rename(oldPath, newPath); err != nil {
			m.setCF(true)
			m.setAX(uint16(dosErrorCode(c, err)))
		} else {
			m.setCF(false)
		}

	case 0x2157: // file time/date getter, stubbed per syscall-dos.c
		if m.al() != 0 {
			dosFatal(c, &RuntimeFault{CS: m.cs(), IP: m.ip, Reason: "unknown AL subfunction for int 21h/ah=57h"})
		}
		if _, ok := dosFd(c, m.bx()); !ok {
			break
		}
		m.setCX(0x0000)
		m.setDX(0x0021)
		m.setCF(false)

	default:
		dosFatal(c, &RuntimeFault{CS: m.cs(), IP: m.ip, Reason: "unknown DOS/BIOS call"})
	}
	return true
}
