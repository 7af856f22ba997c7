// linux_syscalls.go - the Linux x86-64 syscall dispatcher (spec §4.4).
//
// Grounded directly on original_source/blink/syscall.c's giant OpSyscall
// switch (the SYSCALL macro logging entry/exit, ASSIGN for struct
// copies, GetAndLockFd/GetFildes for descriptor resolution) reshaped
// into a Go dispatch table indexed by syscall number, mirroring the
// teacher's own `baseOps [256]func(*CPU_X86)` opcode-table idiom
// (cpu_x86.go) at one remove: one table entry per Linux syscall number
// instead of per 8086 opcode.

package blink16

import (
	"time"

	"golang.org/x/sys/unix"
)

// Linux x86-64 syscall numbers this dispatcher recognizes (x86_64
// calling convention table, unix/linux/kernel ABI).
const (
	sysRead            = 0
	sysWrite           = 1
	sysOpen            = 2
	sysClose           = 3
	sysStat            = 4
	sysFstat           = 5
	sysLstat           = 6
	sysPoll            = 7
	sysLseek           = 8
	sysMmap            = 9
	sysMprotect        = 10
	sysMunmap          = 11
	sysBrk             = 12
	sysRtSigaction     = 13
	sysRtSigprocmask   = 14
	sysRtSigreturn     = 15
	sysIoctl           = 16
	sysReadv           = 19
	sysWritev          = 20
	sysAccess          = 21
	sysDup             = 32
	sysDup2            = 33
	sysNanosleep       = 35
	sysGetpid          = 39
	sysSocket          = 41
	sysConnect         = 42
	sysAccept          = 43
	sysBind            = 49
	sysGetsockname     = 51
	sysGetpeername     = 52
	sysClone           = 56
	sysExit            = 60
	sysUname           = 63
	sysFcntl           = 72
	sysGetdents        = 78
	sysGetcwd          = 79
	sysGetrlimit       = 97
	sysGettimeofday    = 96
	sysGettid          = 186
	sysTkill           = 200
	sysFutex           = 202
	sysGetdents64      = 217
	sysClockGettime    = 228
	sysClockNanosleep  = 230
	sysExitGroup       = 231
	sysOpenat          = 257
	sysAccept4         = 288
	sysDup3            = 292
)

const (
	protRead  = 0x1
	protWrite = 0x2
	protExec  = 0x4

	mapShared            = 0x01
	mapPrivate           = 0x02
	mapFixed             = 0x10
	mapAnonymous         = 0x20
	mapGrowsdown         = 0x0100
	mapFixedNoreplace    = 0x100000

	cloneVM             = 0x00000100
	cloneFS             = 0x00000200
	cloneFiles          = 0x00000400
	cloneSighand        = 0x00000800
	cloneVfork          = 0x00004000
	cloneThread         = 0x00010000
	cloneSysvsem        = 0x00040000
	cloneSettls         = 0x00080000
	cloneParentSettid   = 0x00100000
	cloneChildCleartid  = 0x00200000
	cloneChildSettid    = 0x01000000
	sigchld             = 17

	futexWait         = 0
	futexWake         = 1
	futexPrivateFlag  = 128
	futexCmdMask      = 0x7f

	sigBLOCK   = 0
	sigUNBLOCK = 1
	sigSETMASK = 2

	minBrk = 0x10000 // kMinBrk: never let brk fall below 64 KiB
)

// negErrno is the -(errno&0xfff) convention spec §4.4/§6 describes for
// every syscall return.
func negErrno(err error) int64 { return xlatErrno(err) }

// lookupBytes resolves a guest pointer to n host bytes, translating a
// miss into the EFAULT sentinel per "null ⇒ EFAULT".
func lookupBytes(sys *System, addr uint64, n int) ([]byte, error) {
	if addr == 0 {
		return nil, ErrEFAULT
	}
	b := sys.vm.LookupAddress(addr, n)
	if b == nil {
		return nil, ErrEFAULT
	}
	return b, nil
}

// readCString reads a NUL-terminated string starting at addr, one byte
// lookup at a time so it tolerates a path straddling a page boundary.
func readCString(sys *System, addr uint64) (string, error) {
	var out []byte
	for i := uint64(0); i < 4096; i++ {
		b, err := lookupBytes(sys, addr+i, 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
		out = append(out, b[0])
	}
	return string(out), nil
}

// prot2Page maps Linux PROT_* bits onto VmMap's page-key bits, per spec
// §4.4's "map PROT bits to page-key bits via Prot2Page". PROT_EXEC's
// absence sets the execute-disable bit, matching pageXD's "cleared
// (executable) by default, like NX inverted" convention in vmmap.go.
func prot2Page(prot uint64) byte {
	var key byte = pageXD
	if prot&protRead != 0 || prot&protWrite != 0 {
		key |= pageUser
	}
	if prot&protWrite != 0 {
		key |= pageRW
	}
	if prot&protExec != 0 {
		key &^= pageXD
	}
	return key
}

// Dispatch is the Linux syscall layer's public contract (spec §4.4):
// "a single dispatch on the low 9 bits of the guest ax register." m's
// rax holds the syscall number on entry and the result on return; args
// come from rdi/rsi/rdx/r10/r8/r9 via Machine.syscallArgs.
func (s *System) Dispatch(m *Machine) int64 {
	num := m.rax() & 0x1ff
	args := m.syscallArgs()
	name, fn := linuxSyscallTable[num].name, linuxSyscallTable[num].fn
	if fn == nil {
		ret := -int64(enosys)
		traceSyscall(s.Verbose, "ENOSYS", args, ret)
		m.setRAX(uint64(ret))
		return ret
	}
	ret := fn(s, m, args)
	traceSyscall(s.Verbose, name, args, ret)
	m.setRAX(uint64(ret))
	return ret
}

type linuxSyscallFn func(sys *System, m *Machine, args [6]uint64) int64

var linuxSyscallTable = buildLinuxSyscallTable()

func buildLinuxSyscallTable() [512]struct {
	name string
	fn   linuxSyscallFn
} {
	var t [512]struct {
		name string
		fn   linuxSyscallFn
	}
	reg := func(num int, name string, fn linuxSyscallFn) { t[num] = struct {
		name string
		fn   linuxSyscallFn
	}{name, fn} }

	reg(sysRead, "read", sysReadImpl)
	reg(sysWrite, "write", sysWriteImpl)
	reg(sysOpen, "open", sysOpenImpl)
	reg(sysOpenat, "openat", sysOpenatImpl)
	reg(sysClose, "close", sysCloseImpl)
	reg(sysStat, "stat", sysStatImpl)
	reg(sysFstat, "fstat", sysFstatImpl)
	reg(sysLstat, "lstat", sysLstatImpl)
	reg(sysPoll, "poll", sysPollImpl)
	reg(sysLseek, "lseek", sysLseekImpl)
	reg(sysMmap, "mmap", sysMmapImpl)
	reg(sysMprotect, "mprotect", sysMprotectImpl)
	reg(sysMunmap, "munmap", sysMunmapImpl)
	reg(sysBrk, "brk", sysBrkImpl)
	reg(sysRtSigaction, "rt_sigaction", sysRtSigactionImpl)
	reg(sysRtSigprocmask, "rt_sigprocmask", sysRtSigprocmaskImpl)
	reg(sysRtSigreturn, "rt_sigreturn", sysRtSigreturnImpl)
	reg(sysIoctl, "ioctl", sysIoctlImpl)
	reg(sysReadv, "readv", sysReadvImpl)
	reg(sysWritev, "writev", sysWritevImpl)
	reg(sysAccess, "access", sysAccessImpl)
	reg(sysDup, "dup", sysDupImpl)
	reg(sysDup2, "dup2", sysDup2Impl)
	reg(sysDup3, "dup3", sysDup3Impl)
	reg(sysNanosleep, "nanosleep", sysNanosleepImpl)
	reg(sysGetpid, "getpid", sysGetpidImpl)
	reg(sysSocket, "socket", sysSocketImpl)
	reg(sysConnect, "connect", sysConnectImpl)
	reg(sysAccept, "accept", sysAcceptImpl)
	reg(sysAccept4, "accept4", sysAccept4Impl)
	reg(sysBind, "bind", sysBindImpl)
	reg(sysGetsockname, "getsockname", sysGetsocknameImpl)
	reg(sysGetpeername, "getpeername", sysGetpeernameImpl)
	reg(sysClone, "clone", sysCloneImpl)
	reg(sysExit, "exit", sysExitImpl)
	reg(sysExitGroup, "exit_group", sysExitGroupImpl)
	reg(sysUname, "uname", sysUnameImpl)
	reg(sysFcntl, "fcntl", sysFcntlImpl)
	reg(sysGetdents, "getdents", sysGetdentsImpl)
	reg(sysGetdents64, "getdents64", sysGetdentsImpl)
	reg(sysGetcwd, "getcwd", sysGetcwdImpl)
	reg(sysGetrlimit, "getrlimit", sysGetrlimitImpl)
	reg(sysGettimeofday, "gettimeofday", sysGettimeofdayImpl)
	reg(sysClockGettime, "clock_gettime", sysClockGettimeImpl)
	reg(sysClockNanosleep, "clock_nanosleep", sysClockNanosleepImpl)
	reg(sysGettid, "gettid", sysGettidImpl)
	reg(sysTkill, "tkill", sysTkillImpl)
	reg(sysFutex, "futex", sysFutexImpl)
	return t
}

// --- fd-table-backed I/O ---

func fdOrBad(sys *System, fildes uint64) (*Fd, int64) {
	fd := sys.fds.Get(int32(fildes))
	if fd == nil || fd.SystemFD() < 0 {
		return nil, -int64(ebadf)
	}
	return fd, 0
}

func sysReadImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	if _, err := lookupBytes(sys, a[1], int(a[2])); err != nil {
		return -int64(efault)
	}
	buf := make([]byte, a[2])
	n, err := fd.ops.Readv(fd.SystemFD(), [][]byte{buf})
	if err != nil {
		return negErrno(err)
	}
	_ = sys.vm.WriteBytes(a[1], buf[:n])
	return int64(n)
}

func sysWriteImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	buf, err := lookupBytes(sys, a[1], int(a[2]))
	if err != nil {
		return -int64(efault)
	}
	n, err := fd.ops.Writev(fd.SystemFD(), [][]byte{buf})
	if err != nil {
		return negErrno(err)
	}
	return int64(n)
}

func sysReadvImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	entries, err := parseIovecEntries(sys, a[1], int(a[2]))
	if err != nil {
		return -int64(efault)
	}
	scratch := make([][]byte, len(entries))
	for i, ent := range entries {
		scratch[i] = make([]byte, ent.length)
	}
	n, err := fd.ops.Readv(fd.SystemFD(), scratch)
	if err != nil {
		return negErrno(err)
	}
	commitIovec(sys, entries, scratch, n)
	return int64(n)
}

func sysWritevImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	bufs, err := resolveIovec(sys, a[1], int(a[2]))
	if err != nil {
		return -int64(efault)
	}
	n, err := fd.ops.Writev(fd.SystemFD(), bufs)
	if err != nil {
		return negErrno(err)
	}
	return int64(n)
}

// iovecEntry is one parsed Linux struct iovec: a guest base address and
// length, validated but not yet bound to any particular backing slice.
type iovecEntry struct {
	addr   uint64
	length int
}

// parseIovecEntries reads a Linux struct iovec array (base uint64, len
// uint64; 16 bytes each), validating that every entry's buffer is
// reserved guest memory.
func parseIovecEntries(sys *System, addr uint64, n int) ([]iovecEntry, error) {
	out := make([]iovecEntry, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := lookupBytes(sys, addr+uint64(i*16), 16)
		if err != nil {
			return nil, err
		}
		base := leUint64(hdr[0:])
		length := leUint64(hdr[8:])
		if length == 0 {
			continue
		}
		if _, err := lookupBytes(sys, base, int(length)); err != nil {
			return nil, err
		}
		out = append(out, iovecEntry{addr: base, length: int(length)})
	}
	return out, nil
}

// resolveIovec resolves a Linux struct iovec array for a read-only use
// (writev): a LookupAddress slice that crosses a page boundary may be a
// detached copy, which is harmless here since nothing writes through
// it afterward.
func resolveIovec(sys *System, addr uint64, n int) ([][]byte, error) {
	entries, err := parseIovecEntries(sys, addr, n)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = sys.vm.LookupAddress(e.addr, e.length)
	}
	return out, nil
}

// commitIovec is readv's counterpart to resolveIovec: it distributes
// the n bytes filled into scratch, in iovec order, back into guest
// memory via WriteBytes. Readv filling a LookupAddress slice directly
// would silently drop any entry that crosses a page boundary, since
// that slice is a detached copy rather than an alias.
func commitIovec(sys *System, entries []iovecEntry, scratch [][]byte, n int) {
	for i, e := range entries {
		if n <= 0 {
			break
		}
		take := e.length
		if take > n {
			take = n
		}
		_ = sys.vm.WriteBytes(e.addr, scratch[i][:take])
		n -= take
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

func sysOpenImpl(sys *System, m *Machine, a [6]uint64) int64 {
	return doOpen(sys, a[0], a[1], uint32(a[2]))
}

func sysOpenatImpl(sys *System, m *Machine, a [6]uint64) int64 {
	// dirfd (a[0]) is ignored: the core never resolves guest paths
	// relative to an open directory fd, matching the "delegates
	// straight through" scope of this handler (absolute/cwd-relative
	// paths only).
	return doOpen(sys, a[1], a[2], uint32(a[3]))
}

func doOpen(sys *System, pathAddr uint64, linuxFlags uint64, mode uint32) int64 {
	path, err := readCString(sys, pathAddr)
	if err != nil {
		return -int64(efault)
	}
	hostFlags := xlatOpenFlagsToHost(uint32(linuxFlags))
	hostFD, err := unix.Open(path, hostFlags, mode)
	if err != nil {
		return negErrno(err)
	}
	fd, _ := sys.fds.Allocate(-1, uint32(linuxFlags))
	fd.setSystemFD(int32(hostFD))
	fd.ops = makeRawIfTerminal(int32(hostFD))
	return int64(fd.fildes)
}

func sysCloseImpl(sys *System, m *Machine, a [6]uint64) int64 {
	if err := sys.fds.Free(int32(a[0])); err != nil {
		return -int64(ebadf)
	}
	return 0
}

func doStat(sys *System, m *Machine, hostFD int, outAddr uint64) int64 {
	var st unix.Stat_t
	var err error
	if hostFD >= 0 {
		err = unix.Fstat(hostFD, &st)
	}
	if err != nil {
		return negErrno(err)
	}
	if _, lerr := lookupBytes(sys, outAddr, 144); lerr != nil {
		return -int64(efault)
	}
	out := make([]byte, 144)
	xlatStatToLinux(&st, out)
	_ = sys.vm.WriteBytes(outAddr, out)
	return 0
}

func sysStatImpl(sys *System, m *Machine, a [6]uint64) int64 {
	path, err := readCString(sys, a[0])
	if err != nil {
		return -int64(efault)
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return negErrno(err)
	}
	if _, lerr := lookupBytes(sys, a[1], 144); lerr != nil {
		return -int64(efault)
	}
	out := make([]byte, 144)
	xlatStatToLinux(&st, out)
	_ = sys.vm.WriteBytes(a[1], out)
	return 0
}

func sysLstatImpl(sys *System, m *Machine, a [6]uint64) int64 {
	path, err := readCString(sys, a[0])
	if err != nil {
		return -int64(efault)
	}
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return negErrno(err)
	}
	if _, lerr := lookupBytes(sys, a[1], 144); lerr != nil {
		return -int64(efault)
	}
	out := make([]byte, 144)
	xlatStatToLinux(&st, out)
	_ = sys.vm.WriteBytes(a[1], out)
	return 0
}

func sysFstatImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	return doStat(sys, m, int(fd.SystemFD()), a[1])
}

func sysLseekImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	off, err := unix.Seek(int(fd.SystemFD()), int64(a[1]), int(a[2]))
	if err != nil {
		return negErrno(err)
	}
	return off
}

func sysAccessImpl(sys *System, m *Machine, a [6]uint64) int64 {
	path, err := readCString(sys, a[0])
	if err != nil {
		return -int64(efault)
	}
	if err := unix.Access(path, uint32(a[1])); err != nil {
		return negErrno(err)
	}
	return 0
}

func sysDupImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	hostFD, err := unix.Dup(int(fd.SystemFD()))
	if err != nil {
		return negErrno(err)
	}
	nfd, _ := sys.fds.Allocate(-1, fd.oflags)
	nfd.setSystemFD(int32(hostFD))
	nfd.ops = fd.ops
	return int64(nfd.fildes)
}

func doDup2(sys *System, oldFildes, newFildes uint64) int64 {
	fd, e := fdOrBad(sys, oldFildes)
	if e != 0 {
		return e
	}
	if int32(newFildes) == fd.fildes {
		return int64(newFildes)
	}
	hostFD, err := unix.Dup(int(fd.SystemFD()))
	if err != nil {
		return negErrno(err)
	}
	nfd, _ := sys.fds.Allocate(int32(newFildes), fd.oflags)
	nfd.setSystemFD(int32(hostFD))
	nfd.ops = fd.ops
	return int64(nfd.fildes)
}

func sysDup2Impl(sys *System, m *Machine, a [6]uint64) int64  { return doDup2(sys, a[0], a[1]) }
func sysDup3Impl(sys *System, m *Machine, a [6]uint64) int64  { return doDup2(sys, a[0], a[1]) }

// fcntl subset per spec supplement: F_GETFD/F_SETFD/F_GETFL/F_SETFL.
func sysFcntlImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	switch a[1] {
	case unix.F_GETFD:
		fd.mu.Lock()
		v := int64(0)
		if fd.cloexec {
			v = 1
		}
		fd.mu.Unlock()
		return v
	case unix.F_SETFD:
		fd.mu.Lock()
		fd.cloexec = a[2]&1 != 0
		fd.mu.Unlock()
		return 0
	case unix.F_GETFL:
		r, err := unix.FcntlInt(uintptr(fd.SystemFD()), unix.F_GETFL, 0)
		if err != nil {
			return negErrno(err)
		}
		return int64(r)
	case unix.F_SETFL:
		if _, err := unix.FcntlInt(uintptr(fd.SystemFD()), unix.F_SETFL, int(a[2])); err != nil {
			return negErrno(err)
		}
		return 0
	default:
		return -int64(einval)
	}
}

func sysGetdentsImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	if _, err := lookupBytes(sys, a[1], int(a[2])); err != nil {
		return -int64(efault)
	}
	out := make([]byte, a[2])

	fd.mu.Lock()
	if fd.dir == nil {
		fd.dir = &dirStream{hostFd: fd.SystemFD()}
	}
	d := fd.dir
	fd.mu.Unlock()

	if d.off >= len(d.buf) {
		raw := make([]byte, 32*1024)
		n, err := unix.Getdents(int(d.hostFd), raw)
		if err != nil {
			return negErrno(err)
		}
		d.buf = raw[:n]
		d.off = 0
	}
	if len(d.buf) == 0 {
		return 0
	}

	// Translate host dirents into the Linux linux_dirent64 layout this
	// guest expects: 8-byte ino (zeroed per §4.4), 8-byte off, 2-byte
	// reclen, 1-byte d_type, then the NUL-terminated name.
	w := 0
	for d.off < len(d.buf) {
		hostReclen := int(leUint16(d.buf[d.off+16:]))
		name := cstr(d.buf[d.off+19:])
		dtype := d.buf[d.off+18]
		reclen := (19 + len(name) + 1 + 7) &^ 7
		if w+reclen > len(out) {
			break
		}
		putLeUint64(out[w:], 0)
		putLeUint64(out[w+8:], uint64(d.off+hostReclen))
		out[w+16] = byte(reclen)
		out[w+17] = byte(reclen >> 8)
		out[w+18] = xlatDirentType(dtype)
		copy(out[w+19:], name)
		out[w+19+len(name)] = 0
		w += reclen
		d.off += hostReclen
	}
	_ = sys.vm.WriteBytes(a[1], out[:w])
	return int64(w)
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func cstr(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

func sysGetcwdImpl(sys *System, m *Machine, a [6]uint64) int64 {
	cwd, err := unix.Getwd()
	if err != nil {
		return negErrno(err)
	}
	if int(a[1]) < len(cwd)+1 {
		return -int64(efault)
	}
	if _, lerr := lookupBytes(sys, a[0], int(a[1])); lerr != nil {
		return -int64(efault)
	}
	out := make([]byte, len(cwd)+1)
	copy(out, cwd)
	_ = sys.vm.WriteBytes(a[0], out)
	return int64(len(cwd) + 1)
}

// --- process/thread identity and signals ---

func sysGetpidImpl(sys *System, m *Machine, a [6]uint64) int64 { return int64(sys.pid) }
func sysGettidImpl(sys *System, m *Machine, a [6]uint64) int64 { return int64(m.tid) }

func sysTkillImpl(sys *System, m *Machine, a [6]uint64) int64 {
	tgt := sys.machineByTID(uint32(a[0]))
	if tgt == nil {
		return -int64(eio)
	}
	sig, ok := xlatSignal(int32(a[1]))
	if !ok {
		return -int64(einval)
	}
	tgt.raiseSignal(sig)
	return 0
}

func sysRtSigactionImpl(sys *System, m *Machine, a [6]uint64) int64 {
	if a[3] != 8 {
		return -int64(einval)
	}
	sig, ok := xlatSignal(int32(a[0]))
	if !ok {
		return -int64(einval)
	}
	if a[2] != 0 {
		if _, err := lookupBytes(sys, a[2], 32); err != nil {
			return -int64(efault)
		}
		out := make([]byte, 32)
		old := sys.sigHandlers[sig]
		putLeUint64(out[0:], old.handler)
		putLeUint64(out[8:], old.flags)
		putLeUint64(out[16:], old.restorer)
		putLeUint64(out[24:], old.mask)
		_ = sys.vm.WriteBytes(a[2], out)
	}
	if a[1] != 0 {
		in, err := lookupBytes(sys, a[1], 32)
		if err != nil {
			return -int64(efault)
		}
		sys.sigHandlers[sig] = sigAction{
			handler:  leUint64(in[0:]),
			flags:    leUint64(in[8:]),
			restorer: leUint64(in[16:]),
			mask:     leUint64(in[24:]),
			set:      true,
		}
	}
	return 0
}

func sysRtSigprocmaskImpl(sys *System, m *Machine, a [6]uint64) int64 {
	if a[3] != 8 {
		return -int64(einval)
	}
	if a[1] != 0 {
		in, err := lookupBytes(sys, a[1], 8)
		if err != nil {
			return -int64(efault)
		}
		newMask := leUint64(in)
		for {
			old := m.sigMask.Load()
			var next uint64
			switch a[0] {
			case sigBLOCK:
				next = old | newMask
			case sigUNBLOCK:
				next = old &^ newMask
			case sigSETMASK:
				next = newMask
			default:
				return -int64(einval)
			}
			if m.sigMask.CompareAndSwap(old, next) {
				break
			}
		}
	}
	if a[2] != 0 {
		if _, err := lookupBytes(sys, a[2], 8); err != nil {
			return -int64(efault)
		}
		out := make([]byte, 8)
		putLeUint64(out, m.sigMask.Load())
		_ = sys.vm.WriteBytes(a[2], out)
	}
	return 0
}

// rt_sigreturn is a no-op fallthrough per the original's case 0x00F:
// the signal-trampoline restoration work belongs to the x86-64
// interpreter collaborator, which owns the register file rt_sigreturn
// restores.
func sysRtSigreturnImpl(sys *System, m *Machine, a [6]uint64) int64 { return 0 }

// --- time ---

func sysNanosleepImpl(sys *System, m *Machine, a [6]uint64) int64 {
	in, err := lookupBytes(sys, a[0], 16)
	if err != nil {
		return -int64(efault)
	}
	sec, nsec := xlatLinuxToTimespec(in)
	time.Sleep(time.Duration(sec)*time.Second + time.Duration(nsec))
	return 0
}

func sysClockNanosleepImpl(sys *System, m *Machine, a [6]uint64) int64 {
	in, err := lookupBytes(sys, a[2], 16)
	if err != nil {
		return -int64(efault)
	}
	sec, nsec := xlatLinuxToTimespec(in)
	time.Sleep(time.Duration(sec)*time.Second + time.Duration(nsec))
	return 0
}

func sysGettimeofdayImpl(sys *System, m *Machine, a [6]uint64) int64 {
	if a[0] == 0 {
		return 0
	}
	if _, err := lookupBytes(sys, a[0], 16); err != nil {
		return -int64(efault)
	}
	out := make([]byte, 16)
	now := time.Now()
	putLeUint64(out[0:], uint64(now.Unix()))
	putLeUint64(out[8:], uint64(now.Nanosecond()/1000))
	_ = sys.vm.WriteBytes(a[0], out)
	return 0
}

func sysClockGettimeImpl(sys *System, m *Machine, a [6]uint64) int64 {
	if _, err := lookupBytes(sys, a[1], 16); err != nil {
		return -int64(efault)
	}
	out := make([]byte, 16)
	now := time.Now()
	xlatTimespecToLinux(now.Unix(), int64(now.Nanosecond()), out)
	_ = sys.vm.WriteBytes(a[1], out)
	return 0
}

// --- mmap/brk/mprotect/munmap ---

func sysBrkImpl(sys *System, m *Machine, a [6]uint64) int64 {
	want := a[0]
	if want == 0 {
		return int64(sys.vm.Brk())
	}
	if want < minBrk {
		want = minBrk
	}
	rounded := (want + vmPageSize - 1) &^ (vmPageSize - 1)
	return int64(sys.vm.SetBrk(rounded))
}

func sysMmapImpl(sys *System, m *Machine, a [6]uint64) int64 {
	virt, size, prot, flags, fd, off := a[0], a[1], a[2], a[3], int32(a[4]), a[5]
	if flags&mapGrowsdown != 0 || flags&mapFixedNoreplace != 0 {
		return -int64(einval)
	}
	if size == 0 {
		return -int64(einval)
	}
	size = (size + vmPageSize - 1) &^ (vmPageSize - 1)
	key := prot2Page(prot)

	var addr uint64
	if flags&mapFixed != 0 {
		addr = virt &^ (vmPageSize - 1)
	} else {
		hint := virt
		if hint == 0 {
			hint = sys.vm.Brk()
		}
		addr = sys.vm.FindVirtual(hint, size)
	}

	hostFD := int32(-1)
	shared := flags&mapShared != 0
	if flags&mapAnonymous == 0 {
		guestFd := sys.fds.Get(fd)
		if guestFd == nil {
			return -int64(ebadf)
		}
		hostFD = guestFd.SystemFD()
	}

	// A mapping placed at the brk hint must push brk above it, or a
	// later brk() grow would reserve straight over it (ground truth:
	// original_source/blink/syscall.c:544's
	// "brk = ROUNDUP(virt + size, pagesize)"). The bump runs before the
	// mapping's own Reserve, since SetBrk reserves every page it grows
	// over with the plain heap key.
	if flags&mapFixed == 0 && virt == 0 {
		sys.vm.SetBrk((addr + size + vmPageSize - 1) &^ (vmPageSize - 1))
	}
	sys.vm.Reserve(addr, size, key, hostFD, shared)

	if hostFD >= 0 && sys.nolinear {
		buf := make([]byte, size)
		for {
			_, err := unix.Pread(int(hostFD), buf, int64(off))
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				m.raiseSignal(sigBUS)
			} else {
				_ = sys.vm.WriteBytes(addr, buf)
			}
			break
		}
	}
	return int64(addr)
}

func sysMprotectImpl(sys *System, m *Machine, a [6]uint64) int64 {
	addr := a[0] &^ (vmPageSize - 1)
	size := (a[1] + vmPageSize - 1) &^ (vmPageSize - 1)
	if err := sys.vm.Protect(addr, size, prot2Page(a[2])); err != nil {
		return -int64(enomem)
	}
	if a[2]&protExec != 0 {
		sys.invalidations.Add(1)
	}
	return 0
}

func sysMunmapImpl(sys *System, m *Machine, a [6]uint64) int64 {
	addr := a[0] &^ (vmPageSize - 1)
	size := (a[1] + vmPageSize - 1) &^ (vmPageSize - 1)
	sys.vm.Free(addr, size)
	return 0
}

// --- futex ---

func sysFutexImpl(sys *System, m *Machine, a [6]uint64) int64 {
	uaddr, op, val := a[0], a[1]&futexCmdMask, uint32(a[2])
	if uaddr&3 != 0 {
		return negErrno(ErrBadFutexAddr)
	}
	switch op {
	case futexWait:
		wb, err := lookupBytes(sys, uaddr, 4)
		if err != nil {
			return -int64(efault)
		}
		word := uint32(wb[0]) | uint32(wb[1])<<8 | uint32(wb[2])<<16 | uint32(wb[3])<<24
		var timeout time.Duration
		hasTimeout := a[3] != 0
		if hasTimeout {
			tb, err := lookupBytes(sys, a[3], 16)
			if err != nil {
				return -int64(efault)
			}
			sec, nsec := xlatLinuxToTimespec(tb)
			timeout = time.Duration(sec)*time.Second + time.Duration(nsec)
		}
		return sys.futex.wait(uint32(uaddr), word, val, timeout, hasTimeout)
	case futexWake:
		return sys.futex.wake(uint32(uaddr), int(val))
	default:
		return -int64(einval)
	}
}

// --- clone/exit ---

func sysCloneImpl(sys *System, m *Machine, a [6]uint64) int64 {
	flags := a[0]
	stack, ptid, ctid, tls := a[1], a[2], a[3], a[4]

	const mandatory = cloneThread | cloneVM | cloneFS | cloneFiles | cloneSighand
	const optional = cloneSettls | cloneParentSettid | cloneChildCleartid | cloneChildSettid | cloneSysvsem

	if flags == sigchld || flags == (cloneVM|cloneVfork|sigchld) {
		// fork()-equivalent: a new Machine, never a literal host fork
		// (the host process is never forked; see spec §4.4 clone note).
		child := sys.spawnMachine()
		child.regs64 = m.regs64
		child.setRAX(0)
		return int64(child.tid)
	}

	if flags&mandatory != mandatory || flags&^(mandatory|optional) != 0 {
		return negErrno(ErrUnsupportedClone)
	}

	child := sys.spawnMachine()
	child.regs64 = m.regs64
	child.sigMask.Store(m.sigMask.Load())
	if stack != 0 {
		child.regs64[reg64RSP] = stack
	}
	if flags&cloneSettls != 0 {
		child.fsBase = tls
	}
	if flags&cloneChildCleartid != 0 {
		child.clearChildTID = true
		child.ctidAddr = uint32(ctid)
	}
	child.setRAX(0)

	if flags&cloneParentSettid != 0 {
		if _, err := lookupBytes(sys, ptid, 4); err == nil {
			var b [4]byte
			putPid32(b[:], child.tid)
			_ = sys.vm.WriteBytes(ptid, b[:])
		}
	}
	if flags&cloneChildSettid != 0 {
		if _, err := lookupBytes(sys, ctid, 4); err == nil {
			var b [4]byte
			putPid32(b[:], child.tid)
			_ = sys.vm.WriteBytes(ctid, b[:])
		}
	}

	if !sys.pool.spawn(func() error { return runGuestThread(sys, child) }) {
		child.unlink()
		return -int64(eagain)
	}
	return int64(child.tid)
}

func putPid32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

// clearCTID zeroes CHILD_CLEARTID's word and wakes any futex waiter on
// it, the shared tail of thread exit named in spec scenario 6.
func clearCTID(sys *System, m *Machine) {
	if !m.clearChildTID {
		return
	}
	var zero [4]byte
	_ = sys.vm.WriteBytes(uint64(m.ctidAddr), zero[:])
	sys.futex.wake(m.ctidAddr, 1)
}

// runGuestThread is the Actor-loop wrapper named in spec §9: it recovers
// haltSignal exactly like the 8086 CPU's own Step loop does, clears
// CHILD_CLEARTID and wakes any futex waiter on it (spec scenario 6), and
// unlinks the Machine from its System.
func runGuestThread(sys *System, m *Machine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if h, ok := r.(haltSignal); ok {
				err = h.fault
			} else {
				panic(r)
			}
		}
		clearCTID(sys, m)
		m.unlink()
	}()
	if sys.actor == nil {
		return nil
	}
	return sys.actor(m)
}

func sysExitImpl(sys *System, m *Machine, a [6]uint64) int64 {
	if m.isLastThread() {
		panic(haltSignal{exitCode: int32(a[0] & 0xff)})
	}
	clearCTID(sys, m)
	m.unlink()
	panic(haltSignal{exitCode: int32(a[0] & 0xff)})
}

func sysExitGroupImpl(sys *System, m *Machine, a [6]uint64) int64 {
	panic(haltSignal{exitCode: int32(a[0] & 0xff)})
}

// --- misc ---

func sysUnameImpl(sys *System, m *Machine, a [6]uint64) int64 {
	if _, err := lookupBytes(sys, a[0], 390); err != nil {
		return -int64(efault)
	}
	out := make([]byte, 390)
	fields := [][]byte{[]byte("unknown"), []byte("blink16"), []byte("6.1.0"), []byte("#1"), []byte("x86_64")}
	for i, f := range fields {
		copy(out[i*65:], f)
	}
	_ = sys.vm.WriteBytes(a[0], out)
	return 0
}

func sysGetrlimitImpl(sys *System, m *Machine, a [6]uint64) int64 {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(int(a[0]), &rlim); err != nil {
		return negErrno(err)
	}
	if _, err := lookupBytes(sys, a[1], 16); err != nil {
		return -int64(efault)
	}
	out := make([]byte, 16)
	xlatRlimitToLinux(&rlim, out)
	_ = sys.vm.WriteBytes(a[1], out)
	return 0
}

// --- poll ---

func sysPollImpl(sys *System, m *Machine, a [6]uint64) int64 {
	addr, nfds, timeoutMs := a[0], int(a[1]), int64(int32(a[2]))
	src, err := lookupBytes(sys, addr, nfds*8)
	if err != nil {
		return -int64(efault)
	}
	buf := make([]byte, nfds*8)
	copy(buf, src)
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	forever := timeoutMs < 0
	for {
		ready := 0
		for i := 0; i < nfds; i++ {
			rec := buf[i*8:]
			fildes := int32(leUint32(rec[0:]))
			events := leUint16(rec[4:])
			fd := sys.fds.Get(fildes)
			if fd == nil {
				putLeUint16(rec[6:], 0x20) // POLLNVAL
				ready++
				continue
			}
			revents, err := fd.ops.Poll(fd.SystemFD(), events)
			if err != nil {
				putLeUint16(rec[6:], 0x08) // POLLERR
				ready++
				continue
			}
			putLeUint16(rec[6:], revents)
			if revents != 0 {
				ready++
			}
		}
		if ready > 0 || (!forever && !time.Now().Before(deadline)) {
			_ = sys.vm.WriteBytes(addr, buf)
			return int64(ready)
		}
		time.Sleep(pollingInterval)
	}
}

const pollingInterval = 50 * time.Millisecond

func putLeUint16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }

// --- sockets ---

func sysSocketImpl(sys *System, m *Machine, a [6]uint64) int64 {
	family, ok := xlatSocketFamily(int32(a[0]) & 0xff)
	if !ok {
		return -int64(einval)
	}
	typ, ok := xlatSocketType(int32(a[1]) & 0xff)
	if !ok {
		return -int64(einval)
	}
	hostFD, err := unix.Socket(family, typ, int(a[2]))
	if err != nil {
		return negErrno(err)
	}
	fd, _ := sys.fds.Allocate(-1, 0)
	fd.setSystemFD(int32(hostFD))
	fd.ops = hostFdOps{}
	return int64(fd.fildes)
}

func xlatSockaddrInToHost(b []byte) unix.Sockaddr {
	sa := &unix.SockaddrInet4{Port: int(b[2])<<8 | int(b[3])}
	copy(sa.Addr[:], b[4:8])
	return sa
}

func xlatSockaddrInToLinux(sa unix.Sockaddr, out []byte) {
	for i := range out {
		out[i] = 0
	}
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		out[0], out[1] = 2, 0 // AF_INET
		out[2], out[3] = byte(v.Port>>8), byte(v.Port)
		copy(out[4:8], v.Addr[:])
	}
}

func sysConnectImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	b, err := lookupBytes(sys, a[1], int(a[2]))
	if err != nil {
		return -int64(efault)
	}
	if err := unix.Connect(int(fd.SystemFD()), xlatSockaddrInToHost(b)); err != nil {
		return negErrno(err)
	}
	return 0
}

func sysBindImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	b, err := lookupBytes(sys, a[1], int(a[2]))
	if err != nil {
		return -int64(efault)
	}
	if err := unix.Bind(int(fd.SystemFD()), xlatSockaddrInToHost(b)); err != nil {
		return negErrno(err)
	}
	return 0
}

func doAccept(sys *System, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	hostFD, sa, err := unix.Accept(int(fd.SystemFD()))
	if err != nil {
		return negErrno(err)
	}
	nfd, _ := sys.fds.Allocate(-1, 0)
	nfd.setSystemFD(int32(hostFD))
	nfd.ops = hostFdOps{}
	if a[1] != 0 && a[2] != 0 {
		if _, err := lookupBytes(sys, a[1], 16); err == nil {
			out := make([]byte, 16)
			xlatSockaddrInToLinux(sa, out)
			_ = sys.vm.WriteBytes(a[1], out)
		}
	}
	return int64(nfd.fildes)
}

func sysAcceptImpl(sys *System, m *Machine, a [6]uint64) int64  { return doAccept(sys, a) }
func sysAccept4Impl(sys *System, m *Machine, a [6]uint64) int64 { return doAccept(sys, a) }

func doGetname(sys *System, a [6]uint64, peer bool) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	var sa unix.Sockaddr
	var err error
	if peer {
		sa, err = unix.Getpeername(int(fd.SystemFD()))
	} else {
		sa, err = unix.Getsockname(int(fd.SystemFD()))
	}
	if err != nil {
		return negErrno(err)
	}
	if _, lerr := lookupBytes(sys, a[1], 16); lerr != nil {
		return -int64(efault)
	}
	out := make([]byte, 16)
	xlatSockaddrInToLinux(sa, out)
	_ = sys.vm.WriteBytes(a[1], out)
	return 0
}

func sysGetsocknameImpl(sys *System, m *Machine, a [6]uint64) int64 { return doGetname(sys, a, false) }
func sysGetpeernameImpl(sys *System, m *Machine, a [6]uint64) int64 { return doGetname(sys, a, true) }

func sysIoctlImpl(sys *System, m *Machine, a [6]uint64) int64 {
	fd, e := fdOrBad(sys, a[0])
	if e != 0 {
		return e
	}
	req := a[1]
	var argLen int
	switch req {
	case linuxTIOCGWINSZ:
		argLen = 8
	case linuxTCGETS, linuxTCSETS, linuxTCSETSW, linuxTCSETSF:
		argLen = 36
	default:
		return -int64(einval)
	}
	src, err := lookupBytes(sys, a[2], argLen)
	if err != nil {
		return -int64(efault)
	}
	arg := make([]byte, argLen)
	copy(arg, src)
	if err := fd.ops.Ioctl(fd.SystemFD(), req, arg); err != nil {
		return negErrno(err)
	}
	if req == linuxTIOCGWINSZ || req == linuxTCGETS {
		_ = sys.vm.WriteBytes(a[2], arg)
	}
	return 0
}
