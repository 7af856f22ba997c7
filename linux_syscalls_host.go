// linux_syscalls_host.go - host-side plumbing for the Linux syscall
// layer, wired to golang.org/x/sys/unix for the structure layouts
// (Stat_t, Termios, Winsize, Rlimit...) that the teacher's own go.mod
// already depends on indirectly, and golang.org/x/term for terminal
// mode control (the teacher's direct dependency, used there for its
// GUI frontend's raw-mode console; used here for the same conceptual
// job against a guest's controlling terminal).

package blink16

import (
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func (hostFdOps) Close(hostFd int32) error {
	return unix.Close(int(hostFd))
}

func (hostFdOps) Readv(hostFd int32, bufs [][]byte) (int, error) {
	total := 0
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		n, err := unix.Read(int(hostFd), b)
		total += n
		if err != nil {
			return total, err
		}
		if n < len(b) {
			break
		}
	}
	return total, nil
}

func (hostFdOps) Writev(hostFd int32, bufs [][]byte) (int, error) {
	total := 0
	for _, b := range bufs {
		n, err := unix.Write(int(hostFd), b)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (hostFdOps) Ioctl(hostFd int32, req uint64, arg []byte) error {
	switch req {
	case linuxTIOCGWINSZ:
		ws, err := unix.IoctlGetWinsize(int(hostFd), unix.TIOCGWINSZ)
		if err != nil {
			return err
		}
		xlatWinsizeToLinux(ws, arg)
	case linuxTCGETS:
		t, err := unix.IoctlGetTermios(int(hostFd), unix.TCGETS)
		if err != nil {
			return err
		}
		xlatTermiosToLinux(t, arg)
	case linuxTCSETS, linuxTCSETSW, linuxTCSETSF:
		t := xlatLinuxToTermios(arg)
		return unix.IoctlSetTermios(int(hostFd), unix.TCSETS, t)
	default:
		return unix.EINVAL
	}
	return nil
}

func (hostFdOps) Poll(hostFd int32, events uint16) (uint16, error) {
	pfd := []unix.PollFd{{Fd: hostFd, Events: int16(events)}}
	_, err := unix.Poll(pfd, 0)
	if err != nil {
		return 0, err
	}
	return uint16(pfd[0].Revents), nil
}

// ttyFdOps is the second fdOps variant named in spec §9 ("at least two
// variants (host fd, terminal multiplexer)"): a descriptor whose
// controlling side is put into raw mode via golang.org/x/term rather
// than used as a bare fd, matching the DOS ioctl/isatty (§4.5, AH=44h)
// and TIOCGWINSZ/TCGETS/TCSETS (§4.4) contracts for a guest attached to
// a real terminal.
type ttyFdOps struct {
	restoreState *term.State
}

func (t *ttyFdOps) Close(hostFd int32) error {
	if t.restoreState != nil {
		_ = term.Restore(int(hostFd), t.restoreState)
	}
	return unix.Close(int(hostFd))
}

func (ttyFdOps) Readv(hostFd int32, bufs [][]byte) (int, error) {
	return hostFdOps{}.Readv(hostFd, bufs)
}

func (ttyFdOps) Writev(hostFd int32, bufs [][]byte) (int, error) {
	return hostFdOps{}.Writev(hostFd, bufs)
}

func (t *ttyFdOps) Ioctl(hostFd int32, req uint64, arg []byte) error {
	switch req {
	case linuxTIOCGWINSZ:
		w, h, err := term.GetSize(int(hostFd))
		if err != nil {
			return err
		}
		xlatWinsizeToLinux(&unix.Winsize{Col: uint16(w), Row: uint16(h)}, arg)
		return nil
	default:
		return hostFdOps{}.Ioctl(hostFd, req, arg)
	}
}

func (t *ttyFdOps) Poll(hostFd int32, events uint16) (uint16, error) {
	return hostFdOps{}.Poll(hostFd, events)
}

// makeRawIfTerminal puts fd into raw mode if it is attached to a real
// terminal, returning the ops value the Fd should use. DOS int 21h/44h
// (ioctl isatty, §4.5) and the Linux ioctl TCSETS path (§4.4) both rely
// on being able to tell terminal fds apart from plain files.
func makeRawIfTerminal(hostFd int32) fdOps {
	if !term.IsTerminal(int(hostFd)) {
		return hostFdOps{}
	}
	state, err := term.MakeRaw(int(hostFd))
	if err != nil {
		return hostFdOps{}
	}
	return &ttyFdOps{restoreState: state}
}
