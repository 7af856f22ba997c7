// fdtable.go - guest file-descriptor table (spec §3 Fd/FdTable, §4.6).
//
// Grounded on original_source/blink/syscall.c's AddStdFd/GetAndLockFd/
// GetFildes/doubling-growth fd array, and on syscall-dos.c's
// getDescriptor (same doubling-growth idea, smaller scale). Expressed
// in the teacher's mutex-guarded-table-plus-entry-lock idiom.

package blink16

import (
	"sync"
	"sync/atomic"
)

// fdOps is the FdCb capability set from spec §3 ("a vtable (FdCb) of
// operations {close, readv, writev, ioctl, poll}"), modeled as an
// interface per the §9 design note rather than raw function pointers.
// hostFdOps and ttyFdOps are its two variants.
type fdOps interface {
	Close(hostFd int32) error
	Readv(hostFd int32, bufs [][]byte) (int, error)
	Writev(hostFd int32, bufs [][]byte) (int, error)
	Ioctl(hostFd int32, req uint64, arg []byte) error
	Poll(hostFd int32, events uint16) (uint16, error)
}

// Fd is one guest-visible descriptor slot (spec §3 Fd).
type Fd struct {
	mu sync.Mutex

	fildes   int32
	systemfd atomic.Int32 // -1 until the underlying host fd is installed
	oflags   uint32
	cloexec  bool
	ops      fdOps

	dir *dirStream // lazily opened by getdents, spec §4.4
}

func (f *Fd) SystemFD() int32    { return f.systemfd.Load() }
func (f *Fd) setSystemFD(v int32) { f.systemfd.Store(v) } // release

// FdTable owns the set of Fds for one System (spec §3 Ownership).
type FdTable struct {
	mu      sync.Mutex
	entries map[int32]*Fd
	next    int32
}

func newFdTable() *FdTable {
	t := &FdTable{entries: make(map[int32]*Fd)}
	// Standard streams, matching syscall-dos.c's fileDescriptors[]
	// preload of stdin/stdout/stderr, generalized for the Linux side.
	for fildes := int32(0); fildes < 3; fildes++ {
		fd := &Fd{fildes: fildes, ops: hostFdOps{}}
		fd.setSystemFD(fildes)
		t.entries[fildes] = fd
	}
	t.next = 3
	return t
}

// Allocate returns a new Fd at the lowest unused fildes, unless
// preferred >= 0 is given (Dup2/Dup3), per spec §4.6.
func (t *FdTable) Allocate(preferred int32, oflags uint32) (*Fd, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fildes int32
	if preferred >= 0 {
		fildes = preferred
		if old, ok := t.entries[fildes]; ok {
			old.mu.Lock()
			_ = old.ops.Close(old.SystemFD())
			old.mu.Unlock()
			delete(t.entries, fildes)
		}
	} else {
		fildes = t.lowestFreeLocked()
	}
	fd := &Fd{fildes: fildes, oflags: oflags, ops: hostFdOps{}}
	fd.setSystemFD(-1)
	t.entries[fildes] = fd
	if fildes >= t.next {
		t.next = fildes + 1
	}
	return fd, nil
}

func (t *FdTable) lowestFreeLocked() int32 {
	for fildes := int32(0); ; fildes++ {
		if _, ok := t.entries[fildes]; !ok {
			return fildes
		}
	}
}

// Free runs the vtable's close and returns the slot to the free list
// (spec §3 Fd lifecycle: "close always runs the vtable's close and
// then returns the slot to the free list").
func (t *FdTable) Free(fildes int32) error {
	t.mu.Lock()
	fd, ok := t.entries[fildes]
	if !ok {
		t.mu.Unlock()
		return ErrFdExhausted
	}
	delete(t.entries, fildes)
	t.mu.Unlock()

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.SystemFD() < 0 {
		return nil
	}
	return fd.ops.Close(fd.SystemFD())
}

func (t *FdTable) Get(fildes int32) *Fd {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[fildes]
}

func (t *FdTable) Lock()   { t.mu.Lock() }
func (t *FdTable) Unlock() { t.mu.Unlock() }

type dirStream struct {
	hostFd int32
	buf    []byte
	off    int
}

// hostFdOps is the plain-host-fd variant of fdOps.
type hostFdOps struct{}
