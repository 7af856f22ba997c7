// vmmap.go - the Linux-ABI guest virtual address space (spec §3 VmMap,
// §4.6 "VmMap. Operations: Reserve/Free/Protect/FindVirtual").
//
// Unlike the 8086 core's fixed 1 MiB buffer, the x86-64 guest's address
// space is sparse, so each reserved page owns its own backing array.
// This is the "implementation detail left to the implementer" the spec
// calls out; a flat page map stands in for the "4-level page-table
// tree" it suggests as customary, which is overkill for a core that
// never itself walks hardware page tables.

package blink16

import (
	"sort"
	"sync"
)

const vmPageSize = 4096
const vmPageShift = 12

// pageKey bits, named after the Prot2Page mapping in spec §4.4.
const (
	pageUser byte = 1 << iota
	pageRW
	pageXD // execute-disable; cleared (executable) by default, like NX inverted
)

type vmPage struct {
	key     byte
	fd      int32 // backing host fd, -1 for anonymous
	shared  bool
	backing *[vmPageSize]byte
}

// VmMap is owned exclusively by the System (spec §3 Ownership).
type VmMap struct {
	mu    sync.Mutex
	pages map[uint64]*vmPage // key: page number (addr >> vmPageShift)
	brk   uint64
	brk0  uint64
}

func newVmMap() *VmMap {
	return &VmMap{pages: make(map[uint64]*vmPage)}
}

// InitBrk records the initial break for a freshly loaded guest process;
// brk(2) never lets the break fall below this point.
func (v *VmMap) InitBrk(addr uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.brk, v.brk0 = addr, addr
}

// Brk returns the current break under the mmap lock.
func (v *VmMap) Brk() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.brk
}

// SetBrk grows or shrinks the break to addr (already page-rounded by the
// caller), reserving or freeing pages as needed, and returns the new
// break. addr below the recorded minimum is clamped up to it, matching
// brk(2)'s "never below the initial break" behavior.
func (v *VmMap) SetBrk(addr uint64) uint64 {
	v.mu.Lock()
	if addr < v.brk0 {
		addr = v.brk0
	}
	old, oldPage := v.brk, (v.brk+vmPageSize-1)&^(vmPageSize-1)
	newPage := (addr + vmPageSize - 1) &^ (vmPageSize - 1)
	v.brk = addr
	v.mu.Unlock()

	switch {
	case newPage > oldPage:
		v.Reserve(oldPage, newPage-oldPage, pageUser|pageRW, -1, false)
	case newPage < oldPage:
		v.Free(newPage, oldPage-newPage)
	}
	_ = old
	return addr
}

// Reserve installs size bytes starting at virt with the given
// permission key, backing fd (-1 for anonymous) and shared flag. virt
// and size must already be page-aligned by the caller (mmap/brk do
// this). Matches spec §4.4 mmap's "Reserve pages with the translated
// key and associate the host fd and share flag."
func (v *VmMap) Reserve(virt, size uint64, key byte, fd int32, shared bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for a := virt; a < virt+size; a += vmPageSize {
		v.pages[a>>vmPageShift] = &vmPage{key: key, fd: fd, shared: shared, backing: new([vmPageSize]byte)}
	}
}

// Free removes the reservation for [virt, virt+size). It is not an
// error to free unreserved pages (munmap is idempotent on holes in the
// same way Linux's is for the ranges it does own).
func (v *VmMap) Free(virt, size uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for a := virt; a < virt+size; a += vmPageSize {
		delete(v.pages, a>>vmPageShift)
	}
}

// Protect updates the permission key for every page in [virt,
// virt+size); returns ErrBadRange if any page in the range is
// unreserved (spec §4.6's Reserve/Free/Protect/FindVirtual contract
// implies Protect only applies to already-reserved ranges).
func (v *VmMap) Protect(virt, size uint64, key byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for a := virt; a < virt+size; a += vmPageSize {
		p, ok := v.pages[a>>vmPageShift]
		if !ok {
			return ErrBadRange
		}
		p.key = key
	}
	return nil
}

// FindVirtual returns an address at or above hint with size contiguous
// free pages (spec §3 VmMap invariant).
func (v *VmMap) FindVirtual(hint, size uint64) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	need := (size + vmPageSize - 1) / vmPageSize
	addr := hint &^ (vmPageSize - 1)
	if addr == 0 {
		addr = vmPageSize // never hand out the zero page
	}
	for {
		free := true
		for i := uint64(0); i < need; i++ {
			if _, ok := v.pages[(addr>>vmPageShift)+i]; ok {
				free = false
				addr += (i + 1) * vmPageSize
				break
			}
		}
		if free {
			return addr
		}
	}
}

// Reserved reports whether every page in [virt, virt+size) has an
// entry, the §3 invariant definition of "reserved".
func (v *VmMap) Reserved(virt, size uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for a := virt; a < virt+size; a += vmPageSize {
		if _, ok := v.pages[a>>vmPageShift]; !ok {
			return false
		}
	}
	return true
}

func (v *VmMap) keyAt(addr uint64) (byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.pages[addr>>vmPageShift]
	if !ok {
		return 0, false
	}
	return p.key, true
}

// LookupAddress maps a guest linear address plus length onto a host
// byte slice, per spec §4.4 "Every pointer argument is resolved by
// LookupAddress... null ⇒ EFAULT." The slice may span more than one
// backing page; pages must be contiguous in the map (true for anything
// returned by mmap/brk).
func (v *VmMap) LookupAddress(addr uint64, length int) []byte {
	if length <= 0 {
		length = 1
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	firstPage := addr >> vmPageShift
	lastPage := (addr + uint64(length) - 1) >> vmPageShift
	if firstPage == lastPage {
		p, ok := v.pages[firstPage]
		if !ok {
			return nil
		}
		off := addr & (vmPageSize - 1)
		return p.backing[off : off+uint64(length)]
	}
	// Rare cross-page access (a structure straddling a page boundary):
	// stitch a contiguous copy. The copy is detached from guest memory,
	// so writes into it are not seen by the guest; write-direction
	// callers go through WriteBytes instead.
	out := make([]byte, 0, length)
	for pn := firstPage; pn <= lastPage; pn++ {
		p, ok := v.pages[pn]
		if !ok {
			return nil
		}
		start := uint64(0)
		if pn == firstPage {
			start = addr & (vmPageSize - 1)
		}
		end := uint64(vmPageSize)
		out = append(out, p.backing[start:end]...)
	}
	if len(out) > length {
		out = out[:length]
	}
	return out
}

// WriteBytes copies data into guest memory starting at addr, walking
// the destination one page at a time. Unlike a slice obtained from
// LookupAddress, which becomes a detached copy once the access crosses
// a page boundary, this reaches every backing page the write touches —
// callers that hand host-produced results back to the guest (read(2),
// stat, getdents, ...) must commit through this rather than writing
// into a LookupAddress slice that might not alias guest memory at all.
func (v *VmMap) WriteBytes(addr uint64, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	remaining := data
	cur := addr
	for len(remaining) > 0 {
		p, ok := v.pages[cur>>vmPageShift]
		if !ok {
			return ErrBadRange
		}
		off := cur & (vmPageSize - 1)
		n := uint64(vmPageSize) - off
		if n > uint64(len(remaining)) {
			n = uint64(len(remaining))
		}
		copy(p.backing[off:off+n], remaining[:n])
		remaining = remaining[n:]
		cur += n
	}
	return nil
}

// sortedPageNumbers is a small helper kept for debugging/tests: it
// lists the currently reserved page numbers in order.
func (v *VmMap) sortedPageNumbers() []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]uint64, 0, len(v.pages))
	for k := range v.pages {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
