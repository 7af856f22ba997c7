// linux_syscalls_test.go - the Linux x86-64 syscall dispatcher, exercised
// directly against System/Machine without the (out-of-scope) x86-64
// decoder.

package blink16

import (
	"testing"
	"time"
)

// TestSysMmapWriteThenMprotectReadOnly covers the mmap-anonymous,
// write-through-LookupAddress, then mprotect-to-PROT_READ path: the
// written bytes survive the protection change, the page key loses its
// writable bit, and an executable mprotect bumps the invalidation
// counter the out-of-scope JIT collaborator would consult.
func TestSysMmapWriteThenMprotectReadOnly(t *testing.T) {
	sys := NewSystem()
	m := sys.spawnMachine()

	anonFD := uint64(0xFFFFFFFFFFFFFFFF) // -1 truncated to a uint64 arg
	ret := sysMmapImpl(sys, m, [6]uint64{0, 4096, protRead | protWrite, mapPrivate | mapAnonymous, anonFD, 0})
	if ret <= 0 {
		t.Fatalf("mmap failed: %d", ret)
	}
	addr := uint64(ret)

	buf := sys.vm.LookupAddress(addr, 4)
	if buf == nil {
		t.Fatalf("LookupAddress returned nil for a freshly mmap'd page")
	}
	copy(buf, []byte{1, 2, 3, 4})

	if rc := sysMprotectImpl(sys, m, [6]uint64{addr, 4096, protRead, 0, 0, 0}); rc != 0 {
		t.Fatalf("mprotect(PROT_READ) failed: %d", rc)
	}
	key, ok := sys.vm.keyAt(addr)
	if !ok {
		t.Fatalf("expected the page to still be reserved after mprotect")
	}
	if key&pageRW != 0 {
		t.Fatalf("expected the writable bit cleared after mprotect(PROT_READ), key=%#x", key)
	}
	buf2 := sys.vm.LookupAddress(addr, 4)
	if buf2[0] != 1 || buf2[1] != 2 || buf2[2] != 3 || buf2[3] != 4 {
		t.Fatalf("expected the written bytes to survive mprotect, got %v", buf2[:4])
	}
	if sys.invalidations.Load() != 0 {
		t.Fatalf("a non-executable mprotect must not bump the invalidation counter")
	}

	if rc := sysMprotectImpl(sys, m, [6]uint64{addr, 4096, protExec, 0, 0, 0}); rc != 0 {
		t.Fatalf("mprotect(PROT_EXEC) failed: %d", rc)
	}
	if sys.invalidations.Load() != 1 {
		t.Fatalf("expected the invalidation counter to be 1 after an executable mprotect, got %d", sys.invalidations.Load())
	}

	if rc := sysMunmapImpl(sys, m, [6]uint64{addr, 4096, 0, 0, 0, 0}); rc != 0 {
		t.Fatalf("munmap failed: %d", rc)
	}
	if sys.vm.Reserved(addr, 4096) {
		t.Fatalf("expected the page to be unreserved after munmap")
	}
}

// TestSysMmapFixedHonorsRequestedAddress checks MAP_FIXED reserves
// exactly the page-aligned address the caller asked for, rather than
// consulting FindVirtual.
func TestSysMmapFixedHonorsRequestedAddress(t *testing.T) {
	sys := NewSystem()
	m := sys.spawnMachine()
	const want = 0x70000
	anonFD := uint64(0xFFFFFFFFFFFFFFFF)
	ret := sysMmapImpl(sys, m, [6]uint64{want, 4096, protRead | protWrite, mapPrivate | mapAnonymous | mapFixed, anonFD, 0})
	if ret != want {
		t.Fatalf("expected MAP_FIXED to honor address %#x, got %#x", want, ret)
	}
}

// TestSysBrkGrowsAndReportsCurrent checks brk(0) reports the current
// break and a nonzero request grows it, matching the brk(2) contract
// sysBrkImpl implements over VmMap.
func TestSysBrkGrowsAndReportsCurrent(t *testing.T) {
	sys := NewSystem()
	m := sys.spawnMachine()
	sys.vm.InitBrk(minBrk)

	cur := sysBrkImpl(sys, m, [6]uint64{0, 0, 0, 0, 0, 0})
	if cur != minBrk {
		t.Fatalf("expected brk(0) to report %#x, got %#x", minBrk, cur)
	}
	grown := sysBrkImpl(sys, m, [6]uint64{minBrk + 8192, 0, 0, 0, 0, 0})
	if grown != minBrk+8192 {
		t.Fatalf("expected brk growth to %#x, got %#x", minBrk+8192, grown)
	}
}

// TestSysCloneRejectsBadFlags checks clone's mandatory/optional flag
// validation: a missing mandatory bit, or any bit outside the
// mandatory|optional set, is rejected with -EINVAL rather than spawning
// a thread.
func TestSysCloneRejectsBadFlags(t *testing.T) {
	sys := NewSystem()
	m := sys.spawnMachine()

	missingMandatory := uint64(cloneVM | cloneFS) // missing cloneThread etc.
	if rc := sysCloneImpl(sys, m, [6]uint64{missingMandatory, 0, 0, 0, 0, 0}); rc != -int64(einval) {
		t.Fatalf("expected -EINVAL for a missing mandatory flag, got %d", rc)
	}

	const mandatory = cloneThread | cloneVM | cloneFS | cloneFiles | cloneSighand
	disallowedExtra := uint64(mandatory | 0x40000000) // a bit outside mandatory|optional
	if rc := sysCloneImpl(sys, m, [6]uint64{disallowedExtra, 0, 0, 0, 0, 0}); rc != -int64(einval) {
		t.Fatalf("expected -EINVAL for a disallowed extra flag, got %d", rc)
	}
}

// TestCloneExitCtidFutexHandoff is the clone+exit+ctid scenario: a child
// thread's CHILD_CLEARTID address holds the child's own tid (as if
// CLONE_CHILD_SETTID had already run); the parent futex-WAITs on that
// address expecting the child's tid. Once the child exits, sysExitImpl's
// cleanup zeroes the word and WAKEs the waiter, which must observe 0
// (success) and find the word cleared to 0.
func TestCloneExitCtidFutexHandoff(t *testing.T) {
	sys := NewSystem()
	_ = sys.spawnMachine() // the parent thread, kept alive so child is not "last"
	child := sys.spawnMachine()

	const ctidAddr = 0x80000
	sys.vm.Reserve(ctidAddr, vmPageSize, pageUser|pageRW, -1, false)
	child.clearChildTID = true
	child.ctidAddr = ctidAddr

	b := sys.vm.LookupAddress(ctidAddr, 4)
	putPid32(b, child.tid)

	result := make(chan int64, 1)
	go func() {
		result <- sys.futex.wait(ctidAddr, child.tid, child.tid, 0, false)
	}()
	waitForWaiter(t, sys.futex, ctidAddr)

	func() {
		defer func() { recover() }() // sysExitImpl always panics a haltSignal
		sysExitImpl(sys, child, [6]uint64{0, 0, 0, 0, 0, 0})
	}()

	select {
	case got := <-result:
		if got != 0 {
			t.Fatalf("expected the parent's futex wait to return 0, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("parent's futex wait never returned after the child exited")
	}

	after := sys.vm.LookupAddress(ctidAddr, 4)
	if after[0] != 0 || after[1] != 0 || after[2] != 0 || after[3] != 0 {
		t.Fatalf("expected the ctid word to be cleared to 0, got %v", after[:4])
	}
	if sys.machineByTID(child.tid) != nil {
		t.Fatalf("expected the child Machine to be unlinked after exit")
	}
}

// TestSysFutexRejectsMisalignedAddr checks futex(2)'s alignment
// precondition: an address that isn't 4-byte aligned is EFAULT, never
// reaching the pool.
func TestSysFutexRejectsMisalignedAddr(t *testing.T) {
	sys := NewSystem()
	m := sys.spawnMachine()
	rc := sysFutexImpl(sys, m, [6]uint64{0x1001, futexWait, 0, 0, 0, 0})
	if rc != -int64(efault) {
		t.Fatalf("expected -EFAULT for a misaligned futex address, got %d", rc)
	}
}

// TestDispatchUnknownSyscallReturnsENOSYS checks Dispatch's fallback for
// a syscall number with no registered handler, and that the result also
// lands back in rax for the (out-of-scope) x86-64 interpreter to read.
func TestDispatchUnknownSyscallReturnsENOSYS(t *testing.T) {
	sys := NewSystem()
	m := sys.spawnMachine()
	m.setRAX(511) // unassigned slot in the 512-entry table
	got := sys.Dispatch(m)
	if got != -int64(enosys) {
		t.Fatalf("expected -ENOSYS, got %d", got)
	}
	if int64(m.rax()) != got {
		t.Fatalf("expected rax to carry Dispatch's return value, got %#x", m.rax())
	}
}
