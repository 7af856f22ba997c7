// vmmap_test.go - Reserve/Free/Protect/FindVirtual and brk bookkeeping.

package blink16

import "testing"

// TestVmMapReserveAndReserved checks that Reserve makes every page in the
// range report as reserved, and Free removes exactly that range.
func TestVmMapReserveAndReserved(t *testing.T) {
	v := newVmMap()
	v.Reserve(0x10000, 3*vmPageSize, pageUser|pageRW, -1, false)
	if !v.Reserved(0x10000, 3*vmPageSize) {
		t.Fatalf("expected the whole reserved range to report as reserved")
	}
	v.Free(0x10000, vmPageSize)
	if v.Reserved(0x10000, 3*vmPageSize) {
		t.Fatalf("expected Reserved to be false once a page in the range is freed")
	}
	if !v.Reserved(0x11000, 2*vmPageSize) {
		t.Fatalf("expected the remaining two pages to still be reserved")
	}
}

// TestVmMapProtectUnreservedRange checks Protect rejects a range with any
// unreserved page.
func TestVmMapProtectUnreservedRange(t *testing.T) {
	v := newVmMap()
	v.Reserve(0x20000, vmPageSize, pageUser|pageRW, -1, false)
	if err := v.Protect(0x20000, 2*vmPageSize, pageUser); err != ErrBadRange {
		t.Fatalf("expected ErrBadRange, got %v", err)
	}
}

// TestVmMapProtectUpdatesKey checks Protect changes the stored key for
// every page in range.
func TestVmMapProtectUpdatesKey(t *testing.T) {
	v := newVmMap()
	v.Reserve(0x30000, vmPageSize, pageUser|pageRW, -1, false)
	if err := v.Protect(0x30000, vmPageSize, pageUser); err != nil {
		t.Fatalf("Protect: %v", err)
	}
	key, ok := v.keyAt(0x30000)
	if !ok || key != pageUser {
		t.Fatalf("expected key=%#x, got %#x (ok=%v)", pageUser, key, ok)
	}
}

// TestVmMapFindVirtualSkipsReserved checks FindVirtual returns the hint
// address when free, and the next free address when the hint is taken.
func TestVmMapFindVirtualSkipsReserved(t *testing.T) {
	v := newVmMap()
	addr := v.FindVirtual(0x40000, vmPageSize)
	if addr != 0x40000 {
		t.Fatalf("expected FindVirtual to return the free hint, got %#x", addr)
	}
	v.Reserve(addr, vmPageSize, pageUser|pageRW, -1, false)
	next := v.FindVirtual(addr, vmPageSize)
	if next == addr {
		t.Fatalf("expected FindVirtual to skip the now-reserved hint")
	}
	if v.Reserved(next, vmPageSize) {
		t.Fatalf("FindVirtual must return free, not reserved, space")
	}
}

// TestVmMapBrkGrowAndShrink checks SetBrk reserves new pages on growth and
// frees pages on shrink, and never lets the break fall below the value
// passed to InitBrk.
func TestVmMapBrkGrowAndShrink(t *testing.T) {
	v := newVmMap()
	v.InitBrk(0x50000)
	if got := v.Brk(); got != 0x50000 {
		t.Fatalf("expected initial brk 0x50000, got %#x", got)
	}

	grown := v.SetBrk(0x50000 + vmPageSize + 10)
	if grown != 0x50000+vmPageSize+10 {
		t.Fatalf("unexpected grown brk: %#x", grown)
	}
	if !v.Reserved(0x50000, vmPageSize) {
		t.Fatalf("expected the newly grown page to be reserved")
	}

	shrunk := v.SetBrk(0x50000)
	if shrunk != 0x50000 {
		t.Fatalf("unexpected shrunk brk: %#x", shrunk)
	}
	if v.Reserved(0x50000, vmPageSize) {
		t.Fatalf("expected the page to be freed after shrinking back below it")
	}

	clamped := v.SetBrk(0x40000) // below the initial break
	if clamped != 0x50000 {
		t.Fatalf("expected SetBrk to clamp at the initial break, got %#x", clamped)
	}
}

// TestVmMapLookupAddressCrossPage checks a lookup spanning two reserved
// pages stitches a contiguous copy rather than failing.
func TestVmMapLookupAddressCrossPage(t *testing.T) {
	v := newVmMap()
	v.Reserve(0x60000, 2*vmPageSize, pageUser|pageRW, -1, false)
	straddle := uint64(0x60000 + vmPageSize - 2)
	b := v.LookupAddress(straddle, 4)
	if len(b) != 4 {
		t.Fatalf("expected a 4-byte cross-page slice, got %d bytes", len(b))
	}
}
