// guest_memory_test.go - physical addressing and the shadow permission
// bitmap.

package blink16

import "testing"

// TestPhysicalAddressFormula checks the real-mode (seg<<4)+offset
// formula directly for an ordinary segment:offset pair and for 0:0.
func TestPhysicalAddressFormula(t *testing.T) {
	if got := physicalAddress(0x1000, 0x0100); got != 0x10100 {
		t.Fatalf("expected 0x10100, got %#x", got)
	}
	if got := physicalAddress(0, 0); got != 0 {
		t.Fatalf("expected 0, got %#x", got)
	}
}

// TestShadowWriteWithoutPermissionFaults checks writeByte refuses a
// write to a shadow byte lacking the writable bit.
func TestShadowWriteWithoutPermissionFaults(t *testing.T) {
	sys := NewSystem()
	_, err := sys.readByte(nil, 0, 0)
	_ = err
	if werr := sys.writeByte(nil, 0xAA, 0x10, 0); werr == nil {
		t.Fatalf("expected a fault writing to an unmarked shadow byte")
	}
}

// TestShadowReadWriteRoundTrip checks a byte marked both readable and
// writable in the shadow can be written and then read back unchanged.
func TestShadowReadWriteRoundTrip(t *testing.T) {
	sys := NewSystem()
	sys.setShadowFlags(0x200, 2, shadowRead|shadowWrite)
	if err := sys.writeByte(nil, 0x42, 0x00, 0x20); err != nil {
		t.Fatalf("writeByte: %v", err)
	}
	got, err := sys.readByte(nil, 0x00, 0x20)
	if err != nil {
		t.Fatalf("readByte: %v", err)
	}
	if got != 0x42 {
		t.Fatalf("expected 0x42, got %#x", got)
	}
}

// TestShadowDisabledAllowsAnyAccess checks doShadowCheck=false (the
// boot-sector loader's configuration) bypasses the permission bitmap
// entirely.
func TestShadowDisabledAllowsAnyAccess(t *testing.T) {
	sys := NewSystem()
	sys.doShadowCheck = false
	if err := sys.writeByte(nil, 0x7F, 0x234, 0); err != nil {
		t.Fatalf("expected no fault with shadow-checking disabled, got %v", err)
	}
}

// TestRawReadWriteBypassesShadow checks rawRead/rawWrite never consult
// the shadow bitmap, matching their use by loaders to install an image
// before any shadow flags are set.
func TestRawReadWriteBypassesShadow(t *testing.T) {
	sys := NewSystem()
	sys.rawWrite(0x500, 0x99)
	if got := sys.rawRead(0x500); got != 0x99 {
		t.Fatalf("expected 0x99, got %#x", got)
	}
}

// TestSetShadowFlagsClampsToRAMSize checks a range extending past the 1
// MiB boundary is clamped rather than panicking.
func TestSetShadowFlagsClampsToRAMSize(t *testing.T) {
	sys := NewSystem()
	sys.setShadowFlags(ramSize-1, 10, shadowRead|shadowWrite)
}
