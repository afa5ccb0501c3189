package mem

import "testing"

func TestHHDMRoundTripsPhysToVirt(t *testing.T) {
	h := NewHHDM(0xFFFF_8000_0000_0000)
	p := PhysAddr(0x1234_5000)
	v := h.PhysToVirt(p)
	if got := h.VirtToPhys(v, true); got != p {
		t.Fatalf("VirtToPhys(PhysToVirt(%#x)) = %#x, want %#x", p, got, p)
	}
}

func TestHHDMDefaultsBaseWhenZero(t *testing.T) {
	h := NewHHDM(0)
	if h.base != HHDMBase {
		t.Fatalf("NewHHDM(0).base = %#x, want default %#x", h.base, HHDMBase)
	}
}

func TestHHDMInRange(t *testing.T) {
	h := NewHHDM(HHDMBase)
	if !h.InRange(HHDMBase) {
		t.Fatalf("InRange(base) = false, want true")
	}
	if h.InRange(HHDMBase - 1) {
		t.Fatalf("InRange(base-1) = true, want false")
	}
}

func TestHHDMVirtToPhysBelowRangeReturnsZeroOutsideDebug(t *testing.T) {
	h := NewHHDM(HHDMBase)
	if got := h.VirtToPhys(HHDMBase-1, false); got != 0 {
		t.Fatalf("VirtToPhys below range (non-debug) = %#x, want 0", got)
	}
}

func TestHHDMVirtToPhysBelowRangePanicsInDebug(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("VirtToPhys below range (debug) did not panic")
		}
	}()
	h := NewHHDM(HHDMBase)
	h.VirtToPhys(HHDMBase-1, true)
}
