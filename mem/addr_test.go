package mem

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
)

func TestVirtAddrCanonicalizesBit47(t *testing.T) {
	cases := []struct {
		raw  uint64
		want uint64
	}{
		{0x0000_0000_1000, 0x0000_0000_1000},
		{0x0000_7FFF_FFFF_FFFF, 0x0000_7FFF_FFFF_FFFF},
		{0x0000_8000_0000_0000, 0xFFFF_8000_0000_0000}, // bit 47 set, sign-extend
		{0xFFFF_8000_0000_0000, 0xFFFF_8000_0000_0000}, // already canonical
	}
	for _, c := range cases {
		got := NewVirtAddr(c.raw)
		if uint64(got) != c.want {
			t.Errorf("NewVirtAddr(%#x) = %#x, want %#x", c.raw, uint64(got), c.want)
		}
	}
}

func TestCheckCanonicalRejectsNonCanonical(t *testing.T) {
	// Sets bit 47 without sign-extending the high bits: not canonical.
	raw := uint64(0x0000_8000_0000_1000) | (uint64(1) << 48)
	if _, err := CheckCanonical(raw); err == errno.OK {
		t.Fatalf("expected non-canonical address to be rejected")
	}
}

func TestCheckCanonicalAcceptsCanonical(t *testing.T) {
	got, err := CheckCanonical(0x0000_7FFF_FFFF_F000)
	if err != errno.OK {
		t.Fatalf("expected canonical address to be accepted, got err %v", err)
	}
	if uint64(got) != 0x0000_7FFF_FFFF_F000 {
		t.Fatalf("CheckCanonical altered an already-canonical address: got %#x", uint64(got))
	}
}

func TestVirtAddrAlignment(t *testing.T) {
	v := VirtAddr(0x1000 + 0x123)
	if got := v.AlignDown(); uint64(got) != 0x1000 {
		t.Errorf("AlignDown() = %#x, want %#x", uint64(got), 0x1000)
	}
	if got := v.AlignUp(); uint64(got) != 0x2000 {
		t.Errorf("AlignUp() = %#x, want %#x", uint64(got), 0x2000)
	}
	if got := v.PageOffset(); got != 0x123 {
		t.Errorf("PageOffset() = %#x, want %#x", got, 0x123)
	}
}

func TestPhysAddrMaskedAndAlignment(t *testing.T) {
	p := PhysAddr(0xFFFF_FFFF_FFFF_FFFF)
	if p.Masked() != physAddrMask {
		t.Errorf("Masked() = %#x, want %#x", p.Masked(), physAddrMask)
	}
	aligned := PhysAddr(0x1800)
	if aligned.AlignDown() != 0x1000 {
		t.Errorf("AlignDown() = %#x, want 0x1000", aligned.AlignDown())
	}
	if aligned.AlignUp() != 0x2000 {
		t.Errorf("AlignUp() = %#x, want 0x2000", aligned.AlignUp())
	}
	if aligned.Offset() != 0x800 {
		t.Errorf("Offset() = %#x, want 0x800", aligned.Offset())
	}
}

func TestIsUserRange(t *testing.T) {
	const userTop = uint64(1) << 47
	if !IsUserRange(VirtAddr(userTop-0x1000), 0x1000) {
		t.Errorf("expected range ending exactly at userTop to be in-range")
	}
	if IsUserRange(VirtAddr(userTop-0x1000), 0x2000) {
		t.Errorf("expected range crossing userTop to be rejected")
	}
	if !IsUserRange(VirtAddr(0), 0) {
		t.Errorf("expected zero-length range to be trivially in-range")
	}
}
