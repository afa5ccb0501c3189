package vm

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

func testPMM(t *testing.T) *mem.PMM {
	t.Helper()
	return mem.NewPMM([]mem.MemRegion{{Base: 0, Len: 16 * mem.PageSize, Kind: mem.RegionUsable}}, 1)
}

func TestNewSharedPinnedVMOPopulatesEveryPageUpFront(t *testing.T) {
	pmm := testPMM(t)
	v, err := NewSharedPinnedVMO(pmm, 4)
	if err != errno.OK {
		t.Fatalf("NewSharedPinnedVMO: %v", err)
	}
	if v.Kind() != VMOSharedPinned {
		t.Fatalf("Kind() = %v, want VMOSharedPinned", v.Kind())
	}
	// Every index is already cached, so PageAt never needs to populate
	// (and never touches the hhdm argument) for a shared-pinned VMO.
	for i := uint64(0); i < 4; i++ {
		if _, perr := v.PageAt(i, nil); perr != errno.OK {
			t.Fatalf("PageAt(%d) = %v, want OK", i, perr)
		}
	}
}

func TestNewSharedPinnedVMOFailsClosedOnExhaustion(t *testing.T) {
	pmm := mem.NewPMM([]mem.MemRegion{{Base: 0, Len: 2 * mem.PageSize, Kind: mem.RegionUsable}}, 1)
	if _, err := NewSharedPinnedVMO(pmm, 4); err == errno.OK {
		t.Fatalf("NewSharedPinnedVMO requesting more pages than exist succeeded")
	}
	// Every frame it did manage to allocate before running out must have
	// been released back to the allocator, not leaked.
	if got := pmm.FreeFrames(); got != 2 {
		t.Fatalf("FreeFrames() after a failed NewSharedPinnedVMO = %d, want 2 (fully rolled back)", got)
	}
}

func TestVMOUnrefReleasesFramesAtZero(t *testing.T) {
	pmm := testPMM(t)
	v, err := NewSharedPinnedVMO(pmm, 2)
	if err != errno.OK {
		t.Fatalf("NewSharedPinnedVMO: %v", err)
	}
	before := pmm.FreeFrames()
	v.Ref()
	v.Unref()
	if got := pmm.FreeFrames(); got != before {
		t.Fatalf("FreeFrames() after Unref with a live ref remaining = %d, want unchanged %d", got, before)
	}
	v.Unref()
	if got := pmm.FreeFrames(); got != before+2 {
		t.Fatalf("FreeFrames() after final Unref = %d, want %d", got, before+2)
	}
}

func TestVMOSetPageOverridesCachedEntry(t *testing.T) {
	pmm := testPMM(t)
	v := NewAnonymousVMO(pmm)
	v.SetPage(0, mem.PhysAddr(0x1000))
	pa, err := v.PageAt(0, nil)
	if err != errno.OK || pa != mem.PhysAddr(0x1000) {
		t.Fatalf("PageAt(0) = %#x, %v, want 0x1000, OK", pa, err)
	}
}
