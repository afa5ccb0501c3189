package mem

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
)

func TestNewPMMCountsOnlyUsableRegionsAsFree(t *testing.T) {
	regions := []MemRegion{
		{Base: 0, Len: 4 * PageSize, Kind: RegionUsable},
		{Base: 4 * PageSize, Len: 2 * PageSize, Kind: RegionReserved},
	}
	p := NewPMM(regions, 1)
	if got := p.FreeFrames(); got != 4 {
		t.Fatalf("FreeFrames() = %d, want 4", got)
	}
	if got := p.State(0); got != FrameFree {
		t.Fatalf("State(usable frame) = %v, want FrameFree", got)
	}
	if got := p.State(4 * PageSize); got != FrameKernel {
		t.Fatalf("State(reserved frame) = %v, want FrameKernel", got)
	}
}

func TestPMMAllocFreeRoundTrip(t *testing.T) {
	regions := []MemRegion{{Base: 0, Len: 4 * PageSize, Kind: RegionUsable}}
	p := NewPMM(regions, 1)

	before := p.FreeFrames()
	pa, err := p.Alloc(OwnerKernelHeap, 0)
	if err != errno.OK {
		t.Fatalf("Alloc: %v", err)
	}
	if got := p.State(pa); got != FrameOwned {
		t.Fatalf("State(allocated) = %v, want FrameOwned", got)
	}
	if got := p.FreeFrames(); got != before-1 {
		t.Fatalf("FreeFrames() after Alloc = %d, want %d", got, before-1)
	}

	if err := p.Free(pa, OwnerKernelHeap); err != errno.OK {
		t.Fatalf("Free: %v", err)
	}
	if got := p.FreeFrames(); got != before {
		t.Fatalf("FreeFrames() after Free = %d, want %d", got, before)
	}
}

func TestPMMFreeRejectsWrongOwner(t *testing.T) {
	regions := []MemRegion{{Base: 0, Len: PageSize, Kind: RegionUsable}}
	p := NewPMM(regions, 1)
	pa, _ := p.Alloc(OwnerKernelHeap, 0)
	if err := p.Free(pa, OwnerAnonVMA); err == errno.OK {
		t.Fatalf("Free with wrong owner succeeded, want PermissionDenied")
	}
}

func TestPMMFreeRejectsDoubleFree(t *testing.T) {
	regions := []MemRegion{{Base: 0, Len: PageSize, Kind: RegionUsable}}
	p := NewPMM(regions, 1)
	pa, _ := p.Alloc(OwnerKernelHeap, 0)
	if err := p.Free(pa, OwnerKernelHeap); err != errno.OK {
		t.Fatalf("first Free: %v", err)
	}
	if err := p.Free(pa, OwnerKernelHeap); err == errno.OK {
		t.Fatalf("second Free succeeded, want AlreadyExists")
	}
}

func TestPMMRefcountKeepsFrameLiveUntilLastFree(t *testing.T) {
	regions := []MemRegion{{Base: 0, Len: PageSize, Kind: RegionUsable}}
	p := NewPMM(regions, 1)
	pa, _ := p.Alloc(OwnerKernelHeap, 0)
	p.Ref(pa)
	if got := p.RefCount(pa); got != 2 {
		t.Fatalf("RefCount after Ref = %d, want 2", got)
	}
	p.Free(pa, OwnerKernelHeap)
	if got := p.State(pa); got != FrameOwned {
		t.Fatalf("State after first Free of a double-ref'd frame = %v, want FrameOwned", got)
	}
	p.Free(pa, OwnerKernelHeap)
	if got := p.State(pa); got != FrameFree {
		t.Fatalf("State after second Free = %v, want FrameFree", got)
	}
}
