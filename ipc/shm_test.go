package ipc

import (
	"testing"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

func TestNewSharedMemoryAllocatesRequestedPages(t *testing.T) {
	pmm := mem.NewPMM([]mem.MemRegion{{Base: 0, Len: 8 * mem.PageSize, Kind: mem.RegionUsable}}, 1)
	before := pmm.FreeFrames()

	shm, err := NewSharedMemory(pmm, 3)
	if err != errno.OK {
		t.Fatalf("NewSharedMemory: %v", err)
	}
	if shm.Pages() != 3 {
		t.Fatalf("Pages() = %d, want 3", shm.Pages())
	}
	if got := pmm.FreeFrames(); got != before-3 {
		t.Fatalf("FreeFrames() after alloc = %d, want %d", got, before-3)
	}

	shm.Close()
	if got := pmm.FreeFrames(); got != before {
		t.Fatalf("FreeFrames() after Close = %d, want %d (frames released)", got, before)
	}
}

func TestNewSharedMemoryFailsWhenOversubscribed(t *testing.T) {
	pmm := mem.NewPMM([]mem.MemRegion{{Base: 0, Len: mem.PageSize, Kind: mem.RegionUsable}}, 1)
	if _, err := NewSharedMemory(pmm, 4); err == errno.OK {
		t.Fatalf("NewSharedMemory requesting more pages than exist succeeded")
	}
}
