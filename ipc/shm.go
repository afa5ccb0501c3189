package ipc

import (
	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
	"github.com/Redstone-OS/forge/vm"
)

// SharedMemory wraps a pinned VMO that is handed out through capabilities
// and mapped SHARED into whichever address spaces a Port message transfers
// its handle to. Unlike an anonymous VMO, every frame exists up front so
// mapping never faults, matching the pinned-DMA-buffer use case IPC shared
// memory is specified for.
type SharedMemory struct {
	vmo    *vm.VMO
	npages int
}

// NewSharedMemory allocates npages physical frames, pinned for the
// lifetime of the returned handle.
func NewSharedMemory(pmm *mem.PMM, npages int) (*SharedMemory, errno.Err_t) {
	vmo, err := vm.NewSharedPinnedVMO(pmm, npages)
	if err != errno.OK {
		return nil, err
	}
	return &SharedMemory{vmo: vmo, npages: npages}, errno.OK
}

// MapInto installs this shared region into as at hint (or a
// FindHole-chosen address if hint is zero), with SHARED semantics: writes
// through any mapping are visible to every other mapping of the same
// SharedMemory, as opposed to a COW-private mapping of the same VMO.
func (s *SharedMemory) MapInto(as *vm.AddressSpace, hint mem.VirtAddr, prot mem.Protection) (mem.VirtAddr, errno.Err_t) {
	length := uint64(s.npages) * mem.PageSize
	return as.MapShared(hint, length, prot, s.vmo, vm.IntentSharedMemory)
}

func (s *SharedMemory) Pages() int { return s.npages }

// Close drops this handle's reference to the backing VMO; frames are
// released once every mapping and every handle has done the same.
func (s *SharedMemory) Close() {
	s.vmo.Unref()
}

// OnDestroy satisfies cap.Destroyable.
func (s *SharedMemory) OnDestroy() { s.Close() }
