package vm

import (
	"sync"
	"sync/atomic"

	"github.com/Redstone-OS/forge/errno"
	"github.com/Redstone-OS/forge/mem"
)

// VMOKind distinguishes how a VMO's pages come into existence.
type VMOKind uint8

const (
	VMOAnonymous VMOKind = iota
	VMOFileBacked
	VMOSharedPinned
)

// VMO is a page-indexed physical-backing store. Multiple VMAs, possibly in
// different address spaces and at different offsets, may reference the
// same VMO; it outlives any single mapping of it.
type VMO struct {
	kind  VMOKind
	pmm   *mem.PMM
	owner mem.OwnerTag

	mu    sync.Mutex
	pages map[uint64]mem.PhysAddr // page index -> frame, populated lazily except for SharedPinned

	vnode  VNode
	refcnt int32 // atomic: number of VMAs + mappers referencing this VMO
}

func NewAnonymousVMO(pmm *mem.PMM) *VMO {
	return &VMO{kind: VMOAnonymous, pmm: pmm, owner: mem.OwnerAnonVMA, pages: make(map[uint64]mem.PhysAddr), refcnt: 1}
}

func NewFileBackedVMO(pmm *mem.PMM, vnode VNode) *VMO {
	return &VMO{kind: VMOFileBacked, pmm: pmm, owner: mem.OwnerFileCache, vnode: vnode, pages: make(map[uint64]mem.PhysAddr), refcnt: 1}
}

// NewSharedPinnedVMO pre-allocates and pins npages physical frames up
// front, for DMA buffers and framebuffers where lazy faulting is
// unacceptable.
func NewSharedPinnedVMO(pmm *mem.PMM, npages int) (*VMO, errno.Err_t) {
	v := &VMO{kind: VMOSharedPinned, pmm: pmm, owner: mem.OwnerSHM, pages: make(map[uint64]mem.PhysAddr, npages), refcnt: 1}
	for i := 0; i < npages; i++ {
		pa, err := pmm.Alloc(mem.OwnerSHM, 0)
		if err != errno.OK {
			v.releaseAllLocked()
			return nil, err
		}
		v.pages[uint64(i)] = pa
	}
	return v, errno.OK
}

func (v *VMO) Ref()   { atomic.AddInt32(&v.refcnt, 1) }
func (v *VMO) Kind() VMOKind { return v.kind }

// Unref drops a reference and, on reaching zero, releases every frame the
// VMO holds.
func (v *VMO) Unref() {
	if atomic.AddInt32(&v.refcnt, -1) > 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.releaseAllLocked()
}

func (v *VMO) releaseAllLocked() {
	for idx, pa := range v.pages {
		v.pmm.Free(pa, v.owner)
		delete(v.pages, idx)
	}
}

// PageAt returns the frame backing page index idx, populating it first if
// necessary: zero-filled for anonymous VMOs, read from the vnode through
// the page cache for file-backed ones. Shared-pinned VMOs always already
// have every index populated.
func (v *VMO) PageAt(idx uint64, hhdm *mem.HHDM) (mem.PhysAddr, errno.Err_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if pa, ok := v.pages[idx]; ok {
		return pa, errno.OK
	}
	if v.kind == VMOSharedPinned {
		return 0, errno.NotMapped
	}
	pa, err := v.pmm.Alloc(v.owner, 0)
	if err != errno.OK {
		return 0, err
	}
	virt := hhdm.PhysToVirt(pa)
	zeroPage(virt)
	if v.kind == VMOFileBacked && v.vnode != nil {
		buf := pageBytes(virt)
		if rerr := v.vnode.ReadPage(int64(idx)*mem.PageSize, buf); rerr != errno.OK {
			v.pmm.Free(pa, v.owner)
			return 0, rerr
		}
	}
	v.pages[idx] = pa
	return pa, errno.OK
}

// SetPage installs pa as the cached frame for idx (used by COW promotion
// and by the filesystem layer populating the shared page cache entry).
func (v *VMO) SetPage(idx uint64, pa mem.PhysAddr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pages[idx] = pa
}
