package mem

import (
	"sync"

	"github.com/Redstone-OS/forge/klog"
)

// OOMHandler is invoked when the kernel heap cannot satisfy an allocation.
// Kernel heap exhaustion is unrecoverable at this level: the default
// handler logs and panics. A handler installed with SetOOMHandler runs
// first, and Alloc panics after it returns in every case.
type OOMHandler func(requested uintptr)

func defaultOOM(requested uintptr) {
	klog.Error("mem: kernel heap exhausted (requested %d bytes)", requested)
	panic("mem: kernel heap exhausted")
}

// bumpRegion is the pre-PMM allocator: a single pre-mapped region handed
// out strictly upward, never freed. It exists so boot code (GDT/IDT/per-CPU
// structures, the PMM's own frame array) has somewhere to allocate before
// the buddy/slab heap can stand up.
type bumpRegion struct {
	mu   sync.Mutex
	base uintptr
	end  uintptr
	next uintptr
}

func newBumpRegion(base, size uintptr) *bumpRegion {
	return &bumpRegion{base: base, end: base + size, next: base}
}

func (b *bumpRegion) alloc(size, align uintptr) (uintptr, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := (b.next + align - 1) &^ (align - 1)
	if p+size > b.end {
		return 0, false
	}
	b.next = p + size
	return p, true
}

// maxBuddyOrder is the largest log2(pages) order of a buddy-allocator
// block; order 0 is one page. A request needing a larger block fails and
// goes to the OOM handler.
const maxBuddyOrder = 10 // up to 1024 pages (4 MiB) per block

type buddyBlock struct {
	addr VirtAddr
	next *buddyBlock
}

// buddyAllocator services page-multiple requests (VMA backing arrays,
// large kernel structures) out of frames supplied by the PMM, mapped
// contiguously in a reserved heap VMA range.
type buddyAllocator struct {
	mu       sync.Mutex
	freeList [maxBuddyOrder + 1]*buddyBlock
	pmm      *PMM
	mapper   *Mapper
	hhdm     *HHDM
	nextVirt VirtAddr
}

func newBuddyAllocator(pmm *PMM, mapper *Mapper, hhdm *HHDM, heapBase VirtAddr) *buddyAllocator {
	return &buddyAllocator{pmm: pmm, mapper: mapper, hhdm: hhdm, nextVirt: heapBase}
}

func orderFor(size uintptr) int {
	pages := (size + PageSize - 1) / PageSize
	order := 0
	for (1 << uint(order)) < pages {
		order++
	}
	return order
}

func (b *buddyAllocator) allocOrder(order int) (VirtAddr, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if order > maxBuddyOrder {
		return 0, false
	}
	if blk := b.freeList[order]; blk != nil {
		b.freeList[order] = blk.next
		return blk.addr, true
	}
	// No free block of this order: map fresh frames for it. A production
	// buddy allocator would instead split a higher order's block; mapping
	// fresh pages keeps this implementation's fault paths simple at the
	// cost of not coalescing freed memory across orders.
	pages := 1 << uint(order)
	start := b.nextVirt
	for i := 0; i < pages; i++ {
		pa, err := b.pmm.Alloc(OwnerKernelHeap, 0)
		if err != 0 {
			return 0, false
		}
		v := start.Add(uint64(i * PageSize))
		if merr := b.mapper.Map(v, pa, MapFlags{Write: true}); merr != 0 {
			return 0, false
		}
	}
	b.nextVirt = start.Add(uint64(pages * PageSize))
	return start, true
}

func (b *buddyAllocator) free(addr VirtAddr, order int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freeList[order] = &buddyBlock{addr: addr, next: b.freeList[order]}
}

// slabClass services one fixed object size out of pages borrowed from the
// buddy allocator, the common pattern for TCBs, CSpace slots, and Vminfo
// nodes: many same-sized allocations, freed out of order.
type slabClass struct {
	mu       sync.Mutex
	objSize  uintptr
	freeList []uintptr
	buddy    *buddyAllocator
}

func newSlabClass(objSize uintptr, buddy *buddyAllocator) *slabClass {
	return &slabClass{objSize: objSize, buddy: buddy}
}

func (s *slabClass) alloc() (uintptr, bool) {
	s.mu.Lock()
	if n := len(s.freeList); n > 0 {
		p := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		s.mu.Unlock()
		return p, true
	}
	s.mu.Unlock()

	base, ok := s.buddy.allocOrder(0)
	if !ok {
		return 0, false
	}
	perPage := PageSize / int(s.objSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 1; i < perPage; i++ {
		s.freeList = append(s.freeList, uintptr(base)+uintptr(i)*s.objSize)
	}
	return uintptr(base), true
}

func (s *slabClass) free(p uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeList = append(s.freeList, p)
}

// KernelHeap composes the three allocators behind one interface, choosing
// among them the way the spec's stage progression describes: bump before
// PMM is up, then buddy for page multiples and slab for small fixed sizes.
type KernelHeap struct {
	mu       sync.Mutex
	bump     *bumpRegion
	buddy    *buddyAllocator
	slabs    map[uintptr]*slabClass
	pmmReady bool
	oom      OOMHandler
}

// NewEarlyHeap constructs a heap backed only by the bump allocator, used
// from the moment boot code starts running until PMM initializes.
func NewEarlyHeap(bumpBase, bumpSize uintptr) *KernelHeap {
	return &KernelHeap{
		bump:  newBumpRegion(bumpBase, bumpSize),
		slabs: make(map[uintptr]*slabClass),
		oom:   defaultOOM,
	}
}

// UpgradeToBuddy switches the heap over to buddy+slab once PMM and the VMM
// are available. Allocations already made from the bump region remain
// valid; they are simply never individually freed (matching the bump
// allocator's no-free contract).
func (h *KernelHeap) UpgradeToBuddy(pmm *PMM, mapper *Mapper, hhdm *HHDM, heapBase VirtAddr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buddy = newBuddyAllocator(pmm, mapper, hhdm, heapBase)
	h.pmmReady = true
}

func (h *KernelHeap) SetOOMHandler(f OOMHandler) { h.oom = f }

const slabThreshold = 256 // objects larger than this go straight to the buddy allocator

// Alloc returns size bytes aligned to align (a power of two). Below the PMM
// bring-up point every request is satisfied by the bump region regardless
// of size.
func (h *KernelHeap) Alloc(size, align uintptr) uintptr {
	h.mu.Lock()
	ready := h.pmmReady
	bump := h.bump
	h.mu.Unlock()

	if !ready {
		p, ok := bump.alloc(size, align)
		if !ok {
			h.fail(size)
		}
		return p
	}

	if size > slabThreshold {
		order := orderFor(size)
		v, ok := h.buddy.allocOrder(order)
		if !ok {
			h.fail(size)
		}
		return uintptr(v)
	}

	h.mu.Lock()
	cls, ok := h.slabs[size]
	if !ok {
		cls = newSlabClass(size, h.buddy)
		h.slabs[size] = cls
	}
	h.mu.Unlock()

	p, ok := cls.alloc()
	if !ok {
		h.fail(size)
	}
	return p
}

func (h *KernelHeap) fail(size uintptr) {
	if h.oom != nil {
		h.oom(size)
	}
	panic("mem: kernel heap exhausted")
}

// Free returns an allocation made through Alloc. Bump-region allocations
// cannot be freed and Free is a deliberate no-op for them.
func (h *KernelHeap) Free(p uintptr, size uintptr) {
	h.mu.Lock()
	ready := h.pmmReady
	h.mu.Unlock()
	if !ready {
		return
	}
	if size > slabThreshold {
		h.buddy.free(VirtAddr(p), orderFor(size))
		return
	}
	h.mu.Lock()
	cls := h.slabs[size]
	h.mu.Unlock()
	if cls != nil {
		cls.free(p)
	}
}
